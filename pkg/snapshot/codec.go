package snapshot

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

const (
	EncodingJSON = "json"
	EncodingCBOR = "cbor"

	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
)

// cborEnc 使用 Core Deterministic Encoding（key 排序、最短整数编码），相同快照编码结果相同
var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("snapshot: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("snapshot: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode 按指定编码序列化扁平统计表
func (s *Snapshot) Encode(encoding string) ([]byte, error) {
	switch encoding {
	case EncodingJSON, "":
		return json.Marshal(s.stats)
	case EncodingCBOR:
		return cborEnc.Marshal(s.stats)
	}
	return nil, fmt.Errorf("unsupported snapshot encoding %q", encoding)
}

// Bytes 返回指定编码的负载；与发布时编码一致时直接复用
func (s *Snapshot) Bytes(encoding string) ([]byte, error) {
	if encoding == "" {
		encoding = EncodingJSON
	}
	if s.Payload != nil && s.Encoding == encoding {
		return s.Payload, nil
	}
	return s.Encode(encoding)
}

// ContentType 编码名对应的 MIME 类型
func ContentType(encoding string) string {
	if encoding == EncodingCBOR {
		return ContentTypeCBOR
	}
	return ContentTypeJSON
}

// Decode 将负载解析回扁平表。CBOR 整数解码为 uint64 或 int64，JSON 数字解码为 float64
func Decode(encoding string, data []byte) (map[string]any, error) {
	out := map[string]any{}
	var err error
	switch encoding {
	case EncodingJSON, "":
		err = json.Unmarshal(data, &out)
	case EncodingCBOR:
		err = cborDec.Unmarshal(data, &out)
	default:
		err = fmt.Errorf("unsupported snapshot encoding %q", encoding)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

package reconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// 入站请求字段名（与设备侧控制通道保持一致）
const (
	FieldTelemetryInterval = "telemetry_interval"
	FieldSamplingInterval  = "m7_status_query_time_interval"
	FieldWindowMultiplier  = "m7_window_size_multiplier"
)

var ErrNotObject = errors.New("reconfiguration request must be a JSON object")

// Request 解析后的重配置请求；nil 字段表示请求中未出现
type Request struct {
	TelemetryInterval *int64   // 秒
	SamplingInterval  *float64 // 秒
	WindowMultiplier  *int64

	// Invalid 类型错误的字段 -> 原因
	Invalid map[string]string
}

// Empty 请求中没有任何可识别字段
func (r Request) Empty() bool {
	return r.TelemetryInterval == nil && r.SamplingInterval == nil &&
		r.WindowMultiplier == nil && len(r.Invalid) == 0
}

// ParseRequest 解析扁平 JSON 对象；未知字段忽略，类型错误按字段记录
func ParseRequest(data []byte) (Request, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrNotObject, err)
	}
	if raw == nil {
		return Request{}, ErrNotObject
	}

	req := Request{Invalid: make(map[string]string)}
	if v, ok := raw[FieldTelemetryInterval]; ok {
		if n, err := parseInt(v); err != nil {
			req.Invalid[FieldTelemetryInterval] = err.Error()
		} else {
			req.TelemetryInterval = &n
		}
	}
	if v, ok := raw[FieldSamplingInterval]; ok {
		if f, err := parseFloat(v); err != nil {
			req.Invalid[FieldSamplingInterval] = err.Error()
		} else {
			req.SamplingInterval = &f
		}
	}
	if v, ok := raw[FieldWindowMultiplier]; ok {
		if n, err := parseInt(v); err != nil {
			req.Invalid[FieldWindowMultiplier] = err.Error()
		} else {
			req.WindowMultiplier = &n
		}
	}
	return req, nil
}

// parseNumber 只接受 JSON 数字字面量（拒绝 "5" 这类字符串）
func parseNumber(v json.RawMessage) (json.Number, error) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || !(v[0] == '-' || (v[0] >= '0' && v[0] <= '9')) {
		return "", fmt.Errorf("expected a number, got %s", v)
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return "", fmt.Errorf("expected a number, got %s", v)
	}
	return n, nil
}

func parseInt(v json.RawMessage) (int64, error) {
	n, err := parseNumber(v)
	if err != nil {
		return 0, err
	}
	i, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("expected an integer, got %s", n)
	}
	return i, nil
}

func parseFloat(v json.RawMessage) (float64, error) {
	n, err := parseNumber(v)
	if err != nil {
		return 0, err
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("expected a finite number, got %s", n)
	}
	return f, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

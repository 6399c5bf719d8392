package collector

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/telemetry-collector/pkg/logger"
)

const (
	// idpsLengthSize 字符设备为每条消息附加的大端长度前缀
	idpsLengthSize = 4
	// idpsEntrySize 固定负载：<BBIIIII
	idpsEntrySize = 22

	idpsEngineLLCE = 0
	idpsEngineM7   = 1
)

// IDPSEntry CAN 入侵检测引擎上报的一条异常记录
type IDPSEntry struct {
	EngineID     uint8
	Status       uint8
	Timestamp    uint32
	MessageID    uint32
	BusID        uint32
	DetectionTag uint32
	DebugData    string // 十六进制
}

// IDPSCollector 读取 M7 IPCF 设备中的 CAN IDPS 统计，按区间统计各引擎的异常条数。
// 设备每次读取返回上次读取之后的新记录
type IDPSCollector struct {
	name     string
	device   string
	entries  []IDPSEntry
	readings map[string]any
}

func NewIDPSCollector(device string) *IDPSCollector {
	return &IDPSCollector{name: "idps", device: device}
}

func (c *IDPSCollector) Name() string { return c.name }

func (c *IDPSCollector) Init() error { return nil }

func (c *IDPSCollector) Step(ctx context.Context) error {
	c.readings = nil
	c.entries = nil
	raw, err := os.ReadFile(c.device)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", c.device, ErrNoData)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", c.device, err)
	}

	entries, err := ParseIDPSRecords(raw)
	if err != nil {
		logger.Warn("idps records truncated", zap.String("name", c.name), zap.Int("parsed", len(entries)), zap.Error(err))
	}

	var m7, llce uint64
	for _, e := range entries {
		switch e.EngineID {
		case idpsEngineLLCE:
			llce++
		case idpsEngineM7:
			m7++
		}
		logger.Debug("idps anomaly",
			zap.String("name", c.name),
			zap.Uint8("engine_id", e.EngineID),
			zap.Uint8("status", e.Status),
			zap.Uint32("message_id", e.MessageID),
			zap.Uint32("bus_id", e.BusID),
			zap.Uint32("detection_tag", e.DetectionTag))
	}
	c.entries = entries
	c.readings = map[string]any{
		"idps_m7_anomalies":   m7,
		"idps_llce_anomalies": llce,
		"idps_entries":        uint64(len(entries)),
	}
	return nil
}

// Entries 上一轮解析出的记录
func (c *IDPSCollector) Entries() []IDPSEntry { return c.entries }

func (c *IDPSCollector) Readings() map[string]any { return c.readings }

func (c *IDPSCollector) Close() error { return nil }

// ParseIDPSRecords 解析设备原始数据。遇到非法长度或截断记录时停止，
// 返回已解析的记录和错误
func ParseIDPSRecords(raw []byte) ([]IDPSEntry, error) {
	var out []IDPSEntry
	for off := 0; off < len(raw); {
		if len(raw)-off < idpsLengthSize {
			return out, fmt.Errorf("offset %d: short length prefix", off)
		}
		size := binary.BigEndian.Uint32(raw[off:])
		if size < idpsEntrySize {
			return out, fmt.Errorf("offset %d: message size %d below minimum %d", off, size, idpsEntrySize)
		}
		off += idpsLengthSize
		if len(raw)-off < idpsEntrySize {
			return out, fmt.Errorf("offset %d: short payload", off)
		}
		p := raw[off : off+idpsEntrySize]
		e := IDPSEntry{
			EngineID:     p[0],
			Status:       p[1],
			Timestamp:    binary.LittleEndian.Uint32(p[2:]),
			MessageID:    binary.LittleEndian.Uint32(p[6:]),
			BusID:        binary.LittleEndian.Uint32(p[10:]),
			DetectionTag: binary.LittleEndian.Uint32(p[14:]),
		}
		dbgLen := int(binary.LittleEndian.Uint32(p[18:]))
		off += idpsEntrySize
		if dbgLen > 0 {
			if len(raw)-off < dbgLen {
				return out, fmt.Errorf("offset %d: debug data needs %d bytes, have %d", off, dbgLen, len(raw)-off)
			}
			e.DebugData = hex.EncodeToString(raw[off : off+dbgLen])
			off += dbgLen
		}
		out = append(out, e)
	}
	return out, nil
}

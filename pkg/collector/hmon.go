package collector

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// hmonRecordSize 三路电压，小端 uint32
const hmonRecordSize = 12

// HealthMonitorCollector 读取 M7 健康监控共享内存设备中的电压值
type HealthMonitorCollector struct {
	name     string
	device   string
	readings map[string]any
}

func NewHealthMonitorCollector(device string) *HealthMonitorCollector {
	return &HealthMonitorCollector{name: "hmon", device: device}
}

func (h *HealthMonitorCollector) Name() string { return h.name }

func (h *HealthMonitorCollector) Init() error { return nil }

func (h *HealthMonitorCollector) Step(ctx context.Context) error {
	h.readings = nil
	raw, err := os.ReadFile(h.device)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", h.device, ErrNoData)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", h.device, err)
	}
	if len(raw) < hmonRecordSize {
		return fmt.Errorf("%s: short record (%d bytes): %w", h.device, len(raw), ErrNoData)
	}
	h.readings = map[string]any{
		"hmon_1V1": uint64(binary.LittleEndian.Uint32(raw[0:4])),
		"hmon_1V2": uint64(binary.LittleEndian.Uint32(raw[4:8])),
		"hmon_1V8": uint64(binary.LittleEndian.Uint32(raw[8:12])),
	}
	return nil
}

func (h *HealthMonitorCollector) Readings() map[string]any { return h.readings }

func (h *HealthMonitorCollector) Close() error { return nil }

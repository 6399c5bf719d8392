package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"

	"github.com/telemetry-collector/pkg/logger"
)

// TemperatureCollector 温度传感器（摄氏度），key 取别名表，否则为 temp_<sensor key>
type TemperatureCollector struct {
	name     string
	aliases  map[string]string
	sensors  func(ctx context.Context) ([]host.TemperatureStat, error)
	readings map[string]any
}

func NewTemperatureCollector(aliases map[string]string) *TemperatureCollector {
	return &TemperatureCollector{
		name:    "temperature",
		aliases: aliases,
		sensors: host.SensorsTemperaturesWithContext,
	}
}

func (t *TemperatureCollector) Name() string { return t.name }

func (t *TemperatureCollector) Init() error { return nil }

func sensorTag(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return "temp_" + strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' {
			return r
		}
		return '_'
	}, key)
}

func (t *TemperatureCollector) Step(ctx context.Context) error {
	t.readings = nil
	temps, err := t.sensors(ctx)
	if err != nil {
		// 部分传感器读取失败时 gopsutil 仍返回已读到的数据
		var warn *host.Warnings
		if !errors.As(err, &warn) || len(temps) == 0 {
			return fmt.Errorf("read temperature sensors: %w", err)
		}
		logger.Debug("some temperature sensors unreadable", zap.String("name", t.name), zap.Error(err))
	}
	if len(temps) == 0 {
		return fmt.Errorf("temperature sensors: %w", ErrNoData)
	}

	readings := make(map[string]any, len(temps))
	for _, s := range temps {
		tag, ok := t.aliases[s.SensorKey]
		if !ok {
			tag = sensorTag(s.SensorKey)
		}
		readings[tag] = s.Temperature
	}
	t.readings = readings
	return nil
}

func (t *TemperatureCollector) Readings() map[string]any { return t.readings }

func (t *TemperatureCollector) Close() error { return nil }

package collector

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/zap"

	"github.com/telemetry-collector/pkg/counters"
	"github.com/telemetry-collector/pkg/logger"
	"github.com/telemetry-collector/pkg/metrics"
)

// CPUCollector 每核心 /proc/stat 时间片占比，key 形如 dom0_vcpu0_idle（百分比）
type CPUCollector struct {
	name     string
	stats    *counters.CPUStats
	metrics  *metrics.CPUMetrics
	readings map[string]any
}

// NewCPUCollector m 可为 nil
func NewCPUCollector(procPath string, m *metrics.CPUMetrics, opts ...counters.Option) *CPUCollector {
	opts = append([]counters.Option{counters.WithLogger(logger.Named("cpu"))}, opts...)
	return &CPUCollector{
		name:    "cpu",
		stats:   counters.NewCPUStats(procPath, opts...),
		metrics: m,
	}
}

func (c *CPUCollector) Name() string { return c.name }

// Init 预检查 CPU 可用性并记录基线，使第一个快照即可带上 CPU 数据；
// 基线失败时由后续 Step 冷启动补录
func (c *CPUCollector) Init() error {
	if _, err := cpu.CountsWithContext(context.Background(), true); err != nil {
		logger.Warn("failed to get CPU counts", zap.String("name", c.name), zap.Error(err))
	}
	if err := c.stats.Step(); err != nil {
		return fmt.Errorf("cpu baseline: %w", err)
	}
	logger.Debug("cpu baseline recorded", zap.String("name", c.name))
	return nil
}

func (c *CPUCollector) Step(ctx context.Context) error {
	c.readings = nil
	if err := c.stats.Step(); err != nil {
		return err
	}

	load := c.stats.GetLoad(true)
	readings := make(map[string]any, len(load)*len(counters.CPUBuckets))
	for label, buckets := range load {
		for bucket, frac := range buckets {
			readings[fmt.Sprintf("dom0_v%s_%s", label, bucket)] = 100 * frac
		}
		if c.metrics != nil {
			for bucket, frac := range buckets {
				c.metrics.UsageMode.WithLabelValues(label, bucket).Set(100 * frac)
			}
			c.metrics.Usage.WithLabelValues(label).Set(100 * (1 - buckets["idle"]))
		}
	}
	if resets := c.stats.Resets(); len(resets) > 0 {
		logger.Debug("cpu counters rebaselined", zap.String("name", c.name), zap.Strings("keys", resets))
	}
	c.readings = readings
	return nil
}

func (c *CPUCollector) Readings() map[string]any { return c.readings }

func (c *CPUCollector) Close() error { return nil }

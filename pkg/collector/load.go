package collector

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/load"
)

// LoadCollector 系统 1/5/15 分钟平均负载
type LoadCollector struct {
	name     string
	avg      func(ctx context.Context) (*load.AvgStat, error)
	readings map[string]any
}

func NewLoadCollector() *LoadCollector {
	return &LoadCollector{name: "load", avg: load.AvgWithContext}
}

func (l *LoadCollector) Name() string { return l.name }

func (l *LoadCollector) Init() error { return nil }

func (l *LoadCollector) Step(ctx context.Context) error {
	l.readings = nil
	avg, err := l.avg(ctx)
	if err != nil {
		return fmt.Errorf("read load average: %w", err)
	}
	l.readings = map[string]any{
		"load_1":  avg.Load1,
		"load_5":  avg.Load5,
		"load_15": avg.Load15,
	}
	return nil
}

func (l *LoadCollector) Readings() map[string]any { return l.readings }

func (l *LoadCollector) Close() error { return nil }

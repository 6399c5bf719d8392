package collector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/telemetry-collector/pkg/logger"
	"github.com/telemetry-collector/pkg/poller"
)

// M7Collector 发布寄存器轮询器的滑动窗口利用率，key 为核心名（如 m7_0）
type M7Collector struct {
	name     string
	poller   *poller.Poller
	reader   poller.RegisterReader
	cancel   context.CancelFunc
	readings map[string]any
}

// NewM7Collector reader 由采集器负责关闭
func NewM7Collector(p *poller.Poller, reader poller.RegisterReader) *M7Collector {
	return &M7Collector{name: "m7", poller: p, reader: reader}
}

func (m *M7Collector) Name() string { return m.name }

// Init 启动轮询协程
func (m *M7Collector) Init() error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.poller.Start(ctx)
	logger.Debug("m7 poller started", zap.String("name", m.name), zap.Int("window_capacity", m.poller.Capacity()))
	return nil
}

func (m *M7Collector) Step(ctx context.Context) error {
	m.readings = nil
	if err := m.poller.Faulted(); err != nil {
		return fmt.Errorf("%w: %w", poller.ErrPollerStopped, err)
	}
	load := m.poller.GetLoad()
	readings := make(map[string]any, len(load))
	for core, v := range load {
		readings[core] = v
	}
	m.readings = readings
	return nil
}

func (m *M7Collector) Readings() map[string]any { return m.readings }

// Poller 返回底层轮询器（供重配置通道使用）
func (m *M7Collector) Poller() *poller.Poller { return m.poller }

func (m *M7Collector) Close() error {
	m.poller.Terminate()
	if m.cancel != nil {
		m.cancel()
	}
	m.poller.Wait()
	if m.reader != nil {
		return m.reader.Close()
	}
	return nil
}

// Package aggregator steps every registered collector on a fixed cadence and
// publishes one merged snapshot per tick.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/telemetry-collector/pkg/collector"
	"github.com/telemetry-collector/pkg/logger"
	"github.com/telemetry-collector/pkg/metrics"
	"github.com/telemetry-collector/pkg/snapshot"
)

const name = "aggregator"

var ErrDuplicateCollector = errors.New("collector already registered")

// Agent 顶层调度接口（封装所有采集器的生命周期管理）
type Agent interface {
	Register(c collector.Collector) error
	Start(ctx context.Context)
	Shutdown(ctx context.Context) error
}

type Options struct {
	Interval time.Duration
	Encoding string
	Verbose  bool

	Clock clockwork.Clock
	// Metadata returns the keys every snapshot starts with. They win over
	// any collector reading with the same key.
	Metadata func(now time.Time) map[string]any

	Telemetry  *metrics.TelemetryMetrics
	Collectors *metrics.CollectorMetrics
}


// Scheduler 实现 Agent
type Scheduler struct {
	clock     clockwork.Clock
	encoding  string
	verbose   bool
	metadata  func(now time.Time) map[string]any
	telemetry *metrics.TelemetryMetrics
	collect   *metrics.CollectorMetrics

	mu       sync.Mutex
	entries  []collector.Collector
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	warned   map[string]bool

	seq  atomic.Uint64
	slot snapshot.Slot
}

var _ Agent = (*Scheduler)(nil)

func New(opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Encoding == "" {
		opts.Encoding = snapshot.EncodingJSON
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	return &Scheduler{
		clock:     opts.Clock,
		encoding:  opts.Encoding,
		verbose:   opts.Verbose,
		metadata:  opts.Metadata,
		telemetry: opts.Telemetry,
		collect:   opts.Collectors,
		interval:  opts.Interval,
		warned:    make(map[string]bool),
	}
}

// Register 注册采集器（名称唯一）；合并顺序即注册顺序
func (s *Scheduler) Register(c collector.Collector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Name() == c.Name() {
			return fmt.Errorf("%w: %s", ErrDuplicateCollector, c.Name())
		}
	}
	s.entries = append(s.entries, c)
	return nil
}

// InitAll 初始化所有采集器；失败只记录告警，采集器保持注册，
// 之后每轮 Step 重试（数据源暂时缺失只影响当轮数据）
func (s *Scheduler) InitAll() {
	for _, c := range s.collectors() {
		if err := c.Init(); err != nil {
			logger.Warn("collector init failed, retrying on next tick", zap.String("name", c.Name()), zap.Error(err))
			continue
		}
		logger.Debug("collector initialized successfully", zap.String("name", c.Name()))
	}
}

// Start 初始化采集器并启动调度循环；重复调用无效
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.InitAll()

	logger.Info("aggregation loop started", zap.String("name", name),
		zap.Duration("interval", s.Interval()),
		zap.Int("registered-collectors-count", len(s.collectors())))

	go s.run(loopCtx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	for {
		start := s.clock.Now()
		if _, err := s.RunOnce(ctx); err != nil {
			logger.Error("snapshot not published", zap.String("name", name), zap.Error(err))
		}

		// 自校正休眠：扣除本轮耗时，超时则立即进入下一轮（不补偿积压）
		wait := s.Interval() - s.clock.Since(start)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			logger.Info("aggregation loop stopped", zap.String("name", name), zap.Error(ctx.Err()))
			return
		case <-s.clock.After(wait):
		}
	}
}

func (s *Scheduler) collectors() []collector.Collector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]collector.Collector(nil), s.entries...)
}

// RunOnce 执行一个完整周期：采集、合并、编码、发布
func (s *Scheduler) RunOnce(ctx context.Context) (*snapshot.Snapshot, error) {
	start := s.clock.Now()

	merged := make(map[string]any)
	owner := make(map[string]string)
	if s.metadata != nil {
		for k, v := range s.metadata(start) {
			merged[k] = v
			owner[k] = "metadata"
		}
	}

	for _, c := range s.collectors() {
		t0 := s.clock.Now()
		err := c.Step(ctx)
		s.collect.ObserveStep(c.Name(), s.clock.Since(t0).Seconds(), err)
		if err != nil {
			logger.Warn("collection failed", zap.String("name", c.Name()), zap.Error(err))
			continue
		}
		for k, v := range c.Readings() {
			if first, dup := owner[k]; dup {
				s.warnCollision(k, first, c.Name())
				continue
			}
			merged[k] = v
			owner[k] = c.Name()
		}
	}

	snap := snapshot.New(s.seq.Add(1), start, merged)
	payload, err := snap.Encode(s.encoding)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot %d: %w", snap.Seq, err)
	}
	snap.Encoding = s.encoding
	snap.Payload = payload
	s.slot.Publish(snap)

	if s.telemetry != nil {
		s.telemetry.Published.Inc()
		s.telemetry.Aggregation.Observe(s.clock.Since(start).Seconds())
	}
	if s.verbose {
		logger.Debug("updated system telemetry", zap.String("name", name),
			zap.Uint64("seq", snap.Seq), zap.ByteString("snapshot", payload))
	}
	return snap, nil
}

func (s *Scheduler) warnCollision(key, first, dropped string) {
	s.mu.Lock()
	seen := s.warned[key]
	s.warned[key] = true
	s.mu.Unlock()
	if !seen {
		logger.Warn("snapshot key collision, keeping first writer",
			zap.String("key", key), zap.String("kept", first), zap.String("dropped", dropped))
	}
}

// GetSnapshot 返回最新发布的快照；首次发布前为 nil
func (s *Scheduler) GetSnapshot() *snapshot.Snapshot { return s.slot.Load() }

// SetInterval 新间隔在下一轮开始时生效
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
	logger.Info("telemetry interval updated", zap.String("name", name), zap.Duration("interval", d))
}

func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Shutdown 停止调度循环并关闭所有采集器
func (s *Scheduler) Shutdown(ctx context.Context) error {
	logger.Info("starting to shutdown aggregation loop", zap.String("name", name))

	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	var err error
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("wait for aggregation loop: %w", ctx.Err())
		}
	}
	return multierr.Append(err, s.CloseAll())
}

// CloseAll 批量关闭采集器，汇总所有错误
func (s *Scheduler) CloseAll() error {
	var errs error
	for _, c := range s.collectors() {
		logger.Debug("closing collector", zap.String("name", c.Name()))
		if err := c.Close(); err != nil {
			logger.Error("failed to close collector", zap.String("name", c.Name()), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", c.Name(), err))
		}
	}
	return errs
}

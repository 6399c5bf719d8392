package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telemetry-collector/pkg/collector"
	"github.com/telemetry-collector/pkg/metrics"
	"github.com/telemetry-collector/pkg/snapshot"
)

type fakeCollector struct {
	name     string
	readings map[string]any
	initErr  error
	stepErr  error
	closeErr error
	failFor  int // 前 failFor 次 Step 返回 ErrNoData
	onStep   func(n int)

	mu     sync.Mutex
	steps  int
	closed bool
}

var _ collector.Collector = (*fakeCollector)(nil)

func (f *fakeCollector) Name() string { return f.name }
func (f *fakeCollector) Init() error  { return f.initErr }

func (f *fakeCollector) Step(context.Context) error {
	f.mu.Lock()
	f.steps++
	n := f.steps
	f.mu.Unlock()
	if f.onStep != nil {
		f.onStep(n)
	}
	if n <= f.failFor {
		return collector.ErrNoData
	}
	return f.stepErr
}

func (f *fakeCollector) Readings() map[string]any { return f.readings }

func (f *fakeCollector) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return f.closeErr
}

func (f *fakeCollector) stepCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.steps
}

func seqOf(s *Scheduler) uint64 {
	if snap := s.GetSnapshot(); snap != nil {
		return snap.Seq
	}
	return 0
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	s := New(Options{})
	require.NoError(t, s.Register(&fakeCollector{name: "cpu"}))
	err := s.Register(&fakeCollector{name: "cpu"})
	assert.ErrorIs(t, err, ErrDuplicateCollector)
}

func TestRunOnceMergesInRegistrationOrder(t *testing.T) {
	fc := clockwork.NewFakeClockAt(time.Unix(1700000000, 0))
	f := metrics.NewMetricFactory(metrics.NewPromRegistry(prometheus.NewRegistry()))
	tm := f.NewTelemetryMetrics()
	cm := f.NewCollectorMetrics()

	s := New(Options{
		Interval: time.Second,
		Clock:    fc,
		Metadata: func(now time.Time) map[string]any {
			return map[string]any{"device": "s32g", "timestamp": now.Unix()}
		},
		Telemetry:  tm,
		Collectors: cm,
	})

	first := &fakeCollector{name: "cpu", readings: map[string]any{"dom0_vcpu_idle": 90.0, "device": "spoofed"}}
	second := &fakeCollector{name: "m7", readings: map[string]any{"dom0_vcpu_idle": 1.0, "m7_0": 75.0}}
	broken := &fakeCollector{name: "temperature", stepErr: collector.ErrNoData, readings: map[string]any{"temp_cpu": 40.0}}
	for _, c := range []*fakeCollector{first, second, broken} {
		require.NoError(t, s.Register(c))
	}

	assert.Nil(t, s.GetSnapshot())

	snap, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Seq)
	assert.Same(t, snap, s.GetSnapshot())

	stats := snap.Stats()
	assert.Equal(t, "s32g", stats["device"], "metadata wins over collector keys")
	assert.Equal(t, int64(1700000000), stats["timestamp"])
	assert.Equal(t, 90.0, stats["dom0_vcpu_idle"], "first registered writer wins")
	assert.Equal(t, 75.0, stats["m7_0"])
	assert.NotContains(t, stats, "temp_cpu", "failed collector is omitted")

	assert.Equal(t, snapshot.EncodingJSON, snap.Encoding)
	decoded, err := snapshot.Decode(snapshot.EncodingJSON, snap.Payload)
	require.NoError(t, err)
	assert.Equal(t, 75.0, decoded["m7_0"])

	assert.Equal(t, 1.0, testutil.ToFloat64(tm.Published))
	assert.Equal(t, 1.0, testutil.ToFloat64(cm.Errors.WithLabelValues("temperature")))
	assert.Equal(t, 0.0, testutil.ToFloat64(cm.Errors.WithLabelValues("cpu")))

	snap, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Seq)
}

func TestRunOnceCBOR(t *testing.T) {
	s := New(Options{Encoding: snapshot.EncodingCBOR, Clock: clockwork.NewFakeClock()})
	require.NoError(t, s.Register(&fakeCollector{name: "load", readings: map[string]any{"load_1": 0.5}}))

	snap, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	decoded, err := snapshot.Decode(snapshot.EncodingCBOR, snap.Payload)
	require.NoError(t, err)
	assert.Equal(t, 0.5, decoded["load_1"])
}

func TestLoopFollowsInterval(t *testing.T) {
	fc := clockwork.NewFakeClock()
	s := New(Options{Interval: time.Second, Clock: fc})
	c := &fakeCollector{name: "cpu", readings: map[string]any{"dom0_vcpu_idle": 100.0}}
	require.NoError(t, s.Register(c))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.Start(ctx)
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	assert.Equal(t, uint64(1), seqOf(s), "first tick runs immediately")

	fc.Advance(time.Second)
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	assert.Equal(t, uint64(2), seqOf(s))

	// 已在等待的一轮仍按旧间隔，新间隔从下一轮开始
	s.SetInterval(3 * time.Second)
	assert.Equal(t, 3*time.Second, s.Interval())
	fc.Advance(time.Second)
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	assert.Equal(t, uint64(3), seqOf(s))

	fc.Advance(2 * time.Second)
	assert.Equal(t, uint64(3), seqOf(s), "timer not expired yet")
	fc.Advance(time.Second)
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	assert.Equal(t, uint64(4), seqOf(s))

	require.NoError(t, s.Shutdown(ctx))
	assert.True(t, c.closed)
}

func TestLoopOverrunDoesNotBacklog(t *testing.T) {
	fc := clockwork.NewFakeClock()
	s := New(Options{Interval: time.Second, Clock: fc})
	slow := &fakeCollector{name: "net", onStep: func(n int) {
		if n == 1 {
			fc.Advance(3 * time.Second)
		}
	}}
	require.NoError(t, s.Register(slow))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.Start(ctx)
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	// 第一轮超时 -> 第二轮立即执行，之后恢复正常节奏
	assert.Equal(t, uint64(2), seqOf(s))
	assert.Equal(t, 2, slow.stepCount())

	require.NoError(t, s.Shutdown(ctx))
}

func TestInitFailureKeepsCollectorRegistered(t *testing.T) {
	fc := clockwork.NewFakeClock()
	s := New(Options{Interval: time.Second, Clock: fc})
	// 启动时设备缺失：Init 与第一轮 Step 失败，第二轮恢复
	bad := &fakeCollector{
		name:     "hmon",
		initErr:  collector.ErrNoData,
		failFor:  1,
		readings: map[string]any{"hmon_1V1": uint64(1)},
	}
	good := &fakeCollector{name: "memory", readings: map[string]any{"mem_total": uint64(1)}}
	require.NoError(t, s.Register(bad))
	require.NoError(t, s.Register(good))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.Start(ctx)
	require.NoError(t, fc.BlockUntilContext(ctx, 1))

	assert.Equal(t, 1, bad.stepCount(), "init failure does not disable the collector")
	stats := s.GetSnapshot().Stats()
	assert.Contains(t, stats, "mem_total")
	assert.NotContains(t, stats, "hmon_1V1")

	fc.Advance(time.Second)
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	assert.Equal(t, 2, bad.stepCount())
	assert.Contains(t, s.GetSnapshot().Stats(), "hmon_1V1")

	require.NoError(t, s.Shutdown(ctx))
	assert.True(t, bad.closed)
}

func TestShutdownAggregatesCloseErrors(t *testing.T) {
	s := New(Options{Clock: clockwork.NewFakeClock()})
	errA := errors.New("close a")
	errB := errors.New("close b")
	a := &fakeCollector{name: "a", closeErr: errA}
	b := &fakeCollector{name: "b", closeErr: errB}
	c := &fakeCollector{name: "c"}
	for _, fc := range []*fakeCollector{a, b, c} {
		require.NoError(t, s.Register(fc))
	}

	err := s.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.True(t, c.closed)
}

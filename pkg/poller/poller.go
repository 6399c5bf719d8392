package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var (
	ErrInvalidRegisterValue = errors.New("invalid core status register value")
	ErrPollerStopped        = errors.New("register poller stopped")
	// ErrRegisterRead 单次寄存器读取失败；本轮跳过，轮询继续
	ErrRegisterRead = errors.New("status register read failed")
)

// Core 被监控核心及其状态寄存器地址
type Core struct {
	Name    string
	Address uint64
}

// Metrics 接收轮询器观测值，为 nil 时忽略
type Metrics interface {
	SetCoreLoad(core string, percent float64)
	DeleteCoreLoad(core string)
	IncFault()
	IncReadError(core string)
}

type Options struct {
	Cores []Core

	// 寄存器取值：Active 计 1，WFI 与 Inactive 计 0，其余值视为故障
	Active, WFI, Inactive uint32

	SamplingInterval  time.Duration
	TelemetryInterval time.Duration
	WindowMultiplier  int

	Clock   clockwork.Clock
	Logger  *zap.Logger
	Metrics Metrics
}

type staged struct {
	capacity int
	sampling time.Duration
}

// Poller 按固定周期读取每个核心的状态寄存器，为每个核心维护活跃样本滑动窗口
type Poller struct {
	reader  RegisterReader
	cores   []Core
	active  uint32
	wfi     uint32
	idle    uint32
	clock   clockwork.Clock
	log     *zap.Logger
	metrics Metrics

	mu       sync.Mutex
	windows  map[string]*Window
	capacity int
	sampling time.Duration
	pending  *staged
	fault    error
	running  bool
	done     chan struct{}

	stop atomic.Bool
}

func New(reader RegisterReader, opts Options) (*Poller, error) {
	if reader == nil {
		return nil, errors.New("register reader is nil")
	}
	if len(opts.Cores) == 0 {
		return nil, errors.New("no cores configured")
	}
	if opts.SamplingInterval <= 0 || opts.TelemetryInterval <= 0 {
		return nil, fmt.Errorf("intervals must be positive: sampling=%s telemetry=%s", opts.SamplingInterval, opts.TelemetryInterval)
	}
	if opts.WindowMultiplier < 1 {
		return nil, fmt.Errorf("window multiplier must be >= 1, got %d", opts.WindowMultiplier)
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	p := &Poller{
		reader:   reader,
		cores:    append([]Core(nil), opts.Cores...),
		active:   opts.Active,
		wfi:      opts.WFI,
		idle:     opts.Inactive,
		clock:    opts.Clock,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		windows:  make(map[string]*Window, len(opts.Cores)),
		capacity: WindowCapacity(opts.SamplingInterval, opts.TelemetryInterval, opts.WindowMultiplier),
		sampling: opts.SamplingInterval,
	}
	for _, c := range p.cores {
		if _, dup := p.windows[c.Name]; dup {
			return nil, fmt.Errorf("duplicate core name %q", c.Name)
		}
		p.windows[c.Name] = NewWindow(p.capacity)
	}
	return p, nil
}

// Start 启动采样协程；已在运行或已故障时为空操作
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.fault != nil || p.stop.Load() {
		return
	}
	p.running = true
	p.done = make(chan struct{})
	go p.run(ctx, p.sampling, p.done)
}

func (p *Poller) run(ctx context.Context, period time.Duration, done chan struct{}) {
	defer close(done)
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	ticker := p.clock.NewTicker(period)
	defer ticker.Stop()

	p.log.Info("register poller started",
		zap.Int("cores", len(p.cores)),
		zap.Duration("sampling_interval", period),
		zap.Int("window_capacity", p.Capacity()))

	for {
		if p.stop.Load() {
			p.log.Info("register poller terminated")
			return
		}
		next, err := p.tick()
		if err != nil && !errors.Is(err, ErrRegisterRead) {
			return
		}
		if next != period {
			period = next
			ticker.Reset(period)
		}

		select {
		case <-ctx.Done():
			p.log.Info("register poller context done", zap.Error(ctx.Err()))
			return
		case <-ticker.Chan():
		}
	}
}

// SampleTick 先应用暂存的重配置，再读取每个核心一次并压入分类后的样本。
// 读取失败返回 ErrRegisterRead，本轮不压入任何样本，窗口保持不变
func (p *Poller) SampleTick() error {
	_, err := p.tick()
	return err
}

func (p *Poller) tick() (time.Duration, error) {
	period, err := p.applyPending()
	if err != nil {
		return period, err
	}

	samples := make([]uint8, len(p.cores))
	for i, c := range p.cores {
		raw, err := p.reader.ReadUint32(c.Address)
		if err != nil {
			return period, p.readError(c, err)
		}
		switch raw {
		case p.active:
			samples[i] = 1
		case p.wfi, p.idle:
			samples[i] = 0
		default:
			return period, p.setFault(c, fmt.Errorf("%w: core %s register %#x = %#x", ErrInvalidRegisterValue, c.Name, c.Address, raw))
		}
	}

	p.mu.Lock()
	for i, c := range p.cores {
		p.windows[c.Name].Push(samples[i])
	}
	p.mu.Unlock()
	return period, nil
}

func (p *Poller) applyPending() (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fault != nil {
		return p.sampling, fmt.Errorf("%w: %w", ErrPollerStopped, p.fault)
	}
	if p.pending == nil {
		return p.sampling, nil
	}
	p.capacity = p.pending.capacity
	p.sampling = p.pending.sampling
	p.pending = nil
	for _, w := range p.windows {
		w.Reset(p.capacity)
	}
	p.log.Debug("staged window update applied",
		zap.Int("window_capacity", p.capacity),
		zap.Duration("sampling_interval", p.sampling))
	return p.sampling, nil
}

func (p *Poller) readError(c Core, err error) error {
	err = fmt.Errorf("%w: core %s register %#x: %w", ErrRegisterRead, c.Name, c.Address, err)
	p.log.Warn("status register read failed, skipping tick", zap.String("core", c.Name), zap.Error(err))
	if p.metrics != nil {
		p.metrics.IncReadError(c.Name)
	}
	return err
}

func (p *Poller) setFault(c Core, err error) error {
	p.mu.Lock()
	p.fault = err
	for _, w := range p.windows {
		w.Reset(p.capacity)
	}
	p.mu.Unlock()

	p.log.Error("register poller stopped on fault", zap.String("core", c.Name), zap.Error(err))
	if p.metrics != nil {
		p.metrics.IncFault()
		for _, core := range p.cores {
			p.metrics.DeleteCoreLoad(core.Name)
		}
	}
	return err
}

// GetLoad 返回窗口非空的每个核心的利用率百分比
func (p *Poller) GetLoad() map[string]float64 {
	p.mu.Lock()
	out := make(map[string]float64, len(p.windows))
	for name, w := range p.windows {
		if v, ok := w.Load(); ok {
			out[name] = v
		}
	}
	p.mu.Unlock()

	if p.metrics != nil {
		for name, v := range out {
			p.metrics.SetCoreLoad(name, v)
		}
	}
	return out
}

// UpdateMeasurement 暂存新的采样周期与窗口容量（multiplier*telemetry/sampling），
// 下一轮开始时生效并清空所有窗口
func (p *Poller) UpdateMeasurement(sampling, telemetry time.Duration, multiplier int) error {
	if sampling <= 0 || telemetry <= 0 || multiplier < 1 {
		return fmt.Errorf("invalid measurement: sampling=%s telemetry=%s multiplier=%d", sampling, telemetry, multiplier)
	}
	capacity := WindowCapacity(sampling, telemetry, multiplier)

	p.mu.Lock()
	p.pending = &staged{capacity: capacity, sampling: sampling}
	p.mu.Unlock()

	p.log.Info("window update staged",
		zap.Int("window_capacity", capacity),
		zap.Duration("sampling_interval", sampling),
		zap.Duration("telemetry_interval", telemetry),
		zap.Int("multiplier", multiplier))
	return nil
}

// Terminate 请求采样协程在当前一轮结束后退出
func (p *Poller) Terminate() {
	p.stop.Store(true)
}

// Wait 阻塞直到采样协程退出
func (p *Poller) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Faulted 返回导致轮询器停止的故障
func (p *Poller) Faulted() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fault
}

// Capacity 当前生效的窗口容量
func (p *Poller) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// SamplingInterval 当前生效的采样周期
func (p *Poller) SamplingInterval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sampling
}

// Window 返回核心样本副本（由旧到新）及其和
func (p *Poller) Window(core string) ([]uint8, int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.windows[core]
	if !ok {
		return nil, 0, false
	}
	return w.Samples(), w.Sum(), true
}

func (p *Poller) Cores() []Core {
	return append([]Core(nil), p.cores...)
}

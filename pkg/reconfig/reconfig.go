// Package reconfig validates runtime reconfiguration requests and forwards the
// accepted measurement parameters to the register poller and the scheduler.
package reconfig

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/telemetry-collector/pkg/config"
	"github.com/telemetry-collector/pkg/logger"
	"github.com/telemetry-collector/pkg/metrics"
)

// PollerUpdater 接收新的测量参数（由寄存器轮询器实现）
type PollerUpdater interface {
	UpdateMeasurement(sampling, telemetry time.Duration, multiplier int) error
}

// IntervalSetter 接收新的聚合周期（由聚合调度器实现）
type IntervalSetter interface {
	SetInterval(d time.Duration)
}

// Params 当前生效的测量参数
type Params struct {
	TelemetryInterval time.Duration
	SamplingInterval  time.Duration
	WindowMultiplier  int
}

type paramsWire struct {
	TelemetryInterval int64   `json:"telemetry_interval"`
	SamplingInterval  float64 `json:"m7_status_query_time_interval"`
	WindowMultiplier  int     `json:"m7_window_size_multiplier"`
}

// MarshalJSON 以请求相同的字段名和单位（秒）输出
func (p Params) MarshalJSON() ([]byte, error) {
	return json.Marshal(paramsWire{
		TelemetryInterval: int64(p.TelemetryInterval / time.Second),
		SamplingInterval:  p.SamplingInterval.Seconds(),
		WindowMultiplier:  p.WindowMultiplier,
	})
}

// FromConfig 从配置中提取可在运行时修改的参数
func FromConfig(cfg *config.Config) Params {
	return Params{
		TelemetryInterval: cfg.Telemetry.Interval,
		SamplingInterval:  cfg.Poller.SamplingInterval,
		WindowMultiplier:  cfg.Poller.WindowMultiplier,
	}
}

// Result 一次 Apply 的结果
type Result struct {
	Params   Params            `json:"params"`
	Rejected map[string]string `json:"rejected,omitempty"`
	Changed  bool              `json:"changed"`
}

// RejectedFields 被拒绝的字段名（排序）
func (r Result) RejectedFields() []string { return sortedKeys(r.Rejected) }

type Options struct {
	Poller    PollerUpdater
	Scheduler IntervalSetter
	Metrics   *metrics.ReconfigMetrics
}

// Channel 重配置通道：逐字段校验，非法字段保留旧值，串行应用
type Channel struct {
	mu        sync.Mutex
	current   Params
	poller    PollerUpdater
	scheduler IntervalSetter
	metrics   *metrics.ReconfigMetrics
	log       *zap.Logger
}

func New(initial Params, opts Options) *Channel {
	return &Channel{
		current:   initial,
		poller:    opts.Poller,
		scheduler: opts.Scheduler,
		metrics:   opts.Metrics,
		log:       logger.Named("reconfig"),
	}
}

// Current 当前生效参数
func (c *Channel) Current() Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Apply 校验请求并转发给轮询器与调度器；参数未变化时不转发
func (c *Channel) Apply(req Request) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.current
	rejected := make(map[string]string, len(req.Invalid))
	for field, reason := range req.Invalid {
		rejected[field] = reason
	}

	if v := req.TelemetryInterval; v != nil {
		d := time.Duration(*v) * time.Second
		switch {
		case *v < int64(config.MinTelemetryInterval/time.Second):
			rejected[FieldTelemetryInterval] = fmt.Sprintf("must be >= %d", int64(config.MinTelemetryInterval/time.Second))
		case *v > int64(config.MaxTelemetryInterval/time.Second):
			rejected[FieldTelemetryInterval] = fmt.Sprintf("must be <= %d", int64(config.MaxTelemetryInterval/time.Second))
		default:
			next.TelemetryInterval = d
		}
	}
	if v := req.SamplingInterval; v != nil {
		floor := config.MinSamplingInterval.Seconds()
		switch {
		case *v < floor:
			rejected[FieldSamplingInterval] = fmt.Sprintf("must be >= %g", floor)
		case *v*float64(time.Second) > math.MaxInt64:
			rejected[FieldSamplingInterval] = fmt.Sprintf("too large, must be <= %g", float64(math.MaxInt64)/float64(time.Second))
		default:
			next.SamplingInterval = time.Duration(math.Round(*v * float64(time.Second)))
		}
	}
	if v := req.WindowMultiplier; v != nil {
		switch {
		case *v < config.MinWindowMultiplier:
			rejected[FieldWindowMultiplier] = fmt.Sprintf("must be >= %d", config.MinWindowMultiplier)
		case *v > math.MaxInt32:
			rejected[FieldWindowMultiplier] = fmt.Sprintf("too large, must be <= %d", math.MaxInt32)
		default:
			next.WindowMultiplier = int(*v)
		}
	}

	for _, field := range sortedKeys(rejected) {
		c.log.Warn("reconfiguration field rejected, keeping previous value",
			zap.String("field", field), zap.String("reason", rejected[field]))
	}
	if c.metrics != nil {
		c.metrics.ObserveApply(sortedKeys(rejected))
	}

	res := Result{Params: next, Changed: next != c.current}
	if len(rejected) > 0 {
		res.Rejected = rejected
	}
	if !res.Changed {
		return res
	}

	if c.poller != nil {
		if err := c.poller.UpdateMeasurement(next.SamplingInterval, next.TelemetryInterval, next.WindowMultiplier); err != nil {
			c.log.Error("poller rejected measurement update", zap.Error(err))
		}
	}
	if c.scheduler != nil && next.TelemetryInterval != c.current.TelemetryInterval {
		c.scheduler.SetInterval(next.TelemetryInterval)
	}
	c.log.Info("measurement parameters updated",
		zap.Duration("telemetry_interval", next.TelemetryInterval),
		zap.Duration("sampling_interval", next.SamplingInterval),
		zap.Int("window_multiplier", next.WindowMultiplier))
	c.current = next
	return res
}

// ApplyConfig 将热加载的配置文件转换为请求并应用
func (c *Channel) ApplyConfig(cfg *config.Config) Result {
	p := FromConfig(cfg)
	telemetry := int64(p.TelemetryInterval / time.Second)
	sampling := p.SamplingInterval.Seconds()
	multiplier := int64(p.WindowMultiplier)
	return c.Apply(Request{
		TelemetryInterval: &telemetry,
		SamplingInterval:  &sampling,
		WindowMultiplier:  &multiplier,
	})
}

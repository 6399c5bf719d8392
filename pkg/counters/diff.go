package counters

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Source 返回其已知的每个计数器的当前累计值
type Source interface {
	Read() (map[string]uint64, error)
}

// SourceFunc 将函数适配为 Source
type SourceFunc func() (map[string]uint64, error)

func (f SourceFunc) Read() (map[string]uint64, error) { return f() }

// RateRule 为 key 以 Suffix 结尾的差值计算每秒速率，速率 key 将 Suffix 替换为 RateSuffix
type RateRule struct {
	Suffix     string
	RateSuffix string
	Scale      float64
}

// NetRateRules 字节差值换算为 bps，包差值换算为 pps
var NetRateRules = []RateRule{
	{Suffix: "bytes", RateSuffix: "bps", Scale: 8},
	{Suffix: "packets", RateSuffix: "pps", Scale: 1},
}

type Option func(*Engine)

func WithClock(c clockwork.Clock) Option { return func(e *Engine) { e.clock = c } }

func WithRateRules(rules ...RateRule) Option {
	return func(e *Engine) { e.rules = append([]RateRule(nil), rules...) }
}

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

// Engine 对累计计数器的相邻两次读取做差分，非并发安全
type Engine struct {
	name  string
	src   Source
	clock clockwork.Clock
	rules []RateRule
	log   *zap.Logger

	prev   map[string]uint64
	prevAt time.Time
	deltas map[string]uint64
	rates  map[string]float64
	resets []string
}

func NewEngine(name string, src Source, opts ...Option) *Engine {
	e := &Engine{
		name:   name,
		src:    src,
		clock:  clockwork.NewRealClock(),
		log:    zap.NewNop(),
		deltas: map[string]uint64{},
		rates:  map[string]float64{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Step 读取一次数据源。首次成功只记录基线；之后对两次读取都存在的 key 计算差值，
// 值变小视为计数器复位，重新记录基线且不产生差值。读取失败时保持原状态
func (e *Engine) Step() error {
	cur, err := e.src.Read()
	if err != nil {
		return fmt.Errorf("%s: read counters: %w", e.name, err)
	}
	now := e.clock.Now()

	deltas := make(map[string]uint64, len(cur))
	rates := make(map[string]float64)
	var resets []string

	if e.prev != nil {
		elapsed := now.Sub(e.prevAt).Seconds()
		for key, v := range cur {
			p, ok := e.prev[key]
			if !ok {
				continue
			}
			if v < p {
				resets = append(resets, key)
				continue
			}
			d := v - p
			deltas[key] = d
			if elapsed <= 0 {
				continue
			}
			for _, r := range e.rules {
				if strings.HasSuffix(key, r.Suffix) {
					rates[strings.TrimSuffix(key, r.Suffix)+r.RateSuffix] = float64(d) * r.Scale / elapsed
				}
			}
		}
		if len(resets) > 0 {
			sort.Strings(resets)
			e.log.Debug("counter reset detected, rebaselined", zap.String("source", e.name), zap.Strings("keys", resets))
		}
	}

	e.prev = cur
	e.prevAt = now
	e.deltas = deltas
	e.rates = rates
	e.resets = resets
	return nil
}

// Ready 是否已记录基线
func (e *Engine) Ready() bool { return e.prev != nil }

func (e *Engine) Deltas() map[string]uint64 {
	out := make(map[string]uint64, len(e.deltas))
	for k, v := range e.deltas {
		out[k] = v
	}
	return out
}

func (e *Engine) Rates() map[string]float64 {
	out := make(map[string]float64, len(e.rates))
	for k, v := range e.rates {
		out[k] = v
	}
	return out
}

// Load 合并上一区间的差值与速率
func (e *Engine) Load() map[string]any {
	out := make(map[string]any, len(e.deltas)+len(e.rates))
	for k, v := range e.deltas {
		out[k] = v
	}
	for k, v := range e.rates {
		out[k] = v
	}
	return out
}

// TotalCounters 最近一次累计读数，首次 Step 之前为空
func (e *Engine) TotalCounters() map[string]uint64 {
	out := make(map[string]uint64, len(e.prev))
	for k, v := range e.prev {
		out[k] = v
	}
	return out
}

// Resets 上一次 Step 中因复位重新记录基线的 key
func (e *Engine) Resets() []string {
	return append([]string(nil), e.resets...)
}

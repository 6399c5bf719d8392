package collector

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/telemetry-collector/pkg/config"
	"github.com/telemetry-collector/pkg/counters"
	"github.com/telemetry-collector/pkg/logger"
	"github.com/telemetry-collector/pkg/metrics"
)

// NetworkCollector /proc/net/dev 差值与 *_bps / *_pps 速率
type NetworkCollector struct {
	name     string
	stats    *counters.NetStats
	metrics  *metrics.NetworkMetrics
	readings map[string]any
}

func NewNetworkCollector(cfg config.NetworkCollectorConfig, m *metrics.NetworkMetrics, opts ...counters.Option) *NetworkCollector {
	opts = append([]counters.Option{counters.WithLogger(logger.Named("network"))}, opts...)
	return &NetworkCollector{
		name:    "network",
		stats:   counters.NewNetStats(cfg.ProcPath, cfg.Interfaces, cfg.Aliases, opts...),
		metrics: m,
	}
}

func (n *NetworkCollector) Name() string { return n.name }

// Init 记录基线；失败时由后续 Step 冷启动补录
func (n *NetworkCollector) Init() error {
	if err := n.stats.Step(); err != nil {
		return err
	}
	logger.Debug("network baseline recorded", zap.String("name", n.name), zap.Int("counters", len(n.stats.TotalCounters())))
	return nil
}

func (n *NetworkCollector) Step(ctx context.Context) error {
	n.readings = nil
	if err := n.stats.Step(); err != nil {
		return err
	}
	n.readings = n.stats.GetLoad()
	n.export()
	return nil
}

// export 将区间差值累加到 Prometheus 计数器
func (n *NetworkCollector) export() {
	if n.metrics == nil {
		return
	}
	for key, v := range n.readings {
		d, ok := v.(uint64)
		if !ok {
			continue
		}
		switch {
		case strings.HasSuffix(key, "_rx_bytes"):
			n.metrics.ReceiveBytes.WithLabelValues(strings.TrimSuffix(key, "_rx_bytes")).Add(float64(d))
		case strings.HasSuffix(key, "_tx_bytes"):
			n.metrics.TransmitBytes.WithLabelValues(strings.TrimSuffix(key, "_tx_bytes")).Add(float64(d))
		case strings.HasSuffix(key, "_rx_errs"):
			n.metrics.ReceiveErrors.WithLabelValues(strings.TrimSuffix(key, "_rx_errs")).Add(float64(d))
		case strings.HasSuffix(key, "_tx_errs"):
			n.metrics.TransmitErrors.WithLabelValues(strings.TrimSuffix(key, "_tx_errs")).Add(float64(d))
		}
	}
	for _, key := range n.stats.Resets() {
		if i := strings.Index(key, "_rx_"); i > 0 {
			n.metrics.Resets.WithLabelValues(key[:i]).Inc()
		} else if i := strings.Index(key, "_tx_"); i > 0 {
			n.metrics.Resets.WithLabelValues(key[:i]).Inc()
		}
	}
}

func (n *NetworkCollector) Readings() map[string]any { return n.readings }

func (n *NetworkCollector) Close() error { return nil }

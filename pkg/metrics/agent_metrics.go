package metrics

import "github.com/prometheus/client_golang/prometheus"

// NewAgentCollectErrorsTotal 采集器错误累计次数
// 标签 collector: 采集器名称（如 "cpu"、"network"、"m7"）
func (m *MetricFactory) NewAgentCollectErrorsTotal() *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_collect_errors_total",
		Help: "Total collection errors",
	}, []string{"collector"})
	m.reg.MustRegister(c)
	return c
}

// NewAgentCollectDurationSeconds 每个采集器单次 Step 的耗时分布（秒）
//
// 分桶: 1ms ~ 512ms，覆盖 /proc 读取与 sysfs 传感器读取
func (m *MetricFactory) NewAgentCollectDurationSeconds() *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agent_collect_duration_seconds",
		Help:    "Collection duration per collector",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
	}, []string{"collector"})
	m.reg.MustRegister(h)
	return h
}

// CollectorMetrics 调度器为每个采集器记录的耗时与错误
type CollectorMetrics struct {
	Duration *prometheus.HistogramVec
	Errors   *prometheus.CounterVec
}

func (m *MetricFactory) NewCollectorMetrics() *CollectorMetrics {
	return &CollectorMetrics{
		Duration: m.NewAgentCollectDurationSeconds(),
		Errors:   m.NewAgentCollectErrorsTotal(),
	}
}

func (c *CollectorMetrics) ObserveStep(collector string, seconds float64, err error) {
	if c == nil {
		return
	}
	c.Duration.WithLabelValues(collector).Observe(seconds)
	if err != nil {
		c.Errors.WithLabelValues(collector).Inc()
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// TelemetryMetrics 聚合调度器自身指标
type TelemetryMetrics struct {
	Published   prometheus.Counter
	Aggregation prometheus.Histogram
}

func (m *MetricFactory) NewTelemetryMetrics() *TelemetryMetrics {
	published := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_publish_total",
		Help: "Snapshots published",
	})
	aggregation := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "telemetry_aggregation_duration_seconds",
		Help:    "Time spent stepping collectors, merging and encoding one snapshot",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	m.reg.MustRegister(published, aggregation)
	return &TelemetryMetrics{Published: published, Aggregation: aggregation}
}

// PollerMetrics 寄存器轮询器指标
type PollerMetrics struct {
	CoreLoad   *prometheus.GaugeVec
	Faults     prometheus.Counter
	ReadErrors *prometheus.CounterVec
}

func (m *MetricFactory) NewPollerMetrics() *PollerMetrics {
	load := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "poller_core_utilization_percent",
		Help: "Rolling-window utilization per monitored core",
	}, []string{"core"})
	faults := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poller_faults_total",
		Help: "Register poller stops caused by invalid register values",
	})
	readErrs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "poller_read_errors_total",
		Help: "Status register reads that failed; the tick is skipped",
	}, []string{"core"})
	m.reg.MustRegister(load, faults, readErrs)
	return &PollerMetrics{CoreLoad: load, Faults: faults, ReadErrors: readErrs}
}

func (p *PollerMetrics) SetCoreLoad(core string, percent float64) {
	p.CoreLoad.WithLabelValues(core).Set(percent)
}

func (p *PollerMetrics) DeleteCoreLoad(core string) {
	p.CoreLoad.DeleteLabelValues(core)
}

func (p *PollerMetrics) IncFault() { p.Faults.Inc() }

func (p *PollerMetrics) IncReadError(core string) { p.ReadErrors.WithLabelValues(core).Inc() }

// ReconfigMetrics 运行时重配置指标
type ReconfigMetrics struct {
	Requests       prometheus.Counter
	RejectedFields *prometheus.CounterVec
}

func (m *MetricFactory) NewReconfigMetrics() *ReconfigMetrics {
	requests := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconfig_requests_total",
		Help: "Reconfiguration requests applied",
	})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconfig_rejected_fields_total",
		Help: "Reconfiguration fields rejected by validation",
	}, []string{"field"})
	m.reg.MustRegister(requests, rejected)
	return &ReconfigMetrics{Requests: requests, RejectedFields: rejected}
}

func (r *ReconfigMetrics) ObserveApply(rejected []string) {
	r.Requests.Inc()
	for _, f := range rejected {
		r.RejectedFields.WithLabelValues(f).Inc()
	}
}

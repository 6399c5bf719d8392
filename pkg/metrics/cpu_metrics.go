package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NewCPUUsagePercent 每个核心的忙碌占比（100 - idle）
func (m *MetricFactory) NewCPUUsagePercent() *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "CPU busy percentage over the last telemetry interval",
	},
		[]string{"cpu"},
	)
	m.reg.MustRegister(gv)
	return gv
}

// NewCPUUsageModePercent 按时间片（usermode, kernelmode, idle 等）划分的使用率
func (m *MetricFactory) NewCPUUsageModePercent() *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cpu_usage_mode_percent",
			Help: "CPU time share by mode over the last telemetry interval",
		},
		[]string{"cpu", "mode"},
	)
	m.reg.MustRegister(gv)
	return gv
}

// CPUMetrics cpu 采集器持有的指标
type CPUMetrics struct {
	Usage     *prometheus.GaugeVec
	UsageMode *prometheus.GaugeVec
}

func (m *MetricFactory) NewCPUMetrics() *CPUMetrics {
	return &CPUMetrics{
		Usage:     m.NewCPUUsagePercent(),
		UsageMode: m.NewCPUUsageModePercent(),
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// -------------------------- 网络指标创建方法（按区间差值累加） --------------------------
func (f *MetricFactory) NewNetworkTransmitBytesTotal() *prometheus.CounterVec {
	return promauto.With(f.reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "system_network_transmit_bytes_total",
			Help: "Total bytes transmitted over the network interface since the agent started",
		},
		[]string{"interface"},
	)
}

func (f *MetricFactory) NewNetworkReceiveBytesTotal() *prometheus.CounterVec {
	return promauto.With(f.reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "system_network_receive_bytes_total",
			Help: "Total bytes received over the network interface since the agent started",
		},
		[]string{"interface"},
	)
}

func (f *MetricFactory) NewNetworkTransmitErrorsTotal() *prometheus.CounterVec {
	return promauto.With(f.reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "system_network_transmit_errors_total",
			Help: "Total transmit errors over the network interface since the agent started",
		},
		[]string{"interface"},
	)
}

func (f *MetricFactory) NewNetworkReceiveErrorsTotal() *prometheus.CounterVec {
	return promauto.With(f.reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "system_network_receive_errors_total",
			Help: "Total receive errors over the network interface since the agent started",
		},
		[]string{"interface"},
	)
}

func (f *MetricFactory) NewNetworkCounterResetsTotal() *prometheus.CounterVec {
	return promauto.With(f.reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "system_network_counter_resets_total",
			Help: "Interface counters observed going backwards and rebaselined",
		},
		[]string{"interface"},
	)
}

// NetworkMetrics network 采集器持有的指标
type NetworkMetrics struct {
	TransmitBytes  *prometheus.CounterVec
	ReceiveBytes   *prometheus.CounterVec
	TransmitErrors *prometheus.CounterVec
	ReceiveErrors  *prometheus.CounterVec
	Resets         *prometheus.CounterVec
}

func (f *MetricFactory) NewNetworkMetrics() *NetworkMetrics {
	return &NetworkMetrics{
		TransmitBytes:  f.NewNetworkTransmitBytesTotal(),
		ReceiveBytes:   f.NewNetworkReceiveBytesTotal(),
		TransmitErrors: f.NewNetworkTransmitErrorsTotal(),
		ReceiveErrors:  f.NewNetworkReceiveErrorsTotal(),
		Resets:         f.NewNetworkCounterResetsTotal(),
	}
}

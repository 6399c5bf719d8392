package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/telemetry-collector/pkg/snapshot"
)

// SnapshotExporter 将最新快照中的每个数值统计导出为 telemetry_stat{name="<key>"}，跳过字符串元数据
type SnapshotExporter struct {
	latest func() *snapshot.Snapshot
	stat   *prometheus.Desc
	seq    *prometheus.Desc
}

func NewSnapshotExporter(latest func() *snapshot.Snapshot) *SnapshotExporter {
	return &SnapshotExporter{
		latest: latest,
		stat: prometheus.NewDesc("telemetry_stat",
			"Latest published telemetry value by snapshot key", []string{"name"}, nil),
		seq: prometheus.NewDesc("telemetry_snapshot_sequence",
			"Sequence number of the latest published snapshot", nil, nil),
	}
}

// RegisterSnapshotExporter 注册快照导出器
func (m *MetricFactory) RegisterSnapshotExporter(latest func() *snapshot.Snapshot) *SnapshotExporter {
	e := NewSnapshotExporter(latest)
	m.reg.MustRegister(e)
	return e
}

func (e *SnapshotExporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.stat
	ch <- e.seq
}

func (e *SnapshotExporter) Collect(ch chan<- prometheus.Metric) {
	snap := e.latest()
	if snap == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(e.seq, prometheus.CounterValue, float64(snap.Seq))
	for _, key := range snap.Keys() {
		v, _ := snap.Get(key)
		f, ok := snapshot.Numeric(v)
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(e.stat, prometheus.GaugeValue, f, key)
	}
}

package registers

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/telemetry-collector/pkg/aggregator"
	"github.com/telemetry-collector/pkg/collector"
	"github.com/telemetry-collector/pkg/config"
	"github.com/telemetry-collector/pkg/logger"
	"github.com/telemetry-collector/pkg/metrics"
	"github.com/telemetry-collector/pkg/poller"
)

type Module struct {
	Enabled bool
	Name    string
	NewFunc func() collector.Collector
}

// RegisterCollectors 采集器注册统一入口：开关控制 + 构造函数
// 新增数据源只需在 modules 列表添加一条；注册顺序即快照合并顺序。
// m7 为 nil 表示未启用寄存器轮询。
func RegisterCollectors(agent aggregator.Agent, cfg *config.Config, metricFactory *metrics.MetricFactory, m7 *collector.M7Collector) ([]collector.Collector, error) {
	cc := cfg.Telemetry.Collectors

	modu := []Module{
		{
			Enabled: cc.CPU.Enable,
			Name:    "cpu",
			NewFunc: func() collector.Collector {
				return collector.NewCPUCollector(cc.CPU.ProcPath, metricFactory.NewCPUMetrics())
			},
		},
		{
			Enabled: cc.Network.Enable,
			Name:    "network",
			NewFunc: func() collector.Collector {
				return collector.NewNetworkCollector(cc.Network, metricFactory.NewNetworkMetrics())
			},
		},
		{
			Enabled: cc.Memory.Enable,
			Name:    "memory",
			NewFunc: func() collector.Collector { return collector.NewMemoryCollector() },
		},
		{
			Enabled: m7 != nil,
			Name:    "m7",
			NewFunc: func() collector.Collector { return m7 },
		},
		{
			Enabled: cc.Temperature.Enable,
			Name:    "temperature",
			NewFunc: func() collector.Collector { return collector.NewTemperatureCollector(cc.Temperature.Aliases) },
		},
		{
			Enabled: cc.HealthMonitor.Enable,
			Name:    "health_monitor",
			NewFunc: func() collector.Collector { return collector.NewHealthMonitorCollector(cc.HealthMonitor.Device) },
		},
		{
			Enabled: cc.IDPS.Enable,
			Name:    "idps",
			NewFunc: func() collector.Collector { return collector.NewIDPSCollector(cc.IDPS.Device) },
		},
		{
			Enabled: cc.Load.Enable,
			Name:    "load",
			NewFunc: func() collector.Collector { return collector.NewLoadCollector() },
		},
	}

	var registered []collector.Collector
	for _, m := range modu {
		if !m.Enabled {
			logger.Debug("collector disabled", zap.String("name", m.Name))
			continue
		}
		c := m.NewFunc()
		if err := agent.Register(c); err != nil {
			return nil, err
		}
		registered = append(registered, c)
		logger.Debug("registered collector", zap.String("name", m.Name))
	}
	if len(registered) == 0 {
		return nil, fmt.Errorf("no collectors enabled; check telemetry.collectors and poller.enable")
	}

	names := make([]string, 0, len(registered))
	for _, c := range registered {
		names = append(names, c.Name())
	}
	logger.Info("all enabled collectors registered", zap.Strings("enabled_collectors", names))
	return registered, nil
}

// pollerCores 将配置中的寄存器表转换为轮询器核心列表
func pollerCores(cfg config.PollerConfig) []poller.Core {
	cores := make([]poller.Core, 0, len(cfg.Cores))
	for _, c := range cfg.Cores {
		cores = append(cores, poller.Core{Name: c.Name, Address: c.Address})
	}
	return cores
}

package registers

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/telemetry-collector/pkg/aggregator"
	"github.com/telemetry-collector/pkg/collector"
	"github.com/telemetry-collector/pkg/config"
	"github.com/telemetry-collector/pkg/logger"
	"github.com/telemetry-collector/pkg/metrics"
	"github.com/telemetry-collector/pkg/poller"
	"github.com/telemetry-collector/pkg/reconfig"
)

// Runtime InitPromRegistry 返回值
// Registry  Prometheus 指标注册器，用于 /metrics 暴露或单元测试
// Agent     聚合调度器，后台周期性调用已注册的采集器并发布快照
// Reconfig  运行时重配置通道（HTTP 与配置文件热加载共用）
// Poller    寄存器轮询器，未启用时为 nil
type Runtime struct {
	Registry *prometheus.Registry
	Agent    *aggregator.Scheduler
	Reconfig *reconfig.Channel
	Poller   *poller.Poller
}

type options struct {
	reader poller.RegisterReader
	clock  clockwork.Clock
}

type Option func(*options)

// WithRegisterReader 替换 /dev/mem 寄存器读取器（测试注入 poller.MemReader）
func WithRegisterReader(r poller.RegisterReader) Option {
	return func(o *options) { o.reader = r }
}

// WithClock 两个循环共用的时钟
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// InitPromRegistry 构建指标注册器、轮询器、采集器、聚合调度器与重配置通道，并启动调度
func InitPromRegistry(ctx context.Context, enableProcess bool, cfg *config.Config, opts ...Option) (*Runtime, error) {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	// 初始化Prometheus指标注册器（禁用Go指标）
	promReg := prometheus.NewRegistry()
	if enableProcess {
		promReg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	}
	metricFactory := metrics.NewMetricFactory(metrics.NewPromRegistry(promReg))

	// 寄存器窗口（仅在启用轮询时打开设备）
	var reader poller.RegisterReader
	if cfg.Poller.Enable {
		if o.reader != nil {
			reader = o.reader
		} else {
			dm, err := poller.OpenDevMem(cfg.Poller.Device)
			if err != nil {
				return nil, fmt.Errorf("open register device: %w", err)
			}
			reader = dm
		}
	}

	var (
		p  *poller.Poller
		m7 *collector.M7Collector
	)
	if reader != nil {
		var err error
		p, err = poller.New(reader, poller.Options{
			Cores:             pollerCores(cfg.Poller),
			Active:            cfg.Poller.CoreActive,
			WFI:               cfg.Poller.CoreWFI,
			Inactive:          cfg.Poller.CoreInactive,
			SamplingInterval:  cfg.Poller.SamplingInterval,
			TelemetryInterval: cfg.Telemetry.Interval,
			WindowMultiplier:  cfg.Poller.WindowMultiplier,
			Clock:             o.clock,
			Logger:            logger.Named("m7-poller"),
			Metrics:           metricFactory.NewPollerMetrics(),
		})
		if err != nil {
			_ = reader.Close()
			return nil, fmt.Errorf("create register poller: %w", err)
		}
		m7 = collector.NewM7Collector(p, reader)
	}

	platform := collector.NewPlatform(ctx, cfg.Telemetry.Device, reader, cfg.Poller.DeviceIDRegister)

	agent := aggregator.New(aggregator.Options{
		Interval:   cfg.Telemetry.Interval,
		Encoding:   cfg.Telemetry.Encoding,
		Verbose:    cfg.Telemetry.Verbose,
		Clock:      o.clock,
		Metadata:   platform.Metadata,
		Telemetry:  metricFactory.NewTelemetryMetrics(),
		Collectors: metricFactory.NewCollectorMetrics(),
	})

	logger.Debug("collector enable status",
		zap.Bool("cpu_enable", cfg.Telemetry.Collectors.CPU.Enable),
		zap.Bool("network_enable", cfg.Telemetry.Collectors.Network.Enable),
		zap.Bool("memory_enable", cfg.Telemetry.Collectors.Memory.Enable),
		zap.Bool("temperature_enable", cfg.Telemetry.Collectors.Temperature.Enable),
		zap.Bool("health_monitor_enable", cfg.Telemetry.Collectors.HealthMonitor.Enable),
		zap.Bool("idps_enable", cfg.Telemetry.Collectors.IDPS.Enable),
		zap.Bool("load_enable", cfg.Telemetry.Collectors.Load.Enable),
		zap.Bool("poller_enable", cfg.Poller.Enable),
	)
	if _, err := RegisterCollectors(agent, cfg, metricFactory, m7); err != nil {
		logger.Error("failed to register collectors", zap.Error(err))
		if reader != nil {
			_ = reader.Close()
		}
		return nil, err
	}

	metricFactory.RegisterSnapshotExporter(agent.GetSnapshot)

	// 避免 typed-nil：未启用轮询时不向通道传入 *poller.Poller(nil)
	var updater reconfig.PollerUpdater
	if p != nil {
		updater = p
	}
	channel := reconfig.New(reconfig.FromConfig(cfg), reconfig.Options{
		Poller:    updater,
		Scheduler: agent,
		Metrics:   metricFactory.NewReconfigMetrics(),
	})

	agent.Start(ctx)

	return &Runtime{
		Registry: promReg,
		Agent:    agent,
		Reconfig: channel,
		Poller:   p,
	}, nil
}

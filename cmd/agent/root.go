package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/telemetry-collector/cmd/server"
	"github.com/telemetry-collector/pkg/config"
	"github.com/telemetry-collector/pkg/logger"
	"github.com/telemetry-collector/pkg/registers"
	"github.com/telemetry-collector/pkg/signal"
	"github.com/telemetry-collector/pkg/util"
)

const (
	projectName     = "telemetry"
	bannerColor     = "ColorBlue"
	shutdownTimeout = 10 * time.Second
	enableProcess   = true
)

var (
	cfgFile   string
	GlobalCfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "telemetry-collector",
	Short:        "Board telemetry collector: core utilization, CPU/network counters, memory and sensors",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfigWithCli(cmd)
		if err != nil {
			return fmt.Errorf("load config (check --config / -c): %w", err)
		}
		GlobalCfg = cfg
		return runServer(cmd, cfg)
	},
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径（YAML，修改后热加载测量参数）")
	// 注册分组 flag
	initServerFlags(rootCmd)
	initTelemetryFlags(rootCmd)
	initPollerFlags(rootCmd)
	initLogFlags(rootCmd)
}

func runServer(cmd *cobra.Command, cfg *config.Config) error {
	util.PrintBanner(projectName, bannerColor)

	initLogger, err := logger.InitLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("日志初始化失败: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// 主程序相关日志统一使用 complete
	logger.SetDefaultCollector("complete")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	rt, err := registers.InitPromRegistry(ctx, enableProcess, cfg)
	if err != nil {
		return fmt.Errorf("init telemetry runtime: %w", err)
	}

	httpServer := server.NewHTTPServer(cfg, initLogger, rt.Registry, rt.Agent, rt.Reconfig)
	serveErr := httpServer.Start()
	go func() {
		if err, ok := <-serveErr; ok && err != nil {
			cancel()
		}
	}()

	// 配置文件热加载：只有测量参数在运行时生效
	err = config.Watch(cmd, func(newCfg *config.Config, err error) {
		if err != nil {
			logger.Warn("config reload rejected, keeping previous values", zap.Error(err))
			return
		}
		res := rt.Reconfig.ApplyConfig(newCfg)
		logger.Info("config reloaded", zap.Bool("changed", res.Changed), zap.Strings("rejected", res.RejectedFields()))
	})
	if err != nil && !errors.Is(err, config.ErrNoConfigFile) {
		logger.Warn("config watch disabled", zap.Error(err))
	}

	logger.Info("telemetry collector started",
		zap.String("listen_addr", cfg.Server.Addr),
		zap.Duration("interval", cfg.Telemetry.Interval),
		zap.String("encoding", cfg.Telemetry.Encoding))

	// 关闭顺序：HTTP服务 -> 聚合调度器（及其采集器、轮询器）
	return signal.WaitForShutdown(ctx, initLogger, shutdownTimeout, func(ctx context.Context) error {
		return multierr.Append(httpServer.Shutdown(ctx), rt.Agent.Shutdown(ctx))
	})
}

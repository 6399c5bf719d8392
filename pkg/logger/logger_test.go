package logger_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/telemetry-collector/pkg/config"
	"github.com/telemetry-collector/pkg/logger"
)

// mockFatalHook 捕获 fatal 日志（不退出进程）
type mockFatalHook struct {
	called bool
}

func (h *mockFatalHook) Hook(e zapcore.Entry) error {
	if e.Level == zapcore.FatalLevel {
		h.called = true
	}
	return nil
}

func TestLoggerLevels(t *testing.T) {
	logger.ResetForTest()
	t.Cleanup(logger.ResetForTest)
	dir := t.TempDir()
	cfg := &config.ZapLogConfig{
		Level:   "debug",
		Format:  "console",
		Path:    dir,
		MaxSize: 10,
		MaxAge:  1,
	}

	_, err := logger.InitLogger(cfg)
	require.NoError(t, err)

	logger.Debug("debug msg")
	logger.Info("info msg", zap.String("k", "v"))
	logger.Warn("warn msg")
	logger.Error("error msg")

	assert.Panics(t, func() { logger.Panic("panic msg") })

	// Fatal 测试（WriteThenPanic 替代 os.Exit）
	hook := &mockFatalHook{}
	l := logger.GetGlobalLogger().WithOptions(zap.Hooks(hook.Hook), zap.WithFatalHook(zapcore.WriteThenPanic))
	assert.Panics(t, func() { l.Fatal("fatal msg") })
	assert.True(t, hook.called, "fatal hook was not triggered")

	_ = logger.Sync()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "rotated log file should be created")
}

func TestInitKeepsByFileCount(t *testing.T) {
	logger.ResetForTest()
	t.Cleanup(logger.ResetForTest)
	dir := t.TempDir()

	// max_backup 与 max_age 同时配置时按文件个数清理
	_, err := logger.InitLogger(&config.ZapLogConfig{
		Level:     "info",
		Format:    "json",
		Path:      dir,
		MaxSize:   1,
		MaxBackup: 5,
		MaxAge:    7,
	})
	require.NoError(t, err)
	logger.Info("kept by count")
	_ = logger.Sync()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestNamedCarriesCollectorField(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger.SetLogger(zap.New(core))

	logger.Named("m7-poller").Info("window reset")
	logger.SetDefaultCollector("complete")
	logger.Info("aggregation done")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "m7-poller", entries[0].ContextMap()["collector"])
	assert.Equal(t, "complete", entries[1].ContextMap()["collector"])
	assert.Contains(t, entries[1].ContextMap(), "goid")
	assert.Equal(t, "complete", logger.GetDefaultCollector())
}

func TestGoroutineIDInField(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger.SetLogger(zap.New(core))

	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("from worker")
	}()
	<-done
	logger.Info("from test")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.NotEqual(t, entries[0].ContextMap()["goid"], entries[1].ContextMap()["goid"])
	assert.NotEqual(t, "0", entries[1].ContextMap()["goid"])
}

package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/telemetry-collector/pkg/config"
)

type Logger = zap.Logger

var (
	// baseLogger stays a no-op logger until Init succeeds, so packages
	// that log from library code do not need a log directory in tests.
	baseLogger    = zap.NewNop()
	defaultFields = struct {
		Collector string
	}{}
	loggerInitOnce sync.Once
	mu             sync.RWMutex
)

// parseLevel 将配置中的级别字符串映射为 zap 级别，未知值回退到 info
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "dbg", "debug":
		return zapcore.DebugLevel
	case "war", "warn":
		return zapcore.WarnLevel
	case "err", "error":
		return zapcore.ErrorLevel
	case "dpanic":
		return zapcore.DPanicLevel
	case "pan", "panic":
		return zapcore.PanicLevel
	case "fat", "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// rotationOptions 按天及按大小滚动；max_backup > 0 时按文件个数清理，否则按 max_age 天数。
// rotatelogs 不允许两种清理方式同时设置
func rotationOptions(cfg config.ZapLogConfig) []rotatelogs.Option {
	opts := []rotatelogs.Option{
		rotatelogs.WithRotationTime(24 * time.Hour),
		rotatelogs.WithRotationSize(int64(cfg.MaxSize) * 1024 * 1024),
	}
	if cfg.MaxBackup > 0 {
		return append(opts, rotatelogs.WithRotationCount(uint(cfg.MaxBackup)))
	}
	maxAge := time.Duration(cfg.MaxAge) * 24 * time.Hour
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	return append(opts, rotatelogs.WithMaxAge(maxAge))
}

// Init 初始化全局日志（仅执行一次）：控制台彩色输出 + JSON 文件按天滚动
func Init(cfg config.ZapLogConfig) error {
	var err error
	loggerInitOnce.Do(func() {
		level := parseLevel(cfg.Level)

		if err = os.MkdirAll(cfg.Path, 0755); err != nil {
			return
		}

		writer, wErr := rotatelogs.New(
			filepath.Join(cfg.Path, "telemetry-%Y%m%d.log"),
			rotationOptions(cfg)...,
		)
		if wErr != nil {
			err = wErr
			return
		}

		// 控制台彩色时间
		customTimeEncoderConsole := func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(fmt.Sprintf("\033[34m%s\033[0m", t.Format("2006-01-02 15:04:05.000 -07:00")))
		}

		// JSON 日志纯文本时间
		customTimeEncoderJSON := func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.Format("2006-01-02 15:04:05.000 -07:00"))
		}

		coloredLevelEncoder := func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			var levelStr string
			switch level {
			case zapcore.DebugLevel:
				levelStr = "\033[36mDEBUG\033[0m"
			case zapcore.InfoLevel:
				levelStr = "\033[32mINFO \033[0m"
			case zapcore.WarnLevel:
				levelStr = "\033[33mWARN \033[0m"
			case zapcore.ErrorLevel:
				levelStr = "\033[31mERROR\033[0m"
			case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
				levelStr = "\033[35m" + level.CapitalString() + "\033[0m"
			default:
				levelStr = "UNK  "
			}
			enc.AppendString(levelStr)
		}

		consoleEncoderCfg := zap.NewDevelopmentEncoderConfig()
		consoleEncoderCfg.ConsoleSeparator = " "
		consoleEncoderCfg.EncodeLevel = coloredLevelEncoder
		consoleEncoderCfg.EncodeTime = customTimeEncoderConsole

		// Caller 两级路径
		consoleEncoderCfg.EncodeCaller = func(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
			rel := filepath.Join(filepath.Base(filepath.Dir(c.File)), filepath.Base(c.File))
			enc.AppendString(fmt.Sprintf("%s:%d", rel, c.Line))
		}

		jsonCfg := zap.NewProductionEncoderConfig()
		jsonCfg.TimeKey = "timestamp"
		jsonCfg.EncodeTime = customTimeEncoderJSON
		jsonCfg.EncodeLevel = zapcore.LowercaseLevelEncoder

		var stdoutEncoder zapcore.Encoder
		if cfg.Format == "json" {
			stdoutEncoder = zapcore.NewJSONEncoder(jsonCfg)
		} else {
			stdoutEncoder = zapcore.NewConsoleEncoder(consoleEncoderCfg)
		}

		core := zapcore.NewTee(
			zapcore.NewCore(stdoutEncoder, zapcore.AddSync(os.Stdout), level),
			zapcore.NewCore(zapcore.NewJSONEncoder(jsonCfg), zapcore.AddSync(writer), level),
		)

		mu.Lock()
		baseLogger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
		mu.Unlock()
	})
	return err
}

// InitLogger 初始化并返回全局日志实例
func InitLogger(cfg *config.ZapLogConfig) (*Logger, error) {
	if err := Init(*cfg); err != nil {
		return nil, err
	}
	return GetLogger(), nil
}

// SetLogger 替换全局日志实例（测试中注入 zaptest/observer）
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	baseLogger = l
}

func SetDefaultCollector(collector string) {
	mu.Lock()
	defer mu.Unlock()
	defaultFields.Collector = collector
}

func GetDefaultCollector() string {
	mu.RLock()
	defer mu.RUnlock()
	return defaultFields.Collector
}

func defaultFieldsFor(collector string) []zapcore.Field {
	if collector == "" {
		collector = GetDefaultCollector()
	}
	return []zapcore.Field{
		zap.String("collector", collector),
		zap.String("goid", strconv.FormatUint(goroutineID(), 10)),
	}
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return baseLogger
}

func log(level zapcore.Level, collector string, msg string, fields ...zapcore.Field) {
	l := current().WithOptions(zap.AddCallerSkip(1))
	all := append(defaultFieldsFor(collector), fields...)

	switch level {
	case zapcore.DebugLevel:
		l.Debug(msg, all...)
	case zapcore.InfoLevel:
		l.Info(msg, all...)
	case zapcore.WarnLevel:
		l.Warn(msg, all...)
	case zapcore.ErrorLevel:
		l.Error(msg, all...)
	case zapcore.PanicLevel:
		l.Panic(msg, all...)
	case zapcore.FatalLevel:
		l.Fatal(msg, all...)
	}
}

func Debug(msg string, fields ...zapcore.Field) { log(zapcore.DebugLevel, "", msg, fields...) }
func Info(msg string, fields ...zapcore.Field)  { log(zapcore.InfoLevel, "", msg, fields...) }
func Warn(msg string, fields ...zapcore.Field)  { log(zapcore.WarnLevel, "", msg, fields...) }
func Error(msg string, fields ...zapcore.Field) { log(zapcore.ErrorLevel, "", msg, fields...) }
func Panic(msg string, fields ...zapcore.Field) { log(zapcore.PanicLevel, "", msg, fields...) }
func Fatal(msg string, fields ...zapcore.Field) { log(zapcore.FatalLevel, "", msg, fields...) }

// Named 返回带固定 collector 字段的子日志（供各采集器、轮询器持有）
func Named(collector string) *zap.Logger {
	return current().WithOptions(zap.AddCallerSkip(-1)).With(zap.String("collector", collector))
}

func Sync() error {
	return current().Sync()
}

func GetLogger() *zap.Logger {
	return current()
}

// GetGlobalLogger GetLogger 的别名
func GetGlobalLogger() *zap.Logger {
	return current()
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var valid = validator.New()

// Bounds shared by static validation and runtime reconfiguration.
const (
	MinTelemetryInterval = time.Second
	MaxTelemetryInterval = 3600 * time.Second
	MinSamplingInterval  = 100 * time.Microsecond
	MinWindowMultiplier  = 1
)

// ErrNoConfigFile 未指定配置文件时无法监听变更
var ErrNoConfigFile = errors.New("no config file to watch")

// Config 全局配置结构体（聚合所有核心模块）
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server" comment:"HTTP服务配置"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry" comment:"遥测聚合配置"`
	Poller    PollerConfig    `yaml:"poller" mapstructure:"poller" comment:"M7 核心状态寄存器轮询配置"`
	Log       ZapLogConfig    `yaml:"log" mapstructure:"log" comment:"日志配置"`
}

// ServerConfig HTTP服务配置（超时统一为time.Duration，支持"30s"解析）
type ServerConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr" env:"HTTP_ADDR" validate:"required,hostname_port" comment:"HTTP监听地址（格式：ip:port）"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" env:"HTTP_READ_TIMEOUT" validate:"required,gt=0" comment:"读取超时时间（如30s）"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" env:"HTTP_WRITE_TIMEOUT" validate:"required,gt=0" comment:"写入超时时间（如30s）"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" validate:"required,gt=0" comment:"空闲连接超时时间（如60s）"`
}

// TelemetryConfig 快照聚合与发布配置
type TelemetryConfig struct {
	Interval   time.Duration   `yaml:"interval" mapstructure:"interval" env:"TELEMETRY_INTERVAL" validate:"required,gt=0" comment:"快照发布间隔（整数秒）" default:"1s"`
	Device     string          `yaml:"device" mapstructure:"device" env:"TELEMETRY_DEVICE" comment:"设备名称（为空时取主机名前5个字符）"`
	Encoding   string          `yaml:"encoding" mapstructure:"encoding" env:"TELEMETRY_ENCODING" validate:"required,oneof=json cbor" comment:"快照编码（json/cbor）" default:"json"`
	Verbose    bool            `yaml:"verbose" mapstructure:"verbose" env:"TELEMETRY_VERBOSE" comment:"每次发布时以debug级别打印快照"`
	Collectors CollectorConfig `yaml:"collectors" mapstructure:"collectors" comment:"各类数据源采集器配置"`
}

// CollectorConfig 多数据源采集器配置
type CollectorConfig struct {
	CPU           CPUCollectorConfig           `yaml:"cpu" mapstructure:"cpu"`
	Network       NetworkCollectorConfig       `yaml:"network" mapstructure:"network"`
	Memory        MemoryCollectorConfig        `yaml:"memory" mapstructure:"memory"`
	Temperature   TemperatureCollectorConfig   `yaml:"temperature" mapstructure:"temperature"`
	HealthMonitor HealthMonitorCollectorConfig `yaml:"health_monitor" mapstructure:"health_monitor"`
	IDPS          IDPSCollectorConfig          `yaml:"idps" mapstructure:"idps"`
	Load          LoadCollectorConfig          `yaml:"load" mapstructure:"load"`
}

// CPUCollectorConfig /proc/stat 采集配置
type CPUCollectorConfig struct {
	Enable   bool   `yaml:"enable" mapstructure:"enable" env:"COLLECTOR_CPU_ENABLE" default:"true"`
	ProcPath string `yaml:"proc_path" mapstructure:"proc_path" validate:"required" default:"/proc/stat"`
}

// NetworkCollectorConfig /proc/net/dev 采集配置
type NetworkCollectorConfig struct {
	Enable     bool              `yaml:"enable" mapstructure:"enable" env:"COLLECTOR_NETWORK_ENABLE" default:"true"`
	ProcPath   string            `yaml:"proc_path" mapstructure:"proc_path" validate:"required" default:"/proc/net/dev"`
	Interfaces []string          `yaml:"interfaces" mapstructure:"interfaces" comment:"监控的网卡列表，为空表示全部"`
	Aliases    map[string]string `yaml:"aliases" mapstructure:"aliases" comment:"网卡别名（如 eth0 -> pfe0）"`
}

// MemoryCollectorConfig 内存采集配置
type MemoryCollectorConfig struct {
	Enable bool `yaml:"enable" mapstructure:"enable" env:"COLLECTOR_MEMORY_ENABLE" default:"true"`
}

// TemperatureCollectorConfig 温度传感器采集配置
type TemperatureCollectorConfig struct {
	Enable  bool              `yaml:"enable" mapstructure:"enable" env:"COLLECTOR_TEMPERATURE_ENABLE" default:"false"`
	Aliases map[string]string `yaml:"aliases" mapstructure:"aliases" comment:"传感器 key 到快照字段名的映射"`
}

// HealthMonitorCollectorConfig 电压健康监控采集配置
type HealthMonitorCollectorConfig struct {
	Enable bool   `yaml:"enable" mapstructure:"enable" env:"COLLECTOR_HMON_ENABLE" default:"false"`
	Device string `yaml:"device" mapstructure:"device" default:"/dev/ipcfshm/M7_0/health_mon"`
}

// IDPSCollectorConfig CAN 入侵检测统计采集配置
type IDPSCollectorConfig struct {
	Enable bool   `yaml:"enable" mapstructure:"enable" env:"COLLECTOR_IDPS_ENABLE" default:"false"`
	Device string `yaml:"device" mapstructure:"device" default:"/dev/ipcfshm/M7_0/idps_statistics"`
}

// LoadCollectorConfig 系统负载采集配置
type LoadCollectorConfig struct {
	Enable bool `yaml:"enable" mapstructure:"enable" env:"COLLECTOR_LOAD_ENABLE" default:"false"`
}

// PollerConfig M7 核心状态寄存器轮询配置
type PollerConfig struct {
	Enable           bool           `yaml:"enable" mapstructure:"enable" env:"POLLER_ENABLE" default:"false"`
	Device           string         `yaml:"device" mapstructure:"device" env:"POLLER_DEVICE" default:"/dev/mem"`
	SamplingInterval time.Duration  `yaml:"sampling_interval" mapstructure:"sampling_interval" env:"POLLER_SAMPLING_INTERVAL" validate:"required,gt=0" default:"100ms"`
	WindowMultiplier int            `yaml:"window_multiplier" mapstructure:"window_multiplier" env:"POLLER_WINDOW_MULTIPLIER" validate:"required,gte=1" default:"1"`
	CoreActive       uint32         `yaml:"core_active" mapstructure:"core_active" default:"0x1"`
	CoreWFI          uint32         `yaml:"core_wfi" mapstructure:"core_wfi" default:"0x80000001"`
	CoreInactive     uint32         `yaml:"core_inactive" mapstructure:"core_inactive" default:"0x0"`
	Cores            []CoreRegister `yaml:"cores" mapstructure:"cores" validate:"dive"`
	DeviceIDRegister uint64         `yaml:"device_id_register" mapstructure:"device_id_register" comment:"板卡 UID 寄存器地址，0 表示不读取"`
}

// CoreRegister 单个核心的状态寄存器
type CoreRegister struct {
	Name    string `yaml:"name" mapstructure:"name" validate:"required"`
	Address uint64 `yaml:"address" mapstructure:"address" validate:"required"`
}

// ZapLogConfig 日志配置
type ZapLogConfig struct {
	Level     string `yaml:"level" mapstructure:"level" env:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal" comment:"日志级别" default:"info"`
	Format    string `yaml:"format" mapstructure:"format" env:"LOG_FORMAT" validate:"required,oneof=json console" comment:"日志格式（json/console）" default:"console"`
	Path      string `yaml:"path" mapstructure:"path" env:"LOG_PATH" validate:"required" comment:"日志存储路径" default:"./logs"`
	MaxSize   int    `yaml:"max_size" mapstructure:"max_size" env:"LOG_MAX_SIZE" validate:"required,gt=0" comment:"单个日志文件最大大小（MB）" default:"100"`
	MaxBackup int    `yaml:"max_backup" mapstructure:"max_backup" env:"LOG_MAX_BACKUP" validate:"gte=0" comment:"保留的日志文件个数，大于 0 时取代 max_age 清理" default:"0"`
	MaxAge    int    `yaml:"max_age" mapstructure:"max_age" env:"LOG_MAX_AGE" validate:"gte=0" comment:"日志文件最大保存天数" default:"7"`
}

// DefaultCores S32G M7 核心状态寄存器地址
func DefaultCores() []CoreRegister {
	return []CoreRegister{
		{Name: "m7_0", Address: 0x40088148},
		{Name: "m7_1", Address: 0x40088168},
		{Name: "m7_2", Address: 0x40088188},
	}
}

// NewDefaultConfig 创建默认配置（切片与 map 字段留空，解码后由 applyDefaults 兜底）
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "0.0.0.0:8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Interval: time.Second,
			Encoding: "json",
			Collectors: CollectorConfig{
				CPU:           CPUCollectorConfig{Enable: true, ProcPath: "/proc/stat"},
				Network:       NetworkCollectorConfig{Enable: true, ProcPath: "/proc/net/dev"},
				Memory:        MemoryCollectorConfig{Enable: true},
				Temperature:   TemperatureCollectorConfig{Enable: false},
				HealthMonitor: HealthMonitorCollectorConfig{Enable: false, Device: "/dev/ipcfshm/M7_0/health_mon"},
				IDPS:          IDPSCollectorConfig{Enable: false, Device: "/dev/ipcfshm/M7_0/idps_statistics"},
				Load:          LoadCollectorConfig{Enable: false},
			},
		},
		Poller: PollerConfig{
			Enable:           false,
			Device:           "/dev/mem",
			SamplingInterval: 100 * time.Millisecond,
			WindowMultiplier: 1,
			CoreActive:       0x1,
			CoreWFI:          0x80000001,
			CoreInactive:     0x0,
		},
		Log: ZapLogConfig{
			Level:     "info",
			Format:    "console",
			Path:      "./logs",
			MaxSize:   100,
			MaxBackup: 0,
			MaxAge:    7,
		},
	}
}

// applyDefaults 补齐解码后仍为空的集合字段
func applyDefaults(cfg *Config) {
	if len(cfg.Poller.Cores) == 0 {
		cfg.Poller.Cores = DefaultCores()
	}
}

// newViper 绑定 Cobra Flags → Viper，并读取 --config 指定的文件
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	configFile, _ := cmd.Flags().GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	// ENV -> Viper（TELEMETRY_SERVER_ADDR -> server.addr）
	v.SetEnvPrefix("TELEMETRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

// decode 解码反序列化到结构体（支持 time.Duration / 逗号分隔切片）并校验
func decode(v *viper.Viper) (*Config, error) {
	cfg := NewDefaultConfig()
	decoderConfig := &mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}

	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// LoadConfigWithCli 加载配置（Flags + YAML + ENV）
func LoadConfigWithCli(cmd *cobra.Command) (*Config, error) {
	v, err := newViper(cmd)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// Validate 配置校验
func (c *Config) Validate() error {
	if err := valid.Struct(c); err != nil {
		return err
	}
	// 	1，校验Server服务配置
	if err := c.Server.Validate(); err != nil {
		return err
	}
	// 	2，校验遥测与采集配置
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	// 	3，校验寄存器轮询配置
	if err := c.Poller.Validate(); err != nil {
		return err
	}
	if !c.Poller.Enable && !c.Telemetry.Collectors.anyEnabled() {
		return errors.New("at least one collector must be enabled (cpu/network/memory/temperature/health_monitor/idps/load/poller)")
	}
	// 	4，校验日志配置
	return c.Log.Validate()
}

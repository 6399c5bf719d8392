package agent

import (
	"github.com/spf13/cobra"
)

func initTelemetryFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	cc := defaultCfg.Telemetry.Collectors

	f.Duration("telemetry.interval", defaultCfg.Telemetry.Interval, "快照发布间隔（整数秒）")
	f.String("telemetry.device", defaultCfg.Telemetry.Device, "设备名称（为空时取主机名前5个字符）")
	f.String("telemetry.encoding", defaultCfg.Telemetry.Encoding, "快照编码 [json,cbor]")
	f.Bool("telemetry.verbose", defaultCfg.Telemetry.Verbose, "每次发布时打印快照（debug）")

	f.Bool("telemetry.collectors.cpu.enable", cc.CPU.Enable, "启用 /proc/stat")
	f.String("telemetry.collectors.cpu.proc_path", cc.CPU.ProcPath, "/proc/stat 路径")
	f.Bool("telemetry.collectors.network.enable", cc.Network.Enable, "启用 /proc/net/dev")
	f.String("telemetry.collectors.network.proc_path", cc.Network.ProcPath, "/proc/net/dev 路径")
	f.StringSlice("telemetry.collectors.network.interfaces", nil, "监控的网卡（为空表示全部）")
	f.Bool("telemetry.collectors.memory.enable", cc.Memory.Enable, "启用内存采集")
	f.Bool("telemetry.collectors.temperature.enable", cc.Temperature.Enable, "启用温度传感器")
	f.Bool("telemetry.collectors.health_monitor.enable", cc.HealthMonitor.Enable, "启用电压健康监控")
	f.String("telemetry.collectors.health_monitor.device", cc.HealthMonitor.Device, "健康监控设备文件")
	f.Bool("telemetry.collectors.idps.enable", cc.IDPS.Enable, "启用 CAN IDPS 统计")
	f.String("telemetry.collectors.idps.device", cc.IDPS.Device, "IDPS 统计设备文件")
	f.Bool("telemetry.collectors.load.enable", cc.Load.Enable, "启用系统负载")
}

func initPollerFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	p := defaultCfg.Poller

	f.Bool("poller.enable", p.Enable, "启用 M7 核心状态寄存器轮询")
	f.String("poller.device", p.Device, "物理内存设备")
	f.Duration("poller.sampling_interval", p.SamplingInterval, "寄存器采样间隔")
	f.Int("poller.window_multiplier", p.WindowMultiplier, "滑动窗口长度 = 倍数 x 发布间隔")
	f.Uint32("poller.core_active", p.CoreActive, "ACTIVE 寄存器值")
	f.Uint32("poller.core_wfi", p.CoreWFI, "WFI 寄存器值")
	f.Uint32("poller.core_inactive", p.CoreInactive, "INACTIVE 寄存器值")
	f.Uint64("poller.device_id_register", p.DeviceIDRegister, "板卡 UID 寄存器地址（0 表示不读取）")
}

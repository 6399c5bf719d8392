package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Validate HTTP服务配置校验
func (h *ServerConfig) Validate() error {
	if err := valid.Struct(h); err != nil {
		return err
	}
	if h.Addr == "" {
		return errors.New("server.addr cannot be empty")
	}
	// 用net包解析地址，验证格式合法性
	if _, err := net.ResolveTCPAddr("tcp", h.Addr); err != nil {
		return fmt.Errorf("server.addr format invalid (expected: :port or ip:port), got %s: %w", h.Addr, err)
	}
	return nil
}

// Validate 遥测发布配置校验（发布间隔必须为整数秒）
func (t *TelemetryConfig) Validate() error {
	if err := valid.Struct(t); err != nil {
		return err
	}
	if t.Interval < MinTelemetryInterval || t.Interval > MaxTelemetryInterval {
		return fmt.Errorf("telemetry.interval must be between %s and %s, got %s", MinTelemetryInterval, MaxTelemetryInterval, t.Interval)
	}
	if t.Interval%time.Second != 0 {
		return fmt.Errorf("telemetry.interval must be a whole number of seconds, got %s", t.Interval)
	}
	return t.Collectors.validate()
}

func (col *CollectorConfig) anyEnabled() bool {
	return col.CPU.Enable || col.Network.Enable || col.Memory.Enable ||
		col.Temperature.Enable || col.HealthMonitor.Enable || col.IDPS.Enable || col.Load.Enable
}

func (col *CollectorConfig) validate() error {
	if err := valid.Struct(col); err != nil {
		return err
	}
	if err := col.Network.Validate(); err != nil {
		return err
	}
	if col.HealthMonitor.Enable && strings.TrimSpace(col.HealthMonitor.Device) == "" {
		return errors.New("collectors.health_monitor.device cannot be empty when enabled")
	}
	if col.IDPS.Enable && strings.TrimSpace(col.IDPS.Device) == "" {
		return errors.New("collectors.idps.device cannot be empty when enabled")
	}
	return nil
}

// Validate 网卡列表与别名校验（未启用时不校验）
//
//	不能包含空字符串、空白或路径分隔符，不能重复
func (n *NetworkCollectorConfig) Validate() error {
	if !n.Enable {
		return nil
	}
	seen := map[string]bool{}
	for _, iface := range n.Interfaces {
		if err := checkIfaceName("collectors.network.interfaces", iface); err != nil {
			return err
		}
		if seen[iface] {
			return fmt.Errorf("collectors.network.interfaces duplicated entry: %q", iface)
		}
		seen[iface] = true
	}
	for iface, alias := range n.Aliases {
		if err := checkIfaceName("collectors.network.aliases", iface); err != nil {
			return err
		}
		if strings.TrimSpace(alias) == "" {
			return fmt.Errorf("collectors.network.aliases: alias for %q cannot be empty", iface)
		}
	}
	return nil
}

func checkIfaceName(field, iface string) error {
	if strings.TrimSpace(iface) == "" {
		return fmt.Errorf("%s cannot contain empty string", field)
	}
	if strings.ContainsAny(iface, " \t\r\n") {
		return fmt.Errorf("%s: interface %q contains whitespace", field, iface)
	}
	if strings.ContainsAny(iface, "/\\") {
		return fmt.Errorf("%s: interface %q must not contain '/' or '\\'", field, iface)
	}
	return nil
}

// Validate 寄存器轮询配置校验（未启用时只校验数值范围）
func (p *PollerConfig) Validate() error {
	if err := valid.Struct(p); err != nil {
		return err
	}
	if p.SamplingInterval < MinSamplingInterval {
		return fmt.Errorf("poller.sampling_interval must be at least %s, got %s", MinSamplingInterval, p.SamplingInterval)
	}
	if p.WindowMultiplier < MinWindowMultiplier {
		return fmt.Errorf("poller.window_multiplier must be at least %d, got %d", MinWindowMultiplier, p.WindowMultiplier)
	}
	if !p.Enable {
		return nil
	}
	if strings.TrimSpace(p.Device) == "" {
		return errors.New("poller.device cannot be empty when enabled")
	}
	if len(p.Cores) == 0 {
		return errors.New("poller.cores cannot be empty when enabled")
	}
	if p.CoreActive == p.CoreWFI || p.CoreActive == p.CoreInactive {
		return fmt.Errorf("poller.core_active (%#x) must differ from core_wfi and core_inactive", p.CoreActive)
	}
	seen := map[string]bool{}
	for _, c := range p.Cores {
		if seen[c.Name] {
			return fmt.Errorf("poller.cores duplicated name: %q", c.Name)
		}
		seen[c.Name] = true
		if c.Address%4 != 0 {
			return fmt.Errorf("poller.cores[%s] address %#x is not 4-byte aligned", c.Name, c.Address)
		}
	}
	return nil
}

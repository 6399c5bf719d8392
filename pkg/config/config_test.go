package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCmd(t *testing.T, body string) *cobra.Command {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", path, "")
	return cmd
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Log.Path = t.TempDir()
	applyDefaults(cfg)
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Poller.Cores, 3)
	assert.Equal(t, time.Second, cfg.Telemetry.Interval)
}

func TestLoadConfigWithCli(t *testing.T) {
	logDir := t.TempDir()
	cmd := newTestCmd(t, `
server:
  addr: "127.0.0.1:9100"
telemetry:
  interval: 2s
  device: s32g0
  encoding: cbor
  collectors:
    network:
      enable: true
      interfaces: [eth0, pfe2]
      aliases:
        eth0: pfe0
    idps:
      enable: true
poller:
  enable: true
  sampling_interval: 250ms
  window_multiplier: 3
  cores:
    - name: m7_0
      address: "0x40088148"
    - name: m7_1
      address: 0x40088168
log:
  level: debug
  path: `+logDir+`
`)

	cfg, err := LoadConfigWithCli(cmd)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9100", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 2*time.Second, cfg.Telemetry.Interval)
	assert.Equal(t, "s32g0", cfg.Telemetry.Device)
	assert.Equal(t, "cbor", cfg.Telemetry.Encoding)
	assert.Equal(t, []string{"eth0", "pfe2"}, cfg.Telemetry.Collectors.Network.Interfaces)
	assert.Equal(t, "pfe0", cfg.Telemetry.Collectors.Network.Aliases["eth0"])
	assert.True(t, cfg.Telemetry.Collectors.IDPS.Enable)
	assert.Equal(t, "/dev/ipcfshm/M7_0/idps_statistics", cfg.Telemetry.Collectors.IDPS.Device)
	assert.Equal(t, 250*time.Millisecond, cfg.Poller.SamplingInterval)
	assert.Equal(t, 3, cfg.Poller.WindowMultiplier)
	require.Len(t, cfg.Poller.Cores, 2)
	assert.Equal(t, CoreRegister{Name: "m7_0", Address: 0x40088148}, cfg.Poller.Cores[0])
	assert.Equal(t, uint64(0x40088168), cfg.Poller.Cores[1].Address)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	logDir := t.TempDir()
	tests := []struct {
		name string
		body string
	}{
		{"fractional interval", "telemetry:\n  interval: 1500ms\n"},
		{"interval too small", "telemetry:\n  interval: 0s\n"},
		{"bad encoding", "telemetry:\n  encoding: xml\n"},
		{"sampling too small", "poller:\n  sampling_interval: 10us\n"},
		{"zero multiplier", "poller:\n  window_multiplier: 0\n"},
		{"duplicate cores", "poller:\n  enable: true\n  cores:\n    - {name: a, address: 0x10}\n    - {name: a, address: 0x14}\n"},
		{"unaligned core", "poller:\n  enable: true\n  cores:\n    - {name: a, address: 0x11}\n"},
		{"blank interface", "telemetry:\n  collectors:\n    network:\n      interfaces: [\"eth 0\"]\n"},
		{"idps without device", "telemetry:\n  collectors:\n    idps: {enable: true, device: \"\"}\n"},
		{"nothing enabled", "telemetry:\n  collectors:\n    cpu: {enable: false}\n    network: {enable: false}\n    memory: {enable: false}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newTestCmd(t, tt.body+"log:\n  path: "+logDir+"\n")
			_, err := LoadConfigWithCli(cmd)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigRejectsLogLevel(t *testing.T) {
	cmd := newTestCmd(t, "log:\n  level: trace\n  path: "+t.TempDir()+"\n")
	_, err := LoadConfigWithCli(cmd)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", filepath.Join(t.TempDir(), "missing.yaml"), "")
	_, err := LoadConfigWithCli(cmd)
	assert.Error(t, err)
}

func TestWatchRequiresConfigFile(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	err := Watch(cmd, func(*Config, error) {})
	assert.ErrorIs(t, err, ErrNoConfigFile)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	logDir := t.TempDir()
	cmd := newTestCmd(t, "telemetry:\n  interval: 1s\nlog:\n  path: "+logDir+"\n")
	path, _ := cmd.Flags().GetString("config")

	changes := make(chan *Config, 4)
	require.NoError(t, Watch(cmd, func(cfg *Config, err error) {
		if err != nil {
			return
		}
		select {
		case changes <- cfg:
		default:
		}
	}))

	require.NoError(t, os.WriteFile(path, []byte("telemetry:\n  interval: 5s\nlog:\n  path: "+logDir+"\n"), 0o644))

	select {
	case cfg := <-changes:
		assert.Equal(t, 5*time.Second, cfg.Telemetry.Interval)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}
}

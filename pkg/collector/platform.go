package collector

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"

	"github.com/telemetry-collector/pkg/logger"
	"github.com/telemetry-collector/pkg/poller"
)

// boardUIDSize OCOTP 影子寄存器中的设备 UID 字节数
const boardUIDSize = 8

// Platform 快照元数据：platform、device、board_uuid_high/low、timestamp
type Platform struct {
	platform string
	device   string
	uidHigh  string
	uidLow   string
	hasUID   bool
}

// BoardUID 读取 8 字节小端 UID，十进制字符串对半拆分为 high/low
func BoardUID(reader poller.RegisterReader, addr uint64) (high, low string, err error) {
	raw, err := reader.ReadBytes(addr, boardUIDSize)
	if err != nil {
		return "", "", fmt.Errorf("read board uid at %#x: %w", addr, err)
	}
	s := strconv.FormatUint(binary.LittleEndian.Uint64(raw), 10)
	half := len(s) / 2
	return s[:half], s[half:], nil
}

// NewPlatform device 为空时取主机名前 5 个字符；reader 为 nil 或 uidAddr 为 0 时不读取 UID
func NewPlatform(ctx context.Context, device string, reader poller.RegisterReader, uidAddr uint64) *Platform {
	p := &Platform{device: device}

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		logger.Warn("failed to get host info", zap.String("name", "platform"), zap.Error(err))
	} else {
		p.platform = fmt.Sprintf("%s-%s-%s", info.OS, info.KernelVersion, info.KernelArch)
		if p.device == "" {
			p.device = info.Hostname
			if len(p.device) > 5 {
				p.device = p.device[:5]
			}
		}
	}

	if reader != nil && uidAddr != 0 {
		high, low, err := BoardUID(reader, uidAddr)
		if err != nil {
			logger.Error("failed to read board uid", zap.String("name", "platform"), zap.Error(err))
		} else {
			p.uidHigh, p.uidLow, p.hasUID = high, low, true
		}
	}
	return p
}

// Metadata 每个快照的元数据；未读到的字段不出现
func (p *Platform) Metadata(now time.Time) map[string]any {
	md := map[string]any{
		"timestamp": now.Unix(),
	}
	if p.platform != "" {
		md["platform"] = p.platform
	}
	if p.device != "" {
		md["device"] = p.device
	}
	if p.hasUID {
		md["board_uuid_high"] = p.uidHigh
		md["board_uuid_low"] = p.uidLow
	}
	return md
}

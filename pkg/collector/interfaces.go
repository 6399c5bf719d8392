package collector

import (
	"context"
	"errors"
)

// ErrNoData 数据源本轮没有可用数据（设备不存在、传感器为空等）
var ErrNoData = errors.New("no data available")

// Collector 采集器核心接口（所有数据源必须实现）
// 调度器每个周期调用一次 Step，成功后读取 Readings 合并进快照
type Collector interface {
	Name() string                   // 采集器名称（唯一标识）
	Init() error                    // 初始化（预检查资源、记录基线）
	Step(ctx context.Context) error // 采集一次
	Readings() map[string]any       // 上一次成功 Step 的结果（key 已带前缀）
	Close() error                   // 关闭（释放资源）
}

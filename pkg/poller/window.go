package poller

import (
	"math/bits"
	"time"
)

// MaxWindowCapacity 单核心样本历史上限
const MaxWindowCapacity = 1 << 24

// Window 定容 FIFO，保存 0/1 核心活跃样本并维护累加和。
// 底层缓冲按需增长到容量后环绕，淘汰最旧样本
type Window struct {
	buf      []uint8
	head     int // 缓冲写满后最旧样本的下标
	sum      int
	capacity int
}

func NewWindow(capacity int) *Window {
	w := &Window{}
	w.Reset(capacity)
	return w
}

// Push 追加样本，窗口已满时淘汰最旧样本
func (w *Window) Push(v uint8) {
	if v > 1 {
		v = 1
	}
	if len(w.buf) < w.capacity {
		w.buf = append(w.buf, v)
		w.sum += int(v)
		return
	}
	w.sum += int(v) - int(w.buf[w.head])
	w.buf[w.head] = v
	w.head = (w.head + 1) % w.capacity
}

// Reset 清空样本并设置新容量（最小为 1）
func (w *Window) Reset(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	if capacity > MaxWindowCapacity {
		capacity = MaxWindowCapacity
	}
	w.buf = w.buf[:0]
	if cap(w.buf) > capacity {
		w.buf = nil
	}
	w.head = 0
	w.sum = 0
	w.capacity = capacity
}

func (w *Window) Sum() int      { return w.sum }
func (w *Window) Len() int      { return len(w.buf) }
func (w *Window) Capacity() int { return w.capacity }

// Load 返回 100*Sum/Len，窗口为空时返回 false
func (w *Window) Load() (float64, bool) {
	if len(w.buf) == 0 {
		return 0, false
	}
	return 100 * float64(w.sum) / float64(len(w.buf)), true
}

// Samples 返回窗口内容副本，由旧到新
func (w *Window) Samples() []uint8 {
	out := make([]uint8, 0, len(w.buf))
	if len(w.buf) < w.capacity {
		return append(out, w.buf...)
	}
	out = append(out, w.buf[w.head:]...)
	return append(out, w.buf[:w.head]...)
}

// WindowCapacity 以整数纳秒计算 multiplier*telemetry/sampling，
// 截断后限制在 [1, MaxWindowCapacity]
func WindowCapacity(sampling, telemetry time.Duration, multiplier int) int {
	if sampling <= 0 || telemetry <= 0 || multiplier <= 0 {
		return 1
	}
	hi, lo := bits.Mul64(uint64(multiplier), uint64(telemetry))
	if hi >= uint64(sampling) {
		return MaxWindowCapacity
	}
	quo, _ := bits.Div64(hi, lo, uint64(sampling))
	switch {
	case quo < 1:
		return 1
	case quo > MaxWindowCapacity:
		return MaxWindowCapacity
	}
	return int(quo)
}

package counters

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// /proc/stat 中 cpu 行的列顺序（Linux 标准）
var procStatColumns = []string{"user", "nice", "system", "idle", "iowait", "irq", "softirq", "steal", "guest", "guest_nice"}

// CPUBuckets 导出到快照的时间片名称，与 /proc/stat 前 7 列一一对应
var CPUBuckets = []string{"usermode", "nicemode", "kernelmode", "idle", "iowait", "irq", "softirq"}

// ParseProcStat 解析 /proc/stat 中以 cpu 开头的行，key 形如 "cpu0:user"
func ParseProcStat(r io.Reader) (map[string]uint64, error) {
	out := make(map[string]uint64)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// 至少需要 "cpu" + 4个基础时间字段(user/nice/system/idle)
		if len(fields) < 5 || !strings.HasPrefix(fields[0], "cpu") {
			continue
		}
		label := fields[0]
		for i, raw := range fields[1:] {
			if i >= len(procStatColumns) {
				break
			}
			v, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse %s %s: %w", label, procStatColumns[i], err)
			}
			out[label+":"+procStatColumns[i]] = v
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no cpu lines found")
	}
	return out, nil
}

func splitCPUKey(key string) (label, column string) {
	label, column, _ = strings.Cut(key, ":")
	return label, column
}

// CPUStats 按核心差分 /proc/stat 时间片
type CPUStats struct {
	path   string
	engine *Engine
}

func NewCPUStats(path string, opts ...Option) *CPUStats {
	c := &CPUStats{path: path}
	c.engine = NewEngine("cpu", SourceFunc(c.read), opts...)
	return c
}

func (c *CPUStats) read() (map[string]uint64, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.path, err)
	}
	defer f.Close()
	return ParseProcStat(f)
}

// Step 读取一次 /proc/stat；首次仅记录基线
func (c *CPUStats) Step() error { return c.engine.Step() }

// GetLoad 返回上一个采样区间内每个核心各时间片的占比（normalize=true，范围 [0,1]）
// 或原始差值。总差值为 0 或存在计数器回绕的核心本轮跳过。
func (c *CPUStats) GetLoad(normalize bool) map[string]map[string]float64 {
	deltas := c.engine.Deltas()

	skip := make(map[string]bool)
	for _, key := range c.engine.Resets() {
		label, _ := splitCPUKey(key)
		skip[label] = true
	}

	perCore := make(map[string]map[string]uint64)
	totals := make(map[string]uint64)
	for key, d := range deltas {
		label, column := splitCPUKey(key)
		if skip[label] {
			continue
		}
		if perCore[label] == nil {
			perCore[label] = make(map[string]uint64, len(procStatColumns))
		}
		perCore[label][column] = d
		totals[label] += d
	}

	out := make(map[string]map[string]float64, len(perCore))
	for label, cols := range perCore {
		total := totals[label]
		if total == 0 {
			continue
		}
		buckets := make(map[string]float64, len(CPUBuckets))
		for i, bucket := range CPUBuckets {
			d, ok := cols[procStatColumns[i]]
			if !ok {
				continue
			}
			if normalize {
				buckets[bucket] = float64(d) / float64(total)
			} else {
				buckets[bucket] = float64(d)
			}
		}
		out[label] = buckets
	}
	return out
}

// TotalCounters 返回上一次读取的累计值
func (c *CPUStats) TotalCounters() map[string]uint64 { return c.engine.TotalCounters() }

// Resets 返回上一次 Step 中发生回绕的 key
func (c *CPUStats) Resets() []string { return c.engine.Resets() }

// Package snapshot 已发布的遥测快照及其编码
package snapshot

import (
	"sort"
	"sync"
	"time"
)

// Snapshot 一条已发布的遥测记录，发布后不再修改，读者可长期持有指针
type Snapshot struct {
	Seq       uint64
	Timestamp time.Time
	Encoding  string
	Payload   []byte

	stats map[string]any
}

// New 接管 stats 的所有权
func New(seq uint64, ts time.Time, stats map[string]any) *Snapshot {
	return &Snapshot{Seq: seq, Timestamp: ts, stats: stats}
}

// Stats 返回扁平键值表的副本
func (s *Snapshot) Stats() map[string]any {
	out := make(map[string]any, len(s.stats))
	for k, v := range s.stats {
		out[k] = v
	}
	return out
}

// Get 单个值
func (s *Snapshot) Get(key string) (any, bool) {
	v, ok := s.stats[key]
	return v, ok
}

// Keys 排序后的统计 key
func (s *Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.stats))
	for k := range s.stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Snapshot) Len() int { return len(s.stats) }

// Numeric 将统计值转换为 float64，字符串等非数值返回 false
func Numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// Slot 唯一的已发布快照单元。写者换入构建完成的快照，读者取最新指针
type Slot struct {
	mu     sync.RWMutex
	latest *Snapshot
}

func (s *Slot) Publish(snap *Snapshot) {
	s.mu.Lock()
	s.latest = snap
	s.mu.Unlock()
}

// Load 最新快照，首次发布前为 nil
func (s *Slot) Load() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

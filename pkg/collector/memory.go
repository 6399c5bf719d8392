package collector

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
)

// MemoryCollector 内存用量（kB），mem_load = total - available
type MemoryCollector struct {
	name          string
	virtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	readings      map[string]any
}

func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{
		name:          "memory",
		virtualMemory: mem.VirtualMemoryWithContext,
	}
}

func (m *MemoryCollector) Name() string { return m.name }

func (m *MemoryCollector) Init() error { return nil }

func (m *MemoryCollector) Step(ctx context.Context) error {
	m.readings = nil
	vm, err := m.virtualMemory(ctx)
	if err != nil {
		return fmt.Errorf("read virtual memory: %w", err)
	}
	const kB = 1024
	total := vm.Total / kB
	available := vm.Available / kB
	readings := map[string]any{
		"mem_total":     total,
		"mem_free":      vm.Free / kB,
		"mem_available": available,
		"mem_buffers":   vm.Buffers / kB,
		"mem_cached":    vm.Cached / kB,
	}
	if available <= total {
		readings["mem_load"] = total - available
	}
	m.readings = readings
	return nil
}

func (m *MemoryCollector) Readings() map[string]any { return m.readings }

func (m *MemoryCollector) Close() error { return nil }

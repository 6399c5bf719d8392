package poller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sumOf(samples []uint8) int {
	s := 0
	for _, v := range samples {
		s += int(v)
	}
	return s
}

func TestWindowRollingSum(t *testing.T) {
	w := NewWindow(3)
	seq := []uint8{1, 0, 1, 1, 0, 0, 1}
	for i, v := range seq {
		w.Push(v)
		samples := w.Samples()
		assert.Equal(t, sumOf(samples), w.Sum(), "after push %d", i)
		assert.LessOrEqual(t, w.Len(), w.Capacity())
	}
	assert.Equal(t, []uint8{0, 0, 1}, w.Samples())

	load, ok := w.Load()
	require.True(t, ok)
	assert.InDelta(t, 33.333, load, 0.001)
}

func TestWindowResetClears(t *testing.T) {
	w := NewWindow(2)
	w.Push(1)
	w.Push(1)
	w.Reset(5)

	assert.Equal(t, 0, w.Len())
	assert.Equal(t, 0, w.Sum())
	assert.Equal(t, 5, w.Capacity())
	_, ok := w.Load()
	assert.False(t, ok)

	w.Reset(0)
	assert.Equal(t, 1, w.Capacity())
}

func TestWindowCapacity(t *testing.T) {
	tests := []struct {
		name       string
		sampling   time.Duration
		telemetry  time.Duration
		multiplier int
		want       int
	}{
		{"default", 100 * time.Millisecond, time.Second, 1, 10},
		{"multiplier", 100 * time.Millisecond, time.Second, 3, 30},
		{"truncated", 300 * time.Millisecond, time.Second, 1, 3},
		{"fractional exact", 300 * time.Millisecond, time.Second, 3, 10},
		{"minimum one", 2 * time.Second, time.Second, 1, 1},
		{"fine sampling", 100 * time.Microsecond, 2 * time.Second, 1, 20000},
		{"clamped", time.Nanosecond, 3600 * time.Second, 1000, MaxWindowCapacity},
		{"invalid sampling", 0, time.Second, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WindowCapacity(tt.sampling, tt.telemetry, tt.multiplier))
		})
	}
}

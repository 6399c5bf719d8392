package counters

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted 依次返回预设的读数
type scripted struct {
	reads []map[string]uint64
	errs  []error
	i     int
}

func (s *scripted) Read() (map[string]uint64, error) {
	i := s.i
	s.i++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.reads[i], nil
}

func TestEngineColdStart(t *testing.T) {
	src := &scripted{reads: []map[string]uint64{{"a_bytes": 10}}}
	e := NewEngine("test", src)

	assert.False(t, e.Ready())
	assert.Empty(t, e.TotalCounters())

	require.NoError(t, e.Step())
	assert.True(t, e.Ready())
	assert.Empty(t, e.Deltas(), "first step yields no deltas")
	assert.Empty(t, e.Load())
	assert.Equal(t, map[string]uint64{"a_bytes": 10}, e.TotalCounters())
}

func TestEngineDeltasAndRates(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &scripted{reads: []map[string]uint64{
		{"eth0_rx_bytes": 1000, "eth0_rx_packets": 10, "eth0_rx_errs": 0},
		{"eth0_rx_bytes": 5000, "eth0_rx_packets": 30, "eth0_rx_errs": 1, "eth1_rx_bytes": 7},
	}}
	e := NewEngine("net", src, WithClock(clock), WithRateRules(NetRateRules...))

	require.NoError(t, e.Step())
	clock.Advance(2 * time.Second)
	require.NoError(t, e.Step())

	assert.Equal(t, map[string]uint64{"eth0_rx_bytes": 4000, "eth0_rx_packets": 20, "eth0_rx_errs": 1}, e.Deltas())
	rates := e.Rates()
	assert.InDelta(t, 16000.0, rates["eth0_rx_bps"], 1e-9)
	assert.InDelta(t, 10.0, rates["eth0_rx_pps"], 1e-9)
	assert.NotContains(t, rates, "eth1_rx_bps", "new key has no baseline yet")

	load := e.Load()
	assert.Equal(t, uint64(4000), load["eth0_rx_bytes"])
	assert.Equal(t, 16000.0, load["eth0_rx_bps"])
}

func TestEngineCounterReset(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &scripted{reads: []map[string]uint64{
		{"x_bytes": 1000, "y_bytes": 10},
		{"x_bytes": 200, "y_bytes": 20},
		{"x_bytes": 300, "y_bytes": 30},
	}}
	e := NewEngine("net", src, WithClock(clock), WithRateRules(NetRateRules...))

	require.NoError(t, e.Step())
	clock.Advance(time.Second)
	require.NoError(t, e.Step())

	assert.Equal(t, []string{"x_bytes"}, e.Resets())
	assert.NotContains(t, e.Deltas(), "x_bytes")
	assert.NotContains(t, e.Rates(), "x_bps")
	assert.Equal(t, uint64(10), e.Deltas()["y_bytes"])
	assert.Equal(t, uint64(200), e.TotalCounters()["x_bytes"], "reset value becomes the baseline")

	clock.Advance(time.Second)
	require.NoError(t, e.Step())
	assert.Empty(t, e.Resets())
	assert.Equal(t, uint64(100), e.Deltas()["x_bytes"])
}

func TestEngineReadErrorKeepsBaseline(t *testing.T) {
	boom := errors.New("unavailable")
	src := &scripted{
		reads: []map[string]uint64{{"k": 1}, nil, {"k": 4}},
		errs:  []error{nil, boom, nil},
	}
	e := NewEngine("test", src)

	require.NoError(t, e.Step())
	err := e.Step()
	require.ErrorIs(t, err, boom)
	assert.Equal(t, map[string]uint64{"k": 1}, e.TotalCounters())

	require.NoError(t, e.Step())
	assert.Equal(t, uint64(3), e.Deltas()["k"])
}

func TestEngineZeroElapsedHasNoRates(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &scripted{reads: []map[string]uint64{{"a_bytes": 1}, {"a_bytes": 2}}}
	e := NewEngine("test", src, WithClock(clock), WithRateRules(NetRateRules...))

	require.NoError(t, e.Step())
	require.NoError(t, e.Step())
	assert.Equal(t, uint64(1), e.Deltas()["a_bytes"])
	assert.Empty(t, e.Rates())
}

package counters

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestParseProcStat(t *testing.T) {
	in := `cpu  10 1 5 100 2 0 1 0 0 0
cpu0 4 0 2 50 1 0 0 0 0 0
cpu1 6 1 3 50 1 0 1
intr 12345 0 0
ctxt 999
`
	got, err := ParseProcStat(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got["cpu:user"])
	assert.Equal(t, uint64(50), got["cpu0:idle"])
	assert.Equal(t, uint64(1), got["cpu1:softirq"])
	assert.NotContains(t, got, "cpu1:steal")
	assert.NotContains(t, got, "intr:user")

	_, err = ParseProcStat(strings.NewReader("intr 1 2 3\n"))
	assert.Error(t, err)

	_, err = ParseProcStat(strings.NewReader("cpu0 a b c d\n"))
	assert.Error(t, err)
}

func TestCPUStatsLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stat")
	writeFile(t, path, "cpu0 100 0 0 900 0 0 0\n")

	c := NewCPUStats(path)
	require.NoError(t, c.Step())
	assert.Empty(t, c.GetLoad(true), "cold start yields no load")

	writeFile(t, path, "cpu0 150 0 0 950 0 0 0\n")
	require.NoError(t, c.Step())

	load := c.GetLoad(true)
	require.Contains(t, load, "cpu0")
	assert.InDelta(t, 0.5, load["cpu0"]["usermode"], 1e-9)
	assert.InDelta(t, 0.5, load["cpu0"]["idle"], 1e-9)
	assert.InDelta(t, 0.0, load["cpu0"]["kernelmode"], 1e-9)

	raw := c.GetLoad(false)
	assert.InDelta(t, 50.0, raw["cpu0"]["usermode"], 1e-9)

	assert.Equal(t, uint64(950), c.TotalCounters()["cpu0:idle"])
}

func TestCPUStatsSkipsIdleResolutionAndResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stat")
	writeFile(t, path, "cpu0 100 0 0 900 0 0 0\ncpu1 10 0 0 10 0 0 0\ncpu2 5 0 0 5 0 0 0\n")

	c := NewCPUStats(path)
	require.NoError(t, c.Step())

	// cpu0 unchanged (zero total), cpu1 counter went backwards, cpu2 advanced
	writeFile(t, path, "cpu0 100 0 0 900 0 0 0\ncpu1 5 0 0 20 0 0 0\ncpu2 6 0 0 6 0 0 0\n")
	require.NoError(t, c.Step())

	load := c.GetLoad(true)
	assert.NotContains(t, load, "cpu0")
	assert.NotContains(t, load, "cpu1")
	require.Contains(t, load, "cpu2")
	assert.InDelta(t, 0.5, load["cpu2"]["usermode"], 1e-9)
	assert.Equal(t, []string{"cpu1:user"}, c.Resets())
}

func TestCPUStatsMissingFile(t *testing.T) {
	c := NewCPUStats(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, c.Step())
}

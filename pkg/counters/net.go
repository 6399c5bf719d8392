package counters

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// NetDevParser 解析 /proc/net/dev。列名取自前两行表头（Receive->rx，
// Transmit->tx），只在第一次读取时解析。
type NetDevParser struct {
	ifaces  map[string]bool
	aliases map[string]string
	columns []string
}

// NewNetDevParser interfaces 为空表示采集全部网卡
func NewNetDevParser(interfaces []string, aliases map[string]string) *NetDevParser {
	p := &NetDevParser{aliases: aliases}
	if len(interfaces) > 0 {
		p.ifaces = make(map[string]bool, len(interfaces))
		for _, i := range interfaces {
			p.ifaces[i] = true
		}
	}
	return p
}

func parseNetDevHeader(first, second string) ([]string, error) {
	groups := strings.Split(first, "|")
	names := strings.Split(second, "|")
	if len(groups) != len(names) || len(groups) < 2 {
		return nil, fmt.Errorf("malformed /proc/net/dev header")
	}
	var cols []string
	for i := 1; i < len(names); i++ {
		dir := strings.TrimSpace(groups[i])
		switch dir {
		case "Receive":
			dir = "rx"
		case "Transmit":
			dir = "tx"
		}
		for _, stat := range strings.Fields(names[i]) {
			cols = append(cols, dir+"_"+stat)
		}
	}
	return cols, nil
}

// Parse 返回 "<alias|iface>_<rx|tx>_<column>" -> 累计值
func (p *NetDevParser) Parse(r io.Reader) (map[string]uint64, error) {
	scanner := bufio.NewScanner(r)
	var header [2]string
	for i := range header {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("/proc/net/dev: missing header line %d", i+1)
		}
		header[i] = scanner.Text()
	}
	if p.columns == nil {
		cols, err := parseNetDevHeader(header[0], header[1])
		if err != nil {
			return nil, err
		}
		p.columns = cols
	}

	out := make(map[string]uint64)
	for scanner.Scan() {
		iface, values, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		iface = strings.TrimSpace(iface)
		if p.ifaces != nil && !p.ifaces[iface] {
			continue
		}
		name := iface
		if alias, ok := p.aliases[iface]; ok {
			name = alias
		}
		fields := strings.Fields(values)
		for i, col := range p.columns {
			if i >= len(fields) {
				break
			}
			v, err := strconv.ParseUint(fields[i], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse %s %s: %w", iface, col, err)
			}
			out[name+"_"+col] = v
		}
	}
	return out, scanner.Err()
}

// NetStats 差分网卡计数器并计算 *_bps / *_pps
type NetStats struct {
	path   string
	parser *NetDevParser
	engine *Engine
}

func NewNetStats(path string, interfaces []string, aliases map[string]string, opts ...Option) *NetStats {
	n := &NetStats{path: path, parser: NewNetDevParser(interfaces, aliases)}
	opts = append([]Option{WithRateRules(NetRateRules...)}, opts...)
	n.engine = NewEngine("network", SourceFunc(n.read), opts...)
	return n
}

func (n *NetStats) read() (map[string]uint64, error) {
	f, err := os.Open(n.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", n.path, err)
	}
	defer f.Close()
	return n.parser.Parse(f)
}

func (n *NetStats) Step() error { return n.engine.Step() }

// GetLoad 返回上一区间的差值与速率；首次 Step 之前为空
func (n *NetStats) GetLoad() map[string]any { return n.engine.Load() }

func (n *NetStats) TotalCounters() map[string]uint64 { return n.engine.TotalCounters() }

func (n *NetStats) Resets() []string { return n.engine.Resets() }

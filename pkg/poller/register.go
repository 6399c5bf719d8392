package poller

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// RegisterReader 读取物理寄存器
type RegisterReader interface {
	ReadUint32(addr uint64) (uint32, error)
	ReadBytes(addr uint64, n int) ([]byte, error)
	Close() error
}

// DevMemReader 以只读方式映射物理内存设备（通常为 /dev/mem）的页面并从映射中读取寄存器。
// 页面首次访问时映射，Close 时解除
type DevMemReader struct {
	mu       sync.Mutex
	file     *os.File
	pageSize uint64
	pages    map[uint64][]byte
}

// OpenDevMem 以 O_SYNC 打开设备，读取绕过页缓存
func OpenDevMem(path string) (*DevMemReader, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &DevMemReader{
		file:     f,
		pageSize: uint64(unix.Getpagesize()),
		pages:    make(map[uint64][]byte),
	}, nil
}

func (r *DevMemReader) page(base uint64) ([]byte, error) {
	if r.file == nil {
		return nil, fmt.Errorf("read %#x: %w", base, os.ErrClosed)
	}
	if p, ok := r.pages[base]; ok {
		return p, nil
	}
	p, err := unix.Mmap(int(r.file.Fd()), int64(base), int(r.pageSize), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap page %#x of %s: %w", base, r.file.Name(), err)
	}
	r.pages[base] = p
	return p, nil
}

// ReadBytes 从 addr 起复制 n 字节，可跨页
func (r *DevMemReader) ReadBytes(addr uint64, n int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]byte, 0, n)
	for len(out) < n {
		cur := addr + uint64(len(out))
		base := cur &^ (r.pageSize - 1)
		p, err := r.page(base)
		if err != nil {
			return nil, err
		}
		off := cur - base
		end := off + uint64(n-len(out))
		if end > r.pageSize {
			end = r.pageSize
		}
		out = append(out, p[off:end]...)
	}
	return out, nil
}

// ReadUint32 读取 4 字节小端寄存器
func (r *DevMemReader) ReadUint32(addr uint64) (uint32, error) {
	b, err := r.ReadBytes(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *DevMemReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	var firstErr error
	for base, p := range r.pages {
		if err := unix.Munmap(p); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("munmap page %#x: %w", base, err)
		}
		delete(r.pages, base)
	}
	if err := r.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	r.file = nil
	return firstErr
}

// MemReader 内存版 RegisterReader。每次 ReadUint32 消耗该地址的下一个脚本值，
// 脚本耗尽后重复最后一个值
type MemReader struct {
	mu     sync.Mutex
	values map[uint64][]uint32
	bytes  map[uint64][]byte
	errs   map[uint64]error
	closed bool
}

func NewMemReader() *MemReader {
	return &MemReader{
		values: make(map[uint64][]uint32),
		bytes:  make(map[uint64][]byte),
		errs:   make(map[uint64]error),
	}
}

// Script 为 addr 追加返回值
func (m *MemReader) Script(addr uint64, values ...uint32) *MemReader {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[addr] = append(m.values[addr], values...)
	return m
}

// SetBytes 保存从 addr 起的原始字节
func (m *MemReader) SetBytes(addr uint64, b []byte) *MemReader {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes[addr] = append([]byte(nil), b...)
	return m
}

// FailAt 使 addr 的每次读取都返回 err，直到 ClearFailure
func (m *MemReader) FailAt(addr uint64, err error) *MemReader {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[addr] = err
	return m
}

func (m *MemReader) ClearFailure(addr uint64) *MemReader {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.errs, addr)
	return m
}

func (m *MemReader) ReadUint32(addr uint64) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, os.ErrClosed
	}
	if err := m.errs[addr]; err != nil {
		return 0, err
	}
	vals := m.values[addr]
	if len(vals) == 0 {
		return 0, fmt.Errorf("no value scripted at %#x", addr)
	}
	v := vals[0]
	if len(vals) > 1 {
		m.values[addr] = vals[1:]
	}
	return v, nil
}

func (m *MemReader) ReadBytes(addr uint64, n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, os.ErrClosed
	}
	if err := m.errs[addr]; err != nil {
		return nil, err
	}
	b, ok := m.bytes[addr]
	if !ok || len(b) < n {
		return nil, fmt.Errorf("short read at %#x: have %d bytes, want %d", addr, len(b), n)
	}
	return append([]byte(nil), b[:n]...), nil
}

func (m *MemReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

package logger

import "runtime"

// goroutineID 从栈头 "goroutine 123 [running]:" 解析当前 goroutine ID
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	var id uint64
	for i := len("goroutine "); i < len(b); i++ {
		c := b[i]
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}

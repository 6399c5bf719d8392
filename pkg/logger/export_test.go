package logger

import (
	"sync"

	"go.uber.org/zap"
)

// ResetForTest 恢复到未初始化状态，使 Init 可再次执行
func ResetForTest() {
	mu.Lock()
	baseLogger = zap.NewNop()
	loggerInitOnce = sync.Once{}
	mu.Unlock()
}

package monitor

import (
	"github.com/chenyang-zz/shion/pkg/logger"
	"go.uber.org/zap"
)

// invoke 在 recover 保护下执行 fn
//
// 事件回调运行在系统投递线程上，panic 不能越过 cgo/系统回调边界，只记录日志后丢弃本次事件。
func invoke(adapter string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("事件处理 panic",
				zap.String("component", "monitor"),
				zap.String("adapter", adapter),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	fn()
}

package monitor

import (
	"bytes"

	"github.com/chenyang-zz/shion/internal/platform"
	"github.com/chenyang-zz/shion/pkg/logger"
	"go.uber.org/zap"
)

// acceptWindowEvent 只处理前台切换和窗口本身的标题变化
func acceptWindowEvent(ev platform.WindowEvent) bool {
	switch ev.Kind {
	case platform.WindowForeground:
		return true
	case platform.WindowNameChange:
		return ev.Object == platform.ObjectWindow
	default:
		return false
	}
}

func (m *Monitor) onWindowEvent(ev platform.WindowEvent) {
	if !acceptWindowEvent(ev) {
		return
	}

	program, ok := m.resolveProgram(ev.Handle)
	if !ok {
		return
	}
	m.opt.Window(program)
}

// resolveProgram 按 标题 -> 路径 -> 描述 -> 图标 的顺序查询窗口信息
//
// 标题为空或路径无法解析时丢弃事件；描述和图标缺失时使用回退值。
func (m *Monitor) resolveProgram(h platform.Handle) (Program, bool) {
	title, ok := m.backend.WindowTitle(h)
	if !ok || title == "" {
		return Program{}, false
	}

	path, ok := m.backend.ProcessPath(h)
	if !ok || path == "" {
		logger.Debug("无法解析窗口所属程序",
			zap.String("component", "monitor"),
			zap.Uintptr("handle", uintptr(h)),
			zap.String("title", title),
		)
		return Program{}, false
	}

	description, ok := m.backend.Description(path)
	if !ok || description == "" {
		description = platform.FileStem(path)
	}

	return Program{
		Path:        path,
		Description: description,
		Title:       title,
		Icon:        m.icon(path),
	}, true
}

// icon 读取图标，结果按路径缓存，失败时缓存空切片
//
// 返回副本，消费者修改 Program.Icon 不影响缓存。
func (m *Monitor) icon(path string) []byte {
	if data, ok := m.icons.Get(path); ok {
		return bytes.Clone(data)
	}

	data, ok := m.backend.Icon(path, m.cfg.IconSize)
	if !ok || data == nil {
		data = []byte{}
	}
	_ = m.icons.Set(path, data, m.cfg.IconCacheTTL)
	return bytes.Clone(data)
}

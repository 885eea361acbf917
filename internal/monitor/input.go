package monitor

import (
	"github.com/chenyang-zz/shion/internal/platform"
)

func (m *Monitor) onKeyboard(ev platform.InputEvent) {
	if ev.Kind != platform.InputKey {
		return
	}
	m.emitActivity(ActivityKeyboard, m.keyboard, m.opt.Keyboard)
}

// onMouse 只有按键和滚轮算作活跃，单纯的移动被忽略
func (m *Monitor) onMouse(ev platform.InputEvent) {
	if ev.Kind != platform.InputMouseButton && ev.Kind != platform.InputMouseWheel {
		return
	}
	m.emitActivity(ActivityMouse, m.mouse, m.opt.Mouse)
}

// emitActivity 以前台程序路径为 key 节流后通知消费者
//
// 前台窗口或其路径无法解析时丢弃事件。
func (m *Monitor) emitActivity(kind ActivityKind, throttle *Throttle, fn func(Activity)) {
	h, ok := m.backend.FocusedWindow()
	if !ok {
		return
	}
	path, ok := m.backend.ProcessPath(h)
	if !ok || path == "" {
		return
	}
	if !throttle.Allow(path) {
		return
	}

	title, _ := m.backend.WindowTitle(h)
	fn(Activity{
		Path:  path,
		Title: title,
		Kind:  kind,
		Time:  m.now(),
	})
}

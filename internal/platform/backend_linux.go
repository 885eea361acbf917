//go:build linux

package platform

import (
	"fmt"
	"sync"

	"github.com/jezek/xgb/xproto"
)

// linuxBackend X11 + evdev + MPRIS 实现
//
// 窗口事件来自 X11 PropertyNotify，输入来自 /dev/input，音频来自会话总线上的 MPRIS 播放器。
type linuxBackend struct {
	opts Options

	mu sync.Mutex

	// probe 查询用的 X 连接，首次使用时建立
	probe *x11Display

	// watcher 窗口事件连接，由 HookWindow 建立、Pump 驱动
	watcher *x11Watcher

	// windows 可执行文件路径 -> 最近的窗口，用于读取 _NET_WM_ICON
	windows map[string]xproto.Window

	desktop desktopIndex
}

// New 创建当前平台的后端
func New(opts Options) Backend {
	return &linuxBackend{
		opts:    opts,
		windows: make(map[string]xproto.Window),
	}
}

// display 获取查询连接，连接失败时下次调用会重试
func (b *linuxBackend) display() (*x11Display, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.probe == nil {
		d, err := openDisplay()
		if err != nil {
			return nil, false
		}
		b.probe = d
	}
	return b.probe, true
}

func (b *linuxBackend) WindowTitle(h Handle) (string, bool) {
	d, ok := b.display()
	if !ok {
		return "", false
	}
	return d.title(xproto.Window(h))
}

// ProcessPath 读取 _NET_WM_PID 后查询可执行文件
func (b *linuxBackend) ProcessPath(h Handle) (string, bool) {
	d, ok := b.display()
	if !ok {
		return "", false
	}
	pid, ok := d.pid(xproto.Window(h))
	if !ok {
		return "", false
	}
	path := processExe(pid)
	if path == "" {
		return "", false
	}

	b.mu.Lock()
	b.windows[path] = xproto.Window(h)
	b.mu.Unlock()

	return path, true
}

// Description 使用 .desktop 文件中的应用名称
func (b *linuxBackend) Description(path string) (string, bool) {
	return b.desktop.lookup(path)
}

// Icon 读取该程序最近一个窗口的 _NET_WM_ICON
func (b *linuxBackend) Icon(path string, size int) ([]byte, bool) {
	b.mu.Lock()
	win, ok := b.windows[path]
	b.mu.Unlock()
	if !ok {
		return nil, false
	}

	d, ok := b.display()
	if !ok {
		return nil, false
	}
	img, ok := d.icon(win, size)
	if !ok {
		return nil, false
	}
	data, err := EncodeIcon(img, size)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (b *linuxBackend) FocusedWindow() (Handle, bool) {
	d, ok := b.display()
	if !ok {
		return 0, false
	}
	win, ok := d.activeWindow()
	return Handle(win), ok
}

// HookWindow 在独立的 X 连接上订阅根窗口的 PropertyNotify
func (b *linuxBackend) HookWindow(fn func(WindowEvent)) (Hook, error) {
	w, err := newX11Watcher(fn)
	if err != nil {
		return nil, fmt.Errorf("hook window: %w: %v", ErrHookFailed, err)
	}

	b.mu.Lock()
	b.watcher = w
	b.mu.Unlock()

	return HookFunc(func() error {
		b.mu.Lock()
		if b.watcher == w {
			b.watcher = nil
		}
		b.mu.Unlock()
		w.close()
		return nil
	}), nil
}

func (b *linuxBackend) HookKeyboard(fn func(InputEvent)) (Hook, error) {
	return openEvdev(inputDevice.isKeyboard, func(k InputKind) bool { return k == InputKey }, fn)
}

func (b *linuxBackend) HookMouse(fn func(InputEvent)) (Hook, error) {
	return openEvdev(inputDevice.isMouse, func(k InputKind) bool { return k != InputKey }, fn)
}

// Pump 驱动 X11 事件循环；没有窗口订阅时只等待 stop
func (b *linuxBackend) Pump(stop <-chan struct{}) error {
	b.mu.Lock()
	w := b.watcher
	b.mu.Unlock()

	if w == nil {
		<-stop
		return nil
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-stop:
			w.close()
		case <-done:
		}
	}()

	return w.run()
}

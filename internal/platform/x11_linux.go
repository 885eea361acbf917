//go:build linux

package platform

import (
	"fmt"
	"image"
	"sync"

	"github.com/chenyang-zz/shion/pkg/logger"
	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"go.uber.org/zap"
)

// x11Atoms 用到的 EWMH/ICCCM 原子
type x11Atoms struct {
	activeWindow xproto.Atom // _NET_ACTIVE_WINDOW
	netWMName    xproto.Atom // _NET_WM_NAME
	wmName       xproto.Atom // WM_NAME
	wmPID        xproto.Atom // _NET_WM_PID
	wmIcon       xproto.Atom // _NET_WM_ICON
}

// x11Display 一个 X 连接及其根窗口
type x11Display struct {
	conn  *xgb.Conn
	root  xproto.Window
	atoms x11Atoms
}

func openDisplay() (*x11Display, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("connect X server: %w", err)
	}

	d := &x11Display{
		conn: conn,
		root: xproto.Setup(conn).DefaultScreen(conn).Root,
	}

	names := []string{"_NET_ACTIVE_WINDOW", "_NET_WM_NAME", "WM_NAME", "_NET_WM_PID", "_NET_WM_ICON"}
	targets := []*xproto.Atom{&d.atoms.activeWindow, &d.atoms.netWMName, &d.atoms.wmName, &d.atoms.wmPID, &d.atoms.wmIcon}
	for i, name := range names {
		reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("intern atom %s: %w", name, err)
		}
		*targets[i] = reply.Atom
	}

	return d, nil
}

// property 读取窗口属性，失败或为空时返回 false
func (d *x11Display) property(win xproto.Window, atom xproto.Atom, maxWords uint32) (*xproto.GetPropertyReply, bool) {
	reply, err := xproto.GetProperty(d.conn, false, win, atom, xproto.GetPropertyTypeAny, 0, maxWords).Reply()
	if err != nil || reply == nil || reply.ValueLen == 0 {
		return nil, false
	}
	return reply, true
}

func (d *x11Display) activeWindow() (xproto.Window, bool) {
	reply, ok := d.property(d.root, d.atoms.activeWindow, 1)
	if !ok || reply.Format != 32 || len(reply.Value) < 4 {
		return 0, false
	}
	win := xproto.Window(xgb.Get32(reply.Value))
	return win, win != 0
}

// title 先读 _NET_WM_NAME（UTF-8），没有时回退到 WM_NAME
func (d *x11Display) title(win xproto.Window) (string, bool) {
	for _, atom := range []xproto.Atom{d.atoms.netWMName, d.atoms.wmName} {
		if reply, ok := d.property(win, atom, 1024); ok && reply.Format == 8 {
			if title := string(reply.Value); title != "" {
				return title, true
			}
		}
	}
	return "", false
}

func (d *x11Display) pid(win xproto.Window) (int32, bool) {
	reply, ok := d.property(win, d.atoms.wmPID, 1)
	if !ok || reply.Format != 32 || len(reply.Value) < 4 {
		return 0, false
	}
	return int32(xgb.Get32(reply.Value)), true
}

// icon 读取 _NET_WM_ICON 中最合适的一张图标
func (d *x11Display) icon(win xproto.Window, size int) (*image.NRGBA, bool) {
	reply, ok := d.property(win, d.atoms.wmIcon, 1<<20)
	if !ok || reply.Format != 32 {
		return nil, false
	}

	values := make([]uint32, len(reply.Value)/4)
	for i := range values {
		values[i] = xgb.Get32(reply.Value[i*4:])
	}

	width, height, pixels, ok := pickNetWMIcon(values, size)
	if !ok {
		return nil, false
	}
	img, err := ARGBToImage(width, height, pixels)
	if err != nil {
		return nil, false
	}
	return img, true
}

// pickNetWMIcon 从 _NET_WM_ICON 中选择图标
//
// 属性内容是若干组 width, height, width*height 个 ARGB 像素。
// 优先选择不小于 size 的最小图标，否则选择最大的。
func pickNetWMIcon(values []uint32, size int) (int, int, []uint32, bool) {
	bestW, bestH := 0, 0
	var best []uint32

	better := func(w int) bool {
		if best == nil {
			return true
		}
		if bestW >= size {
			return w >= size && w < bestW
		}
		return w > bestW
	}

	for i := 0; i+2 <= len(values); {
		w, h := int(values[i]), int(values[i+1])
		n := w * h
		if w <= 0 || h <= 0 || i+2+n > len(values) {
			break
		}
		if better(w) {
			bestW, bestH, best = w, h, values[i+2:i+2+n]
		}
		i += 2 + n
	}

	return bestW, bestH, best, best != nil
}

// x11Watcher 在独立连接上监听前台窗口和标题变化
type x11Watcher struct {
	display *x11Display
	fn      func(WindowEvent)

	// active 当前被监听标题变化的窗口，只在 run 的 goroutine 上访问
	active xproto.Window

	closeOnce sync.Once
}

func newX11Watcher(fn func(WindowEvent)) (*x11Watcher, error) {
	d, err := openDisplay()
	if err != nil {
		return nil, err
	}

	err = xproto.ChangeWindowAttributesChecked(d.conn, d.root, xproto.CwEventMask,
		[]uint32{xproto.EventMaskPropertyChange}).Check()
	if err != nil {
		d.conn.Close()
		return nil, fmt.Errorf("select root PropertyNotify: %w", err)
	}

	return &x11Watcher{display: d, fn: fn}, nil
}

// run 事件循环，连接关闭后返回
func (w *x11Watcher) run() error {
	w.follow()

	atoms := w.display.atoms
	for {
		ev, xerr := w.display.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			return nil
		}
		if xerr != nil {
			// 目标窗口已销毁等异步错误，不影响后续事件
			logger.Debug("X11 错误", zap.String("error", xerr.Error()))
			continue
		}

		pn, ok := ev.(xproto.PropertyNotifyEvent)
		if !ok {
			continue
		}

		switch {
		case pn.Window == w.display.root && pn.Atom == atoms.activeWindow:
			w.follow()
		case pn.Window == w.active && (pn.Atom == atoms.netWMName || pn.Atom == atoms.wmName):
			w.fn(WindowEvent{Kind: WindowNameChange, Handle: Handle(pn.Window), Object: ObjectWindow})
		}
	}
}

// focusChange 前台窗口变化时需要取消和开始监听的窗口，0 表示没有
type focusChange struct {
	unwatch xproto.Window
	watch   xproto.Window
}

// nextFocus 根据当前监听的窗口和 _NET_ACTIVE_WINDOW 的新值计算变化
//
// 没有前台窗口时也要取消监听并清空 active，焦点之后回到同一个窗口才会再次通知。
func nextFocus(active, win xproto.Window, ok bool) (focusChange, bool) {
	if !ok {
		win = 0
	}
	if win == active {
		return focusChange{}, false
	}
	return focusChange{unwatch: active, watch: win}, true
}

// follow 切换到新的前台窗口并通知
func (w *x11Watcher) follow() {
	win, ok := w.display.activeWindow()
	change, changed := nextFocus(w.active, win, ok)
	if !changed {
		return
	}

	conn := w.display.conn
	if change.unwatch != 0 {
		xproto.ChangeWindowAttributes(conn, change.unwatch, xproto.CwEventMask, []uint32{xproto.EventMaskNoEvent})
	}
	w.active = change.watch
	if change.watch == 0 {
		return
	}

	xproto.ChangeWindowAttributes(conn, change.watch, xproto.CwEventMask, []uint32{xproto.EventMaskPropertyChange})
	w.fn(WindowEvent{Kind: WindowForeground, Handle: Handle(change.watch), Object: ObjectWindow})
}

func (w *x11Watcher) close() {
	w.closeOnce.Do(w.display.conn.Close)
}

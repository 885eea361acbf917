package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chenyang-zz/shion/internal/platform"
	"github.com/stretchr/testify/require"
)

// fakeBackend 可编程的平台后端
type fakeBackend struct {
	mu sync.Mutex

	titles       map[platform.Handle]string
	paths        map[platform.Handle]string
	descriptions map[string]string
	icons        map[string][]byte
	audioActive  map[string]bool
	focused      platform.Handle

	pathCalls int
	iconCalls int

	hookErrs map[string]error
	pumpErr  error

	window   func(platform.WindowEvent)
	keyboard func(platform.InputEvent)
	mouse    func(platform.InputEvent)
	audio    func(platform.AudioEvent)

	installed []string
	closed    []string
	pumping   chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		titles:       make(map[platform.Handle]string),
		paths:        make(map[platform.Handle]string),
		descriptions: make(map[string]string),
		icons:        make(map[string][]byte),
		audioActive:  make(map[string]bool),
		hookErrs:     make(map[string]error),
		pumping:      make(chan struct{}),
	}
}

// addWindow 登记一个窗口
func (f *fakeBackend) addWindow(h platform.Handle, title, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if title != "" {
		f.titles[h] = title
	}
	if path != "" {
		f.paths[h] = path
	}
}

func (f *fakeBackend) focus(h platform.Handle) {
	f.mu.Lock()
	f.focused = h
	f.mu.Unlock()
}

func (f *fakeBackend) WindowTitle(h platform.Handle) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	title, ok := f.titles[h]
	return title, ok
}

func (f *fakeBackend) ProcessPath(h platform.Handle) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pathCalls++
	path, ok := f.paths[h]
	return path, ok
}

func (f *fakeBackend) Description(path string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	desc, ok := f.descriptions[path]
	return desc, ok
}

func (f *fakeBackend) Icon(path string, _ int) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.iconCalls++
	icon, ok := f.icons[path]
	return icon, ok
}

func (f *fakeBackend) AudioSessionActive(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audioActive[path]
}

func (f *fakeBackend) FocusedWindow() (platform.Handle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.focused, f.focused != 0
}

// hook 记录安装，返回的 Hook 关闭时记录名称
func (f *fakeBackend) hook(name string, set func()) (platform.Hook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hookErrs[name]; err != nil {
		return nil, err
	}
	set()
	f.installed = append(f.installed, name)
	return platform.HookFunc(func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.closed = append(f.closed, name)
		return nil
	}), nil
}

func (f *fakeBackend) HookWindow(fn func(platform.WindowEvent)) (platform.Hook, error) {
	return f.hook("window", func() { f.window = fn })
}

func (f *fakeBackend) HookKeyboard(fn func(platform.InputEvent)) (platform.Hook, error) {
	return f.hook("keyboard", func() { f.keyboard = fn })
}

func (f *fakeBackend) HookMouse(fn func(platform.InputEvent)) (platform.Hook, error) {
	return f.hook("mouse", func() { f.mouse = fn })
}

func (f *fakeBackend) WatchAudio(fn func(platform.AudioEvent)) (platform.Hook, error) {
	return f.hook("audio", func() { f.audio = fn })
}

func (f *fakeBackend) Pump(stop <-chan struct{}) error {
	close(f.pumping)
	if f.pumpErr != nil {
		return f.pumpErr
	}
	<-stop
	return nil
}

func (f *fakeBackend) sendWindow(ev platform.WindowEvent) {
	f.window(ev)
}

func (f *fakeBackend) sendKey() {
	f.keyboard(platform.InputEvent{Kind: platform.InputKey})
}

func (f *fakeBackend) sendMouse(kind platform.InputKind) {
	f.mouse(platform.InputEvent{Kind: kind})
}

func (f *fakeBackend) sendAudio(ev platform.AudioEvent) {
	f.audio(ev)
}

func (f *fakeBackend) installedHooks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.installed...)
}

func (f *fakeBackend) closedHooks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closed...)
}

// fakeClock 手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// runHandle 后台运行的 Run
type runHandle struct {
	done chan struct{}
	err  error
}

// wait 等待 Run 返回，可以多次调用
func (r *runHandle) wait(t *testing.T) error {
	t.Helper()
	select {
	case <-r.done:
		return r.err
	case <-time.After(2 * time.Second):
		require.FailNow(t, "等待 Run 返回超时")
		return nil
	}
}

// startMonitor 在后台运行监控器并等待消息循环开始
//
// 测试结束时自动停止并等待 Run 返回。
func startMonitor(t *testing.T, m *Monitor, fake *fakeBackend) *runHandle {
	t.Helper()

	run := &runHandle{done: make(chan struct{})}
	go func() {
		defer close(run.done)
		run.err = m.Run(context.Background())
	}()

	select {
	case <-fake.pumping:
	case <-run.done:
		t.Fatalf("Run 提前返回: %v", run.err)
	case <-time.After(2 * time.Second):
		t.Fatal("等待消息循环超时")
	}

	t.Cleanup(func() {
		_ = m.Stop()
		run.wait(t)
	})

	return run
}

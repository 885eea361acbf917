package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chenyang-zz/shion/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allCallbacks(rec *programRecorder, keys, mouse *activityRecorder) WatchOption {
	return WatchOption{
		Window:   rec.record,
		Keyboard: keys.record,
		Mouse:    mouse.record,
		Audio:    func(AudioActivity) {},
	}
}

func TestMonitor_AccessDenied(t *testing.T) {
	fake := newFakeBackend()
	rec := &programRecorder{}
	m := New(fake, WatchOption{Window: rec.record}, DefaultConfig())
	startMonitor(t, m, fake)

	// 有标题但无法打开进程
	fake.addWindow(1, "Task Manager", "")
	fake.sendWindow(foreground(1))

	assert.Empty(t, rec.all())
}

func TestMonitor_EmptyTitle(t *testing.T) {
	fake := newFakeBackend()
	rec := &programRecorder{}
	m := New(fake, WatchOption{Window: rec.record}, DefaultConfig())
	startMonitor(t, m, fake)

	fake.addWindow(1, "", `C:\apps\a.exe`)
	fake.sendWindow(foreground(1))

	assert.Empty(t, rec.all())
	fake.mu.Lock()
	assert.Zero(t, fake.pathCalls, "标题为空时不应该解析路径")
	fake.mu.Unlock()
}

func TestMonitor_InstallsEnabledAdapters(t *testing.T) {
	fake := newFakeBackend()
	rec, keys, mouse := &programRecorder{}, &activityRecorder{}, &activityRecorder{}

	cfg := DefaultConfig()
	cfg.EnableMouse = false
	m := New(fake, allCallbacks(rec, keys, mouse), cfg)
	startMonitor(t, m, fake)

	assert.Equal(t, []string{"window", "keyboard", "audio"}, fake.installedHooks())
	assert.True(t, m.IsRunning())
}

func TestMonitor_FailOpen(t *testing.T) {
	fake := newFakeBackend()
	fake.hookErrs["keyboard"] = platform.ErrHookFailed
	fake.hookErrs["audio"] = platform.ErrUnsupported

	rec, keys, mouse := &programRecorder{}, &activityRecorder{}, &activityRecorder{}
	m := New(fake, allCallbacks(rec, keys, mouse), DefaultConfig())
	startMonitor(t, m, fake)

	assert.Equal(t, []string{"window", "mouse"}, fake.installedHooks())

	fake.addWindow(1, "still works", "/usr/bin/vim")
	fake.focus(1)
	fake.sendWindow(foreground(1))
	fake.sendMouse(platform.InputMouseButton)

	assert.Len(t, rec.all(), 1)
	assert.Len(t, mouse.all(), 1)
}

func TestMonitor_AllAdaptersFail(t *testing.T) {
	fake := newFakeBackend()
	fake.hookErrs["window"] = platform.ErrHookFailed
	fake.hookErrs["audio"] = platform.ErrUnsupported

	m := New(fake, WatchOption{Window: func(Program) {}}, DefaultConfig())

	err := m.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, platform.ErrHookFailed)
	assert.ErrorIs(t, err, platform.ErrUnsupported)
	assert.Contains(t, err.Error(), "window")
	assert.Contains(t, err.Error(), "audio")
	assert.False(t, m.IsRunning())
}

func TestMonitor_NoAdapterEnabled(t *testing.T) {
	m := New(newFakeBackend(), WatchOption{}, Config{})

	err := m.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoAdapter)
}

func TestMonitor_PanicRecovery(t *testing.T) {
	fake := newFakeBackend()
	calls := 0
	m := New(fake, WatchOption{Window: func(p Program) {
		calls++
		if p.Title == "boom" {
			panic("consumer failure")
		}
	}}, DefaultConfig())
	startMonitor(t, m, fake)

	fake.addWindow(1, "boom", "/usr/bin/a")
	fake.addWindow(2, "fine", "/usr/bin/b")

	assert.NotPanics(t, func() { fake.sendWindow(foreground(1)) })
	fake.sendWindow(foreground(2))

	assert.Equal(t, 2, calls, "panic 之后仍然继续投递")
	assert.True(t, m.IsRunning())
}

func TestMonitor_Stop(t *testing.T) {
	fake := newFakeBackend()
	rec, keys, mouse := &programRecorder{}, &activityRecorder{}, &activityRecorder{}
	m := New(fake, allCallbacks(rec, keys, mouse), DefaultConfig())
	run := startMonitor(t, m, fake)

	require.NoError(t, m.Stop())
	require.NoError(t, run.wait(t))

	assert.False(t, m.IsRunning())
	assert.Equal(t, []string{"audio", "mouse", "keyboard", "window"}, fake.closedHooks(), "按安装的逆序注销")

	assert.ErrorIs(t, m.Stop(), ErrNotRunning)
	assert.ErrorIs(t, m.Run(context.Background()), ErrStopped)
}

func TestMonitor_ContextCancel(t *testing.T) {
	fake := newFakeBackend()
	m := New(fake, WatchOption{Window: func(Program) {}}, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	<-fake.pumping
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ctx 取消后 Run 应该返回")
	}
	assert.Equal(t, []string{"audio", "window"}, fake.closedHooks())
}

func TestMonitor_PumpError(t *testing.T) {
	fake := newFakeBackend()
	fake.pumpErr = errors.New("GetMessageW failed")
	m := New(fake, WatchOption{Window: func(Program) {}}, DefaultConfig())

	err := m.Run(context.Background())
	assert.ErrorContains(t, err, "GetMessageW failed")
	assert.Equal(t, []string{"audio", "window"}, fake.closedHooks(), "消息循环出错时也要注销订阅")
}

func TestMonitor_RunTwice(t *testing.T) {
	fake := newFakeBackend()
	m := New(fake, WatchOption{Window: func(Program) {}}, DefaultConfig())
	startMonitor(t, m, fake)

	assert.ErrorIs(t, m.Run(context.Background()), ErrAlreadyRunning)
}

func TestMonitor_StopBeforeRun(t *testing.T) {
	m := New(newFakeBackend(), WatchOption{}, DefaultConfig())
	assert.ErrorIs(t, m.Stop(), ErrNotRunning)
	assert.False(t, m.IsRunning())
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Second, cfg.ThrottleWindow)
	assert.Equal(t, 32, cfg.IconSize)
	assert.Equal(t, 10*time.Minute, cfg.IconCacheTTL)
	assert.False(t, cfg.EnableWindow, "Enable* 不会被默认值覆盖")

	assert.True(t, DefaultConfig().EnableAudio)
}

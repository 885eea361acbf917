package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chenyang-zz/shion/internal/infrastructure/cache"
	"github.com/chenyang-zz/shion/internal/platform"
	"github.com/chenyang-zz/shion/pkg/logger"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyRunning Run 被重复调用
	ErrAlreadyRunning = errors.New("monitor already running")

	// ErrNotRunning 监控器未运行
	ErrNotRunning = errors.New("monitor not running")

	// ErrStopped 监控器已经停止，不能再次运行
	ErrStopped = errors.New("monitor stopped")

	// ErrNoAdapter 没有任何适配器启动成功
	ErrNoAdapter = errors.New("no adapter started")
)

type state int32

const (
	stateCreated state = iota
	stateRunning
	stateStopped
)

// Monitor 活动监控器
//
// 在一个锁定了系统线程的 goroutine 上安装窗口、键盘、鼠标和音频订阅并运行消息循环，
// 把原始事件转换为 Program / Activity / AudioActivity 交给 WatchOption 中的回调。
// 生命周期：Created -> Running -> Stopped，不能重新启动。
type Monitor struct {
	backend platform.Backend
	opt     WatchOption
	cfg     Config

	keyboard *Throttle
	mouse    *Throttle

	// icons 路径 -> 图标 PNG
	icons *cache.MemoryCache[[]byte]

	// audio 路径 -> 最近的音频状态
	audio         *cache.MemoryCache[AudioState]
	audioWatching atomic.Bool

	now func() time.Time

	mu       sync.Mutex
	state    state
	stop     chan struct{}
	stopOnce sync.Once
}

// New 创建监控器
//
// Parameters:
//   - backend: 平台后端，通常是 platform.New 的返回值
//   - opt: 事件回调
//   - cfg: 配置，零值字段使用默认值（Enable* 除外）
func New(backend platform.Backend, opt WatchOption, cfg Config) *Monitor {
	cfg = cfg.withDefaults()
	return &Monitor{
		backend:  backend,
		opt:      opt,
		cfg:      cfg,
		keyboard: NewThrottle(cfg.ThrottleWindow),
		mouse:    NewThrottle(cfg.ThrottleWindow),
		icons:    cache.NewMemoryCache[[]byte](iconCacheSize, 0),
		audio:    cache.NewMemoryCache[AudioState](0, 0),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// installedHook 已安装的订阅及其名称
type installedHook struct {
	name string
	hook platform.Hook
}

// Run 安装订阅并运行消息循环，直到 Stop、ctx 取消或消息循环退出
//
// 必须在专用的 goroutine 上调用，Run 会锁定当前系统线程。
// 单个适配器安装失败只记录日志，全部失败时返回包含每个原因的错误。
//
// Returns: error - 全部适配器失败或消息循环出错时返回错误
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case stateRunning:
		m.mu.Unlock()
		return ErrAlreadyRunning
	case stateStopped:
		m.mu.Unlock()
		return ErrStopped
	}
	m.state = stateRunning
	m.mu.Unlock()
	defer m.finish()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	hooks, err := m.install()
	if len(hooks) == 0 {
		if err == nil {
			err = ErrNoAdapter
		}
		logger.Error("没有可用的监控适配器", zap.String("component", "monitor"), zap.Error(err))
		return fmt.Errorf("start monitor: %w", err)
	}
	defer m.uninstall(hooks)

	logger.Info("活动监控已启动",
		zap.String("component", "monitor"),
		zap.Strings("adapters", hookNames(hooks)),
	)

	go func() {
		select {
		case <-ctx.Done():
			_ = m.Stop()
		case <-m.stop:
		}
	}()

	if err := m.backend.Pump(m.stop); err != nil {
		logger.Error("消息循环异常退出", zap.String("component", "monitor"), zap.Error(err))
		return fmt.Errorf("message loop: %w", err)
	}
	return nil
}

// install 依次安装各个适配器，返回成功安装的订阅和所有失败原因
func (m *Monitor) install() ([]installedHook, error) {
	type adapter struct {
		name    string
		enabled bool
		install func() (platform.Hook, error)
	}

	adapters := []adapter{
		{"window", m.cfg.EnableWindow && m.opt.Window != nil, func() (platform.Hook, error) {
			return m.backend.HookWindow(func(ev platform.WindowEvent) {
				invoke("window", func() { m.onWindowEvent(ev) })
			})
		}},
		{"keyboard", m.cfg.EnableKeyboard && m.opt.Keyboard != nil, func() (platform.Hook, error) {
			return m.backend.HookKeyboard(func(ev platform.InputEvent) {
				invoke("keyboard", func() { m.onKeyboard(ev) })
			})
		}},
		{"mouse", m.cfg.EnableMouse && m.opt.Mouse != nil, func() (platform.Hook, error) {
			return m.backend.HookMouse(func(ev platform.InputEvent) {
				invoke("mouse", func() { m.onMouse(ev) })
			})
		}},
		{"audio", m.cfg.EnableAudio, func() (platform.Hook, error) {
			return m.backend.WatchAudio(func(ev platform.AudioEvent) {
				invoke("audio", func() { m.onAudio(ev) })
			})
		}},
	}

	var hooks []installedHook
	var errs error
	for _, a := range adapters {
		if !a.enabled {
			continue
		}

		hook, err := a.install()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", a.name, err))
			if errors.Is(err, platform.ErrUnsupported) {
				logger.Info("当前平台不支持该适配器", zap.String("component", "monitor"), zap.String("adapter", a.name))
			} else {
				logger.Error("适配器安装失败", zap.String("component", "monitor"), zap.String("adapter", a.name), zap.Error(err))
			}
			continue
		}

		if a.name == "audio" {
			m.audioWatching.Store(true)
		}
		hooks = append(hooks, installedHook{name: a.name, hook: hook})
	}

	return hooks, errs
}

// uninstall 逆序关闭所有订阅，错误只记录日志
func (m *Monitor) uninstall(hooks []installedHook) {
	m.audioWatching.Store(false)
	// 停止后不再有 Expired 事件，缓存的状态已经不可信
	_ = m.audio.Clear()
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i].hook.Close(); err != nil {
			logger.Warn("关闭订阅失败",
				zap.String("component", "monitor"),
				zap.String("adapter", hooks[i].name),
				zap.Error(err),
			)
		}
	}
	logger.Info("活动监控已停止", zap.String("component", "monitor"))
}

func (m *Monitor) finish() {
	m.mu.Lock()
	m.state = stateStopped
	m.mu.Unlock()
	m.stopOnce.Do(func() { close(m.stop) })
}

// Stop 请求停止，消息循环被唤醒后 Run 注销所有订阅并返回
//
// Returns: error - 未运行时返回 ErrNotRunning
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != stateRunning {
		return ErrNotRunning
	}
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

// IsRunning 检查运行状态
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == stateRunning
}

func hookNames(hooks []installedHook) []string {
	return lo.Map(hooks, func(h installedHook, _ int) string { return h.name })
}

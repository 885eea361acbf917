/**
 * Package app 提供 Wails App 层的实现
 *
 * App 层职责：
 * - 组装活动监控、事件总线、会话追踪和存储
 * - 把监控记录发布到事件总线，并通过 Wails 推送到前端
 * - 提供前端可调用的导出方法
 */

package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chenyang-zz/shion/internal/domain/session"
	"github.com/chenyang-zz/shion/internal/infrastructure/config"
	"github.com/chenyang-zz/shion/internal/infrastructure/storage"
	"github.com/chenyang-zz/shion/internal/monitor"
	"github.com/chenyang-zz/shion/internal/platform"
	"github.com/chenyang-zz/shion/internal/services"
	"github.com/chenyang-zz/shion/pkg/events"
	"github.com/chenyang-zz/shion/pkg/logger"
	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// 推送给前端的事件名
const (
	EventProgramActivity = "program-activity"
	EventProgramActivate = "program-activity-activate"
	EventAudioActivity   = "audio-activity"
	EventFilterProgram   = "filter-program"
	EventCloseWatch      = "close-watch"
)

const (
	// monitorStopTimeout 等待监控线程退出的时间
	monitorStopTimeout = 3 * time.Second

	// busStopTimeout 等待事件总线订阅者处理完剩余事件的时间
	busStopTimeout = 3 * time.Second
)

// Emitter 向前端推送事件，签名与 runtime.EventsEmit 一致
type Emitter func(ctx context.Context, eventName string, optionalData ...interface{})

// Option App 构造选项
type Option func(*App)

// WithConfig 使用指定配置，path 非空时监听该文件的变化
func WithConfig(cfg *config.Config, path string) Option {
	return func(a *App) {
		a.config = cfg
		a.configPath = path
	}
}

// WithBackend 使用指定的平台后端
func WithBackend(backend platform.Backend) Option {
	return func(a *App) {
		a.backend = backend
	}
}

// WithEmitter 使用指定的前端推送函数
func WithEmitter(emit Emitter) Option {
	return func(a *App) {
		a.emit = emit
	}
}

/**
 * App 是 Wails 应用的主结构体
 *
 * Startup 组装所有组件并在独立的 goroutine 上运行活动监控，
 * Shutdown 按依赖的反向顺序停止。
 */
type App struct {
	// ctx 是 Wails 运行时上下文
	ctx    context.Context
	cancel context.CancelFunc

	config     *config.Config
	configPath string
	backend    platform.Backend
	emit       Emitter

	eventBus    *events.EventBus
	db          *sql.DB
	activities  *storage.SQLiteActivityRepository
	programs    *storage.ProgramRepository
	sessions    *storage.SessionRepository
	writer      *storage.BatchWriter
	sink        *storage.Sink
	tracker     *session.Tracker
	monitor     *monitor.Monitor
	permissions *services.PermissionManager

	filters       atomic.Pointer[filters]
	filterProgram atomic.Bool

	monitorDone  chan struct{}
	background   sync.WaitGroup
	shutdownOnce sync.Once
}

/**
 * New 创建一个新的 App 实例
 *
 * 没有指定配置、后端或推送函数时，Startup 中分别使用 config.Load、
 * platform.New 和 runtime.EventsEmit。
 *
 * Returns:
 *   - *App: App 实例
 */
func New(opts ...Option) *App {
	a := &App{}
	for _, opt := range opts {
		opt(a)
	}
	a.filters.Store(&filters{})
	return a
}

/**
 * Startup 应用启动时的初始化
 *
 * 在 Wails 应用启动时调用，负责：
 * 1. 打开数据库并清理过期数据
 * 2. 创建事件总线并挂载会话追踪、持久化和前端推送
 * 3. 检查系统权限
 * 4. 在独立的 goroutine 上启动活动监控
 *
 * Parameters:
 *   - ctx: Wails 启动上下文
 *
 * Returns:
 *   - error: 初始化过程中的错误
 */
func (a *App) Startup(ctx context.Context) error {
	if a.config == nil {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		a.config = cfg
	}
	if a.backend == nil {
		a.backend = platform.New(platform.Options{
			AudioPollInterval: a.config.Monitor.AudioPollInterval,
		})
	}
	if a.emit == nil {
		a.emit = runtime.EventsEmit
	}

	a.ctx, a.cancel = context.WithCancel(ctx)
	a.setFilters(a.config.Monitor.Filters)

	if err := a.openStorage(); err != nil {
		a.cancel()
		a.cancel = nil
		return err
	}

	a.eventBus = events.NewEventBus()
	a.eventBus.Use(events.RecoveryMiddleware())
	a.eventBus.Use(events.LoggingMiddleware(func(event events.Event) {
		logger.Debug("事件",
			zap.String("component", "app"),
			zap.String("type", string(event.Type)),
			zap.String("path", event.Path()),
		)
	}))

	a.tracker = session.NewTracker(a.eventBus, a.sessions, a.config.Session.IdleTimeout)
	a.subscribe()

	a.permissions = services.NewPermissionManager(platform.CheckPermission, a.eventBus)
	if err := a.permissions.EnsurePermission(); err != nil {
		logger.Warn("缺少系统权限，部分事件源可能无法启动",
			zap.String("component", "app"),
			zap.Error(err),
		)
	}

	a.monitor = monitor.New(a.backend, monitor.WatchOption{
		Window:   a.onProgram,
		Keyboard: a.onActivity,
		Mouse:    a.onActivity,
		Audio:    a.onAudio,
	}, monitorConfig(a.config))

	a.monitorDone = make(chan struct{})
	go a.runMonitor()

	if a.configPath != "" {
		a.background.Add(1)
		go a.watchConfig()
	}

	logger.Info("应用已启动", zap.String("component", "app"))
	return nil
}

// openStorage 打开数据库，创建仓储和批量写入器
func (a *App) openStorage() error {
	sqliteCfg := a.config.Storage.SQLite
	db, err := storage.Open(storage.SQLiteConfig{
		Path:         sqliteCfg.Path,
		MaxOpenConns: sqliteCfg.MaxOpenConns,
		MaxIdleConns: sqliteCfg.MaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	a.db = db
	a.activities = storage.NewSQLiteActivityRepository(db)
	a.programs = storage.NewProgramRepository(db)
	a.sessions = storage.NewSessionRepository(db)

	a.prune()

	a.writer = storage.NewBatchWriter(a.activities, storage.BatchWriterConfig{
		BatchSize:     sqliteCfg.BatchSize,
		FlushInterval: sqliteCfg.FlushInterval,
	})
	a.writer.Start()
	a.sink = storage.NewSink(a.writer, a.programs, storage.DefaultSinkConfig())
	return nil
}

// prune 按保留策略删除过期的活动记录和会话
func (a *App) prune() {
	days := a.config.Storage.Retention.ActivityDays
	if days <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	if _, err := a.activities.DeleteOlderThan(cutoff); err != nil {
		logger.Warn("清理活动记录失败", zap.String("component", "app"), zap.Error(err))
	}
	if _, err := a.sessions.DeleteOlderThan(a.ctx, cutoff); err != nil {
		logger.Warn("清理会话失败", zap.String("component", "app"), zap.Error(err))
	}
}

// subscribe 挂载事件总线订阅者
func (a *App) subscribe() {
	persisted := []events.EventType{
		events.EventTypeProgram,
		events.EventTypeKeyboard,
		events.EventTypeMouse,
		events.EventTypeAudio,
	}
	for _, eventType := range persisted {
		a.eventBus.Subscribe(string(eventType), a.sink.HandleEvent)
		a.eventBus.Subscribe(string(eventType), a.forward)
	}

	for _, eventType := range []events.EventType{events.EventTypeProgram, events.EventTypeKeyboard, events.EventTypeMouse} {
		a.eventBus.Subscribe(string(eventType), a.tracker.HandleEvent)
	}
}

// forward 把总线事件推送到前端
func (a *App) forward(event events.Event) error {
	var name string
	switch event.Type {
	case events.EventTypeProgram:
		name = EventProgramActivity
	case events.EventTypeKeyboard, events.EventTypeMouse:
		name = EventProgramActivate
	case events.EventTypeAudio:
		name = EventAudioActivity
	default:
		return nil
	}
	a.emit(a.ctx, name, event.Data)
	return nil
}

// runMonitor 运行活动监控直到停止
func (a *App) runMonitor() {
	defer close(a.monitorDone)

	if err := a.monitor.Run(a.ctx); err != nil {
		logger.Error("活动监控退出", zap.String("component", "app"), zap.Error(err))
	}
}

// watchConfig 配置文件变化时更新日志级别和过滤器
func (a *App) watchConfig() {
	defer a.background.Done()

	err := config.Watch(a.ctx, a.configPath, func(cfg *config.Config) {
		if err := logger.SetLevel(cfg.Logging.Level); err != nil {
			logger.Warn("日志级别无效", zap.String("component", "app"), zap.Error(err))
		}
		a.applyFilters(cfg.Monitor.Filters)
	})
	if err != nil {
		logger.Warn("无法监听配置文件", zap.String("component", "app"), zap.Error(err))
	}
}

/**
 * Shutdown 应用关闭时的清理
 *
 * 依次停止活动监控和事件总线，结束所有会话并通知前端，最后关闭存储。
 * 可以重复调用。
 *
 * Returns:
 *   - error: 各个组件停止时的错误
 */
func (a *App) Shutdown() error {
	var errs error
	a.shutdownOnce.Do(func() {
		if a.cancel == nil {
			return
		}
		a.cancel()

		if err := a.monitor.Stop(); err != nil && !errors.Is(err, monitor.ErrNotRunning) {
			errs = multierr.Append(errs, fmt.Errorf("stop monitor: %w", err))
		}
		select {
		case <-a.monitorDone:
		case <-time.After(monitorStopTimeout):
			errs = multierr.Append(errs, errors.New("timeout waiting for monitor to stop"))
		}

		// 总线处理完剩余事件后再结束会话，避免停止后又开始新会话
		if err := a.eventBus.Stop(busStopTimeout); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stop event bus: %w", err))
		}
		ended := a.tracker.EndAll()
		a.emit(a.ctx, EventCloseWatch)

		a.sink.Stop()
		a.writer.Stop()
		a.background.Wait()

		if err := a.db.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close database: %w", err))
		}

		logger.Info("应用已停止",
			zap.String("component", "app"),
			zap.Int("ended_sessions", ended),
		)
		_ = logger.Sync()
	})
	return errs
}

// monitorConfig 把应用配置转换为监控器配置
func monitorConfig(cfg *config.Config) monitor.Config {
	m := cfg.Monitor
	return monitor.Config{
		ThrottleWindow: m.ThrottleWindow,
		IconSize:       m.IconSize,
		IconCacheTTL:   m.IconCacheTTL,
		EnableWindow:   m.Adapters.Window,
		EnableKeyboard: m.Adapters.Keyboard,
		EnableMouse:    m.Adapters.Mouse,
		EnableAudio:    m.Adapters.Audio,
	}
}

package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/chenyang-zz/shion/pkg/events"
	"github.com/chenyang-zz/shion/pkg/logger"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// DefaultIdleTimeout 没有任何活动多久后结束会话
const DefaultIdleTimeout = 2 * time.Minute

// saveTimeout 单次保存会话的超时
const saveTimeout = 5 * time.Second

// Session 一个程序的连续使用时段
type Session struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// IsAlive 检查会话是否仍在进行
func (s Session) IsAlive() bool {
	return s.End.IsZero()
}

// Duration 计算会话时长，进行中的会话计算到当前时间
func (s Session) Duration() time.Duration {
	if s.IsAlive() {
		return time.Since(s.Start)
	}
	return s.End.Sub(s.Start)
}

// Saver 会话持久化接口
type Saver interface {
	SaveSession(ctx context.Context, s Session) error
}

// tracked 进行中的会话及其空闲计时器
type tracked struct {
	session    Session
	lastActive time.Time
	timer      *time.Timer

	// gen 每次 Touch 递增，过期回调据此判断计时器是否已被重置
	gen uint64
}

// Tracker 会话追踪器
//
// 每个程序路径最多有一个进行中的会话。程序的窗口事件和键鼠活跃信号都会重置空闲计时器，
// 计时器到期时会话结束，结束时间为最后一次活动的时间。
// 结束的会话发布为 EventTypeSession 事件并交给 Saver 保存。
type Tracker struct {
	idleTimeout time.Duration
	bus         *events.EventBus
	saver       Saver
	now         func() time.Time

	mu     sync.Mutex
	active map[string]*tracked
}

// NewTracker 创建会话追踪器
//
// Parameters:
//   - bus: 事件总线，为 nil 时不发布会话事件
//   - saver: 会话存储，为 nil 时不保存
//   - idleTimeout: 空闲超时，<=0 时使用 DefaultIdleTimeout
//
// Returns: *Tracker - 会话追踪器
func NewTracker(bus *events.EventBus, saver Saver, idleTimeout time.Duration) *Tracker {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Tracker{
		idleTimeout: idleTimeout,
		bus:         bus,
		saver:       saver,
		now:         time.Now,
		active:      make(map[string]*tracked),
	}
}

// Touch 记录一次活动，没有进行中的会话时开始新会话
//
// Parameters:
//   - path: 程序路径，为空时忽略
//   - description: 程序描述，为空时保留原值
func (t *Tracker) Touch(path, description string) {
	if path == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	s, ok := t.active[path]
	if !ok {
		s = &tracked{session: Session{
			ID:          uuid.NewString(),
			Path:        path,
			Description: description,
			Start:       now,
		}}
		t.active[path] = s

		logger.Debug("会话开始",
			zap.String("component", "session"),
			zap.String("path", path),
		)
	} else if description != "" {
		s.session.Description = description
	}

	s.lastActive = now
	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(t.idleTimeout, func() {
		t.expire(path, s, gen)
	})
}

// expire 空闲计时器到期
func (t *Tracker) expire(path string, s *tracked, gen uint64) {
	t.mu.Lock()
	if t.active[path] != s || s.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.active, path)
	finished := s.session
	finished.End = s.lastActive
	t.mu.Unlock()

	t.record(finished)
}

// Finish 立即结束某个程序的会话，结束时间为当前时间
//
// Returns: bool - 是否存在进行中的会话
func (t *Tracker) Finish(path string) bool {
	t.mu.Lock()
	s, ok := t.active[path]
	if !ok {
		t.mu.Unlock()
		return false
	}
	finished := t.detach(path, s)
	t.mu.Unlock()

	t.record(finished)
	return true
}

// EndAll 结束所有会话，在退出前调用
//
// Returns: int - 结束的会话数
func (t *Tracker) EndAll() int {
	t.mu.Lock()
	finished := make([]Session, 0, len(t.active))
	for _, path := range lo.Keys(t.active) {
		finished = append(finished, t.detach(path, t.active[path]))
	}
	t.mu.Unlock()

	for _, s := range finished {
		t.record(s)
	}
	return len(finished)
}

// detach 停止计时器并移除会话，调用方持有锁
func (t *Tracker) detach(path string, s *tracked) Session {
	if s.timer != nil {
		s.timer.Stop()
	}
	delete(t.active, path)

	finished := s.session
	finished.End = t.now()
	return finished
}

// Active 返回进行中的会话，按开始时间排序
func (t *Tracker) Active() []Session {
	t.mu.Lock()
	sessions := lo.Map(lo.Values(t.active), func(s *tracked, _ int) Session {
		return s.session
	})
	t.mu.Unlock()

	slices.SortFunc(sessions, func(a, b Session) int {
		return a.Start.Compare(b.Start)
	})
	return sessions
}

// HandleEvent 事件总线处理函数，程序和键鼠事件都算作活动
func (t *Tracker) HandleEvent(event events.Event) error {
	switch event.Type {
	case events.EventTypeProgram, events.EventTypeKeyboard, events.EventTypeMouse:
		description, _ := event.Data["description"].(string)
		t.Touch(event.Path(), description)
	}
	return nil
}

// record 发布并保存结束的会话
func (t *Tracker) record(s Session) {
	logger.Debug("会话结束",
		zap.String("component", "session"),
		zap.String("path", s.Path),
		zap.Duration("duration", s.Duration()),
	)

	if t.bus != nil {
		event := events.NewEvent(events.EventTypeSession, map[string]interface{}{
			"id":          s.ID,
			"path":        s.Path,
			"description": s.Description,
			"start":       s.Start,
			"end":         s.End,
			"duration":    s.Duration().Seconds(),
		})
		if err := t.bus.Publish(string(events.EventTypeSession), *event); err != nil {
			logger.Debug("发布会话事件失败", zap.String("component", "session"), zap.Error(err))
		}
	}

	if t.saver != nil {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := t.saver.SaveSession(ctx, s); err != nil {
			logger.Error("保存会话失败",
				zap.String("component", "session"),
				zap.String("path", s.Path),
				zap.Error(err),
			)
		}
	}
}

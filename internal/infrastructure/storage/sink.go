package storage

import (
	"context"
	"sync"
	"time"

	"github.com/chenyang-zz/shion/pkg/events"
	"github.com/chenyang-zz/shion/pkg/logger"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// upsertTimeout 单次保存程序的超时
const upsertTimeout = 5 * time.Second

/**
 * SinkConfig 持久化配置
 */
type SinkConfig struct {
	// EnabledEventTypes 需要写入活动记录的事件类型
	EnabledEventTypes map[events.EventType]bool

	// RetryOnError 写入通道满时是否重试
	RetryOnError bool

	// MaxRetries 最大重试次数
	MaxRetries int

	// RetryBackoff 第一次重试前的等待时间，之后每次翻倍
	RetryBackoff time.Duration
}

/**
 * DefaultSinkConfig 默认持久化配置
 */
func DefaultSinkConfig() SinkConfig {
	return SinkConfig{
		EnabledEventTypes: map[events.EventType]bool{
			events.EventTypeProgram:  true,
			events.EventTypeKeyboard: true,
			events.EventTypeMouse:    true,
			events.EventTypeAudio:    true,
		},
		RetryOnError: true,
		MaxRetries:   3,
		RetryBackoff: time.Second,
	}
}

/**
 * Sink 持久化订阅者
 *
 * 订阅事件总线：程序事件更新 programs 表，启用的事件类型经 BatchWriter 写入 activities 表。
 * 程序图标只保存在 programs 表中。
 */
type Sink struct {
	writer   *BatchWriter
	programs *ProgramRepository
	config   SinkConfig

	stop     chan struct{}
	stopOnce sync.Once
	retries  sync.WaitGroup
}

/**
 * NewSink 创建持久化订阅者
 *
 * Parameters:
 *   - writer: 活动记录批量写入器，为 nil 时不写活动记录
 *   - programs: 程序仓储，为 nil 时不保存程序
 *   - config: 持久化配置
 *
 * Returns: *Sink - 持久化订阅者
 */
func NewSink(writer *BatchWriter, programs *ProgramRepository, config SinkConfig) *Sink {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}

	logger.Info("创建持久化订阅者",
		zap.String("component", "storage"),
		zap.Int("enabled_types", len(config.EnabledEventTypes)),
		zap.Bool("retry_on_error", config.RetryOnError),
	)

	return &Sink{
		writer:   writer,
		programs: programs,
		config:   config,
		stop:     make(chan struct{}),
	}
}

/**
 * HandleEvent 事件总线处理函数
 *
 * Parameters:
 *   - event: 事件对象
 *
 * Returns: error - 保存程序失败时返回错误
 */
func (s *Sink) HandleEvent(event events.Event) error {
	var err error
	if event.Type == events.EventTypeProgram {
		err = s.saveProgram(event)
	}

	if !s.config.EnabledEventTypes[event.Type] || s.writer == nil {
		return err
	}

	record := withoutIcon(event)
	if !s.writer.Write(record) && s.config.RetryOnError && !s.stopped() {
		logger.Warn("活动记录写入失败，准备重试",
			zap.String("component", "storage"),
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
		)
		s.retries.Add(1)
		go s.retryWrite(record)
	}
	return err
}

// saveProgram 把程序事件保存到 programs 表
func (s *Sink) saveProgram(event events.Event) error {
	if s.programs == nil {
		return nil
	}

	record := ProgramRecord{
		Path:     event.Path(),
		LastSeen: event.Timestamp,
	}
	record.Description, _ = event.Data["description"].(string)
	record.Title, _ = event.Data["title"].(string)
	record.Icon, _ = event.Data["icon"].([]byte)
	if record.Path == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), upsertTimeout)
	defer cancel()
	return s.programs.Upsert(ctx, record)
}

// retryWrite 指数退避重试写入，Stop 后放弃
func (s *Sink) retryWrite(event events.Event) {
	defer s.retries.Done()

	backoff := s.config.RetryBackoff
	for i := 0; i < s.config.MaxRetries; i++ {
		select {
		case <-s.stop:
			return
		case <-time.After(backoff):
		}
		backoff *= 2

		if s.writer.Write(event) {
			logger.Debug("活动记录重试写入成功",
				zap.String("component", "storage"),
				zap.String("event_id", event.ID),
				zap.Int("attempt", i+1),
			)
			return
		}
	}

	logger.Error("活动记录重试写入失败",
		zap.String("component", "storage"),
		zap.String("event_id", event.ID),
		zap.Int("max_retries", s.config.MaxRetries),
	)
}

/**
 * Stop 放弃进行中的重试并等待退出
 *
 * BatchWriter 由调用方在 Stop 之后停止
 */
func (s *Sink) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.retries.Wait()
}

func (s *Sink) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// withoutIcon 复制事件并去掉图标数据
func withoutIcon(event events.Event) events.Event {
	if _, ok := event.Data["icon"]; !ok {
		return event
	}

	event.Data = lo.OmitByKeys(event.Data, []string{"icon"})
	return event
}

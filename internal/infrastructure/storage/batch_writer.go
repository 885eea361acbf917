package storage

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/chenyang-zz/shion/pkg/events"
	"github.com/chenyang-zz/shion/pkg/logger"
	"go.uber.org/zap"
)

/**
 * BatchWriterConfig 批量写入器配置
 */
type BatchWriterConfig struct {
	// BatchSize 批量大小（达到此数量时自动刷新）
	BatchSize int

	// FlushInterval 刷新间隔（定时刷新）
	FlushInterval time.Duration

	// EventBuffer 缓冲区大小（channel 容量）
	EventBuffer int
}

/**
 * DefaultBatchWriterConfig 默认配置
 */
func DefaultBatchWriterConfig() BatchWriterConfig {
	return BatchWriterConfig{
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
		EventBuffer:   1000,
	}
}

// withDefaults 零值字段使用默认配置
func (c BatchWriterConfig) withDefaults() BatchWriterConfig {
	def := DefaultBatchWriterConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = def.FlushInterval
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
	return c
}

/**
 * BatchWriterStats 批量写入器统计信息快照
 */
type BatchWriterStats struct {
	// TotalEvents 接收的事件数
	TotalEvents int64 `json:"total_events"`

	// PersistedEvents 成功持久化的事件数
	PersistedEvents int64 `json:"persisted_events"`

	// FailedEvents 写入失败的事件数（含通道满丢弃）
	FailedEvents int64 `json:"failed_events"`

	// Buffered 缓冲区中等待写入的事件数
	Buffered int `json:"buffered"`

	// AverageLatency 平均每批写入耗时
	AverageLatency time.Duration `json:"average_latency"`
}

/**
 * BatchWriter 批量写入器
 *
 * 缓冲活动记录并批量写入数据库。写入失败的批次保留在缓冲区，
 * 由定时刷新重试，重试成功之前不再按批量大小触发写入；
 * 缓冲区超过 EventBuffer 时丢弃最旧的记录。
 */
type BatchWriter struct {
	repo   ActivityRepository
	config BatchWriterConfig

	eventChan chan events.Event
	done      chan struct{}

	// mu 保护 buffer 和 retrying
	mu     sync.Mutex
	buffer []events.Event

	// retrying 上次写入失败，等待定时刷新重试
	retrying bool

	// chanMu 保护 eventChan 的发送和关闭
	chanMu  sync.RWMutex
	started bool
	closed  bool

	wg sync.WaitGroup

	total     atomic.Int64
	persisted atomic.Int64
	failed    atomic.Int64
	batches   atomic.Int64
	latency   atomic.Int64
}

/**
 * NewBatchWriter 创建批量写入器
 *
 * Parameters:
 *   - repo: 活动记录仓储
 *   - config: 配置，零值字段使用默认值
 *
 * Returns: *BatchWriter - 批量写入器实例
 */
func NewBatchWriter(repo ActivityRepository, config BatchWriterConfig) *BatchWriter {
	config = config.withDefaults()
	return &BatchWriter{
		repo:      repo,
		config:    config,
		eventChan: make(chan events.Event, config.EventBuffer),
		done:      make(chan struct{}),
		buffer:    make([]events.Event, 0, config.BatchSize),
	}
}

/**
 * Start 启动批量写入器
 *
 * 开始处理事件通道和定时刷新，停止后不能再次启动
 */
func (bw *BatchWriter) Start() {
	bw.chanMu.Lock()
	defer bw.chanMu.Unlock()

	if bw.started || bw.closed {
		logger.Warn("批量写入器已经启动或已停止", zap.String("component", "storage"))
		return
	}
	bw.started = true

	bw.wg.Add(2)
	go bw.processEvents()
	go bw.flushLoop()

	logger.Info("批量写入器已启动",
		zap.String("component", "storage"),
		zap.Int("batch_size", bw.config.BatchSize),
		zap.Duration("flush_interval", bw.config.FlushInterval),
		zap.Int("event_buffer", bw.config.EventBuffer),
	)
}

/**
 * Stop 停止批量写入器
 *
 * 停止接收新事件，处理完通道中剩余的事件并刷新缓冲区
 */
func (bw *BatchWriter) Stop() {
	bw.chanMu.Lock()
	if !bw.started || bw.closed {
		bw.chanMu.Unlock()
		return
	}
	bw.closed = true
	close(bw.eventChan)
	bw.chanMu.Unlock()

	logger.Info("正在停止批量写入器...", zap.String("component", "storage"))

	close(bw.done)
	bw.wg.Wait()

	bw.ForceFlush()

	bw.mu.Lock()
	remaining := len(bw.buffer)
	bw.mu.Unlock()
	if remaining > 0 {
		bw.failed.Add(int64(remaining))
		logger.Error("批量写入器停止时仍有未写入的记录",
			zap.String("component", "storage"),
			zap.Int("count", remaining),
		)
	}

	logger.Info("批量写入器已停止", zap.String("component", "storage"))
}

/**
 * Write 写入单个事件
 *
 * 非阻塞方法，将事件放入通道
 *
 * Parameters:
 *   - event: 事件对象
 *
 * Returns: bool - 是否成功写入（未启动、已停止或通道满时返回 false）
 */
func (bw *BatchWriter) Write(event events.Event) bool {
	bw.chanMu.RLock()
	defer bw.chanMu.RUnlock()

	if !bw.started || bw.closed {
		return false
	}

	select {
	case bw.eventChan <- event:
		bw.total.Add(1)
		return true
	default:
		bw.failed.Add(1)
		logger.Warn("批量写入器通道已满",
			zap.String("component", "storage"),
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
		)
		return false
	}
}

/**
 * ForceFlush 强制刷新缓冲区
 */
func (bw *BatchWriter) ForceFlush() {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	bw.flush()
}

// processEvents 从通道接收事件放入缓冲区，通道关闭后退出
func (bw *BatchWriter) processEvents() {
	defer bw.wg.Done()

	for event := range bw.eventChan {
		bw.mu.Lock()
		bw.buffer = append(bw.buffer, event)
		if len(bw.buffer) >= bw.config.BatchSize && !bw.retrying {
			bw.flush()
		}
		bw.mu.Unlock()
	}
}

// flushLoop 定时刷新缓冲区
func (bw *BatchWriter) flushLoop() {
	defer bw.wg.Done()

	ticker := time.NewTicker(bw.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-bw.done:
			return
		case <-ticker.C:
			bw.ForceFlush()
		}
	}
}

/**
 * flush 刷新缓冲区到数据库
 *
 * 必须在持有 mu 的情况下调用
 */
func (bw *BatchWriter) flush() {
	if len(bw.buffer) == 0 {
		return
	}

	startTime := time.Now()
	count := len(bw.buffer)

	err := bw.repo.SaveBatch(bw.buffer)
	bw.retrying = err != nil
	if err != nil {
		logger.Error("批量写入失败",
			zap.String("component", "storage"),
			zap.Int("count", count),
			zap.Error(err),
		)
		// 失败的批次留待下次重试，超出容量时丢弃最旧的记录
		if overflow := count - bw.config.EventBuffer; overflow > 0 {
			bw.buffer = append(bw.buffer[:0], bw.buffer[overflow:]...)
			bw.failed.Add(int64(overflow))
		}
		return
	}

	bw.buffer = bw.buffer[:0]

	duration := time.Since(startTime)
	bw.persisted.Add(int64(count))
	bw.batches.Add(1)
	bw.latency.Add(int64(duration))

	logger.Debug("批量刷新完成",
		zap.String("component", "storage"),
		zap.Int("count", count),
		zap.Duration("duration", duration),
	)
}

/**
 * GetStats 获取统计信息
 *
 * Returns: BatchWriterStats - 统计信息快照
 */
func (bw *BatchWriter) GetStats() BatchWriterStats {
	stats := BatchWriterStats{
		TotalEvents:     bw.total.Load(),
		PersistedEvents: bw.persisted.Load(),
		FailedEvents:    bw.failed.Load(),
	}
	bw.mu.Lock()
	stats.Buffered = len(bw.buffer)
	bw.mu.Unlock()

	if batches := bw.batches.Load(); batches > 0 {
		stats.AverageLatency = time.Duration(bw.latency.Load() / batches)
	}
	return stats
}

/**
 * Package cache 提供缓存抽象和实现
 *
 * 监控器用它保存音频会话的最近状态和程序图标
 */

package cache

import (
	"errors"
	"sync/atomic"
	"time"
)

// ErrStopped 缓存已停止
var ErrStopped = errors.New("cache is stopped")

/**
 * Cache 缓存接口
 */
type Cache[V any] interface {
	// Get 获取缓存值
	// Parameters:
	//   - key: 缓存键
	// Returns: V - 缓存值, bool - 是否找到
	Get(key string) (V, bool)

	// Set 设置缓存值
	// Parameters:
	//   - key: 缓存键
	//   - value: 缓存值
	//   - ttl: 过期时间（0表示永不过期）
	// Returns: error - 错误信息
	Set(key string, value V, ttl time.Duration) error

	// Delete 删除缓存
	Delete(key string) error

	// Clear 清空所有缓存
	Clear() error

	// Exists 检查键是否存在
	Exists(key string) bool

	// Count 获取缓存项数量
	Count() int

	// Stop 停止缓存（清理资源）
	Stop()
}

/**
 * CacheStats 缓存统计信息
 */
type CacheStats struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64
}

// StatsSnapshot 统计信息快照
type StatsSnapshot struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Deletes   int64 `json:"deletes"`
	Evictions int64 `json:"evictions"`
}

func (s *CacheStats) RecordHit()      { s.hits.Add(1) }
func (s *CacheStats) RecordMiss()     { s.misses.Add(1) }
func (s *CacheStats) RecordSet()      { s.sets.Add(1) }
func (s *CacheStats) RecordDelete()   { s.deletes.Add(1) }
func (s *CacheStats) RecordEviction() { s.evictions.Add(1) }

/**
 * Snapshot 获取统计信息快照
 */
func (s *CacheStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Sets:      s.sets.Load(),
		Deletes:   s.deletes.Load(),
		Evictions: s.evictions.Load(),
	}
}

/**
 * HitRate 计算缓存命中率
 * Returns: float64 - 命中率（0-1之间）
 */
func (s *CacheStats) HitRate() float64 {
	hits, misses := s.hits.Load(), s.misses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

/**
 * Reset 重置统计信息
 */
func (s *CacheStats) Reset() {
	s.hits.Store(0)
	s.misses.Store(0)
	s.sets.Store(0)
	s.deletes.Store(0)
	s.evictions.Store(0)
}

/**
 * Package cache 缓存实现
 *
 * 提供基于内存的缓存实现，支持 TTL 和 LRU 淘汰策略
 */

package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chenyang-zz/shion/pkg/logger"
	"go.uber.org/zap"
)

// cacheItem 缓存项
type cacheItem[V any] struct {
	// value 缓存值
	value V

	// expiration 过期时间（零值表示永不过期）
	expiration time.Time

	// lastUsed 最后访问序号，用于 LRU
	lastUsed atomic.Uint64
}

// isExpired 检查缓存项在 now 时刻是否过期
func (item *cacheItem[V]) isExpired(now time.Time) bool {
	if item.expiration.IsZero() {
		return false
	}
	return now.After(item.expiration)
}

/**
 * MemoryCache 内存缓存实现
 *
 * 特性：
 * - 并发安全（使用 sync.Map），可以在 OS 回调线程上直接读写
 * - TTL 支持
 * - LRU 淘汰策略
 * - 定期清理过期项
 * - 缓存统计
 */
type MemoryCache[V any] struct {
	// items 缓存项映射
	items sync.Map

	// maxSize 最大缓存项数（0 表示无限制）
	maxSize int

	// cleanupInterval 清理间隔
	cleanupInterval time.Duration

	// stats 缓存统计
	stats CacheStats

	// clock 访问序号，单调递增
	clock atomic.Uint64

	// now 时间来源（测试可替换）
	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// stopped 是否已停止
	stopped atomic.Bool

	// evictMu 串行化容量检查和淘汰
	evictMu sync.Mutex
}

/**
 * NewMemoryCache 创建内存缓存
 *
 * Parameters:
 *   - maxSize: 最大缓存项数（0 表示无限制）
 *   - cleanupInterval: 清理间隔（0 表示不定期清理）
 *
 * Returns: *MemoryCache - 内存缓存实例
 */
func NewMemoryCache[V any](maxSize int, cleanupInterval time.Duration) *MemoryCache[V] {
	ctx, cancel := context.WithCancel(context.Background())

	c := &MemoryCache[V]{
		maxSize:         maxSize,
		cleanupInterval: cleanupInterval,
		now:             time.Now,
		ctx:             ctx,
		cancel:          cancel,
	}

	if cleanupInterval > 0 {
		c.wg.Add(1)
		go c.cleanupLoop()
	}

	return c
}

/**
 * Set 设置缓存值
 *
 * Parameters:
 *   - key: 缓存键
 *   - value: 缓存值
 *   - ttl: 过期时间（0表示永不过期）
 *
 * Returns: error - 缓存已停止时返回 ErrStopped
 */
func (c *MemoryCache[V]) Set(key string, value V, ttl time.Duration) error {
	if c.stopped.Load() {
		return ErrStopped
	}

	item := &cacheItem[V]{value: value}
	if ttl > 0 {
		item.expiration = c.now().Add(ttl)
	}
	item.lastUsed.Store(c.clock.Add(1))

	if c.maxSize > 0 {
		c.evictMu.Lock()
		if _, exists := c.items.Load(key); !exists && c.Count() >= c.maxSize {
			c.evictLRU()
		}
		c.items.Store(key, item)
		c.evictMu.Unlock()
	} else {
		c.items.Store(key, item)
	}

	c.stats.RecordSet()
	return nil
}

/**
 * Get 获取缓存值
 *
 * Parameters:
 *   - key: 缓存键
 *
 * Returns: V - 缓存值, bool - 是否找到
 */
func (c *MemoryCache[V]) Get(key string) (V, bool) {
	var zero V
	if c.stopped.Load() {
		return zero, false
	}

	value, found := c.items.Load(key)
	if !found {
		c.stats.RecordMiss()
		return zero, false
	}

	item := value.(*cacheItem[V])
	if item.isExpired(c.now()) {
		c.items.CompareAndDelete(key, item)
		c.stats.RecordMiss()
		c.stats.RecordEviction()
		return zero, false
	}

	item.lastUsed.Store(c.clock.Add(1))
	c.stats.RecordHit()
	return item.value, true
}

/**
 * Delete 删除缓存
 */
func (c *MemoryCache[V]) Delete(key string) error {
	if c.stopped.Load() {
		return ErrStopped
	}

	c.items.Delete(key)
	c.stats.RecordDelete()
	return nil
}

/**
 * Clear 清空所有缓存
 */
func (c *MemoryCache[V]) Clear() error {
	if c.stopped.Load() {
		return ErrStopped
	}

	c.items.Range(func(key, _ any) bool {
		c.items.Delete(key)
		return true
	})
	return nil
}

/**
 * Count 获取缓存项数量（包括尚未清理的过期项）
 */
func (c *MemoryCache[V]) Count() int {
	count := 0
	c.items.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

/**
 * Range 遍历所有未过期的缓存项
 *
 * Parameters:
 *   - fn: 返回 false 时停止遍历
 */
func (c *MemoryCache[V]) Range(fn func(key string, value V) bool) {
	now := c.now()
	c.items.Range(func(key, value any) bool {
		item := value.(*cacheItem[V])
		if item.isExpired(now) {
			return true
		}
		return fn(key.(string), item.value)
	})
}

/**
 * GetStats 获取缓存统计信息
 */
func (c *MemoryCache[V]) GetStats() *CacheStats {
	return &c.stats
}

// evictLRU 淘汰最久未使用的缓存项，调用方持有 evictMu
func (c *MemoryCache[V]) evictLRU() {
	var oldestKey any
	var oldest uint64

	c.items.Range(func(key, value any) bool {
		used := value.(*cacheItem[V]).lastUsed.Load()
		if oldestKey == nil || used < oldest {
			oldestKey = key
			oldest = used
		}
		return true
	})

	if oldestKey != nil {
		c.items.Delete(oldestKey)
		c.stats.RecordEviction()
		logger.Debug("LRU 淘汰缓存项", zap.String("key", oldestKey.(string)))
	}
}

// cleanupLoop 定期清理过期缓存
func (c *MemoryCache[V]) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.ctx.Done():
			return
		}
	}
}

// cleanup 清理过期缓存
func (c *MemoryCache[V]) cleanup() {
	deleted := 0
	now := c.now()

	c.items.Range(func(key, value any) bool {
		item := value.(*cacheItem[V])
		if item.isExpired(now) && c.items.CompareAndDelete(key, item) {
			deleted++
			c.stats.RecordEviction()
		}
		return true
	})

	if deleted > 0 {
		logger.Debug("清理过期缓存",
			zap.Int("count", deleted),
			zap.Int("remaining", c.Count()))
	}
}

/**
 * Stop 停止缓存
 *
 * 停止清理循环并清空所有缓存项，重复调用无副作用
 */
func (c *MemoryCache[V]) Stop() {
	if !c.stopped.CompareAndSwap(false, true) {
		return
	}

	c.cancel()
	c.wg.Wait()

	c.items.Range(func(key, _ any) bool {
		c.items.Delete(key)
		return true
	})

	logger.Debug("内存缓存已停止", zap.Float64("hit_rate", c.stats.HitRate()))
}

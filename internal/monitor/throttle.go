package monitor

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle 按键去重的节流器
//
// 同一个 key 在窗口期内只放行一次；key 变化时立即放行并重新开始计时。
// 只记住最近一个 key，交替出现的两个 key 每次都会放行。
type Throttle struct {
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	key     string
	limiter *rate.Limiter
}

// NewThrottle 创建节流器
//
// Parameters:
//   - window: 窗口期，<=0 时使用 1 秒
func NewThrottle(window time.Duration) *Throttle {
	if window <= 0 {
		window = defaultThrottleWindow
	}
	return &Throttle{
		window: window,
		now:    time.Now,
	}
}

// Allow 判断本次事件是否放行
//
// 可以在多个 goroutine 上并发调用。
func (t *Throttle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.limiter == nil || key != t.key {
		t.key = key
		t.limiter = rate.NewLimiter(rate.Every(t.window), 1)
	}
	return t.limiter.AllowN(t.now(), 1)
}

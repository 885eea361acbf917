package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestThrottle(window time.Duration) (*Throttle, *fakeClock) {
	clock := newFakeClock()
	th := NewThrottle(window)
	th.now = clock.Now
	return th, clock
}

func TestThrottle_SameKey(t *testing.T) {
	th, clock := newTestThrottle(time.Second)

	assert.True(t, th.Allow("a"), "第一次应该放行")

	clock.Advance(500 * time.Millisecond)
	assert.False(t, th.Allow("a"), "窗口期内应该丢弃")

	clock.Advance(499 * time.Millisecond)
	assert.False(t, th.Allow("a"))

	clock.Advance(time.Millisecond)
	assert.True(t, th.Allow("a"), "窗口期结束后应该放行")
}

func TestThrottle_KeyChange(t *testing.T) {
	th, clock := newTestThrottle(time.Second)

	assert.True(t, th.Allow("a"))

	clock.Advance(100 * time.Millisecond)
	assert.True(t, th.Allow("b"), "key 变化立即放行")

	clock.Advance(100 * time.Millisecond)
	assert.False(t, th.Allow("b"))

	clock.Advance(100 * time.Millisecond)
	assert.True(t, th.Allow("a"), "切回之前的 key 也视为变化")

	clock.Advance(100 * time.Millisecond)
	assert.False(t, th.Allow("a"), "窗口从上次 key 变化重新计时")
}

func TestThrottle_DefaultWindow(t *testing.T) {
	th := NewThrottle(0)
	assert.Equal(t, time.Second, th.window)
}

func TestThrottle_Burst(t *testing.T) {
	th, clock := newTestThrottle(time.Second)

	allowed := 0
	for i := 0; i < 50; i++ {
		if th.Allow(`C:\apps\a.exe`) {
			allowed++
		}
		clock.Advance(4 * time.Millisecond)
	}
	assert.Equal(t, 1, allowed)
}

func TestThrottle_Concurrent(t *testing.T) {
	th, _ := newTestThrottle(time.Second)

	var mu sync.Mutex
	allowed := 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if th.Allow("same") {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, allowed, "时间不变时同一个 key 只放行一次")
}

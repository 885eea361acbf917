//go:build windows

package platform

import "sync"

// windowsBackend Win32 实现
//
// 钩子回调通过 windows.NewCallback 绑定到闭包，不依赖包级全局状态。
type windowsBackend struct {
	opts Options

	mu     sync.RWMutex
	audio  map[string]AudioState
	polled bool
}

// New 创建当前平台的后端
func New(opts Options) Backend {
	return &windowsBackend{opts: opts}
}

func (b *windowsBackend) setAudioSnapshot(states map[string]AudioState) {
	b.mu.Lock()
	b.audio = states
	b.polled = states != nil
	b.mu.Unlock()
}

func (b *windowsBackend) audioSnapshot() (map[string]AudioState, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.audio, b.polled
}

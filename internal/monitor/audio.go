package monitor

import (
	"github.com/chenyang-zz/shion/internal/platform"
)

// onAudio 先更新状态缓存再通知消费者，回调内调用 IsAudioActive 能看到最新状态
func (m *Monitor) onAudio(ev platform.AudioEvent) {
	if ev.Path == "" {
		return
	}

	if ev.State == AudioExpired {
		_ = m.audio.Delete(ev.Path)
	} else {
		_ = m.audio.Set(ev.Path, ev.State, 0)
	}

	if m.opt.Audio != nil {
		m.opt.Audio(AudioActivity{State: ev.State, Path: ev.Path})
	}
}

// IsAudioActive 查询该路径的程序是否正在播放音频
//
// 音频订阅运行时读取最近一次状态；订阅不可用时直接查询系统。
// 可以在任意线程调用。
func (m *Monitor) IsAudioActive(path string) bool {
	if !m.audioWatching.Load() {
		return m.backend.AudioSessionActive(path)
	}
	state, ok := m.audio.Get(path)
	return ok && state == AudioActive
}

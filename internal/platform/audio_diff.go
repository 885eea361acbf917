package platform

// diffAudioStates 比较两次快照，返回需要通知的状态变化
func diffAudioStates(prev, next map[string]AudioState) []AudioEvent {
	var changes []AudioEvent
	for path, state := range next {
		if old, ok := prev[path]; !ok || old != state {
			changes = append(changes, AudioEvent{State: state, Path: path})
		}
	}
	for path := range prev {
		if _, ok := next[path]; !ok {
			changes = append(changes, AudioEvent{State: AudioExpired, Path: path})
		}
	}
	return changes
}

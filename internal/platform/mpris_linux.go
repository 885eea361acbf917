//go:build linux

package platform

import (
	"fmt"
	"strings"

	"github.com/chenyang-zz/shion/pkg/logger"
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	mprisPrefix        = "org.mpris.MediaPlayer2."
	mprisPath          = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisPlayer        = "org.mpris.MediaPlayer2.Player"
	propertiesIface    = "org.freedesktop.DBus.Properties"
	propertiesChanged  = propertiesIface + ".PropertiesChanged"
	nameOwnerChanged   = "org.freedesktop.DBus.NameOwnerChanged"
	getConnectionPID   = "org.freedesktop.DBus.GetConnectionUnixProcessID"
	getNameOwner       = "org.freedesktop.DBus.GetNameOwner"
	listNames          = "org.freedesktop.DBus.ListNames"
	playbackStatusProp = mprisPlayer + ".PlaybackStatus"
)

// playbackState MPRIS PlaybackStatus 到音频状态的映射
func playbackState(status string) AudioState {
	if status == "Playing" {
		return AudioActive
	}
	return AudioInactive
}

// connectionExe 通过总线名查询所属进程的可执行文件
func connectionExe(conn *dbus.Conn, name string) string {
	var pid uint32
	if err := conn.BusObject().Call(getConnectionPID, 0, name).Store(&pid); err != nil {
		return ""
	}
	return processExe(int32(pid))
}

// mediaPlayer 订阅时已经存在的播放器
type mediaPlayer struct {
	// owner 唯一连接名（:1.42），信号的 Sender 是这个名字
	owner  string
	path   string
	status string
}

// listPlayers 列出会话总线上的 MPRIS 播放器及其当前状态
func listPlayers(conn *dbus.Conn) ([]mediaPlayer, error) {
	var names []string
	if err := conn.BusObject().Call(listNames, 0).Store(&names); err != nil {
		return nil, err
	}

	var players []mediaPlayer
	for _, name := range names {
		if !strings.HasPrefix(name, mprisPrefix) {
			continue
		}
		var owner string
		if err := conn.BusObject().Call(getNameOwner, 0, name).Store(&owner); err != nil {
			continue
		}
		path := connectionExe(conn, owner)
		if path == "" {
			continue
		}
		status, err := conn.Object(name, mprisPath).GetProperty(playbackStatusProp)
		if err != nil {
			logger.Debug("读取 PlaybackStatus 失败", zap.String("name", name), zap.Error(err))
			continue
		}
		s, _ := status.Value().(string)
		players = append(players, mediaPlayer{owner: owner, path: path, status: s})
	}
	return players, nil
}

// mprisWatcher 监听 MPRIS 播放器的 PlaybackStatus 变化
type mprisWatcher struct {
	fn func(AudioEvent)

	// resolve 查询唯一连接名所属的可执行文件，查不到时返回空串
	resolve func(sender string) string

	// owners 唯一连接名 -> 可执行文件路径，seed 之后只在 run 的 goroutine 上访问
	owners map[string]string
}

// seed 记录已有的播放器并通知它们的当前状态
func (w *mprisWatcher) seed(players []mediaPlayer) {
	for _, p := range players {
		w.owners[p.owner] = p.path
		w.fn(AudioEvent{State: playbackState(p.status), Path: p.path})
	}
}

func (w *mprisWatcher) run(signals <-chan *dbus.Signal) {
	for sig := range signals {
		switch sig.Name {
		case propertiesChanged:
			w.onPropertiesChanged(sig)
		case nameOwnerChanged:
			w.onNameOwnerChanged(sig)
		}
	}
}

func (w *mprisWatcher) onPropertiesChanged(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	if iface, _ := sig.Body[0].(string); iface != mprisPlayer {
		return
	}
	changed, _ := sig.Body[1].(map[string]dbus.Variant)
	variant, ok := changed["PlaybackStatus"]
	if !ok {
		return
	}
	status, _ := variant.Value().(string)

	path, ok := w.owners[sig.Sender]
	if !ok {
		path = w.resolve(sig.Sender)
		if path == "" {
			return
		}
		w.owners[sig.Sender] = path
	}

	w.fn(AudioEvent{State: playbackState(status), Path: path})
}

// onNameOwnerChanged 播放器断开总线时通知会话结束
func (w *mprisWatcher) onNameOwnerChanged(sig *dbus.Signal) {
	if len(sig.Body) < 3 {
		return
	}
	oldOwner, _ := sig.Body[1].(string)
	newOwner, _ := sig.Body[2].(string)
	if oldOwner == "" || newOwner != "" {
		return
	}

	if path, ok := w.owners[oldOwner]; ok {
		delete(w.owners, oldOwner)
		w.fn(AudioEvent{State: AudioExpired, Path: path})
	}
}

// WatchAudio 在私有的会话总线连接上订阅 MPRIS 信号
func (b *linuxBackend) WatchAudio(fn func(AudioEvent)) (Hook, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w: %v", ErrHookFailed, err)
	}

	matches := [][]dbus.MatchOption{
		{dbus.WithMatchObjectPath(mprisPath), dbus.WithMatchInterface(propertiesIface), dbus.WithMatchMember("PropertiesChanged")},
		{dbus.WithMatchInterface("org.freedesktop.DBus"), dbus.WithMatchMember("NameOwnerChanged")},
	}
	for _, match := range matches {
		if err := conn.AddMatchSignal(match...); err != nil {
			conn.Close()
			return nil, fmt.Errorf("add match: %w: %v", ErrHookFailed, err)
		}
	}

	// 先订阅再枚举，枚举期间的变化留在 signals 中稍后处理
	signals := make(chan *dbus.Signal, 32)
	conn.Signal(signals)

	w := &mprisWatcher{
		fn:      fn,
		resolve: func(sender string) string { return connectionExe(conn, sender) },
		owners:  make(map[string]string),
	}
	players, err := listPlayers(conn)
	if err != nil {
		logger.Warn("无法枚举 MPRIS 播放器", zap.String("component", "platform"), zap.Error(err))
	}
	w.seed(players)

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.run(signals)
	}()

	return HookFunc(func() error {
		err := conn.Close()
		<-done
		return err
	}), nil
}

// AudioSessionActive 检查该路径的任一 MPRIS 播放器是否正在播放
func (b *linuxBackend) AudioSessionActive(path string) bool {
	conn, err := dbus.SessionBus()
	if err != nil {
		return false
	}

	players, err := listPlayers(conn)
	if err != nil {
		return false
	}
	for _, p := range players {
		if p.path == path && playbackState(p.status) == AudioActive {
			return true
		}
	}
	return false
}

//go:build !windows && !linux && !darwin

package platform

// stubBackend 不支持的平台，查询全部失败，订阅返回 ErrUnsupported
type stubBackend struct{}

// New 创建当前平台的后端
func New(Options) Backend {
	return stubBackend{}
}

func (stubBackend) WindowTitle(Handle) (string, bool) { return "", false }

func (stubBackend) ProcessPath(Handle) (string, bool) { return "", false }

func (stubBackend) Description(string) (string, bool) { return "", false }

func (stubBackend) Icon(string, int) ([]byte, bool) { return nil, false }

func (stubBackend) AudioSessionActive(string) bool { return false }

func (stubBackend) FocusedWindow() (Handle, bool) { return 0, false }

func (stubBackend) HookWindow(func(WindowEvent)) (Hook, error) { return nil, ErrUnsupported }

func (stubBackend) HookKeyboard(func(InputEvent)) (Hook, error) { return nil, ErrUnsupported }

func (stubBackend) HookMouse(func(InputEvent)) (Hook, error) { return nil, ErrUnsupported }

func (stubBackend) WatchAudio(func(AudioEvent)) (Hook, error) { return nil, ErrUnsupported }

// Pump 没有消息循环，等待 stop
func (stubBackend) Pump(stop <-chan struct{}) error {
	<-stop
	return nil
}

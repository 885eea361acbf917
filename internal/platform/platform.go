package platform

import (
	"errors"
	"time"
)

// Handle 平台窗口句柄
//
// Windows 上是 HWND，Linux 上是 X11 窗口 ID，macOS 上是前台应用的 pid。
type Handle uintptr

// WindowEventKind 窗口事件类型
type WindowEventKind int

const (
	// WindowOther 范围内的其他事件，窗口适配器会忽略
	WindowOther WindowEventKind = iota
	// WindowForeground 前台窗口变化
	WindowForeground
	// WindowNameChange 窗口名称（标题）变化
	WindowNameChange
)

// ObjectWindow 表示事件作用于窗口本身（OBJID_WINDOW）
const ObjectWindow int32 = 0

// WindowEvent 原始窗口事件
type WindowEvent struct {
	// Kind 事件类型
	Kind WindowEventKind
	// Handle 事件相关的窗口句柄
	Handle Handle
	// Object 事件作用的对象 ID，只有 ObjectWindow 表示窗口本身
	Object int32
}

// InputKind 原始输入事件类型
type InputKind int

const (
	// InputKey 键盘按下或抬起
	InputKey InputKind = iota
	// InputMouseMove 鼠标移动
	InputMouseMove
	// InputMouseButton 鼠标按键
	InputMouseButton
	// InputMouseWheel 鼠标滚轮
	InputMouseWheel
)

// String 返回输入类型的字符串表示
func (k InputKind) String() string {
	switch k {
	case InputKey:
		return "key"
	case InputMouseMove:
		return "mouse_move"
	case InputMouseButton:
		return "mouse_button"
	case InputMouseWheel:
		return "mouse_wheel"
	default:
		return "unknown"
	}
}

// InputEvent 原始输入事件
type InputEvent struct {
	// Kind 输入类型
	Kind InputKind
	// Code 平台相关的键码或消息号，仅用于日志
	Code uint32
}

// AudioState 音频会话状态
type AudioState int

const (
	// AudioInactive 会话存在但没有播放
	AudioInactive AudioState = iota
	// AudioActive 会话正在播放
	AudioActive
	// AudioExpired 会话已结束
	AudioExpired
)

// String 返回音频状态的字符串表示
func (s AudioState) String() string {
	switch s {
	case AudioInactive:
		return "inactive"
	case AudioActive:
		return "active"
	case AudioExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// AudioEvent 原始音频会话事件，Path 已经解析为会话所属进程的可执行文件
type AudioEvent struct {
	State AudioState
	Path  string
}

// Hook 已安装的系统订阅，Close 注销订阅
type Hook interface {
	Close() error
}

// HookFunc 函数形式的 Hook
type HookFunc func() error

// Close 调用函数本身
func (f HookFunc) Close() error { return f() }

// Probe 平台信息查询接口
//
// 所有方法都是同步、有界的调用，失败时返回零值和 false，
// 不会因为单个进程无法访问而返回错误。
type Probe interface {
	// WindowTitle 获取窗口标题
	// Returns: 标题为空或读取失败时返回 false
	WindowTitle(h Handle) (string, bool)

	// ProcessPath 获取窗口所属进程的可执行文件路径
	// Returns: 无权限、句柄失效或枚举模块失败时返回 false
	ProcessPath(h Handle) (string, bool)

	// Description 读取可执行文件的友好名称
	// Returns: 没有版本资源或描述字段时返回 false，调用方应回退到文件名
	Description(path string) (string, bool)

	// Icon 提取可执行文件的图标并编码为 size×size 的 PNG
	// Returns: 没有可提取的图标时返回 false
	Icon(path string, size int) ([]byte, bool)

	// AudioSessionActive 查询该路径的进程是否有正在播放的音频会话
	AudioSessionActive(path string) bool

	// FocusedWindow 获取当前前台窗口
	FocusedWindow() (Handle, bool)
}

// Source 原始事件源接口
//
// Hook 系列方法和 Pump 必须在同一个线程上调用，回调在系统投递事件的线程上执行。
type Source interface {
	// HookWindow 订阅前台窗口变化和窗口标题变化
	HookWindow(fn func(WindowEvent)) (Hook, error)

	// HookKeyboard 订阅全局键盘输入
	HookKeyboard(fn func(InputEvent)) (Hook, error)

	// HookMouse 订阅全局鼠标输入
	HookMouse(fn func(InputEvent)) (Hook, error)

	// WatchAudio 订阅音频会话状态变化
	WatchAudio(fn func(AudioEvent)) (Hook, error)

	// Pump 运行系统消息循环，stop 关闭或收到退出消息时返回
	Pump(stop <-chan struct{}) error
}

// Backend 单个平台的完整实现
type Backend interface {
	Probe
	Source
}

// Options 平台后端选项
type Options struct {
	// AudioPollInterval 音频会话轮询间隔（仅 Windows 使用）
	AudioPollInterval time.Duration
}

var (
	// ErrUnsupported 当前平台不支持该功能
	ErrUnsupported = errors.New("not supported on this platform")

	// ErrHookFailed 系统订阅安装失败
	ErrHookFailed = errors.New("hook installation failed")
)

func (o Options) audioPollInterval() time.Duration {
	if o.AudioPollInterval <= 0 {
		return time.Second
	}
	return o.AudioPollInterval
}

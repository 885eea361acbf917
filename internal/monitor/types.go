package monitor

import (
	"time"

	"github.com/chenyang-zz/shion/internal/platform"
)

// ActivityKind 活跃信号的来源
type ActivityKind string

const (
	// ActivityKeyboard 键盘输入
	ActivityKeyboard ActivityKind = "keyboard"
	// ActivityMouse 鼠标按键或滚轮
	ActivityMouse ActivityKind = "mouse"
)

// AudioState 音频会话状态
type AudioState = platform.AudioState

const (
	AudioInactive = platform.AudioInactive
	AudioActive   = platform.AudioActive
	AudioExpired  = platform.AudioExpired
)

// Program 用户切换到或正在查看的程序窗口
//
// 每个符合条件的窗口事件都会生成一个新的 Program，生成后不再修改。
type Program struct {
	// Path 可执行文件的完整路径
	Path string `json:"path"`

	// Description 版本资源中的文件描述，没有时为去掉扩展名的文件名
	Description string `json:"description"`

	// Title 窗口标题
	Title string `json:"title"`

	// Icon 图标 PNG 数据，提取失败时为空切片
	Icon []byte `json:"icon"`
}

// Activity 用户仍在使用某个程序的信号
type Activity struct {
	// Path 前台窗口所属程序的路径
	Path string `json:"path"`

	// Title 前台窗口标题，可能为空
	Title string `json:"title,omitempty"`

	// Kind 信号来源
	Kind ActivityKind `json:"kind"`

	// Time 事件时间
	Time time.Time `json:"time"`
}

// AudioActivity 一次音频会话状态变化
type AudioActivity struct {
	State AudioState `json:"state"`
	Path  string     `json:"path"`
}

// WatchOption 各类事件的消费者回调
//
// 为 nil 的字段表示不需要该类事件，对应的系统订阅也不会安装。
// 回调可能在任意事件投递线程上执行，实现方不应长时间阻塞。
type WatchOption struct {
	Window   func(Program)
	Mouse    func(Activity)
	Keyboard func(Activity)
	Audio    func(AudioActivity)
}

// Config 监控器配置
type Config struct {
	// ThrottleWindow 同一程序的键盘/鼠标信号的最小间隔
	ThrottleWindow time.Duration

	// IconSize 图标边长（像素）
	IconSize int

	// IconCacheTTL 图标缓存时间
	IconCacheTTL time.Duration

	EnableWindow   bool
	EnableKeyboard bool
	EnableMouse    bool
	EnableAudio    bool
}

// DefaultConfig 返回默认配置，所有适配器都启用
func DefaultConfig() Config {
	return Config{
		ThrottleWindow: defaultThrottleWindow,
		IconSize:       defaultIconSize,
		IconCacheTTL:   defaultIconCacheTTL,
		EnableWindow:   true,
		EnableKeyboard: true,
		EnableMouse:    true,
		EnableAudio:    true,
	}
}

const (
	defaultThrottleWindow = time.Second
	defaultIconSize       = 32
	defaultIconCacheTTL   = 10 * time.Minute
	iconCacheSize         = 256
)

func (c Config) withDefaults() Config {
	if c.ThrottleWindow <= 0 {
		c.ThrottleWindow = defaultThrottleWindow
	}
	if c.IconSize <= 0 {
		c.IconSize = defaultIconSize
	}
	if c.IconCacheTTL <= 0 {
		c.IconCacheTTL = defaultIconCacheTTL
	}
	return c
}

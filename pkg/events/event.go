/**
 * Package events 提供事件系统的核心类型定义
 *
 * 事件系统是 shion 内部的通信机制：
 * - 活动监控器的回调把记录转换成事件发布到总线
 * - 会话追踪、持久化、前端推送各自订阅需要的事件类型
 */

package events

import (
	"time"

	"github.com/google/uuid"
)

/**
 * EventType 事件类型枚举
 */
type EventType string

/**
 * 所有事件类型常量
 */
const (
	// 活动事件
	EventTypeProgram  EventType = "program"  // 前台程序变化（窗口切换、标题变化）
	EventTypeKeyboard EventType = "keyboard" // 键盘活动
	EventTypeMouse    EventType = "mouse"    // 鼠标活动
	EventTypeAudio    EventType = "audio"    // 音频会话状态变化
	EventTypeSession  EventType = "session"  // 程序使用会话结束

	// 系统事件
	EventTypeError  EventType = "error"  // 错误事件
	EventTypeStatus EventType = "status" // 状态事件
)

/**
 * Event 统一事件结构
 */
type Event struct {
	// ID 事件唯一标识符
	ID string `json:"id"`

	// Type 事件类型
	Type EventType `json:"type"`

	// Timestamp 事件发生时间
	Timestamp time.Time `json:"timestamp"`

	// Data 事件数据（类型特定的数据）
	Data map[string]interface{} `json:"data"`

	// Metadata 事件元数据（可选的额外信息）
	Metadata map[string]string `json:"metadata,omitempty"`

	// Context 事件上下文信息（捕获事件时的前台程序）
	Context *EventContext `json:"context,omitempty"`
}

/**
 * EventContext 事件上下文
 *
 * 描述事件发生时的前台程序
 */
type EventContext struct {
	// Application 程序描述（FileDescription 或文件名）
	Application string `json:"application,omitempty"`

	// WindowTitle 当前窗口标题
	WindowTitle string `json:"window_title,omitempty"`

	// FilePath 可执行文件路径，程序的身份标识
	FilePath string `json:"file_path,omitempty"`
}

/**
 * NewEvent 创建新事件
 *
 * Parameters:
 *   - eventType: 事件类型
 *   - data: 事件数据
 *
 * Returns:
 *   - *Event: 新创建的事件
 */
func NewEvent(eventType EventType, data map[string]interface{}) *Event {
	return &Event{
		ID:        generateEventID(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Metadata:  make(map[string]string),
	}
}

/**
 * WithContext 设置事件上下文，支持链式调用
 */
func (e *Event) WithContext(context *EventContext) *Event {
	e.Context = context
	return e
}

/**
 * WithMetadata 添加元数据，支持链式调用
 */
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

/**
 * Path 返回事件关联的可执行文件路径
 *
 * 优先使用上下文中的路径，其次读取 Data["path"]
 */
func (e *Event) Path() string {
	if e.Context != nil && e.Context.FilePath != "" {
		return e.Context.FilePath
	}
	if path, ok := e.Data["path"].(string); ok {
		return path
	}
	return ""
}

func generateEventID() string {
	return uuid.New().String()
}

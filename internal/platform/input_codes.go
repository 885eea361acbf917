package platform

// 低级鼠标钩子的消息号
const (
	wmLButtonDown = 0x0201
	wmLButtonUp   = 0x0202
	wmRButtonDown = 0x0204
	wmRButtonUp   = 0x0205
	wmMButtonDown = 0x0207
	wmMButtonUp   = 0x0208
	wmXButtonDown = 0x020B
	wmXButtonUp   = 0x020C
	llMouseMove   = 0x0200
	llMouseWheel  = 0x020A
	llMouseHWheel = 0x020E
)

// classifyMouseMessage 把 WH_MOUSE_LL 的消息号归类
func classifyMouseMessage(message uint32) (InputKind, bool) {
	switch message {
	case llMouseMove:
		return InputMouseMove, true
	case wmLButtonDown, wmLButtonUp, wmRButtonDown, wmRButtonUp,
		wmMButtonDown, wmMButtonUp, wmXButtonDown, wmXButtonUp:
		return InputMouseButton, true
	case llMouseWheel, llMouseHWheel:
		return InputMouseWheel, true
	default:
		return 0, false
	}
}

// evdev 事件类型和代码（linux/input-event-codes.h）
const (
	evKey = 0x01
	evRel = 0x02

	relX           = 0x00
	relY           = 0x01
	relHWheel      = 0x06
	relWheel       = 0x08
	relWheelHiRes  = 0x0b
	relHWheelHiRes = 0x0c

	btnMouseFirst = 0x110
	btnMouseLast  = 0x117

	keyRepeat = 2
)

// classifyEvdev 把一条 input_event 归类
//
// 只保留按下和抬起，自动重复（value == 2）和同步事件被丢弃。
func classifyEvdev(typ, code uint16, value int32) (InputEvent, bool) {
	switch typ {
	case evKey:
		if value == keyRepeat {
			return InputEvent{}, false
		}
		if code >= btnMouseFirst && code <= btnMouseLast {
			return InputEvent{Kind: InputMouseButton, Code: uint32(code)}, true
		}
		return InputEvent{Kind: InputKey, Code: uint32(code)}, true

	case evRel:
		switch code {
		case relX, relY:
			return InputEvent{Kind: InputMouseMove, Code: uint32(code)}, true
		case relWheel, relHWheel, relWheelHiRes, relHWheelHiRes:
			return InputEvent{Kind: InputMouseWheel, Code: uint32(code)}, true
		}
	}
	return InputEvent{}, false
}

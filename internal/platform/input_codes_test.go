package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyMouseMessage(t *testing.T) {
	tests := []struct {
		name    string
		message uint32
		want    InputKind
		ok      bool
	}{
		{"移动", 0x0200, InputMouseMove, true},
		{"左键按下", 0x0201, InputMouseButton, true},
		{"右键抬起", 0x0205, InputMouseButton, true},
		{"侧键", 0x020B, InputMouseButton, true},
		{"滚轮", 0x020A, InputMouseWheel, true},
		{"水平滚轮", 0x020E, InputMouseWheel, true},
		{"未知消息", 0x0100, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := classifyMouseMessage(tt.message)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestClassifyEvdev(t *testing.T) {
	tests := []struct {
		name  string
		typ   uint16
		code  uint16
		value int32
		want  InputKind
		ok    bool
	}{
		{"按键按下", evKey, 30, 1, InputKey, true},
		{"按键抬起", evKey, 30, 0, InputKey, true},
		{"自动重复被丢弃", evKey, 30, 2, 0, false},
		{"鼠标左键", evKey, 0x110, 1, InputMouseButton, true},
		{"鼠标侧键", evKey, 0x116, 0, InputMouseButton, true},
		{"相对移动", evRel, relX, 3, InputMouseMove, true},
		{"滚轮", evRel, relWheel, -1, InputMouseWheel, true},
		{"高精度滚轮", evRel, relWheelHiRes, 120, InputMouseWheel, true},
		{"同步事件", 0x00, 0, 0, 0, false},
		{"未知相对轴", evRel, 0x09, 1, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := classifyEvdev(tt.typ, tt.code, tt.value)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got.Kind)
				assert.Equal(t, uint32(tt.code), got.Code)
			}
		})
	}
}

func TestInputKindString(t *testing.T) {
	assert.Equal(t, "key", InputKey.String())
	assert.Equal(t, "mouse_wheel", InputMouseWheel.String())
	assert.Equal(t, "unknown", InputKind(99).String())
	assert.Equal(t, "expired", AudioExpired.String())
}

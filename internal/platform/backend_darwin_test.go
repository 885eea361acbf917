//go:build darwin

package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppBundle(t *testing.T) {
	assert.Equal(t, "/Applications/Safari.app", appBundle("/Applications/Safari.app/Contents/MacOS/Safari"))
	assert.Equal(t, "", appBundle("/usr/bin/python3"))
}

// TestDarwinBackend_RealKeyPress 手动集成测试，需要辅助功能权限和实际按键
//
// 运行方式：
// ```bash
// go test -v -run TestDarwinBackend_RealKeyPress ./internal/platform/
// ```
func TestDarwinBackend_RealKeyPress(t *testing.T) {
	if testing.Short() {
		t.Skip("跳过手动集成测试（使用 -short 标志）")
	}

	backend := New(Options{})
	received := make(chan InputEvent, 100)

	hook, err := backend.HookKeyboard(func(ev InputEvent) {
		select {
		case received <- ev:
		default:
		}
	})
	if err != nil {
		t.Skipf("需要辅助功能权限: %v", err)
	}
	defer hook.Close()

	t.Log("请在接下来的 5 秒内按下任意键...")

	stop := make(chan struct{})
	go func() {
		time.Sleep(5 * time.Second)
		close(stop)
	}()
	require.NoError(t, backend.Pump(stop))

	select {
	case ev := <-received:
		assert.Equal(t, InputKey, ev.Kind)
	default:
		t.Log("未检测到键盘输入")
	}
}

func TestDarwinBackend_FocusedWindow(t *testing.T) {
	backend := New(Options{})

	h, ok := backend.FocusedWindow()
	if !ok {
		t.Skip("没有前台应用")
	}
	path, ok := backend.ProcessPath(h)
	if ok {
		assert.NotEmpty(t, path)
	}
}

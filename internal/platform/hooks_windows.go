//go:build windows

package platform

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// HookWindow 安装 WinEvent 钩子，覆盖 EVENT_SYSTEM_FOREGROUND..EVENT_OBJECT_NAMECHANGE
//
// 回调在调用 Pump 的线程上执行。
func (b *windowsBackend) HookWindow(fn func(WindowEvent)) (Hook, error) {
	callback := windows.NewCallback(func(hook, event, hwnd, idObject, idChild, thread, eventTime uintptr) uintptr {
		kind := WindowOther
		switch uint32(event) {
		case eventSystemForeground:
			kind = WindowForeground
		case eventObjectNameChange:
			kind = WindowNameChange
		}
		fn(WindowEvent{Kind: kind, Handle: Handle(hwnd), Object: int32(idObject)})
		return 0
	})

	h, _, err := procSetWinEventHook.Call(
		eventSystemForeground, eventObjectNameChange,
		0, callback, 0, 0,
		winEventOutOfContext|winEventSkipOwnProcess,
	)
	if h == 0 {
		return nil, fmt.Errorf("SetWinEventHook: %w: %v", ErrHookFailed, err)
	}

	return HookFunc(func() error {
		if r, _, err := procUnhookWinEvent.Call(h); r == 0 {
			return fmt.Errorf("UnhookWinEvent: %w", err)
		}
		return nil
	}), nil
}

// HookKeyboard 安装 WH_KEYBOARD_LL 钩子
func (b *windowsBackend) HookKeyboard(fn func(InputEvent)) (Hook, error) {
	callback := windows.NewCallback(func(code, wParam, lParam uintptr) uintptr {
		if int32(code) >= 0 {
			kb := (*kbdLLHookStruct)(unsafe.Pointer(lParam))
			fn(InputEvent{Kind: InputKey, Code: kb.vkCode})
		}
		return callNextHook(int32(code), wParam, lParam)
	})
	return installLowLevelHook(whKeyboardLL, callback)
}

// HookMouse 安装 WH_MOUSE_LL 钩子
func (b *windowsBackend) HookMouse(fn func(InputEvent)) (Hook, error) {
	callback := windows.NewCallback(func(code, wParam, lParam uintptr) uintptr {
		if int32(code) >= 0 {
			if kind, ok := classifyMouseMessage(uint32(wParam)); ok {
				fn(InputEvent{Kind: kind, Code: uint32(wParam)})
			}
		}
		return callNextHook(int32(code), wParam, lParam)
	})
	return installLowLevelHook(whMouseLL, callback)
}

func installLowLevelHook(id int, callback uintptr) (Hook, error) {
	var module windows.Handle
	if err := windows.GetModuleHandleEx(0, nil, &module); err != nil {
		return nil, fmt.Errorf("GetModuleHandleEx: %w", err)
	}

	h, _, err := procSetWindowsHookExW.Call(uintptr(id), callback, uintptr(module), 0)
	if h == 0 {
		return nil, fmt.Errorf("SetWindowsHookExW(%d): %w: %v", id, ErrHookFailed, err)
	}

	return HookFunc(func() error {
		if r, _, err := procUnhookWindowsHookEx.Call(h); r == 0 {
			return fmt.Errorf("UnhookWindowsHookEx: %w", err)
		}
		return nil
	}), nil
}

// Pump 运行 GetMessageW 循环
//
// stop 关闭后向本线程投递 WM_QUIT，GetMessageW 返回 0 后退出。
func (b *windowsBackend) Pump(stop <-chan struct{}) error {
	var m msg

	// 确保线程消息队列已创建，否则 PostThreadMessageW 会失败
	procPeekMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, wmUser, wmUser, pmNoRemove)
	threadID := windows.GetCurrentThreadId()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-stop:
			procPostThreadMessageW.Call(uintptr(threadID), wmQuit, 0, 0)
		case <-done:
		}
	}()

	for {
		r, _, err := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		switch int32(r) {
		case -1:
			return fmt.Errorf("GetMessageW: %w", err)
		case 0:
			return nil
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
}

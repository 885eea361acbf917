//go:build windows

package platform

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32  = windows.NewLazySystemDLL("user32.dll")
	gdi32   = windows.NewLazySystemDLL("gdi32.dll")
	shell32 = windows.NewLazySystemDLL("shell32.dll")

	procSetWinEventHook      = user32.NewProc("SetWinEventHook")
	procUnhookWinEvent       = user32.NewProc("UnhookWinEvent")
	procSetWindowsHookExW    = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx  = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx       = user32.NewProc("CallNextHookEx")
	procGetMessageW          = user32.NewProc("GetMessageW")
	procPeekMessageW         = user32.NewProc("PeekMessageW")
	procTranslateMessage     = user32.NewProc("TranslateMessage")
	procDispatchMessageW     = user32.NewProc("DispatchMessageW")
	procPostThreadMessageW   = user32.NewProc("PostThreadMessageW")
	procGetWindowTextLengthW = user32.NewProc("GetWindowTextLengthW")
	procGetWindowTextW       = user32.NewProc("GetWindowTextW")
	procDestroyIcon          = user32.NewProc("DestroyIcon")
	procGetIconInfo          = user32.NewProc("GetIconInfo")
	procGetDC                = user32.NewProc("GetDC")
	procReleaseDC            = user32.NewProc("ReleaseDC")

	procGetObjectW   = gdi32.NewProc("GetObjectW")
	procGetDIBits    = gdi32.NewProc("GetDIBits")
	procDeleteObject = gdi32.NewProc("DeleteObject")

	procExtractIconExW = shell32.NewProc("ExtractIconExW")
)

const (
	eventSystemForeground = 0x0003
	eventObjectNameChange = 0x800C

	winEventOutOfContext   = 0x0000
	winEventSkipOwnProcess = 0x0002

	whKeyboardLL = 13
	whMouseLL    = 14

	wmQuit = 0x0012
	wmUser = 0x0400

	pmNoRemove = 0x0000

	listModulesAll = 0x03

	dibRGBColors = 0
	biRGB        = 0
)

// msg Win32 MSG 结构
type msg struct {
	hwnd     uintptr
	message  uint32
	wParam   uintptr
	lParam   uintptr
	time     uint32
	pt       struct{ x, y int32 }
	lPrivate uint32
}

// kbdLLHookStruct KBDLLHOOKSTRUCT 的前几个字段
type kbdLLHookStruct struct {
	vkCode   uint32
	scanCode uint32
	flags    uint32
	time     uint32
}

// iconInfo ICONINFO
type iconInfo struct {
	fIcon    int32
	xHotspot uint32
	yHotspot uint32
	hbmMask  uintptr
	hbmColor uintptr
}

// bitmap BITMAP
type bitmap struct {
	bmType       int32
	bmWidth      int32
	bmHeight     int32
	bmWidthBytes int32
	bmPlanes     uint16
	bmBitsPixel  uint16
	bmBits       uintptr
}

// bitmapInfoHeader BITMAPINFOHEADER
type bitmapInfoHeader struct {
	biSize          uint32
	biWidth         int32
	biHeight        int32
	biPlanes        uint16
	biBitCount      uint16
	biCompression   uint32
	biSizeImage     uint32
	biXPelsPerMeter int32
	biYPelsPerMeter int32
	biClrUsed       uint32
	biClrImportant  uint32
}

// bitmapInfo BITMAPINFO，32 位 BI_RGB 不需要调色板
type bitmapInfo struct {
	header bitmapInfoHeader
	colors [1]uint32
}

func windowTextLength(hwnd uintptr) int {
	n, _, _ := procGetWindowTextLengthW.Call(hwnd)
	return int(n)
}

func windowText(hwnd uintptr, buf []uint16) int {
	if len(buf) == 0 {
		return 0
	}
	n, _, _ := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return int(n)
}

func callNextHook(code int32, wParam, lParam uintptr) uintptr {
	r, _, _ := procCallNextHookEx.Call(0, uintptr(code), wParam, lParam)
	return r
}

//go:build windows

package platform

import (
	"image"
	"unsafe"

	"golang.org/x/sys/windows"
)

// WindowTitle 读取窗口标题
func (b *windowsBackend) WindowTitle(h Handle) (string, bool) {
	n := windowTextLength(uintptr(h))
	if n <= 0 {
		return "", false
	}

	buf := make([]uint16, n+1)
	copied := windowText(uintptr(h), buf)
	if copied <= 0 {
		return "", false
	}
	return windows.UTF16ToString(buf[:copied]), true
}

// ProcessPath 窗口 -> pid -> 进程主模块路径
//
// 进程句柄在所有返回路径上都会关闭。
func (b *windowsBackend) ProcessPath(h Handle) (string, bool) {
	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(windows.HWND(h), &pid); err != nil || pid == 0 {
		return "", false
	}

	process, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION|windows.PROCESS_VM_READ, false, pid)
	if err != nil {
		return "", false
	}
	defer windows.CloseHandle(process)

	var module windows.Handle
	var needed uint32
	if err := windows.EnumProcessModulesEx(process, &module, uint32(unsafe.Sizeof(module)), &needed, listModulesAll); err != nil {
		return "", false
	}

	buf := make([]uint16, windows.MAX_LONG_PATH)
	if err := windows.GetModuleFileNameEx(process, module, &buf[0], uint32(len(buf))); err != nil {
		return "", false
	}

	path := windows.UTF16ToString(buf)
	return path, path != ""
}

// Description 读取版本资源中的 FileDescription
func (b *windowsBackend) Description(path string) (string, bool) {
	size, err := windows.GetFileVersionInfoSize(path, nil)
	if err != nil || size == 0 {
		return "", false
	}

	info := make([]byte, size)
	if err := windows.GetFileVersionInfo(path, 0, size, unsafe.Pointer(&info[0])); err != nil {
		return "", false
	}

	var block unsafe.Pointer
	var blockLen uint32
	if err := windows.VerQueryValue(unsafe.Pointer(&info[0]), translationTableBlock, unsafe.Pointer(&block), &blockLen); err != nil || blockLen < 4 {
		return "", false
	}
	translations := parseTranslations(unsafe.Slice((*byte)(block), blockLen))

	for _, t := range translations {
		var value unsafe.Pointer
		var valueLen uint32
		if err := windows.VerQueryValue(unsafe.Pointer(&info[0]), descriptionSubBlock(t), unsafe.Pointer(&value), &valueLen); err != nil || valueLen == 0 {
			continue
		}
		if desc := windows.UTF16PtrToString((*uint16)(value)); desc != "" {
			return desc, true
		}
	}
	return "", false
}

// Icon 提取第一个大图标，读取彩色位图后编码为 PNG
//
// 图标句柄、位图和 DC 在所有返回路径上都会释放。
func (b *windowsBackend) Icon(path string, size int) ([]byte, bool) {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, false
	}

	var large uintptr
	n, _, _ := procExtractIconExW.Call(uintptr(unsafe.Pointer(pathPtr)), 0, uintptr(unsafe.Pointer(&large)), 0, 1)
	if n == 0 || large == 0 {
		return nil, false
	}
	defer procDestroyIcon.Call(large)

	var ii iconInfo
	if r, _, _ := procGetIconInfo.Call(large, uintptr(unsafe.Pointer(&ii))); r == 0 {
		return nil, false
	}
	if ii.hbmMask != 0 {
		defer procDeleteObject.Call(ii.hbmMask)
	}
	if ii.hbmColor == 0 {
		return nil, false
	}
	defer procDeleteObject.Call(ii.hbmColor)

	var bm bitmap
	if r, _, _ := procGetObjectW.Call(ii.hbmColor, unsafe.Sizeof(bm), uintptr(unsafe.Pointer(&bm))); r == 0 {
		return nil, false
	}
	width, height := int(bm.bmWidth), int(bm.bmHeight)
	if width <= 0 || height <= 0 {
		return nil, false
	}

	hdc, _, _ := procGetDC.Call(0)
	if hdc == 0 {
		return nil, false
	}
	defer procReleaseDC.Call(0, hdc)

	bi := bitmapInfo{header: bitmapInfoHeader{
		biWidth:       int32(width),
		biHeight:      -int32(height), // 自上而下
		biPlanes:      1,
		biBitCount:    32,
		biCompression: biRGB,
	}}
	bi.header.biSize = uint32(unsafe.Sizeof(bi.header))

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	lines, _, _ := procGetDIBits.Call(hdc, ii.hbmColor, 0, uintptr(height),
		uintptr(unsafe.Pointer(&img.Pix[0])), uintptr(unsafe.Pointer(&bi)), dibRGBColors)
	if lines == 0 {
		return nil, false
	}
	BGRAToRGBA(img.Pix)

	data, err := EncodeIcon(img, size)
	if err != nil {
		return nil, false
	}
	return data, true
}

// FocusedWindow 当前前台窗口
func (b *windowsBackend) FocusedWindow() (Handle, bool) {
	hwnd := windows.GetForegroundWindow()
	return Handle(hwnd), hwnd != 0
}

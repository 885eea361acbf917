//go:build linux

package platform

import (
	"os"
	"path/filepath"
)

// checkPermission 检查是否可以读取任意一个输入设备
func checkPermission() PermissionResult {
	devices, _ := filepath.Glob("/dev/input/event*")
	if len(devices) == 0 {
		return NewPermissionResult(PermissionInputDevices, PermissionStatusUnknown, "未找到输入设备")
	}

	for _, device := range devices {
		f, err := os.Open(device)
		if err == nil {
			f.Close()
			return NewPermissionResult(PermissionInputDevices, PermissionStatusGranted, "")
		}
	}

	return NewPermissionResult(PermissionInputDevices, PermissionStatusDenied,
		"无法读取 /dev/input，请将当前用户加入 input 组")
}

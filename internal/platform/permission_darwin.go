//go:build darwin

package platform

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework ApplicationServices

#include <ApplicationServices/ApplicationServices.h>

// checkAccessibilityPermission 检查当前进程是否被信任（static 避免符号冲突）
// Returns: 1=已授权, 0=未授权
static int checkAccessibilityPermission() {
    return AXIsProcessTrusted();
}
*/
import "C"

// checkPermission 检查辅助功能权限
func checkPermission() PermissionResult {
	if C.checkAccessibilityPermission() == 1 {
		return NewPermissionResult(PermissionAccessibility, PermissionStatusGranted, "")
	}
	return NewPermissionResult(PermissionAccessibility, PermissionStatusDenied,
		"请在 系统设置 > 隐私与安全性 > 辅助功能 中授权")
}

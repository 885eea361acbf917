//go:build !linux && !darwin

package platform

// checkPermission Windows 的低级钩子不需要额外授权，其他平台不支持监控
func checkPermission() PermissionResult {
	return NewPermissionResult(PermissionAccessibility, PermissionStatusGranted, "")
}

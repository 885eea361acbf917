package platform

// PermissionType 权限类型枚举
//
// 定义活动监控需要的系统权限
type PermissionType int

const (
	// PermissionAccessibility 辅助功能权限
	// macOS 上用于全局键盘/鼠标监听和读取窗口标题
	PermissionAccessibility PermissionType = iota

	// PermissionInputDevices 输入设备读取权限
	// Linux 上读取 /dev/input/event* 需要 input 组权限
	PermissionInputDevices
)

// String 返回权限类型的字符串表示
func (p PermissionType) String() string {
	switch p {
	case PermissionAccessibility:
		return "accessibility"
	case PermissionInputDevices:
		return "input_devices"
	default:
		return "unknown"
	}
}

// PermissionStatus 权限状态枚举
type PermissionStatus int

const (
	// PermissionStatusGranted 权限已授予
	PermissionStatusGranted PermissionStatus = iota

	// PermissionStatusDenied 权限被拒绝
	PermissionStatusDenied

	// PermissionStatusUnknown 权限状态未知
	PermissionStatusUnknown
)

// String 返回权限状态的字符串表示
func (s PermissionStatus) String() string {
	switch s {
	case PermissionStatusGranted:
		return "granted"
	case PermissionStatusDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// PermissionResult 权限检查结果
//
// 封装权限检查的完整结果信息，会直接返回给前端
type PermissionResult struct {
	// Type 权限类型
	Type PermissionType `json:"-"`

	// Name 权限类型名称
	Name string `json:"name"`

	// Status 权限状态
	Status string `json:"status"`

	// Message 权限状态描述信息
	Message string `json:"message"`

	status PermissionStatus
}

// IsGranted 检查权限是否已授予
// Returns: bool - true 表示权限已授予
func (r PermissionResult) IsGranted() bool {
	return r.status == PermissionStatusGranted
}

// IsDenied 检查权限是否被拒绝
// Returns: bool - true 表示权限被拒绝
func (r PermissionResult) IsDenied() bool {
	return r.status == PermissionStatusDenied
}

// NewPermissionResult 创建权限检查结果
func NewPermissionResult(permType PermissionType, status PermissionStatus, message string) PermissionResult {
	return PermissionResult{
		Type:    permType,
		Name:    permType.String(),
		Status:  status.String(),
		Message: message,
		status:  status,
	}
}

// CheckPermission 检查活动监控依赖的系统权限
//
// Returns: PermissionResult - 当前平台上最关键的那一项权限
func CheckPermission() PermissionResult {
	return checkPermission()
}

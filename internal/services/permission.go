package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chenyang-zz/shion/internal/platform"
	"github.com/chenyang-zz/shion/pkg/events"
	"github.com/chenyang-zz/shion/pkg/logger"
	"go.uber.org/zap"
)

// ErrPermissionDenied 活动监控依赖的系统权限未授予
var ErrPermissionDenied = errors.New("permission denied")

// defaultCacheDuration 权限状态缓存有效期
const defaultCacheDuration = 5 * time.Minute

// PermissionManager 权限管理器
//
// 缓存平台层的权限检查结果，在启动监控前验证权限，
// 权限缺失时向事件总线发布状态事件，由 UI 提示用户授权。
type PermissionManager struct {
	// check 平台层权限检查函数
	check func() platform.PermissionResult

	// eventBus 事件总线，为 nil 时不发布事件
	eventBus *events.EventBus

	now func() time.Time

	mu            sync.Mutex
	cached        *platform.PermissionResult
	expire        time.Time
	cacheDuration time.Duration
}

// NewPermissionManager 创建权限管理器
//
// Parameters:
//   - check: 平台层权限检查函数，通常是 platform.CheckPermission
//   - eventBus: 事件总线实例，用于发布权限事件
//
// Returns: *PermissionManager - 新创建的权限管理器实例
func NewPermissionManager(check func() platform.PermissionResult, eventBus *events.EventBus) *PermissionManager {
	return &PermissionManager{
		check:         check,
		eventBus:      eventBus,
		now:           time.Now,
		cacheDuration: defaultCacheDuration,
	}
}

// Status 查询权限状态，优先使用缓存
func (pm *PermissionManager) Status() platform.PermissionResult {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.cached != nil && pm.now().Before(pm.expire) {
		return *pm.cached
	}

	result := pm.check()
	pm.cached = &result
	pm.expire = pm.now().Add(pm.cacheDuration)

	logger.Debug("权限状态（检查）",
		zap.String("component", "permission"),
		zap.String("permission", result.Name),
		zap.String("status", result.Status),
	)
	return result
}

// EnsurePermission 确保权限已授予
//
// 权限被拒绝时发布状态事件并返回 ErrPermissionDenied；状态未知时只记录警告，
// 由各个适配器自己决定能否启动。
//
// Returns: error - 权限被拒绝时返回错误
func (pm *PermissionManager) EnsurePermission() error {
	result := pm.Status()
	if result.IsGranted() {
		return nil
	}

	hint := result.Message
	if hint == "" {
		hint = permissionHint(result.Type)
	}

	logger.Warn("权限检查失败",
		zap.String("component", "permission"),
		zap.String("permission", result.Name),
		zap.String("status", result.Status),
		zap.String("hint", hint),
	)
	pm.publish(result, hint)

	if result.IsDenied() {
		return fmt.Errorf("%s: %w", result.Name, ErrPermissionDenied)
	}
	return nil
}

// InvalidateCache 清除缓存，下次查询时重新检查
func (pm *PermissionManager) InvalidateCache() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.cached = nil
}

// SetCacheDuration 设置缓存有效期
func (pm *PermissionManager) SetCacheDuration(duration time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.cacheDuration = duration
}

// publish 发布权限状态事件
func (pm *PermissionManager) publish(result platform.PermissionResult, hint string) {
	if pm.eventBus == nil {
		return
	}

	event := events.NewEvent(events.EventTypeStatus, map[string]interface{}{
		"permission": result.Name,
		"status":     result.Status,
		"message":    hint,
	})
	if err := pm.eventBus.Publish(string(events.EventTypeStatus), *event); err != nil {
		logger.Debug("发布权限事件失败", zap.String("component", "permission"), zap.Error(err))
	}
}

// permissionHint 返回引导用户授权的提示
func permissionHint(permType platform.PermissionType) string {
	switch permType {
	case platform.PermissionAccessibility:
		return "需要辅助功能权限来监听键盘鼠标和读取窗口标题。" +
			"请在【系统设置 > 隐私与安全性 > 辅助功能】中启用此应用。"
	case platform.PermissionInputDevices:
		return "需要读取 /dev/input 来监听键盘鼠标。" +
			"请执行 sudo usermod -aG input $USER 后重新登录。"
	default:
		return "需要相关权限才能正常工作。"
	}
}

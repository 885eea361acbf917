package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/chenyang-zz/shion/internal/domain/session"
	"github.com/chenyang-zz/shion/internal/infrastructure/storage"
	"github.com/chenyang-zz/shion/internal/platform"
)

// ErrNotStarted 应用尚未启动
var ErrNotStarted = errors.New("app not started")

// defaultSessionLimit GetRecentSessions 的默认条数
const defaultSessionLimit = 50

// Stats 前端展示的统计信息
type Stats struct {
	// Running 活动监控是否在运行
	Running bool `json:"running"`

	// Programs 记录过的程序数
	Programs int64 `json:"programs"`

	// Activities 活动记录统计
	Activities *storage.ActivityStats `json:"activities"`

	// Writer 批量写入器统计
	Writer storage.BatchWriterStats `json:"writer"`

	// Today 今天各程序的使用时长，不含进行中的会话
	Today []storage.ProgramUsage `json:"today"`

	// Active 进行中的会话
	Active []session.Session `json:"active"`
}

// IsAudioActive 查询程序是否正在播放音频
func (a *App) IsAudioActive(path string) bool {
	if a.monitor == nil {
		return false
	}
	return a.monitor.IsAudioActive(path)
}

/**
 * GetRecentSessions 获取最近的会话
 *
 * 进行中的会话在前，之后是按开始时间倒序的已结束会话。
 *
 * Parameters:
 *   - limit: 已结束会话的最大条数，不大于 0 时使用默认值
 *
 * Returns:
 *   - []session.Session: 会话列表
 *   - error: 查询错误
 */
func (a *App) GetRecentSessions(limit int) ([]session.Session, error) {
	if a.sessions == nil {
		return nil, ErrNotStarted
	}
	if limit <= 0 {
		limit = defaultSessionLimit
	}

	stored, err := a.sessions.FindRecent(a.ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("find sessions: %w", err)
	}
	return append(a.tracker.Active(), stored...), nil
}

// GetPrograms 获取记录过的程序，最近使用的在前
func (a *App) GetPrograms() ([]storage.ProgramRecord, error) {
	if a.programs == nil {
		return nil, ErrNotStarted
	}
	return a.programs.FindAll(a.ctx)
}

// GetPermissionStatus 查询活动监控依赖的系统权限
func (a *App) GetPermissionStatus() platform.PermissionResult {
	if a.permissions == nil {
		return platform.CheckPermission()
	}
	return a.permissions.Status()
}

// GetStats 获取统计信息
func (a *App) GetStats() (*Stats, error) {
	if a.db == nil {
		return nil, ErrNotStarted
	}

	activities, err := a.activities.GetStats()
	if err != nil {
		return nil, fmt.Errorf("activity stats: %w", err)
	}
	programs, err := a.programs.Count(a.ctx)
	if err != nil {
		return nil, fmt.Errorf("count programs: %w", err)
	}

	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	today, err := a.sessions.Usage(a.ctx, midnight)
	if err != nil {
		return nil, fmt.Errorf("usage: %w", err)
	}

	return &Stats{
		Running:    a.monitor.IsRunning(),
		Programs:   programs,
		Activities: activities,
		Writer:     a.writer.GetStats(),
		Today:      today,
		Active:     a.tracker.Active(),
	}, nil
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chenyang-zz/shion/internal/domain/session"
	"github.com/chenyang-zz/shion/pkg/logger"
	"go.uber.org/zap"
)

// ProgramUsage 一个程序在统计区间内的使用情况
type ProgramUsage struct {
	Path        string        `json:"path"`
	Description string        `json:"description"`
	Sessions    int64         `json:"sessions"`
	Total       time.Duration `json:"total"`
}

// SessionRepository 会话表，实现 session.Saver
type SessionRepository struct {
	db *sql.DB
}

var _ session.Saver = (*SessionRepository)(nil)

// NewSessionRepository 创建会话仓储
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// SaveSession 保存结束的会话，同一 ID 重复保存时覆盖结束时间
func (r *SessionRepository) SaveSession(ctx context.Context, s session.Session) error {
	if s.IsAlive() {
		return fmt.Errorf("会话 %s 尚未结束", s.ID)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (uuid, path, description, start_time, end_time, duration)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			end_time = excluded.end_time,
			duration = excluded.duration
	`, s.ID, s.Path, s.Description, s.Start, s.End, s.Duration().Seconds())
	if err != nil {
		return fmt.Errorf("保存会话 %s 失败: %w", s.ID, err)
	}
	return nil
}

// FindRecent 查询最近开始的会话，新的在前
func (r *SessionRepository) FindRecent(ctx context.Context, limit int) ([]session.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT uuid, path, description, start_time, end_time
		FROM sessions
		ORDER BY start_time DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询会话失败: %w", err)
	}
	defer rows.Close()

	var sessions []session.Session
	for rows.Next() {
		var s session.Session
		if err := rows.Scan(&s.ID, &s.Path, &s.Description, &s.Start, &s.End); err != nil {
			return nil, fmt.Errorf("扫描会话失败: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历会话失败: %w", err)
	}
	return sessions, nil
}

// Usage 统计 since 之后开始的会话，按总时长降序
func (r *SessionRepository) Usage(ctx context.Context, since time.Time) ([]ProgramUsage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT path, MAX(description), COUNT(*), SUM(duration)
		FROM sessions
		WHERE start_time >= ?
		GROUP BY path
		ORDER BY SUM(duration) DESC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("统计会话失败: %w", err)
	}
	defer rows.Close()

	var usage []ProgramUsage
	for rows.Next() {
		var u ProgramUsage
		var seconds float64
		if err := rows.Scan(&u.Path, &u.Description, &u.Sessions, &seconds); err != nil {
			return nil, fmt.Errorf("扫描统计失败: %w", err)
		}
		u.Total = time.Duration(seconds * float64(time.Second))
		usage = append(usage, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历统计失败: %w", err)
	}
	return usage, nil
}

// DeleteOlderThan 删除 cutoff 之前结束的会话
func (r *SessionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE end_time < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("删除旧会话失败: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("获取删除行数失败: %w", err)
	}
	if count > 0 {
		logger.Info("删除旧会话",
			zap.String("component", "storage"),
			zap.Int64("count", count),
			zap.Time("cutoff", cutoff),
		)
	}
	return count, nil
}

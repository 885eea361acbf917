package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// ProgramRecord 见过的程序，以路径为唯一标识
type ProgramRecord struct {
	Path        string    `json:"path"`
	Description string    `json:"description"`
	Title       string    `json:"title"`
	Icon        []byte    `json:"icon"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// ProgramRepository 程序表
type ProgramRepository struct {
	db *sql.DB
}

// NewProgramRepository 创建程序仓储
func NewProgramRepository(db *sql.DB) *ProgramRepository {
	return &ProgramRepository{db: db}
}

// Upsert 插入或更新程序
//
// 已存在时更新描述、标题和最后出现时间；新图标为空时保留旧图标，first_seen 不变。
func (r *ProgramRepository) Upsert(ctx context.Context, p ProgramRecord) error {
	if p.Path == "" {
		return fmt.Errorf("程序路径为空")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO programs (path, description, title, icon, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			description = excluded.description,
			title = excluded.title,
			icon = CASE WHEN length(excluded.icon) > 0 THEN excluded.icon ELSE programs.icon END,
			last_seen = excluded.last_seen
	`, p.Path, p.Description, p.Title, p.Icon, p.LastSeen, p.LastSeen)
	if err != nil {
		return fmt.Errorf("保存程序 %s 失败: %w", p.Path, err)
	}
	return nil
}

// FindByPath 按路径查询，不存在时返回 ErrNotFound
func (r *ProgramRepository) FindByPath(ctx context.Context, path string) (ProgramRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT path, description, title, icon, first_seen, last_seen
		FROM programs WHERE path = ?
	`, path)

	p, err := scanProgram(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ProgramRecord{}, fmt.Errorf("程序 %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return ProgramRecord{}, fmt.Errorf("查询程序失败: %w", err)
	}
	return p, nil
}

// FindAll 查询所有程序，最近出现的在前
func (r *ProgramRepository) FindAll(ctx context.Context) ([]ProgramRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT path, description, title, icon, first_seen, last_seen
		FROM programs ORDER BY last_seen DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("查询程序失败: %w", err)
	}
	defer rows.Close()

	var programs []ProgramRecord
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描程序失败: %w", err)
		}
		programs = append(programs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历程序失败: %w", err)
	}
	return programs, nil
}

// Count 程序总数
func (r *ProgramRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM programs").Scan(&count); err != nil {
		return 0, fmt.Errorf("统计程序失败: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProgram(row rowScanner) (ProgramRecord, error) {
	var p ProgramRecord
	if err := row.Scan(&p.Path, &p.Description, &p.Title, &p.Icon, &p.FirstSeen, &p.LastSeen); err != nil {
		return ProgramRecord{}, err
	}
	if p.Icon == nil {
		p.Icon = []byte{}
	}
	return p, nil
}

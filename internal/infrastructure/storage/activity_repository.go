package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chenyang-zz/shion/pkg/events"
	"github.com/chenyang-zz/shion/pkg/logger"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

/**
 * ActivityRepository 活动记录存储接口
 *
 * 活动记录是总线上程序、键鼠和音频事件的流水
 */
type ActivityRepository interface {
	// Save 保存单个事件
	Save(event events.Event) error

	// SaveBatch 批量保存事件
	SaveBatch(eventList []events.Event) error

	// FindByTimeRange 按时间范围查询
	FindByTimeRange(start, end time.Time) ([]events.Event, error)

	// FindRecent 查询最近的事件
	FindRecent(limit int) ([]events.Event, error)

	// FindByType 按类型查询
	FindByType(eventType events.EventType, limit int) ([]events.Event, error)

	// DeleteOlderThan 删除旧数据
	DeleteOlderThan(cutoff time.Time) (int64, error)

	// GetStats 获取统计信息
	GetStats() (*ActivityStats, error)
}

/**
 * ActivityStats 活动记录统计信息
 */
type ActivityStats struct {
	// TotalCount 总记录数
	TotalCount int64 `json:"total_count"`

	// CountByType 按类型统计
	CountByType map[string]int64 `json:"count_by_type"`

	// Oldest 最旧的记录时间
	Oldest *time.Time `json:"oldest,omitempty"`

	// Newest 最新的记录时间
	Newest *time.Time `json:"newest,omitempty"`
}

/**
 * SQLiteActivityRepository SQLite 活动记录仓储实现
 */
type SQLiteActivityRepository struct {
	db *sql.DB
}

/**
 * NewSQLiteActivityRepository 创建 SQLite 活动记录仓储
 *
 * Parameters:
 *   - db: 数据库连接
 *
 * Returns: *SQLiteActivityRepository - 仓储实例
 */
func NewSQLiteActivityRepository(db *sql.DB) *SQLiteActivityRepository {
	return &SQLiteActivityRepository{db: db}
}

const insertActivitySQL = `
	INSERT INTO activities (uuid, type, timestamp, data, path, application, window_title)
	VALUES (?, ?, ?, ?, ?, ?, ?)
`

const selectActivityColumns = `SELECT uuid, type, timestamp, data, path, application, window_title FROM activities`

// activityRow 把事件展开为一行的列值
func activityRow(event events.Event) ([]interface{}, error) {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("序列化事件数据失败: %w", err)
	}

	var application, windowTitle string
	if event.Context != nil {
		application = event.Context.Application
		windowTitle = event.Context.WindowTitle
	}

	return []interface{}{
		event.ID,
		string(event.Type),
		event.Timestamp,
		string(dataJSON),
		event.Path(),
		application,
		windowTitle,
	}, nil
}

/**
 * Save 保存单个事件
 *
 * Parameters:
 *   - event: 事件对象
 *
 * Returns: error - 错误信息
 */
func (r *SQLiteActivityRepository) Save(event events.Event) error {
	args, err := activityRow(event)
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(insertActivitySQL, args...); err != nil {
		logger.Error("保存活动记录失败",
			zap.String("component", "storage"),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		return fmt.Errorf("保存活动记录失败: %w", err)
	}
	return nil
}

/**
 * SaveBatch 批量保存事件
 *
 * 使用事务和预处理语句，序列化失败的事件被跳过，插入失败时整批回滚
 *
 * Parameters:
 *   - eventList: 事件数组
 *
 * Returns: error - 错误信息
 */
func (r *SQLiteActivityRepository) SaveBatch(eventList []events.Event) error {
	if len(eventList) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertActivitySQL)
	if err != nil {
		return fmt.Errorf("准备语句失败: %w", err)
	}
	defer stmt.Close()

	for _, event := range eventList {
		args, err := activityRow(event)
		if err != nil {
			logger.Error("序列化事件数据失败",
				zap.String("component", "storage"),
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}

		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("插入活动记录 %s 失败: %w", event.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	logger.Debug("批量保存活动记录成功",
		zap.String("component", "storage"),
		zap.Int("count", len(eventList)),
	)
	return nil
}

/**
 * FindByTimeRange 按时间范围查询，结果从旧到新
 *
 * Parameters:
 *   - start: 开始时间
 *   - end: 结束时间
 *
 * Returns: []events.Event - 事件列表, error - 错误信息
 */
func (r *SQLiteActivityRepository) FindByTimeRange(start, end time.Time) ([]events.Event, error) {
	rows, err := r.db.Query(selectActivityColumns+`
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, id ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("查询活动记录失败: %w", err)
	}
	defer rows.Close()

	return scanActivities(rows)
}

/**
 * FindRecent 查询最近的事件，结果从旧到新
 *
 * Parameters:
 *   - limit: 返回数量限制
 *
 * Returns: []events.Event - 事件列表, error - 错误信息
 */
func (r *SQLiteActivityRepository) FindRecent(limit int) ([]events.Event, error) {
	rows, err := r.db.Query(selectActivityColumns+`
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询最近活动记录失败: %w", err)
	}
	defer rows.Close()

	eventList, err := scanActivities(rows)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(eventList)-1; i < j; i, j = i+1, j-1 {
		eventList[i], eventList[j] = eventList[j], eventList[i]
	}
	return eventList, nil
}

/**
 * FindByType 按类型查询，结果从新到旧
 *
 * Parameters:
 *   - eventType: 事件类型
 *   - limit: 返回数量限制
 *
 * Returns: []events.Event - 事件列表, error - 错误信息
 */
func (r *SQLiteActivityRepository) FindByType(eventType events.EventType, limit int) ([]events.Event, error) {
	rows, err := r.db.Query(selectActivityColumns+`
		WHERE type = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, string(eventType), limit)
	if err != nil {
		return nil, fmt.Errorf("按类型查询活动记录失败: %w", err)
	}
	defer rows.Close()

	return scanActivities(rows)
}

/**
 * DeleteOlderThan 删除旧于指定时间的记录
 *
 * Parameters:
 *   - cutoff: 截止时间
 *
 * Returns: int64 - 删除的记录数, error - 错误信息
 */
func (r *SQLiteActivityRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM activities WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("删除旧活动记录失败: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("获取删除行数失败: %w", err)
	}

	if count > 0 {
		logger.Info("删除旧活动记录",
			zap.String("component", "storage"),
			zap.Int64("count", count),
			zap.Time("cutoff", cutoff),
		)
	}
	return count, nil
}

/**
 * GetStats 获取活动记录统计信息
 *
 * Returns: *ActivityStats - 统计信息, error - 错误信息
 */
func (r *SQLiteActivityRepository) GetStats() (*ActivityStats, error) {
	stats := &ActivityStats{
		CountByType: make(map[string]int64),
	}

	if err := r.db.QueryRow("SELECT COUNT(*) FROM activities").Scan(&stats.TotalCount); err != nil {
		return nil, fmt.Errorf("查询总数失败: %w", err)
	}

	rows, err := r.db.Query("SELECT type, COUNT(*) FROM activities GROUP BY type")
	if err != nil {
		return nil, fmt.Errorf("按类型统计失败: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eventType string
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("扫描类型统计失败: %w", err)
		}
		stats.CountByType[eventType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历类型统计失败: %w", err)
	}

	// 聚合结果没有列类型，驱动按原始文本返回
	var oldest, newest sql.NullString
	if err := r.db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM activities").Scan(&oldest, &newest); err != nil {
		return nil, fmt.Errorf("查询时间范围失败: %w", err)
	}
	stats.Oldest = parseTimestamp(oldest)
	stats.Newest = parseTimestamp(newest)

	return stats, nil
}

// parseTimestamp 按驱动写入时间时使用的格式解析文本时间
func parseTimestamp(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.Parse(layout, s.String); err == nil {
			return &t
		}
	}
	return nil
}

// scanActivities 把查询结果还原为事件
func scanActivities(rows *sql.Rows) ([]events.Event, error) {
	var eventList []events.Event

	for rows.Next() {
		var (
			event       events.Event
			eventType   string
			dataJSON    sql.NullString
			path        sql.NullString
			application sql.NullString
			windowTitle sql.NullString
		)

		if err := rows.Scan(
			&event.ID,
			&eventType,
			&event.Timestamp,
			&dataJSON,
			&path,
			&application,
			&windowTitle,
		); err != nil {
			return nil, fmt.Errorf("扫描活动记录失败: %w", err)
		}

		event.Type = events.EventType(eventType)
		event.Metadata = make(map[string]string)

		if dataJSON.Valid && dataJSON.String != "" {
			if err := json.Unmarshal([]byte(dataJSON.String), &event.Data); err != nil {
				logger.Warn("反序列化事件数据失败",
					zap.String("component", "storage"),
					zap.String("event_id", event.ID),
					zap.Error(err),
				)
			}
		}

		if path.String != "" || application.String != "" || windowTitle.String != "" {
			event.Context = &events.EventContext{
				Application: application.String,
				WindowTitle: windowTitle.String,
				FilePath:    path.String,
			}
		}

		eventList = append(eventList, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历活动记录失败: %w", err)
	}
	return eventList, nil
}

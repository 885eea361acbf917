package storage

import (
	"testing"
	"time"

	"github.com/chenyang-zz/shion/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activityAt(eventType events.EventType, path string, ts time.Time) events.Event {
	event := events.NewEvent(eventType, map[string]interface{}{
		"path":  path,
		"title": "A Window",
	}).WithContext(&events.EventContext{
		Application: "A",
		WindowTitle: "A Window",
		FilePath:    path,
	})
	event.Timestamp = ts
	return *event
}

// TestSQLiteActivityRepository_Save 测试保存单个活动记录
func TestSQLiteActivityRepository_Save(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewSQLiteActivityRepository(db)
	event := activityAt(events.EventTypeProgram, `C:\apps\a.exe`, time.Now())

	require.NoError(t, repo.Save(event))

	saved, err := repo.FindRecent(10)
	require.NoError(t, err)
	require.Len(t, saved, 1)

	got := saved[0]
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, events.EventTypeProgram, got.Type)
	assert.True(t, event.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, "A Window", got.Data["title"])
	require.NotNil(t, got.Context)
	assert.Equal(t, `C:\apps\a.exe`, got.Context.FilePath)
	assert.Equal(t, "A", got.Context.Application)
	assert.Equal(t, `C:\apps\a.exe`, got.Path())
}

// TestSQLiteActivityRepository_SaveDuplicate 测试重复 ID
func TestSQLiteActivityRepository_SaveDuplicate(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewSQLiteActivityRepository(db)
	event := activityAt(events.EventTypeKeyboard, `C:\apps\a.exe`, time.Now())

	require.NoError(t, repo.Save(event))
	assert.Error(t, repo.Save(event))
}

// TestSQLiteActivityRepository_SaveBatch 测试批量保存
func TestSQLiteActivityRepository_SaveBatch(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewSQLiteActivityRepository(db)
	base := time.Now().Add(-time.Minute)

	var eventList []events.Event
	for i := 0; i < 5; i++ {
		eventList = append(eventList, activityAt(events.EventTypeKeyboard, `C:\apps\a.exe`, base.Add(time.Duration(i)*time.Second)))
	}
	require.NoError(t, repo.SaveBatch(eventList))
	require.NoError(t, repo.SaveBatch(nil))

	saved, err := repo.FindRecent(10)
	require.NoError(t, err)
	require.Len(t, saved, 5)

	// 从旧到新
	for i := range saved {
		assert.Equal(t, eventList[i].ID, saved[i].ID)
	}
}

// TestSQLiteActivityRepository_SaveBatchRollback 测试批量保存失败时整批回滚
func TestSQLiteActivityRepository_SaveBatchRollback(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewSQLiteActivityRepository(db)
	first := activityAt(events.EventTypeKeyboard, `C:\apps\a.exe`, time.Now())

	err := repo.SaveBatch([]events.Event{first, first})
	assert.Error(t, err)

	stats, err := repo.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalCount)
}

// TestSQLiteActivityRepository_FindRecentLimit 测试最近记录的数量限制
func TestSQLiteActivityRepository_FindRecentLimit(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewSQLiteActivityRepository(db)
	base := time.Now().Add(-time.Hour)

	var eventList []events.Event
	for i := 0; i < 5; i++ {
		eventList = append(eventList, activityAt(events.EventTypeMouse, `C:\apps\a.exe`, base.Add(time.Duration(i)*time.Minute)))
	}
	require.NoError(t, repo.SaveBatch(eventList))

	saved, err := repo.FindRecent(2)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, eventList[3].ID, saved[0].ID)
	assert.Equal(t, eventList[4].ID, saved[1].ID)
}

// TestSQLiteActivityRepository_FindByTimeRange 测试按时间范围查询
func TestSQLiteActivityRepository_FindByTimeRange(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewSQLiteActivityRepository(db)
	base := time.Now().Add(-time.Hour)

	var eventList []events.Event
	for i := 0; i < 6; i++ {
		eventList = append(eventList, activityAt(events.EventTypeKeyboard, `C:\apps\a.exe`, base.Add(time.Duration(i)*10*time.Minute)))
	}
	require.NoError(t, repo.SaveBatch(eventList))

	found, err := repo.FindByTimeRange(base.Add(15*time.Minute), base.Add(35*time.Minute))
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, eventList[2].ID, found[0].ID)
	assert.Equal(t, eventList[3].ID, found[1].ID)
}

// TestSQLiteActivityRepository_FindByType 测试按类型查询
func TestSQLiteActivityRepository_FindByType(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewSQLiteActivityRepository(db)
	now := time.Now()
	require.NoError(t, repo.SaveBatch([]events.Event{
		activityAt(events.EventTypeKeyboard, `C:\apps\a.exe`, now.Add(-3*time.Second)),
		activityAt(events.EventTypeMouse, `C:\apps\a.exe`, now.Add(-2*time.Second)),
		activityAt(events.EventTypeKeyboard, `C:\apps\b.exe`, now.Add(-time.Second)),
	}))

	found, err := repo.FindByType(events.EventTypeKeyboard, 10)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, `C:\apps\b.exe`, found[0].Path(), "新的在前")

	found, err = repo.FindByType(events.EventTypeAudio, 10)
	require.NoError(t, err)
	assert.Empty(t, found)
}

// TestSQLiteActivityRepository_DeleteOlderThan 测试删除旧数据
func TestSQLiteActivityRepository_DeleteOlderThan(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewSQLiteActivityRepository(db)
	now := time.Now()
	require.NoError(t, repo.SaveBatch([]events.Event{
		activityAt(events.EventTypeKeyboard, `C:\apps\a.exe`, now.Add(-48*time.Hour)),
		activityAt(events.EventTypeKeyboard, `C:\apps\a.exe`, now.Add(-25*time.Hour)),
		activityAt(events.EventTypeKeyboard, `C:\apps\a.exe`, now.Add(-time.Hour)),
	}))

	deleted, err := repo.DeleteOlderThan(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining, err := repo.FindRecent(10)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

// TestSQLiteActivityRepository_GetStats 测试统计信息
func TestSQLiteActivityRepository_GetStats(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewSQLiteActivityRepository(db)

	stats, err := repo.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalCount)
	assert.Nil(t, stats.Oldest)
	assert.Nil(t, stats.Newest)

	oldest := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	newest := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	require.NoError(t, repo.SaveBatch([]events.Event{
		activityAt(events.EventTypeKeyboard, `C:\apps\a.exe`, oldest),
		activityAt(events.EventTypeKeyboard, `C:\apps\a.exe`, oldest.Add(time.Minute)),
		activityAt(events.EventTypeAudio, `C:\apps\b.exe`, newest),
	}))

	stats, err = repo.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalCount)
	assert.Equal(t, int64(2), stats.CountByType["keyboard"])
	assert.Equal(t, int64(1), stats.CountByType["audio"])
	require.NotNil(t, stats.Oldest)
	require.NotNil(t, stats.Newest)
	assert.True(t, oldest.Equal(*stats.Oldest))
	assert.True(t, newest.Equal(*stats.Newest))
}

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/chenyang-zz/shion/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func programEvent(path string, icon []byte) events.Event {
	event := events.NewEvent(events.EventTypeProgram, map[string]interface{}{
		"path":        path,
		"description": "a",
		"title":       "A Window",
		"icon":        icon,
	}).WithContext(&events.EventContext{
		Application: "a",
		WindowTitle: "A Window",
		FilePath:    path,
	})
	return *event
}

// TestSink_Program 测试程序事件写入 programs 和 activities
func TestSink_Program(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	activities := NewSQLiteActivityRepository(db)
	programs := NewProgramRepository(db)
	writer := NewBatchWriter(activities, BatchWriterConfig{FlushInterval: time.Hour})
	writer.Start()

	sink := NewSink(writer, programs, DefaultSinkConfig())
	event := programEvent(`C:\apps\a.exe`, []byte{1, 2, 3})
	require.NoError(t, sink.HandleEvent(event))

	sink.Stop()
	writer.Stop()

	p, err := programs.FindByPath(context.Background(), `C:\apps\a.exe`)
	require.NoError(t, err)
	assert.Equal(t, "a", p.Description)
	assert.Equal(t, "A Window", p.Title)
	assert.Equal(t, []byte{1, 2, 3}, p.Icon)

	saved, err := activities.FindRecent(10)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, event.ID, saved[0].ID)
	assert.NotContains(t, saved[0].Data, "icon", "图标不写入活动记录")
	assert.Equal(t, "A Window", saved[0].Data["title"])

	// 原事件不受影响
	assert.Contains(t, event.Data, "icon")
}

// TestSink_EnabledTypes 测试只写入启用的事件类型
func TestSink_EnabledTypes(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	activities := NewSQLiteActivityRepository(db)
	writer := NewBatchWriter(activities, BatchWriterConfig{FlushInterval: time.Hour})
	writer.Start()

	sink := NewSink(writer, nil, SinkConfig{
		EnabledEventTypes: map[events.EventType]bool{events.EventTypeKeyboard: true},
	})

	keyboard := events.NewEvent(events.EventTypeKeyboard, map[string]interface{}{"path": `C:\apps\a.exe`})
	audio := events.NewEvent(events.EventTypeAudio, map[string]interface{}{"path": `C:\apps\b.exe`, "state": "active"})
	require.NoError(t, sink.HandleEvent(*keyboard))
	require.NoError(t, sink.HandleEvent(*audio))
	require.NoError(t, sink.HandleEvent(programEvent(`C:\apps\a.exe`, nil)), "没有程序仓储时忽略程序表")

	sink.Stop()
	writer.Stop()

	saved, err := activities.FindRecent(10)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, events.EventTypeKeyboard, saved[0].Type)
}

// TestSink_Retry 测试写入失败后退避重试
func TestSink_Retry(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	activities := NewSQLiteActivityRepository(db)
	writer := NewBatchWriter(activities, BatchWriterConfig{FlushInterval: 20 * time.Millisecond})

	sink := NewSink(writer, nil, SinkConfig{
		EnabledEventTypes: map[events.EventType]bool{events.EventTypeMouse: true},
		RetryOnError:      true,
		MaxRetries:        5,
		RetryBackoff:      10 * time.Millisecond,
	})

	// 写入器尚未启动，第一次写入失败
	mouse := events.NewEvent(events.EventTypeMouse, map[string]interface{}{"path": `C:\apps\a.exe`})
	require.NoError(t, sink.HandleEvent(*mouse))

	writer.Start()
	defer writer.Stop()

	assert.Eventually(t, func() bool {
		return countActivities(t, activities) == 1
	}, 2*time.Second, 20*time.Millisecond)

	sink.Stop()
}

// TestSink_StopAbortsRetry 测试 Stop 放弃重试
func TestSink_StopAbortsRetry(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	writer := NewBatchWriter(NewSQLiteActivityRepository(db), BatchWriterConfig{})
	sink := NewSink(writer, nil, SinkConfig{
		EnabledEventTypes: map[events.EventType]bool{events.EventTypeMouse: true},
		RetryOnError:      true,
		MaxRetries:        3,
		RetryBackoff:      time.Hour,
	})

	mouse := events.NewEvent(events.EventTypeMouse, map[string]interface{}{"path": `C:\apps\a.exe`})
	require.NoError(t, sink.HandleEvent(*mouse))

	done := make(chan struct{})
	go func() {
		sink.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop 没有放弃重试")
	}
}

// TestWithoutIcon 测试去掉图标时复制数据
func TestWithoutIcon(t *testing.T) {
	event := programEvent(`C:\apps\a.exe`, []byte{1})
	stripped := withoutIcon(event)

	assert.NotContains(t, stripped.Data, "icon")
	assert.Equal(t, "a", stripped.Data["description"])
	assert.Contains(t, event.Data, "icon")

	keyboard := *events.NewEvent(events.EventTypeKeyboard, map[string]interface{}{"path": "x"})
	assert.Equal(t, keyboard, withoutIcon(keyboard))
}

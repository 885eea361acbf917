package storage

import (
	"context"
	"testing"
	"time"

	"github.com/chenyang-zz/shion/internal/domain/session"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finishedSession(path string, start time.Time, d time.Duration) session.Session {
	return session.Session{
		ID:          uuid.NewString(),
		Path:        path,
		Description: "desc " + path,
		Start:       start,
		End:         start.Add(d),
	}
}

// TestSessionRepository_SaveAndFind 测试保存和查询会话
func TestSessionRepository_SaveAndFind(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	repo := NewSessionRepository(db)
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	older := finishedSession(`C:\apps\a.exe`, base, 10*time.Minute)
	newer := finishedSession(`C:\apps\b.exe`, base.Add(time.Hour), 5*time.Minute)
	require.NoError(t, repo.SaveSession(ctx, older))
	require.NoError(t, repo.SaveSession(ctx, newer))

	sessions, err := repo.FindRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	assert.Equal(t, newer.ID, sessions[0].ID)
	assert.Equal(t, older.ID, sessions[1].ID)
	assert.Equal(t, older.Path, sessions[1].Path)
	assert.Equal(t, older.Description, sessions[1].Description)
	assert.True(t, older.Start.Equal(sessions[1].Start))
	assert.True(t, older.End.Equal(sessions[1].End))
	assert.Equal(t, 10*time.Minute, sessions[1].Duration())

	sessions, err = repo.FindRecent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

// TestSessionRepository_SaveAlive 测试进行中的会话不能保存
func TestSessionRepository_SaveAlive(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	err := NewSessionRepository(db).SaveSession(context.Background(), session.Session{
		ID:    uuid.NewString(),
		Path:  `C:\apps\a.exe`,
		Start: time.Now(),
	})
	assert.Error(t, err)
}

// TestSessionRepository_SaveTwice 测试同一会话重复保存时更新结束时间
func TestSessionRepository_SaveTwice(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	repo := NewSessionRepository(db)
	s := finishedSession(`C:\apps\a.exe`, time.Now().Add(-time.Hour), time.Minute)
	require.NoError(t, repo.SaveSession(ctx, s))

	s.End = s.Start.Add(2 * time.Minute)
	require.NoError(t, repo.SaveSession(ctx, s))

	sessions, err := repo.FindRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 2*time.Minute, sessions[0].Duration())
}

// TestSessionRepository_Usage 测试按程序统计使用时长
func TestSessionRepository_Usage(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	repo := NewSessionRepository(db)
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	for _, s := range []session.Session{
		finishedSession(`C:\apps\a.exe`, base.Add(-24*time.Hour), time.Hour), // 统计区间之前
		finishedSession(`C:\apps\a.exe`, base, 10*time.Minute),
		finishedSession(`C:\apps\a.exe`, base.Add(time.Hour), 20*time.Minute),
		finishedSession(`C:\apps\b.exe`, base.Add(2*time.Hour), 45*time.Minute),
	} {
		require.NoError(t, repo.SaveSession(ctx, s))
	}

	usage, err := repo.Usage(ctx, base)
	require.NoError(t, err)
	require.Len(t, usage, 2)

	assert.Equal(t, `C:\apps\b.exe`, usage[0].Path)
	assert.Equal(t, int64(1), usage[0].Sessions)
	assert.Equal(t, 45*time.Minute, usage[0].Total)

	assert.Equal(t, `C:\apps\a.exe`, usage[1].Path)
	assert.Equal(t, int64(2), usage[1].Sessions)
	assert.Equal(t, 30*time.Minute, usage[1].Total)
	assert.Equal(t, `desc C:\apps\a.exe`, usage[1].Description)
}

// TestSessionRepository_DeleteOlderThan 测试删除旧会话
func TestSessionRepository_DeleteOlderThan(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	repo := NewSessionRepository(db)
	now := time.Now()

	require.NoError(t, repo.SaveSession(ctx, finishedSession(`C:\apps\a.exe`, now.Add(-72*time.Hour), time.Hour)))
	require.NoError(t, repo.SaveSession(ctx, finishedSession(`C:\apps\a.exe`, now.Add(-2*time.Hour), time.Hour)))

	deleted, err := repo.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	sessions, err := repo.FindRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

package storage

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB 创建已迁移的临时数据库
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := NewSQLiteDB(SQLiteConfig{Path: t.TempDir() + "/test.db"})
	require.NoError(t, err)

	err = RunMigrations(db)
	require.NoError(t, err)

	return db
}

// TestNewSQLiteDB 测试创建 SQLite 数据库连接
//
// 验证能够成功创建数据库连接并配置 WAL 模式
func TestNewSQLiteDB(t *testing.T) {
	config := SQLiteConfig{
		Path:            t.TempDir() + "/test.db",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}

	db, err := NewSQLiteDB(config)
	require.NoError(t, err)
	require.NotNil(t, db)
	defer db.Close()

	var mode string
	err = db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
}

// TestNewSQLiteDB_InvalidPath 测试无效路径的错误处理
func TestNewSQLiteDB_InvalidPath(t *testing.T) {
	config := SQLiteConfig{
		Path: "/nonexistent/directory/that/cannot/be/created/test.db",
	}

	db, err := NewSQLiteDB(config)
	assert.Error(t, err, "应该返回错误")
	assert.Nil(t, db, "数据库连接应该为空")
}

// TestNewSQLiteDB_ConfigOptions 测试数据库配置选项
func TestNewSQLiteDB_ConfigOptions(t *testing.T) {
	tests := []struct {
		name   string
		config SQLiteConfig
	}{
		{
			name:   "最小配置",
			config: SQLiteConfig{Path: t.TempDir() + "/minimal.db"},
		},
		{
			name: "完整配置",
			config: SQLiteConfig{
				Path:            t.TempDir() + "/full.db",
				MaxOpenConns:    10,
				MaxIdleConns:    3,
				ConnMaxLifetime: 10 * time.Minute,
			},
		},
		{
			name: "零连接数",
			config: SQLiteConfig{
				Path:         t.TempDir() + "/zero.db",
				MaxOpenConns: 0,
				MaxIdleConns: 0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := NewSQLiteDB(tt.config)
			require.NoError(t, err)
			defer db.Close()
			assert.NoError(t, db.Ping())
		})
	}
}

// TestNewSQLiteDB_MemoryDatabase 测试内存数据库
func TestNewSQLiteDB_MemoryDatabase(t *testing.T) {
	db, err := NewSQLiteDB(SQLiteConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("CREATE TABLE memory_test (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)
}

// TestNewSQLiteDB_ConcurrentAccess 测试并发访问
func TestNewSQLiteDB_ConcurrentAccess(t *testing.T) {
	db, err := NewSQLiteDB(SQLiteConfig{
		Path:         t.TempDir() + "/concurrent.db",
		MaxOpenConns: 25,
		MaxIdleConns: 5,
	})
	require.NoError(t, err)
	defer db.Close()

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			var result int
			err := db.QueryRow("SELECT 1").Scan(&result)
			assert.NoError(t, err)
			assert.Equal(t, 1, result)
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

// TestOpen 测试打开数据库时创建目录并执行迁移
func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "shion.db")

	db, err := Open(SQLiteConfig{Path: path})
	require.NoError(t, err)
	defer db.Close()

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

// TestOpen_EmptyPath 测试空路径
func TestOpen_EmptyPath(t *testing.T) {
	db, err := Open(SQLiteConfig{})
	assert.Error(t, err)
	assert.Nil(t, db)
}

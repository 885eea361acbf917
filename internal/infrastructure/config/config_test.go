package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefault(t *testing.T) {
	config, err := LoadDefault()
	require.NoError(t, err)

	assert.Equal(t, "shion", config.Application.Name)
	assert.Equal(t, time.Second, config.Monitor.ThrottleWindow)
	assert.Equal(t, 32, config.Monitor.IconSize)
	assert.Equal(t, 2*time.Minute, config.Session.IdleTimeout)
	assert.True(t, config.Monitor.Adapters.Window)
	assert.True(t, config.Monitor.Adapters.Audio)
	assert.NotContains(t, config.Storage.SQLite.Path, "~", "~ 应被展开")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SHION_DATA", dir)

	path := filepath.Join(dir, "config.yaml")
	content := `
monitor:
  throttle_window: 500ms
  adapters:
    audio: false
  filters:
    ignore_apps: ["explorer.exe"]
    ignore_window_titles: ["Task Switching"]
session:
  idle_timeout: 30s
storage:
  sqlite:
    path: ${SHION_DATA}/data.db
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	config, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, config.Monitor.ThrottleWindow)
	assert.Equal(t, 32, config.Monitor.IconSize, "未配置的字段保留默认值")
	assert.False(t, config.Monitor.Adapters.Audio)
	assert.True(t, config.Monitor.Adapters.Keyboard, "未配置的开关保留默认值")
	assert.Equal(t, []string{"explorer.exe"}, config.Monitor.Filters.IgnoreApps)
	assert.Equal(t, []string{"Task Switching"}, config.Monitor.Filters.IgnoreWindowTitles)
	assert.Equal(t, 30*time.Second, config.Session.IdleTimeout)
	assert.Equal(t, filepath.Join(dir, "data.db"), config.Storage.SQLite.Path)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("monitor: [unclosed"), 0o644))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestLoadUsesEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shion.yaml")
	require.NoError(t, os.WriteFile(path, []byte("monitor:\n  icon_size: 48\n"), 0o644))
	t.Setenv("SHION_CONFIG", path)

	config, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 48, config.Monitor.IconSize)

	t.Setenv("SHION_CONFIG", filepath.Join(t.TempDir(), "none.yaml"))
	config, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 32, config.Monitor.IconSize, "文件不存在时使用默认配置")
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	config, _ := LoadDefault()
	config.Monitor.ThrottleWindow = 2 * time.Second
	config.Monitor.Filters.IgnoreApps = []string{"/usr/bin/gnome-shell"}
	require.NoError(t, config.Save(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, loaded.Monitor.ThrottleWindow)
	assert.Equal(t, []string{"/usr/bin/gnome-shell"}, loaded.Monitor.Filters.IgnoreApps)
}

func TestFileOptions(t *testing.T) {
	assert.Nil(t, LoggingConfig{}.FileOptions())

	opts := LoggingConfig{File: FileConfig{Dir: "/var/log/shion", MaxBackups: 3}}.FileOptions()
	require.NotNil(t, opts)
	assert.Equal(t, "/var/log/shion", opts.Dir)
	assert.Equal(t, 3, opts.MaxBackups)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("SHION_TEST_DIR", "/opt/shion")

	assert.Equal(t, "", expandPath(""))
	assert.Equal(t, filepath.Join(home, ".shion", "data.db"), expandPath("~/.shion/data.db"))
	assert.Equal(t, "/opt/shion/data.db", expandPath("${SHION_TEST_DIR}/data.db"))
	assert.Equal(t, "/abs/path", expandPath("/abs/path"))
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { changes <- c })
	}()

	// 等待监听器就绪后再修改文件
	require.Eventually(t, func() bool {
		if err := os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0o644); err != nil {
			return false
		}
		select {
		case c := <-changes:
			return c.Logging.Level == "warn"
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch 应在 ctx 取消后返回")
	}
}

/**
 * Package config 提供配置管理功能
 *
 * 负责加载、保存和监听应用的配置文件（~/.shion/config.yaml）
 */

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chenyang-zz/shion/pkg/logger"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

/**
 * Config 应用配置结构体
 *
 * 包含应用的所有可配置参数
 */
type Config struct {
	// Application 应用基本配置
	Application ApplicationConfig `yaml:"application"`

	// Monitor 活动监控配置
	Monitor MonitorConfig `yaml:"monitor"`

	// Session 会话追踪配置
	Session SessionConfig `yaml:"session"`

	// Storage 存储配置
	Storage StorageConfig `yaml:"storage"`

	// Logging 日志配置
	Logging LoggingConfig `yaml:"logging"`
}

/**
 * ApplicationConfig 应用基本配置
 */
type ApplicationConfig struct {
	/** 应用名称 */
	Name string `yaml:"name"`

	/** 应用版本 */
	Version string `yaml:"version"`

	/** 是否启用调试模式 */
	Debug bool `yaml:"debug"`
}

/**
 * MonitorConfig 活动监控配置
 */
type MonitorConfig struct {
	/** 键盘/鼠标节流窗口 */
	ThrottleWindow time.Duration `yaml:"throttle_window"`

	/** 图标边长（像素） */
	IconSize int `yaml:"icon_size"`

	/** 图标缓存过期时间 */
	IconCacheTTL time.Duration `yaml:"icon_cache_ttl"`

	/** 启用的事件源 */
	Adapters AdaptersConfig `yaml:"adapters"`

	/** Windows 音频会话轮询间隔 */
	AudioPollInterval time.Duration `yaml:"audio_poll_interval"`

	/** 过滤器配置 */
	Filters FilterConfig `yaml:"filters"`
}

// AdaptersConfig 事件源开关
type AdaptersConfig struct {
	Window   bool `yaml:"window"`
	Keyboard bool `yaml:"keyboard"`
	Mouse    bool `yaml:"mouse"`
	Audio    bool `yaml:"audio"`
}

/**
 * FilterConfig 过滤器配置
 */
type FilterConfig struct {
	/** 忽略的应用（匹配路径或描述） */
	IgnoreApps []string `yaml:"ignore_apps"`

	/** 忽略的窗口标题（子串匹配） */
	IgnoreWindowTitles []string `yaml:"ignore_window_titles"`
}

// SessionConfig 会话追踪配置
type SessionConfig struct {
	/** 无活动多久后结束会话 */
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

/**
 * StorageConfig 存储配置
 */
type StorageConfig struct {
	/** SQLite 配置 */
	SQLite SQLiteConfig `yaml:"sqlite"`

	/** 数据保留策略 */
	Retention RetentionConfig `yaml:"retention"`
}

/**
 * SQLiteConfig SQLite 配置
 */
type SQLiteConfig struct {
	/** 数据库文件路径 */
	Path string `yaml:"path"`

	/** 最大打开连接数 */
	MaxOpenConns int `yaml:"max_open_conns"`

	/** 最大空闲连接数 */
	MaxIdleConns int `yaml:"max_idle_conns"`

	/** 活动记录批量写入大小 */
	BatchSize int `yaml:"batch_size"`

	/** 活动记录刷新间隔 */
	FlushInterval time.Duration `yaml:"flush_interval"`
}

/**
 * RetentionConfig 数据保留配置
 */
type RetentionConfig struct {
	/** 活动记录保留天数（0 表示永久保留） */
	ActivityDays int `yaml:"activity_days"`
}

/**
 * LoggingConfig 日志配置
 */
type LoggingConfig struct {
	/** 日志级别 */
	Level string `yaml:"level"`

	/** 文件配置 */
	File FileConfig `yaml:"file"`
}

/**
 * FileConfig 日志文件配置
 */
type FileConfig struct {
	/** 日志目录，按日期生成文件 */
	Dir string `yaml:"dir"`

	/** 日志文件路径，优先于 Dir */
	Path string `yaml:"path"`

	/** 最大文件大小（MB） */
	MaxSizeMB int `yaml:"max_size_mb"`

	/** 最大备份文件数 */
	MaxBackups int `yaml:"max_backups"`

	/** 最大保留天数 */
	MaxAgeDays int `yaml:"max_age_days"`

	/** 是否压缩 */
	Compress bool `yaml:"compress"`
}

/**
 * FileOptions 转换为日志文件选项
 *
 * Returns:
 *   - *logger.FileOptions: 未配置目录和路径时返回 nil
 */
func (c LoggingConfig) FileOptions() *logger.FileOptions {
	if c.File.Dir == "" && c.File.Path == "" {
		return nil
	}
	return &logger.FileOptions{
		Dir:        c.File.Dir,
		Path:       c.File.Path,
		MaxSizeMB:  c.File.MaxSizeMB,
		MaxBackups: c.File.MaxBackups,
		MaxAgeDays: c.File.MaxAgeDays,
		Compress:   c.File.Compress,
	}
}

/**
 * DefaultPath 返回配置文件路径
 *
 * 环境变量 SHION_CONFIG 优先，否则为 ~/.shion/config.yaml
 */
func DefaultPath() (string, error) {
	if path := os.Getenv("SHION_CONFIG"); path != "" {
		return expandPath(path), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(homeDir, ".shion", "config.yaml"), nil
}

/**
 * Load 加载配置文件
 *
 * 从默认路径加载配置文件，文件不存在时使用默认配置
 *
 * Returns:
 *   - *Config: 加载的配置
 *   - error: 错误信息
 */
func Load() (*Config, error) {
	configPath, err := DefaultPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return LoadDefault()
	}

	return LoadFile(configPath)
}

/**
 * LoadFile 从指定路径加载配置
 *
 * 文件中缺失的字段保留默认值，并进行环境变量替换
 *
 * Parameters:
 *   - path: 配置文件路径
 *
 * Returns:
 *   - *Config: 加载的配置
 *   - error: 读取或解析失败时返回错误
 */
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	config, _ := LoadDefault()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	expandEnvVars(config)
	applyDefaults(config)

	return config, nil
}

/**
 * LoadDefault 加载默认配置
 *
 * Returns:
 *   - *Config: 默认配置
 *   - error: 错误信息
 */
func LoadDefault() (*Config, error) {
	config := &Config{
		Application: ApplicationConfig{
			Name:    "shion",
			Version: "1.0.0",
		},
		Monitor: MonitorConfig{
			Adapters: AdaptersConfig{Window: true, Keyboard: true, Mouse: true, Audio: true},
		},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{Path: "~/.shion/data.db"},
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  FileConfig{Dir: "~/.shion/logs"},
		},
	}
	applyDefaults(config)
	expandEnvVars(config)
	return config, nil
}

/**
 * Save 保存配置到文件
 *
 * Parameters:
 *   - path: 配置文件路径，父目录不存在时自动创建
 *
 * Returns:
 *   - error: 错误信息
 */
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

/**
 * Watch 监听配置文件变化
 *
 * 监听文件所在目录（编辑器保存时常常是替换文件），文件被写入或重建后
 * 重新加载并回调。解析失败时记录警告并保留旧配置。阻塞直到 ctx 取消。
 *
 * Parameters:
 *   - ctx: 上下文
 *   - path: 配置文件路径
 *   - onChange: 重新加载成功后的回调
 *
 * Returns:
 *   - error: 创建监听器失败时返回错误
 */
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}

			config, err := LoadFile(path)
			if err != nil {
				logger.Warn("重新加载配置失败", zap.String("path", path), zap.Error(err))
				continue
			}
			logger.Info("配置已重新加载", zap.String("path", path))
			onChange(config)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("配置监听错误", zap.Error(err))
		}
	}
}

// applyDefaults 为零值字段填充默认值
func applyDefaults(config *Config) {
	m := &config.Monitor
	if m.ThrottleWindow <= 0 {
		m.ThrottleWindow = time.Second
	}
	if m.IconSize <= 0 {
		m.IconSize = 32
	}
	if m.IconCacheTTL <= 0 {
		m.IconCacheTTL = 10 * time.Minute
	}
	if m.AudioPollInterval <= 0 {
		m.AudioPollInterval = time.Second
	}

	if config.Session.IdleTimeout <= 0 {
		config.Session.IdleTimeout = 2 * time.Minute
	}

	s := &config.Storage.SQLite
	if s.MaxOpenConns <= 0 {
		s.MaxOpenConns = 1
	}
	if s.MaxIdleConns <= 0 {
		s.MaxIdleConns = 1
	}
	if s.BatchSize <= 0 {
		s.BatchSize = 100
	}
	if s.FlushInterval <= 0 {
		s.FlushInterval = 5 * time.Second
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
}

/**
 * expandEnvVars 展开环境变量
 *
 * 替换路径字段中的 ${VAR} 占位符和开头的 ~
 *
 * Parameters:
 *   - config: 配置对象
 */
func expandEnvVars(config *Config) {
	config.Storage.SQLite.Path = expandPath(config.Storage.SQLite.Path)
	config.Logging.File.Dir = expandPath(config.Logging.File.Dir)
	config.Logging.File.Path = expandPath(config.Logging.File.Path)
}

// expandPath 展开 ${VAR} 和 ~
func expandPath(path string) string {
	if path == "" {
		return path
	}
	path = os.ExpandEnv(path)

	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		path = filepath.Join(homeDir, path[1:])
	}
	return path
}

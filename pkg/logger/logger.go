/**
 * Package logger 提供结构化日志功能
 *
 * 基于 uber-go/zap 实现的结构化日志系统，文件输出通过 lumberjack 滚动。
 * 监控线程、事件总线和应用层共用同一个全局 logger。
 */
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// instance 全局日志实例
type instance struct {
	// base 由 GetLogger 返回，调用方直接记录
	base *zap.Logger

	// helper 供包级函数使用，调用位置跳过一层封装
	helper *zap.Logger
}

var (
	// current 当前生效的日志实例，可以在任意线程读取
	current atomic.Pointer[instance]

	// once 确保日志只初始化一次
	once sync.Once

	// level 全局日志级别，支持运行时调整
	level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
)

// FileOptions 日志文件滚动配置
type FileOptions struct {
	// Dir 日志目录，文件名按日期生成（shion-2006-01-02.log）
	Dir string

	// Path 完整日志文件路径，设置后优先于 Dir
	Path string

	// MaxSizeMB 单个文件最大尺寸（MB）
	MaxSizeMB int

	// MaxBackups 最多保留的旧文件数
	MaxBackups int

	// MaxAgeDays 旧文件最长保留天数
	MaxAgeDays int

	// Compress 是否压缩旧文件
	Compress bool
}

// Options 日志初始化选项
type Options struct {
	// Env 运行环境（development/production），为空时读取 ENV
	Env string

	// Level 日志级别，为空时读取 LOG_LEVEL
	Level string

	// File 文件输出配置，为 nil 时读取 LOG_FILE
	File *FileOptions
}

// InitLogger 使用环境变量初始化日志系统
//
// 环境变量：
//   - ENV: 环境类型（development/production），默认为 development
//   - LOG_LEVEL: 日志级别（debug/info/warn/error/fatal），默认根据环境自动设置
//   - LOG_FILE: 日志文件路径（可选）
//
// Returns: error - 初始化失败时返回错误
func InitLogger() error {
	return Init(Options{})
}

// Init 按选项初始化日志系统
//
// 只有第一次调用生效，之后的调用直接返回。
//
// Parameters:
//   - opts: 初始化选项
//
// Returns: error - 初始化失败时返回错误
func Init(opts Options) error {
	var initErr error
	once.Do(func() {
		env := opts.Env
		if env == "" {
			env = getEnv("ENV", "development")
		}

		defaultLevel := "debug"
		if env == "production" {
			defaultLevel = "info"
		}
		levelText := opts.Level
		if levelText == "" {
			levelText = getEnv("LOG_LEVEL", defaultLevel)
		}
		parsed, err := zapcore.ParseLevel(levelText)
		if err != nil {
			parsed, _ = zapcore.ParseLevel(defaultLevel)
		}
		level.SetLevel(parsed)

		file := opts.File
		if file == nil {
			if path := getEnv("LOG_FILE", ""); path != "" {
				file = &FileOptions{Path: path}
			}
		}

		var l *zap.Logger
		if env == "production" {
			l, initErr = initProductionLogger(file)
		} else {
			l, initErr = initDevelopmentLogger(file)
		}
		if initErr != nil {
			// 初始化失败时丢弃日志，调用方不需要判空
			l = zap.NewNop()
		}
		install(l)
	})

	return initErr
}

// initDevelopmentLogger 初始化开发环境日志
//
// 控制台彩色输出，配置了文件时同时写入文件（JSON 格式）。
//
// Parameters:
//   - file: 文件输出配置（可选）
//
// Returns:
//   - *zap.Logger: 配置好的 logger
//   - error: 初始化失败时返回错误
func initDevelopmentLogger(file *FileOptions) (*zap.Logger, error) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.999"),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stdout), level),
	}

	if file != nil {
		writer, err := newFileWriter(file)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(productionEncoderConfig()), writer, level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.Development()), nil
}

// initProductionLogger 初始化生产环境日志
//
// JSON 格式，配置了文件时只写文件，否则写标准输出。
//
// Parameters:
//   - file: 文件输出配置（可选）
//
// Returns:
//   - *zap.Logger: 配置好的 logger
//   - error: 初始化失败时返回错误
func initProductionLogger(file *FileOptions) (*zap.Logger, error) {
	sink := zapcore.AddSync(os.Stdout)
	if file != nil {
		writer, err := newFileWriter(file)
		if err != nil {
			return nil, err
		}
		sink = writer
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(productionEncoderConfig()), sink, level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// install 设置全局日志实例
func install(l *zap.Logger) {
	current.Store(&instance{
		base:   l,
		helper: l.WithOptions(zap.AddCallerSkip(1)),
	})
}

// load 返回全局日志实例，未初始化时按开发模式初始化
func load() *instance {
	if inst := current.Load(); inst != nil {
		return inst
	}
	_ = InitLogger()
	return current.Load()
}

// productionEncoderConfig 生产环境编码配置
func productionEncoderConfig() zapcore.EncoderConfig {
	config := zap.NewProductionEncoderConfig()
	config.TimeKey = "timestamp"
	config.EncodeLevel = zapcore.CapitalLevelEncoder
	config.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncodeCaller = zapcore.ShortCallerEncoder
	return config
}

// newFileWriter 创建滚动文件输出
//
// Parameters:
//   - file: 文件输出配置
//
// Returns:
//   - zapcore.WriteSyncer: 文件输出
//   - error: 目录创建失败时返回错误
func newFileWriter(file *FileOptions) (zapcore.WriteSyncer, error) {
	path := LogFilePath(file, time.Now())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    orDefault(file.MaxSizeMB, 10),
		MaxBackups: orDefault(file.MaxBackups, 5),
		MaxAge:     orDefault(file.MaxAgeDays, 30),
		Compress:   file.Compress,
		LocalTime:  true,
	}), nil
}

// LogFilePath 计算日志文件路径
//
// Path 非空时直接使用，否则在 Dir 下按日期生成文件名。
//
// Parameters:
//   - file: 文件输出配置
//   - now: 当前时间
//
// Returns: string - 日志文件路径
func LogFilePath(file *FileOptions, now time.Time) string {
	if file.Path != "" {
		return file.Path
	}
	return filepath.Join(file.Dir, fmt.Sprintf("shion-%s.log", now.Format("2006-01-02")))
}

// SetLevel 运行时调整日志级别
//
// Parameters:
//   - text: 日志级别文本
//
// Returns: error - 级别无法解析时返回错误
func SetLevel(text string) error {
	parsed, err := zapcore.ParseLevel(text)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", text, err)
	}
	level.SetLevel(parsed)
	return nil
}

// Level 返回当前日志级别
func Level() zapcore.Level {
	return level.Level()
}

// GetLogger 获取全局 logger 实例
//
// 如果日志系统未初始化，会自动初始化（开发模式）。
//
// Returns: *zap.Logger - 全局 logger 实例，不会为 nil
func GetLogger() *zap.Logger {
	return load().base
}

// Sync 刷新日志缓冲区
//
// 应用退出前应该调用此方法确保所有日志都已写入。
// Returns: error - 刷新失败时返回错误
func Sync() error {
	if inst := current.Load(); inst != nil {
		return inst.base.Sync()
	}
	return nil
}

// Debug 记录 Debug 级别日志
func Debug(msg string, fields ...zap.Field) {
	load().helper.Debug(msg, fields...)
}

// Info 记录 Info 级别日志
func Info(msg string, fields ...zap.Field) {
	load().helper.Info(msg, fields...)
}

// Warn 记录 Warn 级别日志
func Warn(msg string, fields ...zap.Field) {
	load().helper.Warn(msg, fields...)
}

// Error 记录 Error 级别日志
func Error(msg string, fields ...zap.Field) {
	load().helper.Error(msg, fields...)
}

// Fatal 记录 Fatal 级别日志后退出程序
func Fatal(msg string, fields ...zap.Field) {
	load().helper.Fatal(msg, fields...)
}

// getEnv 获取环境变量，不存在时返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Package log 提供 relaymesh 统一日志接口
//
// 基于 go.uber.org/zap 封装，保持组件化的日志 API：
//
//	var logger = log.Logger("core/swarm")
//	logger.Info("连接已识别", "remote", hostPort)
//
// 键值对参数与 zap.SugaredLogger 的 *w 方法一致。
// 全局 core 可在运行时替换（SetOutput/SetLevel/SetFileOutput），
// 已创建的组件 logger 会自动使用新的 core。
package log

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 日志级别常量（从 zapcore 导出，方便使用）
const (
	LevelDebug = zapcore.DebugLevel
	LevelInfo  = zapcore.InfoLevel
	LevelWarn  = zapcore.WarnLevel
	LevelError = zapcore.ErrorLevel
)

// EnvLogLevel 环境变量：默认日志级别（debug/info/warn/error）
const EnvLogLevel = "RELAYMESH_LOG_LEVEL"

// 当前全局 logger
var current atomic.Pointer[zap.Logger]

// 当前级别（可动态调整）
var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// SetDefault 设置默认 logger
func SetDefault(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	current.Store(l)
}

// Default 返回默认 logger
func Default() *zap.Logger {
	return current.Load()
}

// New 创建写入 w 的 console 格式 logger
func New(w io.Writer, lvl zapcore.Level) *zap.Logger {
	return zap.New(newCore(zapcore.NewConsoleEncoder(encoderConfig()), w, zap.NewAtomicLevelAt(lvl)))
}

// NewJSON 创建 JSON 格式的 logger
func NewJSON(w io.Writer, lvl zapcore.Level) *zap.Logger {
	return zap.New(newCore(zapcore.NewJSONEncoder(encoderConfig()), w, zap.NewAtomicLevelAt(lvl)))
}

// SetOutput 设置日志输出目标
//
// 保留当前级别，常用于测试中捕获日志。
func SetOutput(w io.Writer) {
	SetDefault(zap.New(newCore(zapcore.NewConsoleEncoder(encoderConfig()), w, level)))
}

// SetFileOutput 将日志写入滚动文件
//
// 文件按 maxSizeMB 滚动，保留 maxBackups 个历史文件。
//
// 示例：
//
//	log.SetFileOutput("relay.log", 100, 3)
func SetFileOutput(path string, maxSizeMB, maxBackups int) io.Closer {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	SetDefault(zap.New(newCore(zapcore.NewJSONEncoder(encoderConfig()), lj, level)))
	return lj
}

// SetLevel 设置日志级别
func SetLevel(lvl zapcore.Level) {
	level.SetLevel(lvl)
}

// ParseLevel 解析级别字符串，无法识别时返回 info
func ParseLevel(s string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// ============================================================================
//                              LazyLogger
// ============================================================================

// LazyLogger 懒加载 logger
//
// 每次日志调用时都从全局获取最新的 zap.Logger，
// 支持在运行时动态切换日志输出目标。
type LazyLogger struct {
	component string
}

// Logger 返回带组件名的 LazyLogger
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

func (l *LazyLogger) sugar() *zap.SugaredLogger {
	return current.Load().Sugar().With("component", l.component)
}

// Debug 输出 Debug 级别日志
func (l *LazyLogger) Debug(msg string, args ...any) {
	l.sugar().Debugw(msg, args...)
}

// Info 输出 Info 级别日志
func (l *LazyLogger) Info(msg string, args ...any) {
	l.sugar().Infow(msg, args...)
}

// Warn 输出 Warn 级别日志
func (l *LazyLogger) Warn(msg string, args ...any) {
	l.sugar().Warnw(msg, args...)
}

// Error 输出 Error 级别日志
func (l *LazyLogger) Error(msg string, args ...any) {
	l.sugar().Errorw(msg, args...)
}

// With 添加额外的属性
func (l *LazyLogger) With(args ...any) *zap.SugaredLogger {
	return l.sugar().With(args...)
}

// Component 返回组件名
func (l *LazyLogger) Component() string {
	return l.component
}

// ============================================================================
//                              工具函数
// ============================================================================

// TruncateID 安全截取 ID 用于日志显示
func TruncateID(id string, maxLen int) string {
	if len(id) <= maxLen {
		return id
	}
	return id[:maxLen]
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

func newCore(enc zapcore.Encoder, w io.Writer, lvl zapcore.LevelEnabler) zapcore.Core {
	return zapcore.NewCore(enc, zapcore.AddSync(w), lvl)
}

func init() {
	if s := os.Getenv(EnvLogLevel); s != "" {
		level.SetLevel(ParseLevel(s))
	}
	SetDefault(zap.New(newCore(zapcore.NewConsoleEncoder(encoderConfig()), os.Stderr, level)))
}

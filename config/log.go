package config

import (
	"errors"
	"fmt"
)

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别（debug/info/warn/error）
	Level string `json:"level"`

	// File 日志文件路径，为空时输出到 stderr
	File string `json:"file,omitempty"`

	// MaxSizeMB 单个日志文件最大体积
	MaxSizeMB int `json:"max_size_mb"`

	// MaxBackups 保留的轮转文件数
	MaxBackups int `json:"max_backups"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		MaxSizeMB:  100,
		MaxBackups: 3,
	}
}

// Validate 验证日志配置
func (c LogConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: unknown level %q", c.Level)
	}
	if c.File != "" && c.MaxSizeMB < 1 {
		return errors.New("log: max_size_mb must be >= 1")
	}
	if c.MaxBackups < 0 {
		return errors.New("log: max_backups must be >= 0")
	}
	return nil
}

package common

import (
	"io"
	"log"
	"os"
	"strings"
)

// Level is a logging verbosity level.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// ParseLevel maps LOG_LEVEL strings to a Level; unknown values mean info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return LevelError
	case "warn", "warning":
		return LevelWarn
	case "debug", "trace":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// Logger is a leveled wrapper around the standard logger. A nil *Logger
// discards everything, so library code can accept one optionally.
type Logger struct {
	level Level
	out   *log.Logger
}

// NewLogger writes to w with the standard date/time prefix.
func NewLogger(w io.Writer, level Level) *Logger {
	return &Logger{level: level, out: log.New(w, "", log.LstdFlags)}
}

// NewDefaultLogger logs to stderr at the level named by cfg.LogLevel.
func NewDefaultLogger(cfg *Config) *Logger {
	return NewLogger(os.Stderr, ParseLevel(cfg.LogLevel))
}

func (l *Logger) logf(level Level, tag, format string, args ...any) {
	if l == nil || level > l.level {
		return
	}
	l.out.Printf(tag+format, args...)
}

func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, "[ERROR] ", format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(LevelWarn, "[WARN] ", format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(LevelInfo, "", format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, "[DEBUG] ", format, args...) }

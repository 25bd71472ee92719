package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level 日志级别
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "debug",
	INFO:  "info",
	WARN:  "warn",
	ERROR: "error",
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// String 返回级别名称
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "info"
}

// ParseLevel 解析配置中的级别字符串，未知值回退到 INFO
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Logger 日志记录器
type Logger struct {
	module string
}

var (
	mu          sync.RWMutex
	globalLevel = INFO
	base        = newBase(os.Stderr, true).Level(zerolog.InfoLevel)
)

func newBase(w io.Writer, console bool) zerolog.Logger {
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// SetGlobalLevel 设置全局日志级别
func SetGlobalLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	globalLevel = level
	base = base.Level(level.zerolog())
}

// SetOutput 替换输出目标；console=false 时输出 JSON 行
func SetOutput(w io.Writer, console bool) {
	mu.Lock()
	defer mu.Unlock()
	base = newBase(w, console).Level(globalLevel.zerolog())
}

// New 创建新的日志记录器
func New(module string) *Logger {
	return &Logger{module: module}
}

func (l *Logger) event(level Level) *zerolog.Event {
	mu.RLock()
	z := base
	mu.RUnlock()
	switch level {
	case DEBUG:
		return z.Debug()
	case WARN:
		return z.Warn()
	case ERROR:
		return z.Error()
	default:
		return z.Info()
	}
}

// log 内部日志方法
func (l *Logger) log(level Level, format string, args ...any) {
	e := l.event(level)
	if e == nil {
		return
	}
	e.Str("module", l.module).Msg(fmt.Sprintf(format, args...))
}

// Debug 调试日志
func (l *Logger) Debug(format string, args ...any) {
	l.log(DEBUG, format, args...)
}

// Info 信息日志
func (l *Logger) Info(format string, args ...any) {
	l.log(INFO, format, args...)
}

// Warn 警告日志
func (l *Logger) Warn(format string, args ...any) {
	l.log(WARN, format, args...)
}

// Error 错误日志
func (l *Logger) Error(format string, args ...any) {
	l.log(ERROR, format, args...)
}

// Duration 记录一次耗时操作
func (l *Logger) Duration(op string, start time.Time) {
	e := l.event(DEBUG)
	if e == nil {
		return
	}
	e.Str("module", l.module).Dur("elapsed", time.Since(start)).Msg(op)
}

// WithError 带错误的日志
func (l *Logger) WithError(err error) *Logger {
	if err != nil {
		l.Error("error: %v", err)
	}
	return l
}

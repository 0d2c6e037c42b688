package core

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// LogLevel controls logger verbosity.
type LogLevel int

const (
	LogError LogLevel = iota
	LogWarn
	LogInfo
	LogDebug
)

func (l LogLevel) String() string {
	switch l {
	case LogError:
		return "ERROR"
	case LogWarn:
		return "WARN"
	case LogInfo:
		return "INFO"
	case LogDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// Logger is the session core's logging interface.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	SetLevel(level LogLevel)
	GetLevel() LogLevel
}

// DefaultLogger writes leveled lines to a single writer.
type DefaultLogger struct {
	level  LogLevel
	mu     sync.Mutex
	output io.Writer
}

// NewDefaultLogger creates a logger writing to stdout.
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	return &DefaultLogger{
		level:  level,
		output: os.Stdout,
	}
}

// NewDefaultLoggerWithOutput creates a logger writing to output.
func NewDefaultLoggerWithOutput(level LogLevel, output io.Writer) *DefaultLogger {
	return &DefaultLogger{
		level:  level,
		output: output,
	}
}

func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *DefaultLogger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

func (l *DefaultLogger) Debug(format string, args ...interface{}) {
	l.log(LogDebug, format, args...)
}

func (l *DefaultLogger) Info(format string, args ...interface{}) {
	l.log(LogInfo, format, args...)
}

func (l *DefaultLogger) Warn(format string, args ...interface{}) {
	l.log(LogWarn, format, args...)
}

func (l *DefaultLogger) Error(format string, args ...interface{}) {
	l.log(LogError, format, args...)
}

func (l *DefaultLogger) log(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level > l.level {
		return
	}
	fmt.Fprintf(l.output, "[%s] %s\n", level.String(), fmt.Sprintf(format, args...))
}

// NoOpLogger discards everything.
type NoOpLogger struct{}

func NewNoOpLogger() *NoOpLogger { return &NoOpLogger{} }

func (l *NoOpLogger) Debug(format string, args ...interface{}) {}
func (l *NoOpLogger) Info(format string, args ...interface{})  {}
func (l *NoOpLogger) Warn(format string, args ...interface{})  {}
func (l *NoOpLogger) Error(format string, args ...interface{}) {}
func (l *NoOpLogger) SetLevel(level LogLevel)                  {}
func (l *NoOpLogger) GetLevel() LogLevel                       { return LogInfo }

package debuglog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff // Disables all logging
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLogLevel parses a string into a LogLevel, defaulting to INFO.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "OFF":
		return LevelOff
	default:
		return LevelInfo
	}
}

var (
	mu           sync.RWMutex
	currentLevel = LevelOff
	handlerLevel slog.LevelVar
	logger       *slog.Logger
	logFile      io.Closer
)

// Setup configures the logging system with the specified level and optional file path.
// If filePath is empty, defaults to ~/.tailfeed/tailfeed.log.
func Setup(level LogLevel, filePath ...string) error {
	mu.Lock()
	defer mu.Unlock()

	currentLevel = level
	closeLocked()

	if level == LevelOff {
		return nil
	}

	var logPath string
	if len(filePath) > 0 && filePath[0] != "" {
		logPath = filePath[0]
	} else {
		home, _ := os.UserHomeDir()
		logPath = filepath.Join(home, ".tailfeed", "tailfeed.log")
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	logFile = f
	logger = newLogger(f, level)
	return nil
}

// SetupWriter sends log output to w instead of a file. Used by tests and by
// callers that already own an output stream.
func SetupWriter(level LogLevel, w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	currentLevel = level
	closeLocked()
	if level != LevelOff {
		logger = newLogger(w, level)
	}
}

func newLogger(w io.Writer, level LogLevel) *slog.Logger {
	handlerLevel.Set(level.slogLevel())
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: &handlerLevel,
	})).With("app", "tailfeed")
}

func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = level
	handlerLevel.Set(level.slogLevel())
}

func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// Close closes the log file if open
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	return closeLocked()
}

func closeLocked() error {
	logger = nil
	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		return err
	}
	return nil
}

func logAttrs(level LogLevel, msg string, attrs ...any) {
	mu.RLock()
	l, cur := logger, currentLevel
	mu.RUnlock()

	if l == nil || level < cur {
		return
	}
	l.Log(context.Background(), level.slogLevel(), msg, attrs...)
}

func Debugf(format string, args ...any) {
	logAttrs(LevelDebug, fmt.Sprintf(format, args...))
}

func Infof(format string, args ...any) {
	logAttrs(LevelInfo, fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...any) {
	logAttrs(LevelWarn, fmt.Sprintf(format, args...))
}

func Errorf(format string, args ...any) {
	logAttrs(LevelError, fmt.Sprintf(format, args...))
}

// FieldLogger attaches key-value fields to every message.
type FieldLogger struct {
	attrs []any
}

// WithFields returns a new logger with the specified fields
func WithFields(fields map[string]interface{}) *FieldLogger {
	fl := &FieldLogger{}
	for k, v := range fields {
		fl.attrs = append(fl.attrs, k, v)
	}
	return fl
}

// With returns a copy of fl with an extra field.
func (fl *FieldLogger) With(key string, value any) *FieldLogger {
	attrs := append(append([]any(nil), fl.attrs...), key, value)
	return &FieldLogger{attrs: attrs}
}

func (fl *FieldLogger) Debugf(format string, args ...any) {
	logAttrs(LevelDebug, fmt.Sprintf(format, args...), fl.attrs...)
}

func (fl *FieldLogger) Infof(format string, args ...any) {
	logAttrs(LevelInfo, fmt.Sprintf(format, args...), fl.attrs...)
}

func (fl *FieldLogger) Warnf(format string, args ...any) {
	logAttrs(LevelWarn, fmt.Sprintf(format, args...), fl.attrs...)
}

func (fl *FieldLogger) Errorf(format string, args ...any) {
	logAttrs(LevelError, fmt.Sprintf(format, args...), fl.attrs...)
}

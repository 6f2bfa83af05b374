package core

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level is the severity of a log line.
type Level int32

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
	LevelPanic
)

var levelNames = [...]string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR", "FATAL", "PANIC"}

func (l Level) String() string {
	if l < LevelTrace || int(l) >= len(levelNames) {
		return fmt.Sprintf("LEVEL(%d)", int32(l))
	}
	return levelNames[l]
}

// ParseLevel maps a case-insensitive level name ("debug", "WARN", ...) to a Level.
func ParseLevel(s string) (Level, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "WARNING" {
		name = "WARN"
	}
	for i, n := range levelNames {
		if n == name {
			return Level(i), nil
		}
	}
	return LevelInfo, fmt.Errorf("logger: unknown level %q", s)
}

// HandlerFunc receives every log line that passes the level threshold.
type HandlerFunc func(level Level, msg string, attrs map[string]interface{})

var loggerInstance = NewDevelopmentLogger()

// SetLogger sets the global logger instance
func SetLogger(logger *Logger) {
	if logger != nil {
		loggerInstance = logger
	}
}

// GetLogger retrieves the global logger instance
func GetLogger() *Logger {
	return loggerInstance
}

// Logger is a small structured logger. Child loggers created with With share
// the parent's handler and level threshold.
type Logger struct {
	handlerFunc HandlerFunc
	attrs       map[string]interface{}
	minLevel    *atomic.Int32
}

func NewLogger(handler HandlerFunc) *Logger {
	threshold := &atomic.Int32{}
	threshold.Store(int32(LevelTrace))
	return &Logger{
		handlerFunc: handler,
		attrs:       make(map[string]interface{}),
		minLevel:    threshold,
	}
}

// NewDevelopmentLogger creates a logger with pretty console output on stdout.
func NewDevelopmentLogger() *Logger {
	l := NewConsoleLogger(os.Stdout)
	l.SetLevel(LevelDebug)
	return l
}

// NewConsoleLogger writes one human-readable line per entry to w.
// Attributes are printed in key order so output is stable.
func NewConsoleLogger(w io.Writer) *Logger {
	var mu sync.Mutex
	return NewLogger(func(level Level, msg string, attrs map[string]interface{}) {
		line := FormatLine(time.Now(), level, msg, attrs)
		mu.Lock()
		fmt.Fprint(w, line)
		mu.Unlock()
		switch level {
		case LevelFatal:
			os.Exit(1)
		case LevelPanic:
			panic(msg)
		}
	})
}

// FormatLine renders a console log line terminated by a newline.
func FormatLine(ts time.Time, level Level, msg string, attrs map[string]interface{}) string {
	var sb strings.Builder
	sb.WriteString(ts.Format(time.RFC3339))
	sb.WriteString(" [")
	sb.WriteString(level.String())
	sb.WriteString("] ")
	sb.WriteString(msg)
	if len(attrs) > 0 {
		keys := make([]string, 0, len(attrs))
		for k := range attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" |")
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s=%v", k, attrs[k])
		}
	}
	sb.WriteByte('\n')
	return sb.String()
}

// SetLevel drops every entry below threshold, for this logger and all loggers
// derived from it.
func (l *Logger) SetLevel(threshold Level) {
	l.minLevel.Store(int32(threshold))
}

// Level returns the current threshold.
func (l *Logger) Level() Level {
	return Level(l.minLevel.Load())
}

// Enabled reports whether entries at level would be emitted.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.Level()
}

func (l *Logger) log(level Level, msg string, args ...interface{}) {
	if l.handlerFunc == nil || !l.Enabled(level) {
		return
	}
	if len(args) > 0 {
		// slog-style key-value pairs: even number of args with string keys.
		if isKeyValuePairs(args) {
			attrs := make(map[string]interface{}, len(l.attrs)+len(args)/2)
			for k, v := range l.attrs {
				attrs[k] = v
			}
			for i := 0; i < len(args)-1; i += 2 {
				key, _ := args[i].(string)
				attrs[key] = args[i+1]
			}
			l.handlerFunc(level, msg, attrs)
			return
		}
		msg = fmt.Sprintf(msg, args...)
	}
	l.handlerFunc(level, msg, l.attrs)
}

// isKeyValuePairs returns true if args look like slog-style key-value pairs:
// even count and every key (even index) is a string.
func isKeyValuePairs(args []interface{}) bool {
	if len(args)%2 != 0 {
		return false
	}
	for i := 0; i < len(args); i += 2 {
		if _, ok := args[i].(string); !ok {
			return false
		}
	}
	return true
}

func (l *Logger) Trace(msg string, args ...interface{}) { l.log(LevelTrace, msg, args...) }

func (l *Logger) Tracef(format string, args ...interface{}) { l.log(LevelTrace, format, args...) }

func (l *Logger) Debug(msg string, args ...interface{}) { l.log(LevelDebug, msg, args...) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.log(LevelDebug, format, args...) }

func (l *Logger) Info(msg string, args ...interface{}) { l.log(LevelInfo, msg, args...) }

func (l *Logger) Infof(format string, args ...interface{}) { l.log(LevelInfo, format, args...) }

func (l *Logger) Warn(msg string, args ...interface{}) { l.log(LevelWarn, msg, args...) }

func (l *Logger) Warnf(format string, args ...interface{}) { l.log(LevelWarn, format, args...) }

func (l *Logger) Error(msg string, args ...interface{}) { l.log(LevelError, msg, args...) }

func (l *Logger) Errorf(format string, args ...interface{}) { l.log(LevelError, format, args...) }

func (l *Logger) Fatal(msg string, args ...interface{}) { l.log(LevelFatal, msg, args...) }

func (l *Logger) Fatalf(format string, args ...interface{}) { l.log(LevelFatal, format, args...) }

func (l *Logger) Panic(msg string, args ...interface{}) { l.log(LevelPanic, msg, args...) }

func (l *Logger) Panicf(format string, args ...interface{}) { l.log(LevelPanic, format, args...) }

// With returns a child logger carrying attrs on every entry.
func (l *Logger) With(attrs map[string]interface{}) *Logger {
	combinedAttrs := make(map[string]interface{}, len(l.attrs)+len(attrs))
	for k, v := range l.attrs {
		combinedAttrs[k] = v
	}
	for k, v := range attrs {
		combinedAttrs[k] = v
	}
	return &Logger{
		handlerFunc: l.handlerFunc,
		attrs:       combinedAttrs,
		minLevel:    l.minLevel,
	}
}

// Sync is a no-op for fmt-based logger
func (l *Logger) Sync() error {
	return nil
}

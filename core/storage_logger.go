package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

type sessionLoggerKey struct{}

// ContextWithSessionLogger returns a new context carrying the session logger.
func ContextWithSessionLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, sessionLoggerKey{}, logger)
}

// SessionLoggerFromContext extracts the session logger from the context, or nil.
func SessionLoggerFromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(sessionLoggerKey{}).(*Logger); ok {
		return l
	}
	return nil
}

// SessionRecord opens and closes every session log file. The opening record
// has Kind "start"; the closing one has Kind "end" with EndedAt and Entries.
type SessionRecord struct {
	Kind       string `json:"kind"`
	SessionID  string `json:"session_id"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	StartedAt  string `json:"started_at"`
	EndedAt    string `json:"ended_at,omitempty"`
	Entries    int    `json:"entries,omitempty"`
}

// LogEntry is one JSON log line between the session records.
type LogEntry struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Message   string                 `json:"msg"`
	Attrs     map[string]interface{} `json:"attrs,omitempty"`
}

// NewLogEntry stamps a log line with the current time.
func NewLogEntry(level Level, msg string, attrs map[string]interface{}) LogEntry {
	return LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   msg,
		Attrs:     StringifyErrors(attrs),
	}
}

// LogWriter is where a session logger copies its output, in addition to
// the console: a local file or the control plane.
type LogWriter interface {
	Write(level Level, msg string, attrs map[string]interface{})
	Close()
}

// SessionLogWriter keeps one chat session's log in <dir>/<id>.jsonl.
// <id>.active exists next to it while the session is open.
type SessionLogWriter struct {
	mu      sync.Mutex
	file    *os.File
	dir     string
	record  SessionRecord
	entries int
}

// NewSessionLogWriter creates dir if needed and opens the session's log
// with its start record.
func NewSessionLogWriter(dir, sessionID, remoteAddr string) (*SessionLogWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session log: mkdir %q: %w", dir, err)
	}

	w := &SessionLogWriter{
		dir: dir,
		record: SessionRecord{
			Kind:       "start",
			SessionID:  sessionID,
			RemoteAddr: remoteAddr,
			StartedAt:  time.Now().UTC().Format(time.RFC3339),
		},
	}
	f, err := os.Create(w.Path())
	if err != nil {
		return nil, fmt.Errorf("session log: %w", err)
	}
	w.file = f
	if err := w.writeLine(w.record); err != nil {
		f.Close()
		return nil, fmt.Errorf("session log: start record: %w", err)
	}

	if marker, err := os.Create(w.markerPath()); err == nil {
		marker.Close()
	}
	return w, nil
}

// Path returns the location of the session's .jsonl file.
func (w *SessionLogWriter) Path() string {
	return filepath.Join(w.dir, w.record.SessionID+".jsonl")
}

func (w *SessionLogWriter) markerPath() string {
	return filepath.Join(w.dir, w.record.SessionID+".active")
}

// Write appends a log line. Lines written after Close are discarded.
func (w *SessionLogWriter) Write(level Level, msg string, attrs map[string]interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return
	}
	if w.writeLine(NewLogEntry(level, msg, attrs)) == nil {
		w.entries++
	}
}

// Close writes the end record, closes the file and removes the marker.
func (w *SessionLogWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return
	}

	end := w.record
	end.Kind = "end"
	end.EndedAt = time.Now().UTC().Format(time.RFC3339)
	end.Entries = w.entries
	w.writeLine(end)

	w.file.Close()
	w.file = nil
	os.Remove(w.markerPath())
}

func (w *SessionLogWriter) writeLine(v interface{}) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.file.Write(append(data, '\n'))
	return err
}

// StringifyErrors copies attrs with error values replaced by their text,
// since errors encode as {}.
func StringifyErrors(attrs map[string]interface{}) map[string]interface{} {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		out[k] = v
	}
	return out
}

// NewSessionLogger returns a Logger that tees every line to base's handler
// and to writer. Children created with With keep the tee.
func NewSessionLogger(base *Logger, writer LogWriter) *Logger {
	return &Logger{
		handlerFunc: func(level Level, msg string, attrs map[string]interface{}) {
			if base.handlerFunc != nil {
				base.handlerFunc(level, msg, attrs)
			}
			writer.Write(level, msg, attrs)
		},
		attrs:    base.attrs,
		minLevel: base.minLevel,
	}
}

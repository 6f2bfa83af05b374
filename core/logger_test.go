package core

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	level Level
	msg   string
	attrs map[string]interface{}
}

func capture() (*Logger, *[]captured) {
	var lines []captured
	return NewLogger(func(level Level, msg string, attrs map[string]interface{}) {
		lines = append(lines, captured{level, msg, attrs})
	}), &lines
}

func TestLoggerKeyValuePairsAndWith(t *testing.T) {
	logger, lines := capture()
	logger.With(map[string]interface{}{"component": "x"}).Info("turn committed", "history", 2)

	require.Len(t, *lines, 1)
	got := (*lines)[0]
	assert.Equal(t, LevelInfo, got.level)
	assert.Equal(t, "turn committed", got.msg)
	assert.Equal(t, "x", got.attrs["component"])
	assert.Equal(t, 2, got.attrs["history"])
}

func TestLoggerFormatsPrintfArgs(t *testing.T) {
	logger, lines := capture()
	logger.Infof("listening on %s", ":7860")
	assert.Equal(t, "listening on :7860", (*lines)[0].msg)
}

func TestLoggerLevelThreshold(t *testing.T) {
	logger, lines := capture()
	child := logger.With(nil)
	logger.SetLevel(LevelWarn)

	child.Info("dropped")
	child.Warn("kept")
	require.Len(t, *lines, 1)
	assert.Equal(t, "kept", (*lines)[0].msg)
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, LevelDebug, l)

	l, err = ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, LevelWarn, l)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestConsoleLoggerWritesSortedAttrs(t *testing.T) {
	var buf bytes.Buffer
	NewConsoleLogger(&buf).With(map[string]interface{}{"b": 2, "a": 1}).Warn("careful")
	assert.Contains(t, buf.String(), "[WARN] careful | a=1 b=2")
}

func TestSessionLogWriter(t *testing.T) {
	dir := t.TempDir()
	w, err := NewSessionLogWriter(dir, "s1", "127.0.0.1:5000")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "s1.active"))

	base, consoleLines := capture()
	logger := NewSessionLogger(base, w)
	logger.With(map[string]interface{}{"error": errors.New("boom")}).Error("inference failed")
	w.Close()

	assert.Len(t, *consoleLines, 1)
	assert.NoFileExists(t, filepath.Join(dir, "s1.active"))

	f, err := os.Open(w.Path())
	require.NoError(t, err)
	defer f.Close()
	scanner := bufio.NewScanner(f)

	require.True(t, scanner.Scan())
	var start SessionRecord
	require.NoError(t, sonic.Unmarshal(scanner.Bytes(), &start))
	assert.Equal(t, "start", start.Kind)
	assert.Equal(t, "s1", start.SessionID)
	assert.Equal(t, "127.0.0.1:5000", start.RemoteAddr)

	require.True(t, scanner.Scan())
	var entry LogEntry
	require.NoError(t, sonic.Unmarshal(scanner.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, "boom", entry.Attrs["error"])

	require.True(t, scanner.Scan())
	var end SessionRecord
	require.NoError(t, sonic.Unmarshal(scanner.Bytes(), &end))
	assert.Equal(t, "end", end.Kind)
	assert.Equal(t, 1, end.Entries)
	assert.NotEmpty(t, end.EndedAt)
	assert.False(t, scanner.Scan())

	assert.NotPanics(t, func() {
		w.Write(LevelInfo, "late", nil)
		w.Close()
	})
}

func TestStringifyErrors(t *testing.T) {
	assert.Nil(t, StringifyErrors(nil))
	attrs := map[string]interface{}{"error": errors.New("x"), "n": 1}
	out := StringifyErrors(attrs)
	assert.Equal(t, "x", out["error"])
	assert.Equal(t, 1, out["n"])
	assert.IsType(t, errors.New(""), attrs["error"])
}

func TestSessionLoggerContext(t *testing.T) {
	assert.Nil(t, SessionLoggerFromContext(context.Background()))
	logger, _ := capture()
	ctx := ContextWithSessionLogger(context.Background(), logger)
	assert.Same(t, logger, SessionLoggerFromContext(ctx))
}

func TestEventPacket(t *testing.T) {
	before := time.Now().UTC()
	p := NewEventPacket(testEvent{}, "tester")
	assert.Equal(t, "tester", p.Relayer)
	assert.NotEmpty(t, p.Uid)
	assert.False(t, p.Timestamp.Before(before))
	assert.True(t, strings.HasPrefix(p.Event.GetId(), "test"))
}

type testEvent struct{}

func (testEvent) GetId() string { return "test.event" }

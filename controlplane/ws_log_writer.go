package controlplane

import (
	"speechbot/core"
	"speechbot/protocol"
)

// WSLogWriter is a core.LogWriter that streams a session's log to the
// control plane instead of a local file.
type WSLogWriter struct {
	client    *Client
	sessionID string
}

func NewWSLogWriter(client *Client, sessionID string) *WSLogWriter {
	return &WSLogWriter{client: client, sessionID: sessionID}
}

func (w *WSLogWriter) Write(level core.Level, msg string, attrs map[string]interface{}) {
	e := core.NewLogEntry(level, msg, attrs)
	w.client.SendLog(w.sessionID, protocol.LogEntry{
		Timestamp: e.Timestamp,
		Level:     e.Level,
		Message:   e.Message,
		Attrs:     e.Attrs,
	})
}

// Close tells the control plane the session's log is complete.
func (w *WSLogWriter) Close() {
	w.client.SendLogEnd(w.sessionID)
}

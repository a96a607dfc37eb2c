package controlplane

import (
	"time"

	"voicechat/protocol"
)

// WSLogWriter implements core.LogWriter by sending log entries over the
// control plane WebSocket instead of writing to disk.
type WSLogWriter struct {
	client    *Client
	sessionID string
}

// NewWSLogWriter creates a LogWriter that routes logs to the control plane.
func NewWSLogWriter(client *Client, sessionID string) *WSLogWriter {
	return &WSLogWriter{
		client:    client,
		sessionID: sessionID,
	}
}

// Write sends a log entry over the WebSocket. Error values are sent as text.
func (w *WSLogWriter) Write(level, msg string, attrs map[string]interface{}) {
	var out map[string]interface{}
	if len(attrs) > 0 {
		out = make(map[string]interface{}, len(attrs))
		for k, v := range attrs {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			out[k] = v
		}
	}
	w.client.SendLog(w.sessionID, protocol.LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		Attrs:     out,
	})
}

// Close signals the end of the session's log stream.
func (w *WSLogWriter) Close() {
	w.client.SendLogEnd(w.sessionID)
}

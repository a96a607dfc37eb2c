package protocol

import (
	"encoding/json"
	"time"
)

// MessageType enumerates all control-plane message types.
type MessageType string

const (
	// Client -> control plane
	MsgRegister  MessageType = "register"
	MsgHeartbeat MessageType = "heartbeat"
	MsgLog       MessageType = "log"
	MsgStatus    MessageType = "status"
	MsgEvent     MessageType = "event"
	MsgLogEnd    MessageType = "log_end"

	// Control plane -> client
	MsgSendMessage MessageType = "send_message"
	MsgSetSpeech   MessageType = "set_speech"
	MsgStopSpeech  MessageType = "stop_speech"
	MsgReset       MessageType = "reset"
	MsgShutdown    MessageType = "shutdown"
	MsgAck         MessageType = "ack"
)

// Envelope is the outer JSON wrapper for all WebSocket messages.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// --- Client -> control plane payloads ---

// RegisterPayload is sent once by the client immediately after connecting.
type RegisterPayload struct {
	ClientID     string            `json:"client_id"`
	Version      string            `json:"version,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// HeartbeatPayload is sent periodically to keep the connection alive.
type HeartbeatPayload struct {
	ClientID  string    `json:"client_id"`
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
}

// LogPayload carries a single log entry from a session.
type LogPayload struct {
	ClientID  string   `json:"client_id"`
	SessionID string   `json:"session_id"`
	Entry     LogEntry `json:"entry"`
}

// LogEntry is a structured log line.
type LogEntry struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Message   string                 `json:"msg"`
	Attrs     map[string]interface{} `json:"attrs,omitempty"`
}

// Status is a snapshot of the conversation.
type Status struct {
	CredentialReady bool   `json:"credential_ready"`
	SpeechEnabled   bool   `json:"speech_enabled"`
	PlaybackState   string `json:"playback_state"`
	Messages        int    `json:"messages"`
	LastError       string `json:"last_error,omitempty"`
}

// StatusPayload carries the conversation status on request or change.
type StatusPayload struct {
	ClientID string `json:"client_id"`
	Status   Status `json:"status"`
}

// EventPayload carries one notification event for external consumers.
type EventPayload struct {
	ClientID  string          `json:"client_id"`
	SessionID string          `json:"session_id,omitempty"`
	PacketID  string          `json:"packet_id"`
	EventID   string          `json:"event_id"`
	Relayer   string          `json:"relayer,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// LogEndPayload signals that a session's log stream has ended.
type LogEndPayload struct {
	ClientID  string `json:"client_id"`
	SessionID string `json:"session_id"`
}

// --- Control plane -> client payloads ---

// SendMessagePayload submits user text as if typed locally.
type SendMessagePayload struct {
	Text string `json:"text"`
}

// SetSpeechPayload toggles automatic speech.
type SetSpeechPayload struct {
	Enabled bool `json:"enabled"`
}

// ShutdownPayload requests the client to shut down gracefully.
type ShutdownPayload struct {
	Reason string `json:"reason,omitempty"`
}

// AckPayload acknowledges a received command.
type AckPayload struct {
	AckedType MessageType `json:"acked_type"`
	OK        bool        `json:"ok"`
	Error     string      `json:"error,omitempty"`
}

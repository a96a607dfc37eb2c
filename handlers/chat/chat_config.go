package chat

import "time"

type ChatConfig struct {
	HistoryWindow    int    `json:"history_window" toml:"history_window"`         // Number of prior completed turns sent with each request.
	RequestTimeoutMs int    `json:"request_timeout_ms" toml:"request_timeout_ms"` // Upper bound on a single chat request.
	SystemPrompt     string `json:"system_prompt" toml:"system_prompt"`           // Prepended to every request when non-empty.
}

// DefaultConfig returns a ChatConfig with sensible defaults.
func DefaultConfig() ChatConfig {
	return ChatConfig{
		HistoryWindow:    20,
		RequestTimeoutMs: 60_000,
		SystemPrompt:     "You are a helpful assistant. Keep answers short enough to be read aloud.",
	}
}

func (c ChatConfig) requestTimeout() time.Duration {
	if c.RequestTimeoutMs <= 0 {
		return time.Duration(DefaultConfig().RequestTimeoutMs) * time.Millisecond
	}
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

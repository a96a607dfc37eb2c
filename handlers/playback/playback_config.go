package playback

type PlaybackConfig struct {
	StopTimeoutMs int `json:"stop_timeout_ms" toml:"stop_timeout_ms"` // How long Close waits for an active session to wind down.
}

// DefaultConfig returns a PlaybackConfig with sensible defaults.
func DefaultConfig() PlaybackConfig {
	return PlaybackConfig{
		StopTimeoutMs: 2000,
	}
}

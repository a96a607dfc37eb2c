package tts

type TTSConfig struct {
	MaxTextLength int `json:"max_text_length" toml:"max_text_length"` // Longest normalized text, in characters, accepted for synthesis.
	CacheSize     int `json:"cache_size" toml:"cache_size"`           // Number of recent syntheses kept in memory; 0 disables the cache.
	TimeoutMs     int `json:"timeout_ms" toml:"timeout_ms"`           // Upper bound on a single synthesis call; 0 means no bound beyond the caller's context.
}

// DefaultConfig returns a TTSConfig with sensible defaults.
func DefaultConfig() TTSConfig {
	return TTSConfig{
		MaxTextLength: 5000,
		CacheSize:     32,
		TimeoutMs:     90_000,
	}
}

package runner

import "voicechat/core"

type RunnerConfig struct {
	SpeechEnabled bool             `json:"speech_enabled" toml:"speech_enabled"` // Speak each new reply as soon as it arrives.
	Voice         core.VoiceParams `json:"voice" toml:"voice"`
}

// DefaultConfig returns a RunnerConfig with sensible defaults.
func DefaultConfig() RunnerConfig {
	return RunnerConfig{
		SpeechEnabled: true,
		Voice:         core.DefaultVoiceParams(),
	}
}

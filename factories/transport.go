package factories

import (
	"fmt"
	"time"

	"voicechat/handlers/playback"
	"voicechat/transports/speaker"
	"voicechat/transports/websocket"
)

// AudioOutputConfig selects where synthesized speech is played.
type AudioOutputConfig struct {
	// Player is "speaker" (pipe PCM into Command), "websocket" (stream to a
	// remote player at URL) or "none" (paced but silent).
	Player string `json:"player" toml:"player"`
	// Command is the external player for "speaker"; {rate} and {channels}
	// are replaced with the clip format.
	Command string `json:"command,omitempty" toml:"command"`
	URL     string `json:"url,omitempty" toml:"url"`
	FrameMs int    `json:"frame_ms,omitempty" toml:"frame_ms"`
	// WriteTimeoutMs bounds a stalled write to the remote player.
	WriteTimeoutMs int `json:"write_timeout_ms,omitempty" toml:"write_timeout_ms"`
}

// DefaultAudioOutputConfig plays through ALSA's aplay.
func DefaultAudioOutputConfig() AudioOutputConfig {
	return AudioOutputConfig{
		Player:  "speaker",
		Command: "aplay -q -t raw -f S16_LE -r {rate} -c {channels}",
		FrameMs: 20,
	}
}

// BuildAudioDevice constructs the playback device. The returned close
// function releases any connection the device holds.
func BuildAudioDevice(config AudioOutputConfig) (playback.AudioDevice, func() error, error) {
	noop := func() error { return nil }
	frame := time.Duration(config.FrameMs) * time.Millisecond

	switch config.Player {
	case "", "speaker":
		if config.Command == "" {
			return speaker.NewDevice(speaker.DiscardSink, frame), noop, nil
		}
		return speaker.NewDevice(speaker.CommandSink(config.Command), frame), noop, nil
	case "none":
		return speaker.NewDevice(speaker.DiscardSink, frame), noop, nil
	case "websocket":
		if config.URL == "" {
			return nil, nil, fmt.Errorf("audio output: websocket player needs a url")
		}
		device, err := websocket.Dial(config.URL, time.Duration(config.WriteTimeoutMs)*time.Millisecond)
		if err != nil {
			return nil, nil, fmt.Errorf("audio output: %w", err)
		}
		return device, device.Close, nil
	default:
		return nil, nil, fmt.Errorf("audio output: unknown player %q", config.Player)
	}
}

package factories

import (
	"errors"

	"voicechat/core"
	"voicechat/handlers/tts"
	chatterbox "voicechat/services/chatterbox/tts"
	elevenlabs "voicechat/services/elevenlabs/tts"
	openaitts "voicechat/services/openai/tts"
)

// TTSFactoryConfig holds provider-specific configs for synthesis service construction.
// Set exactly one provider config; the rest should be left nil.
type TTSFactoryConfig struct {
	ChatterboxConfig *chatterbox.Config              `json:"chatterbox,omitempty" toml:"chatterbox"`
	OpenAIConfig     *openaitts.Config               `json:"openai,omitempty" toml:"openai"`
	ElevenLabsConfig *elevenlabs.ElevenLabsTTSConfig `json:"elevenlabs,omitempty" toml:"elevenlabs"`
}

// DefaultTTSFactoryConfig selects a local Chatterbox server.
func DefaultTTSFactoryConfig() TTSFactoryConfig {
	cfg := chatterbox.DefaultConfig()
	return TTSFactoryConfig{ChatterboxConfig: &cfg}
}

// BuildSynthesisService constructs a SynthesisService from the given factory config.
// Exactly one provider config must be non-nil. The user's credential is an
// OpenAI key, so only an OpenAI service is handed cred; may be nil.
func BuildSynthesisService(config TTSFactoryConfig, cred openaitts.CredentialSource, logger *core.Logger) (tts.SynthesisService, error) {
	if config.ChatterboxConfig != nil {
		return chatterbox.NewChatterboxTTS(*config.ChatterboxConfig, logger), nil
	}
	if config.OpenAIConfig != nil {
		svc := openaitts.NewOpenAITTSService(*config.OpenAIConfig, logger)
		if cred != nil {
			svc.WithCredentialSource(cred)
		}
		return svc, nil
	}
	if config.ElevenLabsConfig != nil {
		return elevenlabs.NewElevenLabsTTS(*config.ElevenLabsConfig, logger), nil
	}
	return nil, errors.New("TTSFactoryConfig: no provider config specified")
}

package factories

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bytedance/sonic"
)

// SettingsConfig is the top-level config loaded from settings.json or settings.toml.
type SettingsConfig struct {
	// Session configures the handlers and the orchestrator.
	Session SessionConfig `json:"session" toml:"session"`
	// Store selects where the credential is persisted.
	Store StoreConfig `json:"store" toml:"store"`
	// Audio selects the playback device.
	Audio AudioOutputConfig `json:"audio" toml:"audio"`
	// ControlPlaneURL, when set, receives event and log packets over a WebSocket.
	ControlPlaneURL string `json:"control_plane_url,omitempty" toml:"control_plane_url"`
	// LogLevel is the minimum console log level.
	LogLevel string `json:"log_level,omitempty" toml:"log_level"`
	// LogFormat is "text" (default) or "json" for the console log.
	LogFormat string `json:"log_format,omitempty" toml:"log_format"`
}

// DefaultSettingsConfig returns a SettingsConfig pre-filled with defaults.
func DefaultSettingsConfig() SettingsConfig {
	cfg := SettingsConfig{
		Session:  DefaultSessionConfig(),
		Store:    DefaultStoreConfig(),
		Audio:    DefaultAudioOutputConfig(),
		LogLevel: "INFO",
	}
	cfg.Session.applyDefaults()
	return cfg
}

// SettingsConfigFromJSON parses a JSON blob on top of DefaultSettingsConfig,
// so absent fields keep their defaults.
func SettingsConfigFromJSON(data []byte) (SettingsConfig, error) {
	cfg := defaultsForDecode()
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}
	cfg.Session.applyDefaults()
	return cfg, nil
}

// SettingsConfigFromTOML parses a TOML document on top of DefaultSettingsConfig.
func SettingsConfigFromTOML(data []byte) (SettingsConfig, error) {
	cfg := defaultsForDecode()
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}
	cfg.Session.applyDefaults()
	return cfg, nil
}

// defaultsForDecode leaves provider selections empty so that a provider named
// in the file is the only one set.
func defaultsForDecode() SettingsConfig {
	cfg := DefaultSettingsConfig()
	cfg.Session.Chat.ServiceConfig = LLMFactoryConfig{}
	cfg.Session.TTS.ServiceConfig = TTSFactoryConfig{}
	return cfg
}

// SettingsConfigFromFile reads a SettingsConfig, choosing the format by extension.
func SettingsConfigFromFile(path string) (SettingsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettingsConfig(), fmt.Errorf("settings: read %q: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return SettingsConfigFromTOML(data)
	}
	return SettingsConfigFromJSON(data)
}

// APIKeysFromEnv collects provider credentials from the environment.
func APIKeysFromEnv() APIKeys {
	return APIKeys{
		OpenAI:     os.Getenv("OPENAI_API_KEY"),
		Chatterbox: os.Getenv("CHATTERBOX_API_KEY"),
		ElevenLabs: os.Getenv("ELEVENLABS_API_KEY"),
		Together:   os.Getenv("TOGETHER_API_KEY"),
		Groq:       os.Getenv("GROQ_API_KEY"),
		DeepSeek:   os.Getenv("DEEPSEEK_API_KEY"),
		OpenRouter: os.Getenv("OPENROUTER_API_KEY"),
		Fireworks:  os.Getenv("FIREWORKS_API_KEY"),
		Cerebras:   os.Getenv("CEREBRAS_API_KEY"),
		XAI:        os.Getenv("XAI_API_KEY"),
		Mistral:    os.Getenv("MISTRAL_API_KEY"),
		Perplexity: os.Getenv("PERPLEXITY_API_KEY"),
	}
}

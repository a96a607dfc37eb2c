package factories

import (
	"context"
	"fmt"

	"voicechat/core"
	"voicechat/handlers/chat"
	"voicechat/handlers/credential"
	"voicechat/handlers/playback"
	"voicechat/handlers/transcript"
	"voicechat/handlers/tts"
	"voicechat/runner"
	"voicechat/store"
)

// SessionChatConfig bundles chat handler config with primary and optional fallback service factory configs.
type SessionChatConfig struct {
	// HandlerConfig controls handler-level chat behaviour (history window, timeout, system prompt).
	HandlerConfig chat.ChatConfig `json:"handler" toml:"handler"`
	// ServiceConfig selects and configures the primary chat provider.
	// Set exactly one provider field inside LLMFactoryConfig; OpenAI is used when none is set.
	ServiceConfig LLMFactoryConfig `json:"service" toml:"service"`
	// FallbackServiceConfigs is an ordered list of fallback providers tried if the primary fails.
	FallbackServiceConfigs []LLMFactoryConfig `json:"fallbacks,omitempty" toml:"fallbacks"`
}

func DefaultSessionChatConfig() SessionChatConfig {
	return SessionChatConfig{
		HandlerConfig: chat.DefaultConfig(),
	}
}

// SessionTTSConfig bundles TTS handler config with primary and optional fallback service factory configs.
type SessionTTSConfig struct {
	// HandlerConfig controls handler-level TTS behaviour (text bound, cache, timeout).
	HandlerConfig tts.TTSConfig `json:"handler" toml:"handler"`
	// ServiceConfig selects and configures the primary synthesis provider.
	// Set exactly one provider field inside TTSFactoryConfig; Chatterbox is used when none is set.
	ServiceConfig TTSFactoryConfig `json:"service" toml:"service"`
	// FallbackServiceConfigs is an ordered list of fallback providers tried if the primary fails.
	FallbackServiceConfigs []TTSFactoryConfig `json:"fallbacks,omitempty" toml:"fallbacks"`
}

func DefaultSessionTTSConfig() SessionTTSConfig {
	return SessionTTSConfig{
		HandlerConfig: tts.DefaultConfig(),
	}
}

// SessionConfig is the configuration for one conversation session: every
// handler plus the orchestrator on top.
type SessionConfig struct {
	Chat       SessionChatConfig           `json:"chat" toml:"chat"`
	TTS        SessionTTSConfig            `json:"tts" toml:"tts"`
	Playback   playback.PlaybackConfig     `json:"playback" toml:"playback"`
	Credential credential.CredentialConfig `json:"credential" toml:"credential"`
	Runner     runner.RunnerConfig         `json:"runner" toml:"runner"`
}

// DefaultSessionConfig returns a SessionConfig pre-filled with sensible handler defaults.
// Provider selections are left empty and resolved by applyDefaults after loading.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Chat:       DefaultSessionChatConfig(),
		TTS:        DefaultSessionTTSConfig(),
		Playback:   playback.DefaultConfig(),
		Credential: credential.DefaultConfig(),
		Runner:     runner.DefaultConfig(),
	}
}

// applyDefaults picks the default providers when none was configured.
func (c *SessionConfig) applyDefaults() {
	if c.Chat.ServiceConfig == (LLMFactoryConfig{}) {
		c.Chat.ServiceConfig = DefaultLLMFactoryConfig()
	}
	if c.TTS.ServiceConfig == (TTSFactoryConfig{}) {
		c.TTS.ServiceConfig = DefaultTTSFactoryConfig()
	}
}

// APIKeys holds API credentials for all supported service providers.
// Pass to SessionConfig.InjectAPIKeys after loading settings so that
// secrets are never stored in config files.
type APIKeys struct {
	OpenAI     string // Used for OpenAI chat and speech providers.
	Chatterbox string // Used for a Chatterbox server behind an auth proxy.
	ElevenLabs string // Used for ElevenLabs TTS provider.
	Together   string // Used for Together AI chat provider.
	Groq       string // Used for Groq chat provider.
	DeepSeek   string // Used for DeepSeek chat provider.
	OpenRouter string // Used for OpenRouter chat provider.
	Fireworks  string // Used for Fireworks AI chat provider.
	Cerebras   string // Used for Cerebras chat provider.
	XAI        string // Used for xAI (Grok) chat provider.
	Mistral    string // Used for Mistral AI chat provider.
	Perplexity string // Used for Perplexity chat provider.
}

// InjectAPIKeys applies API credentials to all configured service providers
// (primary and fallbacks) in the SessionConfig.
func (c *SessionConfig) InjectAPIKeys(keys APIKeys) {
	injectLLMKeys(&c.Chat.ServiceConfig, keys)
	for i := range c.Chat.FallbackServiceConfigs {
		injectLLMKeys(&c.Chat.FallbackServiceConfigs[i], keys)
	}

	injectTTSKeys(&c.TTS.ServiceConfig, keys)
	for i := range c.TTS.FallbackServiceConfigs {
		injectTTSKeys(&c.TTS.FallbackServiceConfigs[i], keys)
	}
}

// injectLLMKeys applies the relevant API key to a single LLMFactoryConfig.
func injectLLMKeys(cfg *LLMFactoryConfig, keys APIKeys) {
	if cfg.OpenAIConfig != nil && cfg.OpenAIConfig.APIKey == "" {
		cfg.OpenAIConfig.APIKey = keys.OpenAI
	}
	if cfg.TogetherConfig != nil && cfg.TogetherConfig.APIKey == "" {
		cfg.TogetherConfig.APIKey = keys.Together
	}
	if cfg.GroqConfig != nil && cfg.GroqConfig.APIKey == "" {
		cfg.GroqConfig.APIKey = keys.Groq
	}
	if cfg.DeepSeekConfig != nil && cfg.DeepSeekConfig.APIKey == "" {
		cfg.DeepSeekConfig.APIKey = keys.DeepSeek
	}
	if cfg.OpenRouterConfig != nil && cfg.OpenRouterConfig.APIKey == "" {
		cfg.OpenRouterConfig.APIKey = keys.OpenRouter
	}
	if cfg.FireworksConfig != nil && cfg.FireworksConfig.APIKey == "" {
		cfg.FireworksConfig.APIKey = keys.Fireworks
	}
	if cfg.CerebrasConfig != nil && cfg.CerebrasConfig.APIKey == "" {
		cfg.CerebrasConfig.APIKey = keys.Cerebras
	}
	if cfg.XAIConfig != nil && cfg.XAIConfig.APIKey == "" {
		cfg.XAIConfig.APIKey = keys.XAI
	}
	if cfg.MistralConfig != nil && cfg.MistralConfig.APIKey == "" {
		cfg.MistralConfig.APIKey = keys.Mistral
	}
	if cfg.PerplexityConfig != nil && cfg.PerplexityConfig.APIKey == "" {
		cfg.PerplexityConfig.APIKey = keys.Perplexity
	}
}

// injectTTSKeys applies the relevant API key to a single TTSFactoryConfig.
func injectTTSKeys(cfg *TTSFactoryConfig, keys APIKeys) {
	if cfg.ChatterboxConfig != nil && cfg.ChatterboxConfig.APIKey == "" {
		cfg.ChatterboxConfig.APIKey = keys.Chatterbox
	}
	if cfg.OpenAIConfig != nil && cfg.OpenAIConfig.APIKey == "" {
		cfg.OpenAIConfig.APIKey = keys.OpenAI
	}
	if cfg.ElevenLabsConfig != nil && cfg.ElevenLabsConfig.APIKey == "" {
		cfg.ElevenLabsConfig.APIKey = keys.ElevenLabs
	}
}

// SessionHandlers holds all constructed handlers ready to be composed into a Runner.
type SessionHandlers struct {
	Gate     *credential.Gate
	Chat     *chat.ChatHandler
	TTS      *tts.TTSHandler
	Playback *playback.PlaybackHandler
}

// BuildHandlers constructs every handler described by the SessionConfig and
// loads the persisted credential from kv. All handlers report to notifier.
func (c SessionConfig) BuildHandlers(ctx context.Context, kv store.KV, device playback.AudioDevice, notifier core.Notifier, logger *core.Logger) (*SessionHandlers, error) {
	c.applyDefaults()

	gate, err := credential.NewGate(kv, c.Credential, notifier)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if err := gate.Load(ctx); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	primaryChat, err := BuildChatService(c.Chat.ServiceConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("session: chat primary service: %w", err)
	}
	chatHandler := chat.NewChatHandler(primaryChat, gate, transcript.NewStore(), c.Chat.HandlerConfig, logger).WithNotifier(notifier)
	for i, fbCfg := range c.Chat.FallbackServiceConfigs {
		fb, err := BuildChatService(fbCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("session: chat fallback[%d]: %w", i, err)
		}
		chatHandler.WithBackupService(fb)
	}

	primaryTTS, err := BuildSynthesisService(c.TTS.ServiceConfig, gate, logger)
	if err != nil {
		return nil, fmt.Errorf("session: tts primary service: %w", err)
	}
	ttsHandler := tts.NewTTSHandler(primaryTTS, c.TTS.HandlerConfig, logger).WithNotifier(notifier)
	for i, fbCfg := range c.TTS.FallbackServiceConfigs {
		fb, err := BuildSynthesisService(fbCfg, gate, logger)
		if err != nil {
			return nil, fmt.Errorf("session: tts fallback[%d]: %w", i, err)
		}
		ttsHandler.WithBackupService(fb)
	}

	player := playback.NewPlaybackHandler(ttsHandler, device, c.Playback, logger).WithNotifier(notifier)

	return &SessionHandlers{
		Gate:     gate,
		Chat:     chatHandler,
		TTS:      ttsHandler,
		Playback: player,
	}, nil
}

// BuildRunner builds the handlers and composes them into a started Runner.
func (c SessionConfig) BuildRunner(ctx context.Context, kv store.KV, device playback.AudioDevice, notifier core.Notifier, logger *core.Logger) (*runner.Runner, error) {
	h, err := c.BuildHandlers(ctx, kv, device, notifier, logger)
	if err != nil {
		return nil, err
	}
	r := runner.NewRunner(runner.Components{
		Gate:     h.Gate,
		Chat:     h.Chat,
		TTS:      h.TTS,
		Playback: h.Playback,
	}, c.Runner, logger).WithNotifier(notifier)
	if err := r.Start(ctx); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return r, nil
}

package factories

import (
	"context"
	"os"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicechat/core"
	chatterbox "voicechat/services/chatterbox/tts"
	elevenlabs "voicechat/services/elevenlabs/tts"
	openaillm "voicechat/services/openai/llm"
	openaitts "voicechat/services/openai/tts"
	"voicechat/store"
	"voicechat/utils/audio"
)

func TestDefaultSettingsConfig(t *testing.T) {
	cfg := DefaultSettingsConfig()
	require.NotNil(t, cfg.Session.Chat.ServiceConfig.OpenAIConfig)
	require.NotNil(t, cfg.Session.TTS.ServiceConfig.ChatterboxConfig)
	assert.Equal(t, 20, cfg.Session.Chat.HandlerConfig.HistoryWindow)
	assert.Equal(t, 5000, cfg.Session.TTS.HandlerConfig.MaxTextLength)
	assert.True(t, cfg.Session.Runner.SpeechEnabled)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestSettingsConfigFromJSON(t *testing.T) {
	cfg, err := SettingsConfigFromJSON([]byte(`{
		"session": {
			"chat": {
				"handler": {"system_prompt": "be terse"},
				"service": {"groq": {"model": "llama"}},
				"fallbacks": [{"openai": {"model": "gpt-4o-mini"}}]
			},
			"tts": {"service": {"openai": {"voice": "nova"}}},
			"runner": {"speech_enabled": false, "voice": {"voice_id": "female", "speed": 1.5}}
		},
		"store": {"driver": "file", "path": "/tmp/creds.json"},
		"log_level": "DEBUG"
	}`))
	require.NoError(t, err)

	chat := cfg.Session.Chat
	assert.Nil(t, chat.ServiceConfig.OpenAIConfig, "only the named provider is set")
	require.NotNil(t, chat.ServiceConfig.GroqConfig)
	assert.Equal(t, "llama", chat.ServiceConfig.GroqConfig.Model)
	require.Len(t, chat.FallbackServiceConfigs, 1)
	assert.Equal(t, "be terse", chat.HandlerConfig.SystemPrompt)
	assert.Equal(t, 20, chat.HandlerConfig.HistoryWindow, "absent fields keep defaults")

	assert.Nil(t, cfg.Session.TTS.ServiceConfig.ChatterboxConfig)
	require.NotNil(t, cfg.Session.TTS.ServiceConfig.OpenAIConfig)
	assert.False(t, cfg.Session.Runner.SpeechEnabled)
	assert.Equal(t, "female", cfg.Session.Runner.Voice.VoiceID)
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
}

func TestSettingsConfigFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
control_plane_url = "ws://localhost:9000/ws"

[session.chat.handler]
history_window = 6

[session.tts.service.elevenlabs]
voice_id = "abc"

[session.credential]
pattern = "^key-.+$"

[audio]
player = "none"
`), 0o600))

	cfg, err := SettingsConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:9000/ws", cfg.ControlPlaneURL)
	assert.Equal(t, 6, cfg.Session.Chat.HandlerConfig.HistoryWindow)
	require.NotNil(t, cfg.Session.Chat.ServiceConfig.OpenAIConfig, "default provider when none named")
	require.NotNil(t, cfg.Session.TTS.ServiceConfig.ElevenLabsConfig)
	assert.Equal(t, "abc", cfg.Session.TTS.ServiceConfig.ElevenLabsConfig.VoiceID)
	assert.Equal(t, "^key-.+$", cfg.Session.Credential.Pattern)
	assert.Equal(t, "none", cfg.Audio.Player)
}

func TestSettingsConfigFromFileMissing(t *testing.T) {
	cfg, err := SettingsConfigFromFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
	assert.NotNil(t, cfg.Session.Chat.ServiceConfig.OpenAIConfig)
}

func TestSettingsConfigFromJSONInvalid(t *testing.T) {
	_, err := SettingsConfigFromJSON([]byte(`{"session":`))
	assert.Error(t, err)
}

func TestInjectAPIKeys(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.Chat.ServiceConfig = LLMFactoryConfig{OpenAIConfig: &openaillm.Config{}}
	cfg.Chat.FallbackServiceConfigs = []LLMFactoryConfig{{GroqConfig: &openaillm.Config{APIKey: "explicit"}}}
	cfg.TTS.ServiceConfig = TTSFactoryConfig{ChatterboxConfig: &chatterbox.Config{}}
	cfg.TTS.FallbackServiceConfigs = []TTSFactoryConfig{
		{OpenAIConfig: &openaitts.Config{}},
		{ElevenLabsConfig: &elevenlabs.ElevenLabsTTSConfig{}},
	}

	cfg.InjectAPIKeys(APIKeys{OpenAI: "sk-env", Chatterbox: "cb", Groq: "groq-env", ElevenLabs: "el"})

	assert.Equal(t, "sk-env", cfg.Chat.ServiceConfig.OpenAIConfig.APIKey)
	assert.Equal(t, "explicit", cfg.Chat.FallbackServiceConfigs[0].GroqConfig.APIKey, "configured keys win")
	assert.Equal(t, "cb", cfg.TTS.ServiceConfig.ChatterboxConfig.APIKey)
	assert.Equal(t, "sk-env", cfg.TTS.FallbackServiceConfigs[0].OpenAIConfig.APIKey)
	assert.Equal(t, "el", cfg.TTS.FallbackServiceConfigs[1].ElevenLabsConfig.APIKey)
}

func TestAPIKeysFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("CHATTERBOX_API_KEY", "cb-env")
	keys := APIKeysFromEnv()
	assert.Equal(t, "sk-env", keys.OpenAI)
	assert.Equal(t, "cb-env", keys.Chatterbox)
}

func TestBuildChatService(t *testing.T) {
	svc, err := BuildChatService(LLMFactoryConfig{MistralConfig: &openaillm.Config{}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &openaillm.OpenAILLMService{}, svc)

	_, err = BuildChatService(LLMFactoryConfig{}, nil)
	assert.Error(t, err)
}

func TestBuildSynthesisService(t *testing.T) {
	svc, err := BuildSynthesisService(DefaultTTSFactoryConfig(), nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &chatterbox.ChatterboxTTS{}, svc)

	svc, err = BuildSynthesisService(TTSFactoryConfig{OpenAIConfig: &openaitts.Config{}}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &openaitts.OpenAITTSService{}, svc)

	_, err = BuildSynthesisService(TTSFactoryConfig{}, nil, nil)
	assert.Error(t, err)
}

type staticKey string

func (k staticKey) Value() string { return string(k) }

func TestBuildSynthesisService_UserKeyOnlyReachesOpenAI(t *testing.T) {
	wav, err := audio.PCMBytesToWavBytes(make([]byte, 960), 1, 24000)
	require.NoError(t, err)
	auth := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/audio/speech", "/api/tts":
			auth <- r.URL.Path + " " + r.Header.Get("Authorization")
			w.Header().Set("Content-Type", "audio/wav")
			w.Write(wav)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	user := staticKey("sk-user")
	primary, err := BuildSynthesisService(TTSFactoryConfig{OpenAIConfig: &openaitts.Config{BaseURL: srv.URL + "/v1"}}, user, nil)
	require.NoError(t, err)
	backup, err := BuildSynthesisService(TTSFactoryConfig{ChatterboxConfig: &chatterbox.Config{BaseURL: srv.URL, APIKey: "cb-key"}}, user, nil)
	require.NoError(t, err)

	for _, svc := range []interface {
		Synthesize(context.Context, core.SynthesisRequest) (*core.AudioResource, error)
	}{primary, backup} {
		res, err := svc.Synthesize(context.Background(), core.SynthesisRequest{Text: "hi", Voice: core.DefaultVoiceParams()})
		require.NoError(t, err)
		res.Release()
	}
	assert.Equal(t, "/v1/audio/speech Bearer sk-user", <-auth)
	assert.Equal(t, "/api/tts Bearer cb-key", <-auth)
}

func TestBuildStore(t *testing.T) {
	dir := t.TempDir()
	for _, cfg := range []StoreConfig{
		{Driver: "memory"},
		{Driver: "sqlite", Path: filepath.Join(dir, "kv.db")},
		{Driver: "file", Path: filepath.Join(dir, "kv.json")},
	} {
		kv, err := BuildStore(cfg)
		require.NoError(t, err, cfg.Driver)
		require.NoError(t, kv.Set(context.Background(), "k", "v"))
		got, err := kv.Get(context.Background(), "k")
		require.NoError(t, err)
		assert.Equal(t, "v", got)
		require.NoError(t, kv.Close())
	}

	_, err := BuildStore(StoreConfig{Driver: "file"})
	assert.Error(t, err)
	_, err = BuildStore(StoreConfig{Driver: "redis"})
	assert.Error(t, err)
}

func TestBuildAudioDevice(t *testing.T) {
	device, closeFn, err := BuildAudioDevice(AudioOutputConfig{Player: "none"})
	require.NoError(t, err)
	assert.NotNil(t, device)
	assert.NoError(t, closeFn())

	_, _, err = BuildAudioDevice(AudioOutputConfig{Player: "websocket"})
	assert.Error(t, err)
	_, _, err = BuildAudioDevice(AudioOutputConfig{Player: "bluetooth"})
	assert.Error(t, err)
}

func TestBuildRunner(t *testing.T) {
	kv := store.NewMemoryKV()
	require.NoError(t, kv.Set(context.Background(), "api_key", "sk-abcdefghijklmnopqrstuvwxyz"))

	cfg := DefaultSessionConfig()
	cfg.TTS.ServiceConfig = TTSFactoryConfig{OpenAIConfig: &openaitts.Config{}}
	device, _, err := BuildAudioDevice(AudioOutputConfig{Player: "none"})
	require.NoError(t, err)

	r, err := cfg.BuildRunner(context.Background(), kv, device, core.NopNotifier{}, nil)
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.CredentialReady(), "persisted credential is loaded")
	assert.True(t, r.SpeechEnabled())
	assert.Empty(t, r.Transcript())
}

package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sashabaranov/go-openai"

	"voicechat/core"
	"voicechat/utils/audio"
)

// Config holds the configuration for the OpenAI speech endpoint.
type Config struct {
	APIKey  string `json:"api_key,omitempty" toml:"api_key"`
	BaseURL string `json:"base_url,omitempty" toml:"base_url"`
	Model   string `json:"model" toml:"model"`
	Voice   string `json:"voice" toml:"voice"` // Used for the "default" voice.
}

func DefaultConfig() Config {
	return Config{
		Model: string(openai.TTSModel1),
		Voice: string(openai.VoiceAlloy),
	}
}

// CredentialSource supplies the user's OpenAI key.
type CredentialSource interface {
	Value() string
}

// catalogue maps the local voice names onto OpenAI voices. Other ids pass through.
var catalogue = map[string]openai.SpeechVoice{
	"male":   openai.VoiceOnyx,
	"female": openai.VoiceNova,
	"robot":  openai.VoiceEcho,
}

// OpenAITTSService implements tts.SynthesisService with the audio/speech API.
type OpenAITTSService struct {
	config     Config
	credential CredentialSource
	logger     *core.Logger

	mu      sync.Mutex
	clients map[string]*openai.Client
}

func NewOpenAITTSService(config Config, logger *core.Logger) *OpenAITTSService {
	defaults := DefaultConfig()
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.Voice == "" {
		config.Voice = defaults.Voice
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &OpenAITTSService{
		config:  config,
		logger:  logger.With(map[string]any{"service": "openai_tts", "model": config.Model}),
		clients: make(map[string]*openai.Client),
	}
}

// WithCredentialSource makes the service prefer the user's key over
// Config.APIKey.
func (s *OpenAITTSService) WithCredentialSource(src CredentialSource) *OpenAITTSService {
	s.credential = src
	return s
}

func (s *OpenAITTSService) Init(ctx context.Context) error {
	return nil
}

func (s *OpenAITTSService) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients = make(map[string]*openai.Client)
	return nil
}

func (s *OpenAITTSService) Reset() error {
	return nil
}

func (s *OpenAITTSService) client(apiKey string) *openai.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[apiKey]; ok {
		return c
	}
	cfg := openai.DefaultConfig(apiKey)
	if s.config.BaseURL != "" {
		cfg.BaseURL = s.config.BaseURL
	}
	c := openai.NewClientWithConfig(cfg)
	if len(s.clients) > 4 {
		s.clients = make(map[string]*openai.Client)
	}
	s.clients[apiKey] = c
	return c
}

func (s *OpenAITTSService) voice(id string) openai.SpeechVoice {
	if id == "" || id == core.DefaultVoiceID {
		return openai.SpeechVoice(s.config.Voice)
	}
	if v, ok := catalogue[id]; ok {
		return v
	}
	return openai.SpeechVoice(id)
}

// Synthesize requests a WAV rendition of req.Text.
func (s *OpenAITTSService) Synthesize(ctx context.Context, req core.SynthesisRequest) (*core.AudioResource, error) {
	var apiKey string
	if s.credential != nil {
		apiKey = s.credential.Value()
	}
	if apiKey == "" {
		apiKey = s.config.APIKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai tts: no API key: %w", core.ErrSynthesisUnavailable)
	}

	resp, err := s.client(apiKey).CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.config.Model),
		Input:          req.Text,
		Voice:          s.voice(req.Voice.VoiceID),
		ResponseFormat: openai.SpeechResponseFormatWav,
		Speed:          req.Voice.Speed,
	})
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("openai tts: %w: empty audio", core.ErrSynthesisUnavailable)
	}

	res := core.NewAudioResource(data, "audio/wav", core.WAV, nil)
	if err := audio.DescribeWAV(res); err != nil {
		// streamed WAV headers are sometimes incomplete; the device reparses anyway
		s.logger.With(map[string]any{"error": err}).Warn("could not read WAV header")
	}
	return res, nil
}

// classifyError keeps cancellation distinct and reports every other failure as
// ErrSynthesisUnavailable.
func classifyError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("openai tts: %w", ctxErr)
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return fmt.Errorf("openai tts: %w: status %d: %v", core.ErrSynthesisUnavailable, status, err)
}

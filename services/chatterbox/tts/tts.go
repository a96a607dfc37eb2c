package chatterbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"voicechat/core"
	"voicechat/utils/audio"
)

// Voices is the catalogue the server accepts.
var Voices = []string{"default", "male", "female", "robot"}

// Config holds the configuration for a Chatterbox TTS server.
type Config struct {
	APIKey    string `json:"api_key,omitempty" toml:"api_key"`
	BaseURL   string `json:"base_url" toml:"base_url"`
	TimeoutMs int    `json:"timeout_ms" toml:"timeout_ms"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:   "http://localhost:8000",
		TimeoutMs: 90000,
	}
}

type ttsRequest struct {
	Text         string  `json:"text"`
	Voice        string  `json:"voice"`
	Exaggeration float64 `json:"exaggeration"`
	CFGWeight    float64 `json:"cfg_weight"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail any    `json:"detail"`
}

type voicesResponse struct {
	Voices []string `json:"voices"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status    string  `json:"status"`
	Timestamp float64 `json:"timestamp"`
}

// ChatterboxTTS implements tts.SynthesisService against the Chatterbox HTTP API.
type ChatterboxTTS struct {
	config Config
	client *http.Client
	logger *core.Logger

	mu     sync.Mutex
	voices []string
}

func NewChatterboxTTS(config Config, logger *core.Logger) *ChatterboxTTS {
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.TimeoutMs <= 0 {
		config.TimeoutMs = defaults.TimeoutMs
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if logger == nil {
		logger = core.GetLogger()
	}
	return &ChatterboxTTS{
		config: config,
		client: &http.Client{Timeout: time.Duration(config.TimeoutMs) * time.Millisecond},
		logger: logger.With(map[string]any{"service": "chatterbox_tts", "base_url": config.BaseURL}),
		voices: Voices,
	}
}

// Init checks the server and refreshes the voice catalogue. An unreachable
// or unhealthy server is not fatal: the built-in catalogue stays in place.
func (c *ChatterboxTTS) Init(ctx context.Context) error {
	health, err := c.Health(ctx)
	if err != nil || health.Status != "healthy" {
		c.logger.With(map[string]any{"error": err, "status": health.Status}).Warn("server not healthy, using built-in voice list")
		return nil
	}
	voices, err := c.ListVoices(ctx)
	if err != nil {
		c.logger.With(map[string]any{"error": err}).Warn("voice catalogue unavailable, using built-in list")
		return nil
	}
	c.mu.Lock()
	c.voices = voices
	c.mu.Unlock()
	return nil
}

func (c *ChatterboxTTS) Cleanup() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *ChatterboxTTS) Reset() error {
	return nil
}

// voice maps an id outside the catalogue to the default voice.
func (c *ChatterboxTTS) voice(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if slices.Contains(c.voices, id) {
		return id
	}
	if id != "" {
		c.logger.With(map[string]any{"voice": id}).Warn("unknown voice, using default")
	}
	return core.DefaultVoiceID
}

// Synthesize posts to /api/tts and returns the WAV body.
func (c *ChatterboxTTS) Synthesize(ctx context.Context, req core.SynthesisRequest) (*core.AudioResource, error) {
	body, err := sonic.Marshal(ttsRequest{
		Text:         req.Text,
		Voice:        c.voice(req.Voice.VoiceID),
		Exaggeration: req.Voice.Exaggeration,
		CFGWeight:    req.Voice.CFGWeight,
	})
	if err != nil {
		return nil, fmt.Errorf("chatterbox: encode request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/tts", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("chatterbox: %w: empty audio", core.ErrSynthesisUnavailable)
	}

	res := core.NewAudioResource(data, contentType(resp), core.WAV, nil)
	if err := audio.DescribeWAV(res); err != nil {
		res.Release()
		return nil, fmt.Errorf("chatterbox: %w: %v", core.ErrSynthesisUnavailable, err)
	}
	return res, nil
}

// ListVoices asks the server for its voice catalogue.
func (c *ChatterboxTTS) ListVoices(ctx context.Context) ([]string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/voices", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out voicesResponse
	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("chatterbox: decode voices: %w", err)
	}
	if len(out.Voices) == 0 {
		return nil, fmt.Errorf("chatterbox: empty voice catalogue")
	}
	return out.Voices, nil
}

// Health queries GET /health.
func (c *ChatterboxTTS) Health(ctx context.Context) (HealthStatus, error) {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return HealthStatus{}, err
	}
	defer resp.Body.Close()

	var out HealthStatus
	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&out); err != nil {
		return HealthStatus{}, fmt.Errorf("chatterbox: decode health: %w", err)
	}
	return out, nil
}

// do sends one request and turns non-2xx answers into errors. The caller closes the body.
func (c *ChatterboxTTS) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("chatterbox: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp, nil
}

func (c *ChatterboxTTS) transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("chatterbox: %w", ctxErr)
	}
	return fmt.Errorf("chatterbox: %w: %v", core.ErrSynthesisUnavailable, err)
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(raw))
	var e errorResponse
	if sonic.Unmarshal(raw, &e) == nil {
		switch {
		case e.Detail != nil:
			msg = fmt.Sprint(e.Detail)
		case e.Error != "":
			msg = e.Error
		}
	}
	return fmt.Errorf("chatterbox: %w: status %d: %s", core.ErrSynthesisUnavailable, resp.StatusCode, msg)
}

func contentType(resp *http.Response) string {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "audio/wav"
}

package elevenlabs

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"voicechat/core"
)

// ElevenLabsTTSConfig holds configuration for the ElevenLabs TTS service
type ElevenLabsTTSConfig struct {
	APIKey     string `json:"api_key,omitempty" toml:"api_key"`
	BaseURL    string `json:"base_url" toml:"base_url"`
	VoiceID    string `json:"voice_id" toml:"voice_id"` // Used for the "default" voice.
	ModelID    string `json:"model_id" toml:"model_id"`
	SampleRate int    `json:"sample_rate" toml:"sample_rate"`

	// Voice settings
	Stability       float64 `json:"stability" toml:"stability"`
	SimilarityBoost float64 `json:"similarity_boost" toml:"similarity_boost"`
}

// ElevenLabsTTS synthesizes one utterance per WebSocket stream-input session.
type ElevenLabsTTS struct {
	config ElevenLabsTTSConfig
	logger *core.Logger

	mu            sync.RWMutex
	isInitialized bool
}

// Client messages
type (
	// BOS (Beginning of Stream) - sent once on connect
	elBOSMessage struct {
		Text             string          `json:"text"`
		VoiceSettings    elVoiceSettings `json:"voice_settings"`
		GenerationConfig elGenConfig     `json:"generation_config"`
	}

	elVoiceSettings struct {
		Stability       float64 `json:"stability"`
		SimilarityBoost float64 `json:"similarity_boost"`
		Style           float64 `json:"style"`
		Speed           float64 `json:"speed"`
	}

	elGenConfig struct {
		ChunkLengthSchedule []int `json:"chunk_length_schedule"`
	}

	// Text chunk message
	elTextMessage struct {
		Text  string `json:"text"`
		Flush bool   `json:"flush,omitempty"`
	}
)

// Server messages
type (
	// Audio response from ElevenLabs (base64-encoded audio)
	elAudioMessage struct {
		Audio   string `json:"audio"`
		IsFinal bool   `json:"isFinal"`
	}

	// Error response
	elErrorMessage struct {
		Error   string `json:"error"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
)

// ElevenLabs accepts a narrower speed range than the voice parameters allow.
const (
	elMinSpeed = 0.7
	elMaxSpeed = 1.2
)

// NewElevenLabsTTS creates a new ElevenLabs TTS service with the provided config
func NewElevenLabsTTS(config ElevenLabsTTSConfig, logger *core.Logger) *ElevenLabsTTS {
	if config.BaseURL == "" {
		config.BaseURL = "wss://api.elevenlabs.io/v1/text-to-speech"
	}
	if config.VoiceID == "" {
		config.VoiceID = "21m00Tcm4TlvDq8ikWAM" // Default: Rachel
	}
	if config.ModelID == "" {
		config.ModelID = "eleven_turbo_v2_5"
	}
	if config.SampleRate == 0 {
		config.SampleRate = 24000
	}
	if config.Stability == 0 {
		config.Stability = 0.5
	}
	if config.SimilarityBoost == 0 {
		config.SimilarityBoost = 0.75
	}

	if logger == nil {
		logger = core.GetLogger()
	}
	return &ElevenLabsTTS{
		config: config,
		logger: logger.With(map[string]any{"service": "elevenlabs_tts"}),
	}
}

// outputFormatString converts the configured sample rate to the ElevenLabs output_format param
func outputFormatString(sampleRate int) string {
	switch sampleRate {
	case 16000:
		return "pcm_16000"
	case 22050:
		return "pcm_22050"
	case 44100:
		return "pcm_44100"
	default:
		return "pcm_24000"
	}
}

// Init initializes the ElevenLabs TTS service
func (e *ElevenLabsTTS) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.isInitialized = true
	return nil
}

func (e *ElevenLabsTTS) Cleanup() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.isInitialized = false
	return nil
}

func (e *ElevenLabsTTS) Reset() error {
	return nil
}

// Synthesize opens a stream, sends the whole text followed by EOS and
// collects the PCM audio until ElevenLabs reports the final chunk.
func (e *ElevenLabsTTS) Synthesize(ctx context.Context, req core.SynthesisRequest) (*core.AudioResource, error) {
	apiKey := e.config.APIKey
	if apiKey == "" {
		return nil, fmt.Errorf("elevenlabs: API key is required: %w", core.ErrSynthesisUnavailable)
	}

	conn, err := e.establishConnection(ctx, apiKey, req.Voice)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w: %v", core.ErrSynthesisUnavailable, err)
	}
	defer conn.Close()

	// unblock ReadMessage when the caller gives up
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := e.sendJSON(conn, e.bosMessage(req.Voice)); err != nil {
		return nil, e.streamError(ctx, "send BOS", err)
	}
	if err := e.sendJSON(conn, elTextMessage{Text: req.Text + " ", Flush: true}); err != nil {
		return nil, e.streamError(ctx, "send text", err)
	}
	// EOS: empty text signals ElevenLabs to finish generation
	if err := e.sendJSON(conn, elTextMessage{Text: ""}); err != nil {
		return nil, e.streamError(ctx, "send EOS", err)
	}

	var pcm []byte
	for {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(pcm) > 0 {
				break
			}
			return nil, e.streamError(ctx, "read", err)
		}
		if messageType == websocket.BinaryMessage {
			pcm = append(pcm, message...)
			continue
		}

		final, audio, err := parseTextMessage(message)
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: %w: %v", core.ErrSynthesisUnavailable, err)
		}
		pcm = append(pcm, audio...)
		if final {
			break
		}
	}

	if len(pcm) == 0 {
		return nil, fmt.Errorf("elevenlabs: %w: no audio received", core.ErrSynthesisUnavailable)
	}
	res := core.NewAudioResource(pcm, "audio/pcm", core.PCM, nil)
	res.SampleRate = e.config.SampleRate
	res.Channels = 1
	return res, nil
}

func (e *ElevenLabsTTS) streamError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("elevenlabs: %s: %w", op, ctxErr)
	}
	return fmt.Errorf("elevenlabs: %s: %w: %v", op, core.ErrSynthesisUnavailable, err)
}

// parseTextMessage decodes an audio or error message from ElevenLabs.
func parseTextMessage(message []byte) (final bool, audio []byte, err error) {
	var errMsg elErrorMessage
	if sonic.Unmarshal(message, &errMsg) == nil && errMsg.Error != "" {
		return false, nil, fmt.Errorf("ElevenLabs error: %s (code: %d)", errMsg.Message, errMsg.Code)
	}

	var audioMsg elAudioMessage
	if err := sonic.Unmarshal(message, &audioMsg); err != nil {
		return false, nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if audioMsg.Audio != "" {
		audio, err = base64.StdEncoding.DecodeString(audioMsg.Audio)
		if err != nil {
			return false, nil, fmt.Errorf("failed to decode audio: %w", err)
		}
	}
	return audioMsg.IsFinal, audio, nil
}

func (e *ElevenLabsTTS) bosMessage(voice core.VoiceParams) elBOSMessage {
	speed := voice.Speed
	if speed < elMinSpeed {
		speed = elMinSpeed
	}
	if speed > elMaxSpeed {
		speed = elMaxSpeed
	}
	return elBOSMessage{
		Text: " ",
		VoiceSettings: elVoiceSettings{
			Stability:       e.config.Stability,
			SimilarityBoost: e.config.SimilarityBoost,
			Style:           voice.Exaggeration,
			Speed:           speed,
		},
		GenerationConfig: elGenConfig{
			ChunkLengthSchedule: []int{120, 160, 250, 290},
		},
	}
}

// establishConnection creates a new WebSocket connection with retry logic
func (e *ElevenLabsTTS) establishConnection(ctx context.Context, apiKey string, voice core.VoiceParams) (*websocket.Conn, error) {
	const maxRetries = 3
	const baseDelay = 500 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(attempt)
			e.logger.Infof("ElevenLabs TTS: retrying connection (attempt %d/%d) in %v after error: %v",
				attempt+1, maxRetries, delay, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		conn, resp, err := e.dialConnection(ctx, apiKey, voice)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		// a rejected key will not get better by retrying
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			break
		}
	}

	return nil, fmt.Errorf("failed to connect after retries: %w", lastErr)
}

// dialConnection performs a single WebSocket dial to ElevenLabs
func (e *ElevenLabsTTS) dialConnection(ctx context.Context, apiKey string, voice core.VoiceParams) (*websocket.Conn, *http.Response, error) {
	voiceID := voice.VoiceID
	if voiceID == "" || voiceID == core.DefaultVoiceID {
		voiceID = e.config.VoiceID
	}
	url := fmt.Sprintf("%s/%s/stream-input?model_id=%s&output_format=%s",
		e.config.BaseURL,
		voiceID,
		e.config.ModelID,
		outputFormatString(e.config.SampleRate),
	)

	headers := http.Header{"xi-api-key": {apiKey}}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, resp, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		return nil, resp, err
	}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn, resp, nil
}

func (e *ElevenLabsTTS) sendJSON(conn *websocket.Conn, msg interface{}) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

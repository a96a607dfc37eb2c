package tts

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"voicechat/core"
	"voicechat/events/tts"
)

// SynthesisService turns one utterance into audio.
type SynthesisService interface {
	core.IService
	Synthesize(ctx context.Context, req core.SynthesisRequest) (*core.AudioResource, error)
}

type cachedAudio struct {
	data        []byte
	contentType string
	sampleRate  int
	channels    int
	format      core.AudioEncodingFormat
}

// TTSHandler is the speech synthesis client. It is stateless per call apart
// from the optional cache of recent results.
type TTSHandler struct {
	*core.BaseHandler[SynthesisService]
	config     TTSConfig
	cache      *lru.Cache[string, cachedAudio]
	notifier   core.Notifier
	Logger     *core.Logger
}

// NewTTSHandler creates a new synthesis client.
// Use DefaultConfig() to get a config with sensible defaults and override only what you need.
func NewTTSHandler(service SynthesisService, config TTSConfig, logger *core.Logger) *TTSHandler {
	if logger == nil {
		logger = core.GetLogger()
	}
	if config.MaxTextLength <= 0 {
		config.MaxTextLength = DefaultConfig().MaxTextLength
	}
	h := &TTSHandler{
		BaseHandler: core.NewBaseHandler(service, nil),
		config:      config,
		notifier:    core.NopNotifier{},
		Logger:      logger.With(map[string]any{"component": "tts"}),
	}
	if config.CacheSize > 0 {
		// only fails for a non-positive size
		h.cache, _ = lru.New[string, cachedAudio](config.CacheSize)
	}
	return h
}

// WithBackupService registers a fallback service used once the current one
// reports itself unavailable. Returns the handler to allow chaining.
func (h *TTSHandler) WithBackupService(service SynthesisService) *TTSHandler {
	h.BackupServices = append(h.BackupServices, service)
	return h
}

func (h *TTSHandler) WithNotifier(n core.Notifier) *TTSHandler {
	if n != nil {
		h.notifier = n
	}
	return h
}

// Synthesize returns a new audio resource for text spoken with voice. The
// caller owns the resource and must release it.
func (h *TTSHandler) Synthesize(ctx context.Context, text string, voice core.VoiceParams) (*core.AudioResource, error) {
	text = normalizeTextForTTS(text)
	if text == "" {
		return nil, fmt.Errorf("tts: synthesize: %w", core.ErrEmptyText)
	}
	if n := utf8.RuneCountInString(text); n > h.config.MaxTextLength {
		return nil, fmt.Errorf("tts: synthesize %d characters (max %d): %w", n, h.config.MaxTextLength, core.ErrTextTooLong)
	}
	voice = voice.Normalized()

	key := voice.CacheKey(text)
	if h.cache != nil {
		if hit, ok := h.cache.Get(key); ok {
			res := hit.resource()
			h.Logger.With(map[string]any{"resource_id": res.ID, "voice": voice.VoiceID}).Debug("tts cache hit")
			h.notifier.Notify(&tts.TTSSynthesisCompletedEvent{ResourceID: res.ID, Bytes: len(hit.data), Cached: true})
			return res, nil
		}
	}

	if h.config.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(h.config.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	req := core.SynthesisRequest{Text: text, Voice: voice}

	h.notifier.Notify(&tts.TTSSynthesisStartedEvent{VoiceID: voice.VoiceID, TextLength: utf8.RuneCountInString(text)})
	started := time.Now()
	service := h.Service()
	res, err := service.Synthesize(ctx, req)
	if err == nil && (res == nil || res.Size() == 0) {
		if res != nil {
			res.Release()
		}
		err = errors.New("empty audio payload")
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("tts: synthesize: %w", err)
		}
		h.Logger.With(map[string]any{"voice": voice.VoiceID, "error": err}).Warn("tts synthesis failed")
		if serr := h.SwitchToBackupService(service); serr != nil && !errors.Is(serr, core.ErrNoBackupService) {
			h.Logger.With(map[string]any{"error": serr}).Error("tts backup service failed to start")
		}
		if errors.Is(err, core.ErrSynthesisUnavailable) {
			return nil, fmt.Errorf("tts: synthesize: %w", err)
		}
		return nil, fmt.Errorf("tts: synthesize: %w: %v", core.ErrSynthesisUnavailable, err)
	}

	if h.cache != nil {
		h.cache.Add(key, cachedAudio{
			data:        res.Data(),
			contentType: res.ContentType,
			sampleRate:  res.SampleRate,
			channels:    res.Channels,
			format:      res.Format,
		})
	}

	h.Logger.With(map[string]any{
		"resource_id": res.ID,
		"bytes":       res.Size(),
		"voice":       voice.VoiceID,
		"took_ms":     time.Since(started).Milliseconds(),
	}).Debug("tts synthesis completed")
	h.notifier.Notify(&tts.TTSSynthesisCompletedEvent{ResourceID: res.ID, Bytes: res.Size()})
	return res, nil
}

// CachedEntries reports how many results the cache currently holds.
func (h *TTSHandler) CachedEntries() int {
	if h.cache == nil {
		return 0
	}
	return h.cache.Len()
}

// Reset drops cached audio and resets the current service.
func (h *TTSHandler) Reset() error {
	if h.cache != nil {
		h.cache.Purge()
	}
	return h.BaseHandler.Reset()
}

func (c cachedAudio) resource() *core.AudioResource {
	res := core.NewAudioResource(c.data, c.contentType, c.format, nil)
	res.SampleRate = c.sampleRate
	res.Channels = c.channels
	return res
}

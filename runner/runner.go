package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"voicechat/core"
	"voicechat/handlers/chat"
	"voicechat/handlers/playback"
	"voicechat/handlers/tts"
)

// ErrUnknownMessage is returned by Speak for an id that is not a completed
// assistant message.
var ErrUnknownMessage = errors.New("no completed assistant message with that id")

// CredentialGate is the credential surface the runner drives.
type CredentialGate interface {
	chat.CredentialSource
	SetCredential(ctx context.Context, value string) error
}

// Components are the handlers a Runner composes. TTS may be nil when the
// synthesizer behind Playback is managed elsewhere.
type Components struct {
	Gate     CredentialGate
	Chat     *chat.ChatHandler
	TTS      *tts.TTSHandler
	Playback *playback.PlaybackHandler
}

// Runner is the conversation-and-speech orchestrator: it sends user input
// through the chat handler and speaks replies through the playback handler.
type Runner struct {
	gate     CredentialGate
	chat     *chat.ChatHandler
	tts      *tts.TTSHandler
	playback *playback.PlaybackHandler
	notifier core.Notifier
	Logger   *core.Logger

	speaking sync.WaitGroup // auto-play goroutines

	mu            sync.Mutex
	speechEnabled bool
	voice         core.VoiceParams
	speechCtx     context.Context // cancelled whenever speech is stopped
	stopSpeech    context.CancelFunc
	closed        bool
}

func NewRunner(c Components, config RunnerConfig, logger *core.Logger) *Runner {
	if logger == nil {
		logger = core.GetLogger()
	}
	r := &Runner{
		gate:          c.Gate,
		chat:          c.Chat,
		tts:           c.TTS,
		playback:      c.Playback,
		notifier:      core.NopNotifier{},
		Logger:        logger.With(map[string]any{"component": "runner"}),
		speechEnabled: config.SpeechEnabled,
		voice:         config.Voice.Normalized(),
	}
	r.speechCtx, r.stopSpeech = context.WithCancel(context.Background())
	return r
}

// WithNotifier sets where the runner reports user-facing errors.
func (r *Runner) WithNotifier(n core.Notifier) *Runner {
	if n != nil {
		r.notifier = n
	}
	return r
}

// Start initializes the remote services behind the handlers.
func (r *Runner) Start(ctx context.Context) error {
	if err := r.chat.Initialize(ctx); err != nil {
		return fmt.Errorf("runner: start chat: %w", err)
	}
	if r.tts != nil {
		if err := r.tts.Initialize(ctx); err != nil {
			return fmt.Errorf("runner: start tts: %w", err)
		}
	}
	return nil
}

// Send submits text and, when speech is on, speaks the reply in the
// background. Errors other than interruptions are also reported to the notifier.
func (r *Runner) Send(ctx context.Context, text string) (core.Message, error) {
	msg, err := r.chat.Send(ctx, text)
	if err != nil {
		r.report("chat", err)
		return msg, err
	}

	// a slower Send may finish after a newer reply has landed; only the latest speaks
	last, ok := r.chat.Transcript().LastCompletedAssistant()
	if !ok || last.ID != msg.ID {
		return msg, nil
	}

	r.mu.Lock()
	if !r.speechEnabled || r.closed {
		r.mu.Unlock()
		return msg, nil
	}
	voice, speechCtx := r.voice, r.speechCtx
	r.speaking.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.speaking.Done()
		if err := r.playback.Play(speechCtx, msg.Content, voice); err != nil && !core.IsInterruption(err) {
			r.Logger.With(map[string]any{"message_id": msg.ID, "error": err}).Debug("auto-play ended with error")
		}
	}()
	return msg, nil
}

// Speak replays an assistant message and blocks until playback ends.
// It works whether or not automatic speech is on.
func (r *Runner) Speak(ctx context.Context, messageID string) error {
	msg, ok := r.chat.Transcript().Get(messageID)
	if !ok || msg.Role != core.MessageRoleAssistant || msg.Status != core.MessageStatusComplete {
		err := fmt.Errorf("runner: speak %s: %w", messageID, ErrUnknownMessage)
		r.report("playback", err)
		return err
	}

	r.mu.Lock()
	voice, speechCtx := r.voice, r.speechCtx
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(speechCtx, cancel)
	defer stop()
	return r.playback.Play(ctx, msg.Content, voice)
}

// SetSpeechEnabled toggles automatic speech. Turning it off silences any
// playback immediately.
func (r *Runner) SetSpeechEnabled(enabled bool) {
	r.mu.Lock()
	r.speechEnabled = enabled
	r.mu.Unlock()
	r.Logger.With(map[string]any{"enabled": enabled}).Info("speech toggled")
	if !enabled {
		r.StopSpeech()
	}
}

func (r *Runner) SpeechEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.speechEnabled
}

// SetVoice applies to the next playback; the current one keeps its voice.
func (r *Runner) SetVoice(voice core.VoiceParams) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.voice = voice.Normalized()
}

func (r *Runner) Voice() core.VoiceParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.voice
}

// StopSpeech halts playback, including replies about to start speaking.
func (r *Runner) StopSpeech() {
	r.mu.Lock()
	r.stopSpeech()
	if !r.closed {
		r.speechCtx, r.stopSpeech = context.WithCancel(context.Background())
	}
	r.mu.Unlock()
	r.playback.Stop()
}

// Reset stops speech and starts an empty conversation.
func (r *Runner) Reset() error {
	r.StopSpeech()
	if err := r.chat.Reset(); err != nil {
		return fmt.Errorf("runner: reset: %w", err)
	}
	return nil
}

func (r *Runner) SetCredential(ctx context.Context, value string) error {
	if err := r.gate.SetCredential(ctx, value); err != nil {
		r.report("credential", err)
		return err
	}
	return nil
}

func (r *Runner) CredentialReady() bool {
	return r.gate.IsReady()
}

// Transcript returns a copy of the conversation in order.
func (r *Runner) Transcript() []core.Message {
	return r.chat.Transcript().Snapshot()
}

func (r *Runner) PlaybackState() playback.State {
	return r.playback.State()
}

// LastError is the latest chat failure, or failing that the latest playback failure.
func (r *Runner) LastError() error {
	if err := r.chat.LastError(); err != nil {
		return err
	}
	return r.playback.LastError()
}

// Close stops speech, cancels any chat request and cleans up the services.
func (r *Runner) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.stopSpeech()
	r.mu.Unlock()

	r.chat.CancelInFlight()
	var errs []error
	if err := r.playback.Close(); err != nil {
		errs = append(errs, err)
	}
	r.speaking.Wait()
	if err := r.chat.Cleanup(); err != nil {
		errs = append(errs, err)
	}
	if r.tts != nil {
		if err := r.tts.Cleanup(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) report(source string, err error) {
	if core.IsInterruption(err) {
		return
	}
	r.notifier.Notify(core.NewErrorEvent(source, err))
}

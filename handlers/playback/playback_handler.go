package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicechat/core"
	"voicechat/events/playback"
)

type State string

const (
	StateIdle         State = "idle"
	StateSynthesizing State = "synthesizing"
	StatePlaying      State = "playing"
	StateStopped      State = "stopped"
	StateFailed       State = "failed"
)

// Synthesizer produces the audio for a session. *tts.TTSHandler satisfies it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice core.VoiceParams) (*core.AudioResource, error)
}

// AudioDevice is the local audio engine.
type AudioDevice interface {
	// Load prepares res for playback, replacing anything loaded before.
	Load(res *core.AudioResource) error

	// Play starts output. The returned channel must be buffered: it receives
	// nil when the audio ends naturally or the engine error, and may receive
	// nothing after Stop.
	Play() (<-chan error, error)

	// Stop halts output immediately. It may be called while Load or Play
	// is still running on another goroutine and must not wait for them.
	Stop() error
}

// SessionInfo is a read-only view of the active playback session.
type SessionInfo struct {
	ID         string
	SourceText string
	Voice      core.VoiceParams
	State      State
	ResourceID string
	StartedAt  time.Time
}

type session struct {
	id        string
	text      string
	voice     core.VoiceParams
	startedAt time.Time
	resource  *core.AudioResource
	released  bool
	loaded    bool
	cancel    context.CancelFunc
	done      chan struct{} // closed once the outcome is decided
	result    error
}

// PlaybackHandler owns at most one playback session at a time. Starting a new
// session tears the previous one down first; every session releases its
// audio resource exactly once, whichever way it ends.
type PlaybackHandler struct {
	synth    Synthesizer
	device   AudioDevice
	config   PlaybackConfig
	notifier core.Notifier
	Logger   *core.Logger

	active   sync.WaitGroup // Play calls still running
	notifyMu sync.Mutex     // keeps event delivery in state order

	mu        sync.Mutex
	state       State
	current     *session
	deviceOwner *session // last session to hand audio to the device
	lastError   error
	pending     []core.IEvent // queued while mu is held, delivered after unlock
}

func NewPlaybackHandler(synth Synthesizer, device AudioDevice, config PlaybackConfig, logger *core.Logger) *PlaybackHandler {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &PlaybackHandler{
		synth:    synth,
		device:   device,
		config:   config,
		notifier: core.NopNotifier{},
		Logger:   logger.With(map[string]any{"component": "playback"}),
		state:    StateIdle,
	}
}

func (p *PlaybackHandler) WithNotifier(n core.Notifier) *PlaybackHandler {
	if n != nil {
		p.notifier = n
	}
	return p
}

// Play speaks text with voice and blocks until the session ends. It returns
// nil on natural completion and core.ErrStopped when the session was stopped,
// superseded by another Play or abandoned through ctx.
func (p *PlaybackHandler) Play(ctx context.Context, text string, voice core.VoiceParams) error {
	p.active.Add(1)
	defer p.active.Done()

	p.mu.Lock()
	p.teardownLocked()

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sess := &session{
		id:        uuid.New().String(),
		text:      text,
		voice:     voice,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	p.current = sess
	p.setStateLocked(sess, StateSynthesizing)
	p.unlockAndFlush()

	res, err := p.synth.Synthesize(sctx, text, voice)

	p.mu.Lock()
	if p.current != sess {
		p.unlockAndFlush()
		if res != nil {
			res.Release()
		}
		return p.outcome(sess)
	}
	if err != nil {
		if ctx.Err() != nil {
			p.teardownLocked()
			p.unlockAndFlush()
			return p.outcome(sess)
		}
		p.failLocked(sess, err)
		p.unlockAndFlush()
		return p.outcome(sess)
	}

	sess.resource = res
	// the device may hold the clip from here on, so teardown must silence it
	sess.loaded = true
	p.deviceOwner = sess
	p.unlockAndFlush()

	// Load and Play may block on a slow device; Stop and State must not wait for them.
	end, err := p.startDevice(res)

	p.mu.Lock()
	if p.current != sess {
		// Torn down while the device was starting. Silence anything this
		// session started unless a newer one has taken the device since.
		if err == nil && p.deviceOwner == sess {
			p.device.Stop()
		}
		p.unlockAndFlush()
		return p.outcome(sess)
	}
	if err != nil {
		p.failLocked(sess, err)
		p.unlockAndFlush()
		return p.outcome(sess)
	}
	p.setStateLocked(sess, StatePlaying)
	p.queueLocked(&playback.PlaybackStartedEvent{SessionID: sess.id, Duration: duration(res)})
	p.unlockAndFlush()

	select {
	case err := <-end:
		p.mu.Lock()
		if p.current == sess {
			if err != nil {
				p.failLocked(sess, fmt.Errorf("%w: %v", core.ErrPlaybackFailed, err))
			} else {
				p.completeLocked(sess)
			}
		}
		p.unlockAndFlush()
	case <-sess.done:
	case <-ctx.Done():
		p.mu.Lock()
		if p.current == sess {
			p.teardownLocked()
		}
		p.unlockAndFlush()
	}
	return p.outcome(sess)
}

func (p *PlaybackHandler) startDevice(res *core.AudioResource) (<-chan error, error) {
	if err := p.device.Load(res); err != nil {
		return nil, fmt.Errorf("%w: load: %v", core.ErrPlaybackFailed, err)
	}
	end, err := p.device.Play()
	if err != nil {
		return nil, fmt.Errorf("%w: play: %v", core.ErrPlaybackFailed, err)
	}
	return end, nil
}

// outcome waits for the session future and wraps its result.
func (p *PlaybackHandler) outcome(sess *session) error {
	<-sess.done
	if sess.result == nil {
		return nil
	}
	return fmt.Errorf("playback: session %s: %w", sess.id, sess.result)
}

// Stop halts the active session, if any. It is a no-op when idle.
func (p *PlaybackHandler) Stop() error {
	p.mu.Lock()
	p.teardownLocked()
	p.unlockAndFlush()
	return nil
}

// teardownLocked stops the current session: cancel synthesis, silence the
// device, release the resource and resolve the session as stopped.
func (p *PlaybackHandler) teardownLocked() {
	sess := p.current
	if sess == nil {
		return
	}
	sess.cancel()
	if sess.loaded {
		if err := p.device.Stop(); err != nil {
			p.Logger.With(map[string]any{"session_id": sess.id, "error": err}).Warn("audio device stop failed")
		}
	}
	p.releaseLocked(sess)
	p.setStateLocked(sess, StateStopped)
	p.resolveLocked(sess, core.ErrStopped)
	p.current = nil
	p.setStateLocked(sess, StateIdle)
	p.queueLocked(&playback.PlaybackEndedEvent{SessionID: sess.id, Reason: "stopped"})
}

func (p *PlaybackHandler) completeLocked(sess *session) {
	p.releaseLocked(sess)
	p.resolveLocked(sess, nil)
	p.current = nil
	p.setStateLocked(sess, StateIdle)
	p.queueLocked(&playback.PlaybackEndedEvent{SessionID: sess.id, Reason: "completed"})
}

func (p *PlaybackHandler) failLocked(sess *session, err error) {
	if sess.loaded {
		p.device.Stop()
	}
	p.releaseLocked(sess)
	p.lastError = err
	p.setStateLocked(sess, StateFailed)
	p.resolveLocked(sess, err)
	p.current = nil
	p.setStateLocked(sess, StateIdle)
	p.Logger.With(map[string]any{"session_id": sess.id, "error": err}).Warn("playback failed")
	p.queueLocked(&playback.PlaybackEndedEvent{SessionID: sess.id, Reason: "failed"})
	p.queueLocked(core.NewErrorEvent("playback", err))
}

func (p *PlaybackHandler) releaseLocked(sess *session) {
	if sess.resource == nil || sess.released {
		return
	}
	sess.released = true
	if err := sess.resource.Release(); err != nil && !errors.Is(err, core.ErrResourceReleased) {
		p.Logger.With(map[string]any{"session_id": sess.id, "error": err}).Warn("audio resource release failed")
	}
}

func (p *PlaybackHandler) resolveLocked(sess *session, err error) {
	select {
	case <-sess.done:
	default:
		sess.result = err
		close(sess.done)
	}
}

func (p *PlaybackHandler) setStateLocked(sess *session, to State) {
	from := p.state
	if from == to {
		return
	}
	p.state = to
	p.queueLocked(&playback.PlaybackStateChangedEvent{SessionID: sess.id, From: string(from), To: string(to)})
}

func (p *PlaybackHandler) queueLocked(e core.IEvent) {
	p.pending = append(p.pending, e)
}

// unlockAndFlush releases mu and delivers the queued events. Notifiers run
// outside mu but must not call back into the handler.
func (p *PlaybackHandler) unlockAndFlush() {
	events := p.pending
	p.pending = nil
	p.notifyMu.Lock()
	p.mu.Unlock()
	defer p.notifyMu.Unlock()
	for _, e := range events {
		p.notifier.Notify(e)
	}
}

// State returns the current state of the playback state machine.
func (p *PlaybackHandler) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Current describes the active session, if any.
func (p *PlaybackHandler) Current() (SessionInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return SessionInfo{}, false
	}
	info := SessionInfo{
		ID:         p.current.id,
		SourceText: p.current.text,
		Voice:      p.current.voice,
		State:      p.state,
		StartedAt:  p.current.startedAt,
	}
	if p.current.resource != nil {
		info.ResourceID = p.current.resource.ID
	}
	return info, true
}

// LastError is the most recent synthesis or device failure.
func (p *PlaybackHandler) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastError
}

// Close stops any active session and waits for running Play calls to return,
// so that late synthesis results are released too.
func (p *PlaybackHandler) Close() error {
	p.Stop()

	done := make(chan struct{})
	go func() {
		p.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(time.Duration(p.config.StopTimeoutMs) * time.Millisecond):
		return errors.New("playback: timed out waiting for sessions to stop")
	}
}

func duration(res *core.AudioResource) float64 {
	if res.Format != core.PCM {
		return 0
	}
	return core.AudioChunk{Data: res.Data(), SampleRate: res.SampleRate, Channels: res.Channels}.DurationSeconds()
}

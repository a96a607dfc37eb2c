package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicechat/core"
	"voicechat/handlers/chat"
	"voicechat/handlers/credential"
	"voicechat/handlers/playback"
	"voicechat/handlers/transcript"
	"voicechat/handlers/tts"
	"voicechat/store"
)

const validKey = "sk-abcdefghijklmnopqrstuvwxyz"

type echoChat struct {
	mu      sync.Mutex
	replies map[string]string
	err     error
}

func (c *echoChat) Init(context.Context) error { return nil }
func (c *echoChat) Cleanup() error            { return nil }
func (c *echoChat) Reset() error              { return nil }

func (c *echoChat) Complete(_ context.Context, req core.ChatRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	if reply, ok := c.replies[req.UserText]; ok {
		return reply, nil
	}
	return "echo: " + req.UserText, nil
}

type fakeSynth struct {
	mu    sync.Mutex
	err   error
	texts []string
}

func (s *fakeSynth) Init(context.Context) error { return nil }
func (s *fakeSynth) Cleanup() error            { return nil }
func (s *fakeSynth) Reset() error              { return nil }

func (s *fakeSynth) Synthesize(_ context.Context, req core.SynthesisRequest) (*core.AudioResource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, req.Text)
	if s.err != nil {
		return nil, s.err
	}
	return core.NewAudioResource([]byte(req.Text), "audio/pcm", core.PCM, nil), nil
}

func (s *fakeSynth) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

// fakeDevice plays until the test finishes the clip or Stop is called.
type fakeDevice struct {
	mu      sync.Mutex
	loaded  string
	end     chan error
	playing chan string
	stops   int
}

func (d *fakeDevice) Load(res *core.AudioResource) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loaded = string(res.Data())
	return nil
}

func (d *fakeDevice) Play() (<-chan error, error) {
	d.mu.Lock()
	d.end = make(chan error, 1)
	end, text := d.end, d.loaded
	d.mu.Unlock()
	d.playing <- text
	return end, nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	return nil
}

func (d *fakeDevice) finish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.end <- nil
}

func (d *fakeDevice) stopCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stops
}

type recorder struct {
	mu     sync.Mutex
	errors []*core.ErrorEvent
}

func (r *recorder) Notify(e core.IEvent) {
	if ev, ok := e.(*core.ErrorEvent); ok {
		r.mu.Lock()
		r.errors = append(r.errors, ev)
		r.mu.Unlock()
	}
}

func (r *recorder) errorEvents() []*core.ErrorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*core.ErrorEvent(nil), r.errors...)
}

type fixture struct {
	runner *Runner
	chat   *echoChat
	synth  *fakeSynth
	device *fakeDevice
	events *recorder
}

func newFixture(t *testing.T, speech bool) *fixture {
	t.Helper()
	f := &fixture{
		chat:   &echoChat{replies: map[string]string{"Hello": "Hi there"}},
		synth:  &fakeSynth{},
		device: &fakeDevice{playing: make(chan string, 8)},
		events: &recorder{},
	}

	gate, err := credential.NewGate(store.NewMemoryKV(), credential.DefaultConfig(), f.events)
	require.NoError(t, err)
	chatHandler := chat.NewChatHandler(f.chat, gate, transcript.NewStore(), chat.DefaultConfig(), nil).WithNotifier(f.events)
	ttsHandler := tts.NewTTSHandler(f.synth, tts.DefaultConfig(), nil).WithNotifier(f.events)
	player := playback.NewPlaybackHandler(ttsHandler, f.device, playback.DefaultConfig(), nil).WithNotifier(f.events)

	config := DefaultConfig()
	config.SpeechEnabled = speech
	f.runner = NewRunner(Components{Gate: gate, Chat: chatHandler, TTS: ttsHandler, Playback: player}, config, nil).WithNotifier(f.events)
	require.NoError(t, f.runner.Start(context.Background()))
	t.Cleanup(func() { f.runner.Close() })
	return f
}

func (f *fixture) ready(t *testing.T) {
	t.Helper()
	require.NoError(t, f.runner.SetCredential(context.Background(), validKey))
	require.True(t, f.runner.CredentialReady())
}

func waitPlaying(t *testing.T, d *fakeDevice) string {
	t.Helper()
	select {
	case text := <-d.playing:
		return text
	case <-time.After(2 * time.Second):
		t.Fatal("nothing started playing")
		return ""
	}
}

func TestRunner_HelloHiThere(t *testing.T) {
	f := newFixture(t, true)
	f.ready(t)

	msg, err := f.runner.Send(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", msg.Content)

	history := f.runner.Transcript()
	require.Len(t, history, 2)
	assert.Equal(t, core.MessageRoleUser, history[0].Role)
	assert.Equal(t, "Hello", history[0].Content)
	assert.Equal(t, core.MessageRoleAssistant, history[1].Role)
	assert.Equal(t, "Hi there", history[1].Content)
	assert.Equal(t, core.MessageStatusComplete, history[1].Status)

	assert.Equal(t, "Hi there", waitPlaying(t, f.device))
	f.device.finish()
	assert.Eventually(t, func() bool { return f.runner.PlaybackState() == playback.StateIdle }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Hi there"}, f.synth.calls())
	assert.Empty(t, f.events.errorEvents())
	assert.NoError(t, f.runner.LastError())
}

func TestRunner_EmptyInput(t *testing.T) {
	f := newFixture(t, true)
	f.ready(t)

	_, err := f.runner.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, core.ErrEmptyInput)
	assert.Empty(t, f.runner.Transcript())
	assert.Empty(t, f.synth.calls())

	events := f.events.errorEvents()
	require.Len(t, events, 1)
	assert.Equal(t, core.CategoryInput, events[0].Category)
}

func TestRunner_NotReady(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.runner.Send(context.Background(), "Hello")
	assert.ErrorIs(t, err, core.ErrNotReady)
	assert.Empty(t, f.runner.Transcript())

	events := f.events.errorEvents()
	require.Len(t, events, 1)
	assert.Equal(t, core.CategoryCredential, events[0].Category)
}

func TestRunner_FailingSynthesisKeepsReply(t *testing.T) {
	f := newFixture(t, true)
	f.ready(t)
	f.synth.err = errors.New("model crashed")

	msg, err := f.runner.Send(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", msg.Content)

	assert.Eventually(t, func() bool { return len(f.events.errorEvents()) == 1 }, time.Second, 5*time.Millisecond)
	ev := f.events.errorEvents()[0]
	assert.Equal(t, "playback", ev.Source)
	assert.Equal(t, core.CategorySpeech, ev.Category)

	assert.Equal(t, playback.StateIdle, f.runner.PlaybackState())
	assert.ErrorIs(t, f.runner.LastError(), core.ErrSynthesisUnavailable)
	history := f.runner.Transcript()
	require.Len(t, history, 2)
	assert.Equal(t, core.MessageStatusComplete, history[1].Status)
}

func TestRunner_ChatFailureDoesNotSpeak(t *testing.T) {
	f := newFixture(t, true)
	f.ready(t)
	f.chat.err = core.ErrRateLimited

	_, err := f.runner.Send(context.Background(), "Hello")
	assert.ErrorIs(t, err, core.ErrRateLimited)
	assert.ErrorIs(t, f.runner.LastError(), core.ErrRateLimited)

	events := f.events.errorEvents()
	require.Len(t, events, 1)
	assert.Equal(t, core.CategoryRateLimit, events[0].Category)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.synth.calls())
	history := f.runner.Transcript()
	require.Len(t, history, 2)
	assert.Equal(t, core.MessageStatusFailed, history[1].Status)
}

func TestRunner_SpeechDisabled(t *testing.T) {
	f := newFixture(t, false)
	f.ready(t)

	_, err := f.runner.Send(context.Background(), "Hello")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.synth.calls())
	assert.Equal(t, playback.StateIdle, f.runner.PlaybackState())
}

func TestRunner_DisablingSpeechStopsPlayback(t *testing.T) {
	f := newFixture(t, true)
	f.ready(t)

	_, err := f.runner.Send(context.Background(), "Hello")
	require.NoError(t, err)
	waitPlaying(t, f.device)
	require.Equal(t, playback.StatePlaying, f.runner.PlaybackState())

	f.runner.SetSpeechEnabled(false)
	assert.False(t, f.runner.SpeechEnabled())
	assert.Equal(t, playback.StateIdle, f.runner.PlaybackState())
	assert.Equal(t, 1, f.device.stopCount())
	assert.Empty(t, f.events.errorEvents(), "a stop is not an error")
}

func TestRunner_SpeakReplaysMessage(t *testing.T) {
	f := newFixture(t, false)
	f.ready(t)

	msg, err := f.runner.Send(context.Background(), "Hello")
	require.NoError(t, err)

	voice := core.VoiceParams{VoiceID: "female", Speed: 9}
	f.runner.SetVoice(voice)
	assert.Equal(t, core.MaxSpeed, f.runner.Voice().Speed)

	done := make(chan error, 1)
	go func() { done <- f.runner.Speak(context.Background(), msg.ID) }()
	assert.Equal(t, "Hi there", waitPlaying(t, f.device))
	f.device.finish()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Speak did not return")
	}
}

func TestRunner_SpeakUnknownMessage(t *testing.T) {
	f := newFixture(t, true)
	f.ready(t)

	err := f.runner.Speak(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownMessage)

	history := f.runner.Transcript()
	assert.Empty(t, history)
	require.Len(t, f.events.errorEvents(), 1)
}

func TestRunner_StopSpeechInterruptsSpeak(t *testing.T) {
	f := newFixture(t, false)
	f.ready(t)
	msg, err := f.runner.Send(context.Background(), "Hello")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.runner.Speak(context.Background(), msg.ID) }()
	waitPlaying(t, f.device)

	f.runner.StopSpeech()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, core.ErrStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("Speak did not return")
	}
}

func TestRunner_Reset(t *testing.T) {
	f := newFixture(t, true)
	f.ready(t)

	_, err := f.runner.Send(context.Background(), "Hello")
	require.NoError(t, err)
	waitPlaying(t, f.device)

	require.NoError(t, f.runner.Reset())
	assert.Empty(t, f.runner.Transcript())
	assert.Equal(t, playback.StateIdle, f.runner.PlaybackState())
	assert.True(t, f.runner.CredentialReady(), "reset keeps the credential")

	// speech still works after a reset
	_, err = f.runner.Send(context.Background(), "Hello")
	require.NoError(t, err)
	waitPlaying(t, f.device)
}

func TestRunner_Close(t *testing.T) {
	f := newFixture(t, true)
	f.ready(t)

	_, err := f.runner.Send(context.Background(), "Hello")
	require.NoError(t, err)
	waitPlaying(t, f.device)

	require.NoError(t, f.runner.Close())
	assert.Equal(t, playback.StateIdle, f.runner.PlaybackState())
	require.NoError(t, f.runner.Close())
}

package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicechat/core"
	credentialevents "voicechat/events/credential"
	"voicechat/handlers/playback"
)

type fakeConversation struct {
	mu         sync.Mutex
	sent       []string
	spoken     []string
	enabled    bool
	voice      core.VoiceParams
	stopped    int
	resets     int
	credential string
	messages   []core.Message
}

func newFakeConversation() *fakeConversation {
	return &fakeConversation{enabled: true, voice: core.DefaultVoiceParams()}
}

func (f *fakeConversation) Send(_ context.Context, text string) (core.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return core.Message{ID: "a1", Role: core.MessageRoleAssistant, Content: "echo " + text, Status: core.MessageStatusComplete}, nil
}

func (f *fakeConversation) Speak(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, id)
	return nil
}

func (f *fakeConversation) SetSpeechEnabled(enabled bool) { f.enabled = enabled }
func (f *fakeConversation) SpeechEnabled() bool           { return f.enabled }
func (f *fakeConversation) SetVoice(v core.VoiceParams)   { f.voice = v.Normalized() }
func (f *fakeConversation) Voice() core.VoiceParams       { return f.voice }
func (f *fakeConversation) StopSpeech()                   { f.stopped++ }
func (f *fakeConversation) Reset() error                  { f.resets++; return nil }
func (f *fakeConversation) CredentialReady() bool         { return f.credential != "" }
func (f *fakeConversation) Transcript() []core.Message    { return f.messages }
func (f *fakeConversation) PlaybackState() playback.State { return playback.StateIdle }

func (f *fakeConversation) SetCredential(_ context.Context, value string) error {
	f.credential = value
	return nil
}

func newTestConsole(conv conversation) (*console, *bytes.Buffer) {
	var out bytes.Buffer
	return newConsole(context.Background(), conv, &out), &out
}

func TestConsoleSendPrintsReply(t *testing.T) {
	conv := newFakeConversation()
	c, out := newTestConsole(conv)

	require.NoError(t, c.Handle("  Hello  "))
	c.Wait()

	assert.Equal(t, []string{"Hello"}, conv.sent)
	assert.Contains(t, out.String(), "assistant: echo Hello")
}

func TestConsoleBlankLineIgnored(t *testing.T) {
	conv := newFakeConversation()
	c, out := newTestConsole(conv)

	require.NoError(t, c.Handle("   "))
	c.Wait()

	assert.Empty(t, conv.sent)
	assert.Empty(t, out.String())
}

func TestConsoleSettings(t *testing.T) {
	conv := newFakeConversation()
	c, out := newTestConsole(conv)

	require.NoError(t, c.Handle("/key sk-test"))
	assert.Equal(t, "sk-test", conv.credential)

	require.NoError(t, c.Handle("/tts off"))
	assert.False(t, conv.enabled)
	assert.Contains(t, out.String(), "speech off")

	require.NoError(t, c.Handle("/voice female"))
	assert.Equal(t, "female", conv.voice.VoiceID)

	require.NoError(t, c.Handle("/speed 3"))
	assert.Equal(t, core.MaxSpeed, conv.voice.Speed)

	assert.Error(t, c.Handle("/speed fast"))
	assert.Error(t, c.Handle("/tts maybe"))
	assert.Error(t, c.Handle("/voice"))
}

func TestConsoleStopAndReset(t *testing.T) {
	conv := newFakeConversation()
	c, _ := newTestConsole(conv)

	require.NoError(t, c.Handle("/stop"))
	require.NoError(t, c.Handle("/reset"))
	assert.Equal(t, 1, conv.stopped)
	assert.Equal(t, 1, conv.resets)
}

func TestConsolePlayAndHistory(t *testing.T) {
	conv := newFakeConversation()
	conv.messages = []core.Message{
		{ID: "u1", Role: core.MessageRoleUser, Content: "Hello"},
		{ID: "a1", Role: core.MessageRoleAssistant, Content: "Hi there", Status: core.MessageStatusComplete},
		{ID: "u2", Role: core.MessageRoleUser, Content: "Again"},
		{ID: "a2", Role: core.MessageRoleAssistant, Status: core.MessageStatusFailed},
	}
	c, out := newTestConsole(conv)

	require.NoError(t, c.Handle("/play 2"))
	c.Wait()
	assert.Equal(t, []string{"a1"}, conv.spoken)

	assert.Error(t, c.Handle("/play 9"))
	assert.Error(t, c.Handle("/play x"))

	require.NoError(t, c.Handle("/history"))
	lines := out.String()
	assert.Contains(t, lines, "  2 assistant: Hi there")
	assert.Contains(t, lines, "  4 assistant [failed]: ")
}

func TestConsoleRunStopsAtQuit(t *testing.T) {
	conv := newFakeConversation()
	c, _ := newTestConsole(conv)

	require.NoError(t, c.Run(strings.NewReader("/tts off\n/quit\n/tts on\n")))
	c.Wait()
	assert.False(t, conv.enabled)
}

func TestConsoleNotify(t *testing.T) {
	c, out := newTestConsole(newFakeConversation())

	c.Notify(core.NewErrorEvent("chat", core.ErrNotReady))
	c.Notify(&credentialevents.CredentialChangedEvent{Validity: "valid", Fingerprint: "sk-...test"})

	assert.Contains(t, out.String(), "! "+string(core.CategoryCredential))
	assert.Contains(t, out.String(), "* key valid (sk-...test)")
}

func TestConsoleIgnoresSendsAfterWait(t *testing.T) {
	conv := newFakeConversation()
	c, _ := newTestConsole(conv)

	c.Wait()
	assert.False(t, c.send("late remote message"))
	c.Wait()

	conv.mu.Lock()
	defer conv.mu.Unlock()
	assert.Empty(t, conv.sent)
}

func TestConsoleWaitRacesRemoteSends(t *testing.T) {
	conv := newFakeConversation()
	c, _ := newTestConsole(conv)

	// sends arrive from another goroutine, as from the control plane
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			c.send("hi")
		}
	}()
	c.Wait()
	<-done
	c.Wait()

	conv.mu.Lock()
	defer conv.mu.Unlock()
	assert.LessOrEqual(t, len(conv.sent), 100)
}

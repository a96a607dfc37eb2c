package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"voicechat/core"
	credentialevents "voicechat/events/credential"
	"voicechat/handlers/playback"
)

// conversation is the part of the runner the console drives.
type conversation interface {
	Send(ctx context.Context, text string) (core.Message, error)
	Speak(ctx context.Context, messageID string) error
	SetSpeechEnabled(enabled bool)
	SpeechEnabled() bool
	SetVoice(voice core.VoiceParams)
	Voice() core.VoiceParams
	StopSpeech()
	Reset() error
	SetCredential(ctx context.Context, value string) error
	CredentialReady() bool
	Transcript() []core.Message
	PlaybackState() playback.State
}

const helpText = `commands:
  <text>          send a message
  /key <value>    set the API key
  /tts on|off     toggle automatic speech
  /voice <id>     select the voice
  /speed <f>      set the speaking rate
  /stop           stop speaking
  /play <n>       speak message n from /history
  /reset          start a new conversation
  /history        list the conversation
  /quit           exit`

var (
	errQuit    = errors.New("quit")
	errClosing = errors.New("console is shutting down")
)

// console reads commands line by line and prints results. Sends and replays
// run in the background so /stop stays responsive.
type console struct {
	conv conversation
	ctx  context.Context

	mu      sync.Mutex
	out     io.Writer
	closing bool // set by Wait; no new background work after it

	wg sync.WaitGroup
}

func newConsole(ctx context.Context, conv conversation, out io.Writer) *console {
	return &console{conv: conv, ctx: ctx, out: out}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Notify prints user-facing events. Interruptions are never reported here.
func (c *console) Notify(event core.IEvent) {
	switch e := event.(type) {
	case *core.ErrorEvent:
		c.printf("! %s\n", e.Category)
	case *credentialevents.CredentialChangedEvent:
		c.printf("* key %s (%s)\n", e.Validity, e.Fingerprint)
	}
}

// Run processes lines from in until EOF, /quit or ctx ends.
func (c *console) Run(in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-c.ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := c.Handle(line); errors.Is(err, errQuit) {
				return nil
			}
		}
	}
}

// Wait blocks until background sends and replays have returned. Sends that
// arrive afterwards, e.g. from the control plane, are dropped.
func (c *console) Wait() {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()
	c.wg.Wait()
}

// spawn runs fn in the background unless the console is shutting down.
func (c *console) spawn(fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
	return true
}

// Handle executes one input line.
func (c *console) Handle(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		c.send(line)
		return nil
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return errQuit
	case "/help":
		c.printf("%s\n", helpText)
	case "/key":
		if err := c.conv.SetCredential(c.ctx, arg); err != nil {
			return err
		}
	case "/tts":
		switch arg {
		case "on":
			c.conv.SetSpeechEnabled(true)
		case "off":
			c.conv.SetSpeechEnabled(false)
		case "":
		default:
			return c.usage("/tts on|off")
		}
		c.printf("* speech %s\n", onOff(c.conv.SpeechEnabled()))
	case "/voice":
		if arg == "" {
			return c.usage("/voice <id>")
		}
		v := c.conv.Voice()
		v.VoiceID = arg
		c.conv.SetVoice(v)
		c.printf("* voice %s\n", c.conv.Voice().VoiceID)
	case "/speed":
		speed, err := strconv.ParseFloat(arg, 64)
		if err != nil || speed <= 0 {
			return c.usage("/speed <number>")
		}
		v := c.conv.Voice()
		v.Speed = speed
		c.conv.SetVoice(v)
		c.printf("* speed %.2f\n", c.conv.Voice().Speed)
	case "/stop":
		c.conv.StopSpeech()
	case "/play":
		return c.play(arg)
	case "/reset":
		if err := c.conv.Reset(); err != nil {
			c.printf("! %v\n", err)
			return err
		}
		c.printf("* new conversation\n")
	case "/history":
		c.history()
	default:
		return c.usage("/help")
	}
	return nil
}

func (c *console) send(text string) bool {
	return c.spawn(func() {
		reply, err := c.conv.Send(c.ctx, text)
		if err != nil {
			// errors are shown by Notify
			return
		}
		c.printf("assistant: %s\n", reply.Content)
	})
}

func (c *console) play(arg string) error {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return c.usage("/play <n>")
	}
	messages := c.conv.Transcript()
	if n < 1 || n > len(messages) {
		c.printf("! no message %d\n", n)
		return fmt.Errorf("play: no message %d", n)
	}
	id := messages[n-1].ID
	if !c.spawn(func() { c.conv.Speak(c.ctx, id) }) {
		return errClosing
	}
	return nil
}

func (c *console) history() {
	messages := c.conv.Transcript()
	if len(messages) == 0 {
		c.printf("(empty)\n")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, m := range messages {
		status := ""
		if m.Status != core.MessageStatusNone && m.Status != core.MessageStatusComplete {
			status = " [" + string(m.Status) + "]"
		}
		fmt.Fprintf(c.out, "%3d %s%s: %s\n", i+1, m.Role, status, m.Content)
	}
}

func (c *console) usage(form string) error {
	c.printf("usage: %s\n", form)
	return fmt.Errorf("usage: %s", form)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

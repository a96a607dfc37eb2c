package websocket

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"voicechat/core"
)

const (
	defaultWriteTimeout = 5 * time.Second
	audioFrameSize      = 32 * 1024
	outboxSize          = 16
)

var (
	errClosed    = errors.New("player: connection closed")
	errQueueFull = errors.New("player: send queue full")
)

// playerMessage is the JSON envelope exchanged with a remote player.
type playerMessage struct {
	Type        string `json:"type"` // "audio", "stop" outbound; "ended", "error" inbound
	ID          string `json:"id"`
	ContentType string `json:"content_type,omitempty"`
	SampleRate  int    `json:"sample_rate,omitempty"`
	Channels    int    `json:"channels,omitempty"`
	Size        int    `json:"size,omitempty"`
	Error       string `json:"error,omitempty"`
}

// PlayerDevice implements playback.AudioDevice by streaming each clip to a
// remote player over a WebSocket: a JSON header, then the payload as one
// binary message. The player reports back when the clip ends.
//
// All writes happen on one goroutine, so Play and Stop only queue work and
// never wait on the network. A stopped clip is cut short at the next frame.
type PlayerDevice struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	outbox       chan outbound
	quit         chan struct{}
	readDone     chan struct{}
	writeDone    chan struct{}
	closeOnce    sync.Once
	closeErr     error

	mu      sync.Mutex
	loaded  *clip
	current *clip
	closed  bool
}

type clip struct {
	id          string
	contentType string
	sampleRate  int
	channels    int
	data        []byte
	end         chan error
	stopped     atomic.Bool
}

// outbound is either a control message or a clip to stream.
type outbound struct {
	text []byte
	clip *clip
}

// NewPlayerDevice takes ownership of conn and starts reading player reports.
// A write that makes no progress for writeTimeout breaks the connection; zero
// selects a default.
func NewPlayerDevice(conn *websocket.Conn, writeTimeout time.Duration) *PlayerDevice {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	d := &PlayerDevice{
		conn:         conn,
		writeTimeout: writeTimeout,
		outbox:       make(chan outbound, outboxSize),
		quit:         make(chan struct{}),
		readDone:     make(chan struct{}),
		writeDone:    make(chan struct{}),
	}
	go d.readLoop()
	go d.writeLoop()
	return d
}

// Dial connects to a remote player at url.
func Dial(url string, writeTimeout time.Duration) (*PlayerDevice, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("player: dial %s: %w", url, err)
	}
	return NewPlayerDevice(conn, writeTimeout), nil
}

func (d *PlayerDevice) Load(res *core.AudioResource) error {
	data := res.Data()
	if data == nil {
		return core.ErrResourceReleased
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errClosed
	}
	// The resource may be released while the clip is in flight.
	d.loaded = &clip{
		id:          res.ID,
		contentType: res.ContentType,
		sampleRate:  res.SampleRate,
		channels:    res.Channels,
		data:        append([]byte(nil), data...),
	}
	return nil
}

// Play queues the loaded clip for streaming and returns at once.
func (d *PlayerDevice) Play() (<-chan error, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errClosed
	}
	c := d.loaded
	if c == nil {
		return nil, errors.New("player: nothing loaded")
	}
	if d.current != nil {
		d.current.stopped.Store(true)
	}
	c.end = make(chan error, 1)
	if !d.enqueueLocked(outbound{clip: c}) {
		return nil, errQueueFull
	}
	d.current = c
	return c.end, nil
}

// Stop cuts the current clip short and tells the player to stop. It does
// not wait for the message to be written.
func (d *PlayerDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.current
	d.current = nil
	d.loaded = nil
	if c == nil || d.closed {
		return nil
	}
	c.stopped.Store(true)
	msg, _ := sonic.Marshal(playerMessage{Type: "stop", ID: c.id})
	if !d.enqueueLocked(outbound{text: msg}) {
		return errQueueFull
	}
	return nil
}

func (d *PlayerDevice) enqueueLocked(m outbound) bool {
	select {
	case d.outbox <- m:
		return true
	default:
		return false
	}
}

func (d *PlayerDevice) writeLoop() {
	defer close(d.writeDone)
	for {
		select {
		case <-d.quit:
			return
		case m := <-d.outbox:
			if err := d.write(m); err != nil {
				d.fail(fmt.Errorf("player: write: %w", err))
				return
			}
		}
	}
}

func (d *PlayerDevice) write(m outbound) error {
	if m.clip == nil {
		return d.writeText(m.text)
	}
	c := m.clip
	if c.stopped.Load() {
		return nil
	}
	header, _ := sonic.Marshal(playerMessage{
		Type:        "audio",
		ID:          c.id,
		ContentType: c.contentType,
		SampleRate:  c.sampleRate,
		Channels:    c.channels,
		Size:        len(c.data),
	})
	if err := d.writeText(header); err != nil {
		return err
	}

	d.conn.SetWriteDeadline(time.Now().Add(d.writeTimeout))
	w, err := d.conn.NextWriter(websocket.BinaryMessage)
	if err != nil {
		return err
	}
	for off := 0; off < len(c.data); off += audioFrameSize {
		if c.stopped.Load() {
			// a short payload; the stop message follows
			break
		}
		d.conn.SetWriteDeadline(time.Now().Add(d.writeTimeout))
		if _, err := w.Write(c.data[off:min(off+audioFrameSize, len(c.data))]); err != nil {
			return err
		}
	}
	d.conn.SetWriteDeadline(time.Now().Add(d.writeTimeout))
	return w.Close()
}

func (d *PlayerDevice) writeText(data []byte) error {
	d.conn.SetWriteDeadline(time.Now().Add(d.writeTimeout))
	return d.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop delivers player reports to the clip they refer to.
func (d *PlayerDevice) readLoop() {
	defer close(d.readDone)
	for {
		messageType, data, err := d.conn.ReadMessage()
		if err != nil {
			d.fail(fmt.Errorf("player: connection lost: %w", err))
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var msg playerMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			core.GetLogger().With(map[string]any{"error": err}).Warn("player: malformed report")
			continue
		}

		d.mu.Lock()
		c := d.current
		if c == nil || c.id != msg.ID {
			d.mu.Unlock()
			continue
		}
		switch msg.Type {
		case "ended":
			d.current = nil
			c.end <- nil
		case "error":
			d.current = nil
			c.end <- errors.New(msg.Error)
		}
		d.mu.Unlock()
	}
}

func (d *PlayerDevice) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.current != nil {
		d.current.end <- err
		d.current = nil
	}
}

// Close shuts down the WebSocket connection. It is safe to call more than once.
func (d *PlayerDevice) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		close(d.quit)
		d.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		d.closeErr = d.conn.Close()
		<-d.writeDone
		<-d.readDone
	})
	return d.closeErr
}

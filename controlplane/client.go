package controlplane

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"voicechat/core"
	"voicechat/protocol"
)

const (
	defaultHeartbeatInterval = 5 * time.Second
	defaultSendBufferSize    = 256
	writeTimeout             = 10 * time.Second
)

// ClientConfig configures the control plane WebSocket client.
type ClientConfig struct {
	ConnectURL        string
	ClientID          string
	SessionID         string
	Version           string
	Metadata          map[string]string
	HeartbeatInterval time.Duration
	Logger            *core.Logger
}

// Client connects outward to a control plane. It forwards notification
// events, logs and status, and receives remote commands for the conversation.
// It implements core.Notifier.
type Client struct {
	config ClientConfig
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	logger *core.Logger

	// Command callbacks, set before Connect. They run on the read loop and
	// must not block; a returned error is reported in the ack.
	OnSendMessage func(text string) error
	OnSetSpeech   func(enabled bool) error
	OnStopSpeech  func() error
	OnReset       func() error
	OnShutdown    func(reason string)
	// StatusFunc, when set, supplies the status sent with every heartbeat.
	StatusFunc func() protocol.Status

	sendCh    chan []byte
	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
}

// NewClient creates a new control plane client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = core.GetLogger()
	}
	return &Client{
		config: cfg,
		logger: cfg.Logger.With(map[string]interface{}{"component": "controlplane"}),
		sendCh: make(chan []byte, defaultSendBufferSize),
		done:   make(chan struct{}),
	}
}

// Connect dials the control plane, registers, and starts the read, write
// and heartbeat loops. Cancelling ctx closes the connection.
func (c *Client) Connect(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.logger.With(map[string]interface{}{"url": c.config.ConnectURL}).Info("connecting to control plane")

	conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, c.config.ConnectURL, nil)
	if err != nil {
		c.cancel()
		return fmt.Errorf("controlplane: dial %q: %w", c.config.ConnectURL, err)
	}
	c.conn = conn

	reg := protocol.RegisterPayload{
		ClientID:     c.config.ClientID,
		Version:      c.config.Version,
		Capabilities: []string{"chat", "speech"},
		Metadata:     c.config.Metadata,
		Timestamp:    time.Now().UTC(),
	}
	if err := c.send(protocol.MsgRegister, reg); err != nil {
		conn.Close()
		c.cancel()
		return fmt.Errorf("controlplane: send register: %w", err)
	}

	c.logger.With(map[string]interface{}{"client_id": c.config.ClientID}).Info("registered with control plane")

	go c.readLoop()
	go c.writeLoop()
	go c.heartbeatLoop()

	return nil
}

// Notify forwards a notification event. It never blocks.
func (c *Client) Notify(event core.IEvent) {
	packet := core.NewEventPacket(event, "voicechat")
	data, err := sonic.Marshal(event)
	if err != nil {
		c.logger.With(map[string]interface{}{"error": err, "event_id": event.GetId()}).Warn("failed to marshal event, dropping")
		return
	}
	c.enqueue(protocol.MsgEvent, protocol.EventPayload{
		ClientID:  c.config.ClientID,
		SessionID: c.config.SessionID,
		PacketID:  packet.Uid,
		EventID:   event.GetId(),
		Relayer:   packet.Relayer,
		Timestamp: packet.Timestamp,
		Data:      data,
	})
}

// SendLog sends a log entry for a session.
func (c *Client) SendLog(sessionID string, entry protocol.LogEntry) {
	c.enqueue(protocol.MsgLog, protocol.LogPayload{
		ClientID:  c.config.ClientID,
		SessionID: sessionID,
		Entry:     entry,
	})
}

// SendStatus sends a conversation status update.
func (c *Client) SendStatus(status protocol.Status) {
	c.enqueue(protocol.MsgStatus, protocol.StatusPayload{
		ClientID: c.config.ClientID,
		Status:   status,
	})
}

// SendLogEnd signals that a session's log stream has ended.
func (c *Client) SendLogEnd(sessionID string) {
	c.enqueue(protocol.MsgLogEnd, protocol.LogEndPayload{
		ClientID:  c.config.ClientID,
		SessionID: sessionID,
	})
}

// Done is closed when the connection drops.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close shuts down the client.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) send(msgType protocol.MessageType, payload interface{}) error {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) enqueue(msgType protocol.MessageType, payload interface{}) {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		c.logger.With(map[string]interface{}{"error": err, "type": string(msgType)}).Warn("failed to marshal message, dropping")
		return
	}
	select {
	case c.sendCh <- data:
	default:
		// Buffer full: drop the oldest message.
		select {
		case <-c.sendCh:
		default:
		}
		select {
		case c.sendCh <- data:
		default:
		}
	}
}

func (c *Client) readLoop() {
	defer func() {
		c.doneOnce.Do(func() { close(c.done) })
		c.cancel()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.With(map[string]interface{}{"error": err}).Warn("control plane connection lost")
			}
			return
		}

		msgType, payload, err := protocol.Unmarshal(data)
		if err != nil {
			c.logger.With(map[string]interface{}{"error": err}).Warn("invalid message from control plane")
			continue
		}

		switch msgType {
		case protocol.MsgSendMessage:
			p, err := protocol.UnmarshalPayload[protocol.SendMessagePayload](payload)
			if err != nil {
				c.ack(msgType, err)
				continue
			}
			if c.OnSendMessage == nil {
				c.ack(msgType, errUnsupported)
				continue
			}
			c.ack(msgType, c.OnSendMessage(p.Text))

		case protocol.MsgSetSpeech:
			p, err := protocol.UnmarshalPayload[protocol.SetSpeechPayload](payload)
			if err != nil {
				c.ack(msgType, err)
				continue
			}
			if c.OnSetSpeech == nil {
				c.ack(msgType, errUnsupported)
				continue
			}
			c.ack(msgType, c.OnSetSpeech(p.Enabled))

		case protocol.MsgStopSpeech:
			c.ack(msgType, run(c.OnStopSpeech))

		case protocol.MsgReset:
			c.ack(msgType, run(c.OnReset))

		case protocol.MsgShutdown:
			p, _ := protocol.UnmarshalPayload[protocol.ShutdownPayload](payload)
			reason := p.Reason
			if reason == "" {
				reason = "shutdown requested by control plane"
			}
			c.logger.With(map[string]interface{}{"reason": reason}).Info("shutdown requested")
			if c.OnShutdown != nil {
				c.OnShutdown(reason)
			}
			return

		default:
			c.logger.With(map[string]interface{}{"type": string(msgType)}).Warn("unexpected message type from control plane")
		}
	}
}

var errUnsupported = errors.New("command not supported")

func run(f func() error) error {
	if f == nil {
		return errUnsupported
	}
	return f()
}

func (c *Client) ack(msgType protocol.MessageType, err error) {
	p := protocol.AckPayload{AckedType: msgType, OK: err == nil}
	if err != nil {
		p.Error = err.Error()
	}
	c.enqueue(protocol.MsgAck, p)
}

func (c *Client) writeLoop() {
	for {
		select {
		case data := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.With(map[string]interface{}{"error": err}).Warn("write to control plane failed")
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hb := protocol.HeartbeatPayload{
				ClientID:  c.config.ClientID,
				Timestamp: time.Now().UTC(),
			}
			if c.StatusFunc != nil {
				hb.Status = c.StatusFunc()
			}
			c.enqueue(protocol.MsgHeartbeat, hb)
		case <-c.ctx.Done():
			return
		}
	}
}

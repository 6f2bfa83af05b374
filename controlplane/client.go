package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"speechbot/core"
	"speechbot/protocol"
)

const (
	defaultHeartbeatInterval = 5 * time.Second
	defaultReconnectDelay    = 500 * time.Millisecond
	maxReconnectDelay        = 15 * time.Second
	defaultSendBufferSize    = 256
	writeTimeout             = 10 * time.Second
)

// ClientConfig configures the control plane WebSocket client.
type ClientConfig struct {
	ConnectURL        string
	AgentID           string
	Version           string
	Capabilities      []string // e.g. "chat", "stt", "tts"; sent on every registration.
	Metadata          map[string]string
	HeartbeatInterval time.Duration
	Logger            *core.Logger

	// Reconnect redials with exponential backoff after the connection drops.
	// Without it the client ends, and Wait returns, on the first drop.
	Reconnect      bool
	ReconnectDelay time.Duration

	// ActiveSessions reports the number of open chat sessions for heartbeats.
	ActiveSessions func() int
}

// Client is the bot-side WebSocket client that connects outward to a control
// plane. Session logs, status, turn events and heartbeats flow out through a
// bounded outbox; config updates and shutdown requests flow in.
type Client struct {
	config ClientConfig
	logger *core.Logger
	out    *outbox

	OnConfigUpdate func(settings json.RawMessage, keys map[string]string)
	OnShutdown     func(reason string)

	ctx        context.Context
	cancel     context.CancelFunc
	connMu     sync.Mutex
	conn       *websocket.Conn
	connected  atomic.Bool
	registered atomic.Int64

	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
}

// NewClient creates a new control plane client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = core.GetLogger()
	}
	return &Client{
		config: cfg,
		logger: cfg.Logger.With(map[string]interface{}{"component": "controlplane"}),
		out:    newOutbox(defaultSendBufferSize),
		done:   make(chan struct{}),
	}
}

// Connect dials and registers. The first dial must succeed; later drops are
// handled according to ClientConfig.Reconnect. Cancelling ctx ends the client.
func (c *Client) Connect(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	conn, err := c.dial()
	if err != nil {
		c.cancel()
		return err
	}

	go c.supervise(conn)
	go c.heartbeatLoop()
	return nil
}

// Connected reports whether a registered connection is currently open.
func (c *Client) Connected() bool { return c.connected.Load() }

// Registrations counts successful registrations since Connect.
func (c *Client) Registrations() int { return int(c.registered.Load()) }

// SendLog sends a log entry for a session.
func (c *Client) SendLog(sessionID string, entry protocol.LogEntry) {
	c.enqueue(protocol.MsgLog, protocol.LogPayload{
		AgentID:   c.config.AgentID,
		SessionID: sessionID,
		Entry:     entry,
	})
}

// SendLogEnd signals that a session's log stream has ended.
func (c *Client) SendLogEnd(sessionID string) {
	c.enqueue(protocol.MsgLogEnd, protocol.LogEndPayload{
		AgentID:   c.config.AgentID,
		SessionID: sessionID,
	})
}

// SendStatus reports the bot status and its open chat sessions.
func (c *Client) SendStatus(status string, sessions []protocol.SessionInfo) {
	c.enqueue(protocol.MsgStatus, protocol.StatusPayload{
		AgentID:  c.config.AgentID,
		Status:   status,
		Sessions: sessions,
	})
}

// SendEvent mirrors a turn event of a chat session.
func (c *Client) SendEvent(sessionID, eventID string, data json.RawMessage) {
	c.enqueue(protocol.MsgEvent, protocol.EventPayload{
		AgentID:   c.config.AgentID,
		SessionID: sessionID,
		EventID:   eventID,
		Data:      data,
	})
}

// Wait blocks until the client has ended: shutdown requested, context
// cancelled, Close called, or the connection lost with reconnect disabled.
func (c *Client) Wait() error {
	<-c.done
	return nil
}

// Close ends the client and its connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.connMu.Unlock()
	})
}

func (c *Client) dial() (*websocket.Conn, error) {
	log := c.logger.With(map[string]interface{}{"url": c.config.ConnectURL})
	log.Info("connecting to control plane")

	conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, c.config.ConnectURL, nil)
	if err != nil {
		return nil, fmt.Errorf("controlplane: dial %q: %w", c.config.ConnectURL, err)
	}

	reg, err := protocol.Marshal(protocol.MsgRegister, protocol.RegisterPayload{
		AgentID:      c.config.AgentID,
		Version:      c.config.Version,
		Capabilities: c.config.Capabilities,
		Metadata:     c.config.Metadata,
		Timestamp:    time.Now().UTC(),
	})
	if err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err = conn.WriteMessage(websocket.TextMessage, reg)
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("controlplane: register: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.connected.Store(true)
	n := c.registered.Add(1)
	log.With(map[string]interface{}{"agent_id": c.config.AgentID, "registration": n}).Info("registered with control plane")
	return conn, nil
}

// supervise owns the connection for the client's lifetime, redialing after
// drops when reconnect is enabled.
func (c *Client) supervise(conn *websocket.Conn) {
	defer c.finish()

	for {
		if stop := c.serveConn(conn); stop || c.ctx.Err() != nil {
			return
		}
		if !c.config.Reconnect {
			return
		}
		if conn = c.redial(); conn == nil {
			return
		}
	}
}

// serveConn pumps one connection until it fails. It reports true when the
// control plane asked the bot to shut down.
func (c *Client) serveConn(conn *websocket.Conn) bool {
	connCtx, stopWriter := context.WithCancel(c.ctx)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(connCtx, conn)
		// A failed write leaves the reader blocked; closing unblocks it.
		conn.Close()
	}()

	shutdown := c.readLoop(conn)

	c.connected.Store(false)
	stopWriter()
	conn.Close()
	<-writerDone
	return shutdown
}

func (c *Client) redial() *websocket.Conn {
	delay := c.config.ReconnectDelay
	for {
		c.logger.With(map[string]interface{}{"retry_in": delay.String()}).Warn("control plane connection lost, reconnecting")
		select {
		case <-c.ctx.Done():
			return nil
		case <-time.After(delay):
		}
		conn, err := c.dial()
		if err == nil {
			return conn
		}
		if c.ctx.Err() != nil {
			return nil
		}
		c.logger.With(map[string]interface{}{"error": err}).Warn("reconnect failed")
		delay = min(delay*2, maxReconnectDelay)
	}
}

func (c *Client) finish() {
	c.connected.Store(false)
	c.doneOnce.Do(func() { close(c.done) })
	c.cancel()
}

func (c *Client) enqueue(msgType protocol.MessageType, payload interface{}) {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		c.logger.With(map[string]interface{}{"error": err, "type": string(msgType)}).Warn("failed to marshal message, dropping")
		return
	}
	if c.out.push(data) {
		c.logger.With(map[string]interface{}{"dropped_total": c.out.droppedTotal()}).Debug("outbox full, oldest message dropped")
	}
}

func (c *Client) readLoop(conn *websocket.Conn) bool {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.With(map[string]interface{}{"error": err}).Warn("control plane read failed")
			}
			return false
		}

		msgType, payload, err := protocol.Unmarshal(data)
		if err != nil {
			c.logger.With(map[string]interface{}{"error": err}).Warn("invalid message from control plane")
			continue
		}
		if c.handle(msgType, payload) {
			return true
		}
	}
}

// handle applies one command and reports whether it was a shutdown.
func (c *Client) handle(msgType protocol.MessageType, payload json.RawMessage) bool {
	switch msgType {
	case protocol.MsgConfigUpdate:
		p, err := protocol.UnmarshalPayload[protocol.ConfigUpdatePayload](payload)
		if err != nil {
			c.logger.With(map[string]interface{}{"error": err}).Warn("invalid config_update payload")
			return false
		}
		if c.OnConfigUpdate != nil {
			c.OnConfigUpdate(p.Settings, p.Keys)
		}
		return false

	case protocol.MsgShutdown:
		p, _ := protocol.UnmarshalPayload[protocol.ShutdownPayload](payload)
		reason := p.Reason
		if reason == "" {
			reason = "shutdown requested by control plane"
		}
		c.logger.With(map[string]interface{}{"reason": reason, "grace_seconds": p.GraceSeconds}).Info("shutdown requested")
		if c.OnShutdown != nil {
			c.OnShutdown(reason)
		}
		return true
	}

	c.logger.With(map[string]interface{}{"type": string(msgType)}).Warn("unknown message type from control plane")
	return false
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.out.ch:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				// Requeue so the message survives a reconnect.
				c.out.push(data)
				c.logger.With(map[string]interface{}{"error": err}).Warn("write to control plane failed")
				return
			}
		}
	}
}

// heartbeatLoop reports liveness and session load while connected.
func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if c.connected.Load() {
				c.enqueue(protocol.MsgHeartbeat, c.heartbeat())
			}
		}
	}
}

func (c *Client) heartbeat() protocol.HeartbeatPayload {
	active := 0
	if c.config.ActiveSessions != nil {
		active = c.config.ActiveSessions()
	}
	status := "idle"
	if active > 0 {
		status = "running"
	}
	return protocol.HeartbeatPayload{
		AgentID:        c.config.AgentID,
		Timestamp:      time.Now().UTC(),
		ActiveSessions: active,
		Status:         status,
	}
}

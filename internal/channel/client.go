// Package channel connects the bot to the WhatsApp gateway process over a
// websocket and translates its lifecycle events into engine calls.
package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cesasin/clinic-reminders/internal/engine"
	"github.com/cesasin/clinic-reminders/internal/store"
	"github.com/cesasin/clinic-reminders/pkg/logging"
)

// Status is the gateway link state as the HTTP layer reports it.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusWaitingQR    Status = "waiting_qr"
	StatusReady        Status = "ready"
)

// Gateway event types.
const (
	eventQR            = "qr"
	eventReady         = "ready"
	eventAuthenticated = "authenticated"
	eventAuthFailure   = "auth_failure"
	eventDisconnected  = "disconnected"
	eventMessage       = "message"
)

// event is one JSON frame read from the gateway.
type event struct {
	Type    string        `json:"type"`
	QR      string        `json:"qr,omitempty"`
	Number  string        `json:"number,omitempty"`
	Reason  string        `json:"reason,omitempty"`
	Message *messagePayload `json:"message,omitempty"`
}

type messagePayload struct {
	From        string `json:"from"`
	Body        string `json:"body"`
	ContactName string `json:"contact_name"`
	Timestamp   int64  `json:"timestamp"`
}

// frame is one JSON command written to the gateway.
type frame struct {
	Type string `json:"type"`
	To   string `json:"to,omitempty"`
	Text string `json:"text,omitempty"`
}

// MessageHandler receives each inbound patient message. The client calls it on
// its own goroutine per message; same-sender ordering is the engine's problem.
type MessageHandler func(ctx context.Context, msg engine.InboundMessage)

// Auditor records channel lifecycle events.
type Auditor interface {
	Create(ctx context.Context, entry store.AuditEntry) error
}

// Config tunes the gateway link.
type Config struct {
	URL               string
	ReconnectDelay    time.Duration
	KeepAliveInterval time.Duration
	PresenceInterval  time.Duration
	// WriteTimeout caps how long a single outbound frame may block on the
	// socket. A stalled peer fails the write instead of wedging the sender.
	WriteTimeout time.Duration
	// ProbeAddress receives the periodic typing keep-alive. Empty disables it.
	ProbeAddress string
}

// Client maintains the websocket session with the gateway. It reconnects on
// loss, fans events into a single consumer goroutine, and exposes the send
// capability the engine and dispatch service use.
type Client struct {
	cfg     Config
	handler MessageHandler
	modes   *engine.Modes
	audits  Auditor
	logger  *logging.Logger

	dial func(url string) (conn, error)

	events chan event

	mu        sync.Mutex
	conn      conn
	status    Status
	qr        string
	number    string
	keepStop  chan struct{}
	keepAlive bool
}

// conn is the slice of *websocket.Conn the client uses, split out so tests can
// drive the event loop without a live gateway.
type conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// New builds a client. handler may be nil until SetHandler is called; Send
// works as soon as the link is up.
func New(cfg Config, modes *engine.Modes, audits Auditor, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		modes:  modes,
		audits: audits,
		logger: logger,
		dial: func(url string) (conn, error) {
			c, _, err := websocket.DefaultDialer.Dial(url, nil)
			return c, err
		},
		events: make(chan event, 64),
		status: StatusDisconnected,
	}
}

// SetHandler installs the inbound-message handler. Must be called before Run.
func (c *Client) SetHandler(h MessageHandler) { c.handler = h }

// Run keeps the gateway session alive until ctx is cancelled. It owns one
// consumer goroutine for the fanned-in events and one reader per connection.
func (c *Client) Run(ctx context.Context) {
	go c.consume(ctx)

	for {
		if ctx.Err() != nil {
			return
		}
		c.setStatus(StatusConnecting)
		wc, err := c.dial(c.cfg.URL)
		if err != nil {
			c.logger.Error("gateway dial failed", "url", c.cfg.URL, "error", err)
			c.setStatus(StatusDisconnected)
			if !sleep(ctx, c.cfg.ReconnectDelay) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.conn = wc
		c.mu.Unlock()
		c.logger.Info("gateway connected", "url", c.cfg.URL)

		c.readLoop(ctx, wc)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.handleDisconnect(ctx, "read loop ended")

		if !sleep(ctx, c.cfg.ReconnectDelay) {
			return
		}
	}
}

func (c *Client) readLoop(ctx context.Context, wc conn) {
	for {
		var ev event
		if err := wc.ReadJSON(&ev); err != nil {
			if ctx.Err() == nil {
				c.logger.Error("gateway read failed", "error", err)
			}
			_ = wc.Close()
			return
		}
		select {
		case c.events <- ev:
		case <-ctx.Done():
			_ = wc.Close()
			return
		}
	}
}

// consume drains the event channel. Inbound messages get their own goroutine
// so a slow handler never stalls lifecycle events.
func (c *Client) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			c.handleEvent(ctx, ev)
		}
	}
}

func (c *Client) handleEvent(ctx context.Context, ev event) {
	switch ev.Type {
	case eventQR:
		c.mu.Lock()
		c.qr = ev.QR
		c.status = StatusWaitingQR
		c.mu.Unlock()
		c.logger.Info("gateway issued QR code")

	case eventReady:
		c.mu.Lock()
		c.qr = ""
		c.status = StatusReady
		c.mu.Unlock()
		c.startKeepAlive(ctx)
		c.logger.Info("gateway session ready")

	case eventAuthenticated:
		c.mu.Lock()
		c.number = ev.Number
		c.mu.Unlock()
		c.modes.StartConversationMode()
		c.audit(ctx, fmt.Sprintf("WhatsApp session authenticated as %s", ev.Number))
		c.logger.Info("gateway authenticated", "number", ev.Number)

	case eventAuthFailure:
		c.audit(ctx, "WhatsApp authentication failed")
		c.logger.Error("gateway authentication failed", "reason", ev.Reason)

	case eventDisconnected:
		c.handleDisconnect(ctx, ev.Reason)

	case eventMessage:
		if ev.Message == nil || c.handler == nil {
			return
		}
		received := time.Now()
		if ev.Message.Timestamp > 0 {
			received = time.Unix(ev.Message.Timestamp, 0)
		}
		msg := engine.InboundMessage{
			From:        ev.Message.From,
			Body:        ev.Message.Body,
			ContactName: ev.Message.ContactName,
			ReceivedAt:  received,
		}
		go c.handler(ctx, msg)

	default:
		c.logger.Warn("gateway sent unknown event", "type", ev.Type)
	}
}

func (c *Client) handleDisconnect(ctx context.Context, reason string) {
	c.stopKeepAlive()
	changed := false
	c.mu.Lock()
	if c.status != StatusDisconnected {
		c.status = StatusDisconnected
		changed = true
	}
	c.mu.Unlock()
	if changed {
		c.audit(ctx, "WhatsApp session disconnected")
		c.logger.Warn("gateway disconnected", "reason", reason)
	}
}

// Send writes one outbound message frame. It implements engine.Messenger.
func (c *Client) Send(ctx context.Context, to, text string) error {
	return c.write(ctx, frame{Type: "send", To: to, Text: text})
}

// write sends one frame with a deadline so a stalled peer surfaces as a
// delivery failure instead of blocking the caller past its lock lease.
func (c *Client) write(ctx context.Context, f frame) error {
	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("channel: gateway not connected")
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("channel: set write deadline: %w", err)
	}
	if err := c.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("channel: write frame: %w", err)
	}
	return nil
}

// Status reports the current link state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// QR returns the pending QR code, empty once the session is linked.
func (c *Client) QR() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.qr
}

// AuthenticatedNumber returns the phone number of the linked session.
func (c *Client) AuthenticatedNumber() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.number
}

// startKeepAlive launches the typing and presence timers. The gateway side
// drops idle sessions; periodic activity keeps the phone link warm.
func (c *Client) startKeepAlive(ctx context.Context) {
	c.mu.Lock()
	if c.keepAlive {
		c.mu.Unlock()
		return
	}
	c.keepAlive = true
	stop := make(chan struct{})
	c.keepStop = stop
	c.mu.Unlock()

	if c.cfg.KeepAliveInterval > 0 && c.cfg.ProbeAddress != "" {
		go c.tick(ctx, stop, c.cfg.KeepAliveInterval, func() error {
			return c.write(ctx, frame{Type: "typing", To: c.cfg.ProbeAddress})
		})
	}
	if c.cfg.PresenceInterval > 0 {
		go c.tick(ctx, stop, c.cfg.PresenceInterval, func() error {
			return c.write(ctx, frame{Type: "presence"})
		})
	}
}

func (c *Client) stopKeepAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.keepAlive {
		return
	}
	c.keepAlive = false
	close(c.keepStop)
	c.keepStop = nil
}

func (c *Client) tick(ctx context.Context, stop chan struct{}, every time.Duration, fn func() error) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-t.C:
			if err := fn(); err != nil {
				c.logger.Warn("keep-alive write failed", "error", err)
			}
		}
	}
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *Client) audit(ctx context.Context, action string) {
	if c.audits == nil {
		return
	}
	entry := store.AuditEntry{Action: action, ActionDate: time.Now()}
	if err := c.audits.Create(ctx, entry); err != nil {
		c.logger.Error("failed to write audit row", "action", action, "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// Package engine routes every inbound patient message to the reminder or
// conversational flow, evaluates the relevant state machine and commits the
// resulting state transition.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/cesasin/clinic-reminders/internal/observability/metrics"
	"github.com/cesasin/clinic-reminders/internal/store"
	"github.com/cesasin/clinic-reminders/internal/templates"
	"github.com/cesasin/clinic-reminders/pkg/logging"
)

const (
	groupSuffix   = "@g.us"
	channelSuffix = "@c.us"

	// greetingKeyword opens both flows when the message body contains it.
	greetingKeyword = "hola"
)

// InboundMessage is one patient message as the channel delivers it.
type InboundMessage struct {
	From        string
	Body        string
	ContactName string
	ReceivedAt  time.Time
}

// Messenger is the outbound send capability of the channel client.
type Messenger interface {
	Send(ctx context.Context, to, text string) error
}

// ReminderRepository is the reminder-record access the engine needs.
type ReminderRepository interface {
	FindLatestActive(ctx context.Context, phone string, now time.Time) (*store.ReminderRecord, error)
	FindLatestActiveFor(ctx context.Context, id int64, fullName, phone string) (*store.ReminderRecord, error)
	UpdateStatus(ctx context.Context, id int64, task store.TaskStatus, reminder store.ReminderState) error
}

// ResponseRepository is the conversational lineage access the engine needs.
type ResponseRepository interface {
	FindLatest(ctx context.Context, phone string) (*store.PatientResponseRecord, error)
	Create(ctx context.Context, fullName, phone, response string, state store.ConversationState, now time.Time) error
	CompleteReservation(ctx context.Context, fullName, phone, body string, now time.Time) error
}

// OutcomeRepository records terminal reminder outcomes.
type OutcomeRepository interface {
	CreateConfirmed(ctx context.Context, rec *store.ReminderRecord, now time.Time) error
	CreateCancelled(ctx context.Context, rec *store.ReminderRecord, reason string, now time.Time) error
	CreateReschedule(ctx context.Context, rec *store.ReminderRecord, message string, now time.Time) error
}

// Config bounds the engine's time-dependent behavior.
type Config struct {
	// MaxConversationTime is the session TTL of a conversational lineage.
	MaxConversationTime time.Duration
	// HandlerTimeout bounds one HandleMessage pass end to end.
	HandlerTimeout time.Duration
	// SenderLockTTL is the lease on the per-sender lock; it must exceed
	// HandlerTimeout so a hung handler loses the lock rather than the sender.
	SenderLockTTL time.Duration
}

// Engine is the conversation engine.
type Engine struct {
	reminders ReminderRepository
	responses ResponseRepository
	outcomes  OutcomeRepository
	messenger Messenger
	templates *templates.Store
	modes     *Modes
	locker    Locker
	cfg       Config
	metrics   *metrics.BotMetrics
	logger    *logging.Logger
}

// New creates the conversation engine.
func New(
	reminders ReminderRepository,
	responses ResponseRepository,
	outcomes OutcomeRepository,
	messenger Messenger,
	tmpl *templates.Store,
	modes *Modes,
	locker Locker,
	cfg Config,
	m *metrics.BotMetrics,
	logger *logging.Logger,
) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxConversationTime <= 0 {
		cfg.MaxConversationTime = 30 * time.Minute
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}
	if cfg.SenderLockTTL <= cfg.HandlerTimeout {
		cfg.SenderLockTTL = cfg.HandlerTimeout + 15*time.Second
	}
	return &Engine{
		reminders: reminders,
		responses: responses,
		outcomes:  outcomes,
		messenger: messenger,
		templates: tmpl,
		modes:     modes,
		locker:    locker,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
	}
}

// HandleMessage routes one inbound message. Group and avoid-list senders are
// discarded silently, as is all traffic while the bot is disabled or
// conversation mode is off. Everything else acquires the sender's lock, is
// matched against the latest active reminder and dispatched to the owning flow.
func (e *Engine) HandleMessage(ctx context.Context, msg InboundMessage) {
	start := time.Now()

	if strings.HasSuffix(msg.From, groupSuffix) {
		e.metrics.ObserveInbound("filtered", "group")
		return
	}
	if e.templates.Avoided(strings.TrimSuffix(msg.From, channelSuffix)) {
		e.metrics.ObserveInbound("filtered", "avoid_list")
		return
	}
	if !e.modes.BotEnabled() || !e.modes.ConversationActive() {
		e.metrics.ObserveInbound("filtered", "disabled")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.HandlerTimeout)
	defer cancel()

	token, locked, err := e.locker.Acquire(ctx, msg.From, e.cfg.SenderLockTTL)
	if err != nil {
		e.logger.Error("failed to acquire sender lock", "sender", msg.From, "error", err)
		e.metrics.ObserveInbound("error", "lock")
		return
	}
	if !locked {
		e.sendWaitNotice(ctx, msg.From)
		e.metrics.ObserveInbound("dropped", "busy")
		return
	}
	defer func() {
		if err := e.locker.Release(context.WithoutCancel(ctx), msg.From, token); err != nil {
			e.logger.Error("failed to release sender lock", "sender", msg.From, "error", err)
		}
	}()

	arrival := msg.ReceivedAt
	if arrival.IsZero() {
		arrival = time.Now()
	}

	rec, err := e.reminders.FindLatestActive(ctx, msg.From, arrival)
	if err != nil {
		e.logger.Error("reminder lookup failed", "sender", msg.From, "error", err)
		e.sendConversational(ctx, msg.From, "error", nil)
		e.metrics.ObserveInbound("error", "lookup")
		return
	}

	if rec != nil {
		e.handleReminderMessage(ctx, msg, rec, arrival)
		e.metrics.ObserveInbound("reminder", "handled")
	} else {
		e.handleConversationalMessage(ctx, msg, arrival)
		e.metrics.ObserveInbound("conversational", "handled")
	}
	e.metrics.ObserveHandlerDuration(time.Since(start).Seconds())
}

func (e *Engine) sendWaitNotice(ctx context.Context, to string) {
	text := e.templates.Conversational().Get("wait").Message
	if text == "" {
		text = "Por favor, espera mientras procesamos tu mensaje."
	}
	e.send(ctx, to, text)
}

// send delivers one outbound message, logging and swallowing delivery
// failures. Empty text (missing template key) is skipped silently.
func (e *Engine) send(ctx context.Context, to, text string) {
	if text == "" {
		return
	}
	if err := e.messenger.Send(ctx, to, text); err != nil {
		e.logger.Error("failed to send message", "to", to, "error", err)
		e.metrics.ObserveOutbound("failed")
		return
	}
	e.metrics.ObserveOutbound("sent")
}

// sendConversational renders a conversational template by key and sends it.
func (e *Engine) sendConversational(ctx context.Context, to, key string, vars map[string]string) {
	resp := e.templates.Conversational().Get(key)
	e.send(ctx, to, templates.Render(resp.Message, vars))
}

func contactOrPatient(contactName, patientFullName string) string {
	if strings.TrimSpace(contactName) != "" {
		return contactName
	}
	return patientFullName
}

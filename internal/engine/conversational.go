package engine

import (
	"context"
	"strings"
	"time"

	"github.com/cesasin/clinic-reminders/internal/store"
)

// handleConversationalMessage runs the generic intake state machine for a
// sender with no active reminder. Failure policy is fail-safe: any store error
// gets the generic retry-later reply and aborts the transition.
func (e *Engine) handleConversationalMessage(ctx context.Context, msg InboundMessage, now time.Time) {
	body := strings.ToLower(strings.TrimSpace(msg.Body))
	contactName := msg.ContactName

	state, err := e.responses.FindLatest(ctx, msg.From)
	if err != nil {
		e.logger.Error("failed to fetch conversation state", "sender", msg.From, "error", err)
		e.sendConversational(ctx, msg.From, "error", nil)
		return
	}

	// Session expiry: a reply arriving past the TTL resets the lineage to a
	// fresh Start row before the state switch runs.
	if state != nil && now.Sub(state.CreatedAt) > e.cfg.MaxConversationTime {
		if err := e.responses.Create(ctx, contactName, msg.From, msg.Body, store.ConversationStart, now); err != nil {
			e.logger.Error("failed to reset expired conversation", "sender", msg.From, "error", err)
			e.sendConversational(ctx, msg.From, "error", nil)
			return
		}
		state, err = e.responses.FindLatest(ctx, msg.From)
		if err != nil {
			e.logger.Error("failed to refetch conversation state", "sender", msg.From, "error", err)
			e.sendConversational(ctx, msg.From, "error", nil)
			return
		}
	}

	if state == nil || state.ConversationState == store.ConversationStart {
		if strings.Contains(body, greetingKeyword) {
			e.sendConversational(ctx, msg.From, "welcome", nil)
			if err := e.responses.Create(ctx, contactName, msg.From, msg.Body, store.ConversationAwaitingChoice, now); err != nil {
				e.logger.Error("failed to open conversation", "sender", msg.From, "error", err)
			}
		} else {
			e.sendConversational(ctx, msg.From, "unknown", nil)
		}
		return
	}

	switch state.ConversationState {
	case store.ConversationAwaitingChoice:
		switch body {
		case "1":
			e.sendConversational(ctx, msg.From, "option1", nil)
			// Loops back to Start so the dialogue can continue.
			if err := e.responses.Create(ctx, contactName, msg.From, msg.Body, store.ConversationStart, now); err != nil {
				e.logger.Error("failed to record option 1", "sender", msg.From, "error", err)
			}
		case "2":
			e.sendConversational(ctx, msg.From, "option2", nil)
			if err := e.responses.Create(ctx, contactName, msg.From, msg.Body, store.ConversationTerminal, now); err != nil {
				e.logger.Error("failed to record option 2", "sender", msg.From, "error", err)
			}
		default:
			e.sendConversational(ctx, msg.From, "unknownOption", nil)
		}

	case store.ConversationTerminal:
		// The free-text follow-up closes the reservation on the lineage's
		// AwaitingMenuChoice row, then a fresh Start row opens the next cycle.
		if err := e.responses.CompleteReservation(ctx, contactName, msg.From, msg.Body, now); err != nil {
			e.logger.Error("failed to complete reservation", "sender", msg.From, "error", err)
			e.sendConversational(ctx, msg.From, "error", nil)
			return
		}
		if err := e.responses.Create(ctx, contactName, msg.From, msg.Body, store.ConversationStart, now); err != nil {
			e.logger.Error("failed to reopen conversation", "sender", msg.From, "error", err)
		}

	default:
		e.sendConversational(ctx, msg.From, "unknown", nil)
	}
}

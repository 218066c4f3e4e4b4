package engine

import (
	"context"
	"strings"
	"time"

	"github.com/cesasin/clinic-reminders/internal/store"
	"github.com/cesasin/clinic-reminders/internal/templates"
)

// handleReminderMessage runs the menu-driven confirm/reschedule/cancel flow
// against the matched reminder. Persistence failures here are logged and leave
// state unchanged; staff audit outcome tables periodically.
func (e *Engine) handleReminderMessage(ctx context.Context, msg InboundMessage, matched *store.ReminderRecord, now time.Time) {
	set := e.templates.Reminder()
	body := strings.TrimSpace(msg.Body)
	lower := strings.ToLower(body)

	// Re-fetch immediately before acting so a record superseded between match
	// time and now is never stomped.
	rec, err := e.reminders.FindLatestActiveFor(ctx, matched.ID, matched.PatientFullName, msg.From)
	if err != nil {
		e.logger.Error("failed to refetch reminder", "sender", msg.From, "reminder_id", matched.ID, "error", err)
		return
	}
	if rec == nil {
		e.send(ctx, msg.From, set.Get("noPending").Message)
		return
	}

	vars := map[string]string{
		"contactName":     contactOrPatient(msg.ContactName, rec.PatientFullName),
		"patientFullName": rec.PatientFullName,
		"appointmentDate": templates.SpanishDate(rec.AppointmentDate),
		"doctorName":      rec.DoctorName,
	}

	// A rescheduled patient who was already re-greeted is sending free-text
	// availability: capture it and close the reminder conversation.
	if rec.TaskStatus == store.TaskRescheduled && rec.ReminderState == store.ReminderGreeted {
		e.send(ctx, msg.From, set.Get("thanks").Message)
		if err := e.reminders.UpdateStatus(ctx, rec.ID, store.TaskRescheduled, store.ReminderAnswered); err != nil {
			e.logger.Error("failed to close rescheduled reminder", "reminder_id", rec.ID, "error", err)
			return
		}
		if err := e.outcomes.CreateReschedule(ctx, rec, msg.Body, now); err != nil {
			e.logger.Error("failed to record reschedule availability", "reminder_id", rec.ID, "error", err)
		}
		return
	}

	if strings.Contains(lower, greetingKeyword) {
		e.send(ctx, msg.From, templates.Render(set.Get("welcome").Message, vars))
		e.send(ctx, msg.From, set.Get("welcome").AdditionalMessage)
		if err := e.reminders.UpdateStatus(ctx, rec.ID, rec.TaskStatus, store.ReminderGreeted); err != nil {
			e.logger.Error("failed to mark reminder greeted", "reminder_id", rec.ID, "error", err)
		}
		return
	}

	// Not yet greeted: anything but the greeting gets the unknown reply.
	if rec.TaskStatus == store.TaskPending && rec.ReminderState == store.ReminderNotContacted {
		e.send(ctx, msg.From, set.Get("unknown").Message)
		return
	}

	switch body {
	case "1":
		e.send(ctx, msg.From, templates.Render(set.Get("confirmed").Message, vars))
		e.send(ctx, msg.From, set.Get("confirmed").AdditionalMessage)
		if err := e.reminders.UpdateStatus(ctx, rec.ID, store.TaskConfirmed, store.ReminderAnswered); err != nil {
			e.logger.Error("failed to confirm reminder", "reminder_id", rec.ID, "error", err)
			return
		}
		if err := e.outcomes.CreateConfirmed(ctx, rec, now); err != nil {
			e.logger.Error("failed to record confirmation", "reminder_id", rec.ID, "error", err)
		}

	case "2":
		e.send(ctx, msg.From, set.Get("rescheduled").Message)
		e.send(ctx, msg.From, set.Get("additionalInformation").Message)
		// Greeted, not Answered: the dialogue continues until the patient
		// sends availability.
		if err := e.reminders.UpdateStatus(ctx, rec.ID, store.TaskRescheduled, store.ReminderGreeted); err != nil {
			e.logger.Error("failed to mark reminder rescheduled", "reminder_id", rec.ID, "error", err)
			return
		}
		if err := e.outcomes.CreateReschedule(ctx, rec, msg.Body, now); err != nil {
			e.logger.Error("failed to record reschedule request", "reminder_id", rec.ID, "error", err)
		}

	case "3":
		e.send(ctx, msg.From, set.Get("cancelled").Message)
		e.send(ctx, msg.From, set.Get("cancelled").AdditionalMessage)
		if err := e.reminders.UpdateStatus(ctx, rec.ID, store.TaskCancelled, store.ReminderAnswered); err != nil {
			e.logger.Error("failed to cancel reminder", "reminder_id", rec.ID, "error", err)
			return
		}
		if err := e.outcomes.CreateCancelled(ctx, rec, msg.Body, now); err != nil {
			e.logger.Error("failed to record cancellation", "reminder_id", rec.ID, "error", err)
		}

	default:
		e.send(ctx, msg.From, templates.Render(set.Get("invalid").Message, vars))
		e.send(ctx, msg.From, set.Get("invalid").AdditionalMessage)
	}
}

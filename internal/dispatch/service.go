// Package dispatch fans out the daily reminder batch to patients.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/cesasin/clinic-reminders/internal/engine"
	"github.com/cesasin/clinic-reminders/internal/observability/metrics"
	"github.com/cesasin/clinic-reminders/internal/store"
	"github.com/cesasin/clinic-reminders/internal/templates"
	"github.com/cesasin/clinic-reminders/pkg/logging"
)

// Entry is one appointment in the uploaded daily list.
type Entry struct {
	PatientFullName string   `json:"patient_fullname" validate:"required"`
	Attachment      string   `json:"attachment" validate:"required"`
	Doctor          string   `json:"doctor" validate:"required"`
	Phones          []string `json:"patient_cel" validate:"required,min=1,dive,required"`
}

// User identifies the staff member triggering the batch.
type User struct {
	ID       int64
	Username string
}

// Result summarizes one dispatch run.
type Result struct {
	BatchID string
	Sent    int
	Staged  int
}

// ErrInvalidBatch marks Dispatch failures caused by the submitted entries
// rather than by sending or persistence.
var ErrInvalidBatch = errors.New("dispatch: invalid batch")

// BatchInserter commits staged reminder and audit rows atomically.
type BatchInserter interface {
	InsertBatch(ctx context.Context, reminders []store.ReminderRecord, audits []store.AuditEntry) error
}

// Service renders, sends and records the reminder batch. Sending is
// best-effort per phone; persistence of the whole batch is one transaction.
type Service struct {
	messenger engine.Messenger
	templates *templates.Store
	batches   BatchInserter
	validate  *validator.Validate
	metrics   *metrics.BotMetrics
	logger    *logging.Logger
}

// NewService creates a dispatch service.
func NewService(messenger engine.Messenger, tmpl *templates.Store, batches BatchInserter, m *metrics.BotMetrics, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		messenger: messenger,
		templates: tmpl,
		batches:   batches,
		validate:  validator.New(),
		metrics:   m,
		logger:    logger,
	}
}

// Dispatch sends one reminder per phone of every entry and commits the staged
// rows at the end. A phone whose send fails is skipped and logged; a message
// already delivered is never undone even if the final persistence step fails.
func (s *Service) Dispatch(ctx context.Context, entries []Entry, user User) (Result, error) {
	for i, entry := range entries {
		if err := s.validate.Struct(entry); err != nil {
			return Result{}, fmt.Errorf("%w: entry %d: %v", ErrInvalidBatch, i, err)
		}
	}

	batchID := uuid.NewString()
	welcome := s.templates.Dispatch().Get("welcome")
	options := templates.RenderOptions(welcome.AdditionalMessage, welcome.Options)
	now := time.Now()

	var reminders []store.ReminderRecord
	var audits []store.AuditEntry
	sent := 0

	for _, entry := range entries {
		appointment, timeText, err := ParseAttachment(entry.Attachment)
		if err != nil {
			s.logger.Error("skipping entry with unparseable appointment",
				"batch_id", batchID, "patient", entry.PatientFullName, "attachment", entry.Attachment, "error", err)
			continue
		}

		message := templates.Render(welcome.Message, map[string]string{
			"patient_fullname": entry.PatientFullName,
			"attachment":       templates.SpanishDateWithTimeText(appointment, timeText),
			"doctor":           entry.Doctor,
		})
		full := message
		if options != "" {
			full = message + " " + options
		}

		for _, phone := range entry.Phones {
			if err := s.messenger.Send(ctx, phone, full); err != nil {
				s.logger.Error("failed to send reminder", "batch_id", batchID, "phone", phone, "error", err)
				s.metrics.ObserveDispatch("failed")
				continue
			}
			sent++
			s.metrics.ObserveDispatch("sent")

			reminders = append(reminders, store.ReminderRecord{
				PatientFullName: entry.PatientFullName,
				PatientPhone:    phone,
				Message:         message,
				AppointmentDate: appointment,
				DoctorName:      entry.Doctor,
				TaskStatus:      store.TaskPending,
				ReminderState:   store.ReminderNotContacted,
				CreationDate:    now,
				CreationTime:    now.Format("15:04:05"),
				CreationUser:    user.Username,
			})
			audits = append(audits, store.AuditEntry{
				UserID:     user.ID,
				Action:     fmt.Sprintf("Appointment reminder sent to %s", phone),
				Details:    fmt.Sprintf("Message: %q", message),
				ActionDate: now,
			})
		}
	}

	if err := s.batches.InsertBatch(ctx, reminders, audits); err != nil {
		// Messages already delivered stay delivered; only the records are lost,
		// and the caller learns about it.
		return Result{BatchID: batchID, Sent: sent}, fmt.Errorf("dispatch: persist batch: %w", err)
	}

	s.logger.Info("reminder batch dispatched", "batch_id", batchID, "sent", sent, "staged", len(reminders))
	return Result{BatchID: batchID, Sent: sent, Staged: len(reminders)}, nil
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/cesasin/clinic-reminders/internal/channel"
	"github.com/cesasin/clinic-reminders/internal/dispatch"
	"github.com/cesasin/clinic-reminders/internal/engine"
	"github.com/cesasin/clinic-reminders/internal/store"
	"github.com/cesasin/clinic-reminders/pkg/logging"
)

// Gateway is the channel state the HTTP layer reads.
type Gateway interface {
	Status() channel.Status
	QR() string
	AuthenticatedNumber() string
}

// Dispatcher sends a reminder batch.
type Dispatcher interface {
	Dispatch(ctx context.Context, entries []dispatch.Entry, user dispatch.User) (dispatch.Result, error)
}

// ReminderRescheduler is the reminder-table slice the reschedule endpoints use.
type ReminderRescheduler interface {
	FindRescheduled(ctx context.Context, phone string, id int64) (*store.ReminderRecord, error)
	MarkRescheduleMessageSent(ctx context.Context, id int64) error
}

// ResponseRescheduler is the response-table slice the reschedule endpoints use.
type ResponseRescheduler interface {
	FindReschedulePending(ctx context.Context, phone string, id int64) (*store.PatientResponseRecord, error)
	MarkRescheduleMessageSent(ctx context.Context, id int64) error
	ListReserved(ctx context.Context) ([]store.PatientResponseRecord, error)
}

// RescheduleLister lists the free-text reschedule requests patients sent.
type RescheduleLister interface {
	ListReschedules(ctx context.Context) ([]store.AppointmentReschedule, error)
}

// Auditor records staff actions.
type Auditor interface {
	Create(ctx context.Context, entry store.AuditEntry) error
}

// WhatsAppHandler serves the staff-facing WhatsApp endpoints.
type WhatsAppHandler struct {
	gateway    Gateway
	messenger  engine.Messenger
	dispatcher Dispatcher
	modes      *engine.Modes
	reminders  ReminderRescheduler
	responses  ResponseRescheduler
	outcomes   RescheduleLister
	audits     Auditor
	logger     *logging.Logger
}

// NewWhatsAppHandler creates the handler.
func NewWhatsAppHandler(
	gateway Gateway,
	messenger engine.Messenger,
	dispatcher Dispatcher,
	modes *engine.Modes,
	reminders ReminderRescheduler,
	responses ResponseRescheduler,
	outcomes RescheduleLister,
	audits Auditor,
	logger *logging.Logger,
) *WhatsAppHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WhatsAppHandler{
		gateway:    gateway,
		messenger:  messenger,
		dispatcher: dispatcher,
		modes:      modes,
		reminders:  reminders,
		responses:  responses,
		outcomes:   outcomes,
		audits:     audits,
		logger:     logger,
	}
}

// GetQR returns the pairing QR code while the session is unlinked.
// GET /api/whatsapp/get-qr
func (h *WhatsAppHandler) GetQR(w http.ResponseWriter, r *http.Request) {
	if h.gateway.AuthenticatedNumber() != "" {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Client is already authenticated"})
		return
	}
	if qr := h.gateway.QR(); qr != "" {
		writeJSON(w, http.StatusOK, map[string]string{"qrCode": qr})
		return
	}
	if h.gateway.Status() == channel.StatusReady {
		writeJSON(w, http.StatusOK, map[string]string{"message": "ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Client status unknown"})
}

// GetPhoneNumber returns the linked session's phone number.
// GET /api/whatsapp/phone-number
func (h *WhatsAppHandler) GetPhoneNumber(w http.ResponseWriter, r *http.Request) {
	if number := h.gateway.AuthenticatedNumber(); number != "" {
		writeJSON(w, http.StatusOK, map[string]string{"phoneNumber": number})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Client is not authenticated or phone number is not available",
	})
}

// GetCurrentUser returns the username of the authenticated staff member.
// GET /api/whatsapp/getUser
func (h *WhatsAppHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"currentUser": userFromContext(r).Username})
}

// SendReminders dispatches a JSON batch of appointment reminders.
// POST /api/whatsapp/send-reminders
func (h *WhatsAppHandler) SendReminders(w http.ResponseWriter, r *http.Request) {
	var entries []dispatch.Entry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.dispatchEntries(w, r, entries)
}

// UploadSchedule dispatches reminders from an uploaded .xlsx daily list.
// POST /api/whatsapp/upload-schedule
func (h *WhatsAppHandler) UploadSchedule(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("schedule")
	if err != nil {
		http.Error(w, "missing schedule file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	entries, err := dispatch.ParseSchedule(file)
	if err != nil {
		h.logger.Error("failed to parse schedule upload", "error", err)
		http.Error(w, "invalid schedule file", http.StatusBadRequest)
		return
	}
	h.dispatchEntries(w, r, entries)
}

func (h *WhatsAppHandler) dispatchEntries(w http.ResponseWriter, r *http.Request, entries []dispatch.Entry) {
	result, err := h.dispatcher.Dispatch(r.Context(), entries, userFromContext(r))
	if err != nil {
		h.logger.Error("reminder dispatch failed", "error", err, "sent", result.Sent)
		if result.Sent > 0 {
			// Messages went out but their records did not land.
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"message": "Reminders sent but not all records were saved",
				"sent":    result.Sent,
			})
			return
		}
		if errors.Is(err, dispatch.ErrInvalidBatch) {
			http.Error(w, "invalid reminder batch", http.StatusBadRequest)
			return
		}
		http.Error(w, "failed to save reminder records", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "Reminders sent successfully",
		"batch_id": result.BatchID,
		"sent":     result.Sent,
	})
}

// SetBotStatus flips automatic replies on or off.
// POST /api/whatsapp/set-bot-status
func (h *WhatsAppHandler) SetBotStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.modes.SetBotEnabled(body.Enabled)

	state := "disabled"
	if body.Enabled {
		state = "enabled"
	}
	h.audit(r, fmt.Sprintf("Bot %s", state), "")
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Bot is now %s", state)})
}

// GetRescheduleMessages lists the free-text reschedule requests.
// GET /api/whatsapp/messages-reschedule
func (h *WhatsAppHandler) GetRescheduleMessages(w http.ResponseWriter, r *http.Request) {
	reschedules, err := h.outcomes.ListReschedules(r.Context())
	if err != nil {
		h.logger.Error("failed to list reschedule messages", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Error retrieving reschedule messages"})
		return
	}
	writeJSON(w, http.StatusOK, reschedules)
}

// GetPatientResponses lists conversational sessions that reserved an appointment.
// GET /api/whatsapp/patient-responses
func (h *WhatsAppHandler) GetPatientResponses(w http.ResponseWriter, r *http.Request) {
	responses, err := h.responses.ListReserved(r.Context())
	if err != nil {
		h.logger.Error("failed to list patient responses", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Error retrieving patient responses"})
		return
	}
	writeJSON(w, http.StatusOK, responses)
}

type rescheduledMessageRequest struct {
	PatientID    int64  `json:"patientId"`
	Message      string `json:"message"`
	PatientPhone string `json:"patientPhone"`
}

var nonDigits = regexp.MustCompile(`\D`)

// SendRescheduledMessage sends a staff-composed message to a patient who asked
// to reschedule, and marks the request as answered in both tables.
// POST /api/whatsapp/send-rescheduled-message
func (h *WhatsAppHandler) SendRescheduledMessage(w http.ResponseWriter, r *http.Request) {
	var body rescheduledMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	reminder, err := h.reminders.FindRescheduled(ctx, body.PatientPhone, body.PatientID)
	if err != nil {
		h.logger.Error("failed to look up rescheduled reminder", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Error sending rescheduled message"})
		return
	}
	response, err := h.responses.FindReschedulePending(ctx, body.PatientPhone, body.PatientID)
	if err != nil {
		h.logger.Error("failed to look up reschedule response", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Error sending rescheduled message"})
		return
	}
	if reminder == nil && response == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Patient not found or not eligible for rescheduling"})
		return
	}

	phone := body.PatientPhone
	if reminder != nil {
		phone = reminder.PatientPhone
	} else if response != nil {
		phone = response.PatientPhone
	}
	address := nonDigits.ReplaceAllString(phone, "")
	if !strings.HasSuffix(address, "@c.us") {
		address += "@c.us"
	}

	if err := h.messenger.Send(ctx, address, body.Message); err != nil {
		h.logger.Error("failed to send rescheduled message", "phone", address, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Error sending rescheduled message"})
		return
	}

	if reminder != nil {
		if err := h.reminders.MarkRescheduleMessageSent(ctx, reminder.ID); err != nil {
			h.logger.Error("failed to mark reminder reschedule sent", "id", reminder.ID, "error", err)
		}
	}
	if response != nil {
		if err := h.responses.MarkRescheduleMessageSent(ctx, response.ID); err != nil {
			h.logger.Error("failed to mark response reschedule sent", "id", response.ID, "error", err)
		}
	}
	h.audit(r, "Rescheduled appointment message sent",
		fmt.Sprintf("Message: %q sent to %s", body.Message, phone))

	writeJSON(w, http.StatusOK, map[string]string{"message": "Rescheduled message sent successfully"})
}

func (h *WhatsAppHandler) audit(r *http.Request, action, details string) {
	if h.audits == nil {
		return
	}
	if err := h.audits.Create(r.Context(), auditEntryFor(r, action, details)); err != nil {
		h.logger.Error("failed to write audit row", "action", action, "error", err)
	}
}

package handlers

import (
	"net/http"

	"github.com/cesasin/clinic-reminders/internal/engine"
	"github.com/cesasin/clinic-reminders/pkg/logging"
)

// ModeHandler switches the bot between conversational and reminder mode.
type ModeHandler struct {
	modes  *engine.Modes
	audits Auditor
	logger *logging.Logger
}

// NewModeHandler creates the handler.
func NewModeHandler(modes *engine.Modes, audits Auditor, logger *logging.Logger) *ModeHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ModeHandler{modes: modes, audits: audits, logger: logger}
}

// StartConversation activates conversational mode.
// POST /api/whatsapp-mode/start-conversation
func (h *ModeHandler) StartConversation(w http.ResponseWriter, r *http.Request) {
	h.modes.StartConversationMode()
	h.auditAction(r, "Conversational mode activated")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Modo conversacional activado."})
}

// StartReminder deactivates conversational mode, leaving reminder mode.
// POST /api/whatsapp-mode/start-reminder
func (h *ModeHandler) StartReminder(w http.ResponseWriter, r *http.Request) {
	h.modes.StopConversationMode()
	h.auditAction(r, "Reminder mode activated")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Modo recordatorio activado."})
}

// Status reports which mode is active.
// GET /api/whatsapp-mode/status
func (h *ModeHandler) Status(w http.ResponseWriter, r *http.Request) {
	active := h.modes.ConversationActive()
	message := "El modo recordatorio está activado."
	if active {
		message = "El modo conversacional está activado."
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  message,
		"isActive": active,
	})
}

func (h *ModeHandler) auditAction(r *http.Request, action string) {
	if h.audits == nil {
		return
	}
	entry := auditEntryFor(r, action, "")
	if err := h.audits.Create(r.Context(), entry); err != nil {
		h.logger.Error("failed to write audit row", "action", action, "error", err)
	}
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cesasin/clinic-reminders/internal/auth"
	"github.com/cesasin/clinic-reminders/internal/store"
	"github.com/cesasin/clinic-reminders/pkg/logging"
)

// AuthHandler serves login and registration.
type AuthHandler struct {
	service  *auth.Service
	audits   Auditor
	validate *validator.Validate
	logger   *logging.Logger
}

// NewAuthHandler creates the handler.
func NewAuthHandler(service *auth.Service, audits Auditor, logger *logging.Logger) *AuthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AuthHandler{
		service:  service,
		audits:   audits,
		validate: validator.New(),
		logger:   logger,
	}
}

// Login exchanges credentials for a signed token.
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	token, user, err := h.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
			return
		}
		h.logger.Error("login failed", "username", body.Username, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Login failed"})
		return
	}

	if h.audits != nil {
		entry := store.AuditEntry{
			UserID:     user.ID,
			Action:     "login",
			Details:    "User logged in successfully",
			ActionDate: time.Now(),
		}
		if err := h.audits.Create(r.Context(), entry); err != nil {
			h.logger.Error("failed to write login audit row", "user_id", user.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"access_token": token})
}

// Register creates a staff account.
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var reg auth.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(reg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	user, err := h.service.Register(r.Context(), reg)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUsernameTaken):
			writeJSON(w, http.StatusConflict, map[string]string{"message": "Username already exists"})
		case errors.Is(err, auth.ErrEmailTaken):
			writeJSON(w, http.StatusConflict, map[string]string{"message": "Email already exists"})
		default:
			h.logger.Error("registration failed", "username", reg.Username, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Registration failed"})
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}

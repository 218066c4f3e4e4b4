// Package router wires the HTTP surface: public health/metrics, the auth
// endpoints, and the JWT-guarded staff API.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cesasin/clinic-reminders/internal/http/handlers"
	httpmiddleware "github.com/cesasin/clinic-reminders/internal/http/middleware"
	"github.com/cesasin/clinic-reminders/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	AuthHandler        *handlers.AuthHandler
	WhatsAppHandler    *handlers.WhatsAppHandler
	ModeHandler        *handlers.ModeHandler
	TokenParser        httpmiddleware.TokenParser
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints.
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.AuthHandler != nil {
		r.Route("/api/auth", func(auth chi.Router) {
			auth.Post("/login", cfg.AuthHandler.Login)
			auth.Post("/register", cfg.AuthHandler.Register)
		})
	}

	// Staff endpoints behind the bearer token.
	r.Group(func(private chi.Router) {
		if cfg.TokenParser != nil {
			private.Use(httpmiddleware.JWTAuth(cfg.TokenParser))
		}
		if cfg.WhatsAppHandler != nil {
			private.Route("/api/whatsapp", func(wa chi.Router) {
				wa.Get("/get-qr", cfg.WhatsAppHandler.GetQR)
				wa.Get("/phone-number", cfg.WhatsAppHandler.GetPhoneNumber)
				wa.Get("/getUser", cfg.WhatsAppHandler.GetCurrentUser)
				wa.Post("/send-reminders", cfg.WhatsAppHandler.SendReminders)
				wa.Post("/upload-schedule", cfg.WhatsAppHandler.UploadSchedule)
				wa.Post("/set-bot-status", cfg.WhatsAppHandler.SetBotStatus)
				wa.Get("/messages-reschedule", cfg.WhatsAppHandler.GetRescheduleMessages)
				wa.Get("/patient-responses", cfg.WhatsAppHandler.GetPatientResponses)
				wa.Post("/send-rescheduled-message", cfg.WhatsAppHandler.SendRescheduledMessage)
			})
		}
		if cfg.ModeHandler != nil {
			private.Route("/api/whatsapp-mode", func(mode chi.Router) {
				mode.Post("/start-conversation", cfg.ModeHandler.StartConversation)
				mode.Post("/start-reminder", cfg.ModeHandler.StartReminder)
				mode.Get("/status", cfg.ModeHandler.Status)
			})
		}
	})

	return r
}

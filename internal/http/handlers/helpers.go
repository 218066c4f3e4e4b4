package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cesasin/clinic-reminders/internal/dispatch"
	"github.com/cesasin/clinic-reminders/internal/http/middleware"
	"github.com/cesasin/clinic-reminders/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// userFromContext rebuilds the acting staff user from the JWT claims the auth
// middleware stored. A request without claims yields the zero user.
func userFromContext(r *http.Request) dispatch.User {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return dispatch.User{}
	}
	id, _ := strconv.ParseInt(claims.Subject, 10, 64)
	return dispatch.User{ID: id, Username: claims.Username}
}

func auditEntryFor(r *http.Request, action, details string) store.AuditEntry {
	return store.AuditEntry{
		UserID:     userFromContext(r).ID,
		Action:     action,
		Details:    details,
		ActionDate: time.Now(),
	}
}

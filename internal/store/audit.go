package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AuditStore appends user-action audit rows.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore creates an audit store.
func NewAuditStore(db *sql.DB) *AuditStore {
	if db == nil {
		return nil
	}
	return &AuditStore{db: db}
}

// Create appends one audit entry. A zero ActionDate is filled with now.
func (s *AuditStore) Create(ctx context.Context, entry AuditEntry) error {
	actionDate := entry.ActionDate
	if actionDate.IsZero() {
		actionDate = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_audits (user_id, action, details, ip_address, action_date)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.UserID, entry.Action, entry.Details, entry.IPAddress, actionDate)
	if err != nil {
		return fmt.Errorf("store: create audit entry: %w", err)
	}
	return nil
}

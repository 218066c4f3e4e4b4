package store

import (
	"context"
	"database/sql"
	"fmt"
)

// BatchStore commits the rows staged by a dispatch run in one transaction.
type BatchStore struct {
	db *sql.DB
}

// NewBatchStore creates a batch store.
func NewBatchStore(db *sql.DB) *BatchStore {
	if db == nil {
		return nil
	}
	return &BatchStore{db: db}
}

// InsertBatch inserts every staged reminder row and audit row atomically.
// Message sending happens before this call and is best-effort per phone; the
// persistence step is the all-or-nothing half of the dispatch contract.
func (s *BatchStore) InsertBatch(ctx context.Context, reminders []ReminderRecord, audits []AuditEntry) error {
	if len(reminders) == 0 && len(audits) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertReminders(ctx, tx, reminders); err != nil {
		return err
	}
	if err := insertAudits(ctx, tx, audits); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit batch: %w", err)
	}
	return nil
}

func insertReminders(ctx context.Context, tx *sql.Tx, reminders []ReminderRecord) error {
	for _, rec := range reminders {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO whatsapp_msgs (
				patient_full_name, patient_phone, message, appointment_date,
				doctor_name, task_status, reminder_state,
				creation_date, creation_time, creation_user
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, rec.PatientFullName, rec.PatientPhone, rec.Message, rec.AppointmentDate,
			rec.DoctorName, rec.TaskStatus, rec.ReminderState,
			rec.CreationDate, rec.CreationTime, rec.CreationUser)
		if err != nil {
			return fmt.Errorf("store: insert reminder row: %w", err)
		}
	}
	return nil
}

func insertAudits(ctx context.Context, tx *sql.Tx, audits []AuditEntry) error {
	for _, entry := range audits {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_audits (user_id, action, details, ip_address, action_date)
			VALUES ($1, $2, $3, $4, $5)
		`, entry.UserID, entry.Action, entry.Details, entry.IPAddress, entry.ActionDate)
		if err != nil {
			return fmt.Errorf("store: insert audit row: %w", err)
		}
	}
	return nil
}

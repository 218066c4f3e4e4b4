package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ResponseStore reads and appends conversational-flow lineage rows.
type ResponseStore struct {
	db *sql.DB
}

// NewResponseStore creates a patient response store.
func NewResponseStore(db *sql.DB) *ResponseStore {
	if db == nil {
		return nil
	}
	return &ResponseStore{db: db}
}

const responseColumns = `response_id, patient_full_name, patient_phone, response,
	conversation_state, appointment_reserved, created_at, received_at`

func scanResponse(row *sql.Row) (*PatientResponseRecord, error) {
	var rec PatientResponseRecord
	var receivedAt sql.NullTime
	err := row.Scan(
		&rec.ID, &rec.PatientFullName, &rec.PatientPhone, &rec.Response,
		&rec.ConversationState, &rec.AppointmentReserved, &rec.CreatedAt, &receivedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if receivedAt.Valid {
		rec.ReceivedAt = &receivedAt.Time
	}
	return &rec, nil
}

// FindLatest returns the current lineage row for phone, nil when the sender
// has never written.
func (s *ResponseStore) FindLatest(ctx context.Context, phone string) (*PatientResponseRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+responseColumns+`
		FROM patient_responses
		WHERE patient_phone = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, phone)

	rec, err := scanResponse(row)
	if err != nil {
		return nil, fmt.Errorf("store: find latest patient response: %w", err)
	}
	return rec, nil
}

// Create appends a new lineage row with the given state.
func (s *ResponseStore) Create(ctx context.Context, fullName, phone, response string, state ConversationState, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patient_responses (
			patient_full_name, patient_phone, response, conversation_state,
			appointment_reserved, created_at
		) VALUES ($1, $2, $3, $4, false, $5)
	`, fullName, phone, response, state, now)
	if err != nil {
		return fmt.Errorf("store: create patient response: %w", err)
	}
	return nil
}

// CompleteReservation closes the in-progress row of the lineage (the one still
// at AwaitingMenuChoice) with the patient's final free-text message, marking
// the reservation requested.
func (s *ResponseStore) CompleteReservation(ctx context.Context, fullName, phone, body string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE patient_responses
		SET response = $1, received_at = $2, conversation_state = $3, appointment_reserved = true
		WHERE patient_full_name = $4 AND patient_phone = $5 AND conversation_state = $6
	`, body, now, ConversationTerminal, fullName, phone, ConversationAwaitingChoice)
	if err != nil {
		return fmt.Errorf("store: complete reservation: %w", err)
	}
	return nil
}

// ListReserved returns every response row that ended in a reservation request,
// newest first, for the staff dashboard.
func (s *ResponseStore) ListReserved(ctx context.Context) ([]PatientResponseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+responseColumns+`
		FROM patient_responses
		WHERE appointment_reserved = true
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list reserved responses: %w", err)
	}
	defer rows.Close()

	var records []PatientResponseRecord
	for rows.Next() {
		var rec PatientResponseRecord
		var receivedAt sql.NullTime
		if err := rows.Scan(
			&rec.ID, &rec.PatientFullName, &rec.PatientPhone, &rec.Response,
			&rec.ConversationState, &rec.AppointmentReserved, &rec.CreatedAt, &receivedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan reserved response: %w", err)
		}
		if receivedAt.Valid {
			rec.ReceivedAt = &receivedAt.Time
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// FindReschedulePending returns the response row for phone+id whose patient
// asked to reschedule ("2"), or nil.
func (s *ResponseStore) FindReschedulePending(ctx context.Context, phone string, id int64) (*PatientResponseRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+responseColumns+`
		FROM patient_responses
		WHERE patient_phone = $1 AND response_id = $2 AND response = '2'
	`, phone, id)

	rec, err := scanResponse(row)
	if err != nil {
		return nil, fmt.Errorf("store: find reschedule-pending response: %w", err)
	}
	return rec, nil
}

// MarkRescheduleMessageSent records that staff already replied with a proposed date.
func (s *ResponseStore) MarkRescheduleMessageSent(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE patient_responses SET response = '5' WHERE response_id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("store: mark response reschedule sent: %w", err)
	}
	return nil
}

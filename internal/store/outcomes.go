package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// OutcomeStore appends terminal reminder outcomes to their derived tables.
type OutcomeStore struct {
	db *sql.DB
}

// NewOutcomeStore creates an outcome store.
func NewOutcomeStore(db *sql.DB) *OutcomeStore {
	if db == nil {
		return nil
	}
	return &OutcomeStore{db: db}
}

// CreateConfirmed appends a confirmed-appointment row for the reminder.
func (s *OutcomeStore) CreateConfirmed(ctx context.Context, rec *ReminderRecord, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO confirmed_appointments (
			whatsapp_msg_id, patient_full_name, patient_phone, doctor_name,
			appointment_date, confirmation_date, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, rec.ID, rec.PatientFullName, rec.PatientPhone, rec.DoctorName, rec.AppointmentDate, now)
	if err != nil {
		return fmt.Errorf("store: create confirmed appointment: %w", err)
	}
	return nil
}

// CreateCancelled appends a cancelled-appointment row. An empty reason is
// stored as "No especificado".
func (s *OutcomeStore) CreateCancelled(ctx context.Context, rec *ReminderRecord, reason string, now time.Time) error {
	if reason == "" {
		reason = "No especificado"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cancelled_appointments (
			whatsapp_msg_id, patient_full_name, patient_phone, doctor_name, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.ID, rec.PatientFullName, rec.PatientPhone, rec.DoctorName, reason, now)
	if err != nil {
		return fmt.Errorf("store: create cancelled appointment: %w", err)
	}
	return nil
}

// CreateReschedule appends a reschedule row carrying the patient's free-text
// availability message.
func (s *OutcomeStore) CreateReschedule(ctx context.Context, rec *ReminderRecord, message string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO appointment_reschedules (
			whatsapp_msg_id, patient_full_name, patient_phone, doctor_name,
			message, confirmed, created_at
		) VALUES ($1, $2, $3, $4, $5, false, $6)
	`, rec.ID, rec.PatientFullName, rec.PatientPhone, rec.DoctorName, message, now)
	if err != nil {
		return fmt.Errorf("store: create appointment reschedule: %w", err)
	}
	return nil
}

// ListReschedules returns every reschedule request, newest first.
func (s *OutcomeStore) ListReschedules(ctx context.Context) ([]AppointmentReschedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT reschedule_id, whatsapp_msg_id, patient_full_name, patient_phone,
		       doctor_name, message, confirmed, created_at
		FROM appointment_reschedules
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list reschedules: %w", err)
	}
	defer rows.Close()

	var records []AppointmentReschedule
	for rows.Next() {
		var rec AppointmentReschedule
		if err := rows.Scan(
			&rec.ID, &rec.ReminderID, &rec.PatientFullName, &rec.PatientPhone,
			&rec.DoctorName, &rec.Message, &rec.Confirmed, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan reschedule: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListConfirmed returns every confirmed appointment, newest first.
func (s *OutcomeStore) ListConfirmed(ctx context.Context) ([]ConfirmedAppointment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT confirmation_id, whatsapp_msg_id, patient_full_name, patient_phone,
		       doctor_name, appointment_date, confirmation_date, created_at
		FROM confirmed_appointments
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list confirmed appointments: %w", err)
	}
	defer rows.Close()

	var records []ConfirmedAppointment
	for rows.Next() {
		var rec ConfirmedAppointment
		if err := rows.Scan(
			&rec.ID, &rec.ReminderID, &rec.PatientFullName, &rec.PatientPhone,
			&rec.DoctorName, &rec.AppointmentDate, &rec.ConfirmationDate, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan confirmed appointment: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListCancelled returns every cancelled appointment, newest first.
func (s *OutcomeStore) ListCancelled(ctx context.Context) ([]CancelledAppointment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cancellation_id, whatsapp_msg_id, patient_full_name, patient_phone,
		       doctor_name, reason, created_at
		FROM cancelled_appointments
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list cancelled appointments: %w", err)
	}
	defer rows.Close()

	var records []CancelledAppointment
	for rows.Next() {
		var rec CancelledAppointment
		if err := rows.Scan(
			&rec.ID, &rec.ReminderID, &rec.PatientFullName, &rec.PatientPhone,
			&rec.DoctorName, &rec.Reason, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan cancelled appointment: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

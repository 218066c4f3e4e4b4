package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ReminderStore reads and mutates dispatched reminder rows.
type ReminderStore struct {
	db *sql.DB
}

// NewReminderStore creates a reminder store.
func NewReminderStore(db *sql.DB) *ReminderStore {
	if db == nil {
		return nil
	}
	return &ReminderStore{db: db}
}

const reminderColumns = `whatsapp_msg_id, patient_full_name, patient_phone, message,
	appointment_date, doctor_name, task_status, reminder_state,
	creation_date, creation_time, creation_user`

func scanReminder(row *sql.Row) (*ReminderRecord, error) {
	var rec ReminderRecord
	err := row.Scan(
		&rec.ID, &rec.PatientFullName, &rec.PatientPhone, &rec.Message,
		&rec.AppointmentDate, &rec.DoctorName, &rec.TaskStatus, &rec.ReminderState,
		&rec.CreationDate, &rec.CreationTime, &rec.CreationUser,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindLatestActive returns the most recent reminder for phone that is still
// answerable: task pending or rescheduled, not yet answered, appointment in the
// future relative to now. Older reminders for the same patient are implicitly
// abandoned once a newer dispatch supersedes them.
func (s *ReminderStore) FindLatestActive(ctx context.Context, phone string, now time.Time) (*ReminderRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+reminderColumns+`
		FROM whatsapp_msgs
		WHERE patient_phone = $1
		  AND task_status IN ($2, $3)
		  AND reminder_state <> $4
		  AND appointment_date > $5
		ORDER BY creation_date DESC
		LIMIT 1
	`, phone, TaskPending, TaskRescheduled, ReminderAnswered, now)

	rec, err := scanReminder(row)
	if err != nil {
		return nil, fmt.Errorf("store: find latest active reminder: %w", err)
	}
	return rec, nil
}

// FindLatestActiveFor re-fetches the latest reminder matching the identity the
// flow matched earlier (id, full name, phone) that is still pending or
// rescheduled. The reminder flow calls this immediately before every write so
// it never stomps a row superseded between match time and write time.
func (s *ReminderStore) FindLatestActiveFor(ctx context.Context, id int64, fullName, phone string) (*ReminderRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+reminderColumns+`
		FROM whatsapp_msgs
		WHERE whatsapp_msg_id = $1
		  AND patient_full_name = $2
		  AND patient_phone = $3
		  AND task_status IN ($4, $5)
		ORDER BY creation_date DESC
		LIMIT 1
	`, id, fullName, phone, TaskPending, TaskRescheduled)

	rec, err := scanReminder(row)
	if err != nil {
		return nil, fmt.Errorf("store: refetch reminder: %w", err)
	}
	return rec, nil
}

// UpdateStatus writes the task status and reminder state together; the pair is
// never updated independently.
func (s *ReminderStore) UpdateStatus(ctx context.Context, id int64, task TaskStatus, reminder ReminderState) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE whatsapp_msgs
		SET task_status = $1, reminder_state = $2
		WHERE whatsapp_msg_id = $3
	`, task, reminder, id)
	if err != nil {
		return fmt.Errorf("store: update reminder status: %w", err)
	}
	return nil
}

// FindRescheduled returns the reminder for phone+id awaiting a staff-composed
// reschedule message, or nil when none qualifies.
func (s *ReminderStore) FindRescheduled(ctx context.Context, phone string, id int64) (*ReminderRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+reminderColumns+`
		FROM whatsapp_msgs
		WHERE patient_phone = $1 AND whatsapp_msg_id = $2 AND task_status = $3
	`, phone, id, TaskRescheduled)

	rec, err := scanReminder(row)
	if err != nil {
		return nil, fmt.Errorf("store: find rescheduled reminder: %w", err)
	}
	return rec, nil
}

// MarkRescheduleMessageSent flags the reminder after staff sent the patient a
// new proposed date.
func (s *ReminderStore) MarkRescheduleMessageSent(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE whatsapp_msgs SET task_status = $1 WHERE whatsapp_msg_id = $2
	`, TaskRescheduleMessageSent, id)
	if err != nil {
		return fmt.Errorf("store: mark reschedule message sent: %w", err)
	}
	return nil
}

// Package store persists reminder, response, outcome and audit records to PostgreSQL.
package store

import "time"

// TaskStatus tracks the appointment outcome on a dispatched reminder.
type TaskStatus int

const (
	TaskPending               TaskStatus = 0
	TaskConfirmed             TaskStatus = 1
	TaskRescheduled           TaskStatus = 2
	TaskCancelled             TaskStatus = 3
	TaskRescheduleMessageSent TaskStatus = 5
)

// ReminderState tracks how far the reminder conversation itself has progressed,
// independent of the task status.
type ReminderState int

const (
	ReminderNotContacted ReminderState = 0
	ReminderGreeted      ReminderState = 1
	ReminderAnswered     ReminderState = 2
)

// ConversationState is the conversational-flow position of a patient response lineage.
type ConversationState int

const (
	ConversationStart          ConversationState = 0
	ConversationAwaitingChoice ConversationState = 1
	ConversationTerminal       ConversationState = 2
)

// ReminderRecord is one dispatched reminder for a patient+appointment+phone combination.
type ReminderRecord struct {
	ID              int64         `json:"id"`
	PatientFullName string        `json:"patient_full_name"`
	PatientPhone    string        `json:"patient_phone"`
	Message         string        `json:"message"`
	AppointmentDate time.Time     `json:"appointment_date"`
	DoctorName      string        `json:"doctor_name"`
	TaskStatus      TaskStatus    `json:"task_status"`
	ReminderState   ReminderState `json:"reminder_state"`
	CreationDate    time.Time     `json:"creation_date"`
	CreationTime    string        `json:"creation_time"`
	CreationUser    string        `json:"creation_user"`
}

// PatientResponseRecord is one row in a conversational-flow lineage; the
// current state of a sender is the most recent row by created_at.
type PatientResponseRecord struct {
	ID                  int64             `json:"id"`
	PatientFullName     string            `json:"patient_full_name"`
	PatientPhone        string            `json:"patient_phone"`
	Response            string            `json:"response"`
	ConversationState   ConversationState `json:"conversation_state"`
	AppointmentReserved bool              `json:"appointment_reserved"`
	CreatedAt           time.Time         `json:"created_at"`
	ReceivedAt          *time.Time        `json:"received_at,omitempty"`
}

// ConfirmedAppointment is the append-only outcome row for a confirmed reminder.
type ConfirmedAppointment struct {
	ID               int64     `json:"id"`
	ReminderID       int64     `json:"reminder_id"`
	PatientFullName  string    `json:"patient_full_name"`
	PatientPhone     string    `json:"patient_phone"`
	DoctorName       string    `json:"doctor_name"`
	AppointmentDate  time.Time `json:"appointment_date"`
	ConfirmationDate time.Time `json:"confirmation_date"`
	CreatedAt        time.Time `json:"created_at"`
}

// CancelledAppointment is the append-only outcome row for a cancelled reminder.
type CancelledAppointment struct {
	ID              int64     `json:"id"`
	ReminderID      int64     `json:"reminder_id"`
	PatientFullName string    `json:"patient_full_name"`
	PatientPhone    string    `json:"patient_phone"`
	DoctorName      string    `json:"doctor_name"`
	Reason          string    `json:"reason"`
	CreatedAt       time.Time `json:"created_at"`
}

// AppointmentReschedule is the append-only outcome row for a reschedule request.
// Message carries the patient's free-text availability.
type AppointmentReschedule struct {
	ID              int64     `json:"id"`
	ReminderID      int64     `json:"reminder_id"`
	PatientFullName string    `json:"patient_full_name"`
	PatientPhone    string    `json:"patient_phone"`
	DoctorName      string    `json:"doctor_name"`
	Message         string    `json:"message"`
	Confirmed       bool      `json:"confirmed"`
	CreatedAt       time.Time `json:"created_at"`
}

// AuditEntry records a staff or lifecycle action.
type AuditEntry struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Action     string    `json:"action"`
	Details    string    `json:"details"`
	IPAddress  string    `json:"ip_address"`
	ActionDate time.Time `json:"action_date"`
}

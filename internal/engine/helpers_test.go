package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cesasin/clinic-reminders/internal/store"
	"github.com/cesasin/clinic-reminders/internal/templates"
	"github.com/cesasin/clinic-reminders/pkg/logging"
)

const (
	testSender  = "5492611111111@c.us"
	testPatient = "Ana García"
	testDoctor  = "Dr. Pérez"
)

var errStore = errors.New("store unavailable")

type fakeMessenger struct {
	sent []string
	to   []string
	err  error
}

func (f *fakeMessenger) Send(_ context.Context, to, text string) error {
	if f.err != nil {
		return f.err
	}
	f.to = append(f.to, to)
	f.sent = append(f.sent, text)
	return nil
}

type statusWrite struct {
	id       int64
	task     store.TaskStatus
	reminder store.ReminderState
}

type fakeReminderRepo struct {
	active  *store.ReminderRecord
	refetch *store.ReminderRecord
	findErr error
	updates []statusWrite
}

func (f *fakeReminderRepo) FindLatestActive(context.Context, string, time.Time) (*store.ReminderRecord, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.active, nil
}

func (f *fakeReminderRepo) FindLatestActiveFor(context.Context, int64, string, string) (*store.ReminderRecord, error) {
	if f.refetch != nil {
		return f.refetch, nil
	}
	return f.active, nil
}

func (f *fakeReminderRepo) UpdateStatus(_ context.Context, id int64, task store.TaskStatus, reminder store.ReminderState) error {
	f.updates = append(f.updates, statusWrite{id: id, task: task, reminder: reminder})
	return nil
}

type responseWrite struct {
	fullName string
	phone    string
	response string
	state    store.ConversationState
}

type fakeResponseRepo struct {
	latest       *store.PatientResponseRecord
	findErr      error
	created      []responseWrite
	reservations []string
}

func (f *fakeResponseRepo) FindLatest(context.Context, string) (*store.PatientResponseRecord, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	// A just-created row becomes the latest, mirroring the append-then-refetch
	// the engine performs on session expiry.
	if n := len(f.created); n > 0 {
		last := f.created[n-1]
		return &store.PatientResponseRecord{
			PatientFullName:   last.fullName,
			PatientPhone:      last.phone,
			Response:          last.response,
			ConversationState: last.state,
			CreatedAt:         time.Now(),
		}, nil
	}
	return f.latest, nil
}

func (f *fakeResponseRepo) Create(_ context.Context, fullName, phone, response string, state store.ConversationState, _ time.Time) error {
	f.created = append(f.created, responseWrite{fullName: fullName, phone: phone, response: response, state: state})
	return nil
}

func (f *fakeResponseRepo) CompleteReservation(_ context.Context, _, _, body string, _ time.Time) error {
	f.reservations = append(f.reservations, body)
	return nil
}

type fakeOutcomeRepo struct {
	confirmed   []int64
	cancelled   []string
	reschedules []string
}

func (f *fakeOutcomeRepo) CreateConfirmed(_ context.Context, rec *store.ReminderRecord, _ time.Time) error {
	f.confirmed = append(f.confirmed, rec.ID)
	return nil
}

func (f *fakeOutcomeRepo) CreateCancelled(_ context.Context, _ *store.ReminderRecord, reason string, _ time.Time) error {
	f.cancelled = append(f.cancelled, reason)
	return nil
}

func (f *fakeOutcomeRepo) CreateReschedule(_ context.Context, _ *store.ReminderRecord, message string, _ time.Time) error {
	f.reschedules = append(f.reschedules, message)
	return nil
}

func testTemplates(t *testing.T) *templates.Store {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"conversational-responses.json": `{
			"welcome": {"message": "Bienvenido"},
			"option1": {"message": "Informacion"},
			"option2": {"message": "Turnos"},
			"unknown": {"message": "No entendimos"},
			"unknownOption": {"message": "Opcion invalida"},
			"wait": {"message": "Por favor espera"},
			"error": {"message": "Intenta de nuevo mas tarde"}
		}`,
		"reminder-responses.json": `{
			"welcome": {"message": "Hola {contactName}, turno de {patientFullName} el {appointmentDate} con {doctorName}", "additionalMessage": "1 confirmar 2 reprogramar 3 cancelar"},
			"confirmed": {"message": "Confirmado {patientFullName}", "additionalMessage": "Te esperamos"},
			"rescheduled": {"message": "Vamos a reprogramar"},
			"additionalInformation": {"message": "Indicanos tu disponibilidad"},
			"thanks": {"message": "Gracias, registramos tu disponibilidad"},
			"cancelled": {"message": "Turno cancelado", "additionalMessage": "Gracias"},
			"invalid": {"message": "Respuesta invalida de {contactName}", "additionalMessage": "1, 2 o 3"},
			"unknown": {"message": "Escribi hola"},
			"noPending": {"message": "No hay recordatorios pendientes."}
		}`,
		"reminder-message.json": `{"welcome": {"message": "Recordatorio"}}`,
		"phone-list.json":       `{"phones": {"blocked": "5492619999999"}}`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return templates.NewStore(dir, logging.Default())
}

type testEngine struct {
	engine    *Engine
	reminders *fakeReminderRepo
	responses *fakeResponseRepo
	outcomes  *fakeOutcomeRepo
	messenger *fakeMessenger
	modes     *Modes
	locker    *MapLocker
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	te := &testEngine{
		reminders: &fakeReminderRepo{},
		responses: &fakeResponseRepo{},
		outcomes:  &fakeOutcomeRepo{},
		messenger: &fakeMessenger{},
		modes:     NewModes(true, true),
		locker:    NewMapLocker(),
	}
	te.engine = New(
		te.reminders, te.responses, te.outcomes, te.messenger,
		testTemplates(t), te.modes, te.locker,
		Config{MaxConversationTime: 30 * time.Minute, HandlerTimeout: 5 * time.Second, SenderLockTTL: 10 * time.Second},
		nil, logging.Default(),
	)
	return te
}

func activeReminder(state store.ReminderState, task store.TaskStatus) *store.ReminderRecord {
	return &store.ReminderRecord{
		ID:              7,
		PatientFullName: testPatient,
		PatientPhone:    testSender,
		DoctorName:      testDoctor,
		AppointmentDate: time.Date(2024, time.March, 5, 14, 30, 0, 0, time.UTC),
		TaskStatus:      task,
		ReminderState:   state,
	}
}

func inbound(body string) InboundMessage {
	return InboundMessage{
		From:        testSender,
		Body:        body,
		ContactName: "Ana",
		ReceivedAt:  time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC),
	}
}

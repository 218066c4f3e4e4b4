package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesasin/clinic-reminders/internal/auth"
	"github.com/cesasin/clinic-reminders/internal/channel"
	"github.com/cesasin/clinic-reminders/internal/dispatch"
	"github.com/cesasin/clinic-reminders/internal/engine"
	"github.com/cesasin/clinic-reminders/internal/http/middleware"
	"github.com/cesasin/clinic-reminders/internal/store"
	"github.com/cesasin/clinic-reminders/pkg/logging"
)

type fakeGateway struct {
	status channel.Status
	qr     string
	number string
}

func (g *fakeGateway) Status() channel.Status      { return g.status }
func (g *fakeGateway) QR() string                  { return g.qr }
func (g *fakeGateway) AuthenticatedNumber() string { return g.number }

type fakeSender struct {
	sent map[string]string
	err  error
}

func (s *fakeSender) Send(_ context.Context, to, text string) error {
	if s.err != nil {
		return s.err
	}
	if s.sent == nil {
		s.sent = map[string]string{}
	}
	s.sent[to] = text
	return nil
}

type fakeDispatcher struct {
	entries []dispatch.Entry
	user    dispatch.User
	result  dispatch.Result
	err     error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, entries []dispatch.Entry, user dispatch.User) (dispatch.Result, error) {
	d.entries = entries
	d.user = user
	return d.result, d.err
}

type fakeReminderResched struct {
	found  *store.ReminderRecord
	err    error
	marked []int64
}

func (f *fakeReminderResched) FindRescheduled(_ context.Context, phone string, id int64) (*store.ReminderRecord, error) {
	return f.found, f.err
}

func (f *fakeReminderResched) MarkRescheduleMessageSent(_ context.Context, id int64) error {
	f.marked = append(f.marked, id)
	return nil
}

type fakeResponseResched struct {
	found    *store.PatientResponseRecord
	reserved []store.PatientResponseRecord
	err      error
	marked   []int64
}

func (f *fakeResponseResched) FindReschedulePending(_ context.Context, phone string, id int64) (*store.PatientResponseRecord, error) {
	return f.found, f.err
}

func (f *fakeResponseResched) MarkRescheduleMessageSent(_ context.Context, id int64) error {
	f.marked = append(f.marked, id)
	return nil
}

func (f *fakeResponseResched) ListReserved(_ context.Context) ([]store.PatientResponseRecord, error) {
	return f.reserved, f.err
}

type fakeLister struct {
	reschedules []store.AppointmentReschedule
	err         error
}

func (f *fakeLister) ListReschedules(_ context.Context) ([]store.AppointmentReschedule, error) {
	return f.reschedules, f.err
}

type fakeAudits struct {
	entries []store.AuditEntry
}

func (f *fakeAudits) Create(_ context.Context, entry store.AuditEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

type whatsappFixture struct {
	handler    *WhatsAppHandler
	gateway    *fakeGateway
	sender     *fakeSender
	dispatcher *fakeDispatcher
	reminders  *fakeReminderResched
	responses  *fakeResponseResched
	lister     *fakeLister
	audits     *fakeAudits
	modes      *engine.Modes
}

func newWhatsAppFixture() *whatsappFixture {
	f := &whatsappFixture{
		gateway:    &fakeGateway{status: channel.StatusDisconnected},
		sender:     &fakeSender{},
		dispatcher: &fakeDispatcher{},
		reminders:  &fakeReminderResched{},
		responses:  &fakeResponseResched{},
		lister:     &fakeLister{},
		audits:     &fakeAudits{},
		modes:      engine.NewModes(true, false),
	}
	f.handler = NewWhatsAppHandler(
		f.gateway, f.sender, f.dispatcher, f.modes,
		f.reminders, f.responses, f.lister, f.audits,
		logging.Default(),
	)
	return f
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGetQRStates(t *testing.T) {
	f := newWhatsAppFixture()

	f.gateway.qr = "qr-data"
	f.gateway.status = channel.StatusWaitingQR
	rec := httptest.NewRecorder()
	f.handler.GetQR(rec, httptest.NewRequest(http.MethodGet, "/api/whatsapp/get-qr", nil))
	assert.Equal(t, "qr-data", decodeBody(t, rec)["qrCode"])

	f.gateway.qr = ""
	f.gateway.status = channel.StatusReady
	rec = httptest.NewRecorder()
	f.handler.GetQR(rec, httptest.NewRequest(http.MethodGet, "/api/whatsapp/get-qr", nil))
	assert.Equal(t, "ready", decodeBody(t, rec)["message"])

	f.gateway.number = "5492610000000"
	rec = httptest.NewRecorder()
	f.handler.GetQR(rec, httptest.NewRequest(http.MethodGet, "/api/whatsapp/get-qr", nil))
	assert.Equal(t, "Client is already authenticated", decodeBody(t, rec)["message"])
}

func TestGetPhoneNumber(t *testing.T) {
	f := newWhatsAppFixture()

	rec := httptest.NewRecorder()
	f.handler.GetPhoneNumber(rec, httptest.NewRequest(http.MethodGet, "/api/whatsapp/phone-number", nil))
	assert.Contains(t, decodeBody(t, rec)["message"], "not authenticated")

	f.gateway.number = "5492610000000"
	rec = httptest.NewRecorder()
	f.handler.GetPhoneNumber(rec, httptest.NewRequest(http.MethodGet, "/api/whatsapp/phone-number", nil))
	assert.Equal(t, "5492610000000", decodeBody(t, rec)["phoneNumber"])
}

func TestSendRemindersDispatchesBatch(t *testing.T) {
	f := newWhatsAppFixture()
	f.dispatcher.result = dispatch.Result{BatchID: "batch-1", Sent: 2, Staged: 2}

	payload := `[{"patient_fullname":"Ana García","attachment":"2024-03-05 at 14:30hs","doctor":"Dr. Pérez","patient_cel":["5492611111111"]}]`
	req := httptest.NewRequest(http.MethodPost, "/api/whatsapp/send-reminders", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	f.handler.SendReminders(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Reminders sent successfully", decodeBody(t, rec)["status"])
	require.Len(t, f.dispatcher.entries, 1)
	assert.Equal(t, "Ana García", f.dispatcher.entries[0].PatientFullName)
}

func TestSendRemindersPersistFailureStillReportsSent(t *testing.T) {
	f := newWhatsAppFixture()
	f.dispatcher.result = dispatch.Result{BatchID: "batch-1", Sent: 3}
	f.dispatcher.err = errors.New("db down")

	req := httptest.NewRequest(http.MethodPost, "/api/whatsapp/send-reminders", bytes.NewBufferString(`[]`))
	rec := httptest.NewRecorder()
	f.handler.SendReminders(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, float64(3), decodeBody(t, rec)["sent"])
}

func TestSendRemindersRejectsInvalidBatch(t *testing.T) {
	f := newWhatsAppFixture()
	f.dispatcher.err = fmt.Errorf("%w: entry 0: missing doctor", dispatch.ErrInvalidBatch)

	req := httptest.NewRequest(http.MethodPost, "/api/whatsapp/send-reminders", bytes.NewBufferString(`[{}]`))
	rec := httptest.NewRecorder()
	f.handler.SendReminders(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendRemindersPersistFailureWithoutSendsIsServerError(t *testing.T) {
	f := newWhatsAppFixture()
	f.dispatcher.err = errors.New("db down")

	req := httptest.NewRequest(http.MethodPost, "/api/whatsapp/send-reminders", bytes.NewBufferString(`[]`))
	rec := httptest.NewRecorder()
	f.handler.SendReminders(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetCurrentUser(t *testing.T) {
	f := newWhatsAppFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/whatsapp/getUser", nil)
	claims := &auth.Claims{Username: "operador"}
	claims.Subject = "3"
	req = req.WithContext(middleware.WithClaims(req.Context(), claims))
	rec := httptest.NewRecorder()
	f.handler.GetCurrentUser(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "operador", decodeBody(t, rec)["currentUser"])
}

func TestSetBotStatus(t *testing.T) {
	f := newWhatsAppFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/whatsapp/set-bot-status", bytes.NewBufferString(`{"enabled":false}`))
	rec := httptest.NewRecorder()
	f.handler.SetBotStatus(rec, req)

	assert.Equal(t, "Bot is now disabled", decodeBody(t, rec)["message"])
	assert.False(t, f.modes.BotEnabled())
	require.Len(t, f.audits.entries, 1)
	assert.Equal(t, "Bot disabled", f.audits.entries[0].Action)
}

func TestGetRescheduleMessages(t *testing.T) {
	f := newWhatsAppFixture()
	f.lister.reschedules = []store.AppointmentReschedule{{ID: 1, PatientFullName: "Ana García", Message: "puedo el jueves"}}

	rec := httptest.NewRecorder()
	f.handler.GetRescheduleMessages(rec, httptest.NewRequest(http.MethodGet, "/api/whatsapp/messages-reschedule", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var got []store.AppointmentReschedule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "puedo el jueves", got[0].Message)
}

func TestGetPatientResponses(t *testing.T) {
	f := newWhatsAppFixture()
	f.responses.reserved = []store.PatientResponseRecord{{ID: 4, PatientPhone: "5492611111111@c.us", AppointmentReserved: true}}

	rec := httptest.NewRecorder()
	f.handler.GetPatientResponses(rec, httptest.NewRequest(http.MethodGet, "/api/whatsapp/patient-responses", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var got []store.PatientResponseRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.True(t, got[0].AppointmentReserved)
}

func TestSendRescheduledMessage(t *testing.T) {
	f := newWhatsAppFixture()
	f.reminders.found = &store.ReminderRecord{
		ID: 7, PatientPhone: "+54 9 261 111-1111", TaskStatus: store.TaskRescheduled,
		AppointmentDate: time.Date(2024, time.March, 5, 14, 30, 0, 0, time.Local),
	}
	f.responses.found = &store.PatientResponseRecord{ID: 12, PatientPhone: "5492611111111@c.us", Response: "2"}

	payload := `{"patientId":7,"patientPhone":"+54 9 261 111-1111","message":"Le ofrecemos el jueves a las 10"}`
	req := httptest.NewRequest(http.MethodPost, "/api/whatsapp/send-rescheduled-message", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	f.handler.SendRescheduledMessage(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	// Non-digits are stripped and the channel suffix appended.
	assert.Contains(t, f.sender.sent, "5492611111111@c.us")
	assert.Equal(t, []int64{7}, f.reminders.marked)
	assert.Equal(t, []int64{12}, f.responses.marked)
	require.Len(t, f.audits.entries, 1)
	assert.Equal(t, "Rescheduled appointment message sent", f.audits.entries[0].Action)
}

func TestSendRescheduledMessageNotFound(t *testing.T) {
	f := newWhatsAppFixture()

	payload := `{"patientId":7,"patientPhone":"5492611111111","message":"hola"}`
	req := httptest.NewRequest(http.MethodPost, "/api/whatsapp/send-rescheduled-message", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	f.handler.SendRescheduledMessage(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, f.sender.sent)
}

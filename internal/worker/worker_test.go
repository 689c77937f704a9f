package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
	"github.com/webdoc-rokib/visa-track-sub000/internal/reminders"
	"github.com/webdoc-rokib/visa-track-sub000/internal/store"
)

type fakeStore struct {
	offset        int64
	events        []store.FileEvent
	files         map[string]models.File
	notifications map[string]*models.Notification
	dlq           []string
	updatedOffset int64
}

func newFakeStore(events ...store.FileEvent) *fakeStore {
	return &fakeStore{events: events, files: map[string]models.File{}, notifications: map[string]*models.Notification{}}
}

func (f *fakeStore) ListFileEvents(ctx context.Context, fileID string) ([]store.FileEvent, error) {
	return nil, nil
}

func (f *fakeStore) ListEventsAfter(ctx context.Context, position int64, limit int) ([]store.FileEvent, error) {
	var out []store.FileEvent
	for _, e := range f.events {
		if e.Position > position && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) GetOffset(ctx context.Context, consumer string) (int64, error) {
	return f.offset, nil
}

func (f *fakeStore) UpdateOffset(ctx context.Context, consumer string, position int64) error {
	f.updatedOffset = position
	f.offset = position
	return nil
}

func (f *fakeStore) InsertNotification(ctx context.Context, n models.Notification) error {
	f.notifications[n.NotificationID] = &n
	return nil
}

func (f *fakeStore) MarkNotificationSent(ctx context.Context, id string) error {
	n := f.notifications[id]
	n.Status = models.NotificationSent
	n.Attempts++
	return nil
}

func (f *fakeStore) MarkNotificationFailed(ctx context.Context, id, lastError string) (int, error) {
	n := f.notifications[id]
	n.Status = models.NotificationFailed
	n.LastError = lastError
	n.Attempts++
	return n.Attempts, nil
}

func (f *fakeStore) InsertDLQ(ctx context.Context, id, reason string) error {
	f.dlq = append(f.dlq, id)
	return nil
}

func (f *fakeStore) ListNotifications(ctx context.Context, recipient string, limit int) ([]models.Notification, error) {
	return nil, nil
}

func (f *fakeStore) GetFile(ctx context.Context, fileID string) (models.File, bool, error) {
	file, ok := f.files[fileID]
	if !ok {
		return models.File{}, false, store.ErrFileNotFound
	}
	return file, true, nil
}

type fakePublisher struct {
	published []store.FileEvent
	err       error
}

func (p *fakePublisher) Publish(ctx context.Context, batch []store.FileEvent) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, batch...)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeSchedule struct {
	set       map[string]string
	cancelled []string
	due       []reminders.Reminder
}

func (s *fakeSchedule) Set(ctx context.Context, fileID, date string) error {
	s.set[fileID] = date
	return nil
}

func (s *fakeSchedule) Cancel(ctx context.Context, fileID string) error {
	delete(s.set, fileID)
	s.cancelled = append(s.cancelled, fileID)
	return nil
}

func (s *fakeSchedule) Claim(ctx context.Context, now time.Time, limit int) ([]reminders.Reminder, error) {
	due := s.due
	s.due = nil
	return due, nil
}

type recordingProvider struct {
	sent []string
	err  error
}

func (p *recordingProvider) Send(ctx context.Context, message, recipient string) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, recipient+": "+message)
	return nil
}

func ledgerEvent(t *testing.T, position int64, eventType string, payload store.EventPayload) store.FileEvent {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return store.FileEvent{Position: position, FileID: payload.FileID, Type: eventType, Payload: raw}
}

func approvedPayload() store.EventPayload {
	return store.EventPayload{
		FileID:        "VT-00042",
		ApplicantName: "Jane Doe",
		Status:        models.StatusDone,
		VisaResult:    models.ResultApproved,
		AssignedTo:    "Pavel",
		CreatedBy:     "Sara",
		Entry:         &models.HistoryEntry{Kind: models.EntryStatus, PerformedBy: "Pavel"},
	}
}

func TestRenderTemplate(t *testing.T) {
	payload := store.EventPayload{FileID: "VT-00042", ApplicantName: "Jane Doe", Status: models.StatusDocsPending, ReminderDate: "2026-03-10"}
	got := renderTemplate(defaultTemplates[TemplateReminder], payload)
	want := "Reminder for file VT-00042 (Jane Doe) due 2026-03-10. Current status: Documents Pending."
	if got != want {
		t.Fatalf("unexpected template render: %s", got)
	}
}

func TestTemplateForEvent(t *testing.T) {
	cases := []struct {
		eventType string
		payload   store.EventPayload
		want      string
	}{
		{store.EventFileHandover, store.EventPayload{Status: models.StatusHandoverProcessing}, TemplateHandover},
		{store.EventFileStatus, store.EventPayload{Status: models.StatusSubmitted}, TemplateSubmitted},
		{store.EventFileStatus, store.EventPayload{Status: models.StatusDone, VisaResult: models.ResultApproved}, TemplateApproved},
		{store.EventFileStatus, store.EventPayload{Status: models.StatusDone, VisaResult: models.ResultRejected}, TemplateRejected},
		{store.EventFileStatus, store.EventPayload{Status: models.StatusHandoverProcessing}, TemplateHandover},
		{store.EventFileStatus, store.EventPayload{Status: models.StatusDocsPending}, ""},
		{store.EventFileNote, store.EventPayload{Status: models.StatusSubmitted}, ""},
		{store.EventFileCreated, store.EventPayload{Status: models.StatusReceivedSales}, ""},
	}
	for _, tt := range cases {
		if got := templateForEvent(tt.eventType, tt.payload); got != tt.want {
			t.Fatalf("templateForEvent(%s, %s)=%q, want %q", tt.eventType, tt.payload.Status, got, tt.want)
		}
	}
}

func TestRecipientsSkipPerformerAndTeamPlaceholder(t *testing.T) {
	got := recipientsFor(TemplateApproved, approvedPayload())
	if len(got) != 1 || got[0] != "Sara" {
		t.Fatalf("expected only the file creator, got %v", got)
	}

	handover := store.EventPayload{AssignedTo: models.ProcessingTeam, Entry: &models.HistoryEntry{PerformedBy: "Sara"}}
	if got := recipientsFor(TemplateHandover, handover); len(got) != 0 {
		t.Fatalf("expected no named recipient, got %v", got)
	}
}

func TestRunDeliversPublishesAndAdvancesOffset(t *testing.T) {
	st := newFakeStore(
		ledgerEvent(t, 4, store.EventFileNote, store.EventPayload{FileID: "VT-00042", Status: models.StatusSubmitted}),
		ledgerEvent(t, 9, store.EventFileStatus, approvedPayload()),
	)
	provider := &recordingProvider{}
	publisher := &fakePublisher{}
	w := New(st, provider, publisher, nil, Config{})

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if st.updatedOffset != 9 {
		t.Fatalf("expected offset 9, got %d", st.updatedOffset)
	}
	if len(publisher.published) != 2 {
		t.Fatalf("expected both events relayed, got %d", len(publisher.published))
	}
	if len(provider.sent) != 1 || provider.sent[0] != "Sara: Visa approved for Jane Doe, file VT-00042." {
		t.Fatalf("unexpected deliveries %v", provider.sent)
	}
	for _, n := range st.notifications {
		if n.Status != models.NotificationSent || n.Template != TemplateApproved || n.FileID != "VT-00042" {
			t.Fatalf("unexpected notification %+v", n)
		}
	}
}

func TestRunKeepsOffsetWhenRelayFails(t *testing.T) {
	st := newFakeStore(ledgerEvent(t, 3, store.EventFileStatus, approvedPayload()))
	provider := &recordingProvider{}
	w := New(st, provider, &fakePublisher{err: errors.New("broker down")}, nil, Config{})

	if err := w.Run(context.Background()); err == nil {
		t.Fatalf("expected relay error")
	}
	if st.offset != 0 || len(provider.sent) != 0 {
		t.Fatalf("expected nothing processed, offset=%d sent=%v", st.offset, provider.sent)
	}
}

func TestDeliverDeadLettersAfterMaxAttempts(t *testing.T) {
	st := newFakeStore(ledgerEvent(t, 1, store.EventFileStatus, approvedPayload()))
	w := New(st, failProvider{}, nil, nil, Config{MaxAttempts: 3})

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(st.dlq) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(st.dlq))
	}
	n := st.notifications[st.dlq[0]]
	if n.Attempts != 3 || n.Status != models.NotificationFailed {
		t.Fatalf("unexpected notification state %+v", n)
	}
	if st.updatedOffset != 1 {
		t.Fatalf("expected offset to advance past a dead-lettered event")
	}
}

func TestReminderScheduleFollowsFiles(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	withReminder := store.EventPayload{FileID: "VT-00001", Status: models.StatusDocsPending, ReminderDate: "2026-03-10",
		Entry: &models.HistoryEntry{Action: "Updated status to Documents Pending (Reminder: 2026-03-10)"}}
	noteOnly := store.EventPayload{FileID: "VT-00002", Status: models.StatusDocsPending, ReminderDate: "2026-03-02",
		Entry: &models.HistoryEntry{Action: "Note Added: called"}}
	done := store.EventPayload{FileID: "VT-00003", Status: models.StatusDone, VisaResult: models.ResultApproved}
	past := store.EventPayload{FileID: "VT-00004", Status: models.StatusFollowUp, ReminderDate: "2026-02-01"}

	st := newFakeStore(
		ledgerEvent(t, 1, store.EventFileStatus, withReminder),
		ledgerEvent(t, 2, store.EventFileNote, noteOnly),
		ledgerEvent(t, 3, store.EventFileStatus, done),
		ledgerEvent(t, 4, store.EventFileEdited, past),
	)
	schedule := &fakeSchedule{set: map[string]string{}}
	w := New(st, &recordingProvider{}, nil, schedule, Config{Clock: func() time.Time { return now }})

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if schedule.set["VT-00001"] != "2026-03-10" {
		t.Fatalf("expected reminder scheduled, got %v", schedule.set)
	}
	if _, ok := schedule.set["VT-00002"]; ok {
		t.Fatalf("note event must not reschedule")
	}
	if len(schedule.cancelled) != 2 {
		t.Fatalf("expected DONE and past reminders cancelled, got %v", schedule.cancelled)
	}
}

func TestDispatchRemindersSkipsStaleAndClosed(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 3, 10, 0, 5, 0, 0, loc)
	st := newFakeStore()
	st.files["VT-00001"] = models.File{FileID: "VT-00001", ApplicantName: "Jane", Status: models.StatusDocsPending, AssignedTo: "Pavel", ReminderDate: "2026-03-10"}
	st.files["VT-00002"] = models.File{FileID: "VT-00002", Status: models.StatusDocsPending, AssignedTo: "Pavel", ReminderDate: "2026-03-20"}
	st.files["VT-00003"] = models.File{FileID: "VT-00003", Status: models.StatusDone, AssignedTo: "Pavel", ReminderDate: "2026-03-10"}
	st.files["VT-00005"] = models.File{FileID: "VT-00005", Status: models.StatusHandoverProcessing, AssignedTo: models.ProcessingTeam, CreatedBy: "Sara", ReminderDate: "2026-03-10"}
	dueAt := time.Date(2026, 3, 10, 0, 0, 0, 0, loc)
	schedule := &fakeSchedule{set: map[string]string{}, due: []reminders.Reminder{
		{FileID: "VT-00001", DueAt: dueAt},
		{FileID: "VT-00002", DueAt: dueAt},
		{FileID: "VT-00003", DueAt: dueAt},
		{FileID: "VT-00004", DueAt: dueAt},
		{FileID: "VT-00005", DueAt: dueAt},
	}}
	provider := &recordingProvider{}
	w := New(st, provider, nil, schedule, Config{Location: loc, Clock: func() time.Time { return now }})

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{
		"Pavel: Reminder for file VT-00001 (Jane) due 2026-03-10. Current status: Documents Pending.",
		"Sara: Reminder for file VT-00005 () due 2026-03-10. Current status: Handed Over to Processing.",
	}
	if len(provider.sent) != len(want) {
		t.Fatalf("unexpected deliveries %v", provider.sent)
	}
	for i := range want {
		if provider.sent[i] != want[i] {
			t.Fatalf("delivery %d = %q, want %q", i, provider.sent[i], want[i])
		}
	}
}

func TestWebhookProvider(t *testing.T) {
	var got map[string]string
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	provider, err := NewProvider(ProviderConfig{Kind: "webhook", Channel: "inapp", WebhookURL: server.URL, WebhookToken: "secret"})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	if err := provider.Send(context.Background(), "hello", "Sara"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if auth != "Bearer secret" || got["recipient"] != "Sara" || got["message"] != "hello" {
		t.Fatalf("unexpected webhook request auth=%q body=%v", auth, got)
	}
}

func TestWebhookProviderRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	provider, _ := NewProvider(ProviderConfig{Kind: server.URL})
	if err := provider.Send(context.Background(), "hello", "Sara"); err == nil {
		t.Fatalf("expected rejection error")
	}
}

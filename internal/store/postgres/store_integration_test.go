package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/webdoc-rokib/visa-track-sub000/internal/database"
	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
	"github.com/webdoc-rokib/visa-track-sub000/internal/store"
	"github.com/webdoc-rokib/visa-track-sub000/internal/workflow"
)

func setupTestStore(t *testing.T) (*Store, *pgxpool.Pool) {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		tcpostgres.WithDatabase("visatrack_test"),
		tcpostgres.WithUsername("visatrack"),
		tcpostgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://visatrack:test-password@%s:%s/visatrack_test?sslmode=disable", host, port.Port())

	if err := database.Migrate(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := database.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	return NewStore(pool, Options{}), pool
}

var (
	sales      = workflow.Actor{Name: "Sara", Role: models.RoleSales}
	processing = workflow.Actor{Name: "Pavel", Role: models.RoleProcessing}
	admin      = workflow.Actor{Name: "Maya", Role: models.RoleAdmin}
)

func TestFileLifecycleIntegration(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	file, err := s.CreateFile(ctx, workflow.CreateInput{
		ApplicantName: "Jane Doe",
		Destination:   "Canada",
		ServiceCharge: 500,
		Cost:          200,
		ReminderDate:  "2030-01-02",
	}, sales)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, _, err := s.SendToProcessing(ctx, store.FileActionInput{FileID: file.FileID, Actor: sales, Assignee: "Pavel"}); err != nil {
		t.Fatalf("send to processing: %v", err)
	}
	if _, _, err := s.Acknowledge(ctx, store.FileActionInput{FileID: file.FileID, Actor: processing}); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if _, _, err := s.UpdateStatus(ctx, store.FileActionInput{
		FileID: file.FileID,
		Actor:  processing,
		Status: workflow.StatusInput{Target: models.StatusDone, Result: models.ResultApproved},
	}); err != nil {
		t.Fatalf("update status: %v", err)
	}

	got, ok, err := s.GetFile(ctx, file.FileID)
	if err != nil || !ok {
		t.Fatalf("get file: ok=%v err=%v", ok, err)
	}
	if got.Status != models.StatusDone || got.VisaResult == nil || *got.VisaResult != models.ResultApproved {
		t.Fatalf("unexpected final file: %+v", got)
	}
	if len(got.History) != 4 || got.History[0].Kind != models.EntryStatus || got.History[3].Kind != models.EntryCreated {
		t.Fatalf("unexpected history: %+v", got.History)
	}
	if got.ReminderDate != "2030-01-02" {
		t.Fatalf("expected reminder date to round trip, got %q", got.ReminderDate)
	}

	events, err := s.ListFileEvents(ctx, file.FileID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if err := store.VerifyChain(events); err != nil {
		t.Fatalf("verify chain: %v", err)
	}
	rehydrated, err := store.RehydrateHistory(events)
	if err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if len(rehydrated) != len(got.History) || rehydrated[0].Action != got.History[0].Action {
		t.Fatalf("rehydrated history mismatch: %+v", rehydrated)
	}

	if _, _, err := s.AddNote(ctx, store.FileActionInput{FileID: file.FileID, Actor: sales, Note: "closed"}); err != nil {
		t.Fatalf("note on done file: %v", err)
	}
	if _, _, err := s.UpdateStatus(ctx, store.FileActionInput{
		FileID: file.FileID,
		Actor:  processing,
		Status: workflow.StatusInput{Target: models.StatusFollowUp},
	}); !errors.Is(err, workflow.ErrInvalidState) {
		t.Fatalf("expected invalid state on DONE file, got %v", err)
	}
}

func TestRejectedMutationLeavesNoTrace(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	file, err := s.CreateFile(ctx, workflow.CreateInput{ApplicantName: "Lee"}, sales)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := s.SendToProcessing(ctx, store.FileActionInput{FileID: file.FileID, Actor: processing, Assignee: "Pavel"}); err == nil {
		t.Fatalf("expected processing agent to be refused")
	}
	events, err := s.ListFileEvents(ctx, file.FileID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected only the creation event, got %d", len(events))
	}
}

func TestConcurrentNotesKeepEveryEntry(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	file, err := s.CreateFile(ctx, workflow.CreateInput{ApplicantName: "Omar"}, sales)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := s.AddNote(ctx, store.FileActionInput{FileID: file.FileID, Actor: sales, Note: fmt.Sprintf("note %d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("add note: %v", err)
		}
	}

	got, _, err := s.GetFile(ctx, file.FileID)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if len(got.History) != writers+1 {
		t.Fatalf("expected %d history entries, got %d", writers+1, len(got.History))
	}
	events, err := s.ListFileEvents(ctx, file.FileID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if err := store.VerifyChain(events); err != nil {
		t.Fatalf("verify chain: %v", err)
	}
}

func TestDeletionRequiresToken(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	file, err := s.CreateFile(ctx, workflow.CreateInput{ApplicantName: "Ana"}, sales)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := s.RequestDeletion(ctx, file.FileID, sales); !errors.Is(err, workflow.ErrNotPermitted) {
		t.Fatalf("expected non-admin refused, got %v", err)
	}
	request, _, err := s.RequestDeletion(ctx, file.FileID, admin)
	if err != nil {
		t.Fatalf("request deletion: %v", err)
	}
	if _, err := s.ConfirmDeletion(ctx, file.FileID, "wrong", admin); !errors.Is(err, store.ErrDeleteTokenInvalid) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if _, err := s.ConfirmDeletion(ctx, file.FileID, request.Token, admin); err != nil {
		t.Fatalf("confirm deletion: %v", err)
	}
	if _, ok, _ := s.GetFile(ctx, file.FileID); ok {
		t.Fatalf("expected file gone")
	}
	events, err := s.ListFileEvents(ctx, file.FileID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].Type != store.EventFileDeleted {
		t.Fatalf("expected a single tombstone, got %+v", events)
	}
}

func TestAttendanceIntegration(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	login := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	record := models.AttendanceRecord{UserName: "Sara", Role: models.RoleSales, Date: "2026-03-02", LoginTime: login}
	first, created, err := s.OpenAttendance(ctx, record)
	if err != nil || !created {
		t.Fatalf("open: created=%v err=%v", created, err)
	}
	again, created, err := s.OpenAttendance(ctx, record)
	if err != nil || created || again.RecordID != first.RecordID {
		t.Fatalf("expected second login to reuse open session, got %+v created=%v err=%v", again, created, err)
	}

	closed, ok, err := s.CloseAttendance(ctx, "Sara", login.Add(8*time.Hour))
	if err != nil || !ok || closed.ClosedBy != models.ClosedByLogout {
		t.Fatalf("close: %+v ok=%v err=%v", closed, ok, err)
	}
	if _, ok, err := s.CloseAttendance(ctx, "Sara", login.Add(9*time.Hour)); err != nil || ok {
		t.Fatalf("expected nothing left to close, ok=%v err=%v", ok, err)
	}

	stale := models.AttendanceRecord{UserName: "Pavel", Role: models.RoleProcessing, Date: "2026-03-01", LoginTime: login.Add(-24 * time.Hour)}
	if _, _, err := s.OpenAttendance(ctx, stale); err != nil {
		t.Fatalf("open stale: %v", err)
	}
	n, err := s.CloseStaleAttendance(ctx, login.Add(-12*time.Hour), login, 10)
	if err != nil || n != 1 {
		t.Fatalf("sweep closed %d, err=%v", n, err)
	}

	records, err := s.ListAttendance(ctx, "", "2026-03-01")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	for _, r := range records {
		if r.IsOpen() {
			t.Fatalf("expected all sessions closed: %+v", r)
		}
	}
}

func TestUsersAndSessionsIntegration(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.Login(ctx, store.LoginInput{Username: "ADMIN", Password: "admin"}); err != nil {
		t.Fatalf("seeded admin login: %v", err)
	}
	created, err := s.CreateUser(ctx, models.StaffUser{FullName: "Nadia", Username: "nadia", Password: "s3cret", Role: models.RoleProcessing})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := s.CreateUser(ctx, models.StaffUser{FullName: "Other", Username: "Nadia", Password: "x", Role: models.RoleSales}); !errors.Is(err, store.ErrUserExists) {
		t.Fatalf("expected duplicate username rejected, got %v", err)
	}
	if _, err := s.Login(ctx, store.LoginInput{Username: "nadia", Password: "wrong"}); !errors.Is(err, store.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	result, err := s.Login(ctx, store.LoginInput{Username: "nadia", Password: "s3cret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	first, err := s.MarkPendingNotice(ctx, result.Session.SessionID)
	if err != nil || !first {
		t.Fatalf("first notice: %v %v", first, err)
	}
	second, err := s.MarkPendingNotice(ctx, result.Session.SessionID)
	if err != nil || second {
		t.Fatalf("second notice should be suppressed: %v %v", second, err)
	}

	if err := s.DeleteSession(ctx, result.Session.SessionID); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := s.GetSession(ctx, result.Session.SessionID); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected session gone, got %v", err)
	}
	if _, err := s.DeleteUser(ctx, "not-a-uuid"); !errors.Is(err, store.ErrUserNotFound) {
		t.Fatalf("expected malformed id to be not found, got %v", err)
	}
	if _, err := s.DeleteUser(ctx, created.UserID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := s.DeleteUser(ctx, created.UserID); !errors.Is(err, store.ErrUserNotFound) {
		t.Fatalf("expected second delete to be not found, got %v", err)
	}
}

func TestOffsetsAndNotificationsIntegration(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateFile(ctx, workflow.CreateInput{ApplicantName: "Kim"}, sales); err != nil {
		t.Fatalf("create: %v", err)
	}
	events, err := s.ListEventsAfter(ctx, 0, 10)
	if err != nil || len(events) != 1 {
		t.Fatalf("list after: %d %v", len(events), err)
	}
	if err := s.UpdateOffset(ctx, "notifier", events[0].Position); err != nil {
		t.Fatalf("update offset: %v", err)
	}
	if err := s.UpdateOffset(ctx, "notifier", 0); err != nil {
		t.Fatalf("update offset: %v", err)
	}
	offset, err := s.GetOffset(ctx, "notifier")
	if err != nil || offset != events[0].Position {
		t.Fatalf("expected offset to never move back, got %d %v", offset, err)
	}

	n := models.Notification{NotificationID: "6b1f0f5e-4a8b-4f7a-9b34-3c7e8d1a2b10", Recipient: "Sara", Channel: "log", Template: "file.submitted", Message: "hi"}
	if err := s.InsertNotification(ctx, n); err != nil {
		t.Fatalf("insert notification: %v", err)
	}
	attempts, err := s.MarkNotificationFailed(ctx, n.NotificationID, "boom")
	if err != nil || attempts != 1 {
		t.Fatalf("mark failed: %d %v", attempts, err)
	}
	if err := s.InsertDLQ(ctx, n.NotificationID, "boom"); err != nil {
		t.Fatalf("dlq: %v", err)
	}
	list, err := s.ListNotifications(ctx, "Sara", 10)
	if err != nil || len(list) != 1 || list[0].Status != models.NotificationFailed {
		t.Fatalf("list notifications: %+v %v", list, err)
	}
}

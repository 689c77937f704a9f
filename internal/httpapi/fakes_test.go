package httpapi

import (
	"context"
	"time"

	"github.com/webdoc-rokib/visa-track-sub000/internal/archive"
	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
	"github.com/webdoc-rokib/visa-track-sub000/internal/store"
	"github.com/webdoc-rokib/visa-track-sub000/internal/workflow"
)

type fakeStore struct {
	createFn        func(ctx context.Context, input workflow.CreateInput, actor workflow.Actor) (models.File, error)
	getFileFn       func(ctx context.Context, fileID string) (models.File, bool, error)
	listFilesFn     func(ctx context.Context) ([]models.File, error)
	sendFn          func(ctx context.Context, input store.FileActionInput) (models.File, bool, error)
	ackFn           func(ctx context.Context, input store.FileActionInput) (models.File, bool, error)
	statusFn        func(ctx context.Context, input store.FileActionInput) (models.File, bool, error)
	noteFn          func(ctx context.Context, input store.FileActionInput) (models.File, bool, error)
	editFn          func(ctx context.Context, input store.FileActionInput) (models.File, bool, error)
	requestDeleteFn func(ctx context.Context, fileID string, actor workflow.Actor) (store.DeletionRequest, bool, error)
	confirmDeleteFn func(ctx context.Context, fileID, token string, actor workflow.Actor) (bool, error)
	loginFn         func(ctx context.Context, input store.LoginInput) (store.LoginResult, error)
	getSessionFn    func(ctx context.Context, sessionID string) (models.Session, error)
	deleteSessionFn func(ctx context.Context, sessionID string) error
	pendingNoticeFn func(ctx context.Context, sessionID string) (bool, error)
	createUserFn    func(ctx context.Context, user models.StaffUser) (models.StaffUser, error)
	listUsersFn     func(ctx context.Context) ([]models.StaffUser, error)
	deleteUserFn    func(ctx context.Context, userID string) (bool, error)
	openAttendFn    func(ctx context.Context, record models.AttendanceRecord) (models.AttendanceRecord, bool, error)
	closeAttendFn   func(ctx context.Context, userName string, at time.Time) (models.AttendanceRecord, bool, error)
	listAttendFn    func(ctx context.Context, userName, fromDate string) ([]models.AttendanceRecord, error)
	listDestFn      func(ctx context.Context) ([]string, error)
	addDestFn       func(ctx context.Context, name string) error
	fileEventsFn    func(ctx context.Context, fileID string) ([]store.FileEvent, error)
	notificationsFn func(ctx context.Context, recipient string, limit int) ([]models.Notification, error)
}

func (f fakeStore) CreateFile(ctx context.Context, input workflow.CreateInput, actor workflow.Actor) (models.File, error) {
	if f.createFn == nil {
		return models.File{}, nil
	}
	return f.createFn(ctx, input, actor)
}

func (f fakeStore) GetFile(ctx context.Context, fileID string) (models.File, bool, error) {
	if f.getFileFn == nil {
		return models.File{}, false, store.ErrFileNotFound
	}
	return f.getFileFn(ctx, fileID)
}

func (f fakeStore) ListFiles(ctx context.Context) ([]models.File, error) {
	if f.listFilesFn == nil {
		return nil, nil
	}
	return f.listFilesFn(ctx)
}

func (f fakeStore) SendToProcessing(ctx context.Context, input store.FileActionInput) (models.File, bool, error) {
	if f.sendFn == nil {
		return models.File{}, false, nil
	}
	return f.sendFn(ctx, input)
}

func (f fakeStore) Acknowledge(ctx context.Context, input store.FileActionInput) (models.File, bool, error) {
	if f.ackFn == nil {
		return models.File{}, false, nil
	}
	return f.ackFn(ctx, input)
}

func (f fakeStore) UpdateStatus(ctx context.Context, input store.FileActionInput) (models.File, bool, error) {
	if f.statusFn == nil {
		return models.File{}, false, nil
	}
	return f.statusFn(ctx, input)
}

func (f fakeStore) AddNote(ctx context.Context, input store.FileActionInput) (models.File, bool, error) {
	if f.noteFn == nil {
		return models.File{}, false, nil
	}
	return f.noteFn(ctx, input)
}

func (f fakeStore) EditFile(ctx context.Context, input store.FileActionInput) (models.File, bool, error) {
	if f.editFn == nil {
		return models.File{}, false, nil
	}
	return f.editFn(ctx, input)
}

func (f fakeStore) RequestDeletion(ctx context.Context, fileID string, actor workflow.Actor) (store.DeletionRequest, bool, error) {
	if f.requestDeleteFn == nil {
		return store.DeletionRequest{}, false, nil
	}
	return f.requestDeleteFn(ctx, fileID, actor)
}

func (f fakeStore) ConfirmDeletion(ctx context.Context, fileID, token string, actor workflow.Actor) (bool, error) {
	if f.confirmDeleteFn == nil {
		return false, nil
	}
	return f.confirmDeleteFn(ctx, fileID, token, actor)
}

func (f fakeStore) Login(ctx context.Context, input store.LoginInput) (store.LoginResult, error) {
	if f.loginFn == nil {
		return store.LoginResult{}, store.ErrInvalidCredentials
	}
	return f.loginFn(ctx, input)
}

func (f fakeStore) GetSession(ctx context.Context, sessionID string) (models.Session, error) {
	if f.getSessionFn == nil {
		return models.Session{}, store.ErrSessionNotFound
	}
	return f.getSessionFn(ctx, sessionID)
}

func (f fakeStore) DeleteSession(ctx context.Context, sessionID string) error {
	if f.deleteSessionFn == nil {
		return nil
	}
	return f.deleteSessionFn(ctx, sessionID)
}

func (f fakeStore) MarkPendingNotice(ctx context.Context, sessionID string) (bool, error) {
	if f.pendingNoticeFn == nil {
		return false, nil
	}
	return f.pendingNoticeFn(ctx, sessionID)
}

func (f fakeStore) CreateUser(ctx context.Context, user models.StaffUser) (models.StaffUser, error) {
	if f.createUserFn == nil {
		return user, nil
	}
	return f.createUserFn(ctx, user)
}

func (f fakeStore) ListUsers(ctx context.Context) ([]models.StaffUser, error) {
	if f.listUsersFn == nil {
		return nil, nil
	}
	return f.listUsersFn(ctx)
}

func (f fakeStore) DeleteUser(ctx context.Context, userID string) (bool, error) {
	if f.deleteUserFn == nil {
		return false, nil
	}
	return f.deleteUserFn(ctx, userID)
}

func (f fakeStore) OpenAttendance(ctx context.Context, record models.AttendanceRecord) (models.AttendanceRecord, bool, error) {
	if f.openAttendFn == nil {
		return record, true, nil
	}
	return f.openAttendFn(ctx, record)
}

func (f fakeStore) CloseAttendance(ctx context.Context, userName string, at time.Time) (models.AttendanceRecord, bool, error) {
	if f.closeAttendFn == nil {
		return models.AttendanceRecord{}, false, nil
	}
	return f.closeAttendFn(ctx, userName, at)
}

func (f fakeStore) CloseStaleAttendance(ctx context.Context, cutoff, at time.Time, limit int) (int, error) {
	return 0, nil
}

func (f fakeStore) ListAttendance(ctx context.Context, userName, fromDate string) ([]models.AttendanceRecord, error) {
	if f.listAttendFn == nil {
		return nil, nil
	}
	return f.listAttendFn(ctx, userName, fromDate)
}

func (f fakeStore) ListDestinations(ctx context.Context) ([]string, error) {
	if f.listDestFn == nil {
		return nil, nil
	}
	return f.listDestFn(ctx)
}

func (f fakeStore) AddDestination(ctx context.Context, name string) error {
	if f.addDestFn == nil {
		return nil
	}
	return f.addDestFn(ctx, name)
}

func (f fakeStore) ListFileEvents(ctx context.Context, fileID string) ([]store.FileEvent, error) {
	if f.fileEventsFn == nil {
		return nil, nil
	}
	return f.fileEventsFn(ctx, fileID)
}

func (f fakeStore) ListEventsAfter(ctx context.Context, position int64, limit int) ([]store.FileEvent, error) {
	return nil, nil
}

func (f fakeStore) GetOffset(ctx context.Context, consumer string) (int64, error) {
	return 0, nil
}

func (f fakeStore) UpdateOffset(ctx context.Context, consumer string, position int64) error {
	return nil
}

func (f fakeStore) InsertNotification(ctx context.Context, notification models.Notification) error {
	return nil
}

func (f fakeStore) MarkNotificationSent(ctx context.Context, notificationID string) error {
	return nil
}

func (f fakeStore) MarkNotificationFailed(ctx context.Context, notificationID, lastError string) (int, error) {
	return 0, nil
}

func (f fakeStore) InsertDLQ(ctx context.Context, notificationID, reason string) error {
	return nil
}

func (f fakeStore) ListNotifications(ctx context.Context, recipient string, limit int) ([]models.Notification, error) {
	if f.notificationsFn == nil {
		return nil, nil
	}
	return f.notificationsFn(ctx, recipient, limit)
}

type fakeArchiver struct {
	keys []string
}

func (a *fakeArchiver) Archive(ctx context.Context, key string, body []byte) (archive.Object, error) {
	a.keys = append(a.keys, key)
	return archive.Object{Bucket: "reports", Key: key, Size: int64(len(body))}, nil
}

var (
	salesSession      = models.Session{SessionID: "s-sales", UserID: "u-sales", Username: "sara", FullName: "Sara Sales", Role: models.RoleSales}
	processingSession = models.Session{SessionID: "s-proc", UserID: "u-proc", Username: "pavel", FullName: "Pavel Processing", Role: models.RoleProcessing}
	adminSession      = models.Session{SessionID: "s-admin", UserID: "u-admin", Username: "maya", FullName: "Maya Admin", Role: models.RoleAdmin}
)

func knownSessions(ctx context.Context, sessionID string) (models.Session, error) {
	for _, session := range []models.Session{salesSession, processingSession, adminSession} {
		if session.SessionID == sessionID {
			return session, nil
		}
	}
	return models.Session{}, store.ErrSessionNotFound
}

package store

import (
	"context"
	"time"

	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
	"github.com/webdoc-rokib/visa-track-sub000/internal/workflow"
)

// FileActionInput carries one workflow mutation. Only the fields the action reads are used.
type FileActionInput struct {
	FileID   string
	Actor    workflow.Actor
	Assignee string
	Note     string
	Status   workflow.StatusInput
	Edit     workflow.EditInput
}

type DeletionRequest struct {
	FileID    string    `json:"file_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type LoginInput struct {
	Username string
	Password string
}

type LoginResult struct {
	User    models.StaffUser
	Session models.Session
}

type FileStore interface {
	CreateFile(ctx context.Context, input workflow.CreateInput, actor workflow.Actor) (models.File, error)
	GetFile(ctx context.Context, fileID string) (models.File, bool, error)
	ListFiles(ctx context.Context) ([]models.File, error)
	SendToProcessing(ctx context.Context, input FileActionInput) (models.File, bool, error)
	Acknowledge(ctx context.Context, input FileActionInput) (models.File, bool, error)
	UpdateStatus(ctx context.Context, input FileActionInput) (models.File, bool, error)
	AddNote(ctx context.Context, input FileActionInput) (models.File, bool, error)
	EditFile(ctx context.Context, input FileActionInput) (models.File, bool, error)
	RequestDeletion(ctx context.Context, fileID string, actor workflow.Actor) (DeletionRequest, bool, error)
	ConfirmDeletion(ctx context.Context, fileID, token string, actor workflow.Actor) (bool, error)
}

type SessionStore interface {
	Login(ctx context.Context, input LoginInput) (LoginResult, error)
	GetSession(ctx context.Context, sessionID string) (models.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	// MarkPendingNotice returns true only for the first call within a session.
	MarkPendingNotice(ctx context.Context, sessionID string) (bool, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user models.StaffUser) (models.StaffUser, error)
	ListUsers(ctx context.Context) ([]models.StaffUser, error)
	DeleteUser(ctx context.Context, userID string) (bool, error)
}

type AttendanceStore interface {
	// OpenAttendance inserts the record unless the user already has an open session for that date.
	// It returns the open session and whether it was created by this call.
	OpenAttendance(ctx context.Context, record models.AttendanceRecord) (models.AttendanceRecord, bool, error)
	CloseAttendance(ctx context.Context, userName string, at time.Time) (models.AttendanceRecord, bool, error)
	CloseStaleAttendance(ctx context.Context, cutoff, at time.Time, limit int) (int, error)
	ListAttendance(ctx context.Context, userName, fromDate string) ([]models.AttendanceRecord, error)
}

type DestinationStore interface {
	ListDestinations(ctx context.Context) ([]string, error)
	AddDestination(ctx context.Context, name string) error
}

type EventStore interface {
	ListFileEvents(ctx context.Context, fileID string) ([]FileEvent, error)
	ListEventsAfter(ctx context.Context, position int64, limit int) ([]FileEvent, error)
	GetOffset(ctx context.Context, consumer string) (int64, error)
	UpdateOffset(ctx context.Context, consumer string, position int64) error
}

type NotificationStore interface {
	InsertNotification(ctx context.Context, notification models.Notification) error
	MarkNotificationSent(ctx context.Context, notificationID string) error
	// MarkNotificationFailed records a failed attempt and returns the attempt count so far.
	MarkNotificationFailed(ctx context.Context, notificationID, lastError string) (int, error)
	InsertDLQ(ctx context.Context, notificationID, reason string) error
	ListNotifications(ctx context.Context, recipient string, limit int) ([]models.Notification, error)
}

type Store interface {
	FileStore
	SessionStore
	UserStore
	AttendanceStore
	DestinationStore
	EventStore
	NotificationStore
}

package models

import "time"

const (
	RoleSales      = "Sales Representative"
	RoleProcessing = "Processing Agent"
	RoleAdmin      = "Manager/Admin"
)

// ProcessingTeam is the placeholder assignee for files handed over without a named agent.
const ProcessingTeam = "Processing Team"

type StaffUser struct {
	UserID    string    `json:"user_id"`
	FullName  string    `json:"full_name"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type Session struct {
	SessionID         string    `json:"session_id"`
	UserID            string    `json:"user_id"`
	Username          string    `json:"username"`
	FullName          string    `json:"full_name"`
	Role              string    `json:"role"`
	PendingNoticeSent bool      `json:"pending_notice_sent"`
	ExpiresAt         time.Time `json:"expires_at"`
}

func IsValidRole(role string) bool {
	switch role {
	case RoleSales, RoleProcessing, RoleAdmin:
		return true
	default:
		return false
	}
}

type Notification struct {
	NotificationID string     `json:"notification_id"`
	Recipient      string     `json:"recipient"`
	Channel        string     `json:"channel"`
	Template       string     `json:"template"`
	Message        string     `json:"message"`
	FileID         string     `json:"file_id,omitempty"`
	Status         string     `json:"status"`
	Attempts       int        `json:"attempts"`
	LastError      string     `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
}

const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

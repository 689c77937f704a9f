package store

import "errors"

var (
	ErrFileNotFound        = errors.New("file not found")
	ErrFileIDExhausted     = errors.New("could not allocate a unique file id")
	ErrDeleteTokenInvalid  = errors.New("delete confirmation token invalid or expired")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrSessionNotFound     = errors.New("session not found")
	ErrUserExists          = errors.New("username already exists")
	ErrUserNotFound        = errors.New("user not found")
	ErrAttendanceNotFound  = errors.New("no open attendance session")
	ErrDestinationExists   = errors.New("destination already exists")
	ErrChainBroken         = errors.New("event hash chain broken")
	ErrNotificationUnknown = errors.New("notification not found")
)

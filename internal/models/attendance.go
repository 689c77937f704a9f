package models

import "time"

// AttendanceRecord is one continuous session. LogoutTime is nil while the session is open.
type AttendanceRecord struct {
	RecordID   string     `json:"record_id"`
	UserID     string     `json:"user_id"`
	UserName   string     `json:"user_name"`
	Role       string     `json:"role"`
	Date       string     `json:"date"`
	LoginTime  time.Time  `json:"login_time"`
	LogoutTime *time.Time `json:"logout_time"`
	ClosedBy   string     `json:"closed_by,omitempty"`
}

const (
	ClosedByLogout = "logout"
	ClosedBySweep  = "sweep"
)

// DateLayout is the calendar-date format used for attendance dates and reminder dates.
const DateLayout = "2006-01-02"

func (r AttendanceRecord) IsOpen() bool {
	return r.LogoutTime == nil
}

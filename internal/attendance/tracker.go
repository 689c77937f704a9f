// Package attendance tracks staff work sessions: one open session per user and calendar day,
// closed on logout or by the stale-session sweep.
package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
	"github.com/webdoc-rokib/visa-track-sub000/internal/store"
)

const (
	DefaultStaleAfter = 12 * time.Hour
	DefaultBatchSize  = 100
)

var sessionsClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "visatrack_attendance_sessions_closed_total",
	Help: "Attendance sessions closed, by closing reason.",
}, []string{"closed_by"})

type Options struct {
	Location   *time.Location
	StaleAfter time.Duration
	BatchSize  int
	Clock      func() time.Time
}

type Tracker struct {
	store      store.AttendanceStore
	loc        *time.Location
	staleAfter time.Duration
	batchSize  int
	clock      func() time.Time
}

func NewTracker(st store.AttendanceStore, options Options) *Tracker {
	t := &Tracker{
		store:      st,
		loc:        options.Location,
		staleAfter: options.StaleAfter,
		batchSize:  options.BatchSize,
		clock:      options.Clock,
	}
	if t.loc == nil {
		t.loc = time.UTC
	}
	if t.staleAfter <= 0 {
		t.staleAfter = DefaultStaleAfter
	}
	if t.batchSize <= 0 {
		t.batchSize = DefaultBatchSize
	}
	if t.clock == nil {
		t.clock = time.Now
	}
	return t
}

// Login opens a session for the user's current local date, or returns the one already open.
func (t *Tracker) Login(ctx context.Context, user models.StaffUser) (models.AttendanceRecord, bool, error) {
	if strings.TrimSpace(user.FullName) == "" {
		return models.AttendanceRecord{}, false, fmt.Errorf("attendance login: user name required")
	}
	now := t.clock().UTC()
	record := models.AttendanceRecord{
		UserID:    user.UserID,
		UserName:  user.FullName,
		Role:      user.Role,
		Date:      now.In(t.loc).Format(models.DateLayout),
		LoginTime: now,
	}
	return t.store.OpenAttendance(ctx, record)
}

// Logout closes the user's most recent open session. A missing session is not an error.
func (t *Tracker) Logout(ctx context.Context, userName string) (models.AttendanceRecord, bool, error) {
	record, closed, err := t.store.CloseAttendance(ctx, userName, t.clock().UTC())
	if err != nil {
		return models.AttendanceRecord{}, false, err
	}
	if closed {
		sessionsClosedTotal.WithLabelValues(models.ClosedByLogout).Inc()
	}
	return record, closed, nil
}

// Sweep force-closes every session open longer than the stale threshold, in batches.
func (t *Tracker) Sweep(ctx context.Context) (int, error) {
	now := t.clock().UTC()
	cutoff := now.Add(-t.staleAfter)
	total := 0
	for {
		n, err := t.store.CloseStaleAttendance(ctx, cutoff, now, t.batchSize)
		if err != nil {
			return total, err
		}
		total += n
		sessionsClosedTotal.WithLabelValues(models.ClosedBySweep).Add(float64(n))
		if n < t.batchSize {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

// History returns the records for userName (all users when empty) dated on or after fromDate.
func (t *Tracker) History(ctx context.Context, userName, fromDate string) ([]models.AttendanceRecord, error) {
	return t.store.ListAttendance(ctx, userName, fromDate)
}

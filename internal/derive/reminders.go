package derive

import (
	"sort"
	"time"

	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
)

const DefaultReminderLimit = 5

type Reminder struct {
	FileID        string `json:"file_id"`
	ApplicantName string `json:"applicant_name"`
	Status        string `json:"status"`
	AssignedTo    string `json:"assigned_to"`
	ReminderDate  string `json:"reminder_date"`
}

// Reminders lists files whose reminder date is today or later in loc, earliest first.
// Past dates are dropped rather than flagged. A limit of zero or less means DefaultReminderLimit.
func Reminders(files []models.File, now time.Time, loc *time.Location, limit int) []Reminder {
	if loc == nil {
		loc = time.Local
	}
	if limit <= 0 {
		limit = DefaultReminderLimit
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	type dated struct {
		day time.Time
		rem Reminder
	}
	items := make([]dated, 0)
	for _, file := range files {
		if file.ReminderDate == "" {
			continue
		}
		day, err := time.ParseInLocation(models.DateLayout, file.ReminderDate, loc)
		if err != nil || day.Before(today) {
			continue
		}
		items = append(items, dated{day: day, rem: Reminder{
			FileID:        file.FileID,
			ApplicantName: file.ApplicantName,
			Status:        file.Status,
			AssignedTo:    file.AssignedTo,
			ReminderDate:  file.ReminderDate,
		}})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].day.Before(items[j].day)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]Reminder, 0, len(items))
	for _, item := range items {
		out = append(out, item.rem)
	}
	return out
}

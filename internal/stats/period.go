package stats

import (
	"errors"
	"strings"
	"time"
)

const (
	PeriodToday = "today"
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodAll   = "all"
)

// AllStaff selects every staff member. An empty filter means the same.
const AllStaff = "all"

var ErrInvalidPeriod = errors.New("period must be one of today, week, month, all")

// PeriodStart returns the inclusive lower bound of the period in loc.
// Weeks start on Monday.
func PeriodStart(period string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	switch NormalizePeriod(period) {
	case PeriodToday:
		return midnight, nil
	case PeriodWeek:
		offset := (int(local.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -offset), nil
	case PeriodMonth:
		return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc), nil
	case PeriodAll:
		return time.Unix(0, 0).In(loc), nil
	default:
		return time.Time{}, ErrInvalidPeriod
	}
}

// NormalizePeriod maps accepted aliases onto the canonical period names. Empty means today.
func NormalizePeriod(period string) string {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "", PeriodToday:
		return PeriodToday
	case PeriodWeek, "this_week":
		return PeriodWeek
	case PeriodMonth, "this_month":
		return PeriodMonth
	case PeriodAll, "all_time", "all-time":
		return PeriodAll
	default:
		return period
	}
}

// IsAllStaff reports whether filter selects the whole organisation.
func IsAllStaff(filter string) bool {
	filter = strings.TrimSpace(filter)
	return filter == "" || strings.EqualFold(filter, AllStaff) || strings.EqualFold(filter, "all staff")
}

func matchesStaff(filter, name string) bool {
	return IsAllStaff(filter) || strings.TrimSpace(filter) == name
}

// Package stats aggregates dashboard figures from a snapshot of files and attendance records.
package stats

import (
	"sort"
	"time"

	"github.com/hako/durafmt"

	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
	"github.com/webdoc-rokib/visa-track-sub000/internal/workflow"
)

type Input struct {
	Files      []models.File
	Attendance []models.AttendanceRecord
	Staff      string
	Period     string
	Now        time.Time
	Location   *time.Location
}

type Report struct {
	Period     string            `json:"period"`
	Staff      string            `json:"staff"`
	From       time.Time         `json:"from"`
	To         time.Time         `json:"to"`
	Sales      SalesMetrics      `json:"sales"`
	Processing ProcessingMetrics `json:"processing"`
	Finances   FinancialMetrics  `json:"finances"`
	Notes      []NoteEntry       `json:"notes"`
	Attendance []AttendanceEntry `json:"attendance"`
}

type SalesMetrics struct {
	NewSales       int            `json:"new_sales"`
	Destinations   map[string]int `json:"destinations"`
	Communications int            `json:"communications"`
}

type ProcessingMetrics struct {
	Active      int `json:"active"`
	Submitted   int `json:"submitted"`
	DocsPending int `json:"docs_pending"`
	Completed   int `json:"completed"`
	Approvals   int `json:"approvals"`
	Rejections  int `json:"rejections"`
}

// FinancialMetrics are always organisation-wide.
type FinancialMetrics struct {
	Revenue float64 `json:"revenue"`
	Cost    float64 `json:"cost"`
	Profit  float64 `json:"profit"`
}

type NoteEntry struct {
	FileID        string    `json:"file_id"`
	ApplicantName string    `json:"applicant_name"`
	Note          string    `json:"note"`
	PerformedBy   string    `json:"performed_by"`
	Timestamp     time.Time `json:"timestamp"`
}

type AttendanceEntry struct {
	models.AttendanceRecord
	Duration string `json:"duration"`
}

// Compute builds the report for the window [PeriodStart, Now].
func Compute(in Input) (Report, error) {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	period := NormalizePeriod(in.Period)
	start, err := PeriodStart(period, in.Now, in.Location)
	if err != nil {
		return Report{}, err
	}
	inWindow := func(ts time.Time) bool {
		return !ts.Before(start) && !ts.After(in.Now)
	}
	staff := in.Staff
	if IsAllStaff(staff) {
		staff = AllStaff
	}

	report := Report{
		Period:     period,
		Staff:      staff,
		From:       start,
		To:         in.Now,
		Sales:      SalesMetrics{Destinations: map[string]int{}},
		Notes:      make([]NoteEntry, 0),
		Attendance: make([]AttendanceEntry, 0),
	}

	for _, file := range in.Files {
		if matchesStaff(staff, file.AssignedTo) && file.Status != models.StatusDone && file.Status != models.StatusReceivedSales {
			report.Processing.Active++
		}
		if inWindow(file.CreatedAt) {
			report.Finances.Revenue += file.ServiceCharge
			report.Finances.Cost += file.Cost
		}

		newSale := false
		for _, entry := range file.History {
			if !inWindow(entry.Timestamp) || !matchesStaff(staff, entry.PerformedBy) {
				continue
			}
			if entry.Status == models.StatusReceivedSales && file.IsNewSale {
				newSale = true
			}
			if entry.Status == models.StatusFollowUp || entry.Status == models.StatusDocsPending {
				report.Sales.Communications++
			}
			if entry.Kind == models.EntryStatus {
				countProcessing(&report.Processing, entry)
			}
			if note, ok := workflow.ExtractNote(entry.Action); ok {
				report.Notes = append(report.Notes, NoteEntry{
					FileID:        file.FileID,
					ApplicantName: file.ApplicantName,
					Note:          note,
					PerformedBy:   entry.PerformedBy,
					Timestamp:     entry.Timestamp,
				})
			}
		}
		if newSale {
			report.Sales.NewSales++
			destination := file.Destination
			if destination == "" {
				destination = "Unspecified"
			}
			report.Sales.Destinations[destination]++
		}
	}
	report.Finances.Profit = report.Finances.Revenue - report.Finances.Cost

	sort.SliceStable(report.Notes, func(i, j int) bool {
		return report.Notes[i].Timestamp.After(report.Notes[j].Timestamp)
	})

	startDate := start.Format(models.DateLayout)
	for _, record := range in.Attendance {
		if !matchesStaff(staff, record.UserName) || record.Date < startDate {
			continue
		}
		report.Attendance = append(report.Attendance, AttendanceEntry{
			AttendanceRecord: record,
			Duration:         SessionDuration(record, in.Now),
		})
	}
	sort.SliceStable(report.Attendance, func(i, j int) bool {
		return report.Attendance[i].LoginTime.After(report.Attendance[j].LoginTime)
	})
	return report, nil
}

func countProcessing(m *ProcessingMetrics, entry models.HistoryEntry) {
	switch entry.Status {
	case models.StatusSubmitted:
		m.Submitted++
	case models.StatusDocsPending:
		m.DocsPending++
	case models.StatusDone:
		if entry.Result == "" {
			return
		}
		m.Completed++
		switch entry.Result {
		case models.ResultApproved:
			m.Approvals++
		case models.ResultRejected:
			m.Rejections++
		}
	}
}

// SessionDuration renders the length of an attendance session, measuring open sessions up to now.
func SessionDuration(record models.AttendanceRecord, now time.Time) string {
	end := now
	if record.LogoutTime != nil {
		end = *record.LogoutTime
	}
	d := end.Sub(record.LoginTime).Truncate(time.Minute)
	if d < time.Minute {
		return "less than a minute"
	}
	return durafmt.Parse(d).LimitFirstN(2).String()
}

package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

// WriteCSV renders the report as section,metric,value rows followed by the notes and attendance logs.
func WriteCSV(w io.Writer, report Report) error {
	writer := csv.NewWriter(w)
	rows := [][]string{
		{"section", "metric", "value"},
		{"report", "period", report.Period},
		{"report", "staff", report.Staff},
		{"report", "from", report.From.Format(time.RFC3339)},
		{"report", "to", report.To.Format(time.RFC3339)},
		{"sales", "new_sales", strconv.Itoa(report.Sales.NewSales)},
		{"sales", "communications", strconv.Itoa(report.Sales.Communications)},
	}
	destinations := make([]string, 0, len(report.Sales.Destinations))
	for name := range report.Sales.Destinations {
		destinations = append(destinations, name)
	}
	sort.Strings(destinations)
	for _, name := range destinations {
		rows = append(rows, []string{"destination", name, strconv.Itoa(report.Sales.Destinations[name])})
	}
	rows = append(rows,
		[]string{"processing", "active", strconv.Itoa(report.Processing.Active)},
		[]string{"processing", "submitted", strconv.Itoa(report.Processing.Submitted)},
		[]string{"processing", "docs_pending", strconv.Itoa(report.Processing.DocsPending)},
		[]string{"processing", "completed", strconv.Itoa(report.Processing.Completed)},
		[]string{"processing", "approvals", strconv.Itoa(report.Processing.Approvals)},
		[]string{"processing", "rejections", strconv.Itoa(report.Processing.Rejections)},
		[]string{"finances", "revenue", money(report.Finances.Revenue)},
		[]string{"finances", "cost", money(report.Finances.Cost)},
		[]string{"finances", "profit", money(report.Finances.Profit)},
	)
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	notes := [][]string{nil, {"file_id", "applicant_name", "performed_by", "timestamp", "note"}}
	for _, note := range report.Notes {
		notes = append(notes, []string{note.FileID, note.ApplicantName, note.PerformedBy, note.Timestamp.Format(time.RFC3339), note.Note})
	}
	if err := writer.WriteAll(notes); err != nil {
		return fmt.Errorf("write notes: %w", err)
	}

	attendance := [][]string{nil, {"user_name", "role", "date", "login_time", "logout_time", "duration"}}
	for _, entry := range report.Attendance {
		logout := ""
		if entry.LogoutTime != nil {
			logout = entry.LogoutTime.Format(time.RFC3339)
		}
		attendance = append(attendance, []string{entry.UserName, entry.Role, entry.Date, entry.LoginTime.Format(time.RFC3339), logout, entry.Duration})
	}
	if err := writer.WriteAll(attendance); err != nil {
		return fmt.Errorf("write attendance: %w", err)
	}
	return nil
}

func money(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}

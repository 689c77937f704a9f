package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/webdoc-rokib/visa-track-sub000/internal/archive"
	"github.com/webdoc-rokib/visa-track-sub000/internal/derive"
	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
	"github.com/webdoc-rokib/visa-track-sub000/internal/stats"
)

const defaultActivityLimit = 20

type tasksResponse struct {
	Tasks []models.File `json:"tasks"`
	// PendingNotice is true only on the first non-empty task fetch of a session.
	PendingNotice bool `json:"pending_notice"`
	PendingCount  int  `json:"pending_count"`
}

type attendanceResponse struct {
	Period  string                  `json:"period"`
	Staff   string                  `json:"staff"`
	Entries []stats.AttendanceEntry `json:"entries"`
}

func (h *Handler) handleTasks(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	actor, _ := actorFromContext(r.Context())
	files, err := h.store.ListFiles(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	resp := tasksResponse{Tasks: derive.Tasks(files, actor)}
	resp.PendingCount = len(resp.Tasks)
	if resp.PendingCount > 0 {
		first, err := h.store.MarkPendingNotice(r.Context(), session.SessionID)
		if err != nil {
			log.WithError(err).WithField("user", actor.Name).Warn("pending notice flag not recorded")
		}
		resp.PendingNotice = first
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleReminders(w http.ResponseWriter, r *http.Request) {
	files, err := h.store.ListFiles(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	reminders := derive.Reminders(files, h.now(), h.loc, queryLimit(r, derive.DefaultReminderLimit))
	writeJSON(w, http.StatusOK, map[string]any{"reminders": reminders})
}

func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	files, err := h.store.ListFiles(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": derive.RecentActivity(files, queryLimit(r, defaultActivityLimit))})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	report, ok := h.computeReport(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleExportReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.computeReport(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := stats.WriteCSV(&buf, report); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "stats-"+report.Period+".csv"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleArchiveReport(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, requestIDFromRequest(r), http.StatusServiceUnavailable, "archive_disabled", "report archive is not configured")
		return
	}
	report, ok := h.computeReport(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := stats.WriteCSV(&buf, report); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	object, err := h.archiver.Archive(r.Context(), archive.ReportKey(report.Period, report.Staff, h.now()), buf.Bytes())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, object)
}

// computeReport reads period and staff from the query string.
func (h *Handler) computeReport(w http.ResponseWriter, r *http.Request) (stats.Report, bool) {
	period := stats.NormalizePeriod(r.URL.Query().Get("period"))
	now := h.now()
	start, err := stats.PeriodStart(period, now, h.loc)
	if err != nil {
		h.writeStoreError(w, r, err)
		return stats.Report{}, false
	}
	files, err := h.store.ListFiles(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return stats.Report{}, false
	}
	records, err := h.attendance.History(r.Context(), "", start.Format(models.DateLayout))
	if err != nil {
		h.writeStoreError(w, r, err)
		return stats.Report{}, false
	}
	report, err := stats.Compute(stats.Input{
		Files:      files,
		Attendance: records,
		Staff:      r.URL.Query().Get("staff"),
		Period:     period,
		Now:        now,
		Location:   h.loc,
	})
	if err != nil {
		h.writeStoreError(w, r, err)
		return stats.Report{}, false
	}
	return report, true
}

// handleAttendance lists sessions since the period start. Only admins may look at other staff.
func (h *Handler) handleAttendance(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	period := r.URL.Query().Get("period")
	if strings.TrimSpace(period) == "" {
		period = stats.PeriodAll
	}
	period = stats.NormalizePeriod(period)
	now := h.now()
	start, err := stats.PeriodStart(period, now, h.loc)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	staff := strings.TrimSpace(r.URL.Query().Get("staff"))
	if actor.Role != models.RoleAdmin {
		staff = actor.Name
	}
	userName := staff
	if stats.IsAllStaff(staff) {
		userName = ""
		staff = stats.AllStaff
	}

	records, err := h.attendance.History(r.Context(), userName, start.Format(models.DateLayout))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	resp := attendanceResponse{Period: period, Staff: staff, Entries: make([]stats.AttendanceEntry, 0, len(records))}
	for _, record := range records {
		resp.Entries = append(resp.Entries, stats.AttendanceEntry{
			AttendanceRecord: record,
			Duration:         stats.SessionDuration(record, now),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

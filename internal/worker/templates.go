package worker

import (
	"strings"

	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
	"github.com/webdoc-rokib/visa-track-sub000/internal/store"
)

const (
	TemplateSubmitted = "file.submitted"
	TemplateApproved  = "file.approved"
	TemplateRejected  = "file.rejected"
	TemplateHandover  = "file.handover"
	TemplateReminder  = "file.reminder"
)

var defaultTemplates = map[string]string{
	TemplateSubmitted: "File {file_id} ({applicant_name}) was submitted to the embassy.",
	TemplateApproved:  "Visa approved for {applicant_name}, file {file_id}.",
	TemplateRejected:  "Visa rejected for {applicant_name}, file {file_id}.",
	TemplateHandover:  "File {file_id} ({applicant_name}) was handed over to you for processing.",
	TemplateReminder:  "Reminder for file {file_id} ({applicant_name}) due {reminder_date}. Current status: {status}.",
}

// templateForEvent picks the notification template for a ledger event, or "" when the event
// notifies nobody.
func templateForEvent(eventType string, payload store.EventPayload) string {
	switch eventType {
	case store.EventFileHandover:
		return TemplateHandover
	case store.EventFileStatus:
		switch {
		case payload.Status == models.StatusSubmitted:
			return TemplateSubmitted
		case payload.Status == models.StatusDone && payload.VisaResult == models.ResultApproved:
			return TemplateApproved
		case payload.Status == models.StatusDone && payload.VisaResult == models.ResultRejected:
			return TemplateRejected
		case payload.Status == models.StatusHandoverProcessing:
			return TemplateHandover
		}
	}
	return ""
}

// recipientsFor returns who should hear about the event, never the person who caused it.
func recipientsFor(template string, payload store.EventPayload) []string {
	performer := ""
	if payload.Entry != nil {
		performer = payload.Entry.PerformedBy
	}
	candidates := []string{payload.AssignedTo}
	if template == TemplateApproved || template == TemplateRejected || template == TemplateSubmitted {
		candidates = append(candidates, payload.CreatedBy)
	}

	out := make([]string, 0, len(candidates))
	for _, name := range candidates {
		name = strings.TrimSpace(name)
		if name == "" || name == performer || name == models.ProcessingTeam || containsString(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

func renderTemplate(template string, payload store.EventPayload) string {
	result := template
	result = strings.ReplaceAll(result, "{file_id}", payload.FileID)
	result = strings.ReplaceAll(result, "{applicant_name}", payload.ApplicantName)
	result = strings.ReplaceAll(result, "{status}", models.StatusLabel(payload.Status))
	result = strings.ReplaceAll(result, "{result}", models.ResultLabel(payload.VisaResult))
	result = strings.ReplaceAll(result, "{reminder_date}", payload.ReminderDate)
	return result
}

func containsString(values []string, value string) bool {
	for _, item := range values {
		if item == value {
			return true
		}
	}
	return false
}

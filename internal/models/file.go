package models

import (
	"strings"
	"time"
)

type File struct {
	ID                            string         `json:"id"`
	FileID                        string         `json:"file_id"`
	ApplicantName                 string         `json:"applicant_name"`
	PassportNo                    string         `json:"passport_no"`
	ContactNo                     string         `json:"contact_no"`
	Destination                   string         `json:"destination"`
	ServiceCharge                 float64        `json:"service_charge"`
	Cost                          float64        `json:"cost"`
	Status                        string         `json:"status"`
	AssignedTo                    string         `json:"assigned_to"`
	VisaResult                    *string        `json:"visa_result"`
	AcknowledgedByProcessingAgent bool           `json:"acknowledged_by_processing_agent"`
	IsNewSale                     bool           `json:"is_new_sale"`
	ReminderDate                  string         `json:"reminder_date,omitempty"`
	CreatedBy                     string         `json:"created_by"`
	CreatedAt                     time.Time      `json:"created_at"`
	UpdatedAt                     time.Time      `json:"updated_at"`
	History                       []HistoryEntry `json:"history"`
}

// HistoryEntry is one ledger line. History slices are ordered newest first.
type HistoryEntry struct {
	Kind        string    `json:"kind"`
	Action      string    `json:"action"`
	Status      string    `json:"status"`
	Result      string    `json:"result,omitempty"`
	PerformedBy string    `json:"performed_by"`
	Timestamp   time.Time `json:"timestamp"`
}

const (
	StatusReceivedSales      = "RECEIVED_SALES"
	StatusHandoverProcessing = "HANDOVER_PROCESSING"
	StatusDocsPending        = "DOCS_PENDING"
	StatusPaymentPending     = "PAYMENT_PENDING"
	StatusSubmitted          = "SUBMITTED"
	StatusFollowUp           = "FOLLOW_UP"
	StatusDone               = "DONE"
)

const (
	ResultApproved = "APPROVED"
	ResultRejected = "REJECTED"
)

const (
	EntryCreated      = "created"
	EntryHandover     = "handover"
	EntryAcknowledged = "acknowledged"
	EntryStatus       = "status"
	EntryNote         = "note"
)

var statusLabels = map[string]string{
	StatusReceivedSales:      "Received by Sales",
	StatusHandoverProcessing: "Handed Over to Processing",
	StatusDocsPending:        "Documents Pending",
	StatusPaymentPending:     "Payment Pending",
	StatusSubmitted:          "Submitted to Embassy",
	StatusFollowUp:           "Follow Up",
	StatusDone:               "Done",
}

var resultLabels = map[string]string{
	ResultApproved: "Approved",
	ResultRejected: "Rejected",
}

func StatusLabel(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}

func ResultLabel(result string) string {
	if label, ok := resultLabels[result]; ok {
		return label
	}
	return result
}

func IsValidStatus(status string) bool {
	_, ok := statusLabels[status]
	return ok
}

func IsValidResult(result string) bool {
	_, ok := resultLabels[result]
	return ok
}

// Statuses lists every status in pipeline order.
func Statuses() []string {
	return []string{
		StatusReceivedSales,
		StatusHandoverProcessing,
		StatusDocsPending,
		StatusPaymentPending,
		StatusSubmitted,
		StatusFollowUp,
		StatusDone,
	}
}

// LatestTimestamp returns the timestamp of the newest history entry.
func (f File) LatestTimestamp() time.Time {
	if len(f.History) == 0 {
		return time.Time{}
	}
	return f.History[0].Timestamp
}

// NormalizeFileID makes file id lookups case-insensitive.
func NormalizeFileID(fileID string) string {
	return strings.ToUpper(strings.TrimSpace(fileID))
}

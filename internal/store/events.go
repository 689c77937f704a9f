package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
)

const (
	EventFileCreated      = "file.created"
	EventFileHandover     = "file.handover"
	EventFileAcknowledged = "file.acknowledged"
	EventFileStatus       = "file.status"
	EventFileNote         = "file.note"
	EventFileEdited       = "file.edited"
	EventFileDeleted      = "file.deleted"
)

// FileEvent is one row of the per-file hash-chained ledger. Position orders events globally.
type FileEvent struct {
	Position  int64           `json:"position"`
	FileID    string          `json:"file_id"`
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

// EventPayload snapshots the file after the mutation. Entry is nil for events that add no history.
type EventPayload struct {
	FileID        string               `json:"file_id"`
	ApplicantName string               `json:"applicant_name"`
	Status        string               `json:"status"`
	AssignedTo    string               `json:"assigned_to"`
	VisaResult    string               `json:"visa_result,omitempty"`
	ReminderDate  string               `json:"reminder_date,omitempty"`
	CreatedBy     string               `json:"created_by,omitempty"`
	Entry         *models.HistoryEntry `json:"entry,omitempty"`
}

func NewEventPayload(file models.File, withEntry bool) EventPayload {
	payload := EventPayload{
		FileID:        file.FileID,
		ApplicantName: file.ApplicantName,
		Status:        file.Status,
		AssignedTo:    file.AssignedTo,
		ReminderDate:  file.ReminderDate,
		CreatedBy:     file.CreatedBy,
	}
	if file.VisaResult != nil {
		payload.VisaResult = *file.VisaResult
	}
	if withEntry && len(file.History) > 0 {
		entry := file.History[0]
		payload.Entry = &entry
	}
	return payload
}

func (e FileEvent) DecodePayload() (EventPayload, error) {
	var payload EventPayload
	if len(e.Payload) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return EventPayload{}, fmt.Errorf("decode event %s/%d: %w", e.FileID, e.Seq, err)
	}
	return payload, nil
}

// EventTypeForEntry maps a history entry kind to its ledger event type.
func EventTypeForEntry(kind string) string {
	switch kind {
	case models.EntryCreated:
		return EventFileCreated
	case models.EntryHandover:
		return EventFileHandover
	case models.EntryAcknowledged:
		return EventFileAcknowledged
	case models.EntryNote:
		return EventFileNote
	default:
		return EventFileStatus
	}
}

func ComputeEventHash(prevHash, fileID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, fileID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// VerifyChain checks that events, ordered by seq, link and hash correctly.
func VerifyChain(events []FileEvent) error {
	prev := ""
	for i, event := range events {
		if event.Seq != i+1 {
			return fmt.Errorf("%w: expected seq %d, got %d", ErrChainBroken, i+1, event.Seq)
		}
		if event.PrevHash != prev {
			return fmt.Errorf("%w: seq %d does not link to previous hash", ErrChainBroken, event.Seq)
		}
		want := ComputeEventHash(event.PrevHash, event.FileID, event.Type, event.Payload, event.CreatedAt, event.Seq)
		if event.Hash != want {
			return fmt.Errorf("%w: seq %d hash mismatch", ErrChainBroken, event.Seq)
		}
		prev = event.Hash
	}
	return nil
}

// RehydrateHistory rebuilds a newest-first history from events ordered by seq.
func RehydrateHistory(events []FileEvent) ([]models.HistoryEntry, error) {
	history := make([]models.HistoryEntry, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		payload, err := events[i].DecodePayload()
		if err != nil {
			return nil, err
		}
		if payload.Entry == nil {
			continue
		}
		history = append(history, *payload.Entry)
	}
	return history, nil
}

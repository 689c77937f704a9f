package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
)

// NoteMarker precedes free-text notes inside history action text.
const NoteMarker = "Note:"

type clauses struct {
	assignee string
	reminder string
	cost     *float64
	note     string
}

func (c clauses) String() string {
	var b strings.Builder
	if c.assignee != "" {
		fmt.Fprintf(&b, " (Assigned to %s)", c.assignee)
	}
	if c.reminder != "" {
		fmt.Fprintf(&b, " (Reminder: %s)", c.reminder)
	}
	if c.cost != nil {
		fmt.Fprintf(&b, " (Cost: %.2f)", *c.cost)
	}
	if c.note != "" {
		fmt.Fprintf(&b, " - %s %s", NoteMarker, c.note)
	}
	return b.String()
}

func statusActionText(target, result string, c clauses) string {
	base := "Updated status to " + models.StatusLabel(target)
	if result != "" {
		base = "Result Received: " + models.ResultLabel(result)
	}
	return base + c.String()
}

// ExtractNote returns the text after the note marker, if the action carries one.
func ExtractNote(action string) (string, bool) {
	idx := strings.Index(action, NoteMarker)
	if idx < 0 {
		return "", false
	}
	return strings.TrimSpace(action[idx+len(NoteMarker):]), true
}

// prepend puts entry at the head of history, keeping timestamps non-increasing from the head.
func prepend(history []models.HistoryEntry, entry models.HistoryEntry) []models.HistoryEntry {
	if len(history) > 0 && entry.Timestamp.Before(history[0].Timestamp) {
		entry.Timestamp = history[0].Timestamp
	}
	out := make([]models.HistoryEntry, 0, len(history)+1)
	out = append(out, entry)
	return append(out, history...)
}

func newEntry(kind, action, status, result string, actor Actor, now time.Time) models.HistoryEntry {
	return models.HistoryEntry{
		Kind:        kind,
		Action:      action,
		Status:      status,
		Result:      result,
		PerformedBy: actor.Name,
		Timestamp:   now,
	}
}

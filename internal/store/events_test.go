package store

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
)

func buildChain(t *testing.T, entries []models.HistoryEntry) []FileEvent {
	t.Helper()
	events := make([]FileEvent, 0, len(entries))
	prev := ""
	for i, entry := range entries {
		entry := entry
		payload, err := json.Marshal(EventPayload{FileID: "VT-00001", Status: entry.Status, Entry: &entry})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		event := FileEvent{
			FileID:    "VT-00001",
			Seq:       i + 1,
			Type:      EventTypeForEntry(entry.Kind),
			Payload:   payload,
			CreatedAt: entry.Timestamp,
			PrevHash:  prev,
		}
		event.Hash = ComputeEventHash(event.PrevHash, event.FileID, event.Type, event.Payload, event.CreatedAt, event.Seq)
		prev = event.Hash
		events = append(events, event)
	}
	return events
}

func TestComputeEventHashStable(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := ComputeEventHash("", "VT-00001", EventFileCreated, json.RawMessage(`{"a":1}`), at, 1)
	b := ComputeEventHash("", "VT-00001", EventFileCreated, json.RawMessage(`{"a":1}`), at.In(time.FixedZone("x", 3600)), 1)
	if a != b {
		t.Fatalf("hash must not depend on time zone")
	}
	if c := ComputeEventHash("", "VT-00001", EventFileCreated, json.RawMessage(`{"a":2}`), at, 1); c == a {
		t.Fatalf("hash must depend on payload")
	}
}

func TestVerifyChainAndRehydrate(t *testing.T) {
	base := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	entries := []models.HistoryEntry{
		{Kind: models.EntryCreated, Action: "File Created", Status: models.StatusReceivedSales, Timestamp: base},
		{Kind: models.EntryHandover, Action: "Sent to Processing (Assigned to Pavel)", Status: models.StatusHandoverProcessing, Timestamp: base.Add(time.Minute)},
		{Kind: models.EntryNote, Action: "Note Added: hi", Status: models.StatusHandoverProcessing, Timestamp: base.Add(2 * time.Minute)},
	}
	events := buildChain(t, entries)
	if err := VerifyChain(events); err != nil {
		t.Fatalf("verify: %v", err)
	}

	history, err := RehydrateHistory(events)
	if err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if len(history) != 3 || history[0].Action != "Note Added: hi" || history[2].Action != "File Created" {
		t.Fatalf("unexpected history %+v", history)
	}

	tampered := append([]FileEvent(nil), events...)
	tampered[1].Payload = json.RawMessage(`{"file_id":"VT-00001"}`)
	if err := VerifyChain(tampered); !errors.Is(err, ErrChainBroken) {
		t.Fatalf("expected ErrChainBroken, got %v", err)
	}

	if err := VerifyChain(events[1:]); !errors.Is(err, ErrChainBroken) {
		t.Fatalf("expected ErrChainBroken for gap, got %v", err)
	}
}

func TestRehydrateSkipsEventsWithoutEntry(t *testing.T) {
	edited, _ := json.Marshal(EventPayload{FileID: "VT-00001", Status: models.StatusReceivedSales})
	events := []FileEvent{{FileID: "VT-00001", Seq: 1, Type: EventFileEdited, Payload: edited}}
	history, err := RehydrateHistory(events)
	if err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected no history, got %+v", history)
	}
}

func TestNewEventPayload(t *testing.T) {
	result := models.ResultRejected
	file := models.File{
		FileID:     "VT-00009",
		Status:     models.StatusDone,
		VisaResult: &result,
		History:    []models.HistoryEntry{{Action: "Result Received: Rejected"}},
	}
	payload := NewEventPayload(file, true)
	if payload.VisaResult != models.ResultRejected || payload.Entry == nil || payload.Entry.Action != "Result Received: Rejected" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if NewEventPayload(file, false).Entry != nil {
		t.Fatalf("expected no entry")
	}
}

package derive

import (
	"sort"
	"time"

	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
)

type Activity struct {
	FileID        string    `json:"file_id"`
	ApplicantName string    `json:"applicant_name"`
	Kind          string    `json:"kind"`
	Action        string    `json:"action"`
	Status        string    `json:"status"`
	PerformedBy   string    `json:"performed_by"`
	Timestamp     time.Time `json:"timestamp"`
}

// RecentActivity flattens every file's history and orders it newest first.
// Entries with equal timestamps keep their snapshot order.
func RecentActivity(files []models.File, limit int) []Activity {
	out := make([]Activity, 0)
	for _, file := range files {
		for _, entry := range file.History {
			out = append(out, Activity{
				FileID:        file.FileID,
				ApplicantName: file.ApplicantName,
				Kind:          entry.Kind,
				Action:        entry.Action,
				Status:        entry.Status,
				PerformedBy:   entry.PerformedBy,
				Timestamp:     entry.Timestamp,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

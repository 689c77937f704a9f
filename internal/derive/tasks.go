// Package derive computes the read-only views staff work from: tasks, reminders and the activity feed.
// Every function is a projection of a file snapshot and never mutates its input.
package derive

import (
	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
	"github.com/webdoc-rokib/visa-track-sub000/internal/workflow"
)

// Tasks returns the files the actor must act on next, in snapshot order.
// Submitted files leave the processing queue because they are with the embassy.
func Tasks(files []models.File, actor workflow.Actor) []models.File {
	out := make([]models.File, 0)
	for _, file := range files {
		if file.AssignedTo != actor.Name {
			continue
		}
		if file.Status == models.StatusDone {
			continue
		}
		if actor.Role == models.RoleProcessing && file.Status == models.StatusSubmitted {
			continue
		}
		out = append(out, file)
	}
	return out
}

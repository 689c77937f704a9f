// Package workflow holds the file status state machine. Every operation takes a file value and
// returns an updated copy; on error the input is returned untouched.
package workflow

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
)

type Actor struct {
	Name string
	Role string
}

type CreateInput struct {
	ApplicantName string
	PassportNo    string
	ContactNo     string
	Destination   string
	ServiceCharge float64
	Cost          float64
	IsNewSale     *bool
	ReminderDate  string
	Note          string
}

type StatusInput struct {
	Target       string
	Note         string
	AssignTo     string
	ReminderDate *string
	Cost         *float64
	Result       string
}

// EditInput overwrites only the non-nil fields.
type EditInput struct {
	ApplicantName *string
	PassportNo    *string
	ContactNo     *string
	Destination   *string
	ServiceCharge *float64
	Cost          *float64
	ReminderDate  *string
}

func NewFileID() string {
	return fmt.Sprintf("VT-%05d", rand.IntN(100000))
}

func NewFile(input CreateInput, actor Actor, now time.Time) (models.File, error) {
	if !RoleAllowed(ActionCreate, actor.Role) {
		return models.File{}, ErrNotPermitted
	}
	name := strings.TrimSpace(input.ApplicantName)
	if name == "" {
		return models.File{}, ErrApplicantRequired
	}
	if input.ServiceCharge < 0 || input.Cost < 0 {
		return models.File{}, ErrNegativeAmount
	}
	reminder := strings.TrimSpace(input.ReminderDate)
	if err := validateDate(reminder); err != nil {
		return models.File{}, err
	}
	isNewSale := true
	if input.IsNewSale != nil {
		isNewSale = *input.IsNewSale
	}

	file := models.File{
		FileID:        NewFileID(),
		ApplicantName: name,
		PassportNo:    strings.TrimSpace(input.PassportNo),
		ContactNo:     strings.TrimSpace(input.ContactNo),
		Destination:   strings.TrimSpace(input.Destination),
		ServiceCharge: input.ServiceCharge,
		Cost:          input.Cost,
		Status:        models.StatusReceivedSales,
		AssignedTo:    actor.Name,
		IsNewSale:     isNewSale,
		ReminderDate:  reminder,
		CreatedBy:     actor.Name,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	action := "File Created" + clauses{note: strings.TrimSpace(input.Note)}.String()
	file.History = []models.HistoryEntry{
		newEntry(models.EntryCreated, action, models.StatusReceivedSales, "", actor, now),
	}
	return file, nil
}

func SendToProcessing(file models.File, actor Actor, assignee, note string, now time.Time) (models.File, error) {
	assignee = strings.TrimSpace(assignee)
	if assignee == "" {
		return file, ErrAssigneeRequired
	}
	if err := check(ActionSendToProcessing, actor, file.Status); err != nil {
		return file, err
	}
	if !IsOwner(file, actor) {
		return file, ErrNotPermitted
	}

	next := file
	next.Status = models.StatusHandoverProcessing
	next.AssignedTo = assignee
	next.AcknowledgedByProcessingAgent = false
	next.UpdatedAt = now
	action := "Sent to Processing" + clauses{assignee: assignee, note: strings.TrimSpace(note)}.String()
	next.History = prepend(file.History, newEntry(models.EntryHandover, action, next.Status, "", actor, now))
	return next, nil
}

// Acknowledge lets a processing agent claim a handed-over file. The status does not change.
func Acknowledge(file models.File, actor Actor, now time.Time) (models.File, error) {
	if err := check(ActionAcknowledge, actor, file.Status); err != nil {
		return file, err
	}
	if file.AcknowledgedByProcessingAgent {
		return file, ErrInvalidState
	}
	if !IsOwner(file, actor) {
		return file, ErrNotPermitted
	}

	next := file
	next.AssignedTo = actor.Name
	next.AcknowledgedByProcessingAgent = true
	next.UpdatedAt = now
	action := "Acknowledged by " + actor.Name
	next.History = prepend(file.History, newEntry(models.EntryAcknowledged, action, file.Status, "", actor, now))
	return next, nil
}

func UpdateStatus(file models.File, actor Actor, input StatusInput, now time.Time) (models.File, error) {
	target := strings.TrimSpace(input.Target)
	result := strings.TrimSpace(input.Result)
	if target == models.StatusDone && result == "" {
		return file, ErrResultRequired
	}
	if result != "" && target != models.StatusDone {
		return file, ErrResultNotAllowed
	}
	if result != "" && !models.IsValidResult(result) {
		return file, ErrInvalidResult
	}
	reminder := ""
	if input.ReminderDate != nil {
		reminder = strings.TrimSpace(*input.ReminderDate)
	}
	if err := validateDate(reminder); err != nil {
		return file, err
	}
	if input.Cost != nil && *input.Cost < 0 {
		return file, ErrNegativeAmount
	}
	if err := check(ActionUpdateStatus, actor, file.Status); err != nil {
		return file, err
	}
	if !models.IsValidStatus(target) || !ValidTarget(file.Status, target) {
		return file, ErrInvalidTarget
	}
	if !IsOwner(file, actor) {
		return file, ErrNotPermitted
	}

	next := file
	next.Status = target
	next.UpdatedAt = now

	assignee := strings.TrimSpace(input.AssignTo)
	switch {
	case assignee != "":
		next.AssignedTo = assignee
	case target == models.StatusHandoverProcessing && (file.AssignedTo == "" || file.AssignedTo == actor.Name):
		next.AssignedTo = models.ProcessingTeam
	}
	if target == models.StatusHandoverProcessing {
		next.AcknowledgedByProcessingAgent = false
	}
	c := clauses{reminder: reminder, cost: input.Cost, note: strings.TrimSpace(input.Note)}
	if next.AssignedTo != file.AssignedTo {
		c.assignee = next.AssignedTo
	}
	if reminder != "" {
		next.ReminderDate = reminder
	}
	if input.Cost != nil {
		next.Cost = *input.Cost
	}
	if result != "" {
		value := result
		next.VisaResult = &value
	}

	action := statusActionText(target, result, c)
	next.History = prepend(file.History, newEntry(models.EntryStatus, action, target, result, actor, now))
	return next, nil
}

// CheckAssignee reports whether name may receive a handed-over file. Only processing agents on
// the staff list and the team placeholder qualify. An empty name is left to the operation.
func CheckAssignee(name string, staff []models.StaffUser) error {
	name = strings.TrimSpace(name)
	if name == "" || name == models.ProcessingTeam {
		return nil
	}
	for _, user := range staff {
		if user.FullName == name && user.Role == models.RoleProcessing {
			return nil
		}
	}
	return ErrAssigneeNotAgent
}

func AddNote(file models.File, actor Actor, text string, now time.Time) (models.File, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return file, ErrEmptyNote
	}
	if err := check(ActionAddNote, actor, file.Status); err != nil {
		return file, err
	}

	next := file
	next.UpdatedAt = now
	next.History = prepend(file.History, newEntry(models.EntryNote, "Note Added: "+text, file.Status, "", actor, now))
	return next, nil
}

// Edit overwrites descriptive and money fields without touching status or history.
func Edit(file models.File, actor Actor, input EditInput, now time.Time) (models.File, error) {
	if !RoleAllowed(ActionEdit, actor.Role) {
		return file, ErrNotPermitted
	}
	if (input.ServiceCharge != nil && *input.ServiceCharge < 0) || (input.Cost != nil && *input.Cost < 0) {
		return file, ErrNegativeAmount
	}
	if input.ApplicantName != nil && strings.TrimSpace(*input.ApplicantName) == "" {
		return file, ErrApplicantRequired
	}
	if input.ReminderDate != nil {
		if err := validateDate(strings.TrimSpace(*input.ReminderDate)); err != nil {
			return file, err
		}
	}

	next := file
	if input.ApplicantName != nil {
		next.ApplicantName = strings.TrimSpace(*input.ApplicantName)
	}
	if input.PassportNo != nil {
		next.PassportNo = strings.TrimSpace(*input.PassportNo)
	}
	if input.ContactNo != nil {
		next.ContactNo = strings.TrimSpace(*input.ContactNo)
	}
	if input.Destination != nil {
		next.Destination = strings.TrimSpace(*input.Destination)
	}
	if input.ServiceCharge != nil {
		next.ServiceCharge = *input.ServiceCharge
	}
	if input.Cost != nil {
		next.Cost = *input.Cost
	}
	if input.ReminderDate != nil {
		next.ReminderDate = strings.TrimSpace(*input.ReminderDate)
	}
	next.UpdatedAt = now
	return next, nil
}

func CanDelete(actor Actor) error {
	if !RoleAllowed(ActionDelete, actor.Role) {
		return ErrNotPermitted
	}
	return nil
}

func validateDate(value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse(models.DateLayout, value); err != nil {
		return ErrInvalidReminderDate
	}
	return nil
}

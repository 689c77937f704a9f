package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
	"github.com/webdoc-rokib/visa-track-sub000/internal/store"
	"github.com/webdoc-rokib/visa-track-sub000/internal/workflow"
)

type createFileRequest struct {
	ApplicantName string  `json:"applicant_name"`
	PassportNo    string  `json:"passport_no"`
	ContactNo     string  `json:"contact_no"`
	Destination   string  `json:"destination"`
	ServiceCharge float64 `json:"service_charge"`
	Cost          float64 `json:"cost"`
	IsNewSale     *bool   `json:"is_new_sale"`
	ReminderDate  string  `json:"reminder_date"`
	Note          string  `json:"note"`
}

type editFileRequest struct {
	ApplicantName *string  `json:"applicant_name"`
	PassportNo    *string  `json:"passport_no"`
	ContactNo     *string  `json:"contact_no"`
	Destination   *string  `json:"destination"`
	ServiceCharge *float64 `json:"service_charge"`
	Cost          *float64 `json:"cost"`
	ReminderDate  *string  `json:"reminder_date"`
}

type sendToProcessingRequest struct {
	AssignTo string `json:"assign_to"`
	Note     string `json:"note"`
}

type updateStatusRequest struct {
	Status       string   `json:"status"`
	Note         string   `json:"note"`
	AssignTo     string   `json:"assign_to"`
	ReminderDate *string  `json:"reminder_date"`
	Cost         *float64 `json:"cost"`
	Result       string   `json:"result"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type deleteConfirmRequest struct {
	Token string `json:"token"`
}

type fileEventsResponse struct {
	FileID      string            `json:"file_id"`
	Events      []store.FileEvent `json:"events"`
	Verified    bool              `json:"verified"`
	VerifyError string            `json:"verify_error,omitempty"`
}

type fileAction func(ctx context.Context, input store.FileActionInput) (models.File, bool, error)

func (h *Handler) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.store.ListFiles(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	assignedTo := strings.TrimSpace(r.URL.Query().Get("assigned_to"))
	out := make([]models.File, 0, len(files))
	for _, file := range files {
		if status != "" && file.Status != status {
			continue
		}
		if assignedTo != "" && file.AssignedTo != assignedTo {
			continue
		}
		out = append(out, file)
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": out})
}

func (h *Handler) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	var req createFileRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	file, err := h.store.CreateFile(r.Context(), workflow.CreateInput{
		ApplicantName: req.ApplicantName,
		PassportNo:    req.PassportNo,
		ContactNo:     req.ContactNo,
		Destination:   req.Destination,
		ServiceCharge: req.ServiceCharge,
		Cost:          req.Cost,
		IsNewSale:     req.IsNewSale,
		ReminderDate:  req.ReminderDate,
		Note:          req.Note,
	}, actor)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, file)
}

func (h *Handler) handleGetFile(w http.ResponseWriter, r *http.Request) {
	file, ok, err := h.store.GetFile(r.Context(), models.NormalizeFileID(chi.URLParam(r, "fileId")))
	if err != nil || !ok {
		h.writeStoreError(w, r, notFoundIfNil(err))
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (h *Handler) handleEditFile(w http.ResponseWriter, r *http.Request) {
	var req editFileRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	h.runFileAction(w, r, h.store.EditFile, store.FileActionInput{
		Edit: workflow.EditInput{
			ApplicantName: req.ApplicantName,
			PassportNo:    req.PassportNo,
			ContactNo:     req.ContactNo,
			Destination:   req.Destination,
			ServiceCharge: req.ServiceCharge,
			Cost:          req.Cost,
			ReminderDate:  req.ReminderDate,
		},
	})
}

func (h *Handler) handleSendToProcessing(w http.ResponseWriter, r *http.Request) {
	var req sendToProcessingRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if !h.checkAssignee(w, r, req.AssignTo) {
		return
	}
	h.runFileAction(w, r, h.store.SendToProcessing, store.FileActionInput{
		Assignee: req.AssignTo,
		Note:     req.Note,
	})
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	h.runFileAction(w, r, h.store.Acknowledge, store.FileActionInput{})
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if !h.checkAssignee(w, r, req.AssignTo) {
		return
	}
	h.runFileAction(w, r, h.store.UpdateStatus, store.FileActionInput{
		Status: workflow.StatusInput{
			Target:       strings.ToUpper(strings.TrimSpace(req.Status)),
			Note:         req.Note,
			AssignTo:     req.AssignTo,
			ReminderDate: req.ReminderDate,
			Cost:         req.Cost,
			Result:       strings.ToUpper(strings.TrimSpace(req.Result)),
		},
	})
}

func (h *Handler) handleAddNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	h.runFileAction(w, r, h.store.AddNote, store.FileActionInput{Note: req.Note})
}

// checkAssignee rejects hand-overs to anyone who is not a processing agent before the write.
func (h *Handler) checkAssignee(w http.ResponseWriter, r *http.Request, name string) bool {
	if strings.TrimSpace(name) == "" {
		return true
	}
	staff, err := h.store.ListUsers(r.Context())
	if err == nil {
		err = workflow.CheckAssignee(name, staff)
	}
	if err != nil {
		h.writeStoreError(w, r, err)
		return false
	}
	return true
}

// runFileAction fills in the file id and actor, runs the mutation and returns the updated file.
func (h *Handler) runFileAction(w http.ResponseWriter, r *http.Request, action fileAction, input store.FileActionInput) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	input.FileID = models.NormalizeFileID(chi.URLParam(r, "fileId"))
	input.Actor = actor

	file, found, err := action(r.Context(), input)
	if err != nil || !found {
		h.writeStoreError(w, r, notFoundIfNil(err))
		return
	}
	h.tracking.Invalidate(file.FileID)
	writeJSON(w, http.StatusOK, file)
}

func (h *Handler) handleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	request, found, err := h.store.RequestDeletion(r.Context(), models.NormalizeFileID(chi.URLParam(r, "fileId")), actor)
	if err != nil || !found {
		h.writeStoreError(w, r, notFoundIfNil(err))
		return
	}
	writeJSON(w, http.StatusAccepted, request)
}

func (h *Handler) handleDeleteConfirm(w http.ResponseWriter, r *http.Request) {
	var req deleteConfirmRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "token is required")
		return
	}
	actor, _ := actorFromContext(r.Context())
	fileID := models.NormalizeFileID(chi.URLParam(r, "fileId"))
	deleted, err := h.store.ConfirmDeletion(r.Context(), fileID, req.Token, actor)
	if err != nil || !deleted {
		h.writeStoreError(w, r, notFoundIfNil(err))
		return
	}
	h.tracking.Invalidate(fileID)
	writeJSON(w, http.StatusOK, map[string]any{"file_id": fileID, "deleted": true})
}

func (h *Handler) handleFileEvents(w http.ResponseWriter, r *http.Request) {
	fileID := models.NormalizeFileID(chi.URLParam(r, "fileId"))
	events, err := h.store.ListFileEvents(r.Context(), fileID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if len(events) == 0 {
		h.writeStoreError(w, r, store.ErrFileNotFound)
		return
	}
	resp := fileEventsResponse{FileID: fileID, Events: events, Verified: true}
	if err := store.VerifyChain(events); err != nil {
		resp.Verified = false
		resp.VerifyError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func notFoundIfNil(err error) error {
	if err == nil {
		return store.ErrFileNotFound
	}
	return err
}

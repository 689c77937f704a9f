package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
	"github.com/webdoc-rokib/visa-track-sub000/internal/store"
)

const defaultNotificationLimit = 50

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID  string                   `json:"session_id"`
	ExpiresAt  time.Time                `json:"expires_at"`
	User       models.StaffUser         `json:"user"`
	Attendance *models.AttendanceRecord `json:"attendance,omitempty"`
}

type createUserRequest struct {
	FullName string `json:"full_name"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type destinationRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}
	result, err := h.store.Login(r.Context(), store.LoginInput{Username: req.Username, Password: req.Password})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	resp := loginResponse{
		SessionID: result.Session.SessionID,
		ExpiresAt: result.Session.ExpiresAt,
		User:      result.User,
	}
	// A failed attendance write must not lock staff out.
	record, created, err := h.attendance.Login(r.Context(), result.User)
	if err != nil {
		log.WithError(err).WithField("user", result.User.FullName).Warn("attendance session not opened")
	} else {
		resp.Attendance = &record
		log.WithFields(log.Fields{"user": record.UserName, "date": record.Date, "created": created}).Info("attendance login")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	record, closed, err := h.attendance.Logout(r.Context(), session.FullName)
	if err != nil {
		log.WithError(err).WithField("user", session.FullName).Warn("attendance session not closed")
	}
	if err := h.store.DeleteSession(r.Context(), session.SessionID); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	resp := map[string]any{"logged_out": true}
	if closed {
		resp["attendance"] = record
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	role := strings.TrimSpace(r.URL.Query().Get("role"))
	out := make([]models.StaffUser, 0, len(users))
	for _, user := range users {
		if role != "" && user.Role != role {
			continue
		}
		out = append(out, user)
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.FullName = strings.TrimSpace(req.FullName)
	req.Username = strings.TrimSpace(req.Username)
	req.Role = strings.TrimSpace(req.Role)
	if req.FullName == "" || req.Username == "" || req.Password == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "full_name, username and password are required")
		return
	}
	if !models.IsValidRole(req.Role) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "role must be one of Sales Representative, Processing Agent, Manager/Admin")
		return
	}
	user, err := h.store.CreateUser(r.Context(), models.StaffUser{
		FullName: req.FullName,
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	session, _ := sessionFromContext(r.Context())
	if userID == session.UserID {
		writeError(w, requestIDFromRequest(r), http.StatusConflict, "invalid_state", "cannot delete the signed-in user")
		return
	}
	deleted, err := h.store.DeleteUser(r.Context(), userID)
	if err == nil && !deleted {
		err = store.ErrUserNotFound
	}
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListDestinations(w http.ResponseWriter, r *http.Request) {
	destinations, err := h.store.ListDestinations(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if destinations == nil {
		destinations = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"destinations": destinations})
}

func (h *Handler) handleAddDestination(w http.ResponseWriter, r *http.Request) {
	var req destinationRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	if err := h.store.AddDestination(r.Context(), name); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"name": name})
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	notifications, err := h.store.ListNotifications(r.Context(), actor.Name, queryLimit(r, defaultNotificationLimit))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

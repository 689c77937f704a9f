package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/webdoc-rokib/visa-track-sub000/internal/archive"
	"github.com/webdoc-rokib/visa-track-sub000/internal/attendance"
	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
	"github.com/webdoc-rokib/visa-track-sub000/internal/stats"
	"github.com/webdoc-rokib/visa-track-sub000/internal/store"
	"github.com/webdoc-rokib/visa-track-sub000/internal/tracking"
	"github.com/webdoc-rokib/visa-track-sub000/internal/workflow"
)

// ReadinessChecker reports dependency health for /readyz.
type ReadinessChecker interface {
	CheckReady() (status string, message string)
}

type Handler struct {
	store      store.Store
	attendance *attendance.Tracker
	tracking   *tracking.Service
	archiver   archive.Archiver
	ready      ReadinessChecker
	limiter    *RateLimiter
	loc        *time.Location
	clock      func() time.Time
}

type Options struct {
	Attendance *attendance.Tracker
	Tracking   *tracking.Service
	// Archiver is optional; report archiving answers 503 without it.
	Archiver  archive.Archiver
	Ready     ReadinessChecker
	RateLimit RateLimitConfig
	Location  *time.Location
	Clock     func() time.Time
}

type errorResponse struct {
	RequestID string        `json:"request_id,omitempty"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(st store.Store, options Options) *Handler {
	h := &Handler{
		store:      st,
		attendance: options.Attendance,
		tracking:   options.Tracking,
		archiver:   options.Archiver,
		ready:      options.Ready,
		limiter:    NewRateLimiter(options.RateLimit),
		loc:        options.Location,
		clock:      options.Clock,
	}
	if h.attendance == nil {
		h.attendance = attendance.NewTracker(st, attendance.Options{Location: options.Location, Clock: options.Clock})
	}
	if h.tracking == nil {
		h.tracking = tracking.NewService(st, 0, time.Minute)
	}
	if h.loc == nil {
		h.loc = time.Local
	}
	if h.clock == nil {
		h.clock = time.Now
	}
	return h
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(LoggingMiddleware)
	r.Use(h.limiter.Middleware)

	r.Get("/healthz", h.handleHealth)
	r.Get("/readyz", h.handleReady)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/auth/login", h.handleLogin)
	r.Get("/api/track/{fileId}", h.handleTrack)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(h.store))
		r.Use(h.limiter.UserMiddleware)

		r.Post("/api/auth/logout", h.handleLogout)
		r.Get("/api/auth/me", h.handleMe)

		r.Get("/api/files", h.handleListFiles)
		r.Post("/api/files", h.handleCreateFile)
		r.Route("/api/files/{fileId}", func(r chi.Router) {
			r.Get("/", h.handleGetFile)
			r.With(requireRole(models.RoleAdmin)).Patch("/", h.handleEditFile)
			r.Post("/send-to-processing", h.handleSendToProcessing)
			r.Post("/acknowledge", h.handleAcknowledge)
			r.Post("/status", h.handleUpdateStatus)
			r.Post("/notes", h.handleAddNote)
			r.Get("/events", h.handleFileEvents)
			r.With(requireRole(models.RoleAdmin)).Post("/delete-request", h.handleDeleteRequest)
			r.With(requireRole(models.RoleAdmin)).Post("/delete-confirm", h.handleDeleteConfirm)
		})

		r.Get("/api/tasks", h.handleTasks)
		r.Get("/api/reminders", h.handleReminders)
		r.Get("/api/activity", h.handleActivity)
		r.Get("/api/attendance", h.handleAttendance)
		r.Get("/api/notifications", h.handleNotifications)
		r.Get("/api/destinations", h.handleListDestinations)
		r.Get("/api/users", h.handleListUsers)

		r.Group(func(r chi.Router) {
			r.Use(requireRole(models.RoleAdmin))
			r.Get("/api/stats", h.handleStats)
			r.Get("/api/reports/export", h.handleExportReport)
			r.Post("/api/reports/archive", h.handleArchiveReport)
			r.Post("/api/users", h.handleCreateUser)
			r.Delete("/api/users/{userId}", h.handleDeleteUser)
			r.Post("/api/destinations", h.handleAddDestination)
		})
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, message := h.ready.CheckReady()
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status, "message": message})
}

func (h *Handler) handleTrack(w http.ResponseWriter, r *http.Request) {
	view, err := h.tracking.Lookup(r.Context(), chi.URLParam(r, "fileId"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) now() time.Time {
	return h.clock().UTC()
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapError(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
	}
	writeError(w, requestIDFromRequest(r), status, code, message)
}

func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func queryLimit(r *http.Request, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrFileNotFound):
		return http.StatusNotFound, "file_not_found", "file not found"
	case errors.Is(err, workflow.ErrNotPermitted):
		return http.StatusForbidden, "access_denied", workflow.ErrNotPermitted.Error()
	case errors.Is(err, workflow.ErrInvalidState):
		return http.StatusConflict, "invalid_state", workflow.ErrInvalidState.Error()
	case errors.Is(err, workflow.ErrInvalidTarget):
		return http.StatusConflict, "invalid_target", workflow.ErrInvalidTarget.Error()
	case workflow.IsValidation(err):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, stats.ErrInvalidPeriod):
		return http.StatusBadRequest, "invalid_request", stats.ErrInvalidPeriod.Error()
	case errors.Is(err, store.ErrDeleteTokenInvalid):
		return http.StatusConflict, "invalid_token", store.ErrDeleteTokenInvalid.Error()
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid username or password"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	case errors.Is(err, store.ErrUserExists):
		return http.StatusConflict, "user_exists", store.ErrUserExists.Error()
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", store.ErrUserNotFound.Error()
	case errors.Is(err, store.ErrDestinationExists):
		return http.StatusConflict, "destination_exists", store.ErrDestinationExists.Error()
	case errors.Is(err, store.ErrFileIDExhausted):
		return http.StatusServiceUnavailable, "file_id_exhausted", "could not allocate a file id, retry"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

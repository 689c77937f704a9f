package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
	"github.com/webdoc-rokib/visa-track-sub000/internal/store"
	"github.com/webdoc-rokib/visa-track-sub000/internal/workflow"
)

type authContextKey struct{}

// AuthMiddleware resolves the session from a bearer token or the X-Session-ID header.
func AuthMiddleware(sessions store.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := SessionIDFromRequest(r)
			if sessionID == "" {
				writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
				return
			}
			session, err := sessions.GetSession(r.Context(), sessionID)
			if err != nil {
				if errors.Is(err, store.ErrSessionNotFound) {
					writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid session")
					return
				}
				log.WithError(err).Error("session lookup failed")
				writeError(w, requestIDFromRequest(r), http.StatusInternalServerError, "internal_error", "internal server error")
				return
			}
			if entry := requestLogFromContext(r.Context()); entry != nil {
				entry.user = session.FullName
			}
			ctx := context.WithValue(r.Context(), authContextKey{}, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFromContext(ctx context.Context) (models.Session, bool) {
	session, ok := ctx.Value(authContextKey{}).(models.Session)
	return session, ok
}

// actorFromContext names the caller the way history entries and assignments name staff.
func actorFromContext(ctx context.Context) (workflow.Actor, bool) {
	session, ok := sessionFromContext(ctx)
	if !ok {
		return workflow.Actor{}, false
	}
	return workflow.Actor{Name: session.FullName, Role: session.Role}, true
}

func requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := sessionFromContext(r.Context())
			if !ok {
				writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
				return
			}
			for _, role := range roles {
				if session.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "role not permitted")
		})
	}
}

// SessionIDFromRequest also accepts a session query parameter for clients that cannot set headers.
func SessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if header := strings.TrimSpace(r.Header.Get("X-Session-ID")); header != "" {
		return header
	}
	return strings.TrimSpace(r.URL.Query().Get("session"))
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

package postgres

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
	"github.com/webdoc-rokib/visa-track-sub000/internal/store"
)

func (s *Store) Login(ctx context.Context, input store.LoginInput) (store.LoginResult, error) {
	var user models.StaffUser
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, full_name, username, password, role, created_at
		FROM staff_users
		WHERE lower(username) = lower($1)
	`, strings.TrimSpace(input.Username))
	if err := row.Scan(&user.UserID, &user.FullName, &user.Username, &user.Password, &user.Role, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.LoginResult{}, store.ErrInvalidCredentials
		}
		return store.LoginResult{}, err
	}

	if !passwordMatches(user.Password, input.Password) {
		return store.LoginResult{}, store.ErrInvalidCredentials
	}
	user.Password = ""

	session := models.Session{
		SessionID: uuid.NewString(),
		UserID:    user.UserID,
		Username:  user.Username,
		FullName:  user.FullName,
		Role:      user.Role,
		ExpiresAt: s.now().Add(s.sessionTTL),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, session.SessionID, session.UserID, session.ExpiresAt)
	if err != nil {
		return store.LoginResult{}, err
	}
	return store.LoginResult{User: user, Session: session}, nil
}

// passwordMatches accepts bcrypt hashes and, for accounts created before hashing, stored plaintext.
func passwordMatches(stored, given string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (models.Session, error) {
	var session models.Session
	row := s.pool.QueryRow(ctx, `
		SELECT s.session_id, s.user_id, u.username, u.full_name, u.role, s.pending_notice_sent, s.expires_at
		FROM sessions s
		JOIN staff_users u ON u.user_id = s.user_id
		WHERE s.session_id = $1 AND s.expires_at > $2
	`, sessionID, s.now())
	if err := row.Scan(&session.SessionID, &session.UserID, &session.Username, &session.FullName, &session.Role, &session.PendingNoticeSent, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, store.ErrSessionNotFound
		}
		return models.Session{}, err
	}
	return session, nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	return err
}

func (s *Store) MarkPendingNotice(ctx context.Context, sessionID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET pending_notice_sent = TRUE
		WHERE session_id = $1 AND pending_notice_sent = FALSE
	`, sessionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) CreateUser(ctx context.Context, user models.StaffUser) (models.StaffUser, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.StaffUser{}, err
	}
	user.UserID = uuid.NewString()
	user.CreatedAt = s.now()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO staff_users (user_id, full_name, username, password, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.UserID, user.FullName, user.Username, string(hash), user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.StaffUser{}, store.ErrUserExists
		}
		return models.StaffUser{}, err
	}
	user.Password = ""
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.StaffUser, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, full_name, username, role, created_at
		FROM staff_users
		ORDER BY full_name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]models.StaffUser, 0)
	for rows.Next() {
		var user models.StaffUser
		if err := rows.Scan(&user.UserID, &user.FullName, &user.Username, &user.Role, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) (bool, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return false, store.ErrUserNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM staff_users WHERE user_id = $1`, userID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, store.ErrUserNotFound
	}
	return true, nil
}

package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
	"github.com/webdoc-rokib/visa-track-sub000/internal/store"
)

func (s *Store) InsertNotification(ctx context.Context, notification models.Notification) error {
	if notification.NotificationID == "" {
		notification.NotificationID = uuid.NewString()
	}
	if notification.Status == "" {
		notification.Status = models.NotificationPending
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (notification_id, recipient, channel, template, message, file_id, status, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, notification.NotificationID, notification.Recipient, notification.Channel, notification.Template,
		notification.Message, nullIfEmpty(notification.FileID), notification.Status, notification.Attempts)
	return err
}

func (s *Store) MarkNotificationSent(ctx context.Context, notificationID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET status = 'sent', sent_at = NOW(), last_error = NULL, attempts = attempts + 1
		WHERE notification_id = $1
	`, notificationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotificationUnknown
	}
	return nil
}

func (s *Store) MarkNotificationFailed(ctx context.Context, notificationID, lastError string) (int, error) {
	var attempts int
	row := s.pool.QueryRow(ctx, `
		UPDATE notifications
		SET status = 'failed', last_error = $2, attempts = attempts + 1
		WHERE notification_id = $1
		RETURNING attempts
	`, notificationID, lastError)
	if err := row.Scan(&attempts); err != nil {
		return 0, err
	}
	return attempts, nil
}

func (s *Store) InsertDLQ(ctx context.Context, notificationID, reason string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_dlq (notification_id, reason)
		VALUES ($1, $2)
	`, notificationID, reason)
	return err
}

// ListNotifications returns the newest notifications for recipient. An empty recipient lists all.
func (s *Store) ListNotifications(ctx context.Context, recipient string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT notification_id, recipient, channel, template, message, COALESCE(file_id, ''),
		       status, attempts, COALESCE(last_error, ''), created_at, sent_at
		FROM notifications
		WHERE $1 = '' OR recipient = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, recipient, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]models.Notification, 0)
	for rows.Next() {
		var n models.Notification
		var sentAt sql.NullTime
		if err := rows.Scan(&n.NotificationID, &n.Recipient, &n.Channel, &n.Template, &n.Message, &n.FileID,
			&n.Status, &n.Attempts, &n.LastError, &n.CreatedAt, &sentAt); err != nil {
			return nil, err
		}
		n.SentAt = nullTimePtr(sentAt)
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notifications, nil
}

var _ store.Store = (*Store)(nil)

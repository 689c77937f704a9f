package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
	"github.com/webdoc-rokib/visa-track-sub000/internal/store"
)

// insertFileEvent appends to the file's hash chain. The advisory lock serialises writers per file id,
// including the first event of a new file.
func insertFileEvent(ctx context.Context, tx pgx.Tx, fileID, eventType string, payload []byte, createdAt time.Time) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, fileID); err != nil {
		return err
	}

	var lastSeq int
	var prevHash sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT seq, hash
		FROM file_events
		WHERE file_id = $1
		ORDER BY seq DESC
		LIMIT 1
		FOR UPDATE
	`, fileID)
	if err := row.Scan(&lastSeq, &prevHash); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	nextSeq := lastSeq + 1
	prev := ""
	if prevHash.Valid {
		prev = prevHash.String
	}
	createdAt = createdAt.UTC().Truncate(time.Microsecond)
	hash := store.ComputeEventHash(prev, fileID, eventType, payload, createdAt, nextSeq)

	_, err := tx.Exec(ctx, `
		INSERT INTO file_events (file_id, seq, type, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, fileID, nextSeq, eventType, string(payload), createdAt, prev, hash)
	return err
}

func (s *Store) ListFileEvents(ctx context.Context, fileID string) ([]store.FileEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT position, file_id, seq, type, payload::text, created_at, prev_hash, hash
		FROM file_events
		WHERE file_id = $1
		ORDER BY seq ASC
	`, models.NormalizeFileID(fileID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Store) ListEventsAfter(ctx context.Context, position int64, limit int) ([]store.FileEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT position, file_id, seq, type, payload::text, created_at, prev_hash, hash
		FROM file_events
		WHERE position > $1
		ORDER BY position ASC
		LIMIT $2
	`, position, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]store.FileEvent, error) {
	events := make([]store.FileEvent, 0)
	for rows.Next() {
		var event store.FileEvent
		var payload string
		if err := rows.Scan(&event.Position, &event.FileID, &event.Seq, &event.Type, &payload, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, err
		}
		event.Payload = []byte(payload)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) GetOffset(ctx context.Context, consumer string) (int64, error) {
	var position int64
	row := s.pool.QueryRow(ctx, `
		SELECT position
		FROM consumer_offsets
		WHERE consumer = $1
	`, consumer)
	if err := row.Scan(&position); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return position, nil
}

func (s *Store) UpdateOffset(ctx context.Context, consumer string, position int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO consumer_offsets (consumer, position, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (consumer) DO UPDATE
		SET position = GREATEST(consumer_offsets.position, EXCLUDED.position), updated_at = NOW()
	`, consumer, position)
	return err
}

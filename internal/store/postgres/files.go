package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
	"github.com/webdoc-rokib/visa-track-sub000/internal/store"
	"github.com/webdoc-rokib/visa-track-sub000/internal/workflow"
)

const fileColumns = `
	f.id, f.file_id, f.applicant_name, f.passport_no, f.contact_no, f.destination,
	f.service_charge::float8, f.cost::float8, f.status, f.assigned_to, f.visa_result,
	f.acknowledged, f.is_new_sale, COALESCE(to_char(f.reminder_date, 'YYYY-MM-DD'), ''),
	f.created_by, f.created_at, f.updated_at`

func scanFile(row pgx.Row) (models.File, error) {
	var file models.File
	var visaResult sql.NullString
	err := row.Scan(
		&file.ID, &file.FileID, &file.ApplicantName, &file.PassportNo, &file.ContactNo, &file.Destination,
		&file.ServiceCharge, &file.Cost, &file.Status, &file.AssignedTo, &visaResult,
		&file.AcknowledgedByProcessingAgent, &file.IsNewSale, &file.ReminderDate,
		&file.CreatedBy, &file.CreatedAt, &file.UpdatedAt,
	)
	if err != nil {
		return models.File{}, err
	}
	file.VisaResult = nullStringPtr(visaResult)
	return file, nil
}

func (s *Store) CreateFile(ctx context.Context, input workflow.CreateInput, actor workflow.Actor) (models.File, error) {
	for attempt := 0; attempt < fileIDAttempts; attempt++ {
		file, err := workflow.NewFile(input, actor, s.now())
		if err != nil {
			return models.File{}, err
		}
		file.ID = uuid.NewString()

		err = s.insertFile(ctx, file)
		if err == nil {
			return file, nil
		}
		if isUniqueViolation(err) && isConstraint(err, "files_file_id_key") {
			continue
		}
		return models.File{}, err
	}
	return models.File{}, store.ErrFileIDExhausted
}

func (s *Store) insertFile(ctx context.Context, file models.File) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO files (
			id, file_id, applicant_name, passport_no, contact_no, destination,
			service_charge, cost, status, assigned_to, acknowledged, is_new_sale,
			reminder_date, created_by, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,to_date(NULLIF($13, ''), 'YYYY-MM-DD'),$14,$15,$16)
	`, file.ID, file.FileID, file.ApplicantName, file.PassportNo, file.ContactNo, file.Destination,
		file.ServiceCharge, file.Cost, file.Status, file.AssignedTo, file.AcknowledgedByProcessingAgent, file.IsNewSale,
		file.ReminderDate, file.CreatedBy, file.CreatedAt, file.UpdatedAt)
	if err != nil {
		return err
	}
	if err = insertHistoryEntry(ctx, tx, file.ID, 1, file.History[0]); err != nil {
		return err
	}
	if err = appendFileEvent(ctx, tx, file, store.EventFileCreated, true, file.CreatedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetFile(ctx context.Context, fileID string) (models.File, bool, error) {
	file, err := scanFile(s.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files f WHERE f.file_id = $1`, models.NormalizeFileID(fileID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.File{}, false, store.ErrFileNotFound
		}
		return models.File{}, false, err
	}
	history, err := loadHistory(ctx, s.pool, file.ID)
	if err != nil {
		return models.File{}, false, err
	}
	file.History = history
	return file, true, nil
}

func (s *Store) ListFiles(ctx context.Context) ([]models.File, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+fileColumns+` FROM files f ORDER BY f.created_at DESC`)
	if err != nil {
		return nil, err
	}
	files := make([]models.File, 0)
	index := map[string]int{}
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		file.History = make([]models.HistoryEntry, 0)
		index[file.ID] = len(files)
		files = append(files, file)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	historyRows, err := s.pool.Query(ctx, `
		SELECT file_ref, kind, action, status, COALESCE(result, ''), performed_by, created_at
		FROM file_history
		ORDER BY file_ref, seq DESC
	`)
	if err != nil {
		return nil, err
	}
	defer historyRows.Close()
	for historyRows.Next() {
		var ref string
		var entry models.HistoryEntry
		if err := historyRows.Scan(&ref, &entry.Kind, &entry.Action, &entry.Status, &entry.Result, &entry.PerformedBy, &entry.Timestamp); err != nil {
			return nil, err
		}
		if i, ok := index[ref]; ok {
			files[i].History = append(files[i].History, entry)
		}
	}
	if err := historyRows.Err(); err != nil {
		return nil, err
	}
	return files, nil
}

func (s *Store) SendToProcessing(ctx context.Context, input store.FileActionInput) (models.File, bool, error) {
	return s.mutateFile(ctx, input.FileID, func(file models.File) (models.File, error) {
		return workflow.SendToProcessing(file, input.Actor, input.Assignee, input.Note, s.now())
	})
}

func (s *Store) Acknowledge(ctx context.Context, input store.FileActionInput) (models.File, bool, error) {
	return s.mutateFile(ctx, input.FileID, func(file models.File) (models.File, error) {
		return workflow.Acknowledge(file, input.Actor, s.now())
	})
}

func (s *Store) UpdateStatus(ctx context.Context, input store.FileActionInput) (models.File, bool, error) {
	return s.mutateFile(ctx, input.FileID, func(file models.File) (models.File, error) {
		return workflow.UpdateStatus(file, input.Actor, input.Status, s.now())
	})
}

func (s *Store) AddNote(ctx context.Context, input store.FileActionInput) (models.File, bool, error) {
	return s.mutateFile(ctx, input.FileID, func(file models.File) (models.File, error) {
		return workflow.AddNote(file, input.Actor, input.Note, s.now())
	})
}

func (s *Store) EditFile(ctx context.Context, input store.FileActionInput) (models.File, bool, error) {
	return s.mutateFile(ctx, input.FileID, func(file models.File) (models.File, error) {
		return workflow.Edit(file, input.Actor, input.Edit, s.now())
	})
}

// mutateFile locks the file row, applies fn and persists the result with its new history
// entry and ledger event in one transaction.
func (s *Store) mutateFile(ctx context.Context, fileID string, fn func(models.File) (models.File, error)) (models.File, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.File{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	current, err := lockFile(ctx, tx, fileID)
	if err != nil {
		return models.File{}, false, err
	}

	next, err := fn(current)
	if err != nil {
		return current, false, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE files SET
			applicant_name = $2, passport_no = $3, contact_no = $4, destination = $5,
			service_charge = $6, cost = $7, status = $8, assigned_to = $9, visa_result = $10,
			acknowledged = $11, reminder_date = to_date(NULLIF($12, ''), 'YYYY-MM-DD'), updated_at = $13
		WHERE id = $1
	`, next.ID, next.ApplicantName, next.PassportNo, next.ContactNo, next.Destination,
		next.ServiceCharge, next.Cost, next.Status, next.AssignedTo, next.VisaResult,
		next.AcknowledgedByProcessingAgent, next.ReminderDate, next.UpdatedAt)
	if err != nil {
		return models.File{}, false, err
	}

	eventType := store.EventFileEdited
	withEntry := len(next.History) > len(current.History)
	if withEntry {
		entry := next.History[0]
		if err = insertHistoryEntry(ctx, tx, next.ID, len(next.History), entry); err != nil {
			return models.File{}, false, err
		}
		eventType = store.EventTypeForEntry(entry.Kind)
	}
	if err = appendFileEvent(ctx, tx, next, eventType, withEntry, next.UpdatedAt); err != nil {
		return models.File{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.File{}, false, err
	}
	return next, true, nil
}

func (s *Store) RequestDeletion(ctx context.Context, fileID string, actor workflow.Actor) (store.DeletionRequest, bool, error) {
	if err := workflow.CanDelete(actor); err != nil {
		return store.DeletionRequest{}, false, err
	}
	fileID = models.NormalizeFileID(fileID)
	request := store.DeletionRequest{
		FileID:    fileID,
		Token:     uuid.NewString(),
		ExpiresAt: s.now().Add(s.deleteTokenTTL),
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO delete_requests (file_ref, token, requested_by, expires_at)
		SELECT id, $2, $3, $4 FROM files WHERE file_id = $1
		ON CONFLICT (file_ref) DO UPDATE
		SET token = EXCLUDED.token, requested_by = EXCLUDED.requested_by, expires_at = EXCLUDED.expires_at
	`, fileID, request.Token, actor.Name, request.ExpiresAt)
	if err != nil {
		return store.DeletionRequest{}, false, err
	}
	if tag.RowsAffected() == 0 {
		return store.DeletionRequest{}, false, store.ErrFileNotFound
	}
	return request, true, nil
}

// ConfirmDeletion removes the file, its history and its ledger, leaving a single tombstone event.
func (s *Store) ConfirmDeletion(ctx context.Context, fileID, token string, actor workflow.Actor) (bool, error) {
	if err := workflow.CanDelete(actor); err != nil {
		return false, err
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	file, err := lockFile(ctx, tx, fileID)
	if err != nil {
		return false, err
	}

	var valid bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM delete_requests
			WHERE file_ref = $1 AND token = $2 AND expires_at > $3
		)
	`, file.ID, token, s.now()).Scan(&valid)
	if err != nil {
		return false, err
	}
	if !valid {
		err = store.ErrDeleteTokenInvalid
		return false, err
	}

	if _, err = tx.Exec(ctx, `DELETE FROM file_events WHERE file_id = $1`, file.FileID); err != nil {
		return false, err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM files WHERE id = $1`, file.ID); err != nil {
		return false, err
	}
	file.Status = ""
	if err = appendFileEvent(ctx, tx, file, store.EventFileDeleted, false, s.now()); err != nil {
		return false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func lockFile(ctx context.Context, tx pgx.Tx, fileID string) (models.File, error) {
	file, err := scanFile(tx.QueryRow(ctx, `SELECT `+fileColumns+` FROM files f WHERE f.file_id = $1 FOR UPDATE`, models.NormalizeFileID(fileID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.File{}, store.ErrFileNotFound
		}
		return models.File{}, err
	}
	history, err := loadHistory(ctx, tx, file.ID)
	if err != nil {
		return models.File{}, err
	}
	file.History = history
	return file, nil
}

func loadHistory(ctx context.Context, q dbtx, fileRef string) ([]models.HistoryEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT kind, action, status, COALESCE(result, ''), performed_by, created_at
		FROM file_history
		WHERE file_ref = $1
		ORDER BY seq DESC
	`, fileRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]models.HistoryEntry, 0)
	for rows.Next() {
		var entry models.HistoryEntry
		if err := rows.Scan(&entry.Kind, &entry.Action, &entry.Status, &entry.Result, &entry.PerformedBy, &entry.Timestamp); err != nil {
			return nil, err
		}
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

func insertHistoryEntry(ctx context.Context, tx pgx.Tx, fileRef string, seq int, entry models.HistoryEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO file_history (file_ref, seq, kind, action, status, result, performed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, fileRef, seq, entry.Kind, entry.Action, entry.Status, nullIfEmpty(entry.Result), entry.PerformedBy, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func appendFileEvent(ctx context.Context, tx pgx.Tx, file models.File, eventType string, withEntry bool, createdAt time.Time) error {
	payload, err := json.Marshal(store.NewEventPayload(file, withEntry))
	if err != nil {
		return err
	}
	return insertFileEvent(ctx, tx, file.FileID, eventType, payload, createdAt)
}

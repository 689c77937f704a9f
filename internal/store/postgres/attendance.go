package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
)

const attendanceColumns = `
	record_id, COALESCE(user_id::text, ''), user_name, role, to_char(date, 'YYYY-MM-DD'),
	login_time, logout_time, COALESCE(closed_by, '')`

func scanAttendance(row pgx.Row) (models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	var logout sql.NullTime
	if err := row.Scan(&record.RecordID, &record.UserID, &record.UserName, &record.Role, &record.Date, &record.LoginTime, &logout, &record.ClosedBy); err != nil {
		return models.AttendanceRecord{}, err
	}
	record.LogoutTime = nullTimePtr(logout)
	return record, nil
}

// OpenAttendance relies on the partial unique index over open sessions, so concurrent logins for the
// same user and date collapse onto one record.
func (s *Store) OpenAttendance(ctx context.Context, record models.AttendanceRecord) (models.AttendanceRecord, bool, error) {
	if record.RecordID == "" {
		record.RecordID = uuid.NewString()
	}
	if record.LoginTime.IsZero() {
		record.LoginTime = s.now()
	}
	created, err := scanAttendance(s.pool.QueryRow(ctx, `
		INSERT INTO attendance_records (record_id, user_id, user_name, role, date, login_time)
		VALUES ($1, $2, $3, $4, to_date($5, 'YYYY-MM-DD'), $6)
		ON CONFLICT (user_name, date) WHERE logout_time IS NULL DO NOTHING
		RETURNING `+attendanceColumns,
		record.RecordID, nullIfEmpty(record.UserID), record.UserName, record.Role, record.Date, record.LoginTime))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.AttendanceRecord{}, false, err
	}

	existing, err := scanAttendance(s.pool.QueryRow(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendance_records
		WHERE user_name = $1 AND date = to_date($2, 'YYYY-MM-DD') AND logout_time IS NULL
	`, record.UserName, record.Date))
	if err != nil {
		return models.AttendanceRecord{}, false, err
	}
	return existing, false, nil
}

func (s *Store) CloseAttendance(ctx context.Context, userName string, at time.Time) (models.AttendanceRecord, bool, error) {
	record, err := scanAttendance(s.pool.QueryRow(ctx, `
		UPDATE attendance_records
		SET logout_time = $2, closed_by = $3
		WHERE record_id = (
			SELECT record_id
			FROM attendance_records
			WHERE user_name = $1 AND logout_time IS NULL
			ORDER BY login_time DESC
			LIMIT 1
			FOR UPDATE
		)
		RETURNING `+attendanceColumns,
		userName, at, models.ClosedByLogout))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AttendanceRecord{}, false, nil
		}
		return models.AttendanceRecord{}, false, err
	}
	return record, true, nil
}

func (s *Store) CloseStaleAttendance(ctx context.Context, cutoff, at time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
		WITH stale AS (
			SELECT record_id
			FROM attendance_records
			WHERE logout_time IS NULL AND login_time < $1
			ORDER BY login_time ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE attendance_records a
		SET logout_time = $2, closed_by = $4
		FROM stale
		WHERE a.record_id = stale.record_id
	`, cutoff, at, limit, models.ClosedBySweep)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) ListAttendance(ctx context.Context, userName, fromDate string) ([]models.AttendanceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendance_records
		WHERE ($1 = '' OR user_name = $1)
		  AND ($2 = '' OR date >= to_date($2, 'YYYY-MM-DD'))
		ORDER BY login_time DESC
	`, userName, fromDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]models.AttendanceRecord, 0)
	for rows.Next() {
		record, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

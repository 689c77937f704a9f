package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultSessionTTL     = 8 * time.Hour
	defaultDeleteTokenTTL = 10 * time.Minute
	fileIDAttempts        = 5
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool           *pgxpool.Pool
	sessionTTL     time.Duration
	deleteTokenTTL time.Duration
	clock          func() time.Time
}

type Options struct {
	SessionTTL     time.Duration
	DeleteTokenTTL time.Duration
	Clock          func() time.Time
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	sessionTTL := options.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	deleteTTL := options.DeleteTokenTTL
	if deleteTTL <= 0 {
		deleteTTL = defaultDeleteTokenTTL
	}
	clock := options.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		pool:           pool,
		sessionTTL:     sessionTTL,
		deleteTokenTTL: deleteTTL,
		clock:          clock,
	}
}

// now returns UTC time at the precision postgres stores, so hashes and history survive a round trip.
func (s *Store) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isConstraint(err error, name string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName == name
	}
	return false
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

package postgres

import (
	"context"
	"strings"

	"github.com/webdoc-rokib/visa-track-sub000/internal/store"
)

func (s *Store) ListDestinations(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM destinations ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

func (s *Store) AddDestination(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO destinations (name) VALUES ($1)`, strings.TrimSpace(name))
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDestinationExists
		}
		return err
	}
	return nil
}

package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ctxconfig/cac/internal/apperr"
	"github.com/ctxconfig/cac/internal/model"
)

// CreateDimension inserts a new dimension. Returns apperr.BadArgument if the
// dimension name already exists.
func (db *DB) CreateDimension(ctx context.Context, dim model.Dimension) error {
	_, err := db.querierFrom(ctx).Exec(ctx,
		`INSERT INTO dimensions (dimension, priority) VALUES ($1, $2)`,
		dim.Name, dim.Priority,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.BadArgument("dimension %q already exists", dim.Name)
		}
		return apperr.DbError("storage: create dimension", err)
	}
	return nil
}

// ListDimensions returns all registered dimensions.
func (db *DB) ListDimensions(ctx context.Context) ([]model.Dimension, error) {
	rows, err := db.querierFrom(ctx).Query(ctx,
		`SELECT dimension, priority, created_on, last_modified FROM dimensions ORDER BY dimension`,
	)
	if err != nil {
		return nil, apperr.DbError("storage: list dimensions", err)
	}
	defer rows.Close()

	var out []model.Dimension
	for rows.Next() {
		var d model.Dimension
		if err := rows.Scan(&d.Name, &d.Priority, &d.CreatedAt, &d.LastModified); err != nil {
			return nil, apperr.DbError("storage: scan dimension", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDimension fetches a single dimension by name.
func (db *DB) GetDimension(ctx context.Context, name string) (*model.Dimension, error) {
	var d model.Dimension
	err := db.querierFrom(ctx).QueryRow(ctx,
		`SELECT dimension, priority, created_on, last_modified FROM dimensions WHERE dimension = $1`,
		name,
	).Scan(&d.Name, &d.Priority, &d.CreatedAt, &d.LastModified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("dimension %q not found", name)
	}
	if err != nil {
		return nil, apperr.DbError("storage: get dimension", err)
	}
	return &d, nil
}

package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ctxconfig/cac/internal/apperr"
	"github.com/ctxconfig/cac/internal/model"
)

// PutDefaultConfig upserts a default-config entry, keyed by Key.
func (db *DB) PutDefaultConfig(ctx context.Context, entry model.DefaultConfigEntry) error {
	valueJSON, err := json.Marshal(entry.Value)
	if err != nil {
		return apperr.BadArgument("value is not valid JSON: %v", err)
	}
	schemaJSON, err := json.Marshal(entry.Schema)
	if err != nil {
		return apperr.BadArgument("schema is not valid JSON: %v", err)
	}

	_, err = db.querierFrom(ctx).Exec(ctx,
		`INSERT INTO global_config (key, value, schema, function_name, created_by)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (key) DO UPDATE SET
		   value = EXCLUDED.value,
		   schema = EXCLUDED.schema,
		   function_name = EXCLUDED.function_name,
		   last_modified = now()`,
		entry.Key, valueJSON, schemaJSON, entry.FunctionName, entry.CreatedBy,
	)
	if err != nil {
		return apperr.DbError("storage: put default config", err)
	}
	return nil
}

// GetDefaultConfig fetches a single default-config entry by key.
func (db *DB) GetDefaultConfig(ctx context.Context, key string) (*model.DefaultConfigEntry, error) {
	var (
		entry                 model.DefaultConfigEntry
		valueJSON, schemaJSON []byte
	)
	err := db.querierFrom(ctx).QueryRow(ctx,
		`SELECT key, value, schema, function_name, created_by, created_on, last_modified
		 FROM global_config WHERE key = $1`,
		key,
	).Scan(&entry.Key, &valueJSON, &schemaJSON, &entry.FunctionName, &entry.CreatedBy, &entry.CreatedAt, &entry.LastModified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("default config key %q not found", key)
	}
	if err != nil {
		return nil, apperr.DbError("storage: get default config", err)
	}
	if err := json.Unmarshal(valueJSON, &entry.Value); err != nil {
		return nil, apperr.Unexpected("storage: decode default config value", err)
	}
	if err := json.Unmarshal(schemaJSON, &entry.Schema); err != nil {
		return nil, apperr.Unexpected("storage: decode default config schema", err)
	}
	return &entry, nil
}

// ListDefaultConfig returns every default-config entry, ordered by key.
func (db *DB) ListDefaultConfig(ctx context.Context) ([]model.DefaultConfigEntry, error) {
	rows, err := db.querierFrom(ctx).Query(ctx,
		`SELECT key, value, schema, function_name, created_by, created_on, last_modified
		 FROM global_config ORDER BY key`,
	)
	if err != nil {
		return nil, apperr.DbError("storage: list default config", err)
	}
	defer rows.Close()

	var out []model.DefaultConfigEntry
	for rows.Next() {
		var (
			entry                 model.DefaultConfigEntry
			valueJSON, schemaJSON []byte
		)
		if err := rows.Scan(&entry.Key, &valueJSON, &schemaJSON, &entry.FunctionName, &entry.CreatedBy, &entry.CreatedAt, &entry.LastModified); err != nil {
			return nil, apperr.DbError("storage: scan default config", err)
		}
		if err := json.Unmarshal(valueJSON, &entry.Value); err != nil {
			return nil, apperr.Unexpected("storage: decode default config value", err)
		}
		if err := json.Unmarshal(schemaJSON, &entry.Schema); err != nil {
			return nil, apperr.Unexpected("storage: decode default config schema", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// DeleteDefaultConfig removes a default-config entry. Fails with
// apperr.BadArgument naming the referencing context IDs if any override
// currently sets this key.
func (db *DB) DeleteDefaultConfig(ctx context.Context, key string) error {
	rows, err := db.querierFrom(ctx).Query(ctx,
		`SELECT DISTINCT c.id FROM contexts c
		 JOIN ctxoverrides co ON co.context_id = c.id
		 JOIN overrides o ON o.id = co.override_id
		 WHERE o.value ? $1`,
		key,
	)
	if err != nil {
		return apperr.DbError("storage: check default config usage", err)
	}
	var usedBy []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return apperr.DbError("storage: scan usage row", err)
		}
		usedBy = append(usedBy, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return apperr.DbError("storage: check default config usage", err)
	}
	if len(usedBy) > 0 {
		return apperr.BadArgument("default config key %q is used by contexts %v", key, usedBy)
	}

	tag, err := db.querierFrom(ctx).Exec(ctx, `DELETE FROM global_config WHERE key = $1`, key)
	if err != nil {
		return apperr.DbError("storage: delete default config", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("default config key %q not found", key)
	}
	return nil
}

// PromoteDefaultConfigValues overwrites the value of each key in values on
// the matching global_config row. Called when an experiment concludes.
func (db *DB) PromoteDefaultConfigValues(ctx context.Context, values map[string]any) error {
	for key, value := range values {
		valueJSON, err := json.Marshal(value)
		if err != nil {
			return apperr.Unexpected("storage: encode promoted value", err)
		}
		tag, err := db.querierFrom(ctx).Exec(ctx,
			`UPDATE global_config SET value = $2, last_modified = now() WHERE key = $1`,
			key, valueJSON,
		)
		if err != nil {
			return apperr.DbError("storage: promote default config value", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.Unexpected("storage: promote default config value", errors.New("key "+key+" does not exist"))
		}
	}
	return nil
}

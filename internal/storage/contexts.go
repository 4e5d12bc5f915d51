package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ctxconfig/cac/internal/apperr"
	"github.com/ctxconfig/cac/internal/canonical"
	"github.com/ctxconfig/cac/internal/logic"
	"github.com/ctxconfig/cac/internal/model"
)

// PutContext upserts a context condition and the override it activates.
// Both IDs are the canonical content hash of their payload, so issuing the
// same condition+override twice returns the same IDs (round-trip law in
// §8) and is a cheap no-op on the second call. Re-pairing an existing
// condition with a different override updates the ctxoverrides link.
func (db *DB) PutContext(ctx context.Context, condition any, overrideValue map[string]any) (contextID, overrideID string, err error) {
	priority, err := db.conditionPriority(ctx, condition)
	if err != nil {
		return "", "", err
	}

	contextID, err = canonical.Hash(condition)
	if err != nil {
		return "", "", apperr.BadArgument("context condition is not valid JSON: %v", err)
	}
	overrideID, err = canonical.Hash(overrideValue)
	if err != nil {
		return "", "", apperr.BadArgument("override is not valid JSON: %v", err)
	}

	conditionJSON, err := json.Marshal(condition)
	if err != nil {
		return "", "", apperr.BadArgument("context condition is not valid JSON: %v", err)
	}
	overrideJSON, err := json.Marshal(overrideValue)
	if err != nil {
		return "", "", apperr.BadArgument("override is not valid JSON: %v", err)
	}

	err = db.RunSerializable(ctx, func(txCtx context.Context) error {
		if _, err := db.querierFrom(txCtx).Exec(txCtx,
			`INSERT INTO overrides (id, value) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
			overrideID, overrideJSON,
		); err != nil {
			return apperr.DbError("storage: insert override", err)
		}

		if _, err := db.querierFrom(txCtx).Exec(txCtx,
			`INSERT INTO contexts (id, condition, priority) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO UPDATE SET priority = EXCLUDED.priority`,
			contextID, conditionJSON, priority,
		); err != nil {
			return apperr.DbError("storage: insert context", err)
		}

		if _, err := db.querierFrom(txCtx).Exec(txCtx,
			`INSERT INTO ctxoverrides (context_id, override_id) VALUES ($1, $2)
			 ON CONFLICT (context_id) DO UPDATE SET override_id = EXCLUDED.override_id, last_modified = now()`,
			contextID, overrideID,
		); err != nil {
			return apperr.DbError("storage: link context to override", err)
		}
		return nil
	})
	if err != nil {
		return "", "", err
	}
	return contextID, overrideID, nil
}

// conditionPriority sums the priority of every dimension the condition's
// extracted equality terms reference. Referencing an unregistered dimension
// is a BadArgument.
func (db *DB) conditionPriority(ctx context.Context, condition any) (int32, error) {
	dims, err := logic.ExtractDimensions(condition)
	if err != nil {
		return 0, apperr.BadArgument("context condition: %v", err)
	}
	var sum int32
	for name := range dims {
		dim, err := db.GetDimension(ctx, name)
		if err != nil {
			return 0, apperr.BadArgument("context references unregistered dimension %q", name)
		}
		sum += dim.Priority
	}
	return sum, nil
}

// ListContexts returns every context record, joined with its linked override ID.
func (db *DB) ListContexts(ctx context.Context) ([]model.ContextRecord, error) {
	rows, err := db.querierFrom(ctx).Query(ctx,
		`SELECT c.id, c.condition, c.priority, c.created_on, c.last_modified, co.override_id
		 FROM contexts c JOIN ctxoverrides co ON co.context_id = c.id
		 ORDER BY c.id`,
	)
	if err != nil {
		return nil, apperr.DbError("storage: list contexts", err)
	}
	defer rows.Close()

	var out []model.ContextRecord
	for rows.Next() {
		var (
			rec           model.ContextRecord
			conditionJSON []byte
		)
		if err := rows.Scan(&rec.ID, &conditionJSON, &rec.Priority, &rec.CreatedAt, &rec.LastModified, &rec.OverrideID); err != nil {
			return nil, apperr.DbError("storage: scan context", err)
		}
		if err := json.Unmarshal(conditionJSON, &rec.Condition); err != nil {
			return nil, apperr.Unexpected("storage: decode context condition", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetOverride fetches a single override by ID.
func (db *DB) GetOverride(ctx context.Context, overrideID string) (*model.Override, error) {
	var (
		o         model.Override
		valueJSON []byte
	)
	err := db.querierFrom(ctx).QueryRow(ctx,
		`SELECT id, value, created_on, last_modified FROM overrides WHERE id = $1`,
		overrideID,
	).Scan(&o.ID, &valueJSON, &o.CreatedAt, &o.LastModified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("override %q not found", overrideID)
	}
	if err != nil {
		return nil, apperr.DbError("storage: get override", err)
	}
	if err := json.Unmarshal(valueJSON, &o.Value); err != nil {
		return nil, apperr.Unexpected("storage: decode override value", err)
	}
	return &o, nil
}

// DeleteContext removes a context and its ctxoverrides link. The linked
// override row is left in place since other contexts may reference it.
func (db *DB) DeleteContext(ctx context.Context, id string) error {
	tag, err := db.querierFrom(ctx).Exec(ctx, `DELETE FROM contexts WHERE id = $1`, id)
	if err != nil {
		return apperr.DbError("storage: delete context", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("context %q not found", id)
	}
	return nil
}

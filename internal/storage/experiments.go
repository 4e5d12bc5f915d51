package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ctxconfig/cac/internal/apperr"
	"github.com/ctxconfig/cac/internal/model"
)

// CreateExperiment inserts exp and populates its ID and timestamps.
func (db *DB) CreateExperiment(ctx context.Context, exp *model.Experiment) error {
	variantsJSON, err := json.Marshal(exp.Variants)
	if err != nil {
		return apperr.Unexpected("storage: encode variants", err)
	}
	contextJSON, err := json.Marshal(exp.Context)
	if err != nil {
		return apperr.BadArgument("experiment context is not valid JSON: %v", err)
	}

	err = db.querierFrom(ctx).QueryRow(ctx,
		`INSERT INTO experiments (name, status, context, override_keys, variants, traffic_percentage)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_on, last_modified`,
		exp.Name, string(exp.Status), contextJSON, exp.OverrideKeys, variantsJSON, exp.TrafficPercentage,
	).Scan(&exp.ID, &exp.CreatedAt, &exp.LastModified)
	if err != nil {
		return apperr.DbError("storage: create experiment", err)
	}
	return nil
}

// GetExperiment fetches a single experiment by ID.
func (db *DB) GetExperiment(ctx context.Context, id int64) (*model.Experiment, error) {
	exp, err := scanExperimentRow(db.querierFrom(ctx).QueryRow(ctx,
		`SELECT id, name, status, context, override_keys, variants, traffic_percentage,
		        chosen_variant, created_on, last_modified
		 FROM experiments WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("experiment %d not found", id)
	}
	if err != nil {
		return nil, apperr.DbError("storage: get experiment", err)
	}
	return exp, nil
}

// UpdateExperiment persists status, traffic_percentage, and chosen_variant
// changes for an existing experiment.
func (db *DB) UpdateExperiment(ctx context.Context, exp *model.Experiment) error {
	tag, err := db.querierFrom(ctx).Exec(ctx,
		`UPDATE experiments SET status = $2, traffic_percentage = $3, chosen_variant = $4, last_modified = now()
		 WHERE id = $1`,
		exp.ID, string(exp.Status), exp.TrafficPercentage, exp.ChosenVariant,
	)
	if err != nil {
		return apperr.DbError("storage: update experiment", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("experiment %d not found", exp.ID)
	}
	return nil
}

// ListActiveExperiments returns every experiment that is not CONCLUDED,
// used by the overlap check when validating a new experiment.
func (db *DB) ListActiveExperiments(ctx context.Context) ([]model.Experiment, error) {
	return db.queryExperiments(ctx, `SELECT id, name, status, context, override_keys, variants,
		traffic_percentage, chosen_variant, created_on, last_modified
		FROM experiments WHERE status != $1 ORDER BY id`, string(model.ExperimentConcluded))
}

// ListInProgressExperiments returns every INPROGRESS experiment, used by the
// resolver to layer variant overrides.
func (db *DB) ListInProgressExperiments(ctx context.Context) ([]model.Experiment, error) {
	return db.queryExperiments(ctx, `SELECT id, name, status, context, override_keys, variants,
		traffic_percentage, chosen_variant, created_on, last_modified
		FROM experiments WHERE status = $1 ORDER BY id`, string(model.ExperimentInProgress))
}

// ExperimentFilter narrows ListExperiments to a date range and status set.
type ExperimentFilter struct {
	FromDate *time.Time
	ToDate   *time.Time
	Status   []model.ExperimentStatus
	Page     int
	Count    int
}

// ListExperiments returns a page of experiments matching filter, plus
// whether more rows exist beyond this page.
func (db *DB) ListExperiments(ctx context.Context, filter ExperimentFilter) ([]model.Experiment, bool, error) {
	page, count := filter.Page, filter.Count
	if page < 1 {
		page = 1
	}
	if count < 1 {
		count = 20
	}

	query := `SELECT id, name, status, context, override_keys, variants, traffic_percentage,
	                  chosen_variant, created_on, last_modified
	           FROM experiments WHERE 1=1`
	var args []any
	if filter.FromDate != nil {
		args = append(args, *filter.FromDate)
		query += " AND created_on >= $" + strconv.Itoa(len(args))
	}
	if filter.ToDate != nil {
		args = append(args, *filter.ToDate)
		query += " AND created_on <= $" + strconv.Itoa(len(args))
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		query += " AND status = ANY($" + strconv.Itoa(len(args)) + ")"
	}
	args = append(args, count+1, (page-1)*count)
	query += " ORDER BY id LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))

	rows, err := db.querierFrom(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, false, apperr.DbError("storage: list experiments", err)
	}
	defer rows.Close()

	var out []model.Experiment
	for rows.Next() {
		exp, err := scanExperimentRow(rows)
		if err != nil {
			return nil, false, err
		}
		out = append(out, *exp)
	}
	if err := rows.Err(); err != nil {
		return nil, false, apperr.DbError("storage: list experiments", err)
	}

	hasMore := len(out) > count
	if hasMore {
		out = out[:count]
	}
	return out, hasMore, nil
}

func (db *DB) queryExperiments(ctx context.Context, query string, args ...any) ([]model.Experiment, error) {
	rows, err := db.querierFrom(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.DbError("storage: query experiments", err)
	}
	defer rows.Close()

	var out []model.Experiment
	for rows.Next() {
		exp, err := scanExperimentRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *exp)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperimentRow(row rowScanner) (*model.Experiment, error) {
	var (
		exp                     model.Experiment
		status                  string
		contextJSON, variantsJSON []byte
	)
	if err := row.Scan(&exp.ID, &exp.Name, &status, &contextJSON, &exp.OverrideKeys, &variantsJSON,
		&exp.TrafficPercentage, &exp.ChosenVariant, &exp.CreatedAt, &exp.LastModified); err != nil {
		return nil, err
	}
	exp.Status = model.ExperimentStatus(status)
	if err := json.Unmarshal(contextJSON, &exp.Context); err != nil {
		return nil, apperr.Unexpected("storage: decode experiment context", err)
	}
	if err := json.Unmarshal(variantsJSON, &exp.Variants); err != nil {
		return nil, apperr.Unexpected("storage: decode experiment variants", err)
	}
	return &exp, nil
}

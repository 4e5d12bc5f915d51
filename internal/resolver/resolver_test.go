package resolver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctxconfig/cac/internal/model"
	"github.com/ctxconfig/cac/internal/resolver"
)

type fakeDefaults struct{ entries []model.DefaultConfigEntry }

func (f fakeDefaults) ListDefaultConfig(ctx context.Context) ([]model.DefaultConfigEntry, error) {
	return f.entries, nil
}

type fakeContexts struct {
	records   []model.ContextRecord
	overrides map[string]*model.Override
}

func (f fakeContexts) ListContexts(ctx context.Context) ([]model.ContextRecord, error) {
	return f.records, nil
}

func (f fakeContexts) GetOverride(ctx context.Context, overrideID string) (*model.Override, error) {
	return f.overrides[overrideID], nil
}

type fakeExperiments struct{ experiments []model.Experiment }

func (f fakeExperiments) ListInProgressExperiments(ctx context.Context) ([]model.Experiment, error) {
	return f.experiments, nil
}

func eq(dim string, val any) map[string]any {
	return map[string]any{"==": []any{map[string]any{"var": dim}, val}}
}

func TestResolve_DefaultsOnly(t *testing.T) {
	r := resolver.New(
		fakeDefaults{entries: []model.DefaultConfigEntry{{Key: "retries", Value: float64(3)}}},
		fakeContexts{},
		fakeExperiments{},
	)
	cfg, err := r.Resolve(context.Background(), map[string]any{"country": "IN"})
	require.NoError(t, err)
	assert.Equal(t, model.ResolvedConfig{"retries": float64(3)}, cfg)
}

func TestResolve_SingleOverride(t *testing.T) {
	r := resolver.New(
		fakeDefaults{entries: []model.DefaultConfigEntry{{Key: "retries", Value: float64(3)}}},
		fakeContexts{
			records: []model.ContextRecord{{ID: "c1", Condition: eq("country", "IN"), OverrideID: "o1", Priority: 1}},
			overrides: map[string]*model.Override{
				"o1": {ID: "o1", Value: map[string]any{"retries": float64(5)}},
			},
		},
		fakeExperiments{},
	)

	cfg, err := r.Resolve(context.Background(), map[string]any{"country": "IN"})
	require.NoError(t, err)
	assert.Equal(t, float64(5), cfg["retries"])

	cfg, err = r.Resolve(context.Background(), map[string]any{"country": "US"})
	require.NoError(t, err)
	assert.Equal(t, float64(3), cfg["retries"])
}

func TestResolve_PriorityTieBreak(t *testing.T) {
	// country priority=1, tier priority=2: lower sum wins, so the
	// country-keyed context's value should be the final one.
	r := resolver.New(
		fakeDefaults{entries: []model.DefaultConfigEntry{{Key: "retries", Value: float64(3)}}},
		fakeContexts{
			records: []model.ContextRecord{
				{ID: "by-tier", Condition: eq("tier", "gold"), OverrideID: "o-tier", Priority: 2},
				{ID: "by-country", Condition: eq("country", "IN"), OverrideID: "o-country", Priority: 1},
			},
			overrides: map[string]*model.Override{
				"o-tier":    {ID: "o-tier", Value: map[string]any{"retries": float64(9)}},
				"o-country": {ID: "o-country", Value: map[string]any{"retries": float64(5)}},
			},
		},
		fakeExperiments{},
	)

	cfg, err := r.Resolve(context.Background(), map[string]any{"country": "IN", "tier": "gold"})
	require.NoError(t, err)
	assert.Equal(t, float64(5), cfg["retries"])
}

func TestResolve_LayersAssignedExperimentVariant(t *testing.T) {
	r := resolver.New(
		fakeDefaults{entries: []model.DefaultConfigEntry{{Key: "retries", Value: float64(3)}}},
		fakeContexts{},
		fakeExperiments{experiments: []model.Experiment{
			{
				ID:      1,
				Status:  model.ExperimentInProgress,
				Context: eq("country", "IN"),
				Variants: []model.Variant{
					{ID: "control", VariantType: model.VariantControl, Overrides: map[string]any{"retries": float64(3)}},
					{ID: "exp-a", VariantType: model.VariantExperimental, Overrides: map[string]any{"retries": float64(7)}},
				},
			},
		}},
	)

	cfg, err := r.Resolve(context.Background(), map[string]any{
		"country":    "IN",
		"variantIds": []any{"exp-a"},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(7), cfg["retries"])
}

func TestResolve_UnassignedExperimentDoesNotApply(t *testing.T) {
	r := resolver.New(
		fakeDefaults{entries: []model.DefaultConfigEntry{{Key: "retries", Value: float64(3)}}},
		fakeContexts{},
		fakeExperiments{experiments: []model.Experiment{
			{
				ID:      1,
				Status:  model.ExperimentInProgress,
				Context: eq("country", "IN"),
				Variants: []model.Variant{
					{ID: "exp-a", VariantType: model.VariantExperimental, Overrides: map[string]any{"retries": float64(7)}},
				},
			},
		}},
	)

	cfg, err := r.Resolve(context.Background(), map[string]any{"country": "IN"})
	require.NoError(t, err)
	assert.Equal(t, float64(3), cfg["retries"])
}

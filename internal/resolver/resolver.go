// Package resolver computes the effective configuration for a caller
// context by layering default values, matching contextual overrides, and
// active experiment variants.
package resolver

import (
	"context"
	"sort"

	"github.com/ctxconfig/cac/internal/apperr"
	"github.com/ctxconfig/cac/internal/logic"
	"github.com/ctxconfig/cac/internal/model"
)

// DefaultConfigProvider supplies the base key→value map.
type DefaultConfigProvider interface {
	ListDefaultConfig(ctx context.Context) ([]model.DefaultConfigEntry, error)
}

// ContextProvider supplies contextual overrides and their conditions.
type ContextProvider interface {
	ListContexts(ctx context.Context) ([]model.ContextRecord, error)
	GetOverride(ctx context.Context, overrideID string) (*model.Override, error)
}

// ExperimentProvider supplies the experiments currently serving traffic.
type ExperimentProvider interface {
	ListInProgressExperiments(ctx context.Context) ([]model.Experiment, error)
}

// Resolver computes ResolvedConfig values. It holds no mutable state of its
// own; all data comes from its providers on each call, so Resolve is pure
// with respect to a fixed snapshot of backing data.
type Resolver struct {
	defaults    DefaultConfigProvider
	contexts    ContextProvider
	experiments ExperimentProvider
}

// New builds a Resolver over the given providers.
func New(defaults DefaultConfigProvider, contexts ContextProvider, experiments ExperimentProvider) *Resolver {
	return &Resolver{defaults: defaults, contexts: contexts, experiments: experiments}
}

type contextMatch struct {
	record   model.ContextRecord
	override *model.Override
}

// Resolve computes the effective configuration for callerContext.
//
// callerContext may carry a "variantIds" key (a []any of variant ID
// strings) representing the experiment variants the caller was already
// assigned by the client-side bucketing step; those variants' overrides are
// layered on top of context overrides, in experiment-ID order.
func (r *Resolver) Resolve(ctx context.Context, callerContext map[string]any) (model.ResolvedConfig, error) {
	result := make(model.ResolvedConfig)

	defaults, err := r.defaults.ListDefaultConfig(ctx)
	if err != nil {
		return nil, apperr.Unexpected("resolver: list default config", err)
	}
	for _, d := range defaults {
		result[d.Key] = d.Value
	}

	matches, err := r.matchingContexts(ctx, callerContext)
	if err != nil {
		return nil, err
	}
	// matches is sorted lowest priority sum first; merge it back to front so
	// the lowest sum is applied last and wins conflicts.
	for i := len(matches) - 1; i >= 0; i-- {
		for k, v := range matches[i].override.Value {
			result[k] = v
		}
	}

	if err := r.layerExperimentVariants(ctx, callerContext, result); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *Resolver) matchingContexts(ctx context.Context, callerContext map[string]any) ([]contextMatch, error) {
	records, err := r.contexts.ListContexts(ctx)
	if err != nil {
		return nil, apperr.Unexpected("resolver: list contexts", err)
	}

	matches := make([]contextMatch, 0, len(records))
	for _, rec := range records {
		ok, err := logic.Eval(rec.Condition, callerContext)
		if err != nil {
			return nil, apperr.BadArgument("resolver: evaluating context %s: %v", rec.ID, err)
		}
		if !ok {
			continue
		}
		override, err := r.contexts.GetOverride(ctx, rec.OverrideID)
		if err != nil {
			return nil, apperr.Unexpected("resolver: fetch override for context "+rec.ID, err)
		}
		matches = append(matches, contextMatch{record: rec, override: override})
	}

	// Lower priority sum sorts first (and therefore merges last, winning
	// conflicts); ties break on context_id lexicographic order.
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].record.Priority != matches[j].record.Priority {
			return matches[i].record.Priority < matches[j].record.Priority
		}
		return matches[i].record.ID < matches[j].record.ID
	})

	return matches, nil
}

func (r *Resolver) layerExperimentVariants(ctx context.Context, callerContext map[string]any, result model.ResolvedConfig) error {
	experiments, err := r.experiments.ListInProgressExperiments(ctx)
	if err != nil {
		return apperr.Unexpected("resolver: list in-progress experiments", err)
	}
	sort.Slice(experiments, func(i, j int) bool { return experiments[i].ID < experiments[j].ID })

	assignedVariants, _ := callerContext["variantIds"].([]any)

	for _, exp := range experiments {
		ok, err := logic.Eval(exp.Context, callerContext)
		if err != nil {
			return apperr.BadArgument("resolver: evaluating experiment %d context: %v", exp.ID, err)
		}
		if !ok {
			continue
		}
		for _, v := range exp.Variants {
			if !containsString(assignedVariants, v.ID) {
				continue
			}
			for k, val := range v.Overrides {
				result[k] = val
			}
		}
	}
	return nil
}

func containsString(items []any, target string) bool {
	for _, item := range items {
		if s, ok := item.(string); ok && s == target {
			return true
		}
	}
	return false
}

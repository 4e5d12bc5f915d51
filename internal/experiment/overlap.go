package experiment

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ctxconfig/cac/internal/apperr"
	"github.com/ctxconfig/cac/internal/logic"
	"github.com/ctxconfig/cac/internal/model"
)

// maxOverlapWorkers bounds how many active-experiment comparisons run
// concurrently during a create validation. Overlap checks are pure
// comparisons with no shared mutable state, so this is a pure throughput
// knob, not a correctness one.
const maxOverlapWorkers = 8

// OverlapFlags governs which kinds of context/key-set overlap between a
// candidate experiment and the currently active ones are permitted.
type OverlapFlags struct {
	AllowSameKeysOverlappingCtx    bool
	AllowDiffKeysOverlappingCtx    bool
	AllowSameKeysNonOverlappingCtx bool
}

// CheckOverlap validates candidate against every experiment in active
// (CREATED or INPROGRESS experiments other than candidate itself). It fans
// the comparisons out across a bounded worker pool; the first rejection or
// evaluation error wins and cancels the rest.
func CheckOverlap(ctx context.Context, flags OverlapFlags, candidate model.Experiment, active []model.Experiment) error {
	candidateDims, err := logic.ExtractDimensions(candidate.Context)
	if err != nil {
		return apperr.BadArgument("experiment context: %v", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxOverlapWorkers)

	for _, other := range active {
		other := other
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
			}
			return checkPair(flags, candidateDims, candidate.OverrideKeys, other)
		})
	}

	return g.Wait()
}

func checkPair(flags OverlapFlags, candidateDims map[string]any, candidateKeys []string, other model.Experiment) error {
	otherDims, err := logic.ExtractDimensions(other.Context)
	if err != nil {
		return apperr.BadArgument("experiment %d context: %v", other.ID, err)
	}

	overlaps := dimensionsOverlap(candidateDims, otherDims)
	sameKeySet := isSubset(candidateKeys, other.OverrideKeys) || isSubset(other.OverrideKeys, candidateKeys)
	intersecting := keysIntersect(candidateKeys, other.OverrideKeys)

	if !flags.AllowDiffKeysOverlappingCtx && overlaps && !sameKeySet {
		return apperr.BadArgument("experiment %d: overlapping context with a different override-key set", other.ID)
	}
	if !flags.AllowSameKeysOverlappingCtx && overlaps && intersecting {
		return apperr.BadArgument("experiment %d: overlapping context with an intersecting override-key set", other.ID)
	}
	if !flags.AllowSameKeysNonOverlappingCtx && !overlaps && intersecting {
		return apperr.BadArgument("experiment %d: non-overlapping context with an intersecting override-key set", other.ID)
	}
	return nil
}

// dimensionsOverlap reports whether two extracted dimension maps overlap:
// the smaller map's keys all appear in the larger map with equal values.
func dimensionsOverlap(a, b map[string]any) bool {
	smaller, larger := a, b
	if len(b) < len(a) {
		smaller, larger = b, a
	}
	if len(smaller) == 0 {
		// A condition with no flat equality terms pins nothing, so it
		// trivially overlaps with anything (it matches any context value).
		return true
	}
	for k, v := range smaller {
		lv, ok := larger[k]
		if !ok || !looseEqualValue(v, lv) {
			return false
		}
	}
	return true
}

func looseEqualValue(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

func keysIntersect(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, k := range a {
		set[k] = struct{}{}
	}
	for _, k := range b {
		if _, ok := set[k]; ok {
			return true
		}
	}
	return false
}

func isSubset(a, b []string) bool {
	set := make(map[string]struct{}, len(b))
	for _, k := range b {
		set[k] = struct{}{}
	}
	for _, k := range a {
		if _, ok := set[k]; !ok {
			return false
		}
	}
	return true
}

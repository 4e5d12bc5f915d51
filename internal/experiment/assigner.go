package experiment

import "github.com/ctxconfig/cac/internal/model"

// Decide deterministically buckets toss into one of variants, or returns
// (nil, false) when the caller falls outside the experiment's traffic
// allocation. toss is expected in [0,100); trafficPercentage is the
// per-variant share so the experiment as a whole claims
// trafficPercentage*len(variants) percent of traffic.
//
// Variant order must be stable (store insertion order) for determinism:
// the same (trafficPercentage, variants, toss) always yields the same
// result.
func Decide(trafficPercentage uint8, variants []model.Variant, toss uint8) (*model.Variant, bool) {
	n := len(variants)
	if n == 0 {
		return nil, false
	}

	rng := int(trafficPercentage) * n
	if int(toss) >= rng {
		return nil, false
	}

	bucket := 0
	for i := range variants {
		bucket += int(trafficPercentage)
		if int(toss) < bucket {
			return &variants[i], true
		}
	}
	// Unreachable given toss < rng above, but fall through defensively.
	return nil, false
}

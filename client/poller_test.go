package client

import (
	"testing"

	"github.com/ctxconfig/cac/internal/model"
)

func seededPoller(experiments ...model.Experiment) *Poller {
	p := &Poller{
		experiments: make(map[int64]model.Experiment),
		lastPolled:  epoch,
	}
	for _, e := range experiments {
		p.experiments[e.ID] = e
	}
	return p
}

func TestGetRunningExperimentsReturnsSnapshot(t *testing.T) {
	p := seededPoller(
		model.Experiment{ID: 1, Name: "a"},
		model.Experiment{ID: 2, Name: "b"},
	)
	got := p.GetRunningExperiments()
	if len(got) != 2 {
		t.Fatalf("expected 2 experiments, got %d", len(got))
	}
}

func TestGetSatisfiedExperimentsFiltersByContext(t *testing.T) {
	p := seededPoller(
		model.Experiment{
			ID:      1,
			Name:    "matches",
			Context: map[string]any{"==": []any{map[string]any{"var": "region"}, "us-east"}},
		},
		model.Experiment{
			ID:      2,
			Name:    "does-not-match",
			Context: map[string]any{"==": []any{map[string]any{"var": "region"}, "eu-west"}},
		},
	)

	got, err := p.GetSatisfiedExperiments(map[string]any{"region": "us-east"})
	if err != nil {
		t.Fatalf("GetSatisfiedExperiments failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("expected only experiment 1 to match, got %+v", got)
	}
}

func TestGetSatisfiedExperimentsPropagatesEvalError(t *testing.T) {
	p := seededPoller(model.Experiment{
		ID:      1,
		Context: map[string]any{"bogus-operator-with-two-keys": "x", "another": "y"},
	})

	_, err := p.GetSatisfiedExperiments(map[string]any{})
	if err == nil {
		t.Fatal("expected error from malformed condition")
	}
}

func TestGetApplicableVariantBucketsByToss(t *testing.T) {
	p := seededPoller(model.Experiment{
		ID:                1,
		Name:              "button-color",
		Context:           map[string]any{"==": []any{map[string]any{"var": "region"}, "us-east"}},
		TrafficPercentage: 30,
		Variants: []model.Variant{
			{ID: "control", VariantType: model.VariantControl},
			{ID: "treatment", VariantType: model.VariantExperimental},
		},
	})

	// traffic_percentage=30 over 2 variants covers tosses [0,60); control
	// takes [0,30), treatment takes [30,60), anything >=60 gets no variant.
	ids, err := p.GetApplicableVariant(map[string]any{"region": "us-east"}, 10)
	if err != nil {
		t.Fatalf("GetApplicableVariant failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "control" {
		t.Fatalf("expected toss=10 to land in control, got %v", ids)
	}

	ids, err = p.GetApplicableVariant(map[string]any{"region": "us-east"}, 90)
	if err != nil {
		t.Fatalf("GetApplicableVariant failed: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected toss=90 outside the 60%% ramped range to be excluded, got %v", ids)
	}
}

func TestGetApplicableVariantSkipsUnsatisfiedExperiments(t *testing.T) {
	p := seededPoller(model.Experiment{
		ID:                1,
		Context:           map[string]any{"==": []any{map[string]any{"var": "region"}, "eu-west"}},
		TrafficPercentage: 100,
		Variants: []model.Variant{
			{ID: "control", VariantType: model.VariantControl},
		},
	})

	ids, err := p.GetApplicableVariant(map[string]any{"region": "us-east"}, 0)
	if err != nil {
		t.Fatalf("GetApplicableVariant failed: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no variants for unsatisfied context, got %v", ids)
	}
}

func TestToDomainExperimentConvertsConcludedStatus(t *testing.T) {
	resp := model.ExperimentResponse{
		ID:     42,
		Name:   "promo",
		Status: "CONCLUDED",
		Variants: []model.VariantInput{
			{ID: "v1", VariantType: "CONTROL", Overrides: map[string]any{"k": "v"}},
		},
		TrafficPercentage: 100,
	}
	e := toDomainExperiment(resp)
	if e.Status != model.ExperimentConcluded {
		t.Errorf("expected status CONCLUDED, got %q", e.Status)
	}
	if len(e.Variants) != 1 || e.Variants[0].ID != "v1" {
		t.Fatalf("unexpected variants: %+v", e.Variants)
	}
}

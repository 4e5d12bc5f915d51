package experiment

import (
	"context"
	"fmt"
	"time"

	"github.com/ctxconfig/cac/internal/apperr"
	"github.com/ctxconfig/cac/internal/model"
	"github.com/ctxconfig/cac/internal/storage"
	"github.com/ctxconfig/cac/internal/validate"
)

// overlapRetries and overlapBaseDelay bound the retry-once-on-serialization-
// conflict behavior required for experiment creation.
const (
	overlapRetries   = 1
	overlapBaseDelay = 20 * time.Millisecond
)

// Store is the persistence surface the lifecycle service needs. A
// concrete implementation lives in internal/storage, backed by Postgres;
// RunSerializable is expected to run fn inside one SERIALIZABLE
// transaction so the active-experiment read and the experiment insert are
// atomic with respect to concurrent creators.
type Store interface {
	GetDefaultConfig(ctx context.Context, key string) (*model.DefaultConfigEntry, error)
	ListActiveExperiments(ctx context.Context) ([]model.Experiment, error)
	CreateExperiment(ctx context.Context, exp *model.Experiment) error
	GetExperiment(ctx context.Context, id int64) (*model.Experiment, error)
	UpdateExperiment(ctx context.Context, exp *model.Experiment) error
	PromoteDefaultConfigValues(ctx context.Context, values map[string]any) error
	RunSerializable(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service implements the experiment create/ramp/conclude lifecycle.
type Service struct {
	store Store
	flags OverlapFlags
}

// NewService builds a lifecycle Service over store, governed by flags for
// overlap validation on create.
func NewService(store Store, flags OverlapFlags) *Service {
	return &Service{store: store, flags: flags}
}

// CreateRequest is the validated input to Create.
type CreateRequest struct {
	Name     string
	Context  any
	Variants []model.Variant
}

// Create validates req against DefaultConfig and the currently active
// experiments, then persists a new CREATED experiment. The active-
// experiment read and the insert run inside one serializable transaction,
// retried once on a serialization or deadlock conflict.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.Experiment, error) {
	overrideKeys, err := deriveOverrideKeys(req.Variants)
	if err != nil {
		return nil, err
	}

	candidate := model.Experiment{
		Name:         req.Name,
		Status:       model.ExperimentCreated,
		Context:      req.Context,
		OverrideKeys: overrideKeys,
		Variants:     req.Variants,
	}

	if err := s.validateVariants(ctx, candidate); err != nil {
		return nil, err
	}

	err = storage.WithRetry(ctx, overlapRetries, overlapBaseDelay, func() error {
		return s.store.RunSerializable(ctx, func(txCtx context.Context) error {
			active, err := s.store.ListActiveExperiments(txCtx)
			if err != nil {
				return apperr.Unexpected("experiment: list active experiments", err)
			}
			if err := CheckOverlap(txCtx, s.flags, candidate, active); err != nil {
				return err
			}
			return s.store.CreateExperiment(txCtx, &candidate)
		})
	})
	if err != nil {
		return nil, err
	}
	return &candidate, nil
}

func deriveOverrideKeys(variants []model.Variant) ([]string, error) {
	var controls, experimentals int
	var keys []string
	seen := make(map[string]bool)

	for _, v := range variants {
		switch v.VariantType {
		case model.VariantControl:
			controls++
		case model.VariantExperimental:
			experimentals++
		default:
			return nil, apperr.BadArgument("variant %q: unknown variant_type %q", v.ID, v.VariantType)
		}
		if keys == nil {
			for k := range v.Overrides {
				keys = append(keys, k)
				seen[k] = true
			}
		}
	}
	if controls != 1 {
		return nil, apperr.BadArgument("experiment must have exactly one CONTROL variant, got %d", controls)
	}
	if experimentals < 1 {
		return nil, apperr.BadArgument("experiment must have at least one EXPERIMENTAL variant, got %d", experimentals)
	}
	if len(keys) == 0 {
		return nil, apperr.BadArgument("experiment variants must override at least one key")
	}
	return keys, nil
}

func (s *Service) validateVariants(ctx context.Context, exp model.Experiment) error {
	for _, v := range exp.Variants {
		if !sameKeySetExact(keysOf(v.Overrides), exp.OverrideKeys) {
			return apperr.BadArgument("variant %q: override keys must equal %v exactly", v.ID, exp.OverrideKeys)
		}
		for key, value := range v.Overrides {
			entry, err := s.store.GetDefaultConfig(ctx, key)
			if err != nil {
				return apperr.BadArgument("variant %q: override key %q does not exist in default config", v.ID, key)
			}
			if err := validate.Validate(entry.Schema, value); err != nil {
				return fmt.Errorf("variant %q: override key %q: %w", v.ID, key, err)
			}
		}
	}
	return nil
}

func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func sameKeySetExact(a, b []string) bool {
	return len(a) == len(b) && isSubset(a, b) && isSubset(b, a)
}

// Ramp transitions a CREATED or INPROGRESS experiment into INPROGRESS with
// the given traffic_percentage.
func (s *Service) Ramp(ctx context.Context, id int64, trafficPercentage uint8) (*model.Experiment, error) {
	exp, err := s.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("experiment %d not found", id)
	}
	if exp.Status == model.ExperimentConcluded {
		return nil, apperr.BadArgument("experiment %d is CONCLUDED and cannot be ramped", id)
	}
	if int(trafficPercentage)*len(exp.Variants) > 100 {
		return nil, apperr.BadArgument("traffic_percentage %d * %d variants exceeds 100", trafficPercentage, len(exp.Variants))
	}

	exp.TrafficPercentage = trafficPercentage
	exp.Status = model.ExperimentInProgress
	if err := s.store.UpdateExperiment(ctx, exp); err != nil {
		return nil, apperr.Unexpected("experiment: update on ramp", err)
	}
	return exp, nil
}

// Conclude transitions an INPROGRESS (or still-CREATED) experiment to
// CONCLUDED, recording chosenVariantID and promoting its override values
// into DefaultConfig.
func (s *Service) Conclude(ctx context.Context, id int64, chosenVariantID string) (*model.Experiment, error) {
	exp, err := s.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("experiment %d not found", id)
	}
	if exp.Status == model.ExperimentConcluded {
		return nil, apperr.BadArgument("experiment %d is already CONCLUDED", id)
	}

	chosen := exp.VariantByID(chosenVariantID)
	if chosen == nil {
		return nil, apperr.BadArgument("experiment %d has no variant %q", id, chosenVariantID)
	}

	if err := s.store.PromoteDefaultConfigValues(ctx, chosen.Overrides); err != nil {
		return nil, apperr.Unexpected("experiment: promote chosen variant", err)
	}

	exp.Status = model.ExperimentConcluded
	exp.ChosenVariant = &chosenVariantID
	if err := s.store.UpdateExperiment(ctx, exp); err != nil {
		return nil, apperr.Unexpected("experiment: update on conclude", err)
	}
	return exp, nil
}

package model

import "time"

// Dimension is a named attribute with a total-ordering priority; contexts
// reference dimensions by name, and the resolver sums dimension priorities
// to order matching contexts at resolve time.
type Dimension struct {
	Name         string    `json:"name"`
	Priority     int32     `json:"priority"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
}

// DefaultConfigEntry is a key's base value plus the schema it must satisfy
// and, optionally, the name of a registered validator function.
type DefaultConfigEntry struct {
	Key          string    `json:"key"`
	Value        any       `json:"value"`
	Schema       any       `json:"schema"`
	FunctionName *string   `json:"function_name,omitempty"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
}

// Override is a partial key→value map, identified by the canonical hash of
// its content. Every key must exist in the default-config store.
type Override struct {
	ID           string         `json:"id"`
	Value        map[string]any `json:"value"`
	CreatedAt    time.Time      `json:"created_at"`
	LastModified time.Time      `json:"last_modified"`
}

// ContextRecord pairs a condition with the override it activates. Priority
// is derived: the sum of the priorities of dimensions the condition's
// extracted equality terms reference.
type ContextRecord struct {
	ID           string    `json:"id"`
	Condition    any       `json:"condition"`
	OverrideID   string    `json:"override_id"`
	Priority     int32     `json:"priority"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
}

// VariantType distinguishes an experiment's baseline arm from its
// alternatives.
type VariantType string

const (
	VariantControl      VariantType = "CONTROL"
	VariantExperimental VariantType = "EXPERIMENTAL"
)

// Variant is one arm of an experiment. Overrides must cover exactly the
// experiment's override_keys.
type Variant struct {
	ID          string         `json:"id"`
	VariantType VariantType    `json:"variant_type"`
	Overrides   map[string]any `json:"overrides"`
}

// ExperimentStatus is the experiment lifecycle state.
type ExperimentStatus string

const (
	ExperimentCreated    ExperimentStatus = "CREATED"
	ExperimentInProgress ExperimentStatus = "INPROGRESS"
	ExperimentConcluded  ExperimentStatus = "CONCLUDED"
)

// Experiment is a time-bounded traffic split between variants.
type Experiment struct {
	ID                int64            `json:"id"`
	Name              string           `json:"name"`
	Status            ExperimentStatus `json:"status"`
	Context           any              `json:"context"`
	OverrideKeys      []string         `json:"override_keys"`
	Variants          []Variant        `json:"variants"`
	TrafficPercentage uint8            `json:"traffic_percentage"`
	ChosenVariant     *string          `json:"chosen_variant,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	LastModified      time.Time        `json:"last_modified"`
}

// ControlVariant returns the experiment's single CONTROL variant, if present.
func (e *Experiment) ControlVariant() *Variant {
	for i := range e.Variants {
		if e.Variants[i].VariantType == VariantControl {
			return &e.Variants[i]
		}
	}
	return nil
}

// VariantByID returns the variant with the given ID, if present.
func (e *Experiment) VariantByID(id string) *Variant {
	for i := range e.Variants {
		if e.Variants[i].ID == id {
			return &e.Variants[i]
		}
	}
	return nil
}

// ResolvedConfig is the output of a resolve call: the effective key→value
// map for a given caller context. It is never persisted.
type ResolvedConfig map[string]any

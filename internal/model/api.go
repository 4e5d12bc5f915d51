package model

import "time"

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// ListResponse is the standard envelope for paginated list endpoints.
type ListResponse struct {
	Data    any          `json:"data"`
	Total   *int         `json:"total,omitempty"`
	HasMore bool         `json:"has_more"`
	Page    int          `json:"page"`
	Count   int          `json:"count"`
	Meta    ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// PutDefaultConfigRequest is the request body for PUT /default-config/{key}.
// All three fields are optional on an update of an existing key (partial
// upsert merges onto the stored record); a new key requires Value and
// Schema. FunctionName is a pointer so the handler can distinguish
// "omitted" (nil, keep prior) from "explicit empty string" (clear it) from
// "explicit non-empty" (set it).
type PutDefaultConfigRequest struct {
	Value        *any    `json:"value"`
	Schema       *any    `json:"schema"`
	FunctionName *string `json:"function_name"`
}

// DefaultConfigResponse is an entry returned by GET /default-config.
type DefaultConfigResponse struct {
	Key          string    `json:"key"`
	Value        any       `json:"value"`
	Schema       any       `json:"schema,omitempty"`
	FunctionName *string   `json:"function_name,omitempty"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_on"`
	LastModified time.Time `json:"last_modified"`
}

// PutContextRequest is the request body for PUT /context.
type PutContextRequest struct {
	Context  any            `json:"context"`
	Override map[string]any `json:"override"`
}

// PutContextResponse is the response for PUT /context.
type PutContextResponse struct {
	ContextID  string `json:"context_id"`
	OverrideID string `json:"override_id"`
}

// ContextListEntry is an entry returned by GET /context/list.
type ContextListEntry struct {
	ID         string         `json:"id"`
	Condition  any            `json:"condition"`
	OverrideID string         `json:"override_id"`
	Override   map[string]any `json:"override"`
	Priority   int32          `json:"priority"`
}

// CreateDimensionRequest is the request body for POST /dimension.
type CreateDimensionRequest struct {
	Dimension string `json:"dimension"`
	Priority  int32  `json:"priority"`
}

// CreateExperimentRequest is the request body for POST /experiments.
type CreateExperimentRequest struct {
	Name     string         `json:"name"`
	Context  any            `json:"context"`
	Variants []VariantInput `json:"variants"`
}

// VariantInput is a variant as supplied when creating an experiment.
type VariantInput struct {
	ID          string         `json:"id"`
	VariantType string         `json:"variant_type"`
	Overrides   map[string]any `json:"overrides"`
}

// CreateExperimentResponse is the response for POST /experiments.
type CreateExperimentResponse struct {
	ExperimentID int64  `json:"experiment_id"`
	Status       string `json:"status"`
}

// RampExperimentRequest is the request body for PATCH /experiments/{id}/ramp.
type RampExperimentRequest struct {
	TrafficPercentage uint8 `json:"traffic_percentage"`
}

// ConcludeExperimentRequest is the request body for PATCH /experiments/{id}/conclude.
type ConcludeExperimentRequest struct {
	ChosenVariant string `json:"chosen_variant"`
}

// ExperimentResponse is an experiment as returned by the experiment endpoints.
type ExperimentResponse struct {
	ID                int64          `json:"id"`
	Name              string         `json:"name"`
	Status            string         `json:"status"`
	Context           any            `json:"context"`
	OverrideKeys      []string       `json:"override_keys"`
	Variants          []VariantInput `json:"variants"`
	TrafficPercentage uint8          `json:"traffic_percentage"`
	ChosenVariant     *string        `json:"chosen_variant,omitempty"`
	CreatedAt         time.Time      `json:"created_on"`
	LastModified      time.Time      `json:"last_modified"`
}

// ConfigSnapshotResponse is the response for GET /config.
type ConfigSnapshotResponse struct {
	Contexts       []ContextListEntry      `json:"contexts"`
	DefaultConfigs []DefaultConfigResponse `json:"default_configs"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Uptime   int64  `json:"uptime_seconds"`
}

package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ctxconfig/cac/internal/apperr"
	"github.com/ctxconfig/cac/internal/experiment"
	"github.com/ctxconfig/cac/internal/model"
	"github.com/ctxconfig/cac/internal/storage"
	"github.com/ctxconfig/cac/internal/validate"
	"github.com/ctxconfig/cac/internal/validatorfn"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db                  *storage.DB
	experiments         *experiment.Service
	validators          *validatorfn.Registry
	logger              *slog.Logger
	version             string
	maxRequestBodyBytes int64
	startedAt           time.Time
}

// HandlersDeps collects the dependencies NewHandlers wires into Handlers.
type HandlersDeps struct {
	DB                  *storage.DB
	Experiments         *experiment.Service
	Validators          *validatorfn.Registry
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(deps HandlersDeps) *Handlers {
	return &Handlers{
		db:                  deps.DB,
		experiments:         deps.Experiments,
		validators:          deps.Validators,
		logger:              deps.Logger,
		version:             deps.Version,
		maxRequestBodyBytes: deps.MaxRequestBodyBytes,
		startedAt:           time.Now(),
	}
}

// HandlePutDefaultConfig handles PUT /default-config/{key}.
//
// The request body is a partial upsert: value and schema are overwritten
// only if provided, and function_name has three states (omitted keeps the
// prior value, explicit "" clears it, explicit non-empty sets it). A new
// key requires both value and schema.
func (h *Handlers) HandlePutDefaultConfig(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "key is required")
		return
	}

	var req model.PutDefaultConfigRequest
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	existing, err := h.db.GetDefaultConfig(r.Context(), key)
	if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
		writeAppError(w, r, h.logger, err)
		return
	}

	entry := model.DefaultConfigEntry{Key: key, CreatedBy: "admin"}
	if existing != nil {
		entry = *existing
	}
	if existing == nil && (req.Value == nil || req.Schema == nil) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "value and schema are required for a new key")
		return
	}
	if req.Value != nil {
		entry.Value = *req.Value
	}
	if req.Schema != nil {
		entry.Schema = *req.Schema
	}
	if req.FunctionName != nil {
		if *req.FunctionName == "" {
			entry.FunctionName = nil
		} else {
			entry.FunctionName = req.FunctionName
		}
	}

	if err := validate.Validate(entry.Schema, entry.Value); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	if entry.FunctionName != nil {
		if err := h.validators.Validate(*entry.FunctionName, entry.Key, entry.Value); err != nil {
			writeAppError(w, r, h.logger, err)
			return
		}
	}

	if err := h.db.PutDefaultConfig(r.Context(), entry); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	got, err := h.db.GetDefaultConfig(r.Context(), key)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, defaultConfigResponse(got))
}

// HandleListDefaultConfig handles GET /default-config.
func (h *Handlers) HandleListDefaultConfig(w http.ResponseWriter, r *http.Request) {
	entries, err := h.db.ListDefaultConfig(r.Context())
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	out := make([]model.DefaultConfigResponse, len(entries))
	for i := range entries {
		out[i] = defaultConfigResponse(&entries[i])
	}
	writeJSON(w, r, http.StatusOK, out)
}

// HandleDeleteDefaultConfig handles DELETE /default-config/{key}.
func (h *Handlers) HandleDeleteDefaultConfig(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := h.db.DeleteDefaultConfig(r.Context(), key); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func defaultConfigResponse(e *model.DefaultConfigEntry) model.DefaultConfigResponse {
	return model.DefaultConfigResponse{
		Key:          e.Key,
		Value:        e.Value,
		Schema:       e.Schema,
		FunctionName: e.FunctionName,
		CreatedBy:    e.CreatedBy,
		CreatedAt:    e.CreatedAt,
		LastModified: e.LastModified,
	}
}

// HandlePutContext handles PUT /context.
func (h *Handlers) HandlePutContext(w http.ResponseWriter, r *http.Request) {
	var req model.PutContextRequest
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if req.Context == nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "context is required")
		return
	}

	contextID, overrideID, err := h.db.PutContext(r.Context(), req.Context, req.Override)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.PutContextResponse{ContextID: contextID, OverrideID: overrideID})
}

// HandleListContexts handles GET /context/list.
func (h *Handlers) HandleListContexts(w http.ResponseWriter, r *http.Request) {
	records, err := h.db.ListContexts(r.Context())
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	out := make([]model.ContextListEntry, 0, len(records))
	for _, rec := range records {
		override, err := h.db.GetOverride(r.Context(), rec.OverrideID)
		if err != nil {
			writeAppError(w, r, h.logger, err)
			return
		}
		out = append(out, model.ContextListEntry{
			ID:         rec.ID,
			Condition:  rec.Condition,
			OverrideID: rec.OverrideID,
			Override:   override.Value,
			Priority:   rec.Priority,
		})
	}
	writeJSON(w, r, http.StatusOK, out)
}

// HandleDeleteContext handles DELETE /context/{id}.
func (h *Handlers) HandleDeleteContext(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.db.DeleteContext(r.Context(), id); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCreateDimension handles POST /dimension.
func (h *Handlers) HandleCreateDimension(w http.ResponseWriter, r *http.Request) {
	var req model.CreateDimensionRequest
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if req.Dimension == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "dimension is required")
		return
	}

	if err := h.db.CreateDimension(r.Context(), model.Dimension{Name: req.Dimension, Priority: req.Priority}); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	dim, err := h.db.GetDimension(r.Context(), req.Dimension)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, dim)
}

// HandleCreateExperiment handles POST /experiments.
func (h *Handlers) HandleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req model.CreateExperimentRequest
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	variants := make([]model.Variant, len(req.Variants))
	for i, v := range req.Variants {
		variants[i] = model.Variant{ID: v.ID, VariantType: model.VariantType(v.VariantType), Overrides: v.Overrides}
	}

	exp, err := h.experiments.Create(r.Context(), experiment.CreateRequest{
		Name:     req.Name,
		Context:  req.Context,
		Variants: variants,
	})
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, model.CreateExperimentResponse{
		ExperimentID: exp.ID,
		Status:       string(exp.Status),
	})
}

// HandleRampExperiment handles PATCH /experiments/{id}/ramp.
func (h *Handlers) HandleRampExperiment(w http.ResponseWriter, r *http.Request) {
	id, err := parseExperimentID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req model.RampExperimentRequest
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	exp, err := h.experiments.Ramp(r.Context(), id, req.TrafficPercentage)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, experimentResponse(exp))
}

// HandleConcludeExperiment handles PATCH /experiments/{id}/conclude.
func (h *Handlers) HandleConcludeExperiment(w http.ResponseWriter, r *http.Request) {
	id, err := parseExperimentID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req model.ConcludeExperimentRequest
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	exp, err := h.experiments.Conclude(r.Context(), id, req.ChosenVariant)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, experimentResponse(exp))
}

// HandleListExperiments handles GET /experiments.
func (h *Handlers) HandleListExperiments(w http.ResponseWriter, r *http.Request) {
	filter := storage.ExperimentFilter{
		FromDate: queryTime(r, "from_date"),
		ToDate:   queryTime(r, "to_date"),
		Page:     queryInt(r, "page", 1),
		Count:    queryInt(r, "count", 20),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Status = append(filter.Status, model.ExperimentStatus(strings.TrimSpace(s)))
		}
	}

	exps, hasMore, err := h.db.ListExperiments(r.Context(), filter)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	out := make([]model.ExperimentResponse, len(exps))
	for i := range exps {
		out[i] = experimentResponse(&exps[i])
	}
	writeList(w, r, http.StatusOK, out, hasMore, filter.Page, filter.Count)
}

func experimentResponse(e *model.Experiment) model.ExperimentResponse {
	variants := make([]model.VariantInput, len(e.Variants))
	for i, v := range e.Variants {
		variants[i] = model.VariantInput{ID: v.ID, VariantType: string(v.VariantType), Overrides: v.Overrides}
	}
	return model.ExperimentResponse{
		ID:                e.ID,
		Name:              e.Name,
		Status:            string(e.Status),
		Context:           e.Context,
		OverrideKeys:      e.OverrideKeys,
		Variants:          variants,
		TrafficPercentage: e.TrafficPercentage,
		ChosenVariant:     e.ChosenVariant,
		CreatedAt:         e.CreatedAt,
		LastModified:      e.LastModified,
	}
}

func parseExperimentID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, apperr.BadArgument("invalid experiment id %q", r.PathValue("id"))
	}
	return id, nil
}

// HandleConfigSnapshot handles GET /config — a cold-start snapshot of
// contexts, their overrides, and default configs. Like the rest of the
// admin API it requires the bearer token; only /health is exempt.
func (h *Handlers) HandleConfigSnapshot(w http.ResponseWriter, r *http.Request) {
	records, err := h.db.ListContexts(r.Context())
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	contexts := make([]model.ContextListEntry, 0, len(records))
	for _, rec := range records {
		override, err := h.db.GetOverride(r.Context(), rec.OverrideID)
		if err != nil {
			writeAppError(w, r, h.logger, err)
			return
		}
		contexts = append(contexts, model.ContextListEntry{
			ID:         rec.ID,
			Condition:  rec.Condition,
			OverrideID: rec.OverrideID,
			Override:   override.Value,
			Priority:   rec.Priority,
		})
	}

	defaults, err := h.db.ListDefaultConfig(r.Context())
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	defaultResponses := make([]model.DefaultConfigResponse, len(defaults))
	for i := range defaults {
		defaultResponses[i] = defaultConfigResponse(&defaults[i])
	}

	writeJSON(w, r, http.StatusOK, model.ConfigSnapshotResponse{
		Contexts:       contexts,
		DefaultConfigs: defaultResponses,
	})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	pgStatus := "connected"
	if err := h.db.Ping(r.Context()); err != nil {
		pgStatus = "disconnected"
	}

	writeJSON(w, r, http.StatusOK, model.HealthResponse{
		Status:   "healthy",
		Version:  h.version,
		Postgres: pgStatus,
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	})
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func queryTime(r *http.Request, key string) *time.Time {
	if v := r.URL.Query().Get(key); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return &t
		}
	}
	return nil
}

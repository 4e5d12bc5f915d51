package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ctxconfig/cac/internal/model"
)

// PutDefaultConfig creates or partially updates a default-config key. A new
// key requires req.Value and req.Schema to both be non-nil.
func (c *Client) PutDefaultConfig(ctx context.Context, key string, req model.PutDefaultConfigRequest) (*model.DefaultConfigResponse, error) {
	var resp model.DefaultConfigResponse
	if err := c.put(ctx, "/default-config/"+url.PathEscape(key), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListDefaultConfig returns every default-config entry.
func (c *Client) ListDefaultConfig(ctx context.Context) ([]model.DefaultConfigResponse, error) {
	var resp []model.DefaultConfigResponse
	if err := c.get(ctx, "/default-config", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// DeleteDefaultConfig removes a default-config key. Fails if any context
// override still references it.
func (c *Client) DeleteDefaultConfig(ctx context.Context, key string) error {
	return c.doDelete(ctx, "/default-config/"+url.PathEscape(key))
}

// PutContext creates or repairs a contextual override, returning the
// content-addressed context and override IDs. Calling it again with the
// same condition and override is idempotent.
func (c *Client) PutContext(ctx context.Context, condition any, override map[string]any) (*model.PutContextResponse, error) {
	req := model.PutContextRequest{Context: condition, Override: override}
	var resp model.PutContextResponse
	if err := c.put(ctx, "/context", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListContexts returns every contextual override.
func (c *Client) ListContexts(ctx context.Context) ([]model.ContextListEntry, error) {
	var resp []model.ContextListEntry
	if err := c.get(ctx, "/context/list", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// DeleteContext removes a contextual override by ID.
func (c *Client) DeleteContext(ctx context.Context, id string) error {
	return c.doDelete(ctx, "/context/"+url.PathEscape(id))
}

// CreateDimension registers a new dimension with the given resolve-time
// priority.
func (c *Client) CreateDimension(ctx context.Context, dimension string, priority int32) (*model.Dimension, error) {
	req := model.CreateDimensionRequest{Dimension: dimension, Priority: priority}
	var resp model.Dimension
	if err := c.post(ctx, "/dimension", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateExperiment registers a new CREATED experiment.
func (c *Client) CreateExperiment(ctx context.Context, req model.CreateExperimentRequest) (*model.CreateExperimentResponse, error) {
	var resp model.CreateExperimentResponse
	if err := c.post(ctx, "/experiments", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RampExperiment sets an experiment's traffic allocation and transitions it
// to INPROGRESS.
func (c *Client) RampExperiment(ctx context.Context, id int64, trafficPercentage uint8) (*model.ExperimentResponse, error) {
	req := model.RampExperimentRequest{TrafficPercentage: trafficPercentage}
	var resp model.ExperimentResponse
	if err := c.patch(ctx, fmt.Sprintf("/experiments/%d/ramp", id), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ConcludeExperiment picks a winning variant, promotes its overrides into
// default config, and transitions the experiment to CONCLUDED.
func (c *Client) ConcludeExperiment(ctx context.Context, id int64, chosenVariant string) (*model.ExperimentResponse, error) {
	req := model.ConcludeExperimentRequest{ChosenVariant: chosenVariant}
	var resp model.ExperimentResponse
	if err := c.patch(ctx, fmt.Sprintf("/experiments/%d/conclude", id), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListExperimentsOptions filters ListExperiments.
type ListExperimentsOptions struct {
	FromDate string // RFC3339
	ToDate   string // RFC3339
	Statuses []model.ExperimentStatus
	Page     int
	Count    int
}

// ListExperimentsPage is one page of ListExperiments, including the fields
// needed to decide whether to fetch the next page.
type ListExperimentsPage struct {
	Experiments []model.ExperimentResponse
	HasMore     bool
	Total       *int
}

// ListExperiments returns a single page of experiments matching opts. Use
// the poller's cache for steady-state reads; this is a direct, uncached
// call to the admin API.
func (c *Client) ListExperiments(ctx context.Context, opts ListExperimentsOptions) (*ListExperimentsPage, error) {
	params := url.Values{}
	if opts.FromDate != "" {
		params.Set("from_date", opts.FromDate)
	}
	if opts.ToDate != "" {
		params.Set("to_date", opts.ToDate)
	}
	if len(opts.Statuses) > 0 {
		strs := make([]string, len(opts.Statuses))
		for i, s := range opts.Statuses {
			strs[i] = string(s)
		}
		params.Set("status", strings.Join(strs, ","))
	}
	if opts.Page > 0 {
		params.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Count > 0 {
		params.Set("count", strconv.Itoa(opts.Count))
	}

	path := "/experiments"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var experiments []model.ExperimentResponse
	hasMore, total, err := c.getList(ctx, path, &experiments)
	if err != nil {
		return nil, err
	}
	return &ListExperimentsPage{Experiments: experiments, HasMore: hasMore, Total: total}, nil
}

// GetConfigSnapshot fetches the cold-start snapshot of contexts and default
// configs. Like every other admin API call, this requires a bearer token.
func (c *Client) GetConfigSnapshot(ctx context.Context) (*model.ConfigSnapshotResponse, error) {
	var resp model.ConfigSnapshotResponse
	if err := c.get(ctx, "/config", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the server's liveness. Does not require authentication.
func (c *Client) Health(ctx context.Context) (*model.HealthResponse, error) {
	var resp model.HealthResponse
	if err := c.getNoAuth(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

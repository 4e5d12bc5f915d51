package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ctxconfig/cac/internal/experiment"
	"github.com/ctxconfig/cac/internal/logic"
	"github.com/ctxconfig/cac/internal/model"
)

// epoch is the watermark's initial value: far enough in the past that the
// first poll tick fetches every experiment that currently exists.
var epoch = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

// maxPageFetchWorkers bounds concurrent page fetches once a total page
// count is known.
const maxPageFetchWorkers = 4

// Poller owns the in-memory experiment cache for one Client: a single
// writer goroutine refreshes it on a ticker, and any number of readers
// consult cloned snapshots through GetApplicableVariant, GetSatisfiedExperiments,
// and GetRunningExperiments.
type Poller struct {
	client       *Client
	pollInterval time.Duration

	mu          sync.RWMutex
	experiments map[int64]model.Experiment
	lastPolled  time.Time
}

func newPoller(c *Client, pollInterval time.Duration) *Poller {
	return &Poller{
		client:       c,
		pollInterval: pollInterval,
		experiments:  make(map[int64]model.Experiment),
		lastPolled:   epoch,
	}
}

// coldStart seeds the cache with a snapshot fetch before the first poll
// tick. Contexts and default configs are fetched but not retained here;
// callers who need them can call Client.GetConfigSnapshot directly, since
// the poller only tracks experiments (see run).
func (p *Poller) coldStart(ctx context.Context) error {
	if _, err := p.client.GetConfigSnapshot(ctx); err != nil {
		return err
	}
	return p.poll(ctx)
}

// run drives the ticker loop until ctx is cancelled.
func (p *Poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				slog.Warn("client: poll failed, will retry next tick", "error", err)
			}
		}
	}
}

// poll fetches every experiment modified since the last successful poll and
// merges the result into the cache. The watermark only advances after a
// fully successful fetch across every page.
func (p *Poller) poll(ctx context.Context) error {
	requestStart := time.Now().UTC()

	p.mu.RLock()
	from := p.lastPolled
	p.mu.RUnlock()

	page, err := p.client.ListExperiments(ctx, ListExperimentsOptions{
		FromDate: from.Format(time.RFC3339),
		ToDate:   requestStart.Format(time.RFC3339),
		Statuses: []model.ExperimentStatus{model.ExperimentInProgress, model.ExperimentConcluded},
		Page:     1,
		Count:    100,
	})
	if err != nil {
		return fmt.Errorf("client: poll page 1: %w", err)
	}

	allExperiments := append([]model.ExperimentResponse{}, page.Experiments...)

	if page.HasMore {
		more, err := p.fetchRemainingPages(ctx, from, requestStart, page)
		if err != nil {
			return err
		}
		allExperiments = append(allExperiments, more...)
	}

	p.mu.Lock()
	for _, e := range allExperiments {
		if e.Status == string(model.ExperimentConcluded) {
			delete(p.experiments, e.ID)
			continue
		}
		p.experiments[e.ID] = toDomainExperiment(e)
	}
	p.lastPolled = requestStart
	p.mu.Unlock()

	return nil
}

// fetchRemainingPages follows pagination past the first page. When the
// response carries a known total, remaining pages are fetched concurrently
// (bounded by maxPageFetchWorkers); otherwise it falls back to sequential
// fetch, stopping at the first short or empty page.
func (p *Poller) fetchRemainingPages(ctx context.Context, from, to time.Time, first *ListExperimentsPage) ([]model.ExperimentResponse, error) {
	if first.Total != nil && *first.Total > 0 {
		totalPages := (*first.Total + len(first.Experiments) - 1) / len(first.Experiments)
		if totalPages <= 1 {
			return nil, nil
		}
		results := make([][]model.ExperimentResponse, totalPages+1)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxPageFetchWorkers)
		for pg := 2; pg <= totalPages; pg++ {
			pg := pg
			g.Go(func() error {
				resp, err := p.client.ListExperiments(gctx, ListExperimentsOptions{
					FromDate: from.Format(time.RFC3339),
					ToDate:   to.Format(time.RFC3339),
					Statuses: []model.ExperimentStatus{model.ExperimentInProgress, model.ExperimentConcluded},
					Page:     pg,
					Count:    100,
				})
				if err != nil {
					return err
				}
				results[pg] = resp.Experiments
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("client: poll page fetch: %w", err)
		}
		var out []model.ExperimentResponse
		for _, r := range results {
			out = append(out, r...)
		}
		return out, nil
	}

	var out []model.ExperimentResponse
	pageNum := 2
	for {
		resp, err := p.client.ListExperiments(ctx, ListExperimentsOptions{
			FromDate: from.Format(time.RFC3339),
			ToDate:   to.Format(time.RFC3339),
			Statuses: []model.ExperimentStatus{model.ExperimentInProgress, model.ExperimentConcluded},
			Page:     pageNum,
			Count:    100,
		})
		if err != nil {
			return nil, fmt.Errorf("client: poll page %d: %w", pageNum, err)
		}
		out = append(out, resp.Experiments...)
		if !resp.HasMore || len(resp.Experiments) == 0 {
			break
		}
		pageNum++
	}
	return out, nil
}

func toDomainExperiment(e model.ExperimentResponse) model.Experiment {
	variants := make([]model.Variant, len(e.Variants))
	for i, v := range e.Variants {
		variants[i] = model.Variant{ID: v.ID, VariantType: model.VariantType(v.VariantType), Overrides: v.Overrides}
	}
	return model.Experiment{
		ID:                e.ID,
		Name:              e.Name,
		Status:            model.ExperimentStatus(e.Status),
		Context:           e.Context,
		OverrideKeys:      e.OverrideKeys,
		Variants:          variants,
		TrafficPercentage: e.TrafficPercentage,
		ChosenVariant:     e.ChosenVariant,
		CreatedAt:         e.CreatedAt,
		LastModified:      e.LastModified,
	}
}

// snapshot returns a cloned slice of the currently cached experiments,
// safe to use without holding the lock.
func (p *Poller) snapshot() []model.Experiment {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.Experiment, 0, len(p.experiments))
	for _, e := range p.experiments {
		out = append(out, e)
	}
	return out
}

// GetRunningExperiments returns a snapshot of every cached experiment
// (INPROGRESS; CONCLUDED ones are evicted from the cache on poll).
func (p *Poller) GetRunningExperiments() []model.Experiment {
	return p.snapshot()
}

// GetSatisfiedExperiments returns the cached experiments whose context
// condition evaluates true against callerContext.
func (p *Poller) GetSatisfiedExperiments(callerContext map[string]any) ([]model.Experiment, error) {
	var out []model.Experiment
	for _, e := range p.snapshot() {
		ok, err := logic.Eval(e.Context, callerContext)
		if err != nil {
			return nil, fmt.Errorf("client: evaluating experiment %d context: %w", e.ID, err)
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetApplicableVariant evaluates every cached experiment against
// callerContext and buckets toss into a variant for each one whose
// condition is satisfied. It returns the IDs of the variants the caller was
// assigned, suitable for storing under callerContext["variantIds"] before
// calling a local resolver.Resolver.
func (p *Poller) GetApplicableVariant(callerContext map[string]any, toss uint8) ([]string, error) {
	satisfied, err := p.GetSatisfiedExperiments(callerContext)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range satisfied {
		variant, ok := experiment.Decide(e.TrafficPercentage, e.Variants, toss)
		if !ok {
			continue
		}
		ids = append(ids, variant.ID)
	}
	return ids, nil
}

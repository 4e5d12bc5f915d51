package client

import (
	"context"
	"fmt"
	"sync"
)

// Factory lazily constructs and caches one Client per tenant, so a process
// serving multiple tenants only runs one poller per tenant regardless of
// how many callers ask for it.
type Factory struct {
	mu      sync.Mutex
	clients map[string]*Client
}

// NewFactory returns an empty Factory.
func NewFactory() *Factory {
	return &Factory{clients: make(map[string]*Client)}
}

// GetOrCreate returns the cached Client for tenant, constructing and
// starting it against ctx on first use. cfg is only consulted on the first
// call for a given tenant; subsequent calls ignore it and return the
// existing Client.
func (f *Factory) GetOrCreate(ctx context.Context, tenant string, cfg Config) (*Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[tenant]; ok {
		return c, nil
	}

	cfg.Tenant = tenant
	c, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("client: factory: tenant %q: %w", tenant, err)
	}
	f.clients[tenant] = c
	return c, nil
}

// Get returns the cached Client for tenant, if one has already been
// created, and false otherwise.
func (f *Factory) Get(tenant string) (*Client, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[tenant]
	return c, ok
}

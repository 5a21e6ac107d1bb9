package store

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// DefaultInstance is the instance name used when none is given.
const DefaultInstance = "default"

// Clients opens and caches one Client per configured instance name.
type Clients struct {
	mu      sync.Mutex
	configs map[string]Config
	clients map[string]*Client
	logger  *zap.Logger

	// open is replaced in tests.
	open func(context.Context, Config, *zap.Logger) (*Client, error)
}

// NewClients creates a set of lazily opened clients.
func NewClients(configs map[string]Config, logger *zap.Logger) *Clients {
	if logger == nil {
		logger = zap.NewNop()
	}
	cp := make(map[string]Config, len(configs))
	for name, cfg := range configs {
		cp[name] = cfg
	}
	return &Clients{
		configs: cp,
		clients: make(map[string]*Client),
		logger:  logger,
		open:    Open,
	}
}

// Instance returns the client for name, opening it on first use. An
// empty name selects DefaultInstance.
func (c *Clients) Instance(ctx context.Context, name string) (*Client, error) {
	if name == "" {
		name = DefaultInstance
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[name]; ok {
		return client, nil
	}
	cfg, ok := c.configs[name]
	if !ok {
		return nil, &ConfigError{Field: "instance", Reason: fmt.Sprintf("invalid instance name %q", name)}
	}
	client, err := c.open(ctx, cfg, c.logger.With(zap.String("instance", name)))
	if err != nil {
		return nil, fmt.Errorf("open instance %s: %w", name, err)
	}
	c.clients[name] = client
	return client, nil
}

// Names returns the configured instance names in sorted order.
func (c *Clients) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedNames(c.configs)
}

// Close releases every opened client. Instances reopen on next use.
func (c *Clients) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, client := range c.clients {
		client.Close()
		delete(c.clients, name)
	}
}

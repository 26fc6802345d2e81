package sessions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/marketid/internal/dependencies/clock"
	"github.com/mcoot/marketid/internal/dependencies/random"
	"github.com/mcoot/marketid/internal/identity"
	"github.com/mcoot/marketid/internal/model"
)

// ClientIDLength is the length of generated client identifiers
const ClientIDLength = 32

// EngineFactory builds the engine for a new client
type EngineFactory func(clientID string) *identity.Engine

// Config holds registry settings
type Config struct {
	// IdleTTL evicts clients that have not been seen for this long
	IdleTTL time.Duration
}

// DefaultConfig returns default registry settings
func DefaultConfig() Config {
	return Config{
		IdleTTL: 24 * time.Hour,
	}
}

type client struct {
	engine   *identity.Engine
	lastSeen time.Time
}

// Registry maps opaque client IDs to their identity engines
type Registry struct {
	factory EngineFactory
	clock   clock.Clock
	random  random.Random
	cfg     Config
	logger  *slog.Logger

	mu      sync.Mutex
	clients map[string]*client
}

// NewRegistry creates an empty registry
func NewRegistry(factory EngineFactory, clk clock.Clock, rnd random.Random, cfg Config, logger *slog.Logger) *Registry {
	if cfg.IdleTTL == 0 {
		cfg.IdleTTL = DefaultConfig().IdleTTL
	}
	return &Registry{
		factory: factory,
		clock:   clk,
		random:  rnd,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "sessions")),
		clients: make(map[string]*client),
	}
}

// Create registers a new client and starts its engine
func (r *Registry) Create(ctx context.Context) (string, *identity.Engine) {
	r.mu.Lock()
	var id string
	for {
		id = r.random.String(ClientIDLength, random.TokenAlphabet)
		if _, exists := r.clients[id]; !exists {
			break
		}
	}
	engine := r.factory(id)
	r.clients[id] = &client{engine: engine, lastSeen: r.clock.Now()}
	count := len(r.clients)
	r.mu.Unlock()

	engine.Start(ctx)
	r.logger.Debug("client created", slog.Int("total_clients", count))
	return id, engine
}

// Get returns the engine for id and marks the client as seen
func (r *Registry) Get(id string) (*identity.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return nil, model.ErrClientNotFound
	}
	c.lastSeen = r.clock.Now()
	return c.engine, nil
}

// GetOrCreate returns the engine for id, creating a new client when id is
// unknown. The returned ID differs from id when a client was created.
func (r *Registry) GetOrCreate(ctx context.Context, id string) (string, *identity.Engine, bool) {
	if id != "" {
		if engine, err := r.Get(id); err == nil {
			return id, engine, false
		}
	}
	newID, engine := r.Create(ctx)
	return newID, engine, true
}

// Remove closes and forgets a client
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	c, ok := r.clients[id]
	delete(r.clients, id)
	r.mu.Unlock()

	if ok {
		c.engine.Close()
	}
}

// Len returns the number of registered clients
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// CleanupIdle closes clients idle longer than IdleTTL (call periodically)
func (r *Registry) CleanupIdle() int {
	now := r.clock.Now()

	r.mu.Lock()
	var idle []*client
	for id, c := range r.clients {
		if now.Sub(c.lastSeen) > r.cfg.IdleTTL {
			idle = append(idle, c)
			delete(r.clients, id)
		}
	}
	r.mu.Unlock()

	for _, c := range idle {
		c.engine.Close()
	}
	if len(idle) > 0 {
		r.logger.Info("idle clients evicted", slog.Int("removed", len(idle)))
	}
	return len(idle)
}

// Close shuts down every client
func (r *Registry) Close() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*client)
	r.mu.Unlock()

	for _, c := range clients {
		c.engine.Close()
	}
}

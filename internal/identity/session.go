package identity

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mcoot/marketid/internal/model"
)

// Snapshot is the store's state after a transition
type Snapshot struct {
	State    model.SessionState
	Identity *model.ResolvedIdentity
}

// SessionStore owns the session state and resolved identity of one client.
// Every hydration is tagged with a generation; a result whose generation has
// been superseded is discarded, so the most recent request always wins.
type SessionStore struct {
	backend  AuthBackend
	hydrator *Hydrator
	backup   IdentityBackup
	logger   *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu         sync.RWMutex
	state      model.SessionState
	identity   *model.ResolvedIdentity
	optimistic *model.ResolvedIdentity
	generation uint64

	// persistMu orders backup writes so a stale save cannot land after a clear
	persistMu sync.Mutex

	listenerMu   sync.Mutex
	listeners    map[int]func(Snapshot)
	nextListener int
	// notifyMu serializes deliveries so listeners observe transitions in order
	notifyMu sync.Mutex

	initOnce  sync.Once
	ready     chan struct{}
	readyOnce sync.Once

	// subMu guards the backend subscription against a concurrent Close
	subMu       sync.Mutex
	closed      bool
	unsubscribe func()
}

// NewSessionStore creates a store in the unknown state
func NewSessionStore(backend AuthBackend, hydrator *Hydrator, backup IdentityBackup, logger *slog.Logger) *SessionStore {
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionStore{
		backend:   backend,
		hydrator:  hydrator,
		backup:    backup,
		logger:    logger.With(slog.String("component", "session-store")),
		baseCtx:   ctx,
		cancel:    cancel,
		state:     model.SessionUnknown,
		listeners: make(map[int]func(Snapshot)),
		ready:     make(chan struct{}),
	}
}

// Initialize subscribes to the backend, seeds the optimistic identity from the
// backup and resolves the current session. Only the first call does anything.
// Ready is closed when it returns, whatever the outcome.
func (s *SessionStore) Initialize(ctx context.Context) {
	s.initOnce.Do(func() {
		defer s.markReady()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("session initialization panicked", slog.Any("panic", r))
				s.clear(ctx, s.begin(false), false)
			}
		}()

		if !s.subscribe() {
			return
		}

		if s.backup != nil {
			if seed := s.backup.Load(ctx); seed != nil {
				s.mu.Lock()
				if s.optimistic == nil {
					s.optimistic = seed
				}
				s.mu.Unlock()
				s.logger.Debug("optimistic identity seeded from backup",
					slog.String("user_id", string(seed.ID)))
			}
		}

		gen := s.begin(true)
		principal, err := s.backend.CurrentSession(ctx)
		if err != nil {
			s.logger.Warn("failed to fetch session during initialization", slog.Any("error", err))
			s.clear(ctx, gen, false)
			return
		}
		if principal == nil {
			s.clear(ctx, gen, true)
			return
		}
		s.hydrate(ctx, gen, principal)
	})
}

// OnSessionChanged applies a backend session event
func (s *SessionStore) OnSessionChanged(ctx context.Context, ev model.SessionEvent) {
	s.logger.Debug("session event", slog.String("kind", string(ev.Kind)))
	if ev.Kind == model.EventSignedOut || ev.Principal == nil {
		s.clear(ctx, s.begin(false), true)
		return
	}
	s.hydrate(ctx, s.begin(true), ev.Principal)
}

// CheckSession re-reads the backend session and rehydrates or clears.
// A fetch error resolves to anonymous but leaves the backup in place.
func (s *SessionStore) CheckSession(ctx context.Context) error {
	gen := s.begin(false)
	principal, err := s.backend.CurrentSession(ctx)
	if err != nil {
		s.logger.Warn("session check failed", slog.Any("error", err))
		s.clear(ctx, gen, false)
		return err
	}
	if principal == nil {
		s.clear(ctx, gen, true)
		return nil
	}
	s.hydrate(ctx, gen, principal)
	return nil
}

// Resolve hydrates principal as the current identity and returns the result.
// Used after an explicit sign-in so the caller can wait for the identity. The
// result is returned even if a newer request superseded it.
func (s *SessionStore) Resolve(ctx context.Context, principal *model.Principal) *model.ResolvedIdentity {
	return s.hydrate(ctx, s.begin(true), principal)
}

// Clear drops the identity and backup after an explicit sign-out
func (s *SessionStore) Clear(ctx context.Context) {
	s.clear(ctx, s.begin(false), true)
}

// State returns the current session state
func (s *SessionStore) State() model.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Identity returns a copy of the authoritative identity, or nil
func (s *SessionStore) Identity() *model.ResolvedIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity.Clone()
}

// OptimisticIdentity returns the best identity available for display: the
// authoritative one once resolved, otherwise the backup seed
func (s *SessionStore) OptimisticIdentity() *model.ResolvedIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity != nil {
		return s.identity.Clone()
	}
	return s.optimistic.Clone()
}

// Snapshot returns the current state and identity together
func (s *SessionStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{State: s.state, Identity: s.identity.Clone()}
}

// Ready is closed once initialization has finished
func (s *SessionStore) Ready() <-chan struct{} {
	return s.ready
}

// Subscribe registers fn to be called after every state transition
func (s *SessionStore) Subscribe(fn func(Snapshot)) func() {
	s.listenerMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.listenerMu.Unlock()

	return func() {
		s.listenerMu.Lock()
		delete(s.listeners, id)
		s.listenerMu.Unlock()
	}
}

// Close detaches from the backend and cancels event-driven work
func (s *SessionStore) Close() {
	s.cancel()

	s.subMu.Lock()
	s.closed = true
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.subMu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.markReady()
}

// subscribe attaches the backend listener unless the store is already closed
func (s *SessionStore) subscribe() bool {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.closed {
		return false
	}
	s.unsubscribe = s.backend.Subscribe(func(ev model.SessionEvent) {
		s.OnSessionChanged(s.baseCtx, ev)
	})
	return true
}

// begin starts a new generation. When resolving is set and no identity has
// been resolved yet the state moves to resolving; a resolved session stays
// resolved while it is refreshed in the background.
func (s *SessionStore) begin(resolving bool) uint64 {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	changed := false
	if resolving && s.state != model.SessionResolved && s.state != model.SessionResolving {
		s.state = model.SessionResolving
		changed = true
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return gen
}

func (s *SessionStore) hydrate(ctx context.Context, gen uint64, principal *model.Principal) *model.ResolvedIdentity {
	resolved := s.hydrator.Hydrate(ctx, principal)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("discarding superseded hydration",
			slog.String("user_id", string(principal.ID)))
		return resolved
	}
	s.identity = resolved
	s.optimistic = nil
	s.state = model.SessionResolved
	s.mu.Unlock()

	s.persist(ctx, gen, resolved)
	s.notify()
	return resolved.Clone()
}

// clear moves to anonymous if gen is still current. The backup is only
// removed when dropBackup is set.
func (s *SessionStore) clear(ctx context.Context, gen uint64, dropBackup bool) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.identity = nil
	if dropBackup {
		s.optimistic = nil
	}
	s.state = model.SessionAnonymous
	s.mu.Unlock()

	if dropBackup {
		s.persist(ctx, gen, nil)
	}
	s.notify()
}

// persist writes or clears the backup unless a newer generation has started
func (s *SessionStore) persist(ctx context.Context, gen uint64, identity *model.ResolvedIdentity) {
	if s.backup == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	current := gen == s.generation
	s.mu.RUnlock()
	if !current {
		return
	}

	var err error
	if identity == nil {
		err = s.backup.Clear(ctx)
	} else {
		err = s.backup.Save(ctx, identity)
	}
	if err != nil {
		s.logger.Warn("failed to update identity backup", slog.Any("error", err))
	}
}

// notify delivers the latest snapshot, not the one that triggered the call,
// so a delayed delivery can never report a superseded state last
func (s *SessionStore) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	snap := s.Snapshot()
	s.listenerMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for i := 0; i < s.nextListener; i++ {
		if fn, ok := s.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.listenerMu.Unlock()

	for _, fn := range fns {
		fn(Snapshot{State: snap.State, Identity: snap.Identity.Clone()})
	}
}

func (s *SessionStore) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

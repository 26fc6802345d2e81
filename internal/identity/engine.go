package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mcoot/marketid/internal/dependencies/clock"
	"github.com/mcoot/marketid/internal/model"
)

// Deps are the collaborators an Engine is built from.
// Backup may be nil; Records is only needed for Register.
type Deps struct {
	Backend  AuthBackend
	Profiles ProfileSource
	Stores   StoreSource
	Records  RecordWriter
	Backup   IdentityBackup
	Clock    clock.Clock
	Logger   *slog.Logger
}

// RegisterRequest describes a new marketplace account
type RegisterRequest struct {
	Email            string
	Password         string
	Name             string
	Role             model.Role
	StoreName        string
	StoreDescription string
	Fields           map[string]any
}

// Engine is the identity and session engine of one client
type Engine struct {
	cfg         Config
	backend     AuthBackend
	refresher   SessionRefresher
	records     RecordWriter
	clock       clock.Clock
	logger      *slog.Logger
	store       *SessionStore
	coordinator *RefreshCoordinator

	startOnce   sync.Once
	closeOnce   sync.Once
	unsubscribe func()

	driftMu sync.Mutex
	// reissued remembers the last drift a reissue was attempted for
	reissued string
	// closed stops new reissues once Close has started waiting on driftWG
	closed  bool
	driftWG sync.WaitGroup
}

// NewEngine wires an Engine; call Start to resolve the initial session
func NewEngine(deps Deps, cfg Config) *Engine {
	logger := deps.Logger.With(slog.String("component", "identity"))
	hydrator := NewHydrator(deps.Profiles, deps.Stores, deps.Clock, cfg.ProfileTimeout, logger)
	store := NewSessionStore(deps.Backend, hydrator, deps.Backup, logger)

	e := &Engine{
		cfg:     cfg,
		backend: deps.Backend,
		records: deps.Records,
		clock:   deps.Clock,
		logger:  logger,
		store:   store,
	}
	if r, ok := deps.Backend.(SessionRefresher); ok {
		e.refresher = r
	}
	e.coordinator = NewRefreshCoordinator(store.CheckSession, deps.Clock, cfg.Cooldown, cfg.Debounce, logger)
	e.unsubscribe = store.Subscribe(e.onTransition)
	return e
}

// Start resolves the initial session in the background. Ready is closed when
// that finishes.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		go e.store.Initialize(context.WithoutCancel(ctx))
	})
}

// Ready is closed once the initial session has been resolved
func (e *Engine) Ready() <-chan struct{} {
	return e.store.Ready()
}

// Identity returns the authoritative identity, or nil when signed out
func (e *Engine) Identity() *model.ResolvedIdentity {
	return e.store.Identity()
}

// OptimisticIdentity returns an identity suitable for display only
func (e *Engine) OptimisticIdentity() *model.ResolvedIdentity {
	return e.store.OptimisticIdentity()
}

// State returns the current session state
func (e *Engine) State() model.SessionState {
	return e.store.State()
}

// Snapshot returns state and identity read together
func (e *Engine) Snapshot() Snapshot {
	return e.store.Snapshot()
}

// IsAuthenticated reports whether an authoritative identity is present
func (e *Engine) IsAuthenticated() bool {
	return e.store.Identity() != nil
}

// HasPermission checks capability against the authoritative identity
func (e *Engine) HasPermission(capability model.Capability) bool {
	return HasPermission(e.store.Identity(), capability)
}

// Login signs in and hydrates before returning
func (e *Engine) Login(ctx context.Context, email, password string) (*model.ResolvedIdentity, error) {
	principal, err := e.backend.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	identity := e.store.Resolve(ctx, principal)
	e.logger.Info("signed in",
		slog.String("user_id", string(identity.ID)),
		slog.String("role", string(identity.Role)))
	return identity, nil
}

// Logout signs out and clears the identity and backup
func (e *Engine) Logout(ctx context.Context) error {
	if err := e.backend.SignOut(ctx); err != nil {
		return err
	}
	e.store.Clear(ctx)
	e.logger.Info("signed out")
	return nil
}

// Register creates an account with its profile, and a store record for the
// store role, then signs in
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*model.ResolvedIdentity, error) {
	role := req.Role
	if role == "" {
		role = model.RoleUser
	}
	if role != model.RoleUser && role != model.RoleStore {
		return nil, model.ErrInvalidRole
	}
	if e.records == nil {
		return nil, fmt.Errorf("register: no record writer configured")
	}

	name := strings.TrimSpace(req.Name)
	metadata := map[string]any{model.MetadataRole: string(role)}
	if name != "" {
		metadata[model.MetadataName] = name
	}
	principal, err := e.backend.SignUp(ctx, req.Email, req.Password, metadata)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	profile := &model.Profile{
		ID:        principal.ID,
		Name:      name,
		Role:      role,
		Fields:    req.Fields,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.records.SaveProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("register: save profile: %w", err)
	}

	if role == model.RoleStore {
		storeName := strings.TrimSpace(req.StoreName)
		if storeName == "" {
			storeName = principal.EmailLocalPart()
			if name != "" {
				storeName = name
			}
		}
		store := &model.StoreRecord{
			ID:          model.StoreID(uuid.NewString()),
			OwnerID:     principal.ID,
			Name:        storeName,
			Description: strings.TrimSpace(req.StoreDescription),
			CreatedAt:   now,
		}
		if err := e.records.SaveStore(ctx, store); err != nil {
			return nil, fmt.Errorf("register: save store: %w", err)
		}
	}

	e.logger.Info("account registered",
		slog.String("user_id", string(principal.ID)),
		slog.String("role", string(role)))
	return e.Login(ctx, req.Email, req.Password)
}

// CheckSession runs a guarded session check now. Returns false when it was
// skipped because a check is in flight or cooling down.
func (e *Engine) CheckSession(ctx context.Context) (bool, error) {
	return e.coordinator.Refresh(ctx)
}

// Notify reports a lifecycle signal
func (e *Engine) Notify(signal model.Signal) bool {
	return e.coordinator.Notify(signal)
}

// WaitRefresh blocks until signal-triggered checks have finished
func (e *Engine) WaitRefresh() {
	e.coordinator.Wait()
}

// Subscribe registers fn for every state transition
func (e *Engine) Subscribe(fn func(Snapshot)) func() {
	return e.store.Subscribe(fn)
}

// Close stops refreshes and detaches from the backend. A backend with a
// Close method is closed too.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.coordinator.Close()
		e.unsubscribe()
		e.driftMu.Lock()
		e.closed = true
		e.driftMu.Unlock()
		e.driftWG.Wait()
		e.store.Close()
		if closer, ok := e.backend.(interface{ Close() }); ok {
			closer.Close()
		}
	})
}

// onTransition binds refresh signals to the presence of an identity and
// repairs role drift
func (e *Engine) onTransition(snap Snapshot) {
	switch snap.State {
	case model.SessionResolved:
		e.coordinator.Start()
		e.repairDrift(snap.Identity)
	case model.SessionAnonymous:
		e.coordinator.Stop()
	}
}

func (e *Engine) repairDrift(identity *model.ResolvedIdentity) {
	if !e.cfg.ReissueOnRoleDrift || e.refresher == nil || !identity.RoleDrift() {
		return
	}

	key := string(identity.ID) + ":" + string(identity.TokenRole) + ">" + string(identity.Role)
	e.driftMu.Lock()
	if e.closed || e.reissued == key {
		e.driftMu.Unlock()
		return
	}
	e.reissued = key
	e.driftWG.Add(1)
	e.driftMu.Unlock()

	e.logger.Info("role drift detected, reissuing session",
		slog.String("user_id", string(identity.ID)),
		slog.String("token_role", string(identity.TokenRole)),
		slog.String("role", string(identity.Role)))

	// The reissue emits a session event that rehydrates through the store,
	// so it must not run on the notifying goroutine.
	go func() {
		defer e.driftWG.Done()
		if _, err := e.refresher.RefreshSession(e.store.baseCtx); err != nil {
			e.logger.Warn("session reissue failed",
				slog.String("user_id", string(identity.ID)),
				slog.Any("error", err))
		}
	}()
}

// WaitReissue blocks until in-flight role-drift reissues have finished
func (e *Engine) WaitReissue() {
	e.driftWG.Wait()
}

package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mcoot/marketid/internal/model"
)

var errBackendDown = errors.New("backend unreachable")

type fakeAccount struct {
	password  string
	principal *model.Principal
}

// fakeBackend is an in-process AuthBackend. Events are delivered synchronously
// by emit so tests control interleaving.
type fakeBackend struct {
	mu           sync.Mutex
	principal    *model.Principal
	sessionErr   error
	sessionCalls int
	sessionGate  chan struct{}
	sessionPanic bool
	accounts     map[string]*fakeAccount
	listeners    map[int]func(model.SessionEvent)
	nextListener int
	signOutErr   error
	nextID       int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		accounts:  make(map[string]*fakeAccount),
		listeners: make(map[int]func(model.SessionEvent)),
	}
}

func (b *fakeBackend) addAccount(email, password string, p *model.Principal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[email] = &fakeAccount{password: password, principal: p}
}

func (b *fakeBackend) setSession(p *model.Principal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.principal = p
}

func (b *fakeBackend) setSessionErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessionErr = err
}

func (b *fakeBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessionCalls
}

func (b *fakeBackend) listenerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

func (b *fakeBackend) emit(ev model.SessionEvent) {
	b.mu.Lock()
	fns := make([]func(model.SessionEvent), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (b *fakeBackend) CurrentSession(ctx context.Context) (*model.Principal, error) {
	b.mu.Lock()
	b.sessionCalls++
	gate, explode := b.sessionGate, b.sessionPanic
	b.mu.Unlock()

	if explode {
		panic("session fetch exploded")
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sessionErr != nil {
		return nil, b.sessionErr
	}
	return b.principal.Clone(), nil
}

func (b *fakeBackend) Subscribe(fn func(model.SessionEvent)) func() {
	b.mu.Lock()
	id := b.nextListener
	b.nextListener++
	b.listeners[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

func (b *fakeBackend) SignIn(_ context.Context, email, password string) (*model.Principal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct, ok := b.accounts[email]
	if !ok || acct.password != password {
		return nil, model.ErrInvalidCredentials
	}
	b.principal = acct.principal.Clone()
	return acct.principal.Clone(), nil
}

func (b *fakeBackend) SignOut(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.signOutErr != nil {
		return b.signOutErr
	}
	b.principal = nil
	return nil
}

func (b *fakeBackend) SignUp(_ context.Context, email, password string, metadata map[string]any) (*model.Principal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.accounts[email]; ok {
		return nil, model.ErrEmailExists
	}
	b.nextID++
	p := &model.Principal{
		ID:       model.PrincipalID(fmt.Sprintf("new-%d", b.nextID)),
		Email:    email,
		Metadata: metadata,
	}
	b.accounts[email] = &fakeAccount{password: password, principal: p.Clone()}
	return p, nil
}

// refreshingBackend adds SessionRefresher; RefreshSession re-mints the
// principal with the role from roleFor
type refreshingBackend struct {
	*fakeBackend
	roleFor      func(id model.PrincipalID) model.Role
	refreshMu    sync.Mutex
	refreshCalls int
}

func (b *refreshingBackend) RefreshSession(context.Context) (*model.Principal, error) {
	b.refreshMu.Lock()
	b.refreshCalls++
	b.refreshMu.Unlock()

	b.mu.Lock()
	if b.principal == nil {
		b.mu.Unlock()
		return nil, model.ErrNotSignedIn
	}
	p := b.principal.Clone()
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	p.Metadata[model.MetadataRole] = string(b.roleFor(p.ID))
	b.principal = p.Clone()
	b.mu.Unlock()

	b.emit(model.SessionEvent{Kind: model.EventTokenRefreshed, Principal: p.Clone()})
	return p, nil
}

func (b *refreshingBackend) refreshes() int {
	b.refreshMu.Lock()
	defer b.refreshMu.Unlock()
	return b.refreshCalls
}

// fakeRecords serves profiles and store records, with optional stalls and failures
type fakeRecords struct {
	mu          sync.Mutex
	profiles    map[model.PrincipalID]*model.Profile
	stores      map[model.PrincipalID]*model.StoreRecord
	profileErr  error
	storeErr    error
	profileHang chan struct{}
	storeHang   chan struct{}
	panicOn     string
	order       []string
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{
		profiles: make(map[model.PrincipalID]*model.Profile),
		stores:   make(map[model.PrincipalID]*model.StoreRecord),
	}
}

func (r *fakeRecords) GetProfile(_ context.Context, id model.PrincipalID) (*model.Profile, error) {
	r.mu.Lock()
	r.order = append(r.order, "profile")
	hang, err, panicOn := r.profileHang, r.profileErr, r.panicOn
	p, ok := r.profiles[id]
	r.mu.Unlock()

	if panicOn == "profile" {
		panic("profile source exploded")
	}
	if hang != nil {
		<-hang
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.ErrProfileNotFound
	}
	return p.Clone(), nil
}

func (r *fakeRecords) GetStoreByOwner(_ context.Context, owner model.PrincipalID) (*model.StoreRecord, error) {
	r.mu.Lock()
	r.order = append(r.order, "store")
	hang, err := r.storeHang, r.storeErr
	s, ok := r.stores[owner]
	r.mu.Unlock()

	if hang != nil {
		<-hang
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.ErrStoreNotFound
	}
	return s.Clone(), nil
}

func (r *fakeRecords) SaveProfile(_ context.Context, p *model.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID] = p.Clone()
	return nil
}

func (r *fakeRecords) SaveStore(_ context.Context, s *model.StoreRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[s.OwnerID] = s.Clone()
	return nil
}

func (r *fakeRecords) setRole(id model.PrincipalID, role model.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.profiles[id]; ok {
		p.Role = role
	}
}

func (r *fakeRecords) roleOf(id model.PrincipalID) model.Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.profiles[id]; ok {
		return p.Role
	}
	return ""
}

func (r *fakeRecords) fetchOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

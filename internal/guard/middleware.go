package guard

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mcoot/marketid/internal/identity"
	"github.com/mcoot/marketid/internal/model"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Config holds route guard settings
type Config struct {
	SignInPath string
	DenyPath   string
	// SettleTimeout is how long a request waits for the initial session
	// resolution before the guard decides on what it has
	SettleTimeout time.Duration
}

// DefaultConfig returns default guard settings
func DefaultConfig() Config {
	return Config{
		SignInPath:    "/login",
		DenyPath:      "/",
		SettleTimeout: 3 * time.Second,
	}
}

// Session is the part of an identity engine the guard reads
type Session interface {
	Ready() <-chan struct{}
	Snapshot() identity.Snapshot
}

// SessionResolver finds the session for a request. It must return an untyped
// nil when the request has no client.
type SessionResolver func(r *http.Request) Session

// Responder writes the non-render outcomes. location is where the guard
// wants the client to go.
type Responder interface {
	Loading(w http.ResponseWriter, r *http.Request)
	SignIn(w http.ResponseWriter, r *http.Request, location string)
	Deny(w http.ResponseWriter, r *http.Request, location string)
}

// IdentityFrom returns the identity the guard admitted the request with, or nil
func IdentityFrom(ctx context.Context) *model.ResolvedIdentity {
	id, _ := ctx.Value(identityContextKey).(*model.ResolvedIdentity)
	return id
}

// WithIdentity stores identity in ctx
func WithIdentity(ctx context.Context, id *model.ResolvedIdentity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// Guard builds route middleware
type Guard struct {
	cfg       Config
	resolve   SessionResolver
	responder Responder
	logger    *slog.Logger
}

// New creates a Guard
func New(cfg Config, resolve SessionResolver, responder Responder, logger *slog.Logger) *Guard {
	return &Guard{
		cfg:       cfg,
		resolve:   resolve,
		responder: responder,
		logger:    logger.With(slog.String("component", "guard")),
	}
}

// Require returns middleware admitting requests that satisfy capability.
// An empty capability admits everyone but still attaches the identity.
func (g *Guard) Require(capability model.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := g.settle(r)
			decision := Decide(Request{
				Path:        r.URL.Path,
				Requirement: capability,
				State:       snap.State,
				Identity:    snap.Identity,
			})

			switch decision.Outcome {
			case Render:
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), snap.Identity)))
			case Loading:
				g.responder.Loading(w, r)
			case SignIn:
				g.responder.SignIn(w, r, g.SignInURL(decision.Next))
			case Deny:
				g.logger.Info("route denied",
					slog.String("path", r.URL.Path),
					slog.String("capability", string(capability)),
					slog.String("role", string(snap.Identity.Role)))
				g.responder.Deny(w, r, g.cfg.DenyPath)
			}
		})
	}
}

// SignInURL returns the sign-in location that returns to next afterwards
func (g *Guard) SignInURL(next string) string {
	if next == "" {
		return g.cfg.SignInPath
	}
	return g.cfg.SignInPath + "?next=" + url.QueryEscape(next)
}

// settle waits up to SettleTimeout for the session to finish initializing
func (g *Guard) settle(r *http.Request) identity.Snapshot {
	session := g.resolve(r)
	if session == nil {
		return identity.Snapshot{State: model.SessionAnonymous}
	}

	select {
	case <-session.Ready():
	default:
		timer := time.NewTimer(g.cfg.SettleTimeout)
		defer timer.Stop()
		select {
		case <-session.Ready():
		case <-timer.C:
		case <-r.Context().Done():
		}
	}
	return session.Snapshot()
}

// RedirectResponder answers with See Other redirects and a plain 503 while loading
type RedirectResponder struct{}

func (RedirectResponder) Loading(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Retry-After", "1")
	http.Error(w, "session is still loading", http.StatusServiceUnavailable)
}

func (RedirectResponder) SignIn(w http.ResponseWriter, r *http.Request, location string) {
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func (RedirectResponder) Deny(w http.ResponseWriter, r *http.Request, location string) {
	http.Redirect(w, r, location, http.StatusSeeOther)
}

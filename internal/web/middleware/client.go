package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/mcoot/marketid/internal/guard"
	"github.com/mcoot/marketid/internal/identity"
	"github.com/mcoot/marketid/internal/services/sessions"
)

// SessionCookieName names the cookie holding the browser's client ID
const SessionCookieName = "session"

const (
	clientIDContextKey contextKey = "client_id"
	engineContextKey   contextKey = "engine"
)

// ClientConfig holds session cookie settings
type ClientConfig struct {
	MaxAge time.Duration
	Secure bool
}

// DefaultClientConfig returns default session cookie settings
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxAge: 7 * 24 * time.Hour,
	}
}

// GetEngine returns the browser's identity engine from the request context
func GetEngine(ctx context.Context) *identity.Engine {
	engine, _ := ctx.Value(engineContextKey).(*identity.Engine)
	return engine
}

// GetClientID returns the browser's client ID from the request context
func GetClientID(ctx context.Context) string {
	id, _ := ctx.Value(clientIDContextKey).(string)
	return id
}

// Client attaches the browser's identity engine to every request, creating a
// client and setting the session cookie when the browser has none or its
// client was evicted
func Client(registry *sessions.Registry, cfg ClientConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var existing string
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				existing = cookie.Value
			}

			clientID, engine, created := registry.GetOrCreate(r.Context(), existing)
			if created {
				SetSessionCookie(w, clientID, cfg)
			}

			ctx := context.WithValue(r.Context(), clientIDContextKey, clientID)
			ctx = context.WithValue(ctx, engineContextKey, engine)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SetSessionCookie stores clientID in the session cookie
func SetSessionCookie(w http.ResponseWriter, clientID string, cfg ClientConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    clientID,
		Path:     "/",
		MaxAge:   int(cfg.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie removes the session cookie
func ClearSessionCookie(w http.ResponseWriter, cfg ClientConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ResolveSession is the guard's session resolver for web requests
func ResolveSession(r *http.Request) guard.Session {
	engine := GetEngine(r.Context())
	if engine == nil {
		return nil
	}
	return engine
}

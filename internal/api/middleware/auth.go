package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mcoot/marketid/internal/api/apierr"
	"github.com/mcoot/marketid/internal/guard"
	"github.com/mcoot/marketid/internal/identity"
	"github.com/mcoot/marketid/internal/services/sessions"
)

type contextKey string

const (
	clientIDContextKey contextKey = "client_id"
	engineContextKey   contextKey = "engine"
)

// Client creates middleware that requires a known client ID as the bearer token
func Client(registry *sessions.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := ExtractToken(r)
			if clientID == "" {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			engine, err := registry.Get(clientID)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), clientID, engine)))
		})
	}
}

// WithClient stores the client and its engine in ctx
func WithClient(ctx context.Context, clientID string, engine *identity.Engine) context.Context {
	ctx = context.WithValue(ctx, clientIDContextKey, clientID)
	return context.WithValue(ctx, engineContextKey, engine)
}

// ExtractToken extracts the client ID from the request
func ExtractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}

	cookie, err := r.Cookie("session")
	if err == nil {
		return cookie.Value
	}

	return ""
}

// GetClientID returns the client ID from the request context
func GetClientID(ctx context.Context) string {
	id, _ := ctx.Value(clientIDContextKey).(string)
	return id
}

// GetEngine returns the client's identity engine from the request context
func GetEngine(ctx context.Context) *identity.Engine {
	engine, _ := ctx.Value(engineContextKey).(*identity.Engine)
	return engine
}

// MustGetEngine returns the client's engine or panics
func MustGetEngine(ctx context.Context) *identity.Engine {
	engine := GetEngine(ctx)
	if engine == nil {
		panic("no engine in context - client middleware not applied?")
	}
	return engine
}

// ResolveSession is the guard's session resolver for API requests
func ResolveSession(r *http.Request) guard.Session {
	engine := GetEngine(r.Context())
	if engine == nil {
		return nil
	}
	return engine
}

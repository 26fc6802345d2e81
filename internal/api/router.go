package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/marketid/internal/api/handler"
	"github.com/mcoot/marketid/internal/api/middleware"
	"github.com/mcoot/marketid/internal/api/response"
	"github.com/mcoot/marketid/internal/guard"
	"github.com/mcoot/marketid/internal/model"
	"github.com/mcoot/marketid/internal/services/authn"
	"github.com/mcoot/marketid/internal/services/sessions"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger      *slog.Logger
	Registry    *sessions.Registry
	AuthService *authn.Service
	// GuardConfig is optional; zero value means guard.DefaultConfig()
	GuardConfig guard.Config
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	guardCfg := cfg.GuardConfig
	if guardCfg.SettleTimeout == 0 {
		guardCfg = guard.DefaultConfig()
	}
	guardCfg.SignInPath = "/api/v1/auth/login"
	routeGuard := guard.New(guardCfg, middleware.ResolveSession, middleware.GuardResponder{}, cfg.Logger)

	// Create handlers
	authHandler := handler.NewAuthHandler(cfg.Registry, guardCfg.SettleTimeout)
	sessionHandler := handler.NewSessionHandler(guardCfg.SettleTimeout)
	adminHandler := handler.NewAdminHandler(cfg.AuthService, cfg.Logger)

	// Create middleware
	clientMiddleware := middleware.Client(cfg.Registry)
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(loggingMiddleware)
	api.Use(recoveryMiddleware)

	// Sign-in routes create a client when the caller has none
	api.HandleFunc("/auth/login", authHandler.Login).Methods(http.MethodPost)
	api.HandleFunc("/auth/register", authHandler.Register).Methods(http.MethodPost)

	// Routes that need a known client
	client := api.NewRoute().Subrouter()
	client.Use(clientMiddleware)
	client.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost)
	client.HandleFunc("/permissions/{capability}", sessionHandler.Permission).Methods(http.MethodGet)
	client.HandleFunc("/session/check", sessionHandler.Check).Methods(http.MethodPost)
	client.HandleFunc("/lifecycle/{signal}", sessionHandler.Signal).Methods(http.MethodPost)
	client.Handle("/me", routeGuard.Require(model.CapabilityAnyAuth)(http.HandlerFunc(sessionHandler.Me))).
		Methods(http.MethodGet)

	// Admin routes
	admin := client.PathPrefix("/admin").Subrouter()
	admin.Use(routeGuard.Require(model.CapabilityAdmin))
	admin.HandleFunc("/users/{id}/role", adminHandler.SetRole).Methods(http.MethodPatch)
	admin.HandleFunc("/users/{id}/revoke", adminHandler.Revoke).Methods(http.MethodPost)

	// Health check endpoint (no auth)
	api.HandleFunc("/health", healthHandler(cfg.Registry)).Methods(http.MethodGet)

	return r
}

// HealthResponse is the body of the health endpoint
type HealthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

func healthHandler(registry *sessions.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Clients: registry.Len(),
		})
	}
}

package web

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/marketid/internal/guard"
	"github.com/mcoot/marketid/internal/model"
	"github.com/mcoot/marketid/internal/services/authn"
	"github.com/mcoot/marketid/internal/services/sessions"
	"github.com/mcoot/marketid/internal/web/handler"
	"github.com/mcoot/marketid/internal/web/middleware"
	"github.com/mcoot/marketid/internal/web/templates/pages"
)

// RouterConfig holds configuration for the web router
type RouterConfig struct {
	Logger       *slog.Logger
	Registry     *sessions.Registry
	AuthService  *authn.Service
	GuardConfig  guard.Config
	ClientConfig middleware.ClientConfig
	StaticDir    string // Path to static files directory
}

// pageResponder redirects like guard.RedirectResponder but shows the loading
// page while the session resolves
type pageResponder struct {
	guard.RedirectResponder
}

func (pageResponder) Loading(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusServiceUnavailable)
	_ = pages.Loading().Render(r.Context(), w)
}

// NewRouter creates a new web router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	guardCfg := cfg.GuardConfig
	if guardCfg.SignInPath == "" {
		guardCfg = guard.DefaultConfig()
	}
	clientCfg := cfg.ClientConfig
	if clientCfg.MaxAge == 0 {
		clientCfg = middleware.DefaultClientConfig()
	}

	// Create middleware
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)
	flashMiddleware := middleware.Flash()
	clientMiddleware := middleware.Client(cfg.Registry, clientCfg)
	routeGuard := guard.New(guardCfg, middleware.ResolveSession, pageResponder{}, cfg.Logger)

	// Apply global middleware to all routes
	r.Use(recoveryMiddleware)
	r.Use(loggingMiddleware)

	// Create handlers
	homeHandler := handler.NewHomeHandler()
	authHandler := handler.NewAuthHandler(cfg.Registry, clientCfg)
	accountHandler := handler.NewAccountHandler()
	adminHandler := handler.NewAdminHandler(cfg.AuthService, cfg.Logger)
	checkoutHandler := handler.NewCheckoutHandler()
	lifecycleHandler := handler.NewLifecycleHandler()

	// Static files
	if cfg.StaticDir != "" {
		staticHandler := http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir)))
		r.PathPrefix("/static/").Handler(staticHandler)
	}

	// Lifecycle beacons (no flash, no guard)
	beacons := r.PathPrefix("/lifecycle").Subrouter()
	beacons.Use(clientMiddleware)
	beacons.HandleFunc("/{signal}", lifecycleHandler.Signal).Methods(http.MethodPost)

	// Home renders immediately from the optimistic identity
	home := r.NewRoute().Subrouter()
	home.Use(flashMiddleware)
	home.Use(clientMiddleware)
	home.HandleFunc("/", homeHandler.Home).Methods(http.MethodGet)

	// Public routes that wait for the session to settle
	public := r.NewRoute().Subrouter()
	public.Use(flashMiddleware)
	public.Use(clientMiddleware)
	public.Use(routeGuard.Require(""))
	public.HandleFunc("/login", authHandler.LoginPage).Methods(http.MethodGet)
	public.HandleFunc("/login", authHandler.Login).Methods(http.MethodPost)
	public.HandleFunc("/register", authHandler.RegisterPage).Methods(http.MethodGet)
	public.HandleFunc("/register", authHandler.Register).Methods(http.MethodPost)
	public.HandleFunc("/logout", authHandler.Logout).Methods(http.MethodPost)

	// Protected routes, one capability each
	protected := func(capability model.Capability) *mux.Router {
		sub := r.NewRoute().Subrouter()
		sub.Use(flashMiddleware)
		sub.Use(clientMiddleware)
		sub.Use(routeGuard.Require(capability))
		return sub
	}

	signedIn := protected(model.CapabilityAnyAuth)
	signedIn.HandleFunc("/account", accountHandler.Account).Methods(http.MethodGet)
	// Guest checkout is carved out of the sign-in requirement by the guard
	signedIn.HandleFunc(guard.GuestCheckoutPath, checkoutHandler.GuestPage).Methods(http.MethodGet)
	signedIn.HandleFunc(guard.GuestCheckoutPath, checkoutHandler.Guest).Methods(http.MethodPost)

	protected(model.CapabilityUser).HandleFunc("/orders", accountHandler.Orders).Methods(http.MethodGet)
	protected(model.CapabilityStore).HandleFunc("/store", accountHandler.Store).Methods(http.MethodGet)

	admin := protected(model.CapabilityAdmin)
	admin.HandleFunc("/admin", adminHandler.Page).Methods(http.MethodGet)
	admin.HandleFunc("/admin/role", adminHandler.SetRole).Methods(http.MethodPost)
	admin.HandleFunc("/admin/revoke", adminHandler.Revoke).Methods(http.MethodPost)

	return r
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mcoot/marketid/internal/api/middleware"
	"github.com/mcoot/marketid/internal/api/request"
	"github.com/mcoot/marketid/internal/api/response"
	"github.com/mcoot/marketid/internal/identity"
	"github.com/mcoot/marketid/internal/model"
	"github.com/mcoot/marketid/internal/services/sessions"
)

// AuthHandler handles sign-in, registration and sign-out.
// Login and register reuse the caller's client when the bearer token names
// one, and create a client otherwise.
type AuthHandler struct {
	registry      *sessions.Registry
	settleTimeout time.Duration
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(registry *sessions.Registry, settleTimeout time.Duration) *AuthHandler {
	return &AuthHandler{
		registry:      registry,
		settleTimeout: settleTimeout,
	}
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req request.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		WriteError(w, NewInvalidRequestError("email is required"))
		return
	}
	if req.Password == "" {
		WriteError(w, NewInvalidRequestError("password is required"))
		return
	}

	clientID, engine := h.client(r)
	resolved, err := engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.AuthResponse{
		ClientID: clientID,
		Identity: response.IdentityFromModel(resolved),
	})
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req request.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		WriteError(w, NewInvalidRequestError("email is required"))
		return
	}
	if req.Password == "" {
		WriteError(w, NewInvalidRequestError("password is required"))
		return
	}

	var role model.Role
	if req.Role != "" {
		parsed, ok := model.ParseRole(req.Role)
		if !ok {
			WriteError(w, model.ErrInvalidRole)
			return
		}
		role = parsed
	}

	clientID, engine := h.client(r)
	resolved, err := engine.Register(r.Context(), identity.RegisterRequest{
		Email:            req.Email,
		Password:         req.Password,
		Name:             req.Name,
		Role:             role,
		StoreName:        req.StoreName,
		StoreDescription: req.StoreDescription,
		Fields:           req.Fields,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.AuthResponse{
		ClientID: clientID,
		Identity: response.IdentityFromModel(resolved),
	})
}

// Logout handles POST /api/v1/auth/logout. The client is forgotten
// afterwards, so its ID stops working as a bearer token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	engine := middleware.MustGetEngine(r.Context())
	if err := engine.Logout(r.Context()); err != nil {
		WriteError(w, err)
		return
	}
	h.registry.Remove(middleware.GetClientID(r.Context()))
	response.NoContent(w)
}

// client returns the caller's client, creating one when the bearer token is
// missing or unknown, and waits for its initial session
func (h *AuthHandler) client(r *http.Request) (string, *identity.Engine) {
	clientID, engine, _ := h.registry.GetOrCreate(r.Context(), middleware.ExtractToken(r))
	settle(r.Context(), engine, h.settleTimeout)
	return clientID, engine
}

// settle waits up to timeout for the engine's initial session to resolve
func settle(ctx context.Context, engine *identity.Engine, timeout time.Duration) {
	select {
	case <-engine.Ready():
		return
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-engine.Ready():
	case <-timer.C:
	case <-ctx.Done():
	}
}

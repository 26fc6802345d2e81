package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mcoot/marketid/internal/api/middleware"
	"github.com/mcoot/marketid/internal/api/response"
	"github.com/mcoot/marketid/internal/guard"
	"github.com/mcoot/marketid/internal/identity"
	"github.com/mcoot/marketid/internal/model"
)

// SessionHandler reads and refreshes the caller's session
type SessionHandler struct {
	settleTimeout time.Duration
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(settleTimeout time.Duration) *SessionHandler {
	return &SessionHandler{settleTimeout: settleTimeout}
}

// Me handles GET /api/v1/me
func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	engine := middleware.MustGetEngine(r.Context())
	response.JSON(w, http.StatusOK, response.MeResponse{
		State:    string(engine.State()),
		Identity: response.IdentityFromModel(guard.IdentityFrom(r.Context())),
	})
}

// Permission handles GET /api/v1/permissions/{capability}
func (h *SessionHandler) Permission(w http.ResponseWriter, r *http.Request) {
	capability := model.Capability(mux.Vars(r)["capability"])
	if capability == "" {
		WriteError(w, NewInvalidRequestError("capability is required"))
		return
	}

	engine := middleware.MustGetEngine(r.Context())
	settle(r.Context(), engine, h.settleTimeout)

	response.JSON(w, http.StatusOK, permissionFor(engine.Snapshot(), capability))
}

// permissionFor answers from a single snapshot so state and identity agree
func permissionFor(snap identity.Snapshot, capability model.Capability) response.PermissionResponse {
	return response.PermissionResponse{
		Capability: string(capability),
		Allowed:    snap.State == model.SessionResolved && identity.HasPermission(snap.Identity, capability),
		State:      string(snap.State),
	}
}

// Check handles POST /api/v1/session/check
func (h *SessionHandler) Check(w http.ResponseWriter, r *http.Request) {
	engine := middleware.MustGetEngine(r.Context())
	settle(r.Context(), engine, h.settleTimeout)

	ran, err := engine.CheckSession(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	snap := engine.Snapshot()
	response.JSON(w, http.StatusOK, response.CheckResponse{
		Ran:      ran,
		State:    string(snap.State),
		Identity: response.IdentityFromModel(snap.Identity),
	})
}

// Signal handles POST /api/v1/lifecycle/{signal}
func (h *SessionHandler) Signal(w http.ResponseWriter, r *http.Request) {
	signal, ok := model.ParseSignal(mux.Vars(r)["signal"])
	if !ok {
		WriteError(w, model.ErrInvalidSignal)
		return
	}

	engine := middleware.MustGetEngine(r.Context())
	response.JSON(w, http.StatusAccepted, response.SignalResponse{
		Signal:    string(signal),
		Scheduled: engine.Notify(signal),
	})
}

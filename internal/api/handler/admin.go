package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/marketid/internal/api/request"
	"github.com/mcoot/marketid/internal/api/response"
	"github.com/mcoot/marketid/internal/guard"
	"github.com/mcoot/marketid/internal/model"
	"github.com/mcoot/marketid/internal/services/authn"
)

// AdminHandler handles admin-only user management
type AdminHandler struct {
	authService *authn.Service
	logger      *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(authService *authn.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		authService: authService,
		logger:      logger.With(slog.String("component", "admin")),
	}
}

// SetRole handles PATCH /api/v1/admin/users/{id}/role
func (h *AdminHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	userID := model.PrincipalID(mux.Vars(r)["id"])

	var req request.SetRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	role, ok := model.ParseRole(req.Role)
	if !ok {
		WriteError(w, model.ErrInvalidRole)
		return
	}

	profile, err := h.authService.SetRole(r.Context(), userID, role)
	if err != nil {
		WriteError(w, err)
		return
	}

	h.logger.Info("role changed",
		slog.String("admin_id", adminID(r)),
		slog.String("user_id", string(userID)),
		slog.String("role", string(role)))
	response.JSON(w, http.StatusOK, response.ProfileFromModel(profile))
}

// Revoke handles POST /api/v1/admin/users/{id}/revoke
func (h *AdminHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID := model.PrincipalID(mux.Vars(r)["id"])

	if err := h.authService.RevokeUser(r.Context(), userID); err != nil {
		WriteError(w, err)
		return
	}

	h.logger.Info("sessions revoked",
		slog.String("admin_id", adminID(r)),
		slog.String("user_id", string(userID)))
	response.NoContent(w)
}

func adminID(r *http.Request) string {
	if id := guard.IdentityFrom(r.Context()); id != nil {
		return string(id.ID)
	}
	return ""
}

package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mcoot/marketid/internal/guard"
	"github.com/mcoot/marketid/internal/model"
	"github.com/mcoot/marketid/internal/services/authn"
	"github.com/mcoot/marketid/internal/web/middleware"
	"github.com/mcoot/marketid/internal/web/templates/pages"
)

// AdminHandler handles the admin pages
type AdminHandler struct {
	authService *authn.Service
	logger      *slog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(authService *authn.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		authService: authService,
		logger:      logger.With(slog.String("component", "admin")),
	}
}

// Page renders the admin page
func (h *AdminHandler) Page(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, pages.Admin(pages.AdminData{
		PageData: pageData(r, "Admin"),
	}))
}

// SetRole handles the role form
func (h *AdminHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid form data")
		return
	}

	userID := model.PrincipalID(strings.TrimSpace(r.FormValue("user_id")))
	role, ok := model.ParseRole(r.FormValue("role"))
	if userID == "" || !ok {
		h.renderError(w, r, http.StatusBadRequest, "A user ID and a valid role are required")
		return
	}

	if _, err := h.authService.SetRole(r.Context(), userID, role); err != nil {
		h.renderFailure(w, r, err)
		return
	}

	h.logger.Info("role changed",
		slog.String("admin_id", h.adminID(r)),
		slog.String("user_id", string(userID)),
		slog.String("role", string(role)))
	middleware.SetFlash(w, "success", "Role updated to "+string(role))
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// Revoke handles the sign-out-everywhere form
func (h *AdminHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid form data")
		return
	}

	userID := model.PrincipalID(strings.TrimSpace(r.FormValue("user_id")))
	if userID == "" {
		h.renderError(w, r, http.StatusBadRequest, "A user ID is required")
		return
	}

	if err := h.authService.RevokeUser(r.Context(), userID); err != nil {
		h.renderFailure(w, r, err)
		return
	}

	h.logger.Info("sessions revoked",
		slog.String("admin_id", h.adminID(r)),
		slog.String("user_id", string(userID)))
	middleware.SetFlash(w, "success", "User signed out everywhere")
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (h *AdminHandler) renderFailure(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, model.ErrAccountNotFound) || errors.Is(err, model.ErrProfileNotFound) {
		h.renderError(w, r, http.StatusNotFound, "No such user")
		return
	}
	h.logger.Error("admin action failed", slog.Any("error", err))
	h.renderError(w, r, http.StatusInternalServerError, "Action failed, please try again")
}

func (h *AdminHandler) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render(w, r, status, pages.Admin(pages.AdminData{
		PageData: pageData(r, "Admin"),
		Error:    msg,
	}))
}

func (h *AdminHandler) adminID(r *http.Request) string {
	if id := guard.IdentityFrom(r.Context()); id != nil {
		return string(id.ID)
	}
	return ""
}

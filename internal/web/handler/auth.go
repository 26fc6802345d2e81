package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/mcoot/marketid/internal/identity"
	"github.com/mcoot/marketid/internal/model"
	"github.com/mcoot/marketid/internal/services/authn"
	"github.com/mcoot/marketid/internal/services/sessions"
	"github.com/mcoot/marketid/internal/web/middleware"
	"github.com/mcoot/marketid/internal/web/templates/pages"
)

// AuthHandler handles authentication pages and actions
type AuthHandler struct {
	registry  *sessions.Registry
	cookieCfg middleware.ClientConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(registry *sessions.Registry, cookieCfg middleware.ClientConfig) *AuthHandler {
	return &AuthHandler{
		registry:  registry,
		cookieCfg: cookieCfg,
	}
}

// LoginPage renders the login page
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	data := pageData(r, "Sign in")
	if data.Identity != nil {
		// Already signed in
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	render(w, r, http.StatusOK, pages.Login(pages.LoginData{
		PageData: data,
		Next:     r.URL.Query().Get("next"),
	}))
}

// Login handles login form submission
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderLoginError(w, r, http.StatusBadRequest, "Invalid form data", "", "")
		return
	}

	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	next := r.FormValue("next")

	if email == "" || password == "" {
		h.renderLoginError(w, r, http.StatusOK, "Email and password are required", email, next)
		return
	}

	engine := middleware.GetEngine(r.Context())
	resolved, err := engine.Login(r.Context(), email, password)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			h.renderLoginError(w, r, http.StatusUnauthorized, "Invalid email or password", email, next)
		} else {
			h.renderLoginError(w, r, http.StatusInternalServerError, "Sign in failed, please try again", email, next)
		}
		return
	}

	middleware.SetFlash(w, "success", "Welcome back, "+resolved.Name+"!")
	http.Redirect(w, r, safeNext(next), http.StatusSeeOther)
}

// RegisterPage renders the registration page
func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	data := pageData(r, "Register")
	if data.Identity != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	render(w, r, http.StatusOK, pages.Register(pages.RegisterData{
		PageData:    data,
		FieldErrors: make(map[string]string),
	}))
}

// Register handles registration form submission
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderRegisterError(w, r, http.StatusBadRequest, pages.RegisterData{Error: "Invalid form data"})
		return
	}

	form := pages.RegisterData{
		Email:       strings.TrimSpace(r.FormValue("email")),
		Name:        strings.TrimSpace(r.FormValue("name")),
		Role:        r.FormValue("role"),
		StoreName:   strings.TrimSpace(r.FormValue("store_name")),
		FieldErrors: make(map[string]string),
	}
	password := r.FormValue("password")
	passwordConfirm := r.FormValue("password_confirm")

	// Validate inputs
	if form.Email == "" {
		form.FieldErrors["email"] = "Email is required"
	}
	if len(form.Name) > 50 {
		form.FieldErrors["name"] = "Name must be at most 50 characters"
	}
	if password == "" {
		form.FieldErrors["password"] = "Password is required"
	} else if len(password) < authn.MinPasswordLength {
		form.FieldErrors["password"] = "Password must be at least 8 characters"
	}
	if password != passwordConfirm {
		form.FieldErrors["password_confirm"] = "Passwords do not match"
	}

	role := model.RoleUser
	if form.Role != "" {
		parsed, ok := model.ParseRole(form.Role)
		if !ok || parsed == model.RoleAdmin {
			form.FieldErrors["role"] = "Choose a customer or store account"
		}
		role = parsed
	}

	if len(form.FieldErrors) > 0 {
		h.renderRegisterError(w, r, http.StatusOK, form)
		return
	}

	engine := middleware.GetEngine(r.Context())
	resolved, err := engine.Register(r.Context(), identity.RegisterRequest{
		Email:            form.Email,
		Password:         password,
		Name:             form.Name,
		Role:             role,
		StoreName:        form.StoreName,
		StoreDescription: strings.TrimSpace(r.FormValue("store_description")),
	})
	if err != nil {
		switch {
		case errors.Is(err, model.ErrEmailExists):
			form.FieldErrors["email"] = "Email already registered"
		case errors.Is(err, authn.ErrInvalidEmail):
			form.FieldErrors["email"] = "Enter a valid email address"
		case errors.Is(err, authn.ErrPasswordTooShort):
			form.FieldErrors["password"] = "Password must be at least 8 characters"
		default:
			form.Error = "Registration failed, please try again"
		}
		h.renderRegisterError(w, r, http.StatusOK, form)
		return
	}

	middleware.SetFlash(w, "success", "Account created! Welcome, "+resolved.Name+"!")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout signs out and forgets the browser's client
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	engine := middleware.GetEngine(r.Context())
	if err := engine.Logout(r.Context()); err != nil {
		middleware.SetFlash(w, "error", "Sign out failed, please try again")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	h.registry.Remove(middleware.GetClientID(r.Context()))
	middleware.ClearSessionCookie(w, h.cookieCfg)
	middleware.SetFlash(w, "info", "You have been signed out")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) renderLoginError(w http.ResponseWriter, r *http.Request, status int, errorMsg, email, next string) {
	render(w, r, status, pages.Login(pages.LoginData{
		PageData: pageData(r, "Sign in"),
		Email:    email,
		Error:    errorMsg,
		Next:     next,
	}))
}

func (h *AuthHandler) renderRegisterError(w http.ResponseWriter, r *http.Request, status int, form pages.RegisterData) {
	if form.FieldErrors == nil {
		form.FieldErrors = make(map[string]string)
	}
	form.PageData = pageData(r, "Register")
	render(w, r, status, pages.Register(form))
}

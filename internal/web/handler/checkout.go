package handler

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/mcoot/marketid/internal/web/middleware"
	"github.com/mcoot/marketid/internal/web/templates/pages"
)

// CheckoutHandler handles checkout for visitors without an account
type CheckoutHandler struct{}

// NewCheckoutHandler creates a new CheckoutHandler
func NewCheckoutHandler() *CheckoutHandler {
	return &CheckoutHandler{}
}

// GuestPage renders the guest checkout form
func (h *CheckoutHandler) GuestPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, pages.GuestCheckout(pageData(r, "Guest checkout")))
}

// Guest handles the guest checkout form
func (h *CheckoutHandler) Guest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(r.FormValue("email"))
	if _, err := mail.ParseAddress(email); err != nil {
		middleware.SetFlash(w, "error", "Enter a valid email address")
		http.Redirect(w, r, "/checkout/guest", http.StatusSeeOther)
		return
	}

	middleware.SetFlash(w, "success", "Your receipt will be sent to "+email)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

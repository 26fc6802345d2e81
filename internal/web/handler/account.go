package handler

import (
	"net/http"

	"github.com/mcoot/marketid/internal/web/templates/pages"
)

// AccountHandler renders the pages behind a sign-in
type AccountHandler struct{}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler() *AccountHandler {
	return &AccountHandler{}
}

// Account renders the signed-in identity
func (h *AccountHandler) Account(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, pages.Account(pages.AccountData{
		PageData: pageData(r, "Account"),
	}))
}

// Orders renders the customer's orders
func (h *AccountHandler) Orders(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, pages.Orders(pageData(r, "Orders")))
}

// Store renders the owner's store
func (h *AccountHandler) Store(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, pages.Store(pageData(r, "Store")))
}

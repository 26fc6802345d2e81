package handler

import (
	"net/http"

	"github.com/mcoot/marketid/internal/web/templates/pages"
)

// HomeHandler handles the home page
type HomeHandler struct{}

// NewHomeHandler creates a new HomeHandler
func NewHomeHandler() *HomeHandler {
	return &HomeHandler{}
}

// Home renders the home page without waiting for the session, greeting a
// returning visitor from the optimistic identity
func (h *HomeHandler) Home(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, pages.Home(pages.HomeData{
		PageData: pageData(r, "Home"),
	}))
}

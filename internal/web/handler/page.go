package handler

import (
	"net/http"
	"strings"

	"github.com/a-h/templ"

	"github.com/mcoot/marketid/internal/guard"
	"github.com/mcoot/marketid/internal/web/middleware"
	"github.com/mcoot/marketid/internal/web/templates/layout"
)

// pageData builds the common page data. The authoritative identity comes
// from the guard when it admitted the request, and from the engine otherwise.
func pageData(r *http.Request, title string) layout.PageData {
	data := layout.PageData{
		Title: title,
		Flash: middleware.GetFlash(r.Context()),
	}
	data.Identity = guard.IdentityFrom(r.Context())
	if engine := middleware.GetEngine(r.Context()); engine != nil {
		if data.Identity == nil {
			data.Identity = engine.Identity()
		}
		data.Optimistic = engine.OptimisticIdentity()
	}
	return data
}

func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// safeNext returns next if it is a local path, and "/" otherwise
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

package middleware

import (
	"net/http"

	"github.com/mcoot/marketid/internal/api/apierr"
)

// GuardResponder answers guard outcomes with JSON errors instead of redirects
type GuardResponder struct{}

func (GuardResponder) Loading(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Retry-After", "1")
	apierr.WriteError(w, apierr.NewSessionLoadingError())
}

func (GuardResponder) SignIn(w http.ResponseWriter, _ *http.Request, _ string) {
	apierr.WriteError(w, apierr.NewUnauthorizedError())
}

func (GuardResponder) Deny(w http.ResponseWriter, _ *http.Request, _ string) {
	apierr.WriteError(w, apierr.NewForbiddenError())
}

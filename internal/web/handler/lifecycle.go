package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/marketid/internal/model"
	"github.com/mcoot/marketid/internal/web/middleware"
)

// LifecycleHandler receives the page's lifecycle beacons
type LifecycleHandler struct{}

// NewLifecycleHandler creates a new LifecycleHandler
func NewLifecycleHandler() *LifecycleHandler {
	return &LifecycleHandler{}
}

// Signal handles POST /lifecycle/{signal}
func (h *LifecycleHandler) Signal(w http.ResponseWriter, r *http.Request) {
	signal, ok := model.ParseSignal(mux.Vars(r)["signal"])
	if !ok {
		http.Error(w, model.ErrInvalidSignal.Error(), http.StatusBadRequest)
		return
	}

	middleware.GetEngine(r.Context()).Notify(signal)
	w.WriteHeader(http.StatusNoContent)
}

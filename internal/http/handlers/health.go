package handlers

import (
	"context"
	"net/http"
	"time"

	httpx "github.com/dropDatabas3/identsync/internal/http"
)

// Pinger chequea conectividad con el storage subyacente.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Readyz responde 200 solo si el storage contesta dentro del timeout.
type Readyz struct {
	Store Pinger
}

func (h *Readyz) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.Store != nil {
		if err := h.Store.Ping(ctx); err != nil {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

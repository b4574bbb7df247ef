// Package router define las rutas HTTP del servicio.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	httpx "github.com/dropDatabas3/identsync/internal/http"
	"github.com/dropDatabas3/identsync/internal/http/handlers"
	mw "github.com/dropDatabas3/identsync/internal/http/middlewares"
	"github.com/dropDatabas3/identsync/internal/rate"
)

// Deps contiene las dependencias para armar el router principal.
type Deps struct {
	Directory *handlers.Directory
	Webhook   *handlers.Webhook // nil si no hay secret configurado
	Readyz    *handlers.Readyz

	Gate mw.GateConfig

	// Limiters opcionales (nil = sin rate limiting en esa superficie)
	CheckLimiter   rate.Limiter
	WebhookLimiter rate.Limiter
}

// New arma el router completo: API de directorio, webhook de deprovisioning
// y páginas detrás del gate de sesión.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.WithRequestID())
	r.Use(mw.WithLogging())
	r.Use(httpx.WithMetrics)

	// Health
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", d.Readyz.Handle)

	// Directory API
	r.Route("/v1/directory", func(r chi.Router) {
		r.With(mw.WithRateLimit(d.CheckLimiter, "dir_check")).
			Post("/check", d.Directory.Check)
		r.Post("/save", d.Directory.Save)
		r.Post("/delete", d.Directory.Delete)
	})

	// Deprovisioning webhook (solo si hay verificador configurado)
	if d.Webhook != nil {
		r.With(mw.WithRateLimit(d.WebhookLimiter, "webhook")).
			Post("/webhooks/identity", d.Webhook.Handle)
	}

	// Páginas detrás del gate de sesión
	gate := mw.WithSessionGate(d.Gate)
	r.With(gate).Get(d.Gate.EntryPath, handlers.EntryPage)
	r.With(gate).Get(d.Gate.ProtectedPrefix, handlers.DashboardPage)
	r.With(gate).Get(d.Gate.ProtectedPrefix+"/*", handlers.DashboardPage)

	return r
}

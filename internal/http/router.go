// Package httpapi assembles the public HTTP surface.
package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"engine/internal/http/handlers"
	"engine/internal/http/middleware"
)

func NewRouter(app *handlers.App) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer, chimw.Logger)

	// Health
	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Use(middleware.RequireOwner)
		r.Post("/", app.JobsCreate)
		r.Get("/", app.JobsList)
		r.Get("/{job_id}", app.JobStatus)
		r.Post("/{job_id}/cancel", app.JobCancel)
	})

	r.Route("/v1/credits", func(r chi.Router) {
		r.Use(middleware.RequireOwner)
		r.Get("/balance", app.CreditsBalance)
		r.Get("/transactions", app.CreditsTransactions)
	})

	return r
}

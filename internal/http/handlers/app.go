package handlers

import (
	"encoding/json"
	"net/http"

	"engine/internal/domain"
	"engine/internal/http/middleware"
	"engine/internal/infra"
)

// App bundles the dependencies HTTP handlers need.
type App struct {
	Jobs   domain.JobStore
	Ledger domain.CreditLedger
	Logger infra.Logger
}

func NewApp(jobs domain.JobStore, ledger domain.CreditLedger, logger infra.Logger) *App {
	return &App{Jobs: jobs, Ledger: ledger, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}

func (a *App) currentOwnerID(r *http.Request) string {
	return middleware.OwnerID(r.Context())
}

package handlers

import (
	"encoding/json"
	"net/http"

	"radboard/internal/content"
	"radboard/internal/generation"
	"radboard/internal/infra"
)

// App bundles the dependencies the HTTP layer needs.
type App struct {
	Logger  infra.Logger
	Content *content.Service
	Jobs    *generation.Orchestrator
}

// NewApp constructs the handler container.
func NewApp(logger infra.Logger, contentSvc *content.Service, jobs *generation.Orchestrator) *App {
	return &App{Logger: logger, Content: contentSvc, Jobs: jobs}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}

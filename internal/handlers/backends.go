package handlers

import (
	"net/http"

	"dreamlog/backend/internal/llm"
)

func (a *API) ListBackends(w http.ResponseWriter, r *http.Request) {
	health := []llm.HealthCheckResult{}
	if a.Health != nil {
		health = append(health, a.Health.Snapshot()...)
	}
	chain := a.Chain
	if chain == nil {
		chain = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chain":  chain,
		"health": health,
	})
}

package handlers

import (
	"net/http"
)

// Health answers liveness probes. It deliberately does not touch the
// database: a saturated pool should not make the orchestrator look dead.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "reelgen",
	})
}

package handlers

import (
	"net/http"
	"time"
)

var startTime = time.Now()

// HandleHealth handles GET /healthz for load balancers and uptime
// monitors. No authentication required.
func (api *API) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	api.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"uptime_secs": time.Since(startTime).Seconds(),
	})
}

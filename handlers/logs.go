package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"eink_backend/core"
)

// logsResponse is the JSON body for GET /api/logs.
type logsResponse struct {
	Logs []core.LogEntry `json:"logs"`
}

// HandleLogs handles GET /api/logs: recent activity-log entries for the
// authenticated user, newest first.
func (api *API) HandleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	user, ok := api.authenticate(r)
	if !ok {
		api.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if api.recorder == nil {
		api.writeJSON(w, http.StatusOK, logsResponse{Logs: []core.LogEntry{}})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	entries, err := api.recorder.Recent(r.Context(), user.ID, limit)
	if err != nil {
		api.logger.Error("failed to load logs", zap.Error(err))
		api.writeError(w, http.StatusInternalServerError, "failed to load logs")
		return
	}
	if entries == nil {
		entries = []core.LogEntry{}
	}

	api.writeJSON(w, http.StatusOK, logsResponse{Logs: entries})
}

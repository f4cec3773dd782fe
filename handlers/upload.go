package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"eink_backend/core"
)

// maxUploadBytes bounds the request body; a 296x128 target needs
// nothing close to this.
const maxUploadBytes = 8 << 20

// uploadRequest is the POST /api/upload body.
type uploadRequest struct {
	Image string `json:"image"`
}

// HandleUpload handles POST /api/upload: stores a custom image as a
// base64 data URI in the user's settings.
func (api *API) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	user, ok := api.authenticate(r)
	if !ok {
		api.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req uploadRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Image == "" {
		api.writeError(w, http.StatusBadRequest, "no image data provided")
		return
	}
	if !strings.HasPrefix(req.Image, "data:image/") {
		api.writeError(w, http.StatusBadRequest, "invalid image format, send as data URI")
		return
	}

	if err := api.store.SetCustomImage(r.Context(), user.ID, req.Image); err != nil {
		api.logger.Error("image upload failed", zap.Error(err))
		api.writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	api.record(user.ID, core.LogEntry{
		Source:  "server",
		Level:   "info",
		Event:   "upload.done",
		Message: "Custom image uploaded",
		Meta:    map[string]any{"bytes": len(req.Image)},
	})

	api.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Image uploaded successfully",
	})
}

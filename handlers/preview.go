package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"eink_backend/raster"
)

// HandlePreview handles GET /api/preview: the last generated frame
// rendered as a PNG for the web UI.
func (api *API) HandlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	user, ok := api.authenticate(r)
	if !ok {
		api.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	if user.LastFrame == nil {
		api.writeError(w, http.StatusNotFound, "no preview available yet, press refresh first")
		return
	}

	png, err := raster.BitmapToPNG(user.LastFrame.Bitmap)
	if err != nil {
		api.logger.Error("preview render failed", zap.Error(err))
		api.writeError(w, http.StatusInternalServerError, "preview generation failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if !user.LastFrame.GeneratedAt.IsZero() {
		w.Header().Set("X-Preview-At", user.LastFrame.GeneratedAt.UTC().Format(time.RFC3339))
	}
	w.Write(png)
}

package handlers

import (
	"encoding/base64"
	"net/http"
	"time"

	"go.uber.org/zap"

	"eink_backend/core"
	"eink_backend/frame"
	"eink_backend/raster"
)

// generateResponse is the JSON body for POST /api/generate.
type generateResponse struct {
	OK            bool         `json:"ok"`
	Quote         string       `json:"quote"`
	ScenePrompt   string       `json:"scenePrompt"`
	ImageStyle    string       `json:"imageStyle"`
	DisplayMode   int          `json:"displayMode"`
	ViewType      string       `json:"viewType"`
	Elapsed       int64        `json:"elapsed"`
	Log           []frame.Step `json:"log"`
	PreviewBase64 string       `json:"previewBase64,omitempty"`
}

// HandleGenerate handles POST /api/generate: a manual refresh from the
// web UI. It bypasses the static-mode cache, persists the new frame and
// returns generation details plus an inline PNG preview.
func (api *API) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	user, ok := api.authenticate(r)
	if !ok {
		api.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	if !api.limiter(user.ID).Allow() {
		api.writeError(w, http.StatusTooManyRequests, "refresh rate limit exceeded, try again shortly")
		return
	}

	start := time.Now()
	api.record(user.ID, core.LogEntry{
		Source:  "server",
		Level:   "info",
		Event:   "generate.start",
		Message: "Manual refresh started",
		Meta:    map[string]any{"displayMode": user.Settings.DisplayMode, "viewType": user.Settings.ViewType},
	})

	result, err := api.orchestrator.Generate(r.Context(), user)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		api.logger.Error("manual refresh failed", zap.Error(err))
		api.record(user.ID, core.LogEntry{
			Source:  "server",
			Level:   "error",
			Event:   "generate.error",
			Message: "Manual refresh failed: " + err.Error(),
			Meta:    map[string]any{"elapsed": elapsed},
		})
		api.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"ok":      false,
			"error":   err.Error(),
			"elapsed": elapsed,
			"log":     result.Steps,
		})
		return
	}

	imageStyle := user.Settings.AISettings.ImageStyle
	if imageStyle == "" {
		imageStyle = "anime"
	}

	resp := generateResponse{
		OK:          true,
		Quote:       result.Frame.Quote,
		ScenePrompt: result.ScenePrompt,
		ImageStyle:  imageStyle,
		DisplayMode: user.Settings.DisplayMode,
		ViewType:    user.Settings.ViewType,
		Elapsed:     elapsed,
		Log:         result.Steps,
	}
	if png, err := raster.BitmapToPNG(result.Frame.Bitmap); err == nil {
		resp.PreviewBase64 = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	}

	api.record(user.ID, core.LogEntry{
		Source:  "server",
		Level:   "info",
		Event:   "generate.done",
		Message: "Manual refresh finished",
		Meta: map[string]any{
			"quote":       result.Frame.Quote,
			"scenePrompt": result.ScenePrompt,
			"imageStyle":  imageStyle,
			"elapsed":     elapsed,
		},
	})

	api.writeJSON(w, http.StatusOK, resp)
}

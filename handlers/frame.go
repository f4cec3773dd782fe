package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"eink_backend/core"
)

// HandleFrame handles GET /api/frame requests from the display.
//
// The response body is the packed 1-bit bitmap immediately followed by
// the UTF-8 quote; the firmware splits at the fixed bitmap length.
// X-Display-Mode and X-Duration tell the device how to cycle.
func (api *API) HandleFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	user, ok := api.authenticate(r)
	if !ok {
		http.Error(w, "Invalid device key", http.StatusUnauthorized)
		return
	}
	api.touchDevice(r.Context(), user.ID)

	settings := user.Settings
	api.record(user.ID, core.LogEntry{
		Source:  "device",
		Level:   "info",
		Event:   "frame.request",
		Message: "Device requested frame",
		Meta:    map[string]any{"displayMode": settings.DisplayMode, "viewType": settings.ViewType},
	})

	result, err := api.orchestrator.Frame(r.Context(), user)
	if err != nil {
		api.logger.Error("frame generation failed", zap.Error(err))
		api.record(user.ID, core.LogEntry{
			Source:  "server",
			Level:   "error",
			Event:   "frame.error",
			Message: "Frame generation error: " + err.Error(),
		})
		// Terminal fallback so the display shows something actionable.
		api.sendFrame(w, api.orchestrator.ErrorFrame(), settings)
		return
	}

	event, message := "frame.generated", "Frame generated"
	if result.Cached {
		event, message = "frame.cached", "Returned cached frame (static mode)"
	}
	api.record(user.ID, core.LogEntry{
		Source:  "server",
		Level:   "info",
		Event:   event,
		Message: message,
		Meta: map[string]any{
			"quote":       result.Frame.Quote,
			"bitmapBytes": len(result.Frame.Bitmap),
			"duration":    settings.Duration,
		},
	})

	api.sendFrame(w, result.Frame, settings)
}

// sendFrame writes the binary device payload.
func (api *API) sendFrame(w http.ResponseWriter, f core.Frame, settings core.DisplaySettings) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Display-Mode", strconv.Itoa(settings.DisplayMode))
	w.Header().Set("X-Duration", strconv.Itoa(settings.Duration))

	payload := make([]byte, 0, len(f.Bitmap)+len(f.Quote))
	payload = append(payload, f.Bitmap...)
	payload = append(payload, []byte(f.Quote)...)
	w.Write(payload)
}

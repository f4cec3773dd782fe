package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"eink_backend/core"
	"eink_backend/store"
)

// Duration clamp bounds in seconds.
const (
	minDuration = 10
	maxDuration = 3600
)

// aiSettingsUpdate carries partial AI-settings changes; nil means keep.
type aiSettingsUpdate struct {
	QuoteTypes  *[]string `json:"quoteTypes"`
	AnimeList   *[]string `json:"animeList"`
	Temperature *float64  `json:"temperature"`
	ImageStyle  *string   `json:"imageStyle"`
}

// settingsUpdate is the PUT /api/settings request body. Every field is
// optional; absent fields are left unchanged.
type settingsUpdate struct {
	DisplayMode   *int              `json:"displayMode"`
	ViewType      *string           `json:"viewType"`
	Duration      *int              `json:"duration"`
	CustomQuote   *string           `json:"customQuote"`
	CustomImage   *string           `json:"customImage"`
	AISettings    *aiSettingsUpdate `json:"aiSettings"`
	RegenerateKey bool              `json:"regenerateKey"`
}

// settingsResponse is the JSON body for both GET and PUT.
type settingsResponse struct {
	Settings          core.DisplaySettings `json:"settings"`
	DeviceKey         string               `json:"deviceKey"`
	LastDeviceContact *time.Time           `json:"lastDeviceContact,omitempty"`
}

// HandleSettings handles GET and PUT /api/settings.
// PUT applies a partial update and flags the device for refresh.
func (api *API) HandleSettings(w http.ResponseWriter, r *http.Request) {
	user, ok := api.authenticate(r)
	if !ok {
		api.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	switch r.Method {
	case http.MethodGet:
		api.writeJSON(w, http.StatusOK, settingsView(user))
	case http.MethodPut:
		api.updateSettings(w, r, user)
	default:
		api.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (api *API) updateSettings(w http.ResponseWriter, r *http.Request, user store.User) {
	var update settingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	settings := user.Settings
	if update.DisplayMode != nil {
		settings.DisplayMode = *update.DisplayMode
	}
	if update.ViewType != nil {
		settings.ViewType = *update.ViewType
	}
	if update.Duration != nil {
		settings.Duration = clamp(*update.Duration, minDuration, maxDuration)
	}
	if update.CustomQuote != nil {
		settings.CustomQuote = *update.CustomQuote
	}
	if update.CustomImage != nil {
		settings.CustomImage = *update.CustomImage
	}
	if ai := update.AISettings; ai != nil {
		if ai.QuoteTypes != nil {
			settings.AISettings.QuoteTypes = *ai.QuoteTypes
		}
		if ai.AnimeList != nil {
			settings.AISettings.AnimeList = *ai.AnimeList
		}
		if ai.Temperature != nil {
			settings.AISettings.Temperature = *ai.Temperature
		}
		if ai.ImageStyle != nil {
			settings.AISettings.ImageStyle = *ai.ImageStyle
		}
	}

	if err := api.store.UpdateSettings(r.Context(), user.ID, settings); err != nil {
		api.logger.Error("settings update failed", zap.Error(err))
		api.writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}
	user.Settings = settings

	if update.RegenerateKey {
		newKey, err := api.store.RegenerateDeviceKey(r.Context(), user.ID)
		if err != nil {
			api.logger.Error("device key regeneration failed", zap.Error(err))
			api.writeError(w, http.StatusInternalServerError, "failed to regenerate device key")
			return
		}
		user.DeviceKey = newKey
	}

	api.record(user.ID, core.LogEntry{
		Source:  "server",
		Level:   "info",
		Event:   "settings.updated",
		Message: "Settings updated",
		Meta:    map[string]any{"displayMode": settings.DisplayMode, "viewType": settings.ViewType},
	})

	api.writeJSON(w, http.StatusOK, settingsView(user))
}

func settingsView(user store.User) settingsResponse {
	resp := settingsResponse{
		Settings:  user.Settings,
		DeviceKey: user.DeviceKey,
	}
	if !user.LastDeviceContact.IsZero() {
		contact := user.LastDeviceContact
		resp.LastDeviceContact = &contact
	}
	return resp
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

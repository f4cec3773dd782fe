// Package handlers exposes the HTTP API consumed by the e-ink display
// firmware and the web app: frame delivery, manual generation, settings,
// uploads and diagnostics.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"eink_backend/core"
	"eink_backend/frame"
	"eink_backend/logging"
	"eink_backend/store"
	"eink_backend/textai"
)

// generateRate throttles manual refreshes per user. Image generation is
// the expensive stage, so one refresh every 10 seconds with a small
// burst is plenty for the web UI.
const (
	generateInterval = 10 // seconds between manual refreshes
	generateBurst    = 3
)

// API bundles the HTTP handlers and their dependencies.
type API struct {
	store        *store.Store
	recorder     *store.Recorder
	orchestrator *frame.Orchestrator
	quotes       frame.QuoteGenerator
	scenes       frame.SceneGenerator
	images       frame.ImageGenerator
	registry     *textai.Registry
	logger       *logging.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewAPI creates the handler set. registry, scenes and images may be nil
// when the corresponding diagnostics are not needed (tests).
func NewAPI(st *store.Store, recorder *store.Recorder, orchestrator *frame.Orchestrator,
	quotes frame.QuoteGenerator, scenes frame.SceneGenerator, images frame.ImageGenerator,
	registry *textai.Registry, logger *logging.Logger) *API {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &API{
		store:        st,
		recorder:     recorder,
		orchestrator: orchestrator,
		quotes:       quotes,
		scenes:       scenes,
		images:       images,
		registry:     registry,
		logger:       logger.Named("api"),
		limiters:     make(map[string]*rate.Limiter),
	}
}

// RegisterRoutes registers all API routes on the given ServeMux.
func (api *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/frame", api.HandleFrame)
	mux.HandleFunc("/api/generate", api.HandleGenerate)
	mux.HandleFunc("/api/preview", api.HandlePreview)
	mux.HandleFunc("/api/quote", api.HandleQuote)
	mux.HandleFunc("/api/settings", api.HandleSettings)
	mux.HandleFunc("/api/upload", api.HandleUpload)
	mux.HandleFunc("/api/test-ai", api.HandleTestAI)
	mux.HandleFunc("/api/logs", api.HandleLogs)
	mux.HandleFunc("/healthz", api.HandleHealth)
}

// authenticate resolves the caller's user from the device key, taken
// from the X-Device-Key header or the key query parameter.
func (api *API) authenticate(r *http.Request) (store.User, bool) {
	key := r.Header.Get("X-Device-Key")
	if key == "" {
		key = r.URL.Query().Get("key")
	}
	if key == "" {
		return store.User{}, false
	}

	user, err := api.store.ByDeviceKey(r.Context(), key)
	if err != nil {
		return store.User{}, false
	}
	return user, true
}

// limiter returns the per-user rate limiter, creating it on first use.
func (api *API) limiter(userID string) *rate.Limiter {
	api.mu.Lock()
	defer api.mu.Unlock()

	l, ok := api.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(1.0/float64(generateInterval)), generateBurst)
		api.limiters[userID] = l
	}
	return l
}

// record sends an activity-log event, best effort.
func (api *API) record(userID string, entry core.LogEntry) {
	if api.recorder == nil {
		return
	}
	api.recorder.Record(userID, entry)
}

// touchDevice updates the device-contact timestamp, best effort.
func (api *API) touchDevice(ctx context.Context, userID string) {
	if err := api.store.TouchDevice(ctx, userID); err != nil {
		api.logger.Warn("failed to record device contact")
	}
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func (api *API) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Best effort - headers already written
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeError writes an error response.
func (api *API) writeError(w http.ResponseWriter, status int, message string) {
	api.writeJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

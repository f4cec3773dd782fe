package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"eink_backend/core"
	"eink_backend/frame"
	"eink_backend/logging"
	"eink_backend/raster"
	"eink_backend/store"
)

type stubQuotes struct {
	quote string
	err   error
}

func (s *stubQuotes) Generate(ctx context.Context, ai core.AISettings) (string, error) {
	return s.quote, s.err
}

type stubScenes struct{ prompt string }

func (s *stubScenes) GeneratePrompt(ctx context.Context, quote string) string { return s.prompt }

type stubImages struct {
	data []byte
	err  error
}

func (s *stubImages) Generate(ctx context.Context, scenePrompt, style string) ([]byte, error) {
	return s.data, s.err
}

type testEnv struct {
	api    *API
	mux    *http.ServeMux
	store  *store.Store
	user   store.User
	quotes *stubQuotes
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "api.sqlite")
	if err := store.MigrateUpFromPath(dbPath, "file://../store/migrations"); err != nil {
		t.Fatalf("MigrateUpFromPath() error = %v", err)
	}
	db, err := store.NewSQLiteConnectionWithDefaults(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteConnectionWithDefaults() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.NewStore(db, logging.NewNop())
	user, err := st.CreateUser(context.Background(), "api@example.com")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	quotes := &stubQuotes{quote: "Pain is proof you are alive. - Guts, Berserk"}
	scenes := &stubScenes{prompt: "a dark battlefield"}
	images := &stubImages{err: errors.New("image provider down")}
	orchestrator := frame.NewOrchestrator(quotes, scenes, images, st, logging.NewNop())

	api := NewAPI(st, nil, orchestrator, quotes, scenes, images, nil, logging.NewNop())
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	return &testEnv{api: api, mux: mux, store: st, user: user, quotes: quotes}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("X-Device-Key", e.user.DeviceKey)
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func TestFrameUnauthorized(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/frame", nil)
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestFramePayloadLayout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	settings := env.user.Settings
	settings.DisplayMode = core.ModeBothCustom
	settings.CustomQuote = "Hello, wall."
	if err := env.store.UpdateSettings(ctx, env.user.ID, settings); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}

	w := env.do(t, http.MethodGet, "/api/frame?key="+env.user.DeviceKey, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	body := w.Body.Bytes()
	wantQuote := "Hello, wall."
	if len(body) != raster.BitmapBytes+len(wantQuote) {
		t.Fatalf("payload length = %d, want %d", len(body), raster.BitmapBytes+len(wantQuote))
	}
	if got := string(body[raster.BitmapBytes:]); got != wantQuote {
		t.Errorf("quote tail = %q, want %q", got, wantQuote)
	}
	if got := w.Header().Get("X-Display-Mode"); got != "2" {
		t.Errorf("X-Display-Mode = %q, want 2", got)
	}
	if got := w.Header().Get("X-Duration"); got != "60" {
		t.Errorf("X-Duration = %q, want 60", got)
	}
	if got := w.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestFrameStaticModeUsesCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	settings := env.user.Settings
	settings.DisplayMode = core.ModeBothCustom
	settings.CustomQuote = "First frame"
	if err := env.store.UpdateSettings(ctx, env.user.ID, settings); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}

	// First poll generates and persists.
	if w := env.do(t, http.MethodGet, "/api/frame", nil); w.Code != http.StatusOK {
		t.Fatalf("first poll status = %d", w.Code)
	}
	user, err := env.store.Load(ctx, env.user.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if user.NeedsRefresh {
		t.Error("first poll should clear needs_refresh")
	}
	if user.LastFrame == nil {
		t.Fatal("first poll should persist a frame")
	}

	// Second poll must serve the cached frame unchanged.
	w := env.do(t, http.MethodGet, "/api/frame", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("second poll status = %d", w.Code)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), user.LastFrame.Bitmap) {
		t.Error("second poll should return the cached bitmap")
	}
}

func TestFrameErrorFallback(t *testing.T) {
	env := newTestEnv(t)
	env.quotes.err = errors.New("all providers exhausted")
	env.quotes.quote = ""

	// Auto mode with a failing quote generator.
	w := env.do(t, http.MethodGet, "/api/frame", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, fallback frame should still be served", w.Code)
	}
	body := w.Body.Bytes()
	if len(body) != raster.BitmapBytes+len(frame.FallbackText) {
		t.Fatalf("payload length = %d", len(body))
	}
	if got := string(body[raster.BitmapBytes:]); got != frame.FallbackText {
		t.Errorf("fallback quote = %q", got)
	}
}

func TestGenerateReturnsPreview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	settings := env.user.Settings
	settings.ViewType = core.ViewQuote
	if err := env.store.UpdateSettings(ctx, env.user.ID, settings); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}

	w := env.do(t, http.MethodPost, "/api/generate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		OK            bool   `json:"ok"`
		Quote         string `json:"quote"`
		PreviewBase64 string `json:"previewBase64"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.OK {
		t.Error("ok = false")
	}
	if resp.Quote != env.quotes.quote {
		t.Errorf("quote = %q", resp.Quote)
	}
	if !strings.HasPrefix(resp.PreviewBase64, "data:image/png;base64,") {
		t.Errorf("previewBase64 prefix = %.30q", resp.PreviewBase64)
	}
}

func TestGenerateRateLimited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	settings := env.user.Settings
	settings.ViewType = core.ViewQuote
	if err := env.store.UpdateSettings(ctx, env.user.ID, settings); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}

	var limited bool
	for i := 0; i < generateBurst+1; i++ {
		w := env.do(t, http.MethodPost, "/api/generate", nil)
		if w.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Error("expected a 429 after the burst is spent")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/settings", map[string]any{
		"displayMode": 1,
		"customQuote": "Writing on glass",
		"duration":    5, // below the minimum, should clamp to 10
		"aiSettings":  map[string]any{"imageStyle": "minimalist"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Settings  core.DisplaySettings `json:"settings"`
		DeviceKey string               `json:"deviceKey"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Settings.DisplayMode != core.ModeQuoteCustom {
		t.Errorf("displayMode = %d", resp.Settings.DisplayMode)
	}
	if resp.Settings.Duration != 10 {
		t.Errorf("duration = %d, want clamped 10", resp.Settings.Duration)
	}
	if resp.Settings.CustomQuote != "Writing on glass" {
		t.Errorf("customQuote = %q", resp.Settings.CustomQuote)
	}
	if resp.Settings.AISettings.ImageStyle != "minimalist" {
		t.Errorf("imageStyle = %q", resp.Settings.AISettings.ImageStyle)
	}
	// Untouched fields keep their values.
	if resp.Settings.ViewType != core.ViewBoth {
		t.Errorf("viewType = %q, want unchanged %q", resp.Settings.ViewType, core.ViewBoth)
	}

	get := env.do(t, http.MethodGet, "/api/settings", nil)
	if get.Code != http.StatusOK {
		t.Fatalf("GET status = %d", get.Code)
	}
}

func TestSettingsRegenerateKey(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/settings", map[string]any{"regenerateKey": true})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		DeviceKey string `json:"deviceKey"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.DeviceKey == "" || resp.DeviceKey == env.user.DeviceKey {
		t.Errorf("deviceKey = %q, want a fresh key", resp.DeviceKey)
	}

	// The old key no longer authenticates.
	old := env.do(t, http.MethodGet, "/api/settings", nil)
	if old.Code != http.StatusUnauthorized {
		t.Errorf("old key status = %d, want 401", old.Code)
	}
}

func TestUploadValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing image", map[string]any{}, http.StatusBadRequest},
		{"not a data URI", map[string]any{"image": "plain-base64"}, http.StatusBadRequest},
		{"valid data URI", map[string]any{"image": "data:image/png;base64,iVBORw0KGgo="}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/upload", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	user, err := env.store.Load(context.Background(), env.user.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if user.Settings.CustomImage == "" {
		t.Error("upload should persist the custom image")
	}
}

func TestQuoteEndpointFallback(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/quote", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Body.String(); got != env.quotes.quote {
		t.Errorf("body = %q", got)
	}

	env.quotes.err = errors.New("exhausted")
	w = env.do(t, http.MethodGet, "/api/quote", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Body.String(); got != staticQuote {
		t.Errorf("fallback body = %q, want %q", got, staticQuote)
	}
}

func TestPreviewLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w := env.do(t, http.MethodGet, "/api/preview", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("preview before generate status = %d, want 404", w.Code)
	}

	settings := env.user.Settings
	settings.ViewType = core.ViewQuote
	if err := env.store.UpdateSettings(ctx, env.user.ID, settings); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	if g := env.do(t, http.MethodPost, "/api/generate", nil); g.Code != http.StatusOK {
		t.Fatalf("generate status = %d", g.Code)
	}

	w = env.do(t, http.MethodGet, "/api/preview", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("preview status = %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("Content-Type = %q", got)
	}
	if w.Header().Get("X-Preview-At") == "" {
		t.Error("X-Preview-At header missing")
	}
}

func TestLogsEmptyWithoutRecorder(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/logs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Logs []core.LogEntry `json:"logs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Logs == nil || len(resp.Logs) != 0 {
		t.Errorf("logs = %v, want empty array", resp.Logs)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

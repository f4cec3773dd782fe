package frame

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"eink_backend/core"
	"eink_backend/raster"
	"eink_backend/store"
)

type stubQuotes struct {
	quote string
	err   error
	calls int
}

func (s *stubQuotes) Generate(ctx context.Context, ai core.AISettings) (string, error) {
	s.calls++
	return s.quote, s.err
}

type stubScenes struct {
	prompt string
	calls  int
}

func (s *stubScenes) GeneratePrompt(ctx context.Context, quote string) string {
	s.calls++
	return s.prompt
}

type stubImages struct {
	data  []byte
	err   error
	calls int
}

func (s *stubImages) Generate(ctx context.Context, scenePrompt, style string) ([]byte, error) {
	s.calls++
	return s.data, s.err
}

type stubSaver struct {
	saved []core.Frame
	err   error
}

func (s *stubSaver) SaveFrame(ctx context.Context, userID string, frame core.Frame) error {
	s.saved = append(s.saved, frame)
	return s.err
}

// testPNG returns an encoded grayscale gradient image.
func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 64; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 4)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func testUser(settings core.DisplaySettings) store.User {
	return store.User{
		ID:           "user-1",
		Settings:     settings,
		NeedsRefresh: true,
	}
}

func newTestOrchestrator(t *testing.T, quotes *stubQuotes, scenes *stubScenes, images *stubImages, saver *stubSaver) *Orchestrator {
	t.Helper()
	o := NewOrchestrator(quotes, scenes, images, saver, nil)
	o.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return o
}

func TestAutoQuoteView(t *testing.T) {
	quotes := &stubQuotes{quote: "Pain is proof you are alive. - Guts, Berserk"}
	scenes := &stubScenes{prompt: "a lone swordsman"}
	images := &stubImages{data: testPNG(t)}
	saver := &stubSaver{}
	o := newTestOrchestrator(t, quotes, scenes, images, saver)

	settings := core.DefaultDisplaySettings()
	settings.ViewType = core.ViewQuote

	result, err := o.Frame(context.Background(), testUser(settings))
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	if result.Frame.Quote != quotes.quote {
		t.Errorf("quote = %q, want %q", result.Frame.Quote, quotes.quote)
	}
	if len(result.Frame.Bitmap) != raster.BitmapBytes {
		t.Errorf("bitmap length = %d, want %d", len(result.Frame.Bitmap), raster.BitmapBytes)
	}
	if scenes.calls != 0 || images.calls != 0 {
		t.Errorf("quote view should not touch scenes/images (scenes=%d images=%d)", scenes.calls, images.calls)
	}
	if len(saver.saved) != 1 {
		t.Fatalf("expected 1 saved frame, got %d", len(saver.saved))
	}
}

func TestAutoImageViewOmitsQuote(t *testing.T) {
	quotes := &stubQuotes{quote: "Fear is freedom. - Satsuki, Kill la Kill"}
	scenes := &stubScenes{prompt: "a city at dusk"}
	images := &stubImages{data: testPNG(t)}
	saver := &stubSaver{}
	o := newTestOrchestrator(t, quotes, scenes, images, saver)

	settings := core.DefaultDisplaySettings()
	settings.ViewType = core.ViewImage

	result, err := o.Frame(context.Background(), testUser(settings))
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	// The quote seeds the scene but is not part of the frame.
	if result.Frame.Quote != "" {
		t.Errorf("image view quote = %q, want empty", result.Frame.Quote)
	}
	if quotes.calls != 1 || scenes.calls != 1 || images.calls != 1 {
		t.Errorf("pipeline calls = quotes:%d scenes:%d images:%d, want 1 each",
			quotes.calls, scenes.calls, images.calls)
	}
	if result.ScenePrompt != "a city at dusk" {
		t.Errorf("ScenePrompt = %q", result.ScenePrompt)
	}
}

func TestAutoBothViewImageFallback(t *testing.T) {
	quotes := &stubQuotes{quote: "Keep moving forward. - Eren, Attack on Titan"}
	scenes := &stubScenes{prompt: "stormy walls"}
	images := &stubImages{err: errors.New("gateway timeout")}
	saver := &stubSaver{}
	o := newTestOrchestrator(t, quotes, scenes, images, saver)

	settings := core.DefaultDisplaySettings() // both view

	result, err := o.Frame(context.Background(), testUser(settings))
	if err != nil {
		t.Fatalf("Frame() should fall back to text, got error %v", err)
	}
	if result.Frame.Quote != quotes.quote {
		t.Errorf("quote = %q, want %q", result.Frame.Quote, quotes.quote)
	}
	want := raster.TextToBitmap(quotes.quote)
	if !bytes.Equal(result.Frame.Bitmap, want) {
		t.Error("fallback bitmap should render the quote as text")
	}

	var sawFallback bool
	for _, s := range result.Steps {
		if s.Step == "image" && strings.Contains(s.Detail, "Fallback to text") {
			sawFallback = true
		}
	}
	if !sawFallback {
		t.Errorf("steps = %+v, want an image fallback step", result.Steps)
	}
}

func TestAutoImageViewErrorPropagates(t *testing.T) {
	quotes := &stubQuotes{quote: "A quote. - Someone, Somewhere"}
	scenes := &stubScenes{prompt: "scene"}
	images := &stubImages{err: errors.New("no credits")}
	saver := &stubSaver{}
	o := newTestOrchestrator(t, quotes, scenes, images, saver)

	settings := core.DefaultDisplaySettings()
	settings.ViewType = core.ViewImage

	if _, err := o.Frame(context.Background(), testUser(settings)); err == nil {
		t.Fatal("image view has no text fallback and should fail")
	}
	if len(saver.saved) != 0 {
		t.Error("failed generation must not persist a frame")
	}
}

func TestAutoQuoteFailurePropagates(t *testing.T) {
	quotes := &stubQuotes{err: errors.New("all providers exhausted")}
	saver := &stubSaver{}
	o := newTestOrchestrator(t, quotes, &stubScenes{}, &stubImages{}, saver)

	_, err := o.Frame(context.Background(), testUser(core.DefaultDisplaySettings()))
	if err == nil {
		t.Fatal("quote failure should propagate")
	}
	if len(saver.saved) != 0 {
		t.Error("failed generation must not persist a frame")
	}
}

func TestCustomQuotePlaceholder(t *testing.T) {
	scenes := &stubScenes{prompt: "scene"}
	images := &stubImages{data: testPNG(t)}
	saver := &stubSaver{}
	o := newTestOrchestrator(t, &stubQuotes{}, scenes, images, saver)

	settings := core.DefaultDisplaySettings()
	settings.DisplayMode = core.ModeQuoteCustom
	settings.ViewType = core.ViewQuote
	settings.CustomQuote = ""

	result, err := o.Frame(context.Background(), testUser(settings))
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	if result.Frame.Quote != PlaceholderQuote {
		t.Errorf("quote = %q, want placeholder", result.Frame.Quote)
	}
	if scenes.calls != 0 || images.calls != 0 {
		t.Error("quote view should not call scene or image generation")
	}
}

func TestCustomQuoteWithImage(t *testing.T) {
	quotes := &stubQuotes{}
	scenes := &stubScenes{prompt: "a quiet library"}
	images := &stubImages{data: testPNG(t)}
	saver := &stubSaver{}
	o := newTestOrchestrator(t, quotes, scenes, images, saver)

	settings := core.DefaultDisplaySettings()
	settings.DisplayMode = core.ModeQuoteCustom
	settings.CustomQuote = "Stay curious."

	result, err := o.Frame(context.Background(), testUser(settings))
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	if quotes.calls != 0 {
		t.Error("custom quote mode must not generate a quote")
	}
	if result.Frame.Quote != "Stay curious." {
		t.Errorf("quote = %q", result.Frame.Quote)
	}
	if images.calls != 1 {
		t.Errorf("image calls = %d, want 1", images.calls)
	}
}

func TestBothCustomWithUpload(t *testing.T) {
	saver := &stubSaver{}
	o := newTestOrchestrator(t, &stubQuotes{}, &stubScenes{}, &stubImages{}, saver)

	settings := core.DefaultDisplaySettings()
	settings.DisplayMode = core.ModeBothCustom
	settings.CustomQuote = "Home sweet home"
	settings.CustomImage = "data:image/png;base64," + base64.StdEncoding.EncodeToString(testPNG(t))

	result, err := o.Frame(context.Background(), testUser(settings))
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	if result.Frame.Quote != "Home sweet home" {
		t.Errorf("quote = %q", result.Frame.Quote)
	}
	if len(result.Frame.Bitmap) != raster.BitmapBytes {
		t.Errorf("bitmap length = %d, want %d", len(result.Frame.Bitmap), raster.BitmapBytes)
	}
}

func TestBothCustomMissingImage(t *testing.T) {
	saver := &stubSaver{}
	o := newTestOrchestrator(t, &stubQuotes{}, &stubScenes{}, &stubImages{}, saver)

	settings := core.DefaultDisplaySettings()
	settings.DisplayMode = core.ModeBothCustom

	result, err := o.Frame(context.Background(), testUser(settings))
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	want := raster.TextToBitmap(PlaceholderImage)
	if !bytes.Equal(result.Frame.Bitmap, want) {
		t.Error("missing upload should render the placeholder text")
	}
}

func TestBothCustomBadImageFallsBackToQuote(t *testing.T) {
	saver := &stubSaver{}
	o := newTestOrchestrator(t, &stubQuotes{}, &stubScenes{}, &stubImages{}, saver)

	settings := core.DefaultDisplaySettings()
	settings.DisplayMode = core.ModeBothCustom
	settings.CustomQuote = "Still standing"
	settings.CustomImage = "data:image/png;base64,not-base64!!!"

	result, err := o.Frame(context.Background(), testUser(settings))
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	want := raster.TextToBitmap("Still standing")
	if !bytes.Equal(result.Frame.Bitmap, want) {
		t.Error("bad upload should render the custom quote as text")
	}
}

func TestStaticModeReusesCachedFrame(t *testing.T) {
	quotes := &stubQuotes{}
	scenes := &stubScenes{}
	images := &stubImages{}
	saver := &stubSaver{}
	o := newTestOrchestrator(t, quotes, scenes, images, saver)

	settings := core.DefaultDisplaySettings()
	settings.DisplayMode = core.ModeQuoteCustom
	settings.CustomQuote = "Cached"

	user := testUser(settings)
	user.NeedsRefresh = false
	user.LastFrame = &core.Frame{
		Bitmap:      raster.TextToBitmap("Cached"),
		Quote:       "Cached",
		GeneratedAt: time.Now().Add(-time.Hour),
	}

	result, err := o.Frame(context.Background(), user)
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	if !result.Cached {
		t.Error("expected cached result")
	}
	if result.Frame.Quote != "Cached" {
		t.Errorf("quote = %q", result.Frame.Quote)
	}
	if quotes.calls+scenes.calls+images.calls != 0 {
		t.Error("cached path must not call any generator")
	}
	if len(saver.saved) != 0 {
		t.Error("cached path must not persist")
	}
}

func TestAutoModeNeverReusesCache(t *testing.T) {
	quotes := &stubQuotes{quote: "Fresh thoughts. - Narrator, Somewhere"}
	saver := &stubSaver{}
	o := newTestOrchestrator(t, quotes, &stubScenes{}, &stubImages{}, saver)

	settings := core.DefaultDisplaySettings()
	settings.ViewType = core.ViewQuote

	user := testUser(settings)
	user.NeedsRefresh = false
	user.LastFrame = &core.Frame{Bitmap: raster.TextToBitmap("old"), Quote: "old"}

	result, err := o.Frame(context.Background(), user)
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	if result.Cached {
		t.Error("auto mode must always regenerate")
	}
	if quotes.calls != 1 {
		t.Errorf("quote calls = %d, want 1", quotes.calls)
	}
}

func TestErrorFrame(t *testing.T) {
	o := newTestOrchestrator(t, &stubQuotes{}, &stubScenes{}, &stubImages{}, &stubSaver{})

	frame := o.ErrorFrame()
	if frame.Quote != FallbackText {
		t.Errorf("quote = %q", frame.Quote)
	}
	if len(frame.Bitmap) != raster.BitmapBytes {
		t.Errorf("bitmap length = %d, want %d", len(frame.Bitmap), raster.BitmapBytes)
	}
}

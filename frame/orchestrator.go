// Package frame turns a user's display settings into a 1-bit frame for
// the e-ink display. It orchestrates quote generation, scene prompting,
// image generation and rasterization across the three display modes.
package frame

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"eink_backend/core"
	"eink_backend/logging"
	"eink_backend/raster"
	"eink_backend/store"
)

// Placeholder text rendered when custom content is missing.
const (
	PlaceholderQuote = "Set your custom quote in the web app"
	PlaceholderImage = "Upload an image in the web app"
)

// FallbackText is rendered when frame generation fails outright.
const FallbackText = "Error generating content — check API keys"

// QuoteGenerator produces a short attributed quote.
type QuoteGenerator interface {
	Generate(ctx context.Context, ai core.AISettings) (string, error)
}

// SceneGenerator turns a quote into an image-generation prompt.
// It never fails; a deterministic fallback prompt is always available.
type SceneGenerator interface {
	GeneratePrompt(ctx context.Context, quote string) string
}

// ImageGenerator renders a scene prompt into raw image bytes.
type ImageGenerator interface {
	Generate(ctx context.Context, scenePrompt, style string) ([]byte, error)
}

// FrameSaver persists a generated frame.
type FrameSaver interface {
	SaveFrame(ctx context.Context, userID string, frame core.Frame) error
}

// Step records one stage of a generation run for the web UI.
type Step struct {
	Step   string `json:"step"`
	Detail string `json:"detail"`
}

// Result is the outcome of a frame request.
type Result struct {
	Frame       core.Frame
	ScenePrompt string
	Cached      bool
	Steps       []Step
}

// Orchestrator composes the generation pipeline. All AI stages are
// injected as narrow interfaces so tests can exercise the mode state
// machine without network access.
type Orchestrator struct {
	quotes QuoteGenerator
	scenes SceneGenerator
	images ImageGenerator
	saver  FrameSaver
	logger *logging.Logger
	now    func() time.Time
}

// NewOrchestrator wires the pipeline together.
func NewOrchestrator(quotes QuoteGenerator, scenes SceneGenerator, images ImageGenerator, saver FrameSaver, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		quotes: quotes,
		scenes: scenes,
		images: images,
		saver:  saver,
		logger: logger.Named("frame"),
		now:    time.Now,
	}
}

// Frame returns the frame a display should show right now.
//
// In the static modes (custom quote, both custom) the previously
// generated frame is reused until a settings change flips the refresh
// flag. Auto mode always generates fresh content.
func (o *Orchestrator) Frame(ctx context.Context, user store.User) (Result, error) {
	settings := user.Settings
	if settings.DisplayMode != core.ModeAuto && !user.NeedsRefresh && user.LastFrame != nil {
		return Result{Frame: *user.LastFrame, Cached: true}, nil
	}
	return o.Generate(ctx, user)
}

// Generate always produces a fresh frame, persists it and clears the
// user's refresh flag. Manual refreshes from the web UI call this
// directly so they bypass the static-mode cache.
func (o *Orchestrator) Generate(ctx context.Context, user store.User) (Result, error) {
	correlationID := uuid.New().String()
	logger := o.logger.With(
		zap.String("correlation_id", correlationID),
		zap.String("user_id", user.ID),
		zap.Int("display_mode", user.Settings.DisplayMode),
		zap.String("view_type", user.Settings.ViewType))

	run := &generationRun{o: o, logger: logger, settings: user.Settings}

	var err error
	switch user.Settings.DisplayMode {
	case core.ModeAuto:
		err = run.auto(ctx)
	case core.ModeQuoteCustom:
		err = run.customQuote(ctx)
	default:
		run.bothCustom()
	}
	if err != nil {
		logger.Error("frame generation failed", zap.Error(err))
		return Result{Steps: run.steps}, err
	}

	result := Result{
		Frame: core.Frame{
			Bitmap:      run.bitmap,
			Quote:       run.quote,
			GeneratedAt: o.now().UTC(),
		},
		ScenePrompt: run.scenePrompt,
		Steps:       run.steps,
	}

	if err := o.saver.SaveFrame(ctx, user.ID, result.Frame); err != nil {
		return Result{Steps: run.steps}, fmt.Errorf("failed to persist frame: %w", err)
	}

	logger.Info("frame generated",
		zap.Int("bitmap_bytes", len(result.Frame.Bitmap)),
		zap.Int("quote_bytes", len(result.Frame.Quote)))
	return result, nil
}

// ErrorFrame renders the terminal fallback frame shown when generation
// fails. It is never persisted.
func (o *Orchestrator) ErrorFrame() core.Frame {
	return core.Frame{
		Bitmap:      raster.TextToBitmap(FallbackText),
		Quote:       FallbackText,
		GeneratedAt: o.now().UTC(),
	}
}

// generationRun carries the intermediate state of one generation.
type generationRun struct {
	o        *Orchestrator
	logger   *logging.Logger
	settings core.DisplaySettings

	quote       string
	scenePrompt string
	bitmap      []byte
	steps       []Step
}

func (r *generationRun) step(name, detail string) {
	r.steps = append(r.steps, Step{Step: name, Detail: detail})
}

// auto generates everything with AI.
func (r *generationRun) auto(ctx context.Context) error {
	generated, err := r.o.quotes.Generate(ctx, r.settings.AISettings)
	if err != nil {
		return err
	}
	r.step("quote", generated)

	switch r.settings.ViewType {
	case core.ViewQuote:
		r.quote = generated
		r.bitmap = raster.TextToBitmap(r.quote)
		return nil

	case core.ViewImage:
		// The quote only seeds the scene; the display shows image alone.
		r.scenePrompt = r.o.scenes.GeneratePrompt(ctx, generated)
		r.step("scene", r.scenePrompt)
		bitmap, err := r.renderScene(ctx)
		if err != nil {
			return err
		}
		r.bitmap = bitmap
		return nil

	default: // both
		r.quote = generated
		r.scenePrompt = r.o.scenes.GeneratePrompt(ctx, r.quote)
		r.step("scene", r.scenePrompt)
		bitmap, err := r.renderScene(ctx)
		if err != nil {
			r.step("image", "Fallback to text: "+err.Error())
			r.logger.Warn("image generation failed, rendering quote as text", zap.Error(err))
			r.bitmap = raster.TextToBitmap(r.quote)
			return nil
		}
		r.bitmap = bitmap
		return nil
	}
}

// customQuote pairs a user-supplied quote with an AI image.
func (r *generationRun) customQuote(ctx context.Context) error {
	r.quote = r.settings.CustomQuote
	if r.quote == "" {
		r.quote = PlaceholderQuote
	}
	r.step("quote", "(custom) "+r.quote)

	if r.settings.ViewType == core.ViewQuote {
		r.bitmap = raster.TextToBitmap(r.quote)
		return nil
	}

	r.scenePrompt = r.o.scenes.GeneratePrompt(ctx, r.quote)
	r.step("scene", r.scenePrompt)
	bitmap, err := r.renderScene(ctx)
	if err != nil {
		r.step("image", "Fallback to text: "+err.Error())
		r.logger.Warn("image generation failed, rendering quote as text", zap.Error(err))
		r.bitmap = raster.TextToBitmap(r.quote)
		return nil
	}
	r.bitmap = bitmap
	return nil
}

// bothCustom uses the user's own quote and uploaded image. No AI calls,
// so it cannot fail; bad uploads degrade to placeholder text.
func (r *generationRun) bothCustom() {
	r.quote = r.settings.CustomQuote
	r.step("quote", "(custom) "+r.quote)

	fallbackText := r.quote
	if fallbackText == "" {
		fallbackText = PlaceholderImage
	}

	if r.settings.CustomImage == "" {
		r.step("image", "No custom image uploaded")
		r.bitmap = raster.TextToBitmap(fallbackText)
		return
	}

	bitmap, err := raster.Base64ToBitmap(r.settings.CustomImage)
	if err != nil {
		r.step("image", "Custom image failed: "+err.Error())
		r.logger.Warn("custom image decode failed", zap.Error(err))
		r.bitmap = raster.TextToBitmap(fallbackText)
		return
	}
	r.step("image", "Custom image processed")
	r.bitmap = bitmap
}

// renderScene generates an image for the current scene prompt and
// rasterizes it.
func (r *generationRun) renderScene(ctx context.Context) ([]byte, error) {
	imageBytes, err := r.o.images.Generate(ctx, r.scenePrompt, r.settings.AISettings.ImageStyle)
	if err != nil {
		return nil, err
	}
	r.step("image", "Generated OK")
	return raster.ImageToBitmap(imageBytes)
}

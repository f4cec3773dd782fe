package imagegen

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"eink_backend/core"
	"eink_backend/logging"
)

// styleTemplates map a user-selected style to the prompt prefix tuned for
// monochrome e-ink rendering. Unknown styles fall back to "anime".
var styleTemplates = map[string]string{
	"anime": "Masterpiece anime key visual for e-ink display. " +
		"Ultra clean linework, clear foreground/midground/background separation, expressive but readable details, no text overlays. " +
		"Monochrome black and white only, bright tonal balance, never horror, never creepy, never muddy shadows. " +
		"Cinematic wide composition with strong silhouette readability.",
	"realistic": "Clean photorealistic illustration for e-ink display. " +
		"High contrast, sharp edges, clear subjects. Bright, warm, inviting mood. " +
		"Black and white only. NEVER dark or unsettling. Wide composition.",
	"minimalist": "Beautiful minimalist line-art illustration for e-ink display. " +
		"Bold clean strokes, elegant simple shapes, maximum contrast. Warm and inviting feel. " +
		"Black and white. NEVER creepy or dark. Wide composition.",
}

// StylePrefix returns the prompt prefix for the given style name.
func StylePrefix(style string) string {
	if prefix, ok := styleTemplates[style]; ok {
		return prefix
	}
	return styleTemplates["anime"]
}

// Generator runs the end-to-end image stage: build the full prompt,
// submit the generation request, download the produced asset.
type Generator struct {
	provider   Provider
	downloader *Downloader
	logger     *logging.Logger
}

// NewGenerator assembles a Generator from its parts.
func NewGenerator(provider Provider, downloader *Downloader, logger *logging.Logger) *Generator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Generator{
		provider:   provider,
		downloader: downloader,
		logger:     logger.Named("imagegen"),
	}
}

// NewGeneratorFromConfig builds the Generator with the configured
// gateway provider. Returns core.ErrImageProviderUnavailable (wrapped)
// when no image credential is configured.
func NewGeneratorFromConfig(cfg *core.Config, logger *logging.Logger) (*Generator, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewGenerator(provider, NewDownloader(cfg), logger), nil
}

// Generate synthesizes an image for the scene prompt in the given style
// and returns the raw image bytes (PNG or JPEG, per the backend).
func (g *Generator) Generate(ctx context.Context, scenePrompt, style string) ([]byte, error) {
	fullPrompt := fmt.Sprintf("%s Scene: %s", StylePrefix(style), scenePrompt)

	g.logger.Info("requesting image generation",
		zap.String("style", style),
		zap.String("prompt_preview", truncate(fullPrompt, 150)))

	assetURL, err := g.provider.Generate(ctx, fullPrompt)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("downloading generated asset", zap.String("url", truncate(assetURL, 100)))
	data, err := g.downloader.Download(ctx, assetURL)
	if err != nil {
		return nil, err
	}

	g.logger.Info("image generated", zap.Int("bytes", len(data)))
	return data, nil
}

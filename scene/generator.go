// Package scene derives a visual scene description from a quote for the
// image synthesis stage. Generation is best-effort at every step and
// always returns usable prompt text, falling back to a deterministic
// sentence when no text provider is reachable.
package scene

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"eink_backend/logging"
	"eink_backend/textai"
)

const analysisSystemPrompt = "You analyze anime quotes and output ONLY strict JSON. No markdown."

const sceneSystemPrompt = "You are an elite anime storyboard artist for e-ink displays. " +
	"Output ONLY one detailed scene prompt (45-75 words), no markdown. " +
	"The prompt must be aesthetically beautiful, emotionally accurate, and highly coherent with the quote meaning. " +
	"Never produce horror/creepy/dark-gore visuals. Keep it elegant, readable, and high-contrast for black-and-white rendering."

// Dispatcher is the slice of the text engine the generator needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, system, user string, opts textai.Options) (string, string, error)
}

// Generator turns quotes into image prompts.
type Generator struct {
	dispatcher Dispatcher
	twoStage   bool
	logger     *logging.Logger
}

// NewGenerator creates a Generator. With twoStage enabled a structured
// analysis pass runs before the scene description; disabled, the scene
// pass works from the static default analysis.
func NewGenerator(dispatcher Dispatcher, twoStage bool, logger *logging.Logger) *Generator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Generator{
		dispatcher: dispatcher,
		twoStage:   twoStage,
		logger:     logger.Named("scene"),
	}
}

// GeneratePrompt derives a scene description from the quote. It never
// fails: analysis parse errors fall back to defaults, and total provider
// failure falls back to a deterministic sentence built from the quote's
// attribution.
func (g *Generator) GeneratePrompt(ctx context.Context, quote string) string {
	character, anime := attribution(quote)
	analysis := defaultAnalysis(character != "")

	if g.twoStage {
		analysis = g.analyze(ctx, quote, character, anime, analysis)
	}

	sceneUser := g.buildSceneRequest(quote, character, anime, analysis)
	text, provider, err := g.dispatcher.Dispatch(ctx, sceneSystemPrompt, sceneUser,
		textai.Options{MaxTokens: 180, Temperature: 0.75})
	if err != nil {
		g.logger.Warn("scene generation failed, using deterministic fallback", zap.Error(err))
		return fallbackPrompt(character, analysis.NeedsCharacter)
	}

	g.logger.Info("scene prompt generated",
		zap.String("provider", provider),
		zap.Int("chars", len(text)))
	return strings.TrimSpace(text)
}

// analyze runs the structured analysis pass. Any failure returns the
// base analysis; this stage is never allowed to abort the pipeline.
func (g *Generator) analyze(ctx context.Context, quote, character, anime string, base Analysis) Analysis {
	user := fmt.Sprintf(
		"Quote: %q\nCharacter: %s\nAnime: %s\n\n"+
			`Return strict JSON with keys: {"mood":"...","coreTheme":"...","setting":"...","needsCharacter":true|false,"visualMotifs":["...","..."],"lighting":"...","camera":"..."}. `+
			"Rules: needsCharacter=true only if identity/speaker presence is important for meaning. "+
			"Prefer symbolic scene composition when it communicates the quote better than showing a person.",
		quote, orUnknown(character), orUnknown(anime))

	raw, _, err := g.dispatcher.Dispatch(ctx, analysisSystemPrompt, user,
		textai.Options{MaxTokens: 220, Temperature: 0.55})
	if err != nil {
		g.logger.Warn("scene analysis unavailable, using defaults", zap.Error(err))
		return base
	}

	analysis, ok := parseAnalysis(raw, base)
	if !ok {
		g.logger.Warn("scene analysis unparseable, using defaults",
			zap.String("raw", truncate(raw, 120)))
	}
	return analysis
}

func (g *Generator) buildSceneRequest(quote, character, anime string, a Analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Quote: %q\n", quote)
	fmt.Fprintf(&b, "Analysis mood: %s\n", a.Mood)
	fmt.Fprintf(&b, "Theme: %s\n", a.CoreTheme)
	fmt.Fprintf(&b, "Setting hint: %s\n", a.Setting)
	fmt.Fprintf(&b, "Lighting: %s\n", a.Lighting)
	fmt.Fprintf(&b, "Camera: %s\n", a.Camera)
	fmt.Fprintf(&b, "Visual motifs: %s\n", strings.Join(a.VisualMotifs, ", "))
	if a.NeedsCharacter {
		b.WriteString("Show character: yes\n")
	} else {
		b.WriteString("Show character: no\n")
	}
	if a.NeedsCharacter && character != "" {
		fmt.Fprintf(&b, "Character requirement: depict %s", character)
		if anime != "" {
			fmt.Fprintf(&b, " from %s", anime)
		}
		b.WriteString(" in a recognizable silhouette/outfit style without copyrighted logos/text.\n")
	} else {
		b.WriteString("If no character is needed, use a symbolic environment-only composition.\n")
	}
	b.WriteString("\nBuild a polished anime key-visual prompt with precise composition, subject clarity, depth layers, clean edges, and rich midtone separation for monochrome conversion.")
	return b.String()
}

// fallbackPrompt synthesizes a usable scene description with no AI at
// all. The return is guaranteed non-empty.
func fallbackPrompt(character string, needsCharacter bool) string {
	if needsCharacter {
		if character == "" {
			character = "anime character"
		}
		return character + " in a clear expressive pose, layered environment depth, " +
			"bright atmospheric lighting, clean bold outlines, elegant black and white anime key visual"
	}
	return "symbolic scenic composition reflecting the quote theme, layered depth, " +
		"luminous sky, clean bold outlines, elegant black and white anime key visual"
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

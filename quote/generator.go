// Package quote generates short attributed anime quotes through the
// cascading text provider engine, with cleanup, validation and a bounded
// recent-quote de-duplication window.
package quote

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"eink_backend/core"
	"eink_backend/logging"
	"eink_backend/textai"
)

// ErrGenerationFailed is returned after all attempts are exhausted.
var ErrGenerationFailed = errors.New("quote generation failed")

// Generation tuning constants.
const (
	maxAttempts     = 3
	maxQuoteLen     = 80
	softLimitChars  = 70
	temperatureStep = 0.15
	temperatureCap  = 2.0
	responseTokens  = 90
)

// defaultThemes is used when the user configured no quote types.
var defaultThemes = []string{
	"dark", "motivational", "melancholy", "courage",
	"love", "solitude", "power", "destiny",
}

const anyAnimeHint = "Pick from any well-known anime (Naruto, Death Note, " +
	"Attack on Titan, Fullmetal Alchemist, One Piece, Bleach, Steins;Gate, " +
	"Cowboy Bebop, Evangelion, Jujutsu Kaisen, Demon Slayer, Violet Evergarden, " +
	"Code Geass, Hunter x Hunter, Tokyo Ghoul, etc.)."

const systemPrompt = "You are an anime quote expert. You output ONLY the " +
	"quote line — nothing else. No markdown, no quotation marks wrapping it, " +
	"no numbering, no commentary, no extra text. " +
	"Format exactly: <quote text> - <Character>, <Anime>"

var (
	wrappingQuotes  = regexp.MustCompile(`^["'\x{201C}\x{201D}\x{2018}\x{2019}]+|["'\x{201C}\x{201D}\x{2018}\x{2019}]+$`)
	leadingNumber   = regexp.MustCompile(`^\d+\.\s*`)
	emphasisMarkers = regexp.MustCompile(`\*+`)
)

// Dispatcher is the slice of the text engine the generator needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, system, user string, opts textai.Options) (string, string, error)
}

// Generator produces validated, de-duplicated quotes.
type Generator struct {
	dispatcher Dispatcher
	recent     *RecentSet
	logger     *logging.Logger
	pick       func(n int) int
}

// NewGenerator creates a Generator with its own recent-quote window.
func NewGenerator(dispatcher Dispatcher, logger *logging.Logger) *Generator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Generator{
		dispatcher: dispatcher,
		recent:     NewRecentSet(DefaultRecentCapacity),
		logger:     logger.Named("quote"),
		pick:       rand.Intn,
	}
}

// Recent exposes the de-duplication window, mainly for tests.
func (g *Generator) Recent() *RecentSet {
	return g.recent
}

// Generate produces one quote of the form "<text> - <Character>, <Anime>".
//
// It attempts up to three completions, raising the temperature by 0.15
// per retry (capped at 2.0) and asking the model to pick something
// different. A response is rejected and retried when the cleaned text
// lacks the " - " delimiter, exceeds 80 characters, or duplicates an
// entry in the recent window. After exhausting attempts the last error
// is wrapped in ErrGenerationFailed.
func (g *Generator) Generate(ctx context.Context, ai core.AISettings) (string, error) {
	theme := g.pickTheme(ai.QuoteTypes)
	animeHint := anyAnimeHint
	if len(ai.AnimeList) > 0 {
		animeHint = "Pick ONLY from these anime: " + strings.Join(ai.AnimeList, ", ") + "."
	}

	baseTemp := ai.Temperature
	if baseTemp <= 0 {
		baseTemp = 1.0
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		temp := baseTemp + float64(attempt)*temperatureStep
		if temp > temperatureCap {
			temp = temperatureCap
		}

		user := fmt.Sprintf(
			`Generate ONE unique, profound anime quote about %q (maximum %d characters total including the attribution). %s `+
				`The quote must be deep, memorable, and emotionally impactful. `+
				`Format strictly: quote text - Character, Anime `+
				`Be creative — do NOT repeat common overused quotes. Vary your character and anime choices randomly.`,
			theme, softLimitChars, animeHint)
		if attempt > 0 {
			user += fmt.Sprintf(" (Attempt %d — pick something COMPLETELY different this time.)", attempt+1)
		}

		raw, provider, err := g.dispatcher.Dispatch(ctx, systemPrompt, user,
			textai.Options{MaxTokens: responseTokens, Temperature: temp})
		if err != nil {
			lastErr = err
			g.logger.Warn("attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}

		cleaned := CleanQuote(raw)
		if reason, ok := g.validate(cleaned); !ok {
			lastErr = fmt.Errorf("quote rejected (%s): %q", reason, truncate(cleaned, 60))
			g.logger.Warn("quote rejected",
				zap.Int("attempt", attempt+1),
				zap.String("provider", provider),
				zap.String("reason", reason))
			continue
		}

		g.recent.Insert(cleaned)
		g.logger.Info("quote accepted",
			zap.String("provider", provider),
			zap.String("quote", cleaned))
		return cleaned, nil
	}

	return "", fmt.Errorf("%w after %d attempts: %v", ErrGenerationFailed, maxAttempts, lastErr)
}

func (g *Generator) pickTheme(quoteTypes []string) string {
	if len(quoteTypes) > 0 {
		return quoteTypes[g.pick(len(quoteTypes))]
	}
	return defaultThemes[g.pick(len(defaultThemes))]
}

// validate checks the post-cleanup constraints. The reason string is used
// for logging only.
func (g *Generator) validate(cleaned string) (string, bool) {
	if !strings.Contains(cleaned, " - ") {
		return "missing attribution delimiter", false
	}
	if len(cleaned) > maxQuoteLen {
		return fmt.Sprintf("too long (%d chars)", len(cleaned)), false
	}
	if g.recent.Contains(cleaned) {
		return "duplicate", false
	}
	return "", true
}

// CleanQuote strips wrapping quotation marks, leading numbering and
// markdown emphasis markers from a raw model response.
func CleanQuote(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = wrappingQuotes.ReplaceAllString(cleaned, "")
	cleaned = leadingNumber.ReplaceAllString(cleaned, "")
	cleaned = emphasisMarkers.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package core

import (
	"time"
)

// Display modes. The mode is part of the per-user display settings and
// selects which generation strategy the frame orchestrator runs.
const (
	// ModeAuto generates both quote and image with AI on every device poll.
	ModeAuto = 0
	// ModeQuoteCustom uses the stored custom quote with an AI image; static
	// until settings change.
	ModeQuoteCustom = 1
	// ModeBothCustom uses the stored custom quote and custom image; static
	// until settings change.
	ModeBothCustom = 2
)

// View types select what the display shows within a mode.
const (
	ViewQuote = "quote"
	ViewImage = "image"
	ViewBoth  = "both"
)

// AISettings holds the user's generation preferences.
type AISettings struct {
	// QuoteTypes are the themes to pick from; empty means the built-in set
	QuoteTypes []string `json:"quoteTypes"`
	// AnimeList constrains the source pool; empty means any well-known anime
	AnimeList []string `json:"animeList"`
	// Temperature is the base sampling temperature (0.1-2.0)
	Temperature float64 `json:"temperature"`
	// ImageStyle selects the image style template ("anime", "realistic", "minimalist")
	ImageStyle string `json:"imageStyle"`
}

// DisplaySettings is the per-user display configuration. The generation
// pipeline reads it once per invocation and never mutates it.
type DisplaySettings struct {
	// DisplayMode is one of ModeAuto, ModeQuoteCustom, ModeBothCustom
	DisplayMode int `json:"displayMode"`
	// ViewType is one of ViewQuote, ViewImage, ViewBoth
	ViewType string `json:"viewType"`
	// Duration is the seconds between device refreshes (10-3600)
	Duration int `json:"duration"`
	// CustomQuote is the user-supplied quote for modes 1 and 2
	CustomQuote string `json:"customQuote"`
	// CustomImage is a base64 data URI for mode 2
	CustomImage string `json:"customImage"`
	// AISettings are the generation preferences
	AISettings AISettings `json:"aiSettings"`
}

// DefaultDisplaySettings returns the settings a new user starts with.
func DefaultDisplaySettings() DisplaySettings {
	return DisplaySettings{
		DisplayMode: ModeAuto,
		ViewType:    ViewBoth,
		Duration:    60,
		AISettings: AISettings{
			Temperature: 1.0,
			ImageStyle:  "anime",
		},
	}
}

// Frame is the unit of renderable output delivered to the display:
// a packed 1-bit bitmap plus the quote caption. A frame is immutable once
// created and superseded, not merged, by the next one.
type Frame struct {
	// Bitmap is the packed 1-bit image, exactly raster.BitmapBytes long
	Bitmap []byte `json:"-"`
	// Quote is the caption text (may be empty for image-only views)
	Quote string `json:"quote"`
	// GeneratedAt is when the frame was produced
	GeneratedAt time.Time `json:"generatedAt"`
}

// LogEntry is a single activity-log event. Writing one is always
// best-effort; a failed write must never fail the request that caused it.
type LogEntry struct {
	Source  string         `json:"source"`
	Level   string         `json:"level"`
	Event   string         `json:"event"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}

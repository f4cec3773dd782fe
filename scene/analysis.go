package scene

import (
	"encoding/json"
	"strings"
)

// Analysis is the structured intermediate between a quote and its visual
// scene description. It is produced by best-effort extraction from model
// output; a parse failure substitutes the defaults and is never fatal.
type Analysis struct {
	Mood           string   `json:"mood"`
	CoreTheme      string   `json:"coreTheme"`
	Setting        string   `json:"setting"`
	NeedsCharacter bool     `json:"needsCharacter"`
	VisualMotifs   []string `json:"visualMotifs"`
	Lighting       string   `json:"lighting"`
	Camera         string   `json:"camera"`
}

// defaultAnalysis are the values used when the analysis stage is skipped
// or its output cannot be parsed.
func defaultAnalysis(hasCharacter bool) Analysis {
	return Analysis{
		Mood:           "poetic",
		CoreTheme:      "reflection",
		Setting:        "open sky and wind",
		NeedsCharacter: hasCharacter,
		VisualMotifs:   []string{"flowing clouds", "calm horizon"},
		Lighting:       "soft luminous daylight",
		Camera:         "medium wide cinematic framing",
	}
}

// parseAnalysis leniently decodes model output into an Analysis layered
// over the given base: code-fence markers are stripped and any field the
// model omitted keeps the base value. Returns the base and false when the
// output is not parseable JSON.
func parseAnalysis(raw string, base Analysis) (Analysis, bool) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.ReplaceAll(cleaned, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	merged := base
	if err := json.Unmarshal([]byte(cleaned), &merged); err != nil {
		return base, false
	}
	return merged, true
}

// attribution extracts the character and anime names from a quote of the
// form "<text> - <Character>, <Anime>". Missing pieces come back empty.
func attribution(quote string) (character, anime string) {
	parts := strings.SplitN(quote, " - ", 2)
	if len(parts) < 2 {
		return "", ""
	}
	fields := strings.SplitN(parts[1], ",", 2)
	character = strings.TrimSpace(fields[0])
	if len(fields) > 1 {
		anime = strings.TrimSpace(fields[1])
	}
	return character, anime
}

package textai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"eink_backend/core"
)

const geminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/models"

// geminiRequest is the generateContent payload.
type geminiRequest struct {
	SystemInstruction geminiContent   `json:"systemInstruction"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// newGeminiProvider builds the Google Gemini provider. The Gemini wire
// format is not OpenAI-compatible, so the call is made with the shared
// HTTP client directly.
func newGeminiProvider(cfg *core.Config, client *http.Client) Provider {
	key := cfg.GoogleAPIKey
	model := cfg.GeminiModel

	return Provider{
		Name:      "Google Gemini",
		EnvKey:    "GOOGLE_API_KEY",
		Available: func() bool { return key != "" },
		Chat: func(ctx context.Context, system, user string, opts Options) (string, error) {
			url := fmt.Sprintf("%s/%s:generateContent?key=%s", geminiEndpoint, model, key)

			payload, err := json.Marshal(geminiRequest{
				SystemInstruction: geminiContent{Parts: []geminiPart{{Text: system}}},
				Contents: []geminiContent{
					{Role: "user", Parts: []geminiPart{{Text: user}}},
				},
				GenerationConfig: geminiGenConfig{
					MaxOutputTokens: opts.MaxTokens,
					Temperature:     opts.Temperature,
				},
			})
			if err != nil {
				return "", fmt.Errorf("gemini: marshal request: %w", err)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
			if err != nil {
				return "", fmt.Errorf("gemini: build request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := client.Do(req)
			if err != nil {
				return "", fmt.Errorf("gemini: request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return "", fmt.Errorf("gemini: read response: %w", err)
			}
			if resp.StatusCode >= 400 {
				return "", fmt.Errorf("gemini: HTTP %d: %s", resp.StatusCode, truncate(string(body), 300))
			}

			var parsed geminiResponse
			if err := json.Unmarshal(body, &parsed); err != nil {
				return "", fmt.Errorf("gemini: decode response: %w", err)
			}
			if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
				return "", fmt.Errorf("gemini: empty response")
			}
			text := strings.TrimSpace(parsed.Candidates[0].Content.Parts[0].Text)
			if text == "" {
				return "", fmt.Errorf("gemini: empty response")
			}
			return text, nil
		},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

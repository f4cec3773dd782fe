package handlers

import (
	"net/http"
	"strconv"
	"time"

	"eink_backend/core"
	"eink_backend/textai"
)

// providerPing is one provider's connectivity check result.
type providerPing struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Response  string `json:"response,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latencyMs,omitempty"`
}

// stageResult is one pipeline smoke-test result.
type stageResult struct {
	Success   bool   `json:"success"`
	Data      string `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latencyMs"`
}

// testAIResponse is the JSON body for GET /api/test-ai.
type testAIResponse struct {
	Timestamp time.Time               `json:"timestamp"`
	Providers []textai.ProviderStatus `json:"providers"`
	Tests     map[string]any          `json:"tests"`
}

// HandleTestAI handles GET /api/test-ai: pings every configured text
// provider and smoke-tests the quote, scene and image stages. Intended
// for diagnosing missing or expired API keys.
func (api *API) HandleTestAI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := testAIResponse{
		Timestamp: time.Now().UTC(),
		Tests:     map[string]any{},
	}
	if api.registry != nil {
		resp.Providers = api.registry.Status()
		resp.Tests["providers"] = api.pingProviders(r)
	}

	quote := api.testQuote(r, resp.Tests)
	scenePrompt := api.testScene(r, resp.Tests, quote)
	api.testImage(r, resp.Tests, scenePrompt)

	api.writeJSON(w, http.StatusOK, resp)
}

func (api *API) pingProviders(r *http.Request) []providerPing {
	pings := make([]providerPing, 0, len(api.registry.Providers()))
	for _, provider := range api.registry.Providers() {
		if !provider.Available() {
			pings = append(pings, providerPing{
				Name:   provider.Name,
				Status: "skipped",
				Reason: "No " + provider.EnvKey,
			})
			continue
		}

		start := time.Now()
		text, err := provider.Chat(r.Context(), "Reply with exactly: OK", "Say OK",
			textai.Options{MaxTokens: 10, Temperature: 0.1})
		latency := time.Since(start).Milliseconds()
		if err != nil {
			pings = append(pings, providerPing{Name: provider.Name, Status: "error", Error: err.Error()})
			continue
		}
		pings = append(pings, providerPing{
			Name: provider.Name, Status: "ok", Response: text, LatencyMs: latency,
		})
	}
	return pings
}

func (api *API) testQuote(r *http.Request, tests map[string]any) string {
	start := time.Now()
	quote, err := api.quotes.Generate(r.Context(), core.AISettings{Temperature: 1.0})
	result := stageResult{LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		result.Error = err.Error()
		tests["quote"] = result
		return ""
	}
	result.Success = true
	result.Data = quote
	tests["quote"] = result
	return quote
}

func (api *API) testScene(r *http.Request, tests map[string]any, quote string) string {
	if api.scenes == nil {
		return ""
	}
	if quote == "" {
		quote = "The world is not beautiful, therefore it is. - Kino, Kino's Journey"
	}
	start := time.Now()
	prompt := api.scenes.GeneratePrompt(r.Context(), quote)
	tests["imagePrompt"] = stageResult{
		Success:   true,
		Data:      prompt,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	return prompt
}

func (api *API) testImage(r *http.Request, tests map[string]any, scenePrompt string) {
	if api.images == nil {
		return
	}
	if scenePrompt == "" {
		scenePrompt = "dramatic anime character in dark atmosphere"
	}
	start := time.Now()
	imageBytes, err := api.images.Generate(r.Context(), scenePrompt, "anime")
	result := stageResult{LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		result.Error = err.Error()
	} else {
		result.Success = true
		result.Data = "image bytes: " + strconv.Itoa(len(imageBytes))
	}
	tests["image"] = result
}

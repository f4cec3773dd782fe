// Package imagegen invokes the image synthesis backend and retrieves the
// produced asset. The backend exposes two operations: a synchronous
// generation request that returns an asset URL, and a download of the
// binary asset from that URL.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"eink_backend/core"
)

// Provider is the interface for image generation backends. Generate
// submits a prompt and returns the URL of the produced asset; fetching
// the bytes is the Downloader's job.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// fluxProvider talks to a flux-schnell style generation gateway.
type fluxProvider struct {
	client *http.Client
	url    string
	apiKey string
	width  int
	height int
	steps  int
}

// fluxRequest is the generation payload.
type fluxRequest struct {
	Prompt   string `json:"prompt"`
	NumSteps int    `json:"num_steps"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type fluxResponse struct {
	Output string `json:"output"`
}

// NewProvider creates the gateway provider from configuration.
// Returns core.ErrImageProviderUnavailable when no credential is set.
func NewProvider(cfg *core.Config) (Provider, error) {
	if cfg.ImageAPIKey == "" {
		return nil, fmt.Errorf("imagegen: %w: set IMAGE_API_KEY", core.ErrImageProviderUnavailable)
	}
	return &fluxProvider{
		client: core.GetHTTPClient(cfg, cfg.DownloadTimeout),
		url:    cfg.ImageGenURL,
		apiKey: cfg.ImageAPIKey,
		width:  cfg.ImageGenWidth,
		height: cfg.ImageGenHeight,
		steps:  cfg.ImageGenSteps,
	}, nil
}

func (p *fluxProvider) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(fluxRequest{
		Prompt:   prompt,
		NumSteps: p.steps,
		Width:    p.width,
		Height:   p.height,
	})
	if err != nil {
		return "", fmt.Errorf("imagegen: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("imagegen: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Ocp-Apim-Subscription-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("imagegen: generation request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("imagegen: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("imagegen: HTTP %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var parsed fluxResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("imagegen: decode response: %w", err)
	}
	if parsed.Output == "" {
		return "", fmt.Errorf("imagegen: no image URL in response")
	}
	return parsed.Output, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

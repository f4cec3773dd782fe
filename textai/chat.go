package textai

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"eink_backend/core"
)

// newChatProvider builds a provider for an OpenAI-compatible
// chat/completions endpoint. The primary and backup entries share the
// endpoint and model and differ only in the credential.
func newChatProvider(name, envKey, apiKey string, cfg *core.Config) Provider {
	var client *openai.Client
	if apiKey != "" {
		clientConfig := openai.DefaultConfig(apiKey)
		clientConfig.BaseURL = cfg.ChatBaseURL
		clientConfig.HTTPClient = core.GetHTTPClient(cfg, cfg.AITimeout)
		client = openai.NewClientWithConfig(clientConfig)
	}
	model := cfg.ChatModel

	return Provider{
		Name:      name,
		EnvKey:    envKey,
		Available: func() bool { return apiKey != "" },
		Chat: func(ctx context.Context, system, user string, opts Options) (string, error) {
			resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model: model,
				Messages: []openai.ChatCompletionMessage{
					{Role: openai.ChatMessageRoleSystem, Content: system},
					{Role: openai.ChatMessageRoleUser, Content: user},
				},
				MaxTokens:   opts.MaxTokens,
				Temperature: float32(opts.Temperature),
			})
			if err != nil {
				return "", fmt.Errorf("chat completion failed: %w", err)
			}
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("empty completion response")
			}

			// Reasoning models sometimes leave the answer in the reasoning
			// channel with an empty content field.
			msg := resp.Choices[0].Message
			text := strings.TrimSpace(msg.Content)
			if text == "" {
				text = strings.TrimSpace(msg.ReasoningContent)
			}
			if text == "" {
				return "", fmt.Errorf("empty completion response")
			}
			return text, nil
		},
	}
}

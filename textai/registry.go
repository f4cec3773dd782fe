package textai

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"eink_backend/core"
	"eink_backend/logging"
)

// AttemptError records one failed provider attempt.
type AttemptError struct {
	Provider string
	Err      error
}

// ExhaustedError is returned when every available provider failed or none
// was available. Attempts holds one entry per attempted provider, in
// registry order.
type ExhaustedError struct {
	Attempts []AttemptError
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "textai: no text providers available"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %v", a.Provider, a.Err)
	}
	return "textai: all providers failed: " + strings.Join(parts, " | ")
}

// Registry holds the ordered provider chain. Ordering defines fallback
// precedence and is fixed for the process lifetime.
type Registry struct {
	providers []Provider
	logger    *logging.Logger
}

// NewRegistry builds the standard provider chain from configuration:
// Gemini first, then the OpenAI-compatible primary and backup keys.
// Providers without credentials stay in the chain and are skipped at
// dispatch time, so Status can still report them.
func NewRegistry(cfg *core.Config, logger *logging.Logger) *Registry {
	client := core.GetHTTPClient(cfg, cfg.AITimeout)

	providers := []Provider{
		newGeminiProvider(cfg, client),
		newChatProvider("Chat Primary", "CHAT_API_KEY", cfg.ChatAPIKey, cfg),
		newChatProvider("Chat Backup", "CHAT_API_KEY_BACKUP", cfg.ChatAPIKeyBackup, cfg),
	}

	return NewRegistryWithProviders(providers, logger)
}

// NewRegistryWithProviders builds a registry over an explicit provider
// list. Tests substitute stub providers through this constructor.
func NewRegistryWithProviders(providers []Provider, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		providers: providers,
		logger:    logger.Named("textai"),
	}
}

// Dispatch runs the prompt through the provider chain in order and returns
// the first successful response together with the winning provider's name.
//
// Unavailable providers are skipped without counting as failures. Each
// attempt emits an advisory trace event; tracing never affects control
// flow. When every available provider fails (or none is available) the
// returned error is an *ExhaustedError carrying the per-provider errors
// in registry order.
func (r *Registry) Dispatch(ctx context.Context, system, user string, opts Options) (string, string, error) {
	opts = opts.withDefaults()

	var attempts []AttemptError
	for _, p := range r.providers {
		if !p.Available() {
			r.logger.Debug("provider skipped",
				zap.String("provider", p.Name),
				zap.String("env_key", p.EnvKey))
			continue
		}

		r.logger.Debug("provider attempt", zap.String("provider", p.Name))
		text, err := p.Chat(ctx, system, user, opts)
		if err != nil {
			r.logger.Warn("provider failed",
				zap.String("provider", p.Name),
				zap.Error(err))
			attempts = append(attempts, AttemptError{Provider: p.Name, Err: err})
			continue
		}

		r.logger.Info("provider succeeded",
			zap.String("provider", p.Name),
			zap.Int("chars", len(text)))
		return text, p.Name, nil
	}

	return "", "", &ExhaustedError{Attempts: attempts}
}

// Status reports each provider's availability in registry order.
func (r *Registry) Status() []ProviderStatus {
	out := make([]ProviderStatus, len(r.providers))
	for i, p := range r.providers {
		out[i] = ProviderStatus{
			Name:      p.Name,
			EnvKey:    p.EnvKey,
			Available: p.Available(),
		}
	}
	return out
}

// Providers returns the ordered provider chain. Used by the diagnostics
// endpoint to ping each provider individually.
func (r *Registry) Providers() []Provider {
	return r.providers
}

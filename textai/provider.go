// Package textai implements the cascading multi-provider text generation
// engine. Providers are plain records tried in a fixed preference order;
// the first success wins and no later provider is attempted.
package textai

import (
	"context"
)

// Options are the generation parameters passed opaquely to providers.
type Options struct {
	// MaxTokens bounds the response length. Zero means the default (120).
	MaxTokens int
	// Temperature is the sampling temperature in [0,2]. Zero means 1.0.
	Temperature float64
}

// withDefaults fills unset options.
func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 120
	}
	if o.Temperature <= 0 {
		o.Temperature = 1.0
	}
	return o
}

// Provider is an interchangeable text generation backend, modeled as a
// record rather than an interface hierarchy so that registry order and
// behavior stay explicit and testable by substitution.
type Provider struct {
	// Name is the display name used in logs and error aggregates.
	Name string

	// EnvKey is the environment variable holding the credential, reported
	// by Status for diagnostics.
	EnvKey string

	// Available reports whether the provider's credential is configured.
	// An unavailable provider is skipped, not counted as a failure.
	Available func() bool

	// Chat performs one synchronous completion given a system instruction
	// and a user instruction.
	Chat func(ctx context.Context, system, user string, opts Options) (string, error)
}

// ProviderStatus is a diagnostic snapshot of one provider's availability.
type ProviderStatus struct {
	Name      string `json:"name"`
	EnvKey    string `json:"envKey"`
	Available bool   `json:"available"`
}

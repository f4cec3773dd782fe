package core

import (
	"errors"
)

// Sentinel errors shared across the generation pipeline. Providers signal
// ErrProviderUnavailable when their credential is absent; the dispatcher
// treats that as a skip, not a failure.
var (
	// ErrProviderUnavailable means the provider has no credential configured.
	ErrProviderUnavailable = errors.New("provider not configured")

	// ErrImageProviderUnavailable means the image backend has no credential.
	ErrImageProviderUnavailable = errors.New("image provider not configured")

	// ErrImageDecodeFailed means a source image could not be decoded.
	ErrImageDecodeFailed = errors.New("image decode failed")

	// ErrNoFrame means no frame has been generated yet for the user.
	ErrNoFrame = errors.New("no frame available")

	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("not found")
)

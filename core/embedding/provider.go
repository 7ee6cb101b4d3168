// Package embedding turns text into fixed dimension vectors. A Client wraps
// a Provider with caching, batching, bounded retries and zero vector
// fallbacks so callers always receive one usable vector per input.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Provider generates embeddings for batches of texts.
type Provider interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// ModelID identifies the underlying model and is part of cache keys.
	ModelID() string
	// Close releases provider resources.
	Close() error
}

// ProviderError describes a failed provider call. Transient errors are
// retried with backoff, permanent errors surface immediately.
type ProviderError struct {
	Operation string
	Status    int
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("embedding provider %v failed with status %v: %v", e.Operation, e.Status, e.Err)
	}
	return fmt.Sprintf("embedding provider %v failed: %v", e.Operation, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether an embedding error is worth retrying.
// Timeouts, connection failures and retryable HTTP statuses count as
// transient, everything else is treated as permanent.
func IsTransient(err error) bool {
	var providerError *ProviderError
	if errors.As(err, &providerError) {
		return providerError.Transient
	}
	var netError net.Error
	if errors.As(err, &netError) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// transientStatus reports whether an HTTP status code indicates a condition
// that may resolve on retry.
func transientStatus(status int) bool {
	return status == 408 || status == 429 || status >= 500
}

package llm

import (
	"context"
	"time"
)

// Provider is the capability contract every protocol adapter implements.
// The chat service only ever talks to this interface.
type Provider interface {
	// ProviderID returns the configured provider identity.
	ProviderID() string

	// Info returns the static self-description. No I/O, never fails.
	Info() ProviderInfo

	// ListModels returns the models the provider can serve. Adapters with a
	// live listing endpoint query it and fall back to their hardcoded
	// catalogue on transport failure; the rest return the catalogue.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Complete performs a blocking, non-streaming completion.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CompleteStream starts a streaming completion. It returns immediately
	// with a pull-based, finite, non-restartable chunk sequence; a fresh
	// call is required to retry.
	CompleteStream(ctx context.Context, req CompletionRequest) (ChunkStream, error)

	// Cancel requests best-effort cancellation of the stream identified by
	// requestID. Adapters without cancellation support silently no-op.
	Cancel(requestID string)

	// HealthCheck probes the provider with a minimal request. Probe
	// failures are captured in the HealthStatus, not returned.
	HealthCheck(ctx context.Context) HealthStatus
}

// withRetry runs call up to 1+maxRetries times, retrying only errors the
// taxonomy marks retryable and honoring rate-limit backoff hints. Streaming
// calls never go through here: streams are not restartable.
func withRetry[T any](ctx context.Context, maxRetries int, call func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; ; attempt++ {
		out, err := call()
		if err == nil {
			return out, nil
		}
		lastErr = err

		le, ok := AsError(err)
		if !ok || !le.Retryable() || attempt >= maxRetries {
			return zero, err
		}

		wait := le.RetryAfter
		if wait == 0 {
			wait = time.Duration(attempt+1) * 500 * time.Millisecond
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return zero, lastErr
		}
	}
}

package adapter

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrEmptyResponse marks a completion that transported fine but carried
	// no content. It is retried like any other failure.
	ErrEmptyResponse = goerr.New("model returned empty content")
)

const (
	// DefaultRetryAttempts is the total number of tries (1 + 2 retries)
	DefaultRetryAttempts = 3
	// DefaultRetryDelay is the fixed wait between tries. No backoff.
	DefaultRetryDelay = 2 * time.Second
)

// TextModel is the opaque text-generation service
type TextModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type retryModel struct {
	inner    TextModel
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

// WithRetry wraps a TextModel with a bounded retry policy: fixed delay,
// uniform handling of transport errors, non-2xx responses and empty content.
func WithRetry(inner TextModel, attempts int, delay time.Duration, logger *slog.Logger) TextModel {
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &retryModel{inner: inner, attempts: attempts, delay: delay, logger: logger}
}

func (x *retryModel) Complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt < x.attempts; attempt++ {
		if attempt > 0 {
			x.logger.Warn("retrying text completion",
				"attempt", attempt,
				"error", lastErr)
			select {
			case <-ctx.Done():
				return "", goerr.Wrap(ctx.Err(), "canceled while waiting to retry")
			case <-time.After(x.delay):
			}
		}

		out, err := x.inner.Complete(ctx, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}

	return "", goerr.Wrap(lastErr, "text completion failed",
		goerr.V("attempts", x.attempts))
}

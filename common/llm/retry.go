package llm

import (
	"context"
	"time"
)

type retryingCompleter struct {
	next        Completer
	maxRetries  int
	baseBackoff time.Duration
}

// WithRetry wraps c with bounded exponential backoff for retryable errors.
// Pipeline stages never retry on their own; this is opt-in per client.
func WithRetry(c Completer, maxRetries int, baseBackoff time.Duration) Completer {
	if maxRetries <= 0 {
		return c
	}
	return &retryingCompleter{next: c, maxRetries: maxRetries, baseBackoff: baseBackoff}
}

func (r *retryingCompleter) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	backoff := r.baseBackoff
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
		}

		resp, err := r.next.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsRetryable(ctx, err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (r *retryingCompleter) Model() string {
	return r.next.Model()
}

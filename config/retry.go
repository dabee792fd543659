package config

import (
	"context"
	"log"
	"time"
)

const maxRetryDelay = 30 * time.Second

// RetryDelay is the wait before the next connection attempt: 2s, 4s, 8s ... capped at 30s.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 5 {
		return maxRetryDelay
	}
	d := time.Second << attempt
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

// retryUntil calls connect until it succeeds or ctx is done.
func retryUntil(ctx context.Context, what string, connect func() error) error {
	for attempt := 1; ; attempt++ {
		err := connect()
		if err == nil {
			log.Printf("%s ready (attempt=%d)", what, attempt)
			return nil
		}
		wait := RetryDelay(attempt)
		log.Printf("%s unavailable (attempt=%d): %v; retrying in %s", what, attempt, err, wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

package provider

import (
	"fmt"
	"time"
)

const (
	// defaultMaxRetries is the default number of retry attempts
	defaultMaxRetries = 3
)

// retryWithBackoff executes fn with backoff retry logic. Rate limit and
// overload errors wait longer than ordinary transient failures (see
// getBackoffDuration). Returns the result of the first successful call or
// the last error after maxAttempts.
func retryWithBackoff[T any](maxAttempts int, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var err error
		result, err = fn()
		if err == nil {
			return result, nil
		}

		lastErr = err
		if attempt < maxAttempts {
			time.Sleep(getBackoffDuration(err, attempt))
		}
	}

	return result, fmt.Errorf("all retry attempts failed: %w", lastErr)
}

// Package retry provides bounded retry with backoff for network-fallible
// reads. Writes that run inside a store transaction must not use it; the
// store's own optimistic-concurrency retry handles those, and an outer
// loop would risk double-apply.
package retry

import (
	"context"
	"time"
)

// Do runs fn up to attempts times, doubling the delay between attempts
// starting from base. The last error is returned if every attempt fails.
// Context cancellation stops retrying immediately.
func Do(ctx context.Context, attempts int, base time.Duration, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	delay := base
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

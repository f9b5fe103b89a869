package client

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// BackoffStrategy defines how to calculate the next wait time.
type BackoffStrategy interface {
	Next(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff with jitter.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64 // 0.0 to 1.0
}

// DefaultBackoff returns Base 100ms, Max 5s, Factor 2.0, Jitter 0.2.
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Base:   100 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Next calculates the wait duration for the given attempt (0-based).
func (b *ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		return b.Base
	}

	delay := float64(b.Base)
	for i := 0; i < attempt; i++ {
		delay *= b.Factor
	}
	if delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	// delay * (1 +/- Jitter)
	if b.Jitter > 0 {
		delay += delay * (rand.Float64()*2 - 1) * b.Jitter
	}
	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}

// WaitReady pings the daemon until it answers, sleeping per strategy between
// attempts. It gives up after attempts tries or when ctx ends.
func (c *Client) WaitReady(ctx context.Context, strategy BackoffStrategy, attempts int) error {
	if strategy == nil {
		strategy = DefaultBackoff()
	}
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		_, err := c.Ping(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(strategy.Next(i)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("daemon at %s not ready after %d attempts: %w", c.endpoint, attempts, lastErr)
}

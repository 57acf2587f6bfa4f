package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	connectAttempts = 5
	connectDelay    = time.Second
)

// retry calls fn until it succeeds, doubling the pause between attempts. Backing
// services started alongside the API are often not accepting connections yet.
func retry(ctx context.Context, logger *slog.Logger, what string, fn func(ctx context.Context) error) error {
	delay := connectDelay
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == connectAttempts {
			break
		}
		logger.WarnContext(ctx, "connect failed, retrying", "target", what, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("connect %s after %d attempts: %w", what, connectAttempts, err)
}

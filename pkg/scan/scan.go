// Package scan brute forces the arbitration ids and service ids a vehicle
// network answers diagnostic requests on.
package scan

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrInterrupted   = errors.New("terminated by user")
)

// Progress topics published on the event bus.
const (
	TopicAddress     = "discovery.address"
	TopicDone        = "discovery.done"
	TopicTotal       = "discovery.total"
	TopicFound       = "discovery.found"
	TopicBlacklisted = "discovery.blacklisted"
	TopicServiceID   = "services.id"
	TopicServices    = "services.found"
)

func interrupted(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	return err
}

// interruptOf returns the abort behind err, or nil when err is an ordinary
// failure.
func interruptOf(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return interrupted(ctx.Err())
	}
	if errors.Is(err, context.Canceled) {
		return interrupted(err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

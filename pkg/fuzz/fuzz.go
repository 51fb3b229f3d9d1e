// Package fuzz drives the security access service of a UDS server: it
// searches for the session sequence that unlocks seed requests, harvests
// seeds to judge their randomness and brute forces reset to request delays
// against time based seed generators.
package fuzz

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/roffe/udsfuzz/pkg/uds"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrInterrupted   = errors.New("terminated by user")
	ErrScript        = errors.New("invalid sequence")
	// ErrStepFailed aborts the remaining steps of one iteration or pass.
	ErrStepFailed = errors.New("step failed")
)

const (
	// DefaultResetDelay is the settle time after an ECU reset.
	DefaultResetDelay = 11 * time.Millisecond
	// DefaultInterDelay is the pause after each scripted step.
	DefaultInterDelay = 100 * time.Millisecond
	// DefaultDelayIncrement is added to the reset to request delay after
	// every pass of the delay attack.
	DefaultDelayIncrement = time.Millisecond
	DefaultIterations     = 1000
)

// Progress topics published on the event bus.
const (
	TopicSequenceDepth = "sequence.depth"
	TopicSequenceHits  = "sequence.hits"
	TopicSeedLevel     = "sequence.level"
	TopicSeeds         = "seeds.captured"
	TopicIteration     = "seeds.iteration"
	TopicDelay         = "delay.ms"
	TopicPass          = "delay.pass"
)

// Client is the part of the diagnostic client the fuzzers drive.
type Client interface {
	DiagnosticSessionControl(ctx context.Context, sessionType byte) (*uds.Response, error)
	SecurityAccessRequestSeed(ctx context.Context, level byte) (*uds.Response, error)
	ECUReset(ctx context.Context, resetType byte) (*uds.Response, error)
}

type sleepFunc func(ctx context.Context, d time.Duration) error

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

func isInterrupt(err error) bool {
	return errors.Is(err, context.Canceled)
}

func interrupted(err error) error {
	if isInterrupt(err) {
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
	if isInterrupt(err) {
		return interrupted(err)
	}
	return nil
}

// Seed is the challenge returned by a seed request.
type Seed []byte

func (s Seed) String() string {
	return hex.EncodeToString(s)
}

// seedOf extracts the seed from a positive security access response, the
// echoed level is dropped.
func seedOf(resp *uds.Response) Seed {
	if len(resp.Payload) < 1 {
		return Seed{}
	}
	return Seed(append([]byte(nil), resp.Payload[1:]...))
}

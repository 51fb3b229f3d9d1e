package fuzz

import (
	"context"
	"fmt"
	"time"

	"github.com/roffe/udsfuzz/pkg/logger"
)

// stepRunner interprets a Script once.
type stepRunner struct {
	client     Client
	log        logger.Logger
	sleep      sleepFunc
	resetDelay time.Duration
	interDelay time.Duration
	// strictSession aborts the run when a session step is refused.
	strictSession bool
}

// run executes every step in order. onSeed receives each captured seed and
// returns true to stop the run. Errors wrapping ErrStepFailed abort only
// this run; context errors are returned as they are.
func (r *stepRunner) run(ctx context.Context, script Script, onSeed func(Seed) bool) (stopped bool, err error) {
	for _, st := range script {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		switch st.Kind() {
		case StepSession:
			resp, err := r.client.DiagnosticSessionControl(ctx, st.SubFunction)
			if err != nil {
				return false, r.fail(ctx, st, err)
			}
			if resp == nil || !resp.Positive {
				if r.strictSession {
					return false, fmt.Errorf("%w: unable to enter session 0x%02x: %s", ErrStepFailed, st.SubFunction, resp)
				}
				r.log.Warn("unable to enter session", "session", fmt.Sprintf("0x%02x", st.SubFunction), "response", resp.String())
			}
		case StepSeed:
			resp, err := r.client.SecurityAccessRequestSeed(ctx, st.SubFunction)
			if err != nil {
				return false, r.fail(ctx, st, err)
			}
			if resp == nil {
				r.log.Warn("invalid response", "level", fmt.Sprintf("0x%02x", st.SubFunction))
				break
			}
			if !resp.Positive {
				return false, fmt.Errorf("%w: seed request 0x%02x: %s", ErrStepFailed, st.SubFunction, resp)
			}
			if onSeed(seedOf(resp)) {
				return true, nil
			}
		case StepReset:
			if _, err := r.client.ECUReset(ctx, st.SubFunction); err != nil {
				if isInterrupt(err) {
					return false, err
				}
				r.log.Warn("ecu reset failed", "reset_type", st.SubFunction, "err", err)
			}
			if err := r.sleep(ctx, r.resetDelay); err != nil {
				return false, err
			}
		default:
			return false, fmt.Errorf("%w: %w: unknown step %s", ErrStepFailed, ErrScript, st)
		}
		if err := r.sleep(ctx, r.interDelay); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (r *stepRunner) fail(ctx context.Context, st Step, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if isInterrupt(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStepFailed, st, err)
}

// reset issues an ECU reset and waits delay. A failed reset is only logged.
func reset(ctx context.Context, c Client, log logger.Logger, sl sleepFunc, resetType byte, delay time.Duration) error {
	if _, err := c.ECUReset(ctx, resetType); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("ecu reset failed", "reset_type", resetType, "err", err)
	}
	return sl(ctx, delay)
}

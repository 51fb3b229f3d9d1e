package fuzz

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roffe/udsfuzz/pkg/ebus"
	"github.com/roffe/udsfuzz/pkg/logger"
)

type DelayConfig struct {
	Script Script
	// Target is the seed to reproduce.
	Target    []byte
	ResetType byte
	// InitialDelay is the reset to request delay of the first pass; every
	// following pass waits Increment longer.
	InitialDelay time.Duration
	Increment    time.Duration
	// MaxPasses bounds the attack, zero runs until the target is found.
	MaxPasses int
	Events    *ebus.Bus
	Logger    logger.Logger
}

func (c DelayConfig) Validate() error {
	if !c.Script.HasSeedStep() {
		return fmt.Errorf("%w: sequence %q has no seed request", ErrInvalidConfig, c.Script)
	}
	if len(c.Target) == 0 {
		return fmt.Errorf("%w: empty target seed", ErrInvalidConfig)
	}
	if c.ResetType == 0 {
		return fmt.Errorf("%w: reset type 0x00 is reserved", ErrInvalidConfig)
	}
	if c.InitialDelay < 0 {
		return fmt.Errorf("%w: delay must not be negative", ErrInvalidConfig)
	}
	if c.Increment <= 0 {
		return fmt.Errorf("%w: increment must be positive", ErrInvalidConfig)
	}
	if c.MaxPasses < 0 {
		return fmt.Errorf("%w: max passes must not be negative", ErrInvalidConfig)
	}
	return nil
}

type DelayResult struct {
	Found bool
	// Delay reproduced the target seed when Found is set, otherwise it is
	// the delay of the last pass.
	Delay  time.Duration
	Passes int
	Seeds  SeedLog
	// SeedDelays holds the delay each seed in Seeds was captured with.
	SeedDelays []time.Duration
}

// DelayAttacker searches for the reset to request delay that makes a time
// based seed generator return Target.
type DelayAttacker struct {
	client Client
	cfg    DelayConfig
	log    logger.Logger
	sleep  sleepFunc
	now    func() time.Time
}

func NewDelayAttacker(client Client, cfg DelayConfig) (*DelayAttacker, error) {
	if cfg.Increment == 0 {
		cfg.Increment = DefaultDelayIncrement
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &DelayAttacker{
		client: client,
		cfg:    cfg,
		log:    logger.Or(cfg.Logger).With("scanner", "delay"),
		sleep:  sleep,
		now:    time.Now,
	}, nil
}

// DelayFor returns the delay used on pass n, counted from zero.
func (d *DelayAttacker) DelayFor(pass int) time.Duration {
	return d.cfg.InitialDelay + time.Duration(pass)*d.cfg.Increment
}

// Run resets the ECU, waits the current delay and runs the script, once per
// pass, until a seed equals Target. A failed step ends its pass only.
func (d *DelayAttacker) Run(ctx context.Context) (*DelayResult, error) {
	res := &DelayResult{}
	runner := &stepRunner{
		client:        d.client,
		log:           d.log,
		sleep:         d.sleep,
		strictSession: true,
	}
	for pass := 0; d.cfg.MaxPasses == 0 || pass < d.cfg.MaxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return res, interrupted(err)
		}
		delay := d.DelayFor(pass)
		res.Delay = delay
		res.Passes = pass + 1
		d.cfg.Events.Publish(TopicPass, float64(pass+1))
		d.cfg.Events.Publish(TopicDelay, float64(delay)/float64(time.Millisecond))

		runner.resetDelay = delay
		if err := reset(ctx, d.client, d.log, d.sleep, d.cfg.ResetType, delay); err != nil {
			return res, interrupted(err)
		}
		found, err := runner.run(ctx, d.cfg.Script, func(s Seed) bool {
			res.Seeds.add(s, d.now())
			res.SeedDelays = append(res.SeedDelays, delay)
			d.cfg.Events.Publish(TopicSeeds, float64(res.Seeds.Len()))
			d.log.Debug("seed received", "seed", s.String(), "delay", delay)
			return bytes.Equal(s, d.cfg.Target)
		})
		if found {
			res.Found = true
			d.log.Info("target seed found", "delay", delay, "passes", res.Passes)
			return res, nil
		}
		if err != nil {
			if !errors.Is(err, ErrStepFailed) {
				return res, interrupted(err)
			}
			d.log.Warn("pass aborted", "pass", pass+1, "delay", delay, "err", err)
		}
	}
	return res, nil
}

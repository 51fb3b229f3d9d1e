package fuzz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roffe/udsfuzz/pkg/ebus"
	"github.com/roffe/udsfuzz/pkg/logger"
)

// SeedLog is the ordered list of captured seeds.
type SeedLog struct {
	Seeds []Seed
	// Times holds the capture time of each seed.
	Times []time.Time
}

func (l *SeedLog) add(s Seed, at time.Time) {
	l.Seeds = append(l.Seeds, s)
	l.Times = append(l.Times, at)
}

func (l *SeedLog) Len() int {
	return len(l.Seeds)
}

type Duplicate struct {
	Seed  string
	Count int
}

// Duplicates returns every seed value captured more than once, in order of
// first capture.
func (l *SeedLog) Duplicates() []Duplicate {
	counts := make(map[string]int, len(l.Seeds))
	var order []string
	for _, s := range l.Seeds {
		k := s.String()
		if counts[k] == 0 {
			order = append(order, k)
		}
		counts[k]++
	}
	var out []Duplicate
	for _, k := range order {
		if counts[k] > 1 {
			out = append(out, Duplicate{Seed: k, Count: counts[k]})
		}
	}
	return out
}

type CollectorConfig struct {
	Script     Script
	Iterations int
	// ResetType is used for the resets between iterations.
	ResetType byte
	// ResetEachIteration resets before every iteration instead of once
	// before the run.
	ResetEachIteration bool
	ResetDelay         time.Duration
	InterDelay         time.Duration
	Events             *ebus.Bus
	Logger             logger.Logger
}

func (c CollectorConfig) Validate() error {
	if len(c.Script) == 0 {
		return fmt.Errorf("%w: empty sequence", ErrInvalidConfig)
	}
	if c.ResetType == 0 {
		return fmt.Errorf("%w: reset type 0x00 is reserved", ErrInvalidConfig)
	}
	if c.Iterations < 0 {
		return fmt.Errorf("%w: iterations must not be negative", ErrInvalidConfig)
	}
	if c.ResetDelay < 0 || c.InterDelay < 0 {
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Collector runs a script repeatedly and records every seed it yields.
type Collector struct {
	client Client
	cfg    CollectorConfig
	log    logger.Logger
	sleep  sleepFunc
	now    func() time.Time
}

func NewCollector(client Client, cfg CollectorConfig) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Collector{
		client: client,
		cfg:    cfg,
		log:    logger.Or(cfg.Logger).With("scanner", "seed_randomness"),
		sleep:  sleep,
		now:    time.Now,
	}, nil
}

// Run executes the script Iterations times. A failed step ends its
// iteration only. On interrupt the seeds captured so far are returned with
// an error wrapping ErrInterrupted.
func (c *Collector) Run(ctx context.Context) (*SeedLog, error) {
	seeds := &SeedLog{}
	if c.cfg.Iterations == 0 {
		return seeds, nil
	}
	runner := &stepRunner{
		client:     c.client,
		log:        c.log,
		sleep:      c.sleep,
		resetDelay: c.cfg.ResetDelay,
		interDelay: c.cfg.InterDelay,
	}

	if err := reset(ctx, c.client, c.log, c.sleep, c.cfg.ResetType, c.cfg.ResetDelay); err != nil {
		return seeds, interrupted(err)
	}
	for i := 0; i < c.cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return seeds, interrupted(err)
		}
		c.cfg.Events.Publish(TopicIteration, float64(i+1))
		if c.cfg.ResetEachIteration && i > 0 {
			if err := reset(ctx, c.client, c.log, c.sleep, c.cfg.ResetType, c.cfg.ResetDelay); err != nil {
				return seeds, interrupted(err)
			}
		}
		_, err := runner.run(ctx, c.cfg.Script, func(s Seed) bool {
			seeds.add(s, c.now())
			c.log.Debug("seed received", "seed", s.String(), "total", seeds.Len())
			c.cfg.Events.Publish(TopicSeeds, float64(seeds.Len()))
			return false
		})
		if err != nil {
			if !errors.Is(err, ErrStepFailed) {
				return seeds, interrupted(err)
			}
			c.log.Warn("iteration aborted", "iteration", i+1, "err", err)
		}
	}
	return seeds, nil
}

package fuzz

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/roffe/udsfuzz/pkg/ebus"
	"github.com/roffe/udsfuzz/pkg/logger"
	"github.com/roffe/udsfuzz/pkg/uds"
)

// Seed requests use odd levels, the even ones are the matching send key
// requests.
const (
	MinSeedLevel  = 1
	MaxSeedLevel  = 65
	seedLevelStep = 2
)

// SeedLevels returns the levels the probe tries, in order.
func SeedLevels() []byte {
	var out []byte
	for l := MinSeedLevel; l <= MaxSeedLevel; l += seedLevelStep {
		out = append(out, byte(l))
	}
	return out
}

// Hit is a session sequence after which a seed request was accepted.
type Hit struct {
	Sequence []Step
	Level    byte
}

func (h Hit) String() string {
	seq := make([]string, 0, len(h.Sequence)+1)
	for _, st := range h.Sequence {
		seq = append(seq, st.String())
	}
	seq = append(seq, Step{Service: uds.SECURITY_ACCESS, SubFunction: h.Level}.String())
	return fmt.Sprint(seq)
}

type SeedProbeConfig struct {
	// ResetType is sent before every seed request. Zero disables resets.
	ResetType  byte
	ResetDelay time.Duration
	// ContinueAfterHit keeps probing after the first accepted level.
	ContinueAfterHit bool
	Events           *ebus.Bus
	Logger           logger.Logger
}

// SeedProbe tries every seed level in the current session.
type SeedProbe struct {
	client Client
	cfg    SeedProbeConfig
	log    logger.Logger
	sleep  sleepFunc
}

func NewSeedProbe(client Client, cfg SeedProbeConfig) (*SeedProbe, error) {
	if cfg.ResetDelay < 0 {
		return nil, fmt.Errorf("%w: reset delay must not be negative", ErrInvalidConfig)
	}
	return &SeedProbe{
		client: client,
		cfg:    cfg,
		log:    logger.Or(cfg.Logger).With("scanner", "seed_probe"),
		sleep:  sleep,
	}, nil
}

// accepted reports whether a seed response proves the level exists. A
// response pending answer counts, the seed is merely deferred.
func accepted(resp *uds.Response) bool {
	return resp != nil && (resp.Positive || resp.Pending())
}

// Run probes every level after the session sequence seq. stop is set when
// a hit was found and ContinueAfterHit is off.
func (p *SeedProbe) Run(ctx context.Context, seq []Step) (hits []Hit, stop bool, err error) {
	for _, level := range SeedLevels() {
		if err := ctx.Err(); err != nil {
			return hits, false, err
		}
		p.cfg.Events.Publish(TopicSeedLevel, float64(level))
		if p.cfg.ResetType != 0 {
			if err := reset(ctx, p.client, p.log, p.sleep, p.cfg.ResetType, p.cfg.ResetDelay); err != nil {
				return hits, false, err
			}
		}
		resp, err := p.client.SecurityAccessRequestSeed(ctx, level)
		if err != nil {
			if ctx.Err() != nil {
				return hits, false, ctx.Err()
			}
			return hits, false, fmt.Errorf("seed level 0x%02x: %w", level, err)
		}
		if !accepted(resp) {
			continue
		}
		h := Hit{Sequence: slices.Clone(seq), Level: level}
		p.log.Info("sequence found", "sequence", h.String(), "response", resp.String())
		hits = append(hits, h)
		if !p.cfg.ContinueAfterHit {
			return hits, true, nil
		}
	}
	return hits, false, nil
}

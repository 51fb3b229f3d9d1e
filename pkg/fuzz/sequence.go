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

// visitedSet is a set of session types. It is a value type, adding to it
// yields a new set and leaves the original untouched.
type visitedSet [4]uint64

func (v visitedSet) has(b byte) bool {
	return v[b>>6]&(1<<(b&63)) != 0
}

func (v visitedSet) with(b byte) visitedSet {
	v[b>>6] |= 1 << (b & 63)
	return v
}

// frame is one node of the depth first search. visited and path belong to
// the frame and are never modified after it is pushed.
type frame struct {
	visited visitedSet
	path    []Step
	next    int
}

type SequenceConfig struct {
	// ResetType, when set, resets the ECU before every seed request.
	ResetType  byte
	ResetDelay time.Duration
	// ContinueAfterHit searches the whole tree instead of stopping at the
	// first sequence that yields a seed.
	ContinueAfterHit bool
	// OnSequence is called for every newly reached session sequence before
	// its seed levels are probed.
	OnSequence func(seq []Step)
	Events     *ebus.Bus
	Logger     logger.Logger
}

// SequenceFuzzer searches for session sequences that unlock seed requests.
// Every positive session transition opens a node; the seed levels are probed
// there and the search descends. Sub-functions already used on the path are
// skipped, siblings may reuse them.
type SequenceFuzzer struct {
	client Client
	cfg    SequenceConfig
	probe  *SeedProbe
	log    logger.Logger
}

func NewSequenceFuzzer(client Client, cfg SequenceConfig) (*SequenceFuzzer, error) {
	log := logger.Or(cfg.Logger).With("scanner", "session_sequence")
	probe, err := NewSeedProbe(client, SeedProbeConfig{
		ResetType:        cfg.ResetType,
		ResetDelay:       cfg.ResetDelay,
		ContinueAfterHit: cfg.ContinueAfterHit,
		Events:           cfg.Events,
		Logger:           cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &SequenceFuzzer{
		client: client,
		cfg:    cfg,
		probe:  probe,
		log:    log,
	}, nil
}

// Run walks the search tree. The hits found so far are returned on
// interrupt together with an error wrapping ErrInterrupted.
func (f *SequenceFuzzer) Run(ctx context.Context) ([]Hit, error) {
	var hits []Hit
	stack := []*frame{{next: 1}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return hits, interrupted(err)
		}
		top := stack[len(stack)-1]
		if top.next > 0xFF {
			stack = stack[:len(stack)-1]
			continue
		}
		st := byte(top.next)
		top.next++
		if top.visited.has(st) {
			continue
		}

		resp, err := f.client.DiagnosticSessionControl(ctx, st)
		if err != nil {
			if ierr := interruptOf(ctx, err); ierr != nil {
				return hits, ierr
			}
			f.log.Warn("branch aborted", "sequence", pathString(top.path), "session", fmt.Sprintf("0x%02x", st), "err", err)
			stack = stack[:len(stack)-1]
			continue
		}
		if resp == nil || !resp.Positive {
			continue
		}

		child := &frame{
			visited: top.visited.with(st),
			path:    append(slices.Clone(top.path), Step{Service: uds.DIAGNOSTIC_SESSION_CONTROL, SubFunction: st}),
			next:    1,
		}
		f.cfg.Events.Publish(TopicSequenceDepth, float64(len(child.path)))
		if f.cfg.OnSequence != nil {
			f.cfg.OnSequence(slices.Clone(child.path))
		}
		found, stop, err := f.probe.Run(ctx, child.path)
		hits = append(hits, found...)
		if len(found) > 0 {
			f.cfg.Events.Publish(TopicSequenceHits, float64(len(hits)))
		}
		if err != nil {
			if ierr := interruptOf(ctx, err); ierr != nil {
				return hits, ierr
			}
			f.log.Warn("branch aborted", "sequence", pathString(child.path), "err", err)
			continue
		}
		if stop {
			return hits, nil
		}
		stack = append(stack, child)
	}
	return hits, nil
}

func pathString(p []Step) string {
	return fmt.Sprint(p)
}

package scan

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/roffe/udsfuzz/pkg/canbus"
	"github.com/roffe/udsfuzz/pkg/ebus"
	"github.com/roffe/udsfuzz/pkg/isotp"
	"github.com/roffe/udsfuzz/pkg/logger"
	"github.com/roffe/udsfuzz/pkg/uds"
)

const (
	MaxStandardID = 0x7FF
	MaxExtendedID = 0x1FFFFFFF

	DefaultDiscoveryDelay = 10 * time.Millisecond

	blacklistPoll = 100 * time.Millisecond
)

// Marker bytes at data[1] of a frame that looks like a session control
// response.
var sessionControlResponses = []byte{
	uds.ResponseID(uds.DIAGNOSTIC_SESSION_CONTROL),
	uds.NEGATIVE_RESPONSE,
}

func isSessionControlResponse(data []byte) bool {
	return len(data) >= 2 && slices.Contains(sessionControlResponses, data[1])
}

// DefaultMax returns the top of the standard id space, or of the extended
// one when min is already beyond it.
func DefaultMax(min uint32) uint32 {
	if min > MaxStandardID {
		return MaxExtendedID
	}
	return MaxStandardID
}

type AddressPair struct {
	Request  uint32
	Response uint32
}

func (p AddressPair) String() string {
	return fmt.Sprintf("0x%08x -> 0x%08x", p.Request, p.Response)
}

type DiscoveryConfig struct {
	Min uint32
	Max uint32
	// Blacklist holds response ids never reported.
	Blacklist []uint32
	// AutoBlacklist is how long to listen for ids to blacklist before
	// probing. Zero disables the pre-scan.
	AutoBlacklist time.Duration
	// Delay is how long to listen for answers after each probe.
	Delay  time.Duration
	Events *ebus.Bus
	Logger logger.Logger
}

func (c DiscoveryConfig) Validate() error {
	if c.Max < c.Min {
		return fmt.Errorf("%w: max must not be smaller than min, got min 0x%x max 0x%x", ErrInvalidConfig, c.Min, c.Max)
	}
	if c.Max > MaxExtendedID {
		return fmt.Errorf("%w: max 0x%x outside the 29 bit id space", ErrInvalidConfig, c.Max)
	}
	if c.AutoBlacklist < 0 {
		return fmt.Errorf("%w: auto blacklist duration must not be negative, got %s", ErrInvalidConfig, c.AutoBlacklist)
	}
	if c.Delay < 0 {
		return fmt.Errorf("%w: delay must not be negative, got %s", ErrInvalidConfig, c.Delay)
	}
	return nil
}

// Discovery is the arbitration id scanner.
type Discovery struct {
	bus       canbus.Bus
	cfg       DiscoveryConfig
	log       logger.Logger
	blacklist map[uint32]struct{}
}

func NewDiscovery(bus canbus.Bus, cfg DiscoveryConfig) (*Discovery, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Discovery{
		bus:       bus,
		cfg:       cfg,
		log:       logger.Or(cfg.Logger).With("scanner", "discovery"),
		blacklist: make(map[uint32]struct{}, len(cfg.Blacklist)),
	}
	for _, id := range cfg.Blacklist {
		d.blacklist[id] = struct{}{}
	}
	return d, nil
}

// Blacklist returns the current blacklist in ascending order.
func (d *Discovery) Blacklist() []uint32 {
	out := make([]uint32, 0, len(d.blacklist))
	for id := range d.blacklist {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// AutoBlacklist listens passively for duration and returns, in ascending
// order, every id whose frames look like session control responses.
func AutoBlacklist(ctx context.Context, bus canbus.Bus, duration time.Duration, events *ebus.Bus) ([]uint32, error) {
	found := make(map[uint32]struct{})
	collect := func() []uint32 {
		out := make([]uint32, 0, len(found))
		for id := range found {
			out = append(out, id)
		}
		slices.Sort(out)
		return out
	}
	end := time.Now().Add(duration)
	for {
		left := time.Until(end)
		if left <= 0 {
			return collect(), nil
		}
		f, err := bus.Recv(ctx, min(left, blacklistPoll))
		if err != nil {
			return collect(), interrupted(err)
		}
		if f == nil || !isSessionControlResponse(f.Data) {
			continue
		}
		if _, seen := found[f.ID]; !seen {
			found[f.ID] = struct{}{}
			events.Publish(TopicBlacklisted, float64(len(found)))
		}
	}
}

// Run probes every request id in [Min, Max] with a default session request
// and returns every answering pair. It never stops early; an id may yield
// several pairs. On interrupt the pairs found so far are returned together
// with an error wrapping ErrInterrupted.
func (d *Discovery) Run(ctx context.Context) ([]AddressPair, error) {
	if d.cfg.AutoBlacklist > 0 {
		d.log.Info("scanning for arbitration ids to blacklist", "duration", d.cfg.AutoBlacklist)
		ids, err := AutoBlacklist(ctx, d.bus, d.cfg.AutoBlacklist, d.cfg.Events)
		for _, id := range ids {
			d.blacklist[id] = struct{}{}
		}
		d.log.Info("auto blacklist done", "detected", len(ids))
		if err != nil {
			return nil, err
		}
	}

	frames, err := isotp.Segment(uds.EncodeRequest(uds.DIAGNOSTIC_SESSION_CONTROL, uds.DEFAULT_SESSION))
	if err != nil {
		return nil, err
	}

	var found []AddressPair
	total := uint64(d.cfg.Max) - uint64(d.cfg.Min) + 1
	d.cfg.Events.Publish(TopicTotal, float64(total))
	for id := uint64(d.cfg.Min); id <= uint64(d.cfg.Max); id++ {
		if err := ctx.Err(); err != nil {
			return found, interrupted(err)
		}
		reqID := uint32(id)
		d.cfg.Events.Publish(TopicAddress, float64(reqID))
		d.cfg.Events.Publish(TopicDone, float64(id-uint64(d.cfg.Min)+1))

		if err := d.bus.Send(ctx, canbus.Frame{ID: reqID, Data: frames[0]}); err != nil {
			if ierr := interruptOf(ctx, err); ierr != nil {
				return found, ierr
			}
			d.log.Warn("request failed", "id", fmt.Sprintf("0x%03x", reqID), "err", err)
			continue
		}
		pairs, err := d.listen(ctx, reqID)
		found = append(found, pairs...)
		if len(pairs) > 0 {
			d.cfg.Events.Publish(TopicFound, float64(len(found)))
		}
		if err != nil {
			return found, interrupted(err)
		}
	}
	return found, nil
}

func (d *Discovery) listen(ctx context.Context, reqID uint32) ([]AddressPair, error) {
	var pairs []AddressPair
	end := time.Now().Add(d.cfg.Delay)
	for {
		left := time.Until(end)
		if left <= 0 {
			return pairs, nil
		}
		f, err := d.bus.Recv(ctx, left)
		if err != nil {
			return pairs, err
		}
		if f == nil {
			return pairs, nil
		}
		if _, blocked := d.blacklist[f.ID]; blocked {
			continue
		}
		if !isSessionControlResponse(f.Data) {
			continue
		}
		p := AddressPair{Request: reqID, Response: f.ID}
		d.log.Info("found diagnostics", "request_id", fmt.Sprintf("0x%04x", p.Request), "response_id", fmt.Sprintf("0x%04x", p.Response))
		pairs = append(pairs, p)
	}
}

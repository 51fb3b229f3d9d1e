// Package ecusim simulates a UDS server on a canbus.Bus. It answers
// session control, ECU reset, security access seed requests and tester
// present, and hands out seeds derived from the time since the last reset.
package ecusim

import (
	"context"
	"encoding/binary"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/roffe/udsfuzz/pkg/canbus"
	"github.com/roffe/udsfuzz/pkg/isotp"
	"github.com/roffe/udsfuzz/pkg/logger"
	"github.com/roffe/udsfuzz/pkg/uds"
)

const pollInterval = 100 * time.Millisecond

type Config struct {
	RequestID  uint32
	ResponseID uint32
	// Services answered positively besides the ones the simulator
	// implements itself.
	Services []byte
	// Sessions lists which session types can be entered from a session.
	// The default session can always be entered.
	Sessions map[byte][]byte
	// SeedLevels lists the security access levels that return a seed in a
	// session, PendingLevels the ones answered with response pending.
	SeedLevels    map[byte][]byte
	PendingLevels map[byte][]byte
	// Seed derives a seed from the time since the last reset and the number
	// of seeds issued since then.
	Seed func(sinceReset time.Duration, count int) []byte
	// Chatter is broadcast once when Run starts.
	Chatter []canbus.Frame
	Logger  logger.Logger
}

// Default is a gateway style ECU at 0x7E0/0x7E8 that needs the extended
// session before it hands out level 1 seeds.
func Default() Config {
	return Config{
		RequestID:  0x7E0,
		ResponseID: 0x7E8,
		Services:   []byte{uds.READ_DATA_BY_IDENTIFIER, uds.READ_DTC_INFORMATION, uds.ROUTINE_CONTROL},
		Sessions: map[byte][]byte{
			uds.DEFAULT_SESSION:             {uds.EXTENDED_DIAGNOSTIC_SESSION},
			uds.EXTENDED_DIAGNOSTIC_SESSION: {uds.PROGRAMMING_SESSION},
		},
		SeedLevels: map[byte][]byte{
			uds.EXTENDED_DIAGNOSTIC_SESSION: {0x01},
			uds.PROGRAMMING_SESSION:         {0x01, 0x11},
		},
	}
}

// TimeSeed is a weak generator returning the milliseconds since reset.
func TimeSeed(since time.Duration, _ int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(since/time.Millisecond))
	return b
}

type ECU struct {
	cfg Config
	bus canbus.Bus
	log logger.Logger
	now func() time.Time

	mu      sync.Mutex
	session byte
	resetAt time.Time
	seeds   int
	resets  int
}

func New(bus canbus.Bus, cfg Config) *ECU {
	if cfg.Seed == nil {
		cfg.Seed = TimeSeed
	}
	e := &ECU{
		cfg:     cfg,
		bus:     bus,
		log:     logger.Or(cfg.Logger).With("ecu", "sim"),
		now:     time.Now,
		session: uds.DEFAULT_SESSION,
	}
	e.resetAt = e.now()
	return e
}

func (e *ECU) Session() byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

func (e *ECU) Resets() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resets
}

// Run serves requests until ctx is done or the bus is closed.
func (e *ECU) Run(ctx context.Context) error {
	for _, f := range e.cfg.Chatter {
		if err := e.bus.Send(ctx, f); err != nil {
			return err
		}
	}
	for {
		f, err := e.bus.Recv(ctx, pollInterval)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, canbus.ErrClosed) {
				return nil
			}
			return err
		}
		if f == nil || f.ID != e.cfg.RequestID {
			continue
		}
		t, err := isotp.Type(f.Data)
		if err != nil || t != isotp.SingleFrame {
			continue
		}
		n := int(f.Data[0] & 0x0F)
		if n == 0 || n > len(f.Data)-1 {
			continue
		}
		resp := e.Handle(f.Data[1 : 1+n])
		if resp == nil {
			continue
		}
		if err := e.reply(ctx, resp); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, canbus.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func (e *ECU) reply(ctx context.Context, msg []byte) error {
	frames, err := isotp.Segment(msg)
	if err != nil {
		return err
	}
	if err := e.bus.Send(ctx, canbus.Frame{ID: e.cfg.ResponseID, Data: frames[0]}); err != nil {
		return err
	}
	if len(frames) == 1 {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		f, err := e.bus.Recv(ctx, time.Until(deadline))
		if err != nil {
			return err
		}
		if f == nil {
			break
		}
		if f.ID != e.cfg.RequestID {
			continue
		}
		if _, _, _, err := isotp.ParseFlowControl(f.Data); err != nil {
			continue
		}
		for _, cf := range frames[1:] {
			if err := e.bus.Send(ctx, canbus.Frame{ID: e.cfg.ResponseID, Data: cf}); err != nil {
				return err
			}
		}
		return nil
	}
	e.log.Warn("no flow control from tester")
	return nil
}

// Handle answers one request message. A nil result means no answer.
func (e *ECU) Handle(req []byte) []byte {
	if len(req) == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	sid := req[0]
	switch sid {
	case uds.DIAGNOSTIC_SESSION_CONTROL:
		if len(req) != 2 {
			return negative(sid, uds.INCORRECT_MESSAGE_LENGTH_OR_INVALID_FORMAT)
		}
		st := req[1]
		if st != uds.DEFAULT_SESSION && !slices.Contains(e.cfg.Sessions[e.session], st) {
			return negative(sid, uds.SUB_FUNCTION_NOT_SUPPORTED)
		}
		e.session = st
		return []byte{uds.ResponseID(sid), st, 0x00, 0x32, 0x01, 0xF4}
	case uds.ECU_RESET:
		if len(req) != 2 {
			return negative(sid, uds.INCORRECT_MESSAGE_LENGTH_OR_INVALID_FORMAT)
		}
		rt := req[1] &^ uds.SUPPRESS_POSITIVE_RESPONSE
		if rt < uds.HARD_RESET || rt > uds.DISABLE_RAPID_POWER_SHUTDOWN {
			return negative(sid, uds.SUB_FUNCTION_NOT_SUPPORTED)
		}
		e.session = uds.DEFAULT_SESSION
		e.resetAt = e.now()
		e.seeds = 0
		e.resets++
		if req[1]&uds.SUPPRESS_POSITIVE_RESPONSE != 0 {
			return nil
		}
		return []byte{uds.ResponseID(sid), rt}
	case uds.SECURITY_ACCESS:
		if len(req) < 2 {
			return negative(sid, uds.INCORRECT_MESSAGE_LENGTH_OR_INVALID_FORMAT)
		}
		level := req[1]
		if level%2 == 0 {
			return negative(sid, uds.INVALID_KEY)
		}
		if slices.Contains(e.cfg.PendingLevels[e.session], level) {
			return negative(sid, uds.REQUEST_CORRECTLY_RECEIVED_RESPONSE_PENDING)
		}
		if !slices.Contains(e.cfg.SeedLevels[e.session], level) {
			return negative(sid, uds.SUB_FUNCTION_NOT_SUPPORTED_IN_ACTIVE_SESSION)
		}
		seed := e.cfg.Seed(e.now().Sub(e.resetAt), e.seeds)
		e.seeds++
		return append([]byte{uds.ResponseID(sid), level}, seed...)
	case uds.TESTER_PRESENT:
		if len(req) != 2 {
			return negative(sid, uds.INCORRECT_MESSAGE_LENGTH_OR_INVALID_FORMAT)
		}
		if req[1]&uds.SUPPRESS_POSITIVE_RESPONSE != 0 {
			return nil
		}
		return []byte{uds.ResponseID(sid), 0x00}
	}
	if slices.Contains(e.cfg.Services, sid) {
		return []byte{uds.ResponseID(sid)}
	}
	return negative(sid, uds.SERVICE_NOT_SUPPORTED)
}

func negative(sid, nrc byte) []byte {
	return []byte{uds.NEGATIVE_RESPONSE, sid, nrc}
}

// Package diag implements a UDS client bound to one request/response
// arbitration id pair on a canbus.Bus.
package diag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roffe/udsfuzz/pkg/canbus"
	"github.com/roffe/udsfuzz/pkg/isotp"
	"github.com/roffe/udsfuzz/pkg/logger"
	"github.com/roffe/udsfuzz/pkg/uds"
)

const DefaultTimeout = 250 * time.Millisecond

var ErrFlowControl = errors.New("flow control")

type Client struct {
	mu             sync.Mutex
	bus            canbus.Bus
	requestID      uint32
	responseID     uint32
	defaultTimeout time.Duration
	log            logger.Logger
}

type Option func(*Client)

// WithTimeout sets how long Request waits for the response.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.defaultTimeout = d
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

func New(bus canbus.Bus, requestID, responseID uint32, opts ...Option) *Client {
	c := &Client{
		bus:            bus,
		requestID:      requestID,
		responseID:     responseID,
		defaultTimeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	c.log = logger.Or(c.log).With("request_id", fmt.Sprintf("0x%X", requestID), "response_id", fmt.Sprintf("0x%X", responseID))
	return c
}

func (c *Client) RequestID() uint32 {
	return c.requestID
}

func (c *Client) ResponseID() uint32 {
	return c.responseID
}

// Send transmits already segmented frames to dst.
func (c *Client) Send(ctx context.Context, frames [][]byte, dst uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendFrames(ctx, frames, dst)
}

// Recv returns the next raw frame on the bus, or nil after timeout.
func (c *Client) Recv(ctx context.Context, timeout time.Duration) (*canbus.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bus.Recv(ctx, timeout)
}

// Request sends sid and payload and waits for the matching response. A nil
// response with a nil error means nothing answered in time. A response
// pending NRC is returned to the caller as is.
func (c *Client) Request(ctx context.Context, sid byte, payload ...byte) (*uds.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	frames, err := isotp.Segment(uds.EncodeRequest(sid, payload...))
	if err != nil {
		return nil, err
	}
	c.log.Debug("request", "service", uds.ServiceName(sid), "payload", uds.Hex(payload))
	if err := c.sendFrames(ctx, frames, c.requestID); err != nil {
		return nil, err
	}
	return c.await(ctx, sid, c.defaultTimeout)
}

func (c *Client) sendFrames(ctx context.Context, frames [][]byte, dst uint32) error {
	if err := c.bus.Send(ctx, canbus.Frame{ID: dst, Data: frames[0]}); err != nil {
		return err
	}
	if len(frames) == 1 {
		return nil
	}

	var blockSize byte
	var separation time.Duration
	sent := 0
	for _, f := range frames[1:] {
		if sent == 0 || (blockSize > 0 && sent%int(blockSize) == 0) {
			bs, st, err := c.waitFlowControl(ctx)
			if err != nil {
				return err
			}
			blockSize, separation = bs, st
		}
		if separation > 0 {
			time.Sleep(separation)
		}
		if err := c.bus.Send(ctx, canbus.Frame{ID: dst, Data: f}); err != nil {
			return err
		}
		sent++
	}
	return nil
}

func (c *Client) waitFlowControl(ctx context.Context) (byte, time.Duration, error) {
	deadline := time.Now().Add(c.defaultTimeout)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return 0, 0, fmt.Errorf("%w: timeout", ErrFlowControl)
		}
		f, err := c.bus.Recv(ctx, left)
		if err != nil {
			return 0, 0, err
		}
		if f == nil || f.ID != c.responseID {
			continue
		}
		status, bs, st, err := isotp.ParseFlowControl(f.Data)
		if err != nil {
			continue
		}
		switch status {
		case isotp.FlowContinueToSend:
			return bs, st, nil
		case isotp.FlowWait:
			deadline = time.Now().Add(c.defaultTimeout)
		default:
			return 0, 0, fmt.Errorf("%w: receiver overflow", ErrFlowControl)
		}
	}
}

// await reads frames from the response id until a response to sid is
// complete or timeout expires.
func (c *Client) await(ctx context.Context, sid byte, timeout time.Duration) (*uds.Response, error) {
	var r isotp.Reassembler
	deadline := time.Now().Add(timeout)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return nil, nil
		}
		f, err := c.bus.Recv(ctx, left)
		if err != nil {
			return nil, err
		}
		if f == nil {
			return nil, nil
		}
		if f.ID != c.responseID {
			continue
		}
		msg, needFC, err := r.Feed(f.Data)
		if err != nil {
			c.log.Debug("dropping frame", "frame", f.String(), "err", err)
			continue
		}
		if needFC {
			if err := c.bus.Send(ctx, canbus.Frame{ID: c.requestID, Data: isotp.FlowControl(isotp.FlowContinueToSend, 0, 0)}); err != nil {
				return nil, err
			}
			continue
		}
		if msg == nil {
			continue
		}
		resp, err := uds.DecodeResponse(msg)
		if err != nil {
			c.log.Debug("dropping message", "data", uds.Hex(msg), "err", err)
			continue
		}
		if resp.ServiceID != sid {
			c.log.Debug("unrelated response", "response", resp.String())
			continue
		}
		c.log.Debug("response", "response", resp.String())
		return resp, nil
	}
}

// DiagnosticSessionControl requests a change to session type st.
func (c *Client) DiagnosticSessionControl(ctx context.Context, st byte) (*uds.Response, error) {
	return c.Request(ctx, uds.DIAGNOSTIC_SESSION_CONTROL, st)
}

// SecurityAccessRequestSeed asks for the seed of an access level. Seed
// levels are odd.
func (c *Client) SecurityAccessRequestSeed(ctx context.Context, level byte) (*uds.Response, error) {
	return c.Request(ctx, uds.SECURITY_ACCESS, level)
}

func (c *Client) ECUReset(ctx context.Context, resetType byte) (*uds.Response, error) {
	return c.Request(ctx, uds.ECU_RESET, resetType)
}

// TesterPresent sends a tester present. With suppress set the server does
// not answer and the call returns as soon as the frame is sent.
func (c *Client) TesterPresent(ctx context.Context, suppress bool) (*uds.Response, error) {
	if !suppress {
		return c.Request(ctx, uds.TESTER_PRESENT, 0x00)
	}
	frames, err := isotp.Segment(uds.EncodeRequest(uds.TESTER_PRESENT, uds.SUPPRESS_POSITIVE_RESPONSE))
	if err != nil {
		return nil, err
	}
	return nil, c.Send(ctx, frames, c.requestID)
}

// Close releases the bus.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bus.Close()
}

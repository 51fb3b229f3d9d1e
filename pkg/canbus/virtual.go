package canbus

import (
	"context"
	"sync"
	"time"
)

const virtualQueueSize = 4096

// Virtual is an in-memory broadcast bus. Every frame sent on one endpoint is
// delivered to all other open endpoints.
type Virtual struct {
	mu        sync.Mutex
	endpoints map[*endpoint]struct{}
	dropped   uint64
}

func NewVirtual() *Virtual {
	return &Virtual{
		endpoints: make(map[*endpoint]struct{}),
	}
}

// Endpoint attaches a new node to the bus.
func (v *Virtual) Endpoint() Bus {
	ep := &endpoint{
		hub:  v,
		rx:   make(chan Frame, virtualQueueSize),
		done: make(chan struct{}),
	}
	v.mu.Lock()
	v.endpoints[ep] = struct{}{}
	v.mu.Unlock()
	return ep
}

// Dropped returns the number of frames lost to full receive queues.
func (v *Virtual) Dropped() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dropped
}

func (v *Virtual) broadcast(from *endpoint, f Frame) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for ep := range v.endpoints {
		if ep == from {
			continue
		}
		data := make([]byte, len(f.Data))
		copy(data, f.Data)
		select {
		case ep.rx <- Frame{ID: f.ID, Data: data}:
		default:
			v.dropped++
		}
	}
}

type endpoint struct {
	hub       *Virtual
	rx        chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

func (e *endpoint) Send(ctx context.Context, f Frame) error {
	select {
	case <-e.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	e.hub.broadcast(e, f)
	return nil
}

func (e *endpoint) Recv(ctx context.Context, timeout time.Duration) (*Frame, error) {
	select {
	case <-e.done:
		return nil, ErrClosed
	default:
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case f := <-e.rx:
		return &f, nil
	case <-t.C:
		return nil, nil
	case <-e.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.hub.mu.Lock()
		delete(e.hub.endpoints, e)
		e.hub.mu.Unlock()
		close(e.done)
	})
	return nil
}

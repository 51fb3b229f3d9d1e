// Package canbus provides the raw frame transport used by the scanners: a
// gocan backed adapter for real hardware and an in-memory bus for
// simulation.
package canbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roffe/udsfuzz/pkg/config"
	"github.com/roffe/udsfuzz/pkg/uds"
)

var ErrClosed = errors.New("bus closed")

type Frame struct {
	ID   uint32
	Data []byte
}

func (f Frame) String() string {
	return fmt.Sprintf("0x%03X [%s]", f.ID, uds.Hex(f.Data))
}

// Bus is an exclusive handle on a CAN bus.
type Bus interface {
	Send(ctx context.Context, f Frame) error
	// Recv waits at most timeout for the next frame. It returns nil, nil when
	// the timeout expires without traffic.
	Recv(ctx context.Context, timeout time.Duration) (*Frame, error)
	Close() error
}

// Open opens the adapter named in cfg. The virtual adapter hands out an
// endpoint on hub.
func Open(ctx context.Context, cfg config.Adapter, hub *Virtual) (Bus, error) {
	if cfg.Name == config.VirtualAdapter {
		if hub == nil {
			return nil, errors.New("virtual adapter requested without a virtual bus")
		}
		return hub.Endpoint(), nil
	}
	if cfg.Name == "" {
		return nil, errors.New("no adapter configured")
	}
	return OpenGoCAN(ctx, cfg)
}

// Drain discards frames until the bus has been quiet for quiet.
func Drain(ctx context.Context, b Bus, quiet time.Duration) error {
	for {
		f, err := b.Recv(ctx, quiet)
		if err != nil {
			return err
		}
		if f == nil {
			return nil
		}
	}
}

// Package debug records raw bus traffic to a trace file.
package debug

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/roffe/udsfuzz/pkg/canbus"
)

const timeFormat = "2006-01-02 15:04:05.000"

// Trace is a canbus.Bus that appends every frame it sends or receives to a
// file.
type Trace struct {
	canbus.Bus
	mu sync.Mutex
	fh *os.File
}

// Wrap opens filename for appending and wraps b.
func Wrap(b canbus.Bus, filename string) (*Trace, error) {
	fh, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &Trace{Bus: b, fh: fh}, nil
}

func (t *Trace) Send(ctx context.Context, f canbus.Frame) error {
	err := t.Bus.Send(ctx, f)
	if err == nil {
		t.logRaw("TX", f)
	}
	return err
}

func (t *Trace) Recv(ctx context.Context, timeout time.Duration) (*canbus.Frame, error) {
	f, err := t.Bus.Recv(ctx, timeout)
	if f != nil {
		t.logRaw("RX", *f)
	}
	return f, err
}

func (t *Trace) logRaw(dir string, f canbus.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.fh, "%s %s %s\n", time.Now().Format(timeFormat), dir, f)
}

func (t *Trace) Close() error {
	t.mu.Lock()
	t.fh.Sync()
	t.fh.Close()
	t.mu.Unlock()
	return t.Bus.Close()
}

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/roffe/udsfuzz/pkg/canbus"
	"github.com/roffe/udsfuzz/pkg/config"
	"github.com/roffe/udsfuzz/pkg/debug"
	"github.com/roffe/udsfuzz/pkg/diag"
	"github.com/roffe/udsfuzz/pkg/ebus"
	"github.com/roffe/udsfuzz/pkg/ecusim"
	"github.com/roffe/udsfuzz/pkg/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

const eventTTL = 5 * time.Second

// env is what a command runs with: the merged configuration, a logger, the
// progress bus and an open CAN bus.
type env struct {
	cfg    *config.Config
	log    logger.Logger
	events *ebus.Bus
	bus    canbus.Bus
	out    io.Writer
	// stopProgress ends the status line, nil without a terminal.
	stopProgress func()
}

// results stops the progress line and returns the writer for the results.
func (e *env) results() io.Writer {
	if e.stopProgress != nil {
		e.stopProgress()
	}
	return e.out
}

func (e *env) client(requestID, responseID uint32, timeout time.Duration) *diag.Client {
	if timeout <= 0 {
		timeout = e.cfg.Timing.ResponseTimeout
	}
	return diag.New(e.bus, requestID, responseID, diag.WithTimeout(timeout), diag.WithLogger(e.log))
}

func loadConfig(cmd *cobra.Command, opts *globalOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("adapter") {
		cfg.Adapter.Name = opts.adapter
	}
	if flags.Changed("port") {
		cfg.Adapter.Port = opts.port
	}
	if flags.Changed("baudrate") {
		cfg.Adapter.Baudrate = opts.baudrate
	}
	if flags.Changed("canrate") {
		cfg.Adapter.CANRate = opts.canRate
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level string) (logger.Logger, error) {
	lvl, ok := logger.ParseLevel(level)
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	l := logger.NewSlog(os.Stderr, lvl, term.IsTerminal(int(os.Stderr.Fd()))).With("run", uuid.NewString())
	logger.SetDefault(l)
	return l, nil
}

// withBus sets up the environment, runs fn and tears everything down again.
// With the virtual adapter the simulated ECU described by sim runs next to
// fn until fn returns.
func withBus(cmd *cobra.Command, opts *globalOptions, sim ecusim.Config, fn func(ctx context.Context, e *env) error) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	log, err := newLogger(opts.logLevel)
	if err != nil {
		return err
	}

	events := ebus.New(eventTTL)
	defer events.Close()

	out := cmd.OutOrStdout()
	var stop func()
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		stop = showProgress(out, events)
		defer stop()
	}

	var hub *canbus.Virtual
	if cfg.Adapter.Name == config.VirtualAdapter {
		hub = canbus.NewVirtual()
	}

	ctx := cmd.Context()
	bus, err := canbus.Open(ctx, cfg.Adapter, hub)
	if err != nil {
		return err
	}
	if opts.trace != "" {
		tr, err := debug.Wrap(bus, opts.trace)
		if err != nil {
			bus.Close()
			return err
		}
		bus = tr
	}
	defer bus.Close()

	e := &env{cfg: cfg, log: log, events: events, bus: bus, out: out, stopProgress: stop}
	if hub == nil {
		return fn(ctx, e)
	}

	sim.Logger = log
	ecu := ecusim.New(hub.Endpoint(), sim)
	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	g.Go(func() error {
		return ecu.Run(runCtx)
	})
	g.Go(func() error {
		defer cancel()
		return fn(runCtx, e)
	})
	return g.Wait()
}

// simAt is the default simulated ECU moved to the given address pair.
func simAt(requestID, responseID uint32) ecusim.Config {
	sim := ecusim.Default()
	sim.RequestID = requestID
	sim.ResponseID = responseID
	return sim
}

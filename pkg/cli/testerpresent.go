package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roffe/udsfuzz/pkg/uds"
	"github.com/spf13/cobra"
)

func newTesterPresentCmd(opts *globalOptions) *cobra.Command {
	var (
		delay    time.Duration
		duration time.Duration
		suppress bool
		dst      idValue
	)
	cmd := &cobra.Command{
		Use:   "testerpresent <src>",
		Short: "Keep a diagnostic session alive with periodic tester present requests",
		Long: `Send a tester present request to src every --delay until --duration has
passed or the command is interrupted.

  udsfuzz testerpresent 0x7e0 --spr`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := parseID(args[0])
			if err != nil {
				return err
			}
			if delay <= 0 {
				return fmt.Errorf("delay must be positive, got %s", delay)
			}
			if duration < 0 {
				return fmt.Errorf("duration must not be negative, got %s", duration)
			}
			return withBus(cmd, opts, simAt(src, uint32(dst)), func(ctx context.Context, e *env) error {
				if duration > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, duration)
					defer cancel()
				}
				client := e.client(src, uint32(dst), 0)
				t := time.NewTicker(delay)
				defer t.Stop()
				count := 0
				for {
					resp, err := client.TesterPresent(ctx, suppress)
					if err != nil && ctx.Err() == nil {
						return err
					}
					if ctx.Err() == nil {
						count++
						if !suppress && (resp == nil || !resp.Positive) {
							e.log.Warn("tester present not acknowledged", "response", resp.String())
						}
						fmt.Fprintf(e.out, "\rSent %d tester present request(s)", count)
					}
					select {
					case <-t.C:
					case <-ctx.Done():
						fmt.Fprintln(e.out)
						if duration > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) && cmd.Context().Err() == nil {
							return nil
						}
						return finish(e.out, ctx.Err())
					}
				}
			})
		},
	}
	f := cmd.Flags()
	f.DurationVarP(&delay, "delay", "d", 500*time.Millisecond, "Interval between requests")
	f.DurationVar(&duration, "duration", 0, "Stop after this long, 0 runs until interrupted")
	f.BoolVar(&suppress, "spr", false, fmt.Sprintf("Set the suppress positive response bit (0x%02x)", uds.SUPPRESS_POSITIVE_RESPONSE))
	f.Var(&dst, "dst", "Response id to check answers on, without --spr")
	return cmd
}

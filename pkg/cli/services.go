package cli

import (
	"context"
	"time"

	"github.com/roffe/udsfuzz/pkg/report"
	"github.com/roffe/udsfuzz/pkg/scan"
	"github.com/spf13/cobra"
)

func newServicesCmd(opts *globalOptions) *cobra.Command {
	var (
		timeout time.Duration
		delay   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "services <src> <dst>",
		Short: "Enumerate the diagnostic services supported on an address pair",
		Long: `Send a bare request for every service id 0x00-0xff from src to dst. Every
answer other than "service not supported" marks the service as present.

  udsfuzz services 0x7e0 0x7e8`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst, err := parsePair(args)
			if err != nil {
				return err
			}
			return withBus(cmd, opts, simAt(src, dst), func(ctx context.Context, e *env) error {
				if !cmd.Flags().Changed("timeout") {
					timeout = e.cfg.Timing.ServiceTimeout
				}
				if !cmd.Flags().Changed("delay") {
					delay = e.cfg.Timing.RequestDelay
				}
				s, err := scan.NewServiceScanner(e.client(src, dst, timeout), scan.ServiceConfig{
					RequestDelay: delay,
					Events:       e.events,
					Logger:       e.log,
				})
				if err != nil {
					return err
				}
				found, err := s.Run(ctx)
				out := e.results()
				report.Services(out, found)
				return finish(out, err)
			})
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Response timeout per probe (default from config)")
	cmd.Flags().DurationVarP(&delay, "delay", "d", 0, "Delay before each probe (default from config)")
	return cmd
}

func parsePair(args []string) (src, dst uint32, err error) {
	if src, err = parseID(args[0]); err != nil {
		return 0, 0, err
	}
	if dst, err = parseID(args[1]); err != nil {
		return 0, 0, err
	}
	return src, dst, nil
}

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/roffe/udsfuzz/pkg/report"
	"github.com/spf13/cobra"
)

func newECUResetCmd(opts *globalOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "ecu-reset <type> <src> <dst>",
		Short: "Send an ECU reset",
		Long: `Send an ECU reset of the given type (1 hard, 2 key off/on, 3 soft) and
describe the answer.

  udsfuzz ecu-reset 1 0x7e0 0x7e8`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			resetType, err := parseByte(args[0])
			if err != nil {
				return err
			}
			src, dst, err := parsePair(args[1:])
			if err != nil {
				return err
			}
			if timeout < 0 {
				return fmt.Errorf("timeout must not be negative, got %s", timeout)
			}
			return withBus(cmd, opts, simAt(src, dst), func(ctx context.Context, e *env) error {
				resp, err := e.client(src, dst, timeout).ECUReset(ctx, resetType)
				out := e.results()
				if err != nil {
					return finish(out, err)
				}
				report.ECUReset(out, resetType, resp)
				return nil
			})
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Response timeout (default from config)")
	return cmd
}

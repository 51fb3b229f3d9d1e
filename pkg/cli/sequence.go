package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/roffe/udsfuzz/pkg/fuzz"
	"github.com/roffe/udsfuzz/pkg/report"
	"github.com/spf13/cobra"
)

func newSessionSequenceCmd(opts *globalOptions) *cobra.Command {
	var (
		resetType        uint8
		resetDelay       time.Duration
		continueAfterHit bool
		timeout          time.Duration
	)
	cmd := &cobra.Command{
		Use:   "session-sequence <src> <dst>",
		Short: "Search the session transitions that unlock seed requests",
		Long: `Walk every chain of diagnostic session transitions the server accepts,
depth first, and try every seed level (odd levels 1-65) in each reached
session. The search stops at the first accepted level unless --continue is
given.

  udsfuzz session-sequence 0x7e0 0x7e8 --reset 1`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst, err := parsePair(args)
			if err != nil {
				return err
			}
			return withBus(cmd, opts, simAt(src, dst), func(ctx context.Context, e *env) error {
				f, err := fuzz.NewSequenceFuzzer(e.client(src, dst, timeout), fuzz.SequenceConfig{
					ResetType:        resetType,
					ResetDelay:       resetDelay,
					ContinueAfterHit: continueAfterHit,
					OnSequence: func(seq []fuzz.Step) {
						e.log.Debug("session sequence reached", "sequence", fmt.Sprint(seq))
					},
					Events: e.events,
					Logger: e.log,
				})
				if err != nil {
					return err
				}
				hits, err := f.Run(ctx)
				out := e.results()
				report.Hits(out, hits)
				return finish(out, err)
			})
		},
	}
	f := cmd.Flags()
	f.Uint8Var(&resetType, "reset", 0, "Reset the ECU with this reset type before every seed request, 0 disables")
	f.DurationVar(&resetDelay, "reset-delay", fuzz.DefaultResetDelay, "Wait this long after a reset")
	f.BoolVarP(&continueAfterHit, "continue", "c", false, "Keep searching after the first accepted seed level")
	f.DurationVarP(&timeout, "timeout", "t", 0, "Response timeout (default from config)")
	return cmd
}

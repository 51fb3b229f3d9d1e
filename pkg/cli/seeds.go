package cli

import (
	"context"
	"time"

	"github.com/roffe/udsfuzz/pkg/fuzz"
	"github.com/roffe/udsfuzz/pkg/report"
	"github.com/roffe/udsfuzz/pkg/uds"
	"github.com/spf13/cobra"
)

func newSeedRandomnessCmd(opts *globalOptions) *cobra.Command {
	var (
		iterations int
		resetType  uint8
		resetEach  bool
		resetDelay time.Duration
		interDelay time.Duration
		timeout    time.Duration
		output     string
	)
	cmd := &cobra.Command{
		Use:   "seed-randomness <src> <dst> <sequence>",
		Short: "Collect seeds to judge the randomness of the seed generator",
		Long: `Run a fixed sequence of session, seed and reset requests repeatedly and
report every captured seed along with the values seen more than once.

The sequence is a list of hex service and sub-function pairs, for example
"1003 2705" enters the extended session and requests the level 5 seed;
"1101" is a hard reset.

  udsfuzz seed-randomness 0x7e0 0x7e8 "1003 2701" --iterations 100 --reset-each`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst, err := parsePair(args)
			if err != nil {
				return err
			}
			script, err := fuzz.ParseScript(args[2])
			if err != nil {
				return err
			}
			cfg := fuzz.CollectorConfig{
				Script:             script,
				Iterations:         iterations,
				ResetType:          resetType,
				ResetEachIteration: resetEach,
				ResetDelay:         resetDelay,
				InterDelay:         interDelay,
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return withBus(cmd, opts, simAt(src, dst), func(ctx context.Context, e *env) error {
				cfg.Events = e.events
				cfg.Logger = e.log
				c, err := fuzz.NewCollector(e.client(src, dst, timeout), cfg)
				if err != nil {
					return err
				}
				seeds, err := c.Run(ctx)
				out := e.results()
				report.Seeds(out, seeds)
				if output != "" {
					if err := report.ExportSeeds(output, seeds, nil); err != nil {
						return err
					}
				}
				return finish(out, err)
			})
		},
	}
	f := cmd.Flags()
	f.IntVarP(&iterations, "iterations", "i", fuzz.DefaultIterations, "Number of times to run the sequence")
	f.Uint8Var(&resetType, "reset-type", uds.HARD_RESET, "Reset type used between iterations")
	f.BoolVar(&resetEach, "reset-each", false, "Reset before every iteration instead of once before the run")
	f.DurationVar(&resetDelay, "reset-delay", fuzz.DefaultResetDelay, "Wait this long after a reset")
	f.DurationVar(&interDelay, "inter-delay", fuzz.DefaultInterDelay, "Wait this long after every step")
	f.DurationVarP(&timeout, "timeout", "t", 0, "Response timeout (default from config)")
	f.StringVarP(&output, "output", "o", "", "Write the captured seeds to this CSV file")
	return cmd
}

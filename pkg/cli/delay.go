package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/roffe/udsfuzz/pkg/fuzz"
	"github.com/roffe/udsfuzz/pkg/report"
	"github.com/roffe/udsfuzz/pkg/uds"
	"github.com/spf13/cobra"
)

func newDelayCmd(opts *globalOptions) *cobra.Command {
	var (
		resetType uint8
		initial   time.Duration
		increment time.Duration
		maxPasses int
		timeout   time.Duration
		output    string
	)
	cmd := &cobra.Command{
		Use:   "delay <src> <dst> <sequence> <target>",
		Short: "Find the reset to request delay that reproduces a seed",
		Long: `Reset the ECU, wait, run the sequence and compare every seed with target.
The wait grows by --increment after every pass until a seed equals the
target, which exposes seed generators derived from the time since reset.

  udsfuzz delay 0x7e0 0x7e8 "1003 2701" 0000000f --delay 11ms`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst, err := parsePair(args)
			if err != nil {
				return err
			}
			script, err := fuzz.ParseScript(args[2])
			if err != nil {
				return err
			}
			target, err := parseSeed(args[3])
			if err != nil {
				return err
			}
			cfg := fuzz.DelayConfig{
				Script:       script,
				Target:       target,
				ResetType:    resetType,
				InitialDelay: initial,
				Increment:    increment,
				MaxPasses:    maxPasses,
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return withBus(cmd, opts, simAt(src, dst), func(ctx context.Context, e *env) error {
				cfg.Events = e.events
				cfg.Logger = e.log
				d, err := fuzz.NewDelayAttacker(e.client(src, dst, timeout), cfg)
				if err != nil {
					return err
				}
				res, err := d.Run(ctx)
				out := e.results()
				report.Delay(out, res)
				if output != "" {
					export := func(i int) time.Duration { return res.SeedDelays[i] }
					if err := report.ExportSeeds(output, &res.Seeds, export); err != nil {
						return err
					}
				}
				return finish(out, err)
			})
		},
	}
	f := cmd.Flags()
	f.Uint8Var(&resetType, "reset-type", uds.HARD_RESET, "Reset type sent at the start of every pass")
	f.DurationVarP(&initial, "delay", "d", fuzz.DefaultResetDelay, "Delay of the first pass")
	f.DurationVar(&increment, "increment", fuzz.DefaultDelayIncrement, "Added to the delay after every pass")
	f.IntVar(&maxPasses, "max-passes", 0, "Give up after this many passes, 0 runs until the target is found")
	f.DurationVarP(&timeout, "timeout", "t", 0, "Response timeout (default from config)")
	f.StringVarP(&output, "output", "o", "", "Write the captured seeds to this CSV file")
	return cmd
}

// parseSeed reads a hex seed, spaces and an optional 0x prefix allowed.
func parseSeed(s string) ([]byte, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	b, err := hex.DecodeString(clean)
	if err != nil || len(b) == 0 {
		return nil, fmt.Errorf("invalid target seed %q, expected hex bytes", s)
	}
	return b, nil
}

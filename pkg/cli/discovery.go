package cli

import (
	"context"
	"time"

	"github.com/roffe/udsfuzz/pkg/ebus"
	"github.com/roffe/udsfuzz/pkg/ecusim"
	"github.com/roffe/udsfuzz/pkg/report"
	"github.com/roffe/udsfuzz/pkg/scan"
	"github.com/spf13/cobra"
)

const topicDiscoveryPercent = "discovery.percent"

func newDiscoveryCmd(opts *globalOptions) *cobra.Command {
	var (
		minID, maxID  idValue = 0x1, 0
		blacklist     idListValue
		autoBlacklist time.Duration
		delay         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "discovery",
		Short: "Find arbitration id pairs answering diagnostic session requests",
		Long: `Send a default session request to every arbitration id in [min, max] and
record every id answering with a session control response. Ids answering
on their own can be excluded with --blacklist or detected beforehand with
--autoblacklist.

  udsfuzz discovery --min 0x700 --max 0x7ff --autoblacklist 10s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("max") {
				maxID = idValue(scan.DefaultMax(uint32(minID)))
			}
			cfg := scan.DiscoveryConfig{
				Min:           uint32(minID),
				Max:           uint32(maxID),
				Blacklist:     blacklist,
				AutoBlacklist: autoBlacklist,
				Delay:         delay,
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return withBus(cmd, opts, ecusim.Default(), func(ctx context.Context, e *env) error {
				cfg.Events = e.events
				cfg.Logger = e.log
				e.events.RegisterAggregator(ebus.PercentAggregator(scan.TopicDone, scan.TopicTotal, topicDiscoveryPercent))
				d, err := scan.NewDiscovery(e.bus, cfg)
				if err != nil {
					return err
				}
				pairs, err := d.Run(ctx)
				out := e.results()
				report.Blacklist(out, d.Blacklist())
				report.Discovery(out, pairs)
				return finish(out, err)
			})
		},
	}
	f := cmd.Flags()
	f.Var(&minID, "min", "Lowest request id to probe")
	f.Var(&maxID, "max", "Highest request id to probe (default 0x7ff, or 0x1fffffff when min is extended)")
	f.VarP(&blacklist, "blacklist", "b", "Response ids to ignore, repeatable or comma separated")
	f.DurationVar(&autoBlacklist, "autoblacklist", 0, "Listen this long for ids to blacklist before probing")
	f.DurationVarP(&delay, "delay", "d", scan.DefaultDiscoveryDelay, "How long to wait for answers after each probe")
	return cmd
}

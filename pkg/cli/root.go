// Package cli is the udsfuzz command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/roffe/udsfuzz/pkg/config"
	"github.com/roffe/udsfuzz/pkg/fuzz"
	"github.com/roffe/udsfuzz/pkg/scan"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	configPath string
	adapter    string
	port       string
	baudrate   int
	canRate    float64
	logLevel   string
	trace      string
}

func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "udsfuzz",
		Short: "UDS discovery and security access fuzzer",
		Long: `udsfuzz finds diagnostic servers on a CAN bus, enumerates the services
they support and probes their security access implementation: which session
sequence unlocks seed requests, how random the seeds are and whether a seed
can be reproduced by timing the request after a reset.

Use --adapter virtual to run every command against a simulated ECU.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", config.DefaultPath(), "Path to config file")
	pf.StringVarP(&opts.adapter, "adapter", "a", "", "CAN adapter name, or \"virtual\" for the simulated ECU")
	pf.StringVarP(&opts.port, "port", "p", "", "Adapter port")
	pf.IntVar(&opts.baudrate, "baudrate", 0, "Serial baudrate for serial adapters")
	pf.Float64Var(&opts.canRate, "canrate", 0, "CAN bitrate in kbit/s")
	pf.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	pf.StringVar(&opts.trace, "trace", "", "Write every frame to this file")

	cmd.AddCommand(
		newDiscoveryCmd(opts),
		newServicesCmd(opts),
		newECUResetCmd(opts),
		newTesterPresentCmd(opts),
		newSessionSequenceCmd(opts),
		newSeedRandomnessCmd(opts),
		newDelayCmd(opts),
		newAdaptersCmd(),
	)
	return cmd
}

func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func isInterrupted(err error) bool {
	return errors.Is(err, scan.ErrInterrupted) || errors.Is(err, fuzz.ErrInterrupted) || errors.Is(err, context.Canceled)
}

// finish turns an operator interrupt into a clean exit. Results must have
// been printed before.
func finish(w io.Writer, err error) error {
	if err != nil && isInterrupted(err) {
		fmt.Fprintln(w, "Terminated by user")
		return nil
	}
	return err
}

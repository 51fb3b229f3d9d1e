package cli

import (
	"fmt"
	"sort"

	"github.com/roffe/udsfuzz/pkg/canbus"
	"github.com/roffe/udsfuzz/pkg/config"
	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
)

func newAdaptersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "adapters",
		Short: "List CAN adapters and serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Adapters:")
			fmt.Fprintf(out, "  %-24s %s\n", config.VirtualAdapter, "simulated ECU on an in-memory bus")
			for _, a := range canbus.Adapters() {
				desc := a.Description
				if a.RequiresSerialPort {
					desc += " (serial)"
				}
				fmt.Fprintf(out, "  %-24s %s\n", a.Name, desc)
			}
			ports, err := listPorts()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Serial ports:")
			if len(ports) == 0 {
				fmt.Fprintln(out, "  none found")
			}
			for _, p := range ports {
				fmt.Fprintf(out, "  %s\n", p)
			}
			return nil
		},
	}
}

func listPorts() ([]string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	var out []string
	for _, port := range ports {
		name := port.Name
		if port.IsUSB {
			name = fmt.Sprintf("%s (USB %s:%s %s)", port.Name, port.VID, port.PID, port.SerialNumber)
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

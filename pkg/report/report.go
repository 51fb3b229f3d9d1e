// Package report renders scan and fuzz results for the terminal.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/roffe/udsfuzz/pkg/fuzz"
	"github.com/roffe/udsfuzz/pkg/scan"
	"github.com/roffe/udsfuzz/pkg/uds"
)

var (
	hit  = color.New(color.FgGreen, color.Bold)
	warn = color.New(color.FgYellow)
)

const tableBorder = "+------------+------------+"

// Discovery writes the address pairs as a fixed width table.
func Discovery(w io.Writer, pairs []scan.AddressPair) {
	if len(pairs) == 0 {
		warn.Fprintln(w, "Diagnostics service could not be found.")
		return
	}
	fmt.Fprintf(w, "\nFound diagnostics server listening at %d address pair(s)\n", len(pairs))
	fmt.Fprintln(w, tableBorder)
	fmt.Fprintln(w, "| CLIENT ID  | SERVER ID  |")
	fmt.Fprintln(w, tableBorder)
	for _, p := range pairs {
		fmt.Fprintf(w, "| 0x%08x | 0x%08x |\n", p.Request, p.Response)
	}
	fmt.Fprintln(w, tableBorder)
}

func Blacklist(w io.Writer, ids []uint32) {
	if len(ids) == 0 {
		return
	}
	fmt.Fprint(w, "Blacklisted ids:")
	for _, id := range ids {
		fmt.Fprintf(w, " 0x%03x", id)
	}
	fmt.Fprintln(w)
}

// Services writes one line per supported service id.
func Services(w io.Writer, ids []byte) {
	if len(ids) == 0 {
		warn.Fprintln(w, "No supported services found.")
		return
	}
	for _, sid := range ids {
		fmt.Fprintf(w, "Supported service 0x%02x: %s\n", sid, uds.ServiceName(sid))
	}
}

func Hits(w io.Writer, hits []fuzz.Hit) {
	if len(hits) == 0 {
		warn.Fprintln(w, "No session sequence unlocked a seed request.")
		return
	}
	for _, h := range hits {
		hit.Fprintf(w, "Found seed at level 0x%02x after %s\n", h.Level, h)
	}
}

// Seeds writes the captured seeds followed by the duplicate summary.
func Seeds(w io.Writer, log *fuzz.SeedLog) {
	fmt.Fprintf(w, "Captured %d seed(s)\n", log.Len())
	for i, s := range log.Seeds {
		fmt.Fprintf(w, "%5d %s\n", i+1, s)
	}
	Duplicates(w, log.Duplicates())
}

func Duplicates(w io.Writer, dups []fuzz.Duplicate) {
	if len(dups) == 0 {
		fmt.Fprintln(w, "No duplicate seeds found.")
		return
	}
	hit.Fprintf(w, "Duplicate seeds found: %d\n", len(dups))
	for _, d := range dups {
		fmt.Fprintf(w, "  %s seen %d times\n", d.Seed, d.Count)
	}
}

func Delay(w io.Writer, res *fuzz.DelayResult) {
	if res.Found {
		hit.Fprintf(w, "Target seed reproduced after %d pass(es) with delay %s\n", res.Passes, formatDelay(res.Delay))
		return
	}
	warn.Fprintf(w, "Target seed not reproduced after %d pass(es), last delay %s\n", res.Passes, formatDelay(res.Delay))
}

func formatDelay(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ECUReset describes the answer to an ECU reset request.
func ECUReset(w io.Writer, resetType byte, resp *uds.Response) {
	switch {
	case resp == nil:
		warn.Fprintln(w, "No response")
	case !resp.Positive:
		warn.Fprintf(w, "Negative response: %s (0x%02x)\n", uds.NRCName(resp.NRC), resp.NRC)
	case len(resp.Payload) == 0:
		warn.Fprintln(w, "Short positive response, reset type missing")
	case resp.Payload[0] != resetType:
		warn.Fprintf(w, "Reset type mismatch: sent 0x%02x, got 0x%02x\n", resetType, resp.Payload[0])
	case len(resp.Payload) > 1:
		hit.Fprintf(w, "Reset successful, additional data: %s\n", uds.Hex(resp.Payload[1:]))
	default:
		hit.Fprintln(w, "Reset successful")
	}
}

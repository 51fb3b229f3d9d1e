package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/roffe/udsfuzz/pkg/ebus"
)

// showProgress renders every published value on one status line until the
// returned stop function is called. Nothing is written to w once stop has
// returned, stop may be called more than once.
func showProgress(w io.Writer, events *ebus.Bus) (stop func()) {
	var (
		mu      sync.Mutex
		stopped bool
		once    sync.Once
	)
	values := make(map[string]float64)
	unsub := events.SubscribeAllFunc(func(topic string, value float64) {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		values[topic] = value
		fmt.Fprintf(w, "\r\033[K%s", statusLine(values))
	})
	return func() {
		once.Do(func() {
			unsub()
			mu.Lock()
			defer mu.Unlock()
			stopped = true
			if len(values) > 0 {
				fmt.Fprintln(w)
			}
		})
	}
}

func statusLine(values map[string]float64) string {
	topics := make([]string, 0, len(values))
	for k := range values {
		topics = append(topics, k)
	}
	sort.Strings(topics)
	parts := make([]string, len(topics))
	for i, t := range topics {
		v := values[t]
		switch {
		case strings.HasSuffix(t, ".address"):
			parts[i] = fmt.Sprintf("%s=0x%03x", t, uint32(v))
		case strings.HasSuffix(t, ".percent"):
			parts[i] = fmt.Sprintf("%s=%.1f%%", t, v)
		default:
			parts[i] = fmt.Sprintf("%s=%g", t, v)
		}
	}
	return strings.Join(parts, " ")
}

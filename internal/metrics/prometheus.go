package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// eventsMetric is the single counter family the relay exports. Every internal
// counter becomes one sample of it, distinguished by an `event` label, which
// keeps the registry free of any Prometheus client dependency.
const eventsMetric = "peercall_relay_events_total"

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// PrometheusHandler serves a point-in-time snapshot of m in the Prometheus
// text exposition format.
func PrometheusHandler(m *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
			return
		}

		snap := m.Snapshot()
		events := make([]string, 0, len(snap))
		for ev := range snap {
			events = append(events, ev)
		}
		sort.Strings(events)

		var b strings.Builder
		fmt.Fprintf(&b, "# HELP %s Internal event counters.\n", eventsMetric)
		fmt.Fprintf(&b, "# TYPE %s counter\n", eventsMetric)
		for _, ev := range events {
			fmt.Fprintf(&b, "%s{event=\"%s\"} %d\n", eventsMetric, labelEscaper.Replace(ev), snap[ev])
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(b.String()))
	})
}

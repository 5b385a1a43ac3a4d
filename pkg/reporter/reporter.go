// Package reporter fires the networking core's small set of counted
// events out to a Prometheus registry, the teacher's metrics idiom
// (pkg/consensus/prometheus.go) generalized from one fixed gauge to an
// arbitrary event catalog.
package reporter

import "github.com/prometheus/client_golang/prometheus"

// Reporter receives (event, count) pairs raised by sessions, channels,
// and protocols and increments the matching Prometheus counter.
type Reporter struct {
	counters map[Event]prometheus.Counter
}

// New builds a Reporter with one counter per Event, registered under
// namespace. Panics if namespace's counters are already registered
// against reg, matching prometheus.MustRegister's own failure mode.
func New(reg prometheus.Registerer, namespace string) *Reporter {
	r := &Reporter{counters: make(map[Event]prometheus.Counter, len(eventNames))}
	for ev, name := range eventNames {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "p2p",
			Name:      name + "_total",
			Help:      "count of " + name + " events raised by the networking core",
		})
		reg.MustRegister(c)
		r.counters[ev] = c
	}
	return r
}

// Report increments event's counter by count. Unregistered events
// (there are none in the closed catalog, but a future Event value
// added without a matching constant registration would hit this) are
// silently dropped.
func (r *Reporter) Report(event Event, count float64) {
	if c, ok := r.counters[event]; ok {
		c.Add(count)
	}
}

// Noop is a Reporter that discards every event; useful for tests and
// for callers that run without a metrics backend.
var Noop = &Reporter{}

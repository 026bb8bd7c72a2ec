package wisckv

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the engine's internal instrumentation. It is registered
// against a private registry rather than the global default, since an
// embedded store has no business mutating process-wide state; callers
// that want to export it can pull the registry via Engine.Metrics and
// feed it to their own exposition path.
type metrics struct {
	registry *prometheus.Registry

	puts        prometheus.Counter
	gets        prometheus.Counter
	deletes     prometheus.Counter
	getMisses   prometheus.Counter
	gcSteps     prometheus.Counter
	gcReclaimed prometheus.Counter
	syncs       prometheus.Counter
	keyCount    prometheus.Gauge
	segmentCount prometheus.Gauge
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	m := &metrics{
		registry: reg,
		puts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wisckv", Name: "puts_total", Help: "Total Put calls.",
		}),
		gets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wisckv", Name: "gets_total", Help: "Total Get calls.",
		}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wisckv", Name: "deletes_total", Help: "Total Delete calls.",
		}),
		getMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wisckv", Name: "get_misses_total", Help: "Get calls for an absent key.",
		}),
		gcSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wisckv", Name: "gc_steps_total", Help: "Inline GC steps run.",
		}),
		gcReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wisckv", Name: "gc_segments_reclaimed_total", Help: "Vlog segments fully collected and removed.",
		}),
		syncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wisckv", Name: "syncs_total", Help: "Explicit Sync calls.",
		}),
		keyCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wisckv", Name: "keys", Help: "Live keys in the index.",
		}),
		segmentCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wisckv", Name: "vlog_segments", Help: "Open vlog segments.",
		}),
	}
	reg.MustRegister(m.puts, m.gets, m.deletes, m.getMisses, m.gcSteps, m.gcReclaimed, m.syncs, m.keyCount, m.segmentCount)
	return m
}

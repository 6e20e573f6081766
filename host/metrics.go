package host

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dentdelion-dev/dentdelion/domain/entities"
)

// Metrics holds the Prometheus metrics of the plugin host. A nil *Metrics
// records nothing.
type Metrics struct {
	LifecycleCallsTotal   *prometheus.CounterVec
	GuestCallDuration     *prometheus.HistogramVec
	PluginState           *prometheus.GaugeVec
	DiscoveredPlugins     prometheus.Gauge
	DiscoverySkippedTotal *prometheus.CounterVec
	CompileCacheTotal     *prometheus.CounterVec
}

// NewMetrics creates and registers the host metrics.
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		LifecycleCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dentdelion_lifecycle_calls_total",
				Help: "Lifecycle calls by plugin, phase and outcome",
			},
			[]string{"plugin", "phase", "outcome"},
		),
		GuestCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dentdelion_guest_call_duration_seconds",
				Help:    "Duration of guest lifecycle calls in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
			},
			[]string{"phase"},
		),
		PluginState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dentdelion_plugin_state",
				Help: "Current lifecycle state per plugin (0 registered, 1 loaded, 2 enabled, 3 disabled)",
			},
			[]string{"plugin"},
		),
		DiscoveredPlugins: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dentdelion_discovered_plugins",
				Help: "Plugins found by the last discovery pass",
			},
		),
		DiscoverySkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dentdelion_discovery_skipped_total",
				Help: "Candidates skipped during discovery by reason",
			},
			[]string{"reason"},
		),
		CompileCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dentdelion_compile_cache_total",
				Help: "Component cache lookups by result",
			},
			[]string{"result"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.LifecycleCallsTotal,
		m.GuestCallDuration,
		m.PluginState,
		m.DiscoveredPlugins,
		m.DiscoverySkippedTotal,
		m.CompileCacheTotal,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeCall(plugin string, phase entities.Phase, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.LifecycleCallsTotal.WithLabelValues(plugin, phase.String(), outcome).Inc()
	if outcome != outcomeRejected {
		m.GuestCallDuration.WithLabelValues(phase.String()).Observe(d.Seconds())
	}
}

func (m *Metrics) setState(plugin string, s entities.PluginState) {
	if m == nil {
		return
	}
	m.PluginState.WithLabelValues(plugin).Set(float64(s))
}

func (m *Metrics) forget(plugin string) {
	if m == nil {
		return
	}
	m.PluginState.DeleteLabelValues(plugin)
}

func (m *Metrics) discovered(n int) {
	if m == nil {
		return
	}
	m.DiscoveredPlugins.Set(float64(n))
}

func (m *Metrics) skipped(reason string) {
	if m == nil {
		return
	}
	m.DiscoverySkippedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CompileCacheTotal.WithLabelValues(result).Inc()
}

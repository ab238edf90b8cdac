package tcpserver

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cyberinferno/snowcast/stations"
)

// MetricsNamespace prefixes every metric the server exports.
const MetricsNamespace = "snowcast"

// metrics holds the server's Prometheus collectors. A nil *metrics records
// nothing, so the event loop calls it unconditionally.
type metrics struct {
	accepted     prometheus.Counter
	rejected     prometheus.Counter
	resets       *prometheus.CounterVec
	commands     *prometheus.CounterVec
	live         prometheus.Gauge
	pollCycle    prometheus.Histogram
	slowestCycle prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer, view *View, registry *stations.Registry) *metrics {
	if reg == nil {
		return nil
	}

	factory := promauto.With(reg)
	m := &metrics{
		accepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "connections_accepted_total",
			Help:      "Connections accepted and registered",
		}),
		rejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "connections_rejected_total",
			Help:      "Connections closed at accept because the table was full or registration failed",
		}),
		resets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "connections_reset_total",
			Help:      "Connections removed, by reason",
		}, []string{"reason"}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "commands_total",
			Help:      "Client commands decoded, by kind",
		}, []string{"kind"}),
		live: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "connections_live",
			Help:      "Connections currently in the table",
		}),
		pollCycle: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Name:      "poll_cycle_seconds",
			Help:      "Time spent dispatching events and ticking per poll cycle",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		slowestCycle: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "poll_cycle_max_seconds",
			Help:      "Longest poll cycle since start",
		}),
	}

	reg.MustRegister(newStationCollector(view, registry))
	return m
}

func (m *metrics) connectionAccepted() {
	if m == nil {
		return
	}
	m.accepted.Inc()
	m.live.Inc()
}

func (m *metrics) connectionRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

func (m *metrics) connectionReset(reason string) {
	if m == nil {
		return
	}
	m.resets.WithLabelValues(reason).Inc()
	m.live.Dec()
}

func (m *metrics) command(kind string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(kind).Inc()
}

func (m *metrics) cycle(elapsed, slowest time.Duration) {
	if m == nil {
		return
	}
	m.pollCycle.Observe(elapsed.Seconds())
	m.slowestCycle.Set(slowest.Seconds())
}

// stationCollector reports listeners per station from the published view at
// scrape time.
type stationCollector struct {
	desc     *prometheus.Desc
	view     *View
	registry *stations.Registry
}

func newStationCollector(view *View, registry *stations.Registry) *stationCollector {
	return &stationCollector{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(MetricsNamespace, "", "station_listeners"),
			"Connections tuned to each station",
			[]string{"station", "name"}, nil,
		),
		view:     view,
		registry: registry,
	}
}

// Describe implements prometheus.Collector.
func (c *stationCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector.
func (c *stationCollector) Collect(ch chan<- prometheus.Metric) {
	names := c.registry.Names()
	for i, n := range c.view.Listeners(len(names)) {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(n), strconv.Itoa(i), names[i])
	}
}

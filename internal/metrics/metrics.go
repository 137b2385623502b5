// Package metrics holds the Prometheus collectors for the sync loop and its
// HTTP client. Everything registers on Registry, served by the status server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stbsync"

// Registry is the process registry. Not the global default, so tests can
// read values without interference from other packages.
var Registry = prometheus.NewRegistry()

var (
	ClientRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "client_requests_total",
		Help:      "HTTP requests to the config host.",
	}, []string{"code", "method"})

	ClientRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "client_request_duration_seconds",
		Help:      "Histogram of config host HTTP request latencies.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"code", "method"})

	Fetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetches_total",
		Help:      "Document fetches by target and result (ok, transient, http_error).",
	}, []string{"target", "result"})

	Cycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycles_total",
		Help:      "Sync cycles by outcome.",
	}, []string{"outcome"})

	CyclesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycles_skipped_total",
		Help:      "Triggers dropped because a cycle was already running.",
	})

	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of a sync cycle.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	ConfigSource = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "config_source_total",
		Help:      "Where each config sync got its document from (network, cache, none).",
	}, []string{"source"})

	AssetChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "asset_changes_total",
		Help:      "Assets whose content hash changed.",
	}, []string{"kind"})

	ChannelsVersion = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "channels_version",
		Help:      "Channel list version currently cached.",
	})

	ChannelEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "channel_entries",
		Help:      "Entries in the current channel list.",
	})

	LastCycleSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_cycle_success_timestamp_seconds",
		Help:      "Unix time of the last cycle that reached the available state.",
	})
)

func init() {
	Registry.MustRegister(
		ClientRequests,
		ClientRequestDuration,
		Fetches,
		Cycles,
		CyclesSkipped,
		CycleDuration,
		ConfigSource,
		AssetChanges,
		ChannelsVersion,
		ChannelEntries,
		LastCycleSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// InstrumentRoundTripper wraps next with request count and latency metrics.
func InstrumentRoundTripper(next http.RoundTripper) http.RoundTripper {
	return promhttp.InstrumentRoundTripperCounter(ClientRequests,
		promhttp.InstrumentRoundTripperDuration(ClientRequestDuration, next))
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// Package metrics exposes the storage core's operational counters and
// gauges over Prometheus' text exposition format, the same instrumentation
// surface the rest of the retrieval pack's services use.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric the orchestrator and network actor report.
// It is constructed once at process startup and passed by reference to the
// components that emit to it.
type Registry struct {
	PutsTotal       *prometheus.CounterVec
	GetsTotal       *prometheus.CounterVec
	ShardPutsTotal  *prometheus.CounterVec
	ShardGetsTotal  *prometheus.CounterVec
	PutDuration     prometheus.Histogram
	GetDuration     prometheus.Histogram
	ConnectedPeers  prometheus.Gauge
	RoutingTableSize prometheus.Gauge
	CatalogEntries  prometheus.Gauge
	RepairsTotal    prometheus.Counter
}

// NewRegistry constructs and registers every metric against its own fresh
// prometheus.Registry, so multiple Registry instances (e.g. in tests) never
// collide on the global default registry.
func NewRegistry() (*Registry, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Registry{
		PutsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datamesh",
			Name:      "puts_total",
			Help:      "Total number of put operations, labeled by outcome.",
		}, []string{"outcome"}),
		GetsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datamesh",
			Name:      "gets_total",
			Help:      "Total number of get operations, labeled by outcome.",
		}, []string{"outcome"}),
		ShardPutsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datamesh",
			Name:      "shard_puts_total",
			Help:      "Total number of individual shard put attempts, labeled by outcome.",
		}, []string{"outcome"}),
		ShardGetsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datamesh",
			Name:      "shard_gets_total",
			Help:      "Total number of individual shard get attempts, labeled by outcome.",
		}, []string{"outcome"}),
		PutDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "datamesh",
			Name:      "put_duration_seconds",
			Help:      "Whole-file put latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		GetDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "datamesh",
			Name:      "get_duration_seconds",
			Help:      "Whole-file get latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		ConnectedPeers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "datamesh",
			Name:      "connected_peers",
			Help:      "Current number of connected DHT peers.",
		}),
		RoutingTableSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "datamesh",
			Name:      "routing_table_size",
			Help:      "Current size of the Kademlia routing table.",
		}),
		CatalogEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "datamesh",
			Name:      "catalog_entries",
			Help:      "Current number of file records in the local catalog.",
		}),
		RepairsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "datamesh",
			Name:      "repairs_total",
			Help:      "Total number of files repaired by the maintenance sweep.",
		}),
	}
	return r, reg
}

// Handler returns the HTTP handler that serves reg in Prometheus' text
// exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

package diag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a set of Prometheus collectors for transfer, search,
// distributed, and peer-connection counts. NewMetrics only builds and
// registers them; no subsystem of the engine updates them. Metrics has no
// methods, and a nil *Metrics has no collectors to use.
type Metrics struct {
	ActiveDownloads   prometheus.Gauge
	ActiveUploads     prometheus.Gauge
	QueuedUploads     prometheus.Gauge
	TransfersTotal    *prometheus.CounterVec
	BytesTransferred  *prometheus.CounterVec
	SearchesTotal     prometheus.Counter
	SearchResponses   prometheus.Counter
	DistributedChildren prometheus.Gauge
	PeerConnections   prometheus.Gauge
}

// NewMetrics builds and registers the engine's collectors against reg. If
// reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{
		ActiveDownloads: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "soulseek", Subsystem: "transfer", Name: "active_downloads",
			Help: "Number of downloads currently in progress.",
		}),
		ActiveUploads: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "soulseek", Subsystem: "transfer", Name: "active_uploads",
			Help: "Number of uploads currently in progress.",
		}),
		QueuedUploads: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "soulseek", Subsystem: "transfer", Name: "queued_uploads",
			Help: "Number of uploads waiting for a slot.",
		}),
		TransfersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soulseek", Subsystem: "transfer", Name: "completed_total",
			Help: "Transfers completed, partitioned by direction and outcome.",
		}, []string{"direction", "outcome"}),
		BytesTransferred: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soulseek", Subsystem: "transfer", Name: "bytes_total",
			Help: "Bytes transferred, partitioned by direction.",
		}, []string{"direction"}),
		SearchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "soulseek", Subsystem: "search", Name: "requests_total",
			Help: "Search requests issued.",
		}),
		SearchResponses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "soulseek", Subsystem: "search", Name: "responses_total",
			Help: "Search responses received.",
		}),
		DistributedChildren: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "soulseek", Subsystem: "distributed", Name: "children",
			Help: "Number of adopted distributed children.",
		}),
		PeerConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "soulseek", Subsystem: "peer", Name: "connections",
			Help: "Number of live peer message connections.",
		}),
	}
	return m
}

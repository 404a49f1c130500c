// Package metrics holds the prometheus collectors of the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stream"

type Metrics struct {
	RTPPackets       *prometheus.CounterVec
	RTCPPackets      *prometheus.CounterVec
	MalformedPackets *prometheus.CounterVec
	ForeignPackets   *prometheus.CounterVec
	ForwardErrors    *prometheus.CounterVec
	ProducersCreated *prometheus.CounterVec
	Consumers        *prometheus.GaugeVec
	Sessions         prometheus.Gauge
	SignalMessages   *prometheus.CounterVec
	SignalErrors     *prometheus.CounterVec
	DiscoveryWait    *prometheus.HistogramVec
}

// New registers all collectors on reg. A nil reg gets a private registry,
// which keeps tests from colliding on the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		RTPPackets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "rtp_packets_total",
			Help: "RTP datagrams received by the ingest receiver.",
		}, []string{"room"}),
		RTCPPackets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "rtcp_packets_total",
			Help: "RTCP datagrams received by the ingest receiver.",
		}, []string{"room"}),
		MalformedPackets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "malformed_packets_total",
			Help: "RTP datagrams shorter than a fixed RTP header.",
		}, []string{"room"}),
		ForeignPackets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "foreign_ssrc_packets_total",
			Help: "RTP datagrams whose SSRC differs from the producer SSRC.",
		}, []string{"room"}),
		ForwardErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "forward_errors_total",
			Help: "Failed sends towards the media engine ingress ports.",
		}, []string{"room", "stream"}),
		ProducersCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "producers_created_total",
			Help: "Producers created from a detected SSRC.",
		}, []string{"room"}),
		Consumers: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "signal", Name: "consumers",
			Help: "Live consumers per room.",
		}, []string{"room"}),
		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "signal", Name: "sessions",
			Help: "Open signalling sessions.",
		}),
		SignalMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "signal", Name: "messages_total",
			Help: "Signalling requests by action.",
		}, []string{"action"}),
		SignalErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "signal", Name: "errors_total",
			Help: "Signalling requests answered with an error, by action.",
		}, []string{"action"}),
		DiscoveryWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "signal", Name: "producer_discovery_seconds",
			Help:    "Time consume requests spent waiting for a producer.",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
	}
}

// Package metrics holds the Prometheus collectors of the flow engine. Every
// method is safe to call on a nil *Metrics so nodes built without metrics keep working.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "microred"

// Metrics contains the engine collectors.
type Metrics struct {
	MessagesDelivered *prometheus.CounterVec
	DeliveryErrors    *prometheus.CounterVec
	Published         *prometheus.CounterVec
	QueueDepth        *prometheus.GaugeVec
	QueueOverflows    *prometheus.CounterVec
	DecodeFailures    *prometheus.CounterVec
	NodesRunning      prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		MessagesDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "delivered_total",
				Help:      "Messages handed to a node's message handler",
			},
			[]string{"node_type"},
		),
		DeliveryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "errors_total",
				Help:      "Message handler failures",
			},
			[]string{"node_type"},
		),
		Published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "broker",
				Name:      "published_total",
				Help:      "Frames written to a broker connection",
			},
			[]string{"broker"},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "broker",
				Name:      "queue_depth",
				Help:      "Outbound messages waiting for the writable window",
			},
			[]string{"broker"},
		),
		QueueOverflows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "broker",
				Name:      "queue_overflows_total",
				Help:      "Publishes rejected because the outbound queue was full",
			},
			[]string{"broker"},
		),
		DecodeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "broker",
				Name:      "decode_failures_total",
				Help:      "Inbound payloads a subscriber could not decode",
			},
			[]string{"broker", "format"},
		),
		NodesRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "graph",
				Name:      "nodes_running",
				Help:      "Nodes currently in the running state",
			},
		),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{
		m.MessagesDelivered,
		m.DeliveryErrors,
		m.Published,
		m.QueueDepth,
		m.QueueOverflows,
		m.DecodeFailures,
		m.NodesRunning,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) Delivered(nodeType string) {
	if m == nil {
		return
	}

	m.MessagesDelivered.WithLabelValues(nodeType).Inc()
}

func (m *Metrics) DeliveryFailed(nodeType string) {
	if m == nil {
		return
	}

	m.DeliveryErrors.WithLabelValues(nodeType).Inc()
}

func (m *Metrics) FramePublished(broker string) {
	if m == nil {
		return
	}

	m.Published.WithLabelValues(broker).Inc()
}

func (m *Metrics) SetQueueDepth(broker string, depth int) {
	if m == nil {
		return
	}

	m.QueueDepth.WithLabelValues(broker).Set(float64(depth))
}

func (m *Metrics) QueueOverflow(broker string) {
	if m == nil {
		return
	}

	m.QueueOverflows.WithLabelValues(broker).Inc()
}

func (m *Metrics) DecodeFailed(broker, format string) {
	if m == nil {
		return
	}

	m.DecodeFailures.WithLabelValues(broker, format).Inc()
}

func (m *Metrics) SetNodesRunning(n int) {
	if m == nil {
		return
	}

	m.NodesRunning.Set(float64(n))
}

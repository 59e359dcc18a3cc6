package transport

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsNamespace/metricsSubsystem follow the teacher's
// supervisor/metrics.go convention of a fixed namespace/subsystem pair
// shared by every collector in the package.
const (
	metricsNamespace = "qst"
	metricsSubsystem = "transport"
)

// streamMetrics holds the per-process Prometheus collectors every Stream
// shares, grounded on supervisor/metrics.go's single-gauge init() pattern
// and quic/metrics.go's per-connection counters.
type streamMetrics struct {
	reconnects      prometheus.Counter
	protocolErrors  prometheus.Counter
	overflowDropped prometheus.Counter
	bytesSent       prometheus.Counter
	bytesReceived   prometheus.Counter
	packetsDecoded  prometheus.Counter
}

var (
	defaultMetrics     *streamMetrics
	defaultMetricsOnce sync.Once
)

func newStreamMetrics() *streamMetrics {
	defaultMetricsOnce.Do(func() {
		m := &streamMetrics{
			reconnects: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "reconnects_total",
				Help:      "Number of reconnect attempts dispatched after a connection shutdown with a resumption ticket held.",
			}),
			protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "protocol_errors_total",
				Help:      "Number of streams closed due to a malformed MQTT fixed header.",
			}),
			overflowDropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "overflow_dropped_total",
				Help:      "Number of decoded packets dropped because the overflow queue reached its ceiling.",
			}),
			bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "bytes_sent_total",
				Help:      "Total bytes handed off to the QUIC provider for transmission.",
			}),
			bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "bytes_received_total",
				Help:      "Total bytes delivered by the QUIC provider's receive callback.",
			}),
			packetsDecoded: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "packets_decoded_total",
				Help:      "Total MQTT control packets successfully decoded.",
			}),
		}
		prometheus.MustRegister(
			m.reconnects,
			m.protocolErrors,
			m.overflowDropped,
			m.bytesSent,
			m.bytesReceived,
			m.packetsDecoded,
		)
		defaultMetrics = m
	})
	return defaultMetrics
}

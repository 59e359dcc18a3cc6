package quic

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quic"

// clientMetrics holds the counters provider/quicgo drives directly -- a
// trim of the teacher's clientMetrics (which also tracked per-frame-type
// counts, RTT, congestion window and MTU gauges via a logging.Tracer
// attached to quic.Config.Tracer). A tunnel daemon serving thousands of
// concurrent QUIC connections needs that per-connection congestion detail
// to debug individual flows; a single MQTT stream client does not, so only
// the connection-lifecycle and byte-volume counters survive the trim.
var clientMetrics = struct {
	totalConnections      prometheus.Counter
	closedConnections     prometheus.Counter
	sentBytes             prometheus.Counter
	receivedBytes         prometheus.Counter
	resumptionTicketsSeen prometheus.Counter
}{
	totalConnections: prometheus.NewCounter(prometheus.CounterOpts{ //nolint:promlinter
		Namespace: namespace,
		Subsystem: "client",
		Name:      "total_connections",
		Help:      "Number of QUIC connections dialed",
	}),
	closedConnections: prometheus.NewCounter(prometheus.CounterOpts{ //nolint:promlinter
		Namespace: namespace,
		Subsystem: "client",
		Name:      "closed_connections",
		Help:      "Number of QUIC connections that have been closed",
	}),
	sentBytes: prometheus.NewCounter(prometheus.CounterOpts{ //nolint:promlinter
		Namespace: namespace,
		Subsystem: "client",
		Name:      "sent_bytes",
		Help:      "Number of bytes written to a QUIC stream",
	}),
	receivedBytes: prometheus.NewCounter(prometheus.CounterOpts{ //nolint:promlinter
		Namespace: namespace,
		Subsystem: "client",
		Name:      "received_bytes",
		Help:      "Number of bytes read from a QUIC stream",
	}),
	resumptionTicketsSeen: prometheus.NewCounter(prometheus.CounterOpts{ //nolint:promlinter
		Namespace: namespace,
		Subsystem: "client",
		Name:      "resumption_tickets_seen",
		Help:      "Number of TLS session tickets captured for 0-RTT/1-RTT resumption",
	}),
}

var registerClient sync.Once

// ClientCollector records connection and byte-volume counters for the
// quicgo provider. Grounded on the teacher's newClientCollector, trimmed to
// the subset of counters a single-stream client can meaningfully drive.
type ClientCollector struct{}

// NewClientCollector registers the package-level counters on first call and
// returns a collector handle. Safe to call more than once; registration
// happens exactly once regardless of how many Providers are constructed.
func NewClientCollector() *ClientCollector {
	registerClient.Do(func() {
		prometheus.MustRegister(
			clientMetrics.totalConnections,
			clientMetrics.closedConnections,
			clientMetrics.sentBytes,
			clientMetrics.receivedBytes,
			clientMetrics.resumptionTicketsSeen,
		)
	})
	return &ClientCollector{}
}

func (*ClientCollector) ConnectionOpened() { clientMetrics.totalConnections.Inc() }

func (*ClientCollector) ConnectionClosed() { clientMetrics.closedConnections.Inc() }

func (*ClientCollector) BytesSent(n int) { clientMetrics.sentBytes.Add(float64(n)) }

func (*ClientCollector) BytesReceived(n int) { clientMetrics.receivedBytes.Add(float64(n)) }

func (*ClientCollector) ResumptionTicketSeen() { clientMetrics.resumptionTicketsSeen.Inc() }

package rtsp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Exchange outcomes recorded in metrics.
const (
	outcomeOK             = "ok"
	outcomeStatusError    = "status_error"
	outcomeTimeout        = "timeout"
	outcomeTransportError = "transport_error"
	outcomeProtocolError  = "protocol_error"
)

// Metrics collects control channel statistics. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	exchanges *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	pending   prometheus.Gauge
	relayed   prometheus.Counter
	discarded prometheus.Counter
}

// NewMetrics registers the control channel collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		exchanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raop",
			Subsystem: "rtsp",
			Name:      "exchanges_total",
			Help:      "Control channel exchanges by method and outcome.",
		}, []string{"method", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "raop",
			Subsystem: "rtsp",
			Name:      "exchange_duration_seconds",
			Help:      "Time from sending a request until its response is correlated.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 4},
		}, []string{"method"}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "raop",
			Subsystem: "rtsp",
			Name:      "pending_requests",
			Help:      "Requests sent and still waiting for their response.",
		}),
		relayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raop",
			Subsystem: "rtsp",
			Name:      "relayed_responses_total",
			Help:      "Responses read by one exchange and delivered to another.",
		}),
		discarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raop",
			Subsystem: "rtsp",
			Name:      "discarded_responses_total",
			Help:      "Responses whose CSeq matched no pending request.",
		}),
	}
}

func (m *Metrics) observeExchange(method string, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.exchanges.WithLabelValues(method, outcome).Inc()
	m.duration.WithLabelValues(method).Observe(time.Since(started).Seconds())
}

func (m *Metrics) setPending(count int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(count))
}

func (m *Metrics) responseRelayed() {
	if m == nil {
		return
	}
	m.relayed.Inc()
}

func (m *Metrics) responseDiscarded() {
	if m == nil {
		return
	}
	m.discarded.Inc()
}

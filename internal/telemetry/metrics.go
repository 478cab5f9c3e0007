// Package telemetry provides Prometheus metrics, OpenTelemetry tracing and
// correlation-id aware logging helpers for the relay.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesReceived prometheus.Counter
	Outcomes         *prometheus.CounterVec

	// Histograms (seconds)
	GenerateDuration prometheus.Observer
	SendDuration     prometheus.Observer

	// Gauges
	LastReplyGauge prometheus.Gauge // unix seconds of the last successful reply
	InFlightGauge  prometheus.Gauge // 1=reply in flight, 0=idle
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_messages_received_total", Help: "Number of chat messages delivered to the relay"})
		Outcomes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_message_outcomes_total", Help: "Number of handled messages by terminal outcome"}, []string{"outcome"})
		GenerateDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "relay_generate_duration_seconds", Help: "Generation backend call duration seconds", Buckets: prometheus.DefBuckets})
		SendDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "relay_send_duration_seconds", Help: "Chat send duration seconds", Buckets: prometheus.DefBuckets})
		LastReplyGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_last_reply_timestamp_seconds", Help: "Unix time of the last successful reply"})
		InFlightGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_reply_in_flight", Help: "Reply in flight=1 idle=0"})
	})
}

// IncMessagesReceived counts one inbound message.
func IncMessagesReceived() {
	if MessagesReceived != nil {
		MessagesReceived.Inc()
	}
}

// ObserveOutcome counts one terminal outcome.
func ObserveOutcome(outcome string) {
	if Outcomes != nil {
		Outcomes.WithLabelValues(outcome).Inc()
	}
}

// SetLastReply records the time of the last successful reply.
func SetLastReply(t time.Time) {
	if LastReplyGauge != nil {
		LastReplyGauge.Set(float64(t.Unix()))
	}
}

// SetInFlight sets gauge to 1 if a reply is in flight else 0.
func SetInFlight(inFlight bool) {
	if InFlightGauge == nil {
		return
	}
	if inFlight {
		InFlightGauge.Set(1)
	} else {
		InFlightGauge.Set(0)
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

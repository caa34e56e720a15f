package inbound

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/m3rciful/menubot/core/session"
)

// End reasons reported by sessions_ended_total.
const (
	ReasonExit    = "exit"
	ReasonExpired = "expired"
)

// Metrics holds the dispatcher's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	sessionsActive  prometheus.Gauge
	sessionsStarted prometheus.Counter
	sessionsEnded   *prometheus.CounterVec
	messages        *prometheus.CounterVec
	repliesFailed   prometheus.Counter
	handleDuration  prometheus.Histogram
}

// MustNewMetrics registers the dispatcher collectors with reg, reusing collectors that are
// already registered under the same name. Any other registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "menubot",
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of senders with an active session.",
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "menubot",
			Subsystem: "session",
			Name:      "started_total",
			Help:      "Sessions created by a first message.",
		}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "menubot",
			Subsystem: "session",
			Name:      "ended_total",
			Help:      "Sessions destroyed, by reason.",
		}, []string{"reason"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "menubot",
			Subsystem: "inbound",
			Name:      "messages_total",
			Help:      "Inbound messages handled, by the state they arrived in.",
		}, []string{"state"}),
		repliesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "menubot",
			Subsystem: "inbound",
			Name:      "replies_failed_total",
			Help:      "Replies that could not be delivered.",
		}),
		handleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "menubot",
			Subsystem: "inbound",
			Name:      "handle_duration_seconds",
			Help:      "Time spent handling one inbound message.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5},
		}),
	}
	m.sessionsActive = register(reg, m.sessionsActive)
	m.sessionsStarted = register(reg, m.sessionsStarted)
	m.sessionsEnded = register(reg, m.sessionsEnded)
	m.messages = register(reg, m.messages)
	m.repliesFailed = register(reg, m.repliesFailed)
	m.handleDuration = register(reg, m.handleDuration)
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) observeMessage(state session.State, took time.Duration) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(state.String()).Inc()
	m.handleDuration.Observe(took.Seconds())
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}

func (m *Metrics) sessionEnded(reason string) {
	if m == nil {
		return
	}
	m.sessionsEnded.WithLabelValues(reason).Inc()
}

func (m *Metrics) setActive(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

// ReplyFailed counts one undelivered reply. The transport calls it for asynchronous failures.
func (m *Metrics) ReplyFailed() {
	if m == nil {
		return
	}
	m.repliesFailed.Inc()
}

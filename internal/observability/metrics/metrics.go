package metrics

import "github.com/prometheus/client_golang/prometheus"

// VoiceMetrics exposes counters, gauges and histograms for the call flow.
// All methods are safe on a nil receiver.
type VoiceMetrics struct {
	callsStarted   prometheus.Counter
	callsEnded     *prometheus.CounterVec
	turns          *prometheus.CounterVec
	bookings       *prometheus.CounterVec
	speechFailures *prometheus.CounterVec
	activeSessions prometheus.Gauge
	webhookLatency *prometheus.HistogramVec
}

func NewVoiceMetrics(reg prometheus.Registerer) *VoiceMetrics {
	m := &VoiceMetrics{
		callsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dermavoice",
			Subsystem: "voice",
			Name:      "calls_started_total",
			Help:      "Calls that opened a new session",
		}),
		callsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dermavoice",
			Subsystem: "voice",
			Name:      "calls_ended_total",
			Help:      "Sessions ended, by reason",
		}, []string{"reason"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dermavoice",
			Subsystem: "voice",
			Name:      "turns_total",
			Help:      "Caller turns processed, by outcome",
		}, []string{"outcome"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dermavoice",
			Subsystem: "appointments",
			Name:      "bookings_total",
			Help:      "Booking attempts, by result",
		}, []string{"result"}),
		speechFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dermavoice",
			Subsystem: "speech",
			Name:      "failures_total",
			Help:      "Speech vendor failures, by kind",
		}, []string{"kind"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dermavoice",
			Subsystem: "voice",
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory",
		}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dermavoice",
			Subsystem: "voice",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of telephony webhook handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.callsStarted, m.callsEnded, m.turns, m.bookings, m.speechFailures, m.activeSessions, m.webhookLatency)
	return m
}

// CallStarted counts a new session.
func (m *VoiceMetrics) CallStarted() {
	if m == nil {
		return
	}
	m.callsStarted.Inc()
	m.activeSessions.Inc()
}

// CallEnded counts an ended session.
func (m *VoiceMetrics) CallEnded(reason string) {
	if m == nil {
		return
	}
	m.callsEnded.WithLabelValues(reason).Inc()
	m.activeSessions.Dec()
}

// ObserveTurn counts a caller turn: processed, not_understood, engine_error, ended.
func (m *VoiceMetrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
}

// ObserveBooking counts a booking attempt: booked, conflict, unavailable, error.
func (m *VoiceMetrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(result).Inc()
}

// ObserveSpeechFailure counts a transcription, synthesis or upload failure.
func (m *VoiceMetrics) ObserveSpeechFailure(kind string) {
	if m == nil {
		return
	}
	m.speechFailures.WithLabelValues(kind).Inc()
}

func (m *VoiceMetrics) ObserveWebhookLatency(route string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(route).Observe(seconds)
}

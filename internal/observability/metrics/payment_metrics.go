package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DonationOutcomeCommitted = "committed"
	DonationOutcomeDiscarded = "discarded"
	DonationOutcomeAborted   = "aborted"
	DonationOutcomeRejected  = "rejected"
)

const (
	PollResultPending   = "pending"
	PollResultTransport = "transport_error"
	PollResultTerminal  = "terminal"
)

// PaymentMetrics captures donation lifecycle signals.
type PaymentMetrics struct {
	donations      *prometheus.CounterVec
	pollQueries    *prometheus.CounterVec
	pollOutcomes   *prometheus.CounterVec
	pollDuration   *prometheus.HistogramVec
	callbacks      *prometheus.CounterVec
	attemptsActive prometheus.Gauge
}

var (
	paymentMetricsOnce sync.Once
	paymentMetrics     *PaymentMetrics
)

// NewPaymentMetrics returns the process-wide payment metrics registry.
func NewPaymentMetrics(cfg Config) *PaymentMetrics {
	paymentMetricsOnce.Do(func() {
		paymentMetrics = newPaymentMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return paymentMetrics
}

// NewPaymentMetricsWithRegisterer builds an unshared registry, mostly for tests.
func NewPaymentMetricsWithRegisterer(registerer prometheus.Registerer, cfg Config) *PaymentMetrics {
	return newPaymentMetrics(registerer, cfg)
}

func newPaymentMetrics(registerer prometheus.Registerer, cfg Config) *PaymentMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabelsFor(cfg)

	donations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "donate_donations_total",
		Help:        "Donation attempts by payment method and final outcome.",
		ConstLabels: constLabels,
	}, []string{"method", "outcome"})
	pollQueries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "donate_poll_queries_total",
		Help:        "Status queries issued by the poller by result.",
		ConstLabels: constLabels,
	}, []string{"result"})
	pollOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "donate_poll_outcomes_total",
		Help:        "Poller sessions by terminal status and origin.",
		ConstLabels: constLabels,
	}, []string{"status", "origin"})
	pollDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "donate_poll_duration_seconds",
		Help:        "Time from first status query to terminal result.",
		Buckets:     []float64{1, 2, 5, 10, 15, 20, 30, 45, 60, 90},
		ConstLabels: constLabels,
	}, []string{"status"})
	callbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "donate_callbacks_total",
		Help:        "Inbound gateway callbacks by classified bucket.",
		ConstLabels: constLabels,
	}, []string{"bucket"})
	attemptsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "donate_attempts_in_flight",
		Help:        "Donation attempts currently submitting or polling.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(donations, pollQueries, pollOutcomes, pollDuration, callbacks, attemptsActive)

	return &PaymentMetrics{
		donations:      donations,
		pollQueries:    pollQueries,
		pollOutcomes:   pollOutcomes,
		pollDuration:   pollDuration,
		callbacks:      callbacks,
		attemptsActive: attemptsActive,
	}
}

func constLabelsFor(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "donate-artist"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}

func (m *PaymentMetrics) RecordDonation(method, outcome string) {
	if m == nil {
		return
	}
	m.donations.WithLabelValues(labelOrUnknown(method), labelOrUnknown(outcome)).Inc()
}

func (m *PaymentMetrics) RecordPollQuery(result string) {
	if m == nil {
		return
	}
	m.pollQueries.WithLabelValues(labelOrUnknown(result)).Inc()
}

func (m *PaymentMetrics) RecordPollOutcome(status, origin string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.pollOutcomes.WithLabelValues(labelOrUnknown(status), labelOrUnknown(origin)).Inc()
	m.pollDuration.WithLabelValues(labelOrUnknown(status)).Observe(elapsed.Seconds())
}

func (m *PaymentMetrics) RecordCallback(bucket string) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(labelOrUnknown(bucket)).Inc()
}

// AttemptStarted and AttemptFinished track the in-flight gauge.
func (m *PaymentMetrics) AttemptStarted() {
	if m == nil {
		return
	}
	m.attemptsActive.Inc()
}

func (m *PaymentMetrics) AttemptFinished() {
	if m == nil {
		return
	}
	m.attemptsActive.Dec()
}

func labelOrUnknown(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "unknown"
	}
	return v
}

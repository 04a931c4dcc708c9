package metrics

import (
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// knownErrorCodes bounds the error-code label. Anything else counts as "other".
var knownErrorCodes = []string{
	"missing-input-secret",
	"invalid-input-secret",
	"missing-input-response",
	"invalid-input-response",
	"bad-request",
	"timeout-or-duplicate",
	"internal-error",
}

// Metrics provides observability for the signup gate.
type Metrics struct {
	// Gate decisions by outcome
	Decisions *prometheus.CounterVec

	// Round trip to siteverify, including failed calls
	VerifyLatency prometheus.Histogram

	// Error codes returned with unsuccessful verdicts
	ErrorCodes *prometheus.CounterVec
}

// New registers the gate metrics with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signupgate_gate_decisions_total",
			Help: "Total signup gate decisions by outcome",
		}, []string{"outcome"}),

		VerifyLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "signupgate_turnstile_verify_duration_seconds",
			Help:    "Duration of Turnstile siteverify calls",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		ErrorCodes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signupgate_turnstile_error_codes_total",
			Help: "Turnstile error codes returned with failed verifications",
		}, []string{"code"}),
	}
}

// IncrementDecision records one gate outcome.
func (m *Metrics) IncrementDecision(outcome string) {
	if m != nil {
		m.Decisions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveVerifyLatency(d time.Duration) {
	if m != nil {
		m.VerifyLatency.Observe(d.Seconds())
	}
}

// IncrementErrorCodes counts each code, folding unknown codes into "other".
func (m *Metrics) IncrementErrorCodes(codes []string) {
	if m == nil {
		return
	}
	for _, code := range codes {
		if !slices.Contains(knownErrorCodes, code) {
			code = "other"
		}
		m.ErrorCodes.WithLabelValues(code).Inc()
	}
}

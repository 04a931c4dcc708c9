package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementDecision("verified")
	m.IncrementDecision("verified")
	m.IncrementDecision("token_missing")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Decisions.WithLabelValues("verified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("token_missing")))

	m.IncrementErrorCodes([]string{"invalid-input-response", "something-new", "another-new"})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorCodes.WithLabelValues("invalid-input-response")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ErrorCodes.WithLabelValues("other")))

	m.ObserveVerifyLatency(120 * time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(m.VerifyLatency))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementDecision("verified")
		m.ObserveVerifyLatency(time.Second)
		m.IncrementErrorCodes([]string{"bad-request"})
	})
}

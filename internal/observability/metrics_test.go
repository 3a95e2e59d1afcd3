package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()

	m.RecordVerification("valid", "redeem", 10*time.Millisecond)
	m.RecordVerification("used", "redeem", 5*time.Millisecond)
	m.RecordVerification("used", "redeem", 5*time.Millisecond)
	m.RecordIssuance("created", 3)
	m.RecordSweep("ok", 4)
	m.RecordCancellations(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.verifications.WithLabelValues("valid", "redeem")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.verifications.WithLabelValues("used", "redeem")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ticketsIssued))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ticketsExpired))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticketsCancel))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/verify/:code", "POST", 200, time.Millisecond)
		m.RecordError("/verify/:code", "POST", "NOT_FOUND")
		m.RecordVerification("valid", "redeem", time.Millisecond)
		m.RecordIssuance("created", 1)
		m.RecordCodeCollision()
		m.RecordSweep("ok", 1)
		m.RecordReminders(1)
		m.RecordCancellations(1)
	})
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"upsmon/internal/ups"
)

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePoll(ResultOK, time.Second, time.Now())
		m.ObserveReading(ups.Reading{ups.FieldStatus: "3"})
		m.ObserveChanges(ups.Delta{ups.FieldStatus: {Old: "3", New: "5"}})
		m.ObserveEnqueue("alert")
		m.ObserveDrain(2)
		m.ObserveDelivery("alert", true, time.Second, time.Second)
	})
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	t.Parallel()
	m := New()
	at := time.Unix(1700000000, 0)

	m.ObservePoll(ResultOK, 10*time.Millisecond, at)
	m.ObservePoll(ResultOutage, time.Second, at.Add(time.Minute))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.polls.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.polls.WithLabelValues(ResultOutage)))
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(m.lastPoll))

	m.ObserveChanges(ups.Delta{ups.FieldStatus: {Old: "3", New: "5"}, ups.FieldOutputLoad: {Old: "1", New: "2"}})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.changes.WithLabelValues("status")))

	m.ObserveDelivery("alert", true, time.Second, 0)
	m.ObserveDelivery("alert", false, time.Second, time.Minute)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("alert", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("alert", ResultError)))
}

func TestReadingGauges(t *testing.T) {
	t.Parallel()
	m := New()
	m.ObserveReading(ups.Reading{
		ups.FieldStatus:          "5",
		ups.FieldBatteryCapacity: "87",
		ups.FieldInputVoltage:    "n/a",
	})
	assert.Equal(t, 87.0, testutil.ToFloat64(m.reading.WithLabelValues("battery_capacity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.onBattery))
	assert.Equal(t, 2, testutil.CollectAndCount(m.reading))

	m.ObserveReading(ups.Reading{ups.FieldStatus: "3"})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.onBattery))
}

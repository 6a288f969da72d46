// Package metrics holds the Prometheus collectors of the poller and the
// notifier. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"upsmon/internal/ups"
)

const (
	metricPrefix = "upsmon_"

	ResultOK     = "ok"
	ResultOutage = "outage"
	ResultError  = "error"
)

type Metrics struct {
	reg *prometheus.Registry

	polls      *prometheus.CounterVec
	pollTook   prometheus.Histogram
	lastPoll   prometheus.Gauge
	changes    *prometheus.CounterVec
	enqueued   *prometheus.CounterVec
	drained    prometheus.Counter
	deliveries *prometheus.CounterVec
	sendTook   prometheus.Histogram
	queueAge   prometheus.Histogram
	reading    *prometheus.GaugeVec
	onBattery  prometheus.Gauge
}

// New builds the collectors on a private registry (plus Go and process
// collectors).
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "polls_total",
				Help: "Device polls by result",
			},
			[]string{"result"},
		),
		pollTook: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "poll_duration_seconds",
			Help:    "Device poll duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		lastPoll: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "last_successful_poll_timestamp_seconds",
			Help: "Unix time of the last poll that returned data",
		}),
		changes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "changes_total",
				Help: "Detected field changes by field",
			},
			[]string{"field"},
		),
		enqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "queue_enqueued_total",
				Help: "Queue entries written by type",
			},
			[]string{"type"},
		),
		drained: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "queue_drained_total",
			Help: "Queue entries taken by the notifier",
		}),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "deliveries_total",
				Help: "Delivery outcomes by entry type and result",
			},
			[]string{"type", "result"},
		),
		sendTook: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "delivery_duration_seconds",
			Help:    "Time to deliver one entry including retries",
			Buckets: prometheus.DefBuckets,
		}),
		queueAge: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "queue_wait_seconds",
			Help:    "Time between enqueue and delivery attempt",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 900, 3600},
		}),
		reading: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "reading",
				Help: "Last numeric value read per field",
			},
			[]string{"field"},
		),
		onBattery: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "on_battery",
			Help: "1 when the last status reported battery operation",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.polls,
		m.pollTook,
		m.lastPoll,
		m.changes,
		m.enqueued,
		m.drained,
		m.deliveries,
		m.sendTook,
		m.queueAge,
		m.reading,
		m.onBattery,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// ObservePoll records one poll outcome.
func (m *Metrics) ObservePoll(result string, took time.Duration, at time.Time) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(result).Inc()
	m.pollTook.Observe(took.Seconds())
	if result == ResultOK {
		m.lastPoll.Set(float64(at.Unix()))
	}
}

// ObserveReading exports numeric fields of r. Non-numeric values are skipped.
func (m *Metrics) ObserveReading(r ups.Reading) {
	if m == nil {
		return
	}
	for f, v := range r {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		m.reading.WithLabelValues(string(f)).Set(n)
	}
	if _, ok := r.Get(ups.FieldStatus); ok {
		v := 0.0
		if r.OnBattery() {
			v = 1
		}
		m.onBattery.Set(v)
	}
}

func (m *Metrics) ObserveChanges(d ups.Delta) {
	if m == nil {
		return
	}
	for f := range d {
		m.changes.WithLabelValues(string(f)).Inc()
	}
}

func (m *Metrics) ObserveEnqueue(entryType string) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(entryType).Inc()
}

func (m *Metrics) ObserveDrain(n int) {
	if m == nil {
		return
	}
	m.drained.Add(float64(n))
}

// ObserveDelivery records one delivered (or abandoned) entry.
func (m *Metrics) ObserveDelivery(entryType string, ok bool, took, waited time.Duration) {
	if m == nil {
		return
	}
	result := ResultOK
	if !ok {
		result = ResultError
	}
	m.deliveries.WithLabelValues(entryType, result).Inc()
	m.sendTook.Observe(took.Seconds())
	if waited > 0 {
		m.queueAge.Observe(waited.Seconds())
	}
}

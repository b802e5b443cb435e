package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the dispatcher's Prometheus collectors.
type Metrics struct {
	ticks        prometheus.Counter
	ticksSkipped prometheus.Counter
	dispatches   *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
	retryCount   *prometheus.GaugeVec
	sendDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "report_scheduler_ticks_total",
			Help: "Scheduler ticks that ran.",
		}),
		ticksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "report_scheduler_ticks_skipped_total",
			Help: "Ticks skipped because the previous one was still in flight.",
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "report_dispatch_attempts_total",
			Help: "Report dispatch attempts by report type and result.",
		}, []string{"type", "result"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "report_recipient_deliveries_total",
			Help: "Per-recipient deliveries by report type and result.",
		}, []string{"type", "result"}),
		retryCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "report_retry_count",
			Help: "Current retry count per report type.",
		}, []string{"type"}),
		sendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "report_send_duration_seconds",
			Help:    "Time to generate and deliver one report batch.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"type"}),
	}

	reg.MustRegister(m.ticks, m.ticksSkipped, m.dispatches, m.deliveries, m.retryCount, m.sendDuration)
	return m
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

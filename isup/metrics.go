// SPDX-License-Identifier: GPL-3.0-or-later

package isup

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rbmk-project/censordetect/metrics"
)

// Metrics contains the oracle metrics. A nil [*Metrics] is valid
// and does not update anything.
type Metrics struct {
	// RequestsCount counts the requests by status code and reason.
	RequestsCount *prometheus.CounterVec

	// RequestsInflight gauges the requests being served.
	RequestsInflight prometheus.Gauge

	// ProbeDuration summarizes the time to probe a URL.
	ProbeDuration prometheus.Summary
}

// NewMetrics creates [*Metrics] registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "isupd_requests_count",
			Help: "Total number of processed requests",
		}, []string{"code", "reason"}),
		RequestsInflight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "isupd_requests_inflight_gauge",
			Help: "The number or requests currently inflight",
		}),
		ProbeDuration: factory.NewSummary(prometheus.SummaryOpts{
			Name:       "isupd_probe_duration_seconds",
			Help:       "Summarizes the time to probe a URL (in seconds)",
			Objectives: metrics.SummaryObjectives(),
		}),
	}
}

func (m *Metrics) inflight(delta float64) {
	if m != nil {
		m.RequestsInflight.Add(delta)
	}
}

func (m *Metrics) request(code int, reason string) {
	if m != nil {
		m.RequestsCount.WithLabelValues(strconv.Itoa(code), reason).Inc()
	}
}

func (m *Metrics) duration(elapsed time.Duration) {
	if m != nil {
		m.ProbeDuration.Observe(elapsed.Seconds())
	}
}

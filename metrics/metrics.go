// SPDX-License-Identifier: GPL-3.0-or-later

// Package metrics exports the detector progress as Prometheus metrics.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rbmk-project/censordetect/detector"
	"github.com/rbmk-project/censordetect/model"
)

// Outcome labels of [Observer.Checks].
const (
	OutcomeDetected     = "detected"
	OutcomeNotDetected  = "not_detected"
	OutcomeInconclusive = "inconclusive"
	OutcomeError        = "error"
)

// SummaryObjectives returns the objectives of the duration summaries.
func SummaryObjectives() map[float64]float64 {
	return map[float64]float64{
		0.25: 0.010, // 0.240 <= φ <= 0.260
		0.5:  0.010, // 0.490 <= φ <= 0.510
		0.75: 0.010, // 0.740 <= φ <= 0.760
		0.9:  0.010, // 0.899 <= φ <= 0.901
		0.99: 0.001, // 0.989 <= φ <= 0.991
	}
}

// Observer is a [detector.Observer] updating Prometheus metrics.
//
// Construct using [New].
type Observer struct {
	// Checks counts the settled checks by name and outcome.
	Checks *prometheus.CounterVec

	// Failures counts the failures reaching the detector by kind.
	Failures *prometheus.CounterVec

	// Probation counts the failures ignored because of probation.
	Probation prometheus.Counter

	// SessionDuration summarizes the time to settle all checks.
	SessionDuration prometheus.Summary

	// SessionsInflight gauges the sessions currently running.
	SessionsInflight prometheus.Gauge

	mu      sync.Mutex
	started map[sessionKey]time.Time
}

// sessionKey identifies a session across its events.
type sessionKey struct {
	host      string
	kind      model.EventKind
	requestID string
}

// Ensure that [*Observer] implements [detector.Observer].
var _ detector.Observer = &Observer{}

// New creates a new [*Observer] registering its metrics with reg.
func New(reg prometheus.Registerer) *Observer {
	factory := promauto.With(reg)
	return &Observer{
		Checks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "censordetect_checks_total",
			Help: "Total number of settled checks",
		}, []string{"check", "outcome"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "censordetect_failures_total",
			Help: "Total number of failures reaching the detector",
		}, []string{"kind"}),
		Probation: factory.NewCounter(prometheus.CounterOpts{
			Name: "censordetect_probation_skips_total",
			Help: "Total number of failures ignored because the host is in probation",
		}),
		SessionDuration: factory.NewSummary(prometheus.SummaryOpts{
			Name:       "censordetect_session_duration_seconds",
			Help:       "Summarizes the time to settle all the checks of a session (in seconds)",
			Objectives: SummaryObjectives(),
		}),
		SessionsInflight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "censordetect_sessions_inflight_gauge",
			Help: "The number of sessions currently running",
		}),
		started: map[sessionKey]time.Time{},
	}
}

// OnEvent implements [detector.Observer].
func (o *Observer) OnEvent(ev *detector.Event) {
	key := sessionKey{host: ev.Host, kind: ev.Kind, requestID: ev.RequestID}
	switch ev.Type {
	case detector.EventListenerRan:
		o.Failures.WithLabelValues(string(ev.Kind)).Inc()

	case detector.EventHostProbation:
		o.Probation.Inc()

	case detector.EventChecksStarted:
		o.SessionsInflight.Inc()
		o.mu.Lock()
		o.started[key] = ev.Time
		o.mu.Unlock()

	case detector.EventCheckSucceeded:
		o.Checks.WithLabelValues(ev.Check.Name, OutcomeDetected).Inc()

	case detector.EventCheckFailed:
		o.Checks.WithLabelValues(ev.Check.Name, failedOutcome(ev.Err)).Inc()

	case detector.EventChecksEnded:
		o.SessionsInflight.Dec()
		o.mu.Lock()
		t0, found := o.started[key]
		delete(o.started, key)
		o.mu.Unlock()
		if found {
			o.SessionDuration.Observe(ev.Time.Sub(t0).Seconds())
		}
	}
}

// failedOutcome returns the outcome label of a failed check.
func failedOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeNotDetected
	case errors.Is(err, model.ErrInconclusiveBaseline):
		return OutcomeInconclusive
	default:
		return OutcomeError
	}
}

package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nexa"

// Outcome labels shared by the domain counters.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultError    = "error"

	OutcomeApplied  = "applied"
	OutcomeReplay   = "replay"
	OutcomeNotFound = "not_found"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Metrics holds the domain counters for authentication and payment reconciliation.
type Metrics struct {
	Logins    *prometheus.CounterVec
	Refreshes *prometheus.CounterVec
	Callbacks *prometheus.CounterVec
}

// NewMetrics registers the domain counters with reg (prometheus.DefaultRegisterer when nil).
// Re-registration returns the already registered collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	logins, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "logins_total",
		Help:      "Login attempts partitioned by surface and result.",
	}, []string{"surface", "result"}))
	if err != nil {
		return nil, err
	}

	refreshes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "refresh_total",
		Help:      "Refresh token rotations partitioned by result.",
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}

	callbacks, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payment",
		Name:      "callbacks_total",
		Help:      "Payment gateway callbacks partitioned by gateway state and reconciliation outcome.",
	}, []string{"state", "outcome"}))
	if err != nil {
		return nil, err
	}

	return &Metrics{Logins: logins, Refreshes: refreshes, Callbacks: callbacks}, nil
}

// ObserveLogin counts one login attempt.
func (m *Metrics) ObserveLogin(surface, result string) {
	m.Logins.WithLabelValues(surface, result).Inc()
}

// ObserveRefresh counts one refresh attempt.
func (m *Metrics) ObserveRefresh(result string) {
	m.Refreshes.WithLabelValues(result).Inc()
}

// ObserveCallback counts one reconciliation, from a webhook or a status poll.
func (m *Metrics) ObserveCallback(state, outcome string) {
	if state == "" {
		state = "UNKNOWN"
	}
	m.Callbacks.WithLabelValues(state, outcome).Inc()
}

func registerCounterVec(reg prometheus.Registerer, collector *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(collector); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return nil, fmt.Errorf("register collector: %w", err)
	}
	return collector, nil
}

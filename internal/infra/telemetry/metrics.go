package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nisum/oppenheimer/internal/core/port"
)

// DefaultNamespace prefixes every collector the service exports.
const DefaultNamespace = "oppenheimer"

// Register registers collector with reg. When an equivalent collector is
// already registered the existing one is returned instead.
func Register[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return collector, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return collector, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return collector, nil
}

// AuthMetrics counts registration outcomes and token verification results.
type AuthMetrics struct {
	Registrations      *prometheus.CounterVec
	TokenVerifications *prometheus.CounterVec
}

// NewAuthMetrics builds and registers the auth counters.
func NewAuthMetrics(reg prometheus.Registerer, namespace string) (*AuthMetrics, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	registrations, err := Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registration_total",
		Help:      "Registration attempts partitioned by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	verifications, err := Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_verifications_total",
		Help:      "Token verifications partitioned by result.",
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{
		Registrations:      registrations,
		TokenVerifications: verifications,
	}, nil
}

func (m *AuthMetrics) ObserveRegistration(outcome string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(outcome).Inc()
}

func (m *AuthMetrics) ObserveTokenVerification(result string) {
	if m == nil {
		return
	}
	m.TokenVerifications.WithLabelValues(result).Inc()
}

var _ port.AuthMetrics = (*AuthMetrics)(nil)

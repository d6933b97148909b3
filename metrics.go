package adbind

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks authentication metrics. A nil *Metrics records nothing.
type Metrics struct {
	// AttemptsTotal counts authentication attempts by result.
	AttemptsTotal *prometheus.CounterVec

	// AttemptDuration tracks end-to-end authentication latency by result.
	AttemptDuration *prometheus.HistogramVec

	// SearchesTotal counts directory searches by status.
	SearchesTotal *prometheus.CounterVec

	// SearchDuration tracks directory search latency.
	SearchDuration prometheus.Histogram

	// RolesResolved tracks the size of resolved role sets.
	RolesResolved prometheus.Histogram

	// RemapsTotal counts secondary store lookups by result.
	RemapsTotal *prometheus.CounterVec

	// LockedOut tracks the number of usernames currently locked out.
	LockedOut prometheus.Gauge
}

// Result labels.
const (
	ResultSuccess        = "success"
	ResultBadCredentials = "bad_credentials"
	ResultMappingFailed  = "mapping_not_found"
	ResultServiceError   = "service_error"
	ResultLimited        = "limited"
	ResultNotFound       = "not_found"
	ResultConfigError    = "config_error"
)

// NewMetrics creates metrics with the adbind_ prefix and registers them on reg.
// It panics if registration fails.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adbind_authentication_attempts_total",
				Help: "Total authentication attempts by result",
			},
			[]string{"result"},
		),
		AttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adbind_authentication_duration_seconds",
				Help:    "Authentication duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adbind_directory_searches_total",
				Help: "Total directory searches by status",
			},
			[]string{"status"},
		),
		SearchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "adbind_directory_search_duration_seconds",
				Help:    "Directory search duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		RolesResolved: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "adbind_roles_resolved",
				Help:    "Number of roles granted per successful authentication",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),
		RemapsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adbind_identity_remaps_total",
				Help: "Total secondary store lookups by result",
			},
			[]string{"result"},
		),
		LockedOut: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "adbind_locked_out_usernames",
				Help: "Number of usernames currently locked out",
			},
		),
	}

	reg.MustRegister(
		m.AttemptsTotal,
		m.AttemptDuration,
		m.SearchesTotal,
		m.SearchDuration,
		m.RolesResolved,
		m.RemapsTotal,
		m.LockedOut,
	)

	return m
}

// RecordAttempt records a finished authentication attempt.
func (m *Metrics) RecordAttempt(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(result).Inc()
	m.AttemptDuration.WithLabelValues(result).Observe(d.Seconds())
}

// RecordRoles records the size of a granted role set.
func (m *Metrics) RecordRoles(n int) {
	if m == nil {
		return
	}
	m.RolesResolved.Observe(float64(n))
}

// RecordRemap records a secondary store lookup.
func (m *Metrics) RecordRemap(result string) {
	if m == nil {
		return
	}
	m.RemapsTotal.WithLabelValues(result).Inc()
}

// SetLockedOut updates the locked out gauge.
func (m *Metrics) SetLockedOut(n int) {
	if m == nil {
		return
	}
	m.LockedOut.Set(float64(n))
}

func (m *Metrics) observeSearch(err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.SearchesTotal.WithLabelValues(status).Inc()
	m.SearchDuration.Observe(d.Seconds())
}

// ResultOf maps an authentication error to its metric label.
func ResultOf(err error) string {
	var cfgErr *ConfigError
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrAttemptLimited):
		return ResultLimited
	case errors.Is(err, ErrBadCredentials):
		return ResultBadCredentials
	case errors.Is(err, ErrMappingNotFound):
		return ResultMappingFailed
	case errors.Is(err, ErrUserNotFound):
		return ResultNotFound
	case errors.As(err, &cfgErr):
		return ResultConfigError
	default:
		return ResultServiceError
	}
}

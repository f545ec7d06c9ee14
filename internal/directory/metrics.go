package directory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authOutcomes = promauto.NewCounterVec( //nolint:gochecknoglobals
		prometheus.CounterOpts{
			Name: "ldapgate_directory_auth_outcomes_total",
			Help: "Number of directory authentications, differentiated by outcome.",
		},
		[]string{"outcome"},
	)

	connectAttempts = promauto.NewCounterVec( //nolint:gochecknoglobals
		prometheus.CounterOpts{
			Name: "ldapgate_directory_connect_attempts_total",
			Help: "Number of directory connect attempts, differentiated by result.",
		},
		[]string{"result"},
	)

	authDuration = promauto.NewHistogram( //nolint:gochecknoglobals
		prometheus.HistogramOpts{
			Name:    "ldapgate_directory_auth_duration_seconds",
			Help:    "Duration of directory authentications including every suffix tried.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		},
	)
)

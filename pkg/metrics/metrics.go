package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PermissionChecks counts guard decisions by outcome:
	// allowed, denied, unauthenticated, undeclared, error.
	PermissionChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "permission_checks_total",
		Help: "Guard decisions by outcome.",
	}, []string{"result"})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "permission_cache_hits_total",
		Help: "Resolved-permission cache hits.",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "permission_cache_misses_total",
		Help: "Resolved-permission cache misses.",
	})

	CoalescerMerges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "permission_coalescer_merges_total",
		Help: "Events merged into an already-pending notification.",
	})

	CoalescerDispatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "permission_coalescer_dispatches_total",
		Help: "Merged notifications handed to the sink.",
	})

	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "permission_notification_failures_total",
		Help: "Notification deliveries that failed after retry.",
	})
)

// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PlanDeliveries counts delivery cycles by result.
	PlanDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coach_plan_deliveries_total",
		Help: "Weekly plan delivery cycles, labeled by result.",
	}, []string{"result"})

	// GenerationFallbacks counts deliveries that used synthesized content
	// because the external generator failed.
	GenerationFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coach_generation_fallbacks_total",
		Help: "Plan generations resolved by the deterministic fallback.",
	})

	// ScheduleSaveConflicts counts optimistic-concurrency conflicts on
	// schedule saves (each retried save attempt increments once).
	ScheduleSaveConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coach_schedule_save_conflicts_total",
		Help: "Version conflicts encountered while saving schedules.",
	})

	// BackgroundJobFailures counts background generation jobs that were
	// dropped or failed.
	BackgroundJobFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coach_background_job_failures_total",
		Help: "Background generation jobs that failed or were dropped.",
	})
)

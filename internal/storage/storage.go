package storage

import (
	"context"

	"stridecoach/coach-app/internal/domain"
)

// PlanArchive defines the interface for archiving generated plan
// snapshots in object storage. All operations are best-effort from the
// engine's point of view; a failed archive never fails a delivery.
type PlanArchive interface {
	// StorePlan writes the plan's JSON snapshot to the archive bucket.
	StorePlan(ctx context.Context, plan *domain.WeeklyPlan) error

	// DeleteUserPlans removes every archived snapshot for the user.
	DeleteUserPlans(ctx context.Context, userID string) error
}

// NoopArchive is used when archiving is disabled in config.
type NoopArchive struct{}

func (NoopArchive) StorePlan(context.Context, *domain.WeeklyPlan) error { return nil }
func (NoopArchive) DeleteUserPlans(context.Context, string) error       { return nil }

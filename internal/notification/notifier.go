// Package notification triggers delivery notifications. Channel
// implementations (email, SMS, push) plug in behind the Notifier
// interface; the default provider only logs.
package notification

import (
	"context"

	"stridecoach/coach-app/internal/domain"

	"go.uber.org/zap"
)

// Notifier is called fire-and-forget after a plan delivery. Failures are
// the implementation's problem; callers never wait on or observe them.
type Notifier interface {
	PlanDelivered(ctx context.Context, schedule *domain.DeliverySchedule, plan *domain.WeeklyPlan)
}

// logNotifier is the default provider: it records the delivery and does
// nothing else.
type logNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a Notifier that only logs deliveries.
func NewLogNotifier(logger *zap.Logger) Notifier {
	return &logNotifier{logger: logger}
}

func (n *logNotifier) PlanDelivered(_ context.Context, schedule *domain.DeliverySchedule, plan *domain.WeeklyPlan) {
	n.logger.Info("plan delivery notification",
		zap.String("userId", schedule.UserID.Hex()),
		zap.String("planId", plan.ID),
		zap.Int("weekNumber", plan.WeekNumber),
		zap.String("name", schedule.Profile.Name))
}

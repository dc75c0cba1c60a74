package service

import (
	"stridecoach/coach-app/internal/domain"
)

// ProgressionCalculator decides which week to generate next and how the
// training phase rotates. Pure logic, no side effects.
type ProgressionCalculator struct{}

// NewProgressionCalculator creates a new instance of ProgressionCalculator.
func NewProgressionCalculator() *ProgressionCalculator {
	return &ProgressionCalculator{}
}

// TargetWeek returns the week number the next generated plan should
// cover. A reset always lands on week one; otherwise the current week
// advances by one, treating a missing or zero week as week one.
func (c *ProgressionCalculator) TargetWeek(schedule *domain.DeliverySchedule, resetToWeekOne bool) int {
	if resetToWeekOne {
		return 1
	}
	current := schedule.Progress.WeekNumber
	if current < 1 {
		current = 1
	}
	return current + 1
}

// PhaseForWeek returns the phase in effect for the given target week.
// The rotation boundary fires on every fourth week: entering a week
// divisible by four advances the phase through the fixed cycle.
func (c *ProgressionCalculator) PhaseForWeek(current domain.Phase, targetWeek int) domain.Phase {
	if current == "" {
		current = domain.PhaseBase
	}
	if targetWeek > 0 && targetWeek%4 == 0 {
		return current.Next()
	}
	return current
}

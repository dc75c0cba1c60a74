// Package generator defines the call contract with the external AI
// plan-content service. The engine never depends on a concrete client;
// any failure from a PlanGenerator is resolved by fallback synthesis in
// the generation pipeline.
package generator

import (
	"context"
	"errors"

	"stridecoach/coach-app/internal/domain"
)

// ErrDisabled is returned by the generator created with Disabled.
var ErrDisabled = errors.New("plan generator is disabled")

// RecentPerformance summarizes one recently delivered week for the
// generator's context window.
type RecentPerformance struct {
	WeekNumber     int     `json:"weekNumber"`
	WasCompleted   bool    `json:"wasCompleted"`
	CompletionRate float64 `json:"completionRate,omitempty"`
}

// Request is the payload sent to the plan-content generator.
type Request struct {
	Profile             domain.UserProfile         `json:"userProfile"`
	WeekNumber          int                        `json:"weekNumber"`
	CurrentPhase        domain.Phase               `json:"currentPhase"`
	TotalWeeksDelivered int                        `json:"totalWeeksDelivered"`
	LastWeeklyDistance  float64                    `json:"lastWeeklyDistance,omitempty"`
	ProgressionRate     float64                    `json:"progressionRate,omitempty"`
	LongTermGoal        *domain.LongTermGoal       `json:"longTermGoal,omitempty"`
	Adaptation          domain.AdaptationSettings  `json:"adaptationSettings"`
	RecentPerformance   []RecentPerformance        `json:"recentPerformance,omitempty"`
	PlanType            string                     `json:"planType"`
	Frequency           domain.DeliveryFrequency   `json:"deliveryFrequency"`
}

// RawWorkout mirrors domain.Workout on the wire.
type RawWorkout struct {
	Type            string  `json:"type,omitempty"`
	DurationMinutes int     `json:"duration_minutes,omitempty"`
	DistanceKm      float64 `json:"distance_km,omitempty"`
	MainWorkout     string  `json:"main_workout,omitempty"`
	Notes           string  `json:"notes,omitempty"`
}

// RawDay is a single day as returned by the generator. Generators are
// not trusted to produce a consistent shape: the workout may arrive
// nested under "workout" or flattened onto the day itself, the day name
// may be abbreviated or non-English, and the date may be missing. The
// pipeline normalizes all of this.
type RawDay struct {
	DayName string      `json:"day_name"`
	Date    string      `json:"date,omitempty"`
	Workout *RawWorkout `json:"workout,omitempty"`

	// Flattened fields some generator outputs use instead of a nested
	// workout object.
	Type            string  `json:"type,omitempty"`
	DurationMinutes int     `json:"duration_minutes,omitempty"`
	DistanceKm      float64 `json:"distance_km,omitempty"`
	MainWorkout     string  `json:"main_workout,omitempty"`
}

// RawWeek is a single week of generator output.
type RawWeek struct {
	WeekNum int      `json:"week_num"`
	Focus   string   `json:"focus,omitempty"`
	Days    []RawDay `json:"days"`
}

// Content is the full generator output: metadata plus plan weeks. Any ID
// the generator includes is discarded downstream.
type Content struct {
	Metadata domain.PlanMetadata `json:"metadata"`
	Weeks    []RawWeek           `json:"plan_weeks"`
}

// PlanGenerator produces plan content for a request, or fails. Callers
// must treat every error as recoverable via fallback synthesis.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, req *Request) (*Content, error)
}

// Disabled returns a PlanGenerator that always fails with ErrDisabled.
// Wired when no external generator is configured, so every delivery
// takes the fallback-synthesis path.
func Disabled() PlanGenerator { return disabledGenerator{} }

type disabledGenerator struct{}

func (disabledGenerator) GeneratePlan(context.Context, *Request) (*Content, error) {
	return nil, ErrDisabled
}

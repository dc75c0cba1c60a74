package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeliveryFrequency controls how often a new weekly plan is delivered.
type DeliveryFrequency string

const (
	FrequencyWeekly   DeliveryFrequency = "weekly"
	FrequencyBiweekly DeliveryFrequency = "biweekly"
)

// Phase is the coarse training-periodization label. It cycles every
// four completed weeks: base -> build -> peak -> recovery -> base.
type Phase string

const (
	PhaseBase     Phase = "base"
	PhaseBuild    Phase = "build"
	PhasePeak     Phase = "peak"
	PhaseRecovery Phase = "recovery"
)

// Next returns the phase that follows p in the fixed rotation.
func (p Phase) Next() Phase {
	switch p {
	case PhaseBase:
		return PhaseBuild
	case PhaseBuild:
		return PhasePeak
	case PhasePeak:
		return PhaseRecovery
	case PhaseRecovery:
		return PhaseBase
	default:
		return PhaseBase
	}
}

// MaxRecentPlans caps how many plan references a schedule keeps.
const MaxRecentPlans = 4

// UserProfile is the snapshot of athlete data used to seed plan generation.
type UserProfile struct {
	Name           string  `bson:"name" json:"name"`
	Age            int     `bson:"age,omitempty" json:"age,omitempty"`
	Level          string  `bson:"level,omitempty" json:"level,omitempty"` // e.g. "beginner", "intermediate", "advanced"
	Goal           string  `bson:"goal,omitempty" json:"goal,omitempty"`   // e.g. "5k", "marathon", "general fitness"
	DaysPerWeek    int     `bson:"daysPerWeek" json:"daysPerWeek"`
	WeeklyDistance float64 `bson:"weeklyDistance,omitempty" json:"weeklyDistance,omitempty"` // km
	HasInjuries    bool    `bson:"hasInjuries" json:"hasInjuries"`
}

// ProgressTracking records where the athlete is in the open-ended program.
type ProgressTracking struct {
	WeekNumber          int     `bson:"weekNumber" json:"weekNumber"`                   // >= 1
	TotalWeeksDelivered int     `bson:"totalWeeksDelivered" json:"totalWeeksDelivered"` // >= 0
	CurrentPhase        Phase   `bson:"currentPhase" json:"currentPhase"`
	LastWeeklyDistance  float64 `bson:"lastWeeklyDistance,omitempty" json:"lastWeeklyDistance,omitempty"`
	ProgressionRate     float64 `bson:"progressionRate,omitempty" json:"progressionRate,omitempty"`
}

// NewProgressTracking returns the week-one starting state.
func NewProgressTracking() ProgressTracking {
	return ProgressTracking{
		WeekNumber:          1,
		TotalWeeksDelivered: 0,
		CurrentPhase:        PhaseBase,
		ProgressionRate:     1.0,
	}
}

// LongTermGoal is an optional target event the progression builds toward.
type LongTermGoal struct {
	TargetEvent    string     `bson:"targetEvent" json:"targetEvent"` // e.g. "half marathon"
	TargetDate     *time.Time `bson:"targetDate,omitempty" json:"targetDate,omitempty"`
	TargetTime     string     `bson:"targetTime,omitempty" json:"targetTime,omitempty"` // e.g. "1:45:00"
	RemainingWeeks int        `bson:"remainingWeeks,omitempty" json:"remainingWeeks,omitempty"`
}

// AdaptationSettings bound how aggressively generated plans may progress.
type AdaptationSettings struct {
	AllowAutoAdjustments bool    `bson:"allowAutoAdjustments" json:"allowAutoAdjustments"`
	MaxWeeklyIncrease    float64 `bson:"maxWeeklyIncrease,omitempty" json:"maxWeeklyIncrease,omitempty"` // fraction, e.g. 0.1
	MinRecoveryWeeks     int     `bson:"minRecoveryWeeks,omitempty" json:"minRecoveryWeeks,omitempty"`
}

// PlanRating is the optional feedback an athlete attaches when completing a week.
type PlanRating struct {
	Difficulty int    `bson:"difficulty,omitempty" json:"difficulty,omitempty"` // 1-5
	Enjoyment  int    `bson:"enjoyment,omitempty" json:"enjoyment,omitempty"`   // 1-5
	Comment    string `bson:"comment,omitempty" json:"comment,omitempty"`
}

// RecentPlanRef is a lightweight back-reference to a delivered plan.
// A schedule keeps at most MaxRecentPlans of these, newest first,
// deduplicated by PlanID.
type RecentPlanRef struct {
	WeekNumber     int         `bson:"weekNumber" json:"weekNumber"`
	PlanID         string      `bson:"planId" json:"planId"`
	DeliveryDate   time.Time   `bson:"deliveryDate" json:"deliveryDate"`
	WasCompleted   bool        `bson:"wasCompleted" json:"wasCompleted"`
	CompletionRate float64     `bson:"completionRate,omitempty" json:"completionRate,omitempty"` // percent
	Rating         *PlanRating `bson:"ratingData,omitempty" json:"ratingData,omitempty"`
}

// DeliverySchedule is the persistent record of a user's recurring-delivery
// configuration and progression state. At most one active schedule exists
// per user.
type DeliverySchedule struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID           primitive.ObjectID `bson:"userId" json:"userId"`
	Profile          UserProfile        `bson:"userProfile" json:"userProfile"`
	Frequency        DeliveryFrequency  `bson:"deliveryFrequency" json:"deliveryFrequency"`
	DeliveryDay      string             `bson:"deliveryDay" json:"deliveryDay"`   // canonical weekday token, e.g. "monday"
	DeliveryTime     string             `bson:"deliveryTime" json:"deliveryTime"` // "HH:MM" local time
	Timezone         string             `bson:"timezone" json:"timezone"`         // IANA name
	IsActive         bool               `bson:"isActive" json:"isActive"`
	PausedUntil      *time.Time         `bson:"pausedUntil,omitempty" json:"pausedUntil,omitempty"`
	LastDeliveryDate *time.Time         `bson:"lastDeliveryDate,omitempty" json:"lastDeliveryDate,omitempty"`
	NextDeliveryDate time.Time          `bson:"nextDeliveryDate" json:"nextDeliveryDate"`
	Progress         ProgressTracking   `bson:"progressTracking" json:"progressTracking"`
	LongTermGoal     *LongTermGoal      `bson:"longTermGoal,omitempty" json:"longTermGoal,omitempty"`
	Adaptation       AdaptationSettings `bson:"adaptationSettings" json:"adaptationSettings"`
	RecentPlans      []RecentPlanRef    `bson:"recentPlans,omitempty" json:"recentPlans,omitempty"`
	Version          int64              `bson:"version" json:"-"` // optimistic concurrency token
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`

	// Transient marks a schedule that only exists in memory, used for
	// one-off plan generation without a persisted parent. Set exclusively
	// by NewTransientSchedule; the engine skips schedule persistence for
	// transient records.
	Transient bool `bson:"-" json:"-"`
}

// NewTransientSchedule builds an in-memory schedule seeded with sensible
// defaults for a user who has no persisted schedule. The result is never
// saved.
func NewTransientSchedule(userID primitive.ObjectID, profile UserProfile) *DeliverySchedule {
	if profile.DaysPerWeek <= 0 {
		profile.DaysPerWeek = 3
	}
	now := time.Now().UTC()
	return &DeliverySchedule{
		UserID:       userID,
		Profile:      profile,
		Frequency:    FrequencyWeekly,
		DeliveryDay:  "monday",
		DeliveryTime: "07:00",
		Timezone:     "UTC",
		IsActive:     false,
		Progress:     NewProgressTracking(),
		Adaptation:   AdaptationSettings{AllowAutoAdjustments: true, MaxWeeklyIncrease: 0.1, MinRecoveryWeeks: 1},
		CreatedAt:    now,
		UpdatedAt:    now,
		Transient:    true,
	}
}

// FindRecentPlan returns the reference with the given plan ID, or nil.
func (s *DeliverySchedule) FindRecentPlan(planID string) *RecentPlanRef {
	for i := range s.RecentPlans {
		if s.RecentPlans[i].PlanID == planID {
			return &s.RecentPlans[i]
		}
	}
	return nil
}

// FindRecentPlanByWeek returns the newest reference for the given week, or nil.
func (s *DeliverySchedule) FindRecentPlanByWeek(week int) *RecentPlanRef {
	for i := range s.RecentPlans {
		if s.RecentPlans[i].WeekNumber == week {
			return &s.RecentPlans[i]
		}
	}
	return nil
}

// IsPaused reports whether the schedule is paused at the given instant.
func (s *DeliverySchedule) IsPaused(at time.Time) bool {
	return s.PausedUntil != nil && s.PausedUntil.After(at)
}

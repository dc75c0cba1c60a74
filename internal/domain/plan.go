package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PlanTypeWeekly is the only plan type the delivery engine produces today.
const PlanTypeWeekly = "weekly"

// Workout describes a single day's session.
type Workout struct {
	Type            string  `bson:"type" json:"type"` // e.g. "easy", "tempo", "long", "recovery"
	DurationMinutes int     `bson:"duration_minutes,omitempty" json:"duration_minutes,omitempty"`
	DistanceKm      float64 `bson:"distance_km,omitempty" json:"distance_km,omitempty"`
	MainWorkout     string  `bson:"main_workout,omitempty" json:"main_workout,omitempty"`
	Notes           string  `bson:"notes,omitempty" json:"notes,omitempty"`
}

// PlanDay is one scheduled day inside a plan week. DayName holds the
// canonical lowercase English weekday token; Date is the calendar date
// in YYYY-MM-DD form.
type PlanDay struct {
	DayName string  `bson:"day_name" json:"day_name"`
	Date    string  `bson:"date" json:"date"`
	Workout Workout `bson:"workout" json:"workout"`
}

// PlanWeek groups the days of a single training week.
type PlanWeek struct {
	WeekNum int       `bson:"week_num" json:"week_num"`
	Focus   string    `bson:"focus,omitempty" json:"focus,omitempty"`
	Days    []PlanDay `bson:"days" json:"days"`
}

// PlanMetadata carries descriptive attributes of a generated plan.
type PlanMetadata struct {
	Discipline  string `bson:"discipline,omitempty" json:"discipline,omitempty"` // e.g. "running"
	TargetGroup string `bson:"targetGroup,omitempty" json:"targetGroup,omitempty"`
	Goal        string `bson:"goal,omitempty" json:"goal,omitempty"`
	LevelHint   string `bson:"levelHint,omitempty" json:"levelHint,omitempty"`
	DaysPerWeek int    `bson:"daysPerWeek,omitempty" json:"daysPerWeek,omitempty"`
	Duration    string `bson:"duration,omitempty" json:"duration,omitempty"` // e.g. "1 week"
	Description string `bson:"description,omitempty" json:"description,omitempty"`
}

// PlanProgress is the only part of a plan that mutates after creation.
type PlanProgress struct {
	WasCompleted   bool        `bson:"wasCompleted" json:"wasCompleted"`
	WasRated       bool        `bson:"wasRated" json:"wasRated"`
	CompletionRate float64     `bson:"completionRate,omitempty" json:"completionRate,omitempty"` // percent
	Rating         *PlanRating `bson:"ratingData,omitempty" json:"ratingData,omitempty"`
	CompletedAt    *time.Time  `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
}

// WeeklyPlan is a single generated week's training content. Content is
// immutable once created; only Progress changes afterwards. The ID is a
// UUID assigned by the generation pipeline, never by the external
// generator.
type WeeklyPlan struct {
	ID             string              `bson:"_id" json:"id"`
	UserID         primitive.ObjectID  `bson:"userId" json:"userId"`
	ParentSchedule *primitive.ObjectID `bson:"parentSchedule,omitempty" json:"parentSchedule,omitempty"`
	PlanType       string              `bson:"planType" json:"planType"`
	WeekNumber     int                 `bson:"weekNumber" json:"weekNumber"`
	Metadata       PlanMetadata        `bson:"metadata" json:"metadata"`
	Weeks          []PlanWeek          `bson:"plan_weeks" json:"plan_weeks"`
	Progress       PlanProgress        `bson:"progress" json:"progress"`
	CreatedAt      time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time           `bson:"updatedAt" json:"updatedAt"`
}

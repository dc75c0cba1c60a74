package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stridecoach/coach-app/internal/domain"
	"stridecoach/coach-app/internal/generator"
	"stridecoach/coach-app/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GenerationPipeline orchestrates plan generation: build the request,
// call the external generator, synthesize a deterministic fallback on
// failure, normalize the returned shape, and assign a fresh identity.
// Generate never fails for generation reasons; availability is traded
// for plan quality.
type GenerationPipeline struct {
	generator generator.PlanGenerator
	logger    *zap.Logger
	now       func() time.Time
}

// NewGenerationPipeline creates a new pipeline around a generator client.
func NewGenerationPipeline(gen generator.PlanGenerator, logger *zap.Logger) *GenerationPipeline {
	return &GenerationPipeline{
		generator: gen,
		logger:    logger,
		now:       time.Now,
	}
}

// BuildRequest assembles the generator payload from a schedule snapshot
// and the target week.
func (p *GenerationPipeline) BuildRequest(schedule *domain.DeliverySchedule, targetWeek int, phase domain.Phase) *generator.Request {
	recent := make([]generator.RecentPerformance, 0, len(schedule.RecentPlans))
	for _, ref := range schedule.RecentPlans {
		recent = append(recent, generator.RecentPerformance{
			WeekNumber:     ref.WeekNumber,
			WasCompleted:   ref.WasCompleted,
			CompletionRate: ref.CompletionRate,
		})
	}
	return &generator.Request{
		Profile:             schedule.Profile,
		WeekNumber:          targetWeek,
		CurrentPhase:        phase,
		TotalWeeksDelivered: schedule.Progress.TotalWeeksDelivered,
		LastWeeklyDistance:  schedule.Progress.LastWeeklyDistance,
		ProgressionRate:     schedule.Progress.ProgressionRate,
		LongTermGoal:        schedule.LongTermGoal,
		Adaptation:          schedule.Adaptation,
		RecentPerformance:   recent,
		PlanType:            domain.PlanTypeWeekly,
		Frequency:           schedule.Frequency,
	}
}

// Generate produces a normalized weekly plan with a fresh unique ID.
// Generator failures are caught here and resolved with fallback content;
// the returned plan is always structurally valid. The caller fills in
// UserID and ParentSchedule before persisting.
func (p *GenerationPipeline) Generate(ctx context.Context, req *generator.Request) *domain.WeeklyPlan {
	content, err := p.generator.GeneratePlan(ctx, req)
	if err != nil || content == nil || len(content.Weeks) == 0 {
		if err != nil {
			p.logger.Warn("plan generator failed, using fallback",
				zap.Int("weekNumber", req.WeekNumber),
				zap.Error(err))
		}
		metrics.GenerationFallbacks.Inc()
		content = p.fallbackContent(req)
	}

	weeks := p.normalizeWeeks(content.Weeks, req.WeekNumber)

	metadata := content.Metadata
	if metadata.Discipline == "" {
		metadata.Discipline = "running"
	}
	if metadata.DaysPerWeek == 0 {
		metadata.DaysPerWeek = req.Profile.DaysPerWeek
	}
	if metadata.Goal == "" {
		metadata.Goal = req.Profile.Goal
	}
	if metadata.LevelHint == "" {
		metadata.LevelHint = req.Profile.Level
	}
	if metadata.Duration == "" {
		metadata.Duration = "1 week"
	}

	return &domain.WeeklyPlan{
		// Generator-supplied identities are not unique across calls;
		// always assign our own.
		ID:         uuid.NewString(),
		PlanType:   domain.PlanTypeWeekly,
		WeekNumber: req.WeekNumber,
		Metadata:   metadata,
		Weeks:      weeks,
	}
}

// fallbackContent deterministically synthesizes a plan when the external
// generator is unavailable. Duration and distance scale linearly with the
// target week; the workout mix changes by week band.
func (p *GenerationPipeline) fallbackContent(req *generator.Request) *generator.Content {
	week := req.WeekNumber
	if week < 1 {
		week = 1
	}
	baseDuration := 20 + week*5
	baseDistance := 3 + float64(week)*0.5

	days := []generator.RawDay{
		{
			DayName: "monday",
			Workout: &generator.RawWorkout{
				Type:            "easy",
				DurationMinutes: baseDuration,
				DistanceKm:      baseDistance,
				MainWorkout:     fmt.Sprintf("Easy run, %d minutes at conversational pace", baseDuration),
			},
		},
	}

	if week <= 2 {
		// Early weeks stay gentle: recovery plus a second easy run.
		days = append(days,
			generator.RawDay{
				DayName: "wednesday",
				Workout: &generator.RawWorkout{
					Type:            "recovery",
					DurationMinutes: baseDuration - 5,
					DistanceKm:      baseDistance * 0.8,
					MainWorkout:     "Recovery jog with walking breaks as needed",
				},
			},
			generator.RawDay{
				DayName: "saturday",
				Workout: &generator.RawWorkout{
					Type:            "easy",
					DurationMinutes: baseDuration,
					DistanceKm:      baseDistance,
					MainWorkout:     "Relaxed easy run, focus on form",
				},
			},
		)
	} else {
		days = append(days, generator.RawDay{
			DayName: "wednesday",
			Workout: &generator.RawWorkout{
				Type:            "tempo",
				DurationMinutes: baseDuration,
				DistanceKm:      baseDistance * 0.9,
				MainWorkout:     fmt.Sprintf("Tempo run: %d minutes with %d minutes at comfortably hard effort", baseDuration, baseDuration/2),
			},
		})
	}

	if week >= 3 {
		days = append(days, generator.RawDay{
			DayName: "sunday",
			Workout: &generator.RawWorkout{
				Type:            "long",
				DurationMinutes: baseDuration + 20,
				DistanceKm:      baseDistance * 1.5,
				MainWorkout:     "Long run at easy pace, hydrate on the way",
			},
		})
	}

	return &generator.Content{
		Metadata: domain.PlanMetadata{
			Discipline:  "running",
			Goal:        req.Profile.Goal,
			LevelHint:   req.Profile.Level,
			DaysPerWeek: len(days),
			Duration:    "1 week",
			Description: fmt.Sprintf("Week %d training plan (%s phase)", week, req.CurrentPhase),
		},
		Weeks: []generator.RawWeek{
			{
				WeekNum: week,
				Focus:   fallbackFocus(req.CurrentPhase),
				Days:    days,
			},
		},
	}
}

func fallbackFocus(phase domain.Phase) string {
	switch phase {
	case domain.PhaseBuild:
		return "Building aerobic capacity"
	case domain.PhasePeak:
		return "Sharpening race readiness"
	case domain.PhaseRecovery:
		return "Absorbing training, easy volume"
	default:
		return "Establishing a consistent base"
	}
}

// normalizeWeeks brings generator output into the canonical plan shape:
// canonical weekday tokens, calendar dates for every day, and workouts
// promoted out of flattened day fields.
func (p *GenerationPipeline) normalizeWeeks(raw []generator.RawWeek, weekNumber int) []domain.PlanWeek {
	anchor := weekAnchor(p.now().UTC(), weekNumber)

	weeks := make([]domain.PlanWeek, 0, len(raw))
	for _, rw := range raw {
		weekNum := rw.WeekNum
		if weekNum == 0 {
			weekNum = weekNumber
		}
		days := make([]domain.PlanDay, 0, len(rw.Days))
		for _, rd := range rw.Days {
			dayName := CanonicalDayName(rd.DayName)
			date := rd.Date
			if date == "" {
				date = anchor.AddDate(0, 0, weekdayOffset(dayName)).Format("2006-01-02")
			}
			days = append(days, domain.PlanDay{
				DayName: dayName,
				Date:    date,
				Workout: promoteWorkout(rd),
			})
		}
		weeks = append(weeks, domain.PlanWeek{
			WeekNum: weekNum,
			Focus:   rw.Focus,
			Days:    days,
		})
	}
	return weeks
}

// weekAnchor returns the Monday of the week that lies (weekNumber-1)
// weeks from the current week.
func weekAnchor(now time.Time, weekNumber int) time.Time {
	daysSinceMonday := (int(now.Weekday()) + 6) % 7
	monday := now.AddDate(0, 0, -daysSinceMonday)
	monday = time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
	if weekNumber > 1 {
		monday = monday.AddDate(0, 0, (weekNumber-1)*7)
	}
	return monday
}

// promoteWorkout prefers the nested workout object, falling back to the
// flattened day fields some generator outputs use.
func promoteWorkout(rd generator.RawDay) domain.Workout {
	if rd.Workout != nil {
		return domain.Workout{
			Type:            rd.Workout.Type,
			DurationMinutes: rd.Workout.DurationMinutes,
			DistanceKm:      rd.Workout.DistanceKm,
			MainWorkout:     rd.Workout.MainWorkout,
			Notes:           rd.Workout.Notes,
		}
	}
	return domain.Workout{
		Type:            rd.Type,
		DurationMinutes: rd.DurationMinutes,
		DistanceKm:      rd.DistanceKm,
		MainWorkout:     rd.MainWorkout,
	}
}

// canonicalDays maps common spellings, abbreviations, and a handful of
// other languages to the canonical lowercase English weekday token.
var canonicalDays = map[string]string{
	"mon": "monday", "monday": "monday", "lunes": "monday", "montag": "monday", "lundi": "monday", "segunda": "monday", "segunda-feira": "monday",
	"tue": "tuesday", "tues": "tuesday", "tuesday": "tuesday", "martes": "tuesday", "dienstag": "tuesday", "mardi": "tuesday", "terca": "tuesday", "terça": "tuesday",
	"wed": "wednesday", "wednesday": "wednesday", "miercoles": "wednesday", "miércoles": "wednesday", "mittwoch": "wednesday", "mercredi": "wednesday", "quarta": "wednesday",
	"thu": "thursday", "thur": "thursday", "thurs": "thursday", "thursday": "thursday", "jueves": "thursday", "donnerstag": "thursday", "jeudi": "thursday", "quinta": "thursday",
	"fri": "friday", "friday": "friday", "viernes": "friday", "freitag": "friday", "vendredi": "friday", "sexta": "friday",
	"sat": "saturday", "saturday": "saturday", "sabado": "saturday", "sábado": "saturday", "samstag": "saturday", "samedi": "saturday",
	"sun": "sunday", "sunday": "sunday", "domingo": "sunday", "sonntag": "sunday", "dimanche": "sunday",
}

var weekdayOffsets = map[string]int{
	"monday": 0, "tuesday": 1, "wednesday": 2, "thursday": 3,
	"friday": 4, "saturday": 5, "sunday": 6,
}

// CanonicalDayName maps an arbitrary day-name spelling to the canonical
// weekday token. Unrecognized names default to monday so a malformed day
// still lands on a valid calendar date.
func CanonicalDayName(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := canonicalDays[key]; ok {
		return canonical
	}
	return "monday"
}

func weekdayOffset(canonical string) int {
	return weekdayOffsets[canonical]
}

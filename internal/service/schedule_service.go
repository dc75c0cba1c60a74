package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stridecoach/coach-app/internal/domain"
	"stridecoach/coach-app/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ScheduleUpdate carries the user-editable schedule settings. Nil
// pointers leave the corresponding field untouched.
type ScheduleUpdate struct {
	Profile      *domain.UserProfile
	Frequency    *domain.DeliveryFrequency
	DeliveryDay  *string
	DeliveryTime *string
	Timezone     *string
	LongTermGoal *domain.LongTermGoal
	Adaptation   *domain.AdaptationSettings
}

// ScheduleService manages the configuration side of delivery schedules.
// Progression and plan references are owned by the delivery engine.
type ScheduleService interface {
	Get(ctx context.Context, userID primitive.ObjectID) (*domain.DeliverySchedule, error)
	Update(ctx context.Context, userID primitive.ObjectID, update ScheduleUpdate) (*domain.DeliverySchedule, error)
	Pause(ctx context.Context, userID primitive.ObjectID, until time.Time) (*domain.DeliverySchedule, error)
	Resume(ctx context.Context, userID primitive.ObjectID) (*domain.DeliverySchedule, error)
	Deactivate(ctx context.Context, userID primitive.ObjectID) error
	History(ctx context.Context, userID primitive.ObjectID, limit, skip int64) ([]domain.WeeklyPlan, error)
	GetPlan(ctx context.Context, userID primitive.ObjectID, planID string) (*domain.WeeklyPlan, error)
}

type scheduleService struct {
	schedules repository.ScheduleRepository
	plans     repository.PlanRepository
	engine    *DeliveryEngine
	logger    *zap.Logger
}

// NewScheduleService creates a new instance of scheduleService.
func NewScheduleService(
	schedules repository.ScheduleRepository,
	plans repository.PlanRepository,
	engine *DeliveryEngine,
	logger *zap.Logger,
) ScheduleService {
	return &scheduleService{
		schedules: schedules,
		plans:     plans,
		engine:    engine,
		logger:    logger,
	}
}

func (s *scheduleService) active(ctx context.Context, userID primitive.ObjectID) (*domain.DeliverySchedule, error) {
	schedule, err := s.schedules.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	return schedule, nil
}

// Get returns the user's active schedule.
func (s *scheduleService) Get(ctx context.Context, userID primitive.ObjectID) (*domain.DeliverySchedule, error) {
	return s.active(ctx, userID)
}

// Update applies the given settings and recomputes the next delivery
// date when timing fields changed.
func (s *scheduleService) Update(ctx context.Context, userID primitive.ObjectID, update ScheduleUpdate) (*domain.DeliverySchedule, error) {
	schedule, err := s.active(ctx, userID)
	if err != nil {
		return nil, err
	}

	timingChanged := false
	if update.Profile != nil {
		schedule.Profile = *update.Profile
	}
	if update.Frequency != nil {
		schedule.Frequency = *update.Frequency
		timingChanged = true
	}
	if update.DeliveryDay != nil {
		schedule.DeliveryDay = CanonicalDayName(*update.DeliveryDay)
		timingChanged = true
	}
	if update.DeliveryTime != nil {
		schedule.DeliveryTime = *update.DeliveryTime
		timingChanged = true
	}
	if update.Timezone != nil {
		schedule.Timezone = *update.Timezone
		timingChanged = true
	}
	if update.LongTermGoal != nil {
		schedule.LongTermGoal = update.LongTermGoal
	}
	if update.Adaptation != nil {
		schedule.Adaptation = *update.Adaptation
	}
	if timingChanged {
		schedule.NextDeliveryDate = s.engine.nextDeliveryAt(schedule, time.Now().UTC())
	}

	if err := s.schedules.UpdateSettings(ctx, schedule); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	s.logger.Info("schedule settings updated", zap.String("userId", userID.Hex()))
	return schedule, nil
}

// Pause suspends deliveries until the given time.
func (s *scheduleService) Pause(ctx context.Context, userID primitive.ObjectID, until time.Time) (*domain.DeliverySchedule, error) {
	schedule, err := s.active(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !until.After(time.Now()) {
		return nil, fmt.Errorf("%w: pause time must be in the future", ErrInvalidInput)
	}

	if err := s.schedules.SetPause(ctx, schedule.ID, &until); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	schedule.PausedUntil = &until
	s.logger.Info("schedule paused",
		zap.String("userId", userID.Hex()), zap.Time("until", until))
	return schedule, nil
}

// Resume clears any pause.
func (s *scheduleService) Resume(ctx context.Context, userID primitive.ObjectID) (*domain.DeliverySchedule, error) {
	schedule, err := s.active(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.schedules.SetPause(ctx, schedule.ID, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	schedule.PausedUntil = nil
	s.logger.Info("schedule resumed", zap.String("userId", userID.Hex()))
	return schedule, nil
}

// Deactivate soft-deletes the schedule. The record stays for history;
// deliveries stop.
func (s *scheduleService) Deactivate(ctx context.Context, userID primitive.ObjectID) error {
	schedule, err := s.active(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.schedules.SetActive(ctx, schedule.ID, false); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	s.logger.Info("schedule deactivated", zap.String("userId", userID.Hex()))
	return nil
}

// History returns the user's delivered plans, newest first.
func (s *scheduleService) History(ctx context.Context, userID primitive.ObjectID, limit, skip int64) ([]domain.WeeklyPlan, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	plans, err := s.plans.GetByUserAndType(ctx, userID, domain.PlanTypeWeekly, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	return plans, nil
}

// GetPlan fetches a single plan, enforcing ownership.
func (s *scheduleService) GetPlan(ctx context.Context, userID primitive.ObjectID, planID string) (*domain.WeeklyPlan, error) {
	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	if plan.UserID != userID {
		return nil, ErrPlanNotFound
	}
	return plan, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"stridecoach/coach-app/internal/domain"
	"stridecoach/coach-app/internal/metrics"
	"stridecoach/coach-app/internal/notification"
	"stridecoach/coach-app/internal/repository"
	"stridecoach/coach-app/internal/storage"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// --- Error Definitions ---
var (
	ErrScheduleNotFound  = errors.New("no active schedule found for user")
	ErrScheduleConflict  = errors.New("user already has an active schedule")
	ErrPlanNotFound      = errors.New("plan not found")
	ErrInvalidProgress   = errors.New("invalid progress payload")
	ErrInvalidInput      = errors.New("invalid input")
	ErrPersistenceFailed = errors.New("persistence failed")
)

// ProgressUpdate is the payload for marking a delivered week completed
// and optionally rated.
type ProgressUpdate struct {
	WasCompleted   bool
	CompletionRate float64 // percent, 0-100
	Rating         *domain.PlanRating
}

// ProgressResult reports what UpdateWeeklyProgress changed. Updated is
// false when the referenced plan could not be located; that is not an
// error.
type ProgressResult struct {
	Updated      bool   `json:"updated"`
	PlanID       string `json:"planId,omitempty"`
	Regenerating bool   `json:"regenerating"`
}

// BatchError records one schedule's failure inside a delivery batch.
type BatchError struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// BatchReport summarizes a delivery batch. Individual failures never
// abort the batch.
type BatchReport struct {
	Processed int          `json:"processed"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Errors    []BatchError `json:"errors,omitempty"`
}

// DeleteReport summarizes a bulk plan delete.
type DeleteReport struct {
	DeletedCount  int64 `json:"deletedCount"`
	ScheduleReset bool  `json:"scheduleReset"`
}

// BackgroundRegenerator accepts generation jobs to run outside the
// caller's request. Implemented by DispatchQueue.
type BackgroundRegenerator interface {
	EnqueueGeneration(userID primitive.ObjectID) bool
}

// EngineConfig tunes the delivery engine's retry and overdue behavior.
type EngineConfig struct {
	RetryAttempts     int           // versioned-save attempts, default 3
	RetryBackoff      time.Duration // base backoff, doubles per attempt, default 100ms
	OverdueWindowFrom time.Duration // lower bound of the overdue window, default 24h
	OverdueWindowTo   time.Duration // upper bound of the overdue window, default 1h
	OverdueBatchLimit int64         // cap per overdue sweep, default 5
	OverdueItemDelay  time.Duration // pause between overdue items, default 2s
}

func (c *EngineConfig) applyDefaults() {
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.OverdueWindowFrom <= 0 {
		c.OverdueWindowFrom = 24 * time.Hour
	}
	if c.OverdueWindowTo <= 0 {
		c.OverdueWindowTo = time.Hour
	}
	if c.OverdueBatchLimit <= 0 {
		c.OverdueBatchLimit = 5
	}
	if c.OverdueItemDelay <= 0 {
		c.OverdueItemDelay = 2 * time.Second
	}
}

// DeliveryEngine coordinates weekly plan delivery: it decides the target
// week, runs the generation pipeline, persists plans and schedule state,
// and keeps the recent-plan references consistent. All schedule mutation
// for a given user runs under that user's mutation lock.
type DeliveryEngine struct {
	schedules   repository.ScheduleRepository
	plans       repository.PlanRepository
	pipeline    *GenerationPipeline
	progression *ProgressionCalculator
	locks       *UserLock
	queue       BackgroundRegenerator
	notifier    notification.Notifier
	archive     storage.PlanArchive
	logger      *zap.Logger
	cfg         EngineConfig
	now         func() time.Time
}

// NewDeliveryEngine creates a new instance of DeliveryEngine. The
// background queue is attached separately via SetBackgroundQueue because
// the queue itself needs the engine to run jobs.
func NewDeliveryEngine(
	schedules repository.ScheduleRepository,
	plans repository.PlanRepository,
	pipeline *GenerationPipeline,
	notifier notification.Notifier,
	archive storage.PlanArchive,
	logger *zap.Logger,
	cfg EngineConfig,
) *DeliveryEngine {
	cfg.applyDefaults()
	return &DeliveryEngine{
		schedules:   schedules,
		plans:       plans,
		pipeline:    pipeline,
		progression: NewProgressionCalculator(),
		locks:       NewUserLock(),
		notifier:    notifier,
		archive:     archive,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// SetBackgroundQueue attaches the queue used for post-progress-update
// regeneration.
func (e *DeliveryEngine) SetBackgroundQueue(queue BackgroundRegenerator) {
	e.queue = queue
}

// === Schedule creation ===

// CreateSchedule persists a new delivery schedule for a user. Fails with
// ErrScheduleConflict if the user already has an active schedule. The
// check and insert run under the user's mutation lock so concurrent
// creates cannot both pass the existence check.
func (e *DeliveryEngine) CreateSchedule(ctx context.Context, schedule *domain.DeliverySchedule) (*domain.DeliverySchedule, error) {
	if schedule == nil || schedule.UserID == primitive.NilObjectID {
		return nil, errors.New("schedule with userId is required")
	}
	key := schedule.UserID.Hex()
	if err := e.locks.Acquire(ctx, key); err != nil {
		return nil, err
	}
	defer e.locks.Release(key)

	_, err := e.schedules.GetActiveByUser(ctx, schedule.UserID)
	if err == nil {
		return nil, ErrScheduleConflict
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	applyScheduleDefaults(schedule)
	schedule.IsActive = true
	schedule.NextDeliveryDate = e.nextDeliveryAt(schedule, e.now().UTC())

	id, err := e.schedules.Create(ctx, schedule)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrScheduleConflict
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	schedule.ID = id

	e.logger.Info("delivery schedule created",
		zap.String("userId", schedule.UserID.Hex()),
		zap.Time("nextDelivery", schedule.NextDeliveryDate))
	return schedule, nil
}

func applyScheduleDefaults(s *domain.DeliverySchedule) {
	if s.Frequency == "" {
		s.Frequency = domain.FrequencyWeekly
	}
	if s.DeliveryDay == "" {
		s.DeliveryDay = "monday"
	}
	if s.DeliveryTime == "" {
		s.DeliveryTime = "07:00"
	}
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}
	if s.Progress.WeekNumber == 0 {
		s.Progress = domain.NewProgressTracking()
	}
}

// === Weekly plan generation ===

// GenerateWeeklyPlan generates and persists the next weekly plan for the
// schedule, then advances the schedule's progression state. The whole
// operation runs under the user's mutation lock.
func (e *DeliveryEngine) GenerateWeeklyPlan(ctx context.Context, schedule *domain.DeliverySchedule, resetToWeekOne bool) (*domain.WeeklyPlan, error) {
	if schedule == nil {
		return nil, errors.New("schedule is required")
	}
	key := schedule.UserID.Hex()
	if err := e.locks.Acquire(ctx, key); err != nil {
		return nil, err
	}
	defer e.locks.Release(key)

	return e.generateLocked(ctx, schedule, resetToWeekOne)
}

// GenerateForUser loads the user's active schedule and generates the next
// plan for it. Used by manual delivery triggers and the background queue.
func (e *DeliveryEngine) GenerateForUser(ctx context.Context, userID primitive.ObjectID, resetToWeekOne bool) (*domain.WeeklyPlan, error) {
	schedule, err := e.schedules.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	return e.GenerateWeeklyPlan(ctx, schedule, resetToWeekOne)
}

// GenerateAdHoc generates a one-off plan for a user without a persisted
// schedule, seeding a transient schedule from the given profile. The
// plan is persisted; no schedule state is.
func (e *DeliveryEngine) GenerateAdHoc(ctx context.Context, userID primitive.ObjectID, profile domain.UserProfile, resetToWeekOne bool) (*domain.WeeklyPlan, error) {
	schedule := domain.NewTransientSchedule(userID, profile)
	return e.GenerateWeeklyPlan(ctx, schedule, resetToWeekOne)
}

// generateLocked is the delivery cycle body. Caller holds the user lock.
func (e *DeliveryEngine) generateLocked(ctx context.Context, schedule *domain.DeliverySchedule, resetToWeekOne bool) (*domain.WeeklyPlan, error) {
	// 1. Decide the target week and phase.
	targetWeek := e.progression.TargetWeek(schedule, resetToWeekOne)
	phase := e.progression.PhaseForWeek(schedule.Progress.CurrentPhase, targetWeek)
	if resetToWeekOne {
		phase = domain.PhaseBase
	}

	// 2. Run the generation pipeline. Never fails for generation reasons.
	req := e.pipeline.BuildRequest(schedule, targetWeek, phase)
	plan := e.pipeline.Generate(ctx, req)
	plan.UserID = schedule.UserID
	if !schedule.Transient && schedule.ID != primitive.NilObjectID {
		parentID := schedule.ID
		plan.ParentSchedule = &parentID
	}

	// 3. Persist the plan record.
	if err := e.plans.Create(ctx, plan); err != nil {
		metrics.PlanDeliveries.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("%w: save plan: %v", ErrPersistenceFailed, err)
	}

	now := e.now().UTC()
	newRef := domain.RecentPlanRef{
		WeekNumber:   targetWeek,
		PlanID:       plan.ID,
		DeliveryDate: now,
	}

	// 4. Update the schedule's owned fields and persist with retry.
	applyDelivery := func(s *domain.DeliverySchedule) {
		s.RecentPlans = prependPlanRef(s.RecentPlans, newRef)
		if resetToWeekOne {
			s.Progress.WeekNumber = 1
			s.Progress.TotalWeeksDelivered = 0
			s.Progress.CurrentPhase = domain.PhaseBase
		} else {
			if targetWeek > s.Progress.WeekNumber {
				s.Progress.WeekNumber = targetWeek
			}
			s.Progress.TotalWeeksDelivered++
			s.Progress.CurrentPhase = phase
		}
		delivered := now
		s.LastDeliveryDate = &delivered
		s.NextDeliveryDate = e.nextDeliveryAt(s, now)
	}

	schedule.RecentPlans = e.cleanRecentPlans(ctx, schedule.RecentPlans)
	applyDelivery(schedule)

	if !schedule.Transient {
		if err := e.saveScheduleWithRetry(ctx, schedule, applyDelivery); err != nil {
			metrics.PlanDeliveries.WithLabelValues("failure").Inc()
			return nil, err
		}
	}

	metrics.PlanDeliveries.WithLabelValues("success").Inc()
	e.logger.Info("weekly plan delivered",
		zap.String("userId", schedule.UserID.Hex()),
		zap.String("planId", plan.ID),
		zap.Int("weekNumber", targetWeek),
		zap.String("phase", string(phase)),
		zap.Bool("reset", resetToWeekOne))

	e.deliverSideEffects(schedule, plan)
	return plan, nil
}

// deliverSideEffects archives the plan and notifies the user. Both are
// best-effort and never affect the delivery result.
func (e *DeliveryEngine) deliverSideEffects(schedule *domain.DeliverySchedule, plan *domain.WeeklyPlan) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if e.archive != nil {
			if err := e.archive.StorePlan(ctx, plan); err != nil {
				e.logger.Warn("plan archive failed",
					zap.String("planId", plan.ID), zap.Error(err))
			}
		}
		if e.notifier != nil {
			e.notifier.PlanDelivered(ctx, schedule, plan)
		}
	}()
}

// cleanRecentPlans drops references to plans that no longer exist,
// deduplicates by plan ID, and truncates to the newest MaxRecentPlans.
// Protects against partial failures where a plan was deleted out-of-band.
func (e *DeliveryEngine) cleanRecentPlans(ctx context.Context, refs []domain.RecentPlanRef) []domain.RecentPlanRef {
	kept := make([]domain.RecentPlanRef, 0, len(refs))
	for _, ref := range refs {
		exists, err := e.plans.Exists(ctx, ref.PlanID)
		if err != nil {
			// Keep the reference on lookup errors; the next cycle retries.
			e.logger.Warn("recent plan existence check failed",
				zap.String("planId", ref.PlanID), zap.Error(err))
			kept = append(kept, ref)
			continue
		}
		if exists {
			kept = append(kept, ref)
		}
	}
	return dedupePlanRefs(kept)
}

// prependPlanRef puts the new reference first, removing any older entry
// for the same plan and truncating to MaxRecentPlans.
func prependPlanRef(refs []domain.RecentPlanRef, newRef domain.RecentPlanRef) []domain.RecentPlanRef {
	out := make([]domain.RecentPlanRef, 0, len(refs)+1)
	out = append(out, newRef)
	for _, ref := range refs {
		if ref.PlanID != newRef.PlanID {
			out = append(out, ref)
		}
	}
	return dedupePlanRefs(out)
}

func dedupePlanRefs(refs []domain.RecentPlanRef) []domain.RecentPlanRef {
	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].DeliveryDate.After(refs[j].DeliveryDate)
	})
	seen := make(map[string]bool, len(refs))
	out := refs[:0]
	for _, ref := range refs {
		if seen[ref.PlanID] {
			continue
		}
		seen[ref.PlanID] = true
		out = append(out, ref)
	}
	if len(out) > domain.MaxRecentPlans {
		out = out[:domain.MaxRecentPlans]
	}
	return out
}

// saveScheduleWithRetry persists the schedule with optimistic concurrency.
// On a version conflict it reloads the authoritative record, reapplies
// only the fields this operation owns via apply, and tries again, up to
// the configured attempts with exponential backoff.
func (e *DeliveryEngine) saveScheduleWithRetry(ctx context.Context, schedule *domain.DeliverySchedule, apply func(*domain.DeliverySchedule)) error {
	var err error
	for attempt := 0; attempt < e.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := e.cfg.RetryBackoff << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}

			fresh, loadErr := e.schedules.GetByID(ctx, schedule.ID)
			if loadErr != nil {
				return fmt.Errorf("%w: reload schedule: %v", ErrPersistenceFailed, loadErr)
			}
			apply(fresh)
			*schedule = *fresh
		}

		err = e.schedules.SaveVersioned(ctx, schedule)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return fmt.Errorf("%w: save schedule: %v", ErrPersistenceFailed, err)
		}
		metrics.ScheduleSaveConflicts.Inc()
		e.logger.Warn("schedule version conflict, retrying",
			zap.String("scheduleId", schedule.ID.Hex()),
			zap.Int("attempt", attempt+1))
	}
	return fmt.Errorf("%w: schedule save conflicted %d times: %v", ErrPersistenceFailed, e.cfg.RetryAttempts, err)
}

// === Progress updates ===

// UpdateWeeklyProgress marks a delivered plan completed/rated. The plan
// is located by ID or by week number, checking the schedule's recent
// references before falling back to the plan store. When something was
// actually updated, the next week's generation is queued in the
// background; the caller never waits for it.
func (e *DeliveryEngine) UpdateWeeklyProgress(ctx context.Context, userID primitive.ObjectID, planRef string, update ProgressUpdate) (*ProgressResult, error) {
	if err := validateProgress(update); err != nil {
		return nil, err
	}

	key := userID.Hex()
	if err := e.locks.Acquire(ctx, key); err != nil {
		return nil, err
	}
	defer e.locks.Release(key)

	schedule, err := e.schedules.GetActiveByUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
		}
		schedule = nil // plan lookup can still succeed without a schedule
	}

	plan, err := e.locatePlan(ctx, userID, schedule, planRef)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return &ProgressResult{Updated: false}, nil
	}

	// Mark the plan's progress sub-object.
	now := e.now().UTC()
	progress := plan.Progress
	progress.WasCompleted = update.WasCompleted
	progress.CompletionRate = update.CompletionRate
	if update.Rating != nil {
		progress.WasRated = true
		progress.Rating = update.Rating
	}
	if update.WasCompleted && progress.CompletedAt == nil {
		progress.CompletedAt = &now
	}
	if err := e.plans.UpdateProgress(ctx, plan.ID, progress); err != nil {
		return nil, fmt.Errorf("%w: update plan progress: %v", ErrPersistenceFailed, err)
	}

	// Mirror completion into the schedule's reference, if present.
	if schedule != nil {
		applyMirror := func(s *domain.DeliverySchedule) {
			if ref := s.FindRecentPlan(plan.ID); ref != nil {
				ref.WasCompleted = update.WasCompleted
				ref.CompletionRate = update.CompletionRate
				ref.Rating = update.Rating
			}
		}
		applyMirror(schedule)
		if err := e.saveScheduleWithRetry(ctx, schedule, applyMirror); err != nil {
			// The plan update already succeeded; a mirror failure is not fatal.
			e.logger.Warn("failed to mirror progress into schedule",
				zap.String("userId", key), zap.Error(err))
		}
	}

	// Queue next week's generation off the caller's path.
	regenerating := false
	if schedule != nil && e.queue != nil {
		regenerating = e.queue.EnqueueGeneration(userID)
	}

	return &ProgressResult{Updated: true, PlanID: plan.ID, Regenerating: regenerating}, nil
}

func validateProgress(update ProgressUpdate) error {
	if update.CompletionRate < 0 || update.CompletionRate > 100 {
		return fmt.Errorf("%w: completion rate must be between 0 and 100", ErrInvalidProgress)
	}
	if r := update.Rating; r != nil {
		if r.Difficulty < 1 || r.Difficulty > 5 || r.Enjoyment < 1 || r.Enjoyment > 5 {
			return fmt.Errorf("%w: rating values must be between 1 and 5", ErrInvalidProgress)
		}
	}
	return nil
}

// locatePlan resolves a plan reference that is either a plan ID or a week
// number, preferring the schedule's recent references.
func (e *DeliveryEngine) locatePlan(ctx context.Context, userID primitive.ObjectID, schedule *domain.DeliverySchedule, planRef string) (*domain.WeeklyPlan, error) {
	lookup := func(id string) (*domain.WeeklyPlan, error) {
		plan, err := e.plans.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
		}
		if plan.UserID != userID {
			return nil, nil
		}
		return plan, nil
	}

	// Try as a plan identity first.
	if schedule != nil {
		if ref := schedule.FindRecentPlan(planRef); ref != nil {
			if plan, err := lookup(ref.PlanID); err != nil || plan != nil {
				return plan, err
			}
		}
	}
	if plan, err := lookup(planRef); err != nil || plan != nil {
		return plan, err
	}

	// Then as a week number.
	week, convErr := strconv.Atoi(planRef)
	if convErr != nil || week < 1 {
		return nil, nil
	}
	if schedule != nil {
		if ref := schedule.FindRecentPlanByWeek(week); ref != nil {
			if plan, err := lookup(ref.PlanID); err != nil || plan != nil {
				return plan, err
			}
		}
	}
	plan, err := e.plans.GetByUserAndWeek(ctx, userID, domain.PlanTypeWeekly, week)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	return plan, nil
}

// === Batch delivery ===

// ProcessScheduledDeliveries generates plans for every due schedule,
// sequentially. Per-schedule failures are collected, never propagated.
func (e *DeliveryEngine) ProcessScheduledDeliveries(ctx context.Context) (*BatchReport, error) {
	due, err := e.schedules.FindDue(ctx, e.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: find due schedules: %v", ErrPersistenceFailed, err)
	}
	return e.deliverBatch(ctx, due, 0), nil
}

// ProcessOverdueDeliveries is the bounded catch-up pass: it only looks at
// schedules that came due within the configured window, caps the batch,
// and pauses between items to smooth load on the generator.
func (e *DeliveryEngine) ProcessOverdueDeliveries(ctx context.Context) (*BatchReport, error) {
	now := e.now().UTC()
	from := now.Add(-e.cfg.OverdueWindowFrom)
	to := now.Add(-e.cfg.OverdueWindowTo)
	overdue, err := e.schedules.FindOverdue(ctx, from, to, e.cfg.OverdueBatchLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: find overdue schedules: %v", ErrPersistenceFailed, err)
	}
	return e.deliverBatch(ctx, overdue, e.cfg.OverdueItemDelay), nil
}

func (e *DeliveryEngine) deliverBatch(ctx context.Context, schedules []domain.DeliverySchedule, itemDelay time.Duration) *BatchReport {
	report := &BatchReport{}
	for i := range schedules {
		if i > 0 && itemDelay > 0 {
			select {
			case <-time.After(itemDelay):
			case <-ctx.Done():
				return report
			}
		}
		schedule := schedules[i]
		report.Processed++
		if _, err := e.GenerateWeeklyPlan(ctx, &schedule, false); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, BatchError{
				UserID:  schedule.UserID.Hex(),
				Message: err.Error(),
			})
			e.logger.Error("scheduled delivery failed",
				zap.String("userId", schedule.UserID.Hex()), zap.Error(err))
			continue
		}
		report.Succeeded++
	}
	return report
}

// === Bulk delete ===

// DeleteAllPlans removes every plan record for the user and resets the
// schedule's progression to week one with no recent references. The
// schedule reset is best-effort: its failure is logged and reported but
// does not void the delete count.
func (e *DeliveryEngine) DeleteAllPlans(ctx context.Context, userID primitive.ObjectID) (*DeleteReport, error) {
	key := userID.Hex()
	if err := e.locks.Acquire(ctx, key); err != nil {
		return nil, err
	}
	defer e.locks.Release(key)

	count, err := e.plans.DeleteAllByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: delete plans: %v", ErrPersistenceFailed, err)
	}
	report := &DeleteReport{DeletedCount: count}

	schedule, err := e.schedules.GetActiveByUser(ctx, userID)
	if err == nil {
		if resetErr := e.schedules.ResetProgress(ctx, schedule.ID, domain.NewProgressTracking()); resetErr != nil {
			e.logger.Warn("schedule reset after bulk delete failed",
				zap.String("userId", key), zap.Error(resetErr))
		} else {
			report.ScheduleReset = true
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		e.logger.Warn("schedule lookup after bulk delete failed",
			zap.String("userId", key), zap.Error(err))
	}

	if e.archive != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := e.archive.DeleteUserPlans(ctx, key); err != nil {
				e.logger.Warn("plan archive cleanup failed",
					zap.String("userId", key), zap.Error(err))
			}
		}()
	}

	e.logger.Info("bulk plan delete completed",
		zap.String("userId", key),
		zap.Int64("deleted", count),
		zap.Bool("scheduleReset", report.ScheduleReset))
	return report, nil
}

// === Next delivery date ===

// nextDeliveryAt computes the next delivery instant after now, honoring
// the schedule's delivery day, local time, timezone, and frequency.
func (e *DeliveryEngine) nextDeliveryAt(s *domain.DeliverySchedule, now time.Time) time.Time {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil || loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)

	hour, minute := parseDeliveryTime(s.DeliveryTime)
	targetOffset := weekdayOffset(CanonicalDayName(s.DeliveryDay))
	currentOffset := (int(local.Weekday()) + 6) % 7

	daysAhead := (targetOffset - currentOffset + 7) % 7
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc).
		AddDate(0, 0, daysAhead)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	if s.Frequency == domain.FrequencyBiweekly {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate.UTC()
}

func parseDeliveryTime(value string) (hour, minute int) {
	hour, minute = 7, 0
	if t, err := time.Parse("15:04", value); err == nil {
		hour, minute = t.Hour(), t.Minute()
	}
	return hour, minute
}

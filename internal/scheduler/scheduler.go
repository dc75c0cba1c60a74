// Package scheduler drives the recurring delivery triggers.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stridecoach/coach-app/internal/config"
	"stridecoach/coach-app/internal/service"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler fires the daily due-schedule sweep and the hourly bounded
// overdue pass against the delivery engine.
type Scheduler struct {
	engine  *service.DeliveryEngine
	cron    *cron.Cron
	cfg     config.DeliveryConfig
	logger  *zap.Logger
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a new scheduler around the delivery engine.
func NewScheduler(engine *service.DeliveryEngine, cfg config.DeliveryConfig, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		engine: engine,
		cron:   cron.New(cron.WithLocation(time.UTC)),
		cfg:    cfg,
		logger: logger,
	}
}

// Start registers the cron entries and starts the scheduler.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	if _, err := s.cron.AddFunc(s.cfg.DailyCron, s.runDaily); err != nil {
		return fmt.Errorf("register daily delivery job: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.OverdueCron, s.runOverdue); err != nil {
		return fmt.Errorf("register overdue sweep job: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("delivery scheduler started",
		zap.String("dailyCron", s.cfg.DailyCron),
		zap.String("overdueCron", s.cfg.OverdueCron))
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info("delivery scheduler stopped")
}

func (s *Scheduler) runDaily() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	report, err := s.engine.ProcessScheduledDeliveries(ctx)
	if err != nil {
		s.logger.Error("scheduled delivery sweep failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled delivery sweep completed",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed))
}

func (s *Scheduler) runOverdue() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	report, err := s.engine.ProcessOverdueDeliveries(ctx)
	if err != nil {
		s.logger.Error("overdue delivery sweep failed", zap.Error(err))
		return
	}
	if report.Processed > 0 {
		s.logger.Info("overdue delivery sweep completed",
			zap.Int("processed", report.Processed),
			zap.Int("succeeded", report.Succeeded),
			zap.Int("failed", report.Failed))
	}
}

package service

import (
	"context"
	"sync"
	"time"

	"stridecoach/coach-app/internal/metrics"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// DispatchQueue runs plan generation jobs in the background. Progress
// updates enqueue here instead of firing an un-awaited goroutine, so
// failures are counted and logged rather than lost.
type DispatchQueue struct {
	engine     *DeliveryEngine
	jobs       chan primitive.ObjectID
	workers    int
	jobTimeout time.Duration
	stopChan   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	logger     *zap.Logger
}

// NewDispatchQueue creates a queue with the given worker count and buffer.
func NewDispatchQueue(engine *DeliveryEngine, workers, buffer int, logger *zap.Logger) *DispatchQueue {
	if workers <= 0 {
		workers = 2
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &DispatchQueue{
		engine:     engine,
		jobs:       make(chan primitive.ObjectID, buffer),
		workers:    workers,
		jobTimeout: 2 * time.Minute,
		stopChan:   make(chan struct{}),
		logger:     logger,
	}
}

// Start launches the worker goroutines.
func (q *DispatchQueue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.logger.Info("dispatch queue started", zap.Int("workers", q.workers))
}

// Stop drains nothing; it signals the workers and waits for in-flight
// jobs to finish.
func (q *DispatchQueue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stopChan)
	})
	q.wg.Wait()
	q.logger.Info("dispatch queue stopped")
}

// EnqueueGeneration submits a background generation job for the user.
// Returns false when the queue is full or stopped; the caller's progress
// write has already succeeded either way.
func (q *DispatchQueue) EnqueueGeneration(userID primitive.ObjectID) bool {
	select {
	case q.jobs <- userID:
		return true
	case <-q.stopChan:
		return false
	default:
		q.logger.Warn("dispatch queue full, dropping generation job",
			zap.String("userId", userID.Hex()))
		metrics.BackgroundJobFailures.Inc()
		return false
	}
}

func (q *DispatchQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case userID := <-q.jobs:
			q.run(userID)
		case <-q.stopChan:
			return
		}
	}
}

func (q *DispatchQueue) run(userID primitive.ObjectID) {
	ctx, cancel := context.WithTimeout(context.Background(), q.jobTimeout)
	defer cancel()

	plan, err := q.engine.GenerateForUser(ctx, userID, false)
	if err != nil {
		metrics.BackgroundJobFailures.Inc()
		q.logger.Error("background generation failed",
			zap.String("userId", userID.Hex()), zap.Error(err))
		return
	}
	q.logger.Info("background generation completed",
		zap.String("userId", userID.Hex()),
		zap.String("planId", plan.ID),
		zap.Int("weekNumber", plan.WeekNumber))
}

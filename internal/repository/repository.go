package repository

import (
	"context"
	"time"

	"stridecoach/coach-app/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for repository layer
var (
	ErrNotFound        = RepositoryError("not found")
	ErrDuplicate       = RepositoryError("duplicate record")
	ErrUpdateFailed    = RepositoryError("update failed")
	ErrDeleteFailed    = RepositoryError("delete failed")
	ErrVersionConflict = RepositoryError("version conflict")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// UserRepository defines the interface for interacting with user data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
}

// ScheduleRepository defines the interface for interacting with delivery
// schedule records. SaveVersioned implements optimistic concurrency: the
// save only succeeds if the stored version matches the record's version,
// and ErrVersionConflict is returned otherwise. Create returns
// ErrDuplicate when the user already has an active schedule.
type ScheduleRepository interface {
	Create(ctx context.Context, schedule *domain.DeliverySchedule) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.DeliverySchedule, error)
	GetActiveByUser(ctx context.Context, userID primitive.ObjectID) (*domain.DeliverySchedule, error)
	SaveVersioned(ctx context.Context, schedule *domain.DeliverySchedule) error
	SetActive(ctx context.Context, id primitive.ObjectID, active bool) error
	SetPause(ctx context.Context, id primitive.ObjectID, until *time.Time) error
	UpdateSettings(ctx context.Context, schedule *domain.DeliverySchedule) error
	ResetProgress(ctx context.Context, id primitive.ObjectID, progress domain.ProgressTracking) error
	FindDue(ctx context.Context, now time.Time) ([]domain.DeliverySchedule, error)
	FindOverdue(ctx context.Context, from, to time.Time, limit int64) ([]domain.DeliverySchedule, error)
}

// PlanRepository defines the interface for interacting with generated plan
// records. Plan content is immutable after Create; only the progress
// sub-object changes via UpdateProgress.
type PlanRepository interface {
	Create(ctx context.Context, plan *domain.WeeklyPlan) error
	GetByID(ctx context.Context, id string) (*domain.WeeklyPlan, error)
	Exists(ctx context.Context, id string) (bool, error)
	GetByUserAndType(ctx context.Context, userID primitive.ObjectID, planType string, limit, skip int64) ([]domain.WeeklyPlan, error)
	GetByUserAndWeek(ctx context.Context, userID primitive.ObjectID, planType string, weekNumber int) (*domain.WeeklyPlan, error)
	UpdateProgress(ctx context.Context, id string, progress domain.PlanProgress) error
	DeleteAllByUser(ctx context.Context, userID primitive.ObjectID) (int64, error)
}

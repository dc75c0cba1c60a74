// internal/repository/mongo/plan_repo.go
package mongo

import (
	"context"
	"errors"
	"time"

	"stridecoach/coach-app/internal/domain"
	"stridecoach/coach-app/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const planCollectionName = "weekly_plans"

// mongoPlanRepository implements repository.PlanRepository
type mongoPlanRepository struct {
	collection *mongo.Collection
}

// NewMongoPlanRepository creates a new plan repository.
func NewMongoPlanRepository(db *mongo.Database) repository.PlanRepository {
	return &mongoPlanRepository{
		collection: db.Collection(planCollectionName),
	}
}

// Create inserts a new generated plan. The caller (the generation
// pipeline) is responsible for having assigned a unique ID.
func (r *mongoPlanRepository) Create(ctx context.Context, plan *domain.WeeklyPlan) error {
	if plan.ID == "" {
		return errors.New("plan requires an id")
	}
	if plan.UserID == primitive.NilObjectID {
		return errors.New("plan requires userId")
	}
	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, plan)
	return err
}

// GetByID retrieves a single plan by its ID.
func (r *mongoPlanRepository) GetByID(ctx context.Context, id string) (*domain.WeeklyPlan, error) {
	var plan domain.WeeklyPlan
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&plan)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &plan, nil
}

// Exists reports whether a plan with the given ID is stored, without
// decoding the full document.
func (r *mongoPlanRepository) Exists(ctx context.Context, id string) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetByUserAndType retrieves a user's plans of a given type, newest first,
// with limit/skip paging.
func (r *mongoPlanRepository) GetByUserAndType(ctx context.Context, userID primitive.ObjectID, planType string, limit, skip int64) ([]domain.WeeklyPlan, error) {
	filter := bson.M{
		"userId":   userID,
		"planType": planType,
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		findOptions.SetLimit(limit)
	}
	if skip > 0 {
		findOptions.SetSkip(skip)
	}

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var plans []domain.WeeklyPlan
	if err = cursor.All(ctx, &plans); err != nil {
		return nil, err
	}
	// Return empty slice if no plans found (not an error)
	return plans, nil
}

// GetByUserAndWeek retrieves the newest plan for a specific week number.
func (r *mongoPlanRepository) GetByUserAndWeek(ctx context.Context, userID primitive.ObjectID, planType string, weekNumber int) (*domain.WeeklyPlan, error) {
	filter := bson.M{
		"userId":     userID,
		"planType":   planType,
		"weekNumber": weekNumber,
	}
	findOptions := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	var plan domain.WeeklyPlan
	err := r.collection.FindOne(ctx, filter, findOptions).Decode(&plan)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &plan, nil
}

// UpdateProgress mutates the progress sub-object of an otherwise immutable
// plan record.
func (r *mongoPlanRepository) UpdateProgress(ctx context.Context, id string, progress domain.PlanProgress) error {
	updateDoc := bson.M{
		"$set": bson.M{
			"progress":  progress,
			"updatedAt": time.Now().UTC(),
		},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, updateDoc)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteAllByUser bulk-removes every plan belonging to a user and returns
// how many were deleted. Zero deletions is not an error.
func (r *mongoPlanRepository) DeleteAllByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"userId": userID})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// EnsurePlanIndexes creates necessary indexes. Call during startup.
func EnsurePlanIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			// History query: plans for a user by type, newest first.
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "planType", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index(),
		},
		{
			// Week-number lookup used by the progress-update flow.
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "weekNumber", Value: 1}},
			Options: options.Index(),
		},
	}
	_, _ = collection.Indexes().CreateMany(ctx, indexes)
}

// internal/repository/mongo/schedule_repo.go
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

const scheduleCollectionName = "delivery_schedules"

// mongoScheduleRepository implements repository.ScheduleRepository
type mongoScheduleRepository struct {
	collection *mongo.Collection
}

// NewMongoScheduleRepository creates a new schedule repository.
func NewMongoScheduleRepository(db *mongo.Database) repository.ScheduleRepository {
	return &mongoScheduleRepository{
		collection: db.Collection(scheduleCollectionName),
	}
}

// Create inserts a new delivery schedule.
func (r *mongoScheduleRepository) Create(ctx context.Context, schedule *domain.DeliverySchedule) (primitive.ObjectID, error) {
	if schedule.UserID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("schedule requires userId")
	}
	schedule.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	schedule.Version = 1

	result, err := r.collection.InsertOne(ctx, schedule)
	if err != nil {
		// The partial unique index on userId+isActive rejects a second
		// active schedule for the same user.
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted schedule ID")
	}
	return insertedID, nil
}

// GetByID retrieves a single schedule by its ID.
func (r *mongoScheduleRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.DeliverySchedule, error) {
	var schedule domain.DeliverySchedule
	filter := bson.M{"_id": id}
	err := r.collection.FindOne(ctx, filter).Decode(&schedule)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &schedule, nil
}

// GetActiveByUser retrieves the single active schedule for a user.
func (r *mongoScheduleRepository) GetActiveByUser(ctx context.Context, userID primitive.ObjectID) (*domain.DeliverySchedule, error) {
	var schedule domain.DeliverySchedule
	filter := bson.M{
		"userId":   userID,
		"isActive": true,
	}
	err := r.collection.FindOne(ctx, filter).Decode(&schedule)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &schedule, nil
}

// SaveVersioned persists the delivery-cycle fields of a schedule using the
// version token for optimistic concurrency. The update only matches when
// the stored version equals the in-memory one; a mismatch returns
// repository.ErrVersionConflict so the caller can reload and retry.
func (r *mongoScheduleRepository) SaveVersioned(ctx context.Context, schedule *domain.DeliverySchedule) error {
	if schedule.ID == primitive.NilObjectID {
		return errors.New("schedule ID is required for versioned save")
	}

	filter := bson.M{
		"_id":     schedule.ID,
		"version": schedule.Version,
	}
	updateDoc := bson.M{
		"$set": bson.M{
			"recentPlans":      schedule.RecentPlans,
			"progressTracking": schedule.Progress,
			"lastDeliveryDate": schedule.LastDeliveryDate,
			"nextDeliveryDate": schedule.NextDeliveryDate,
			"updatedAt":        time.Now().UTC(),
		},
		"$inc": bson.M{"version": 1},
	}

	result, err := r.collection.UpdateOne(ctx, filter, updateDoc)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		// Either the schedule is gone or someone else bumped the version.
		exists, countErr := r.collection.CountDocuments(ctx, bson.M{"_id": schedule.ID})
		if countErr != nil {
			return countErr
		}
		if exists == 0 {
			return repository.ErrNotFound
		}
		return repository.ErrVersionConflict
	}
	schedule.Version++
	return nil
}

// SetActive flips the isActive flag (soft deactivate/reactivate).
func (r *mongoScheduleRepository) SetActive(ctx context.Context, id primitive.ObjectID, active bool) error {
	return r.updateFields(ctx, id, bson.M{"isActive": active})
}

// SetPause sets or clears pausedUntil.
func (r *mongoScheduleRepository) SetPause(ctx context.Context, id primitive.ObjectID, until *time.Time) error {
	return r.updateFields(ctx, id, bson.M{"pausedUntil": until})
}

// UpdateSettings persists the user-editable configuration of a schedule.
// Progress tracking and plan references are owned by the delivery cycle
// and deliberately left untouched here.
func (r *mongoScheduleRepository) UpdateSettings(ctx context.Context, schedule *domain.DeliverySchedule) error {
	if schedule.ID == primitive.NilObjectID {
		return errors.New("schedule ID is required for update")
	}
	return r.updateFields(ctx, schedule.ID, bson.M{
		"userProfile":        schedule.Profile,
		"deliveryFrequency":  schedule.Frequency,
		"deliveryDay":        schedule.DeliveryDay,
		"deliveryTime":       schedule.DeliveryTime,
		"timezone":           schedule.Timezone,
		"nextDeliveryDate":   schedule.NextDeliveryDate,
		"longTermGoal":       schedule.LongTermGoal,
		"adaptationSettings": schedule.Adaptation,
	})
}

// ResetProgress atomically rewrites progress tracking and clears the
// recent-plan references. Used by the bulk plan delete flow.
func (r *mongoScheduleRepository) ResetProgress(ctx context.Context, id primitive.ObjectID, progress domain.ProgressTracking) error {
	return r.updateFields(ctx, id, bson.M{
		"progressTracking": progress,
		"recentPlans":      []domain.RecentPlanRef{},
	})
}

func (r *mongoScheduleRepository) updateFields(ctx context.Context, id primitive.ObjectID, fields bson.M) error {
	fields["updatedAt"] = time.Now().UTC()
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// notPausedAt matches schedules that are unpaused, or whose pause has
// already elapsed, at the given instant.
func notPausedAt(now time.Time) []bson.M {
	return []bson.M{
		{"pausedUntil": bson.M{"$exists": false}},
		{"pausedUntil": nil},
		{"pausedUntil": bson.M{"$lte": now}},
	}
}

// FindDue selects active, unpaused schedules whose next delivery time has
// passed. Results come back oldest first so the longest-waiting users are
// served before the batch budget runs out.
func (r *mongoScheduleRepository) FindDue(ctx context.Context, now time.Time) ([]domain.DeliverySchedule, error) {
	filter := bson.M{
		"isActive":         true,
		"nextDeliveryDate": bson.M{"$lte": now},
		"$or":              notPausedAt(now),
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "nextDeliveryDate", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var schedules []domain.DeliverySchedule
	if err = cursor.All(ctx, &schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

// FindOverdue bounds the due query to a window and caps the batch size,
// preventing unbounded catch-up storms after downtime.
func (r *mongoScheduleRepository) FindOverdue(ctx context.Context, from, to time.Time, limit int64) ([]domain.DeliverySchedule, error) {
	filter := bson.M{
		"isActive": true,
		"nextDeliveryDate": bson.M{
			"$gte": from,
			"$lte": to,
		},
		"$or": notPausedAt(to),
	}
	findOptions := options.Find().
		SetSort(bson.D{{Key: "nextDeliveryDate", Value: 1}}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var schedules []domain.DeliverySchedule
	if err = cursor.All(ctx, &schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

// EnsureScheduleIndexes creates necessary indexes. Call during startup.
func EnsureScheduleIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			// Main lookup: the single active schedule for a user. The
			// partial unique constraint backs up the in-process create
			// lock when multiple instances share the database.
			Keys: bson.D{{Key: "userId", Value: 1}, {Key: "isActive", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"isActive": true}),
		},
		{
			// Due-scanner query path.
			Keys:    bson.D{{Key: "isActive", Value: 1}, {Key: "nextDeliveryDate", Value: 1}},
			Options: options.Index(),
		},
	}
	_, _ = collection.Indexes().CreateMany(ctx, indexes)
}

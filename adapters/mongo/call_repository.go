package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zeipo-ai/voicegate/domain/entities"
	"github.com/zeipo-ai/voicegate/domain/repositories"
)

type CallRepository struct {
	collection *mongo.Collection
}

// NewCallRepository creates a MongoDB-backed call log.
func NewCallRepository(db *mongo.Database) repositories.CallLogRepository {
	return &CallRepository{
		collection: db.Collection("call_records"),
	}
}

// Save implements repositories.CallLogRepository
func (r *CallRepository) Save(ctx context.Context, record *entities.CallRecord) error {
	if record == nil {
		return errors.New("call record cannot be nil")
	}
	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to save call record: %w", err)
	}
	return nil
}

// ListBySession implements repositories.CallLogRepository
func (r *CallRepository) ListBySession(ctx context.Context, callSessionID string) ([]*entities.CallRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"session_id": callSessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list call records: %w", err)
	}
	defer cursor.Close(ctx)

	records := []*entities.CallRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode call records: %w", err)
	}
	return records, nil
}

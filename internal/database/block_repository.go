package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// BlockDocument represents the MongoDB document structure for block edges
type BlockDocument struct {
	ID        string    `bson:"_id"` // "<blocker>:<blocked>"
	BlockerID string    `bson:"blockerId"`
	BlockedID string    `bson:"blockedId"`
	CreatedAt time.Time `bson:"createdAt"`
}

func blockDocID(blockerID, blockedID uuid.UUID) string {
	return blockerID.String() + ":" + blockedID.String()
}

// Block upserts a directed block edge. Repeating the call is a no-op.
func (m *MongoDB) Block(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	doc := BlockDocument{
		ID:        blockDocID(blockerID, blockedID),
		BlockerID: blockerID.String(),
		BlockedID: blockedID.String(),
		CreatedAt: time.Now(),
	}
	opts := options.Update().SetUpsert(true)
	_, err := m.Blocks.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$setOnInsert": doc}, opts)
	if err != nil {
		return fmt.Errorf("failed to save block: %v", err)
	}
	return nil
}

// Unblock removes a directed block edge. Removing a missing edge is a no-op.
func (m *MongoDB) Unblock(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	_, err := m.Blocks.DeleteOne(ctx, bson.M{"_id": blockDocID(blockerID, blockedID)})
	if err != nil {
		return fmt.Errorf("failed to remove block: %v", err)
	}
	return nil
}

// Blocked reports whether a block edge exists in either direction.
func (m *MongoDB) Blocked(ctx context.Context, a, b uuid.UUID) (bool, error) {
	filter := bson.M{"_id": bson.M{"$in": []string{
		blockDocID(a, b),
		blockDocID(b, a),
	}}}
	err := m.Blocks.FindOne(ctx, filter).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check block: %v", err)
}

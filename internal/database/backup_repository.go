package database

import (
	"context"
	"fmt"
	"time"

	"campuslink/internal/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// BackupDocument represents the MongoDB document structure for backup records
type BackupDocument struct {
	ID         string           `bson:"_id"`
	MessageID  string           `bson:"messageId"`
	OwnerID    string           `bson:"ownerId"`
	Snapshot   *MessageDocument `bson:"snapshot"`
	Reason     string           `bson:"reason"`
	Restorable bool             `bson:"restorable"`
	CreatedAt  time.Time        `bson:"createdAt"`
}

// SaveBackup persists a point-in-time message snapshot.
func (m *MongoDB) SaveBackup(ctx context.Context, rec *models.BackupRecord) error {
	doc := BackupDocument{
		ID:         rec.ID.String(),
		MessageID:  rec.MessageID.String(),
		OwnerID:    rec.OwnerID.String(),
		Snapshot:   messageToDocument(&rec.Snapshot),
		Reason:     string(rec.Reason),
		Restorable: rec.Restorable,
		CreatedAt:  rec.CreatedAt,
	}
	if _, err := m.Backups.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to save backup: %v", err)
	}
	return nil
}

// GetBackupsByOwner loads a user's snapshots, newest first.
func (m *MongoDB) GetBackupsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.BackupRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := m.Backups.Find(ctx, bson.M{"ownerId": ownerID.String()}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query backups: %v", err)
	}
	defer cursor.Close(ctx)

	var records []*models.BackupRecord
	for cursor.Next(ctx) {
		var doc BackupDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode backup: %v", err)
		}
		id, _ := uuid.Parse(doc.ID)
		msgID, _ := uuid.Parse(doc.MessageID)
		ownerID, _ := uuid.Parse(doc.OwnerID)
		records = append(records, &models.BackupRecord{
			ID:         id,
			MessageID:  msgID,
			OwnerID:    ownerID,
			Snapshot:   *documentToMessage(doc.Snapshot),
			Reason:     models.BackupReason(doc.Reason),
			Restorable: doc.Restorable,
			CreatedAt:  doc.CreatedAt,
		})
	}
	return records, nil
}

// DeleteExpiredBackups removes non-restorable records older than the cutoff
// and reports how many were deleted.
func (m *MongoDB) DeleteExpiredBackups(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := bson.M{
		"restorable": false,
		"createdAt":  bson.M{"$lt": cutoff},
	}
	res, err := m.Backups.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired backups: %v", err)
	}
	return res.DeletedCount, nil
}

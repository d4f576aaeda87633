package database

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"campuslink/internal/keys"
	"campuslink/internal/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// UserDocument represents the MongoDB document structure for the user fields
// the messaging core touches
type UserDocument struct {
	ID             string    `bson:"_id"`
	Username       string    `bson:"username"`
	Connections    []string  `bson:"connections,omitempty"`
	PublicKey      string    `bson:"publicKey,omitempty"`
	KeyVersion     int       `bson:"keyVersion,omitempty"`
	KeyGeneratedAt time.Time `bson:"keyGeneratedAt,omitempty"`
	IsOnline       bool      `bson:"isOnline"`
	LastActive     time.Time `bson:"lastActive"`
}

// GetUser loads the messaging-relevant fields of a user.
func (m *MongoDB) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var doc UserDocument
	if err := m.Users.FindOne(ctx, bson.M{"_id": userID.String()}).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to get user: %v", err)
	}

	user := &models.User{
		ID:             userID,
		Username:       doc.Username,
		PublicKey:      doc.PublicKey,
		KeyVersion:     doc.KeyVersion,
		KeyGeneratedAt: doc.KeyGeneratedAt,
		IsOnline:       doc.IsOnline,
		LastActive:     doc.LastActive,
	}
	for _, c := range doc.Connections {
		if id, err := uuid.Parse(c); err == nil {
			user.Connections = append(user.Connections, id)
		}
	}
	return user, nil
}

// SetPresence records online state and last-seen.
func (m *MongoDB) SetPresence(ctx context.Context, userID uuid.UUID, online bool) error {
	update := bson.M{"$set": bson.M{"isOnline": online, "lastActive": time.Now()}}
	if _, err := m.Users.UpdateOne(ctx, bson.M{"_id": userID.String()}, update); err != nil {
		return fmt.Errorf("failed to set presence: %v", err)
	}
	return nil
}

// SaveKeyRecord mirrors the latest key material onto the user document so
// peers can discover it. Implements keys.Store.
func (m *MongoDB) SaveKeyRecord(rec keys.KeyRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"publicKey":      base64.StdEncoding.EncodeToString(rec.PublicKey),
		"keyVersion":     rec.Version,
		"keyGeneratedAt": rec.GeneratedAt,
	}}
	if _, err := m.Users.UpdateOne(ctx, bson.M{"_id": rec.UserID.String()}, update); err != nil {
		return fmt.Errorf("failed to save key record: %v", err)
	}
	return nil
}

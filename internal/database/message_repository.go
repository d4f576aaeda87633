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

// MessageDocument represents the MongoDB document structure for messages
type MessageDocument struct {
	ID          string              `bson:"_id"`
	SenderID    string              `bson:"senderId"`
	RecipientID string              `bson:"recipientId,omitempty"`
	GroupID     string              `bson:"groupId,omitempty"`
	Content     string              `bson:"content"`
	Attachments []models.Attachment `bson:"attachments,omitempty"`
	Type        string              `bson:"type"`
	CreatedAt   time.Time           `bson:"createdAt"`
	DeliveredAt *time.Time          `bson:"deliveredAt,omitempty"`
	ReadAt      *time.Time          `bson:"readAt,omitempty"`

	DeletedFor         map[string]bool `bson:"deletedFor,omitempty"`
	DeletedForEveryone bool            `bson:"deletedForEveryone"`
	DeletedAt          *time.Time      `bson:"deletedAt,omitempty"`

	Reactions []models.Reaction `bson:"reactions,omitempty"`
	StarredBy map[string]bool   `bson:"starredBy,omitempty"`
	PinnedBy  map[string]bool   `bson:"pinnedBy,omitempty"`

	ReplyToID string              `bson:"replyToId,omitempty"`
	Forwarded *models.ForwardInfo `bson:"forwarded,omitempty"`
	ClientKey string              `bson:"clientKey,omitempty"`
	Envelope  *models.Envelope    `bson:"envelope,omitempty"`
}

func messageToDocument(msg *models.Message) *MessageDocument {
	doc := &MessageDocument{
		ID:                 msg.ID.String(),
		SenderID:           msg.SenderID.String(),
		Content:            msg.Content,
		Attachments:        msg.Attachments,
		Type:               string(msg.Type),
		CreatedAt:          msg.CreatedAt,
		DeliveredAt:        msg.DeliveredAt,
		ReadAt:             msg.ReadAt,
		DeletedFor:         msg.DeletedFor,
		DeletedForEveryone: msg.DeletedForEveryone,
		DeletedAt:          msg.DeletedAt,
		Reactions:          msg.Reactions,
		StarredBy:          msg.StarredBy,
		PinnedBy:           msg.PinnedBy,
		Forwarded:          msg.Forwarded,
		ClientKey:          msg.ClientKey,
		Envelope:           msg.Envelope,
	}
	if msg.RecipientID != nil {
		doc.RecipientID = msg.RecipientID.String()
	}
	if msg.GroupID != nil {
		doc.GroupID = msg.GroupID.String()
	}
	if msg.ReplyToID != nil {
		doc.ReplyToID = msg.ReplyToID.String()
	}
	return doc
}

func documentToMessage(doc *MessageDocument) *models.Message {
	id, _ := uuid.Parse(doc.ID)
	senderID, _ := uuid.Parse(doc.SenderID)

	msg := &models.Message{
		ID:                 id,
		SenderID:           senderID,
		Content:            doc.Content,
		Attachments:        doc.Attachments,
		Type:               models.MessageType(doc.Type),
		CreatedAt:          doc.CreatedAt,
		DeliveredAt:        doc.DeliveredAt,
		ReadAt:             doc.ReadAt,
		DeletedFor:         doc.DeletedFor,
		DeletedForEveryone: doc.DeletedForEveryone,
		DeletedAt:          doc.DeletedAt,
		Reactions:          doc.Reactions,
		StarredBy:          doc.StarredBy,
		PinnedBy:           doc.PinnedBy,
		Forwarded:          doc.Forwarded,
		ClientKey:          doc.ClientKey,
		Envelope:           doc.Envelope,
	}
	if doc.RecipientID != "" {
		if rid, err := uuid.Parse(doc.RecipientID); err == nil {
			msg.RecipientID = &rid
		}
	}
	if doc.GroupID != "" {
		if gid, err := uuid.Parse(doc.GroupID); err == nil {
			msg.GroupID = &gid
		}
	}
	if doc.ReplyToID != "" {
		if rid, err := uuid.Parse(doc.ReplyToID); err == nil {
			msg.ReplyToID = &rid
		}
	}
	return msg
}

// SaveMessage persists a new message
func (m *MongoDB) SaveMessage(ctx context.Context, msg *models.Message) error {
	if _, err := m.Messages.InsertOne(ctx, messageToDocument(msg)); err != nil {
		return fmt.Errorf("failed to save message: %v", err)
	}
	return nil
}

// ReplaceMessage overwrites the stored state of a mutated message. Message
// mutation is in-place (reactions, stars, soft deletes, tombstones), so the
// whole document is replaced with the actor's authoritative copy.
func (m *MongoDB) ReplaceMessage(ctx context.Context, msg *models.Message) error {
	opts := options.Replace().SetUpsert(true)
	_, err := m.Messages.ReplaceOne(ctx, bson.M{"_id": msg.ID.String()}, messageToDocument(msg), opts)
	if err != nil {
		return fmt.Errorf("failed to replace message: %v", err)
	}
	return nil
}

// MarkReadRange stamps delivered/read on all unread direct messages from one
// user to another, in a single server-side update.
func (m *MongoDB) MarkReadRange(ctx context.Context, fromID, toID uuid.UUID, at time.Time) (int64, error) {
	filter := bson.M{
		"senderId":    fromID.String(),
		"recipientId": toID.String(),
		"readAt":      bson.M{"$exists": false},
	}
	update := bson.M{"$set": bson.M{"readAt": at}}
	res, err := m.Messages.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to mark read range: %v", err)
	}

	// Stamp deliveredAt only where it was never set live.
	_, err = m.Messages.UpdateMany(ctx, bson.M{
		"senderId":    fromID.String(),
		"recipientId": toID.String(),
		"deliveredAt": bson.M{"$exists": false},
	}, bson.M{"$set": bson.M{"deliveredAt": at}})
	if err != nil {
		return res.ModifiedCount, fmt.Errorf("failed to stamp delivery: %v", err)
	}
	return res.ModifiedCount, nil
}

// FindConversation loads a direct conversation page, oldest first.
func (m *MongoDB) FindConversation(ctx context.Context, userA, userB uuid.UUID, limit int64) ([]*models.Message, error) {
	a, b := userA.String(), userB.String()
	filter := bson.M{
		"$or": []bson.M{
			{"senderId": a, "recipientId": b},
			{"senderId": b, "recipientId": a},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	return m.findMessages(ctx, filter, opts)
}

// FindGroupMessages loads a group conversation page, oldest first.
func (m *MongoDB) FindGroupMessages(ctx context.Context, groupID uuid.UUID, limit int64) ([]*models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	return m.findMessages(ctx, bson.M{"groupId": groupID.String()}, opts)
}

// GetMessagesByUser retrieves all direct messages a user sent or received.
func (m *MongoDB) GetMessagesByUser(ctx context.Context, userID uuid.UUID) ([]*models.Message, error) {
	idStr := userID.String()
	filter := bson.M{
		"$or": []bson.M{
			{"senderId": idStr},
			{"recipientId": idStr},
		},
	}
	return m.findMessages(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
}

func (m *MongoDB) findMessages(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Message, error) {
	cursor, err := m.Messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %v", err)
	}
	defer cursor.Close(ctx)

	var messages []*models.Message
	for cursor.Next(ctx) {
		var doc MessageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode message: %v", err)
		}
		messages = append(messages, documentToMessage(&doc))
	}
	return messages, nil
}

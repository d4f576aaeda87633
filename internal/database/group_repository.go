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

// GroupMemberDocument is one membership entry inside a group document
type GroupMemberDocument struct {
	UserID   string    `bson:"userId"`
	Role     string    `bson:"role"`
	JoinedAt time.Time `bson:"joinedAt"`
	AddedBy  string    `bson:"addedBy"`
}

// GroupDocument represents the MongoDB document structure for groups
type GroupDocument struct {
	ID            string                `bson:"_id"`
	Name          string                `bson:"name"`
	Description   string                `bson:"description,omitempty"`
	AvatarURL     string                `bson:"avatarUrl,omitempty"`
	CreatorID     string                `bson:"creatorId"`
	Members       []GroupMemberDocument `bson:"members"`
	PinnedMessage string                `bson:"pinnedMessageId,omitempty"`
	LastMessage   string                `bson:"lastMessageId,omitempty"`
	LastActivity  time.Time             `bson:"lastActivity"`
	Unread        map[string]int        `bson:"unread"`
	IsDeleted     bool                  `bson:"isDeleted"`
	CreatedAt     time.Time             `bson:"createdAt"`
}

func groupToDocument(g *models.Group) *GroupDocument {
	doc := &GroupDocument{
		ID:           g.ID.String(),
		Name:         g.Name,
		Description:  g.Description,
		AvatarURL:    g.AvatarURL,
		CreatorID:    g.CreatorID.String(),
		LastActivity: g.LastActivity,
		Unread:       g.Unread,
		IsDeleted:    g.IsDeleted,
		CreatedAt:    g.CreatedAt,
	}
	for _, m := range g.Members {
		doc.Members = append(doc.Members, GroupMemberDocument{
			UserID:   m.UserID.String(),
			Role:     string(m.Role),
			JoinedAt: m.JoinedAt,
			AddedBy:  m.AddedBy.String(),
		})
	}
	if g.PinnedMessage != nil {
		doc.PinnedMessage = g.PinnedMessage.String()
	}
	if g.LastMessage != nil {
		doc.LastMessage = g.LastMessage.String()
	}
	return doc
}

func documentToGroup(doc *GroupDocument) *models.Group {
	id, _ := uuid.Parse(doc.ID)
	creatorID, _ := uuid.Parse(doc.CreatorID)
	g := &models.Group{
		ID:           id,
		Name:         doc.Name,
		Description:  doc.Description,
		AvatarURL:    doc.AvatarURL,
		CreatorID:    creatorID,
		LastActivity: doc.LastActivity,
		Unread:       doc.Unread,
		IsDeleted:    doc.IsDeleted,
		CreatedAt:    doc.CreatedAt,
	}
	for _, m := range doc.Members {
		uid, _ := uuid.Parse(m.UserID)
		addedBy, _ := uuid.Parse(m.AddedBy)
		g.Members = append(g.Members, models.GroupMember{
			UserID:   uid,
			Role:     models.GroupRole(m.Role),
			JoinedAt: m.JoinedAt,
			AddedBy:  addedBy,
		})
	}
	if doc.PinnedMessage != "" {
		if mid, err := uuid.Parse(doc.PinnedMessage); err == nil {
			g.PinnedMessage = &mid
		}
	}
	if doc.LastMessage != "" {
		if mid, err := uuid.Parse(doc.LastMessage); err == nil {
			g.LastMessage = &mid
		}
	}
	if g.Unread == nil {
		g.Unread = make(map[string]int)
	}
	return g
}

// SaveGroup persists the full group document. Membership mutation is
// last-writer-wins on shape, which matches the registry's serialization.
func (m *MongoDB) SaveGroup(ctx context.Context, g *models.Group) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := m.Groups.ReplaceOne(ctx, bson.M{"_id": g.ID.String()}, groupToDocument(g), opts); err != nil {
		return fmt.Errorf("failed to save group: %v", err)
	}
	return nil
}

// RecordGroupSend bumps unread counters for the given members with a single
// $inc per member field, leaving the sender untouched.
func (m *MongoDB) RecordGroupSend(ctx context.Context, groupID, messageID uuid.UUID, recipientIDs []uuid.UUID, at time.Time) error {
	inc := bson.M{}
	for _, id := range recipientIDs {
		inc["unread."+id.String()] = 1
	}
	update := bson.M{
		"$set": bson.M{"lastMessageId": messageID.String(), "lastActivity": at},
	}
	if len(inc) > 0 {
		update["$inc"] = inc
	}
	if _, err := m.Groups.UpdateOne(ctx, bson.M{"_id": groupID.String()}, update); err != nil {
		return fmt.Errorf("failed to record group send: %v", err)
	}
	return nil
}

// ResetGroupUnread zeroes one member's counter.
func (m *MongoDB) ResetGroupUnread(ctx context.Context, groupID, readerID uuid.UUID) error {
	update := bson.M{"$set": bson.M{"unread." + readerID.String(): 0}}
	if _, err := m.Groups.UpdateOne(ctx, bson.M{"_id": groupID.String()}, update); err != nil {
		return fmt.Errorf("failed to reset group unread: %v", err)
	}
	return nil
}

// GetGroup loads one group by id.
func (m *MongoDB) GetGroup(ctx context.Context, groupID uuid.UUID) (*models.Group, error) {
	var doc GroupDocument
	if err := m.Groups.FindOne(ctx, bson.M{"_id": groupID.String()}).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to get group: %v", err)
	}
	return documentToGroup(&doc), nil
}

// GetGroupsByMember loads every non-deleted group a user belongs to.
func (m *MongoDB) GetGroupsByMember(ctx context.Context, userID uuid.UUID) ([]*models.Group, error) {
	filter := bson.M{
		"members.userId": userID.String(),
		"isDeleted":      false,
	}
	cursor, err := m.Groups.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %v", err)
	}
	defer cursor.Close(ctx)

	var groups []*models.Group
	for cursor.Next(ctx) {
		var doc GroupDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode group: %v", err)
		}
		groups = append(groups, documentToGroup(&doc))
	}
	return groups, nil
}

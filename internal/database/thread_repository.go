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

// ThreadDocument represents the MongoDB document structure for threads
type ThreadDocument struct {
	ID           string               `bson:"_id"`
	ParticipantA string               `bson:"participantA"`
	ParticipantB string               `bson:"participantB"`
	LastMessage  string               `bson:"lastMessageId,omitempty"`
	LastActivity time.Time            `bson:"lastActivity"`
	Unread       map[string]int       `bson:"unread"`
	LastReadAt   map[string]time.Time `bson:"lastReadAt,omitempty"`
	MediaCounts  map[string]int       `bson:"mediaCounts,omitempty"`
	CreatedAt    time.Time            `bson:"createdAt"`
}

func threadToDocument(t *models.Thread) *ThreadDocument {
	doc := &ThreadDocument{
		ID:           t.ID,
		ParticipantA: t.ParticipantA.String(),
		ParticipantB: t.ParticipantB.String(),
		LastActivity: t.LastActivity,
		Unread:       t.Unread,
		LastReadAt:   t.LastReadAt,
		MediaCounts:  t.MediaCounts,
		CreatedAt:    t.CreatedAt,
	}
	if t.LastMessage != nil {
		doc.LastMessage = t.LastMessage.String()
	}
	return doc
}

// UpsertThread inserts the canonical thread row if it does not exist yet.
// The canonical _id makes concurrent first-contact sends converge on one
// record instead of racing to create two.
func (m *MongoDB) UpsertThread(ctx context.Context, t *models.Thread) error {
	filter := bson.M{"_id": t.ID}
	update := bson.M{"$setOnInsert": threadToDocument(t)}
	opts := options.Update().SetUpsert(true)
	if _, err := m.Threads.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert thread: %v", err)
	}
	return nil
}

// RecordThreadSend applies a send to the thread row atomically: the
// recipient's counter is a single $inc on its own field, so concurrent sends
// from both directions never lose updates.
func (m *MongoDB) RecordThreadSend(ctx context.Context, threadID string, recipientID, messageID uuid.UUID, at time.Time, mediaKinds []string) error {
	set := bson.M{
		"lastMessageId": messageID.String(),
		"lastActivity":  at,
	}
	inc := bson.M{"unread." + recipientID.String(): 1}
	for _, kind := range mediaKinds {
		inc["mediaCounts."+kind] = 1
	}
	update := bson.M{"$set": set, "$inc": inc}
	if _, err := m.Threads.UpdateOne(ctx, bson.M{"_id": threadID}, update); err != nil {
		return fmt.Errorf("failed to record thread send: %v", err)
	}
	return nil
}

// ResetThreadUnread zeroes the reader's counter and stamps last-read-at.
func (m *MongoDB) ResetThreadUnread(ctx context.Context, threadID string, readerID uuid.UUID, at time.Time) error {
	update := bson.M{"$set": bson.M{
		"unread." + readerID.String():     0,
		"lastReadAt." + readerID.String(): at,
	}}
	if _, err := m.Threads.UpdateOne(ctx, bson.M{"_id": threadID}, update); err != nil {
		return fmt.Errorf("failed to reset thread unread: %v", err)
	}
	return nil
}

// GetThreadsByUser loads every thread a user participates in.
func (m *MongoDB) GetThreadsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Thread, error) {
	idStr := userID.String()
	filter := bson.M{"$or": []bson.M{
		{"participantA": idStr},
		{"participantB": idStr},
	}}
	cursor, err := m.Threads.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query threads: %v", err)
	}
	defer cursor.Close(ctx)

	var threads []*models.Thread
	for cursor.Next(ctx) {
		var doc ThreadDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode thread: %v", err)
		}
		threads = append(threads, documentToThread(&doc))
	}
	return threads, nil
}

func documentToThread(doc *ThreadDocument) *models.Thread {
	a, _ := uuid.Parse(doc.ParticipantA)
	b, _ := uuid.Parse(doc.ParticipantB)
	t := &models.Thread{
		ID:           doc.ID,
		ParticipantA: a,
		ParticipantB: b,
		LastActivity: doc.LastActivity,
		Unread:       doc.Unread,
		LastReadAt:   doc.LastReadAt,
		MediaCounts:  doc.MediaCounts,
		CreatedAt:    doc.CreatedAt,
	}
	if doc.LastMessage != "" {
		if mid, err := uuid.Parse(doc.LastMessage); err == nil {
			t.LastMessage = &mid
		}
	}
	if t.Unread == nil {
		t.Unread = make(map[string]int)
	}
	if t.LastReadAt == nil {
		t.LastReadAt = make(map[string]time.Time)
	}
	return t
}

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// ThreadKey derives the canonical, order-independent id of a two-party
// thread. Both participant orders yield the same key, so concurrent
// first-contact sends converge on a single record.
func ThreadKey(a, b uuid.UUID) string {
	lo, hi := a.String(), b.String()
	if hi < lo {
		lo, hi = hi, lo
	}
	sum := sha256.Sum256([]byte(lo + ":" + hi))
	return hex.EncodeToString(sum[:16])
}

// Thread is the canonical record of a direct 1:1 conversation. Counter and
// timestamp maps are keyed by user id string; each party's entry is
// independently mutable so concurrent sends from both directions never
// contend on the same field.
type Thread struct {
	ID           string               `json:"id"`
	ParticipantA uuid.UUID            `json:"participantA"`
	ParticipantB uuid.UUID            `json:"participantB"`
	LastMessage  *uuid.UUID           `json:"lastMessageId,omitempty"`
	LastActivity time.Time            `json:"lastActivity"`
	Unread       map[string]int       `json:"unread"`
	LastReadAt   map[string]time.Time `json:"lastReadAt"`

	// TypingUntil holds per-user typing-indicator expiries.
	TypingUntil map[string]time.Time `json:"typingUntil,omitempty"`

	// MediaCounts aggregates attachment kinds for the media/links quick tab.
	MediaCounts map[string]int `json:"mediaCounts,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// NewThread builds the canonical thread row for a pair, participants stored
// in sorted order.
func NewThread(a, b uuid.UUID) *Thread {
	if b.String() < a.String() {
		a, b = b, a
	}
	now := time.Now()
	return &Thread{
		ID:           ThreadKey(a, b),
		ParticipantA: a,
		ParticipantB: b,
		Unread:       map[string]int{a.String(): 0, b.String(): 0},
		LastReadAt:   make(map[string]time.Time),
		TypingUntil:  make(map[string]time.Time),
		MediaCounts:  make(map[string]int),
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Peer returns the other participant of the thread.
func (t *Thread) Peer(userID uuid.UUID) uuid.UUID {
	if t.ParticipantA == userID {
		return t.ParticipantB
	}
	return t.ParticipantA
}

// HasParticipant reports whether the user belongs to this thread.
func (t *Thread) HasParticipant(userID uuid.UUID) bool {
	return t.ParticipantA == userID || t.ParticipantB == userID
}

// Typing reports whether the user's typing indicator is still live.
func (t *Thread) Typing(userID uuid.UUID, now time.Time) bool {
	until, ok := t.TypingUntil[userID.String()]
	return ok && now.Before(until)
}

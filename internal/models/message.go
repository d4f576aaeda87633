package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageType tags the kind of content a message carries.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeLocation MessageType = "location"
	MessageTypeContact  MessageType = "contact"
	MessageTypeMedia    MessageType = "media"
)

// ReactionEmoji is the fixed set of reactions a user may attach to a message.
type ReactionEmoji string

const (
	ReactionLike  ReactionEmoji = "like"
	ReactionLove  ReactionEmoji = "love"
	ReactionLaugh ReactionEmoji = "laugh"
	ReactionWow   ReactionEmoji = "wow"
	ReactionSad   ReactionEmoji = "sad"
	ReactionAngry ReactionEmoji = "angry"
)

func (e ReactionEmoji) Valid() bool {
	switch e {
	case ReactionLike, ReactionLove, ReactionLaugh, ReactionWow, ReactionSad, ReactionAngry:
		return true
	}
	return false
}

// Reaction is one user's reaction to a message. At most one entry per user.
type Reaction struct {
	UserID    uuid.UUID     `json:"userId"`
	Emoji     ReactionEmoji `json:"emoji"`
	ReactedAt time.Time     `json:"reactedAt"`
}

// AttachmentKind classifies an attachment for quick-tab counters and
// snippet labels.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentVideo AttachmentKind = "video"
	AttachmentAudio AttachmentKind = "audio"
	AttachmentFile  AttachmentKind = "file"
	AttachmentLink  AttachmentKind = "link"
)

// Attachment is a reference to externally stored media. The core never
// touches the bytes.
type Attachment struct {
	ID   uuid.UUID      `json:"id"`
	Kind AttachmentKind `json:"kind"`
	URL  string         `json:"url"`
	Name string         `json:"name,omitempty"`
	Size int64          `json:"size,omitempty"`
}

// Envelope describes how a message's content was encrypted on the client.
// The server stores it blindly; decryption never happens here. KeyVersions
// pins, per recipient, the key version the symmetric key was wrapped under,
// so rotation never breaks old messages.
type Envelope struct {
	Scheme      string            `json:"scheme"`
	KeyVersions map[string]int    `json:"keyVersions"`
	WrappedKeys map[string]string `json:"wrappedKeys"`
	Nonce       string            `json:"nonce,omitempty"`
}

// ForwardInfo annotates a forwarded message with its original sender and
// how many hops it has taken.
type ForwardInfo struct {
	OriginalSenderID uuid.UUID `json:"originalSenderId"`
	Count            int       `json:"count"`
}

// Message is a single direct or group message. Exactly one of RecipientID
// and GroupID is set.
type Message struct {
	ID          uuid.UUID    `json:"id"`
	SenderID    uuid.UUID    `json:"senderId"`
	RecipientID *uuid.UUID   `json:"recipientId,omitempty"`
	GroupID     *uuid.UUID   `json:"groupId,omitempty"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Type        MessageType  `json:"type"`
	CreatedAt   time.Time    `json:"createdAt"`

	// Delivery state for direct messages: sent -> delivered -> read,
	// monotonic.
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	ReadAt      *time.Time `json:"readAt,omitempty"`

	// Per-viewer soft delete. Keys are user id strings so the set survives
	// BSON round trips unchanged.
	DeletedFor         map[string]bool `json:"-"`
	DeletedForEveryone bool            `json:"deletedForEveryone"`
	DeletedAt          *time.Time      `json:"deletedAt,omitempty"`

	Reactions []Reaction      `json:"reactions,omitempty"`
	StarredBy map[string]bool `json:"starredBy,omitempty"`
	PinnedBy  map[string]bool `json:"pinnedBy,omitempty"`

	ReplyToID *uuid.UUID   `json:"replyToId,omitempty"`
	Forwarded *ForwardInfo `json:"forwarded,omitempty"`

	// ClientKey deduplicates retried sends within a conversation.
	ClientKey string `json:"clientKey,omitempty"`

	Envelope *Envelope `json:"envelope,omitempty"`
}

// IsGroup reports whether the message belongs to a group conversation.
func (m *Message) IsGroup() bool {
	return m.GroupID != nil
}

// VisibleTo reports whether a viewer still sees this message at all.
// Deleted-for-everyone messages stay visible as tombstones; per-viewer
// deletes hide the row entirely.
func (m *Message) VisibleTo(userID uuid.UUID) bool {
	if m.DeletedFor == nil {
		return true
	}
	return !m.DeletedFor[userID.String()]
}

// Tombstone irreversibly clears content and attachments. Reactions, stars
// and the reply pointer are dropped with the content.
func (m *Message) Tombstone(at time.Time) {
	m.Content = ""
	m.Attachments = nil
	m.Reactions = nil
	m.StarredBy = nil
	m.Envelope = nil
	m.DeletedForEveryone = true
	m.DeletedAt = &at
}

// ReactionBy returns the viewer's reaction entry, if any.
func (m *Message) ReactionBy(userID uuid.UUID) *Reaction {
	for i := range m.Reactions {
		if m.Reactions[i].UserID == userID {
			return &m.Reactions[i]
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand across actor boundaries.
func (m *Message) Clone() *Message {
	cp := *m
	cp.Attachments = append([]Attachment(nil), m.Attachments...)
	cp.Reactions = append([]Reaction(nil), m.Reactions...)
	cp.DeletedFor = copyBoolMap(m.DeletedFor)
	cp.StarredBy = copyBoolMap(m.StarredBy)
	cp.PinnedBy = copyBoolMap(m.PinnedBy)
	if m.Envelope != nil {
		env := *m.Envelope
		env.KeyVersions = copyIntMap(m.Envelope.KeyVersions)
		env.WrappedKeys = copyStringMap(m.Envelope.WrappedKeys)
		cp.Envelope = &env
	}
	if m.Forwarded != nil {
		fwd := *m.Forwarded
		cp.Forwarded = &fwd
	}
	return &cp
}

func copyBoolMap(in map[string]bool) map[string]bool {
	if in == nil {
		return nil
	}
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyIntMap(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Snippet produces the conversation-list preview: message text, or an
// attachment-type label when the message has no text.
func (m *Message) Snippet() string {
	if m.DeletedForEveryone {
		return "Message deleted"
	}
	if m.Content != "" {
		return m.Content
	}
	if len(m.Attachments) > 0 {
		switch m.Attachments[0].Kind {
		case AttachmentImage:
			return "[Photo]"
		case AttachmentVideo:
			return "[Video]"
		case AttachmentAudio:
			return "[Audio]"
		case AttachmentLink:
			return "[Link]"
		default:
			return "[File]"
		}
	}
	return ""
}

package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestThreadKeyIsOrderIndependent(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.Equal(t, ThreadKey(a, b), ThreadKey(b, a))
	assert.NotEqual(t, ThreadKey(a, b), ThreadKey(a, uuid.New()))
}

func TestVisibleToHonorsPerViewerDeletes(t *testing.T) {
	viewer := uuid.New()
	m := &Message{SenderID: uuid.New(), Content: "hi"}

	assert.True(t, m.VisibleTo(viewer))

	m.DeletedFor = map[string]bool{viewer.String(): true}
	assert.False(t, m.VisibleTo(viewer))
	assert.True(t, m.VisibleTo(uuid.New()))
}

func TestTombstoneClearsContentAndState(t *testing.T) {
	m := &Message{
		Content:     "secret",
		Attachments: []Attachment{{Kind: AttachmentImage}},
		Reactions:   []Reaction{{UserID: uuid.New(), Emoji: ReactionLike}},
		Envelope:    &Envelope{Scheme: "x25519-xchacha20poly1305"},
	}

	m.Tombstone(time.Now())

	assert.True(t, m.DeletedForEveryone)
	assert.Empty(t, m.Content)
	assert.Nil(t, m.Attachments)
	assert.Nil(t, m.Reactions)
	assert.Nil(t, m.Envelope)
	assert.NotNil(t, m.DeletedAt)
	assert.Equal(t, "Message deleted", m.Snippet())
}

func TestSnippetLabelsAttachments(t *testing.T) {
	assert.Equal(t, "notes attached", (&Message{Content: "notes attached"}).Snippet())
	assert.Equal(t, "[Photo]", (&Message{Attachments: []Attachment{{Kind: AttachmentImage}}}).Snippet())
	assert.Equal(t, "[Video]", (&Message{Attachments: []Attachment{{Kind: AttachmentVideo}}}).Snippet())
	assert.Equal(t, "[File]", (&Message{Attachments: []Attachment{{Kind: AttachmentFile}}}).Snippet())
	assert.Equal(t, "", (&Message{}).Snippet())
}

func TestCloneIsDeep(t *testing.T) {
	rid := uuid.New()
	m := &Message{
		SenderID:    uuid.New(),
		RecipientID: &rid,
		Content:     "original",
		StarredBy:   map[string]bool{"a": true},
		Envelope:    &Envelope{KeyVersions: map[string]int{"a": 1}},
	}

	cp := m.Clone()
	cp.StarredBy["b"] = true
	cp.Envelope.KeyVersions["a"] = 9

	assert.Len(t, m.StarredBy, 1)
	assert.Equal(t, 1, m.Envelope.KeyVersions["a"])
}

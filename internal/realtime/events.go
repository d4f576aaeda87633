package realtime

import (
	"encoding/json"
	"log"

	"github.com/google/uuid"
)

// Event names pushed to connected clients.
const (
	EventMessageNew     = "message:new"
	EventDelivered      = "message:delivered"
	EventReadReceipt    = "messages:readReceipt"
	EventReacted        = "message:reacted"
	EventStarred        = "message:starred"
	EventPinned         = "message:pinned"
	EventDeleted        = "message:deleted"
	EventUnreadUpdate   = "unread:update"
	EventUnreadTotal    = "unread:total"
	EventTyping         = "typing"
	EventGroupCreated   = "group:created"
	EventGroupUpdated   = "group:updated"
	EventGroupAdded     = "group:added"
	EventGroupRemoved   = "group:removed"
	EventGroupMessage   = "group:message"
	EventGroupPinned    = "group:pinned"
	EventGroupUnpinned  = "group:unpinned"
	EventGroupMsgDelete = "group:messageDeleted"
)

// Event is the envelope every push shares on the wire.
type Event struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// Marshal encodes the event, returning nil on failure so callers can treat
// an unencodable payload as a drop.
func (e *Event) Marshal() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("Failed to encode %s event: %v", e.Event, err)
		return nil
	}
	return data
}

// UserChannel names a user's private push channel.
func UserChannel(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// GroupChannel names a group's shared push channel.
func GroupChannel(groupID uuid.UUID) string {
	return "group:" + groupID.String()
}

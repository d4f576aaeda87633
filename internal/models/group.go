package models

import (
	"time"

	"github.com/google/uuid"
)

// GroupRole is a member's role inside a group.
type GroupRole string

const (
	RoleAdmin  GroupRole = "admin"
	RoleMember GroupRole = "member"
)

// GroupMember is one entry of a group's ordered membership list.
type GroupMember struct {
	UserID   uuid.UUID `json:"userId"`
	Role     GroupRole `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
	AddedBy  uuid.UUID `json:"addedBy"`
}

// Group is an N-party conversation with role-based membership.
type Group struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	AvatarURL   string        `json:"avatarUrl,omitempty"`
	CreatorID   uuid.UUID     `json:"creatorId"`
	Members     []GroupMember `json:"members"`

	PinnedMessage *uuid.UUID `json:"pinnedMessageId,omitempty"`
	LastMessage   *uuid.UUID `json:"lastMessageId,omitempty"`
	LastActivity  time.Time  `json:"lastActivity"`

	// Unread counters keyed by member id string.
	Unread map[string]int `json:"unread"`

	IsDeleted bool      `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// Member returns the membership entry for a user, or nil.
func (g *Group) Member(userID uuid.UUID) *GroupMember {
	for i := range g.Members {
		if g.Members[i].UserID == userID {
			return &g.Members[i]
		}
	}
	return nil
}

// IsMember reports group membership.
func (g *Group) IsMember(userID uuid.UUID) bool {
	return g.Member(userID) != nil
}

// IsAdmin reports whether the user holds the admin role.
func (g *Group) IsAdmin(userID uuid.UUID) bool {
	m := g.Member(userID)
	return m != nil && m.Role == RoleAdmin
}

// AdminCount counts members holding the admin role.
func (g *Group) AdminCount() int {
	n := 0
	for i := range g.Members {
		if g.Members[i].Role == RoleAdmin {
			n++
		}
	}
	return n
}

// MemberIDs returns the ids of all current members in membership order.
func (g *Group) MemberIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(g.Members))
	for i := range g.Members {
		ids = append(ids, g.Members[i].UserID)
	}
	return ids
}

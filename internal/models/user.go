package models

import (
	"time"

	"github.com/google/uuid"
)

// User carries only the fields the messaging core reads or writes. Profile
// data, auth credentials and the rest of the account live elsewhere.
type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`

	// Connections is the set of accepted-connection peer ids. Messaging a
	// user requires mutual membership.
	Connections []uuid.UUID `json:"connections,omitempty"`

	// PublicKey is the user's current encryption public key, base64.
	// Version increases monotonically on rotation.
	PublicKey      string    `json:"publicKey,omitempty"`
	KeyVersion     int       `json:"keyVersion,omitempty"`
	KeyGeneratedAt time.Time `json:"keyGeneratedAt,omitempty"`

	IsOnline   bool      `json:"isOnline"`
	LastActive time.Time `json:"lastActive"`
}

// ConnectedTo reports whether peer is in the user's accepted set.
func (u *User) ConnectedTo(peer uuid.UUID) bool {
	for _, id := range u.Connections {
		if id == peer {
			return true
		}
	}
	return false
}

// Block is a directed blocker -> blocked edge. Messaging is disallowed when
// an edge exists in either direction.
type Block struct {
	BlockerID uuid.UUID `json:"blockerId"`
	BlockedID uuid.UUID `json:"blockedId"`
	CreatedAt time.Time `json:"createdAt"`
}

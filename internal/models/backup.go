package models

import (
	"time"

	"github.com/google/uuid"
)

// BackupReason tags why a message snapshot was taken.
type BackupReason string

const (
	BackupSchemeMigration BackupReason = "scheme-migration"
	BackupKeyRotation     BackupReason = "key-rotation"
	BackupManual          BackupReason = "manual"
	BackupPreRecovery     BackupReason = "pre-recovery"
)

// BackupRecord is a point-in-time copy of a message, including its
// encryption envelope, taken before an encryption-scheme change. Records
// marked restorable are kept indefinitely; the rest age out under the
// configured retention policy.
type BackupRecord struct {
	ID         uuid.UUID    `json:"id"`
	MessageID  uuid.UUID    `json:"messageId"`
	OwnerID    uuid.UUID    `json:"ownerId"`
	Snapshot   Message      `json:"snapshot"`
	Reason     BackupReason `json:"reason"`
	Restorable bool         `json:"restorable"`
	CreatedAt  time.Time    `json:"createdAt"`
}

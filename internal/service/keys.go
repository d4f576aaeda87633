package service

import (
	"errors"

	"campuslink/internal/engine/actors"
	"campuslink/internal/keys"
	"campuslink/internal/models"
	"campuslink/internal/utils"

	"github.com/google/uuid"
)

// EnsureKeys returns the user's current key pair, generating version 1 on
// first call. The private key is only ever present in the response of the
// generating call; the server keeps public halves only.
func (s *ConversationService) EnsureKeys(userID uuid.UUID) (*keys.GeneratedPair, *utils.AppError) {
	pair, err := s.ring.EnsureKeyPair(userID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "could not establish key pair", err)
	}
	return pair, nil
}

// RotateKeys archives every message the user can currently read, then
// issues the next key version. Old envelopes stay decryptable because they
// pin the version they were wrapped under; the archive exists so recovery
// tooling has a pre-rotation snapshot. Rotation never blocks on archiving
// individual messages.
func (s *ConversationService) RotateKeys(userID uuid.UUID) (*keys.GeneratedPair, *utils.AppError) {
	result, appErr := s.ask(s.engine.GetMessageActor(), &actors.CollectUserMessagesMsg{UserID: userID})
	if appErr != nil {
		return nil, appErr
	}
	for _, m := range result.([]*models.Message) {
		if m.Envelope == nil {
			continue
		}
		if _, appErr := s.ask(s.engine.GetArchiveActor(), &actors.SnapshotMessageMsg{
			OwnerID: userID,
			Message: m,
			Reason:  models.BackupKeyRotation,
		}); appErr != nil {
			s.logger.Warn("pre-rotation snapshot failed", "message", m.ID, "error", appErr)
		}
	}

	pair, err := s.ring.RotateKey(userID)
	if err != nil {
		if errors.Is(err, keys.ErrKeyUnavailable) {
			return nil, utils.NewKeyUnavailableError(userID.String())
		}
		return nil, utils.NewAppError(utils.ErrInvalidInput, "could not rotate key", err)
	}
	s.logger.Info("key rotated", "user", userID, "version", pair.Version)
	return pair, nil
}

// PeerPublicKey returns the peer's public key record; version 0 means the
// latest. Senders call this to wrap per-message keys.
func (s *ConversationService) PeerPublicKey(peerID uuid.UUID, version int) (*keys.KeyRecord, *utils.AppError) {
	rec, err := s.ring.PublicKey(peerID, version)
	if err != nil {
		return nil, utils.NewKeyUnavailableError(peerID.String())
	}
	return rec, nil
}

// Backups lists the user's archived message snapshots, newest first.
func (s *ConversationService) Backups(ownerID uuid.UUID) ([]*models.BackupRecord, *utils.AppError) {
	result, appErr := s.ask(s.engine.GetArchiveActor(), &actors.GetBackupsMsg{OwnerID: ownerID})
	if appErr != nil {
		return nil, appErr
	}
	return result.([]*models.BackupRecord), nil
}

// SweepBackups drops snapshots past the retention window and returns the
// number removed. Wired to a periodic job in the server.
func (s *ConversationService) SweepBackups() (int, *utils.AppError) {
	result, appErr := s.ask(s.engine.GetArchiveActor(), &actors.SweepExpiredMsg{})
	if appErr != nil {
		return 0, appErr
	}
	removed := result.(int)
	if removed > 0 {
		s.logger.Info("expired backups swept", "removed", removed)
	}
	return removed, nil
}

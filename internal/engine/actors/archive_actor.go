package actors

import (
	stdctx "context"
	"log"
	"time"

	"campuslink/internal/database"
	"campuslink/internal/models"
	"campuslink/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

// Message types for ArchiveActor
type (
	// SnapshotMessageMsg stores an immutable copy of a message before a
	// destructive transition (key rotation, scheme migration, deletion).
	SnapshotMessageMsg struct {
		OwnerID uuid.UUID
		Message *models.Message
		Reason  models.BackupReason
	}

	GetBackupsMsg struct {
		OwnerID uuid.UUID
	}

	// SweepExpiredMsg drops non-restorable snapshots older than the
	// retention window and reports how many were removed.
	SweepExpiredMsg struct {
		Now time.Time
	}
)

// ArchiveActor keeps point-in-time message snapshots. Snapshots exist for
// audit and recovery tooling only; nothing in the message path reads them
// back, and they expire after the retention window.
type ArchiveActor struct {
	byOwner   map[uuid.UUID][]*models.BackupRecord
	retention time.Duration
	db        *database.MongoDB
	metrics   *utils.MetricsCollector
}

func NewArchiveActor(retention time.Duration, db *database.MongoDB, metrics *utils.MetricsCollector) actor.Actor {
	return &ArchiveActor{
		byOwner:   make(map[uuid.UUID][]*models.BackupRecord),
		retention: retention,
		db:        db,
		metrics:   metrics,
	}
}

func (a *ArchiveActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *SnapshotMessageMsg:
		a.handleSnapshot(context, msg)
	case *GetBackupsMsg:
		a.handleGet(context, msg)
	case *SweepExpiredMsg:
		a.handleSweep(context, msg)
	}
}

func (a *ArchiveActor) handleSnapshot(ctx actor.Context, msg *SnapshotMessageMsg) {
	startTime := time.Now()
	if msg.Message == nil {
		ctx.Respond(utils.NewAppError(utils.ErrInvalidInput, "nothing to snapshot", nil))
		return
	}
	rec := &models.BackupRecord{
		ID:         uuid.New(),
		MessageID:  msg.Message.ID,
		OwnerID:    msg.OwnerID,
		Snapshot:   *msg.Message.Clone(),
		Reason:     msg.Reason,
		Restorable: false,
		CreatedAt:  time.Now(),
	}
	a.byOwner[msg.OwnerID] = append(a.byOwner[msg.OwnerID], rec)

	if a.db != nil {
		dbCtx, cancel := stdctx.WithTimeout(stdctx.Background(), 5*time.Second)
		defer cancel()
		if err := a.db.SaveBackup(dbCtx, rec); err != nil {
			log.Printf("Failed to persist backup %s: %v", rec.ID, err)
		}
	}

	a.metrics.AddOperationLatency("snapshot_message", time.Since(startTime))
	ctx.Respond(cloneBackup(rec))
}

func (a *ArchiveActor) handleGet(ctx actor.Context, msg *GetBackupsMsg) {
	recs := a.byOwner[msg.OwnerID]
	out := make([]*models.BackupRecord, 0, len(recs))
	// Most recent first.
	for i := len(recs) - 1; i >= 0; i-- {
		out = append(out, cloneBackup(recs[i]))
	}
	ctx.Respond(out)
}

func (a *ArchiveActor) handleSweep(ctx actor.Context, msg *SweepExpiredMsg) {
	now := msg.Now
	if now.IsZero() {
		now = time.Now()
	}
	cutoff := now.Add(-a.retention)

	removed := 0
	for owner, recs := range a.byOwner {
		kept := recs[:0]
		for _, rec := range recs {
			if !rec.Restorable && rec.CreatedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(a.byOwner, owner)
		} else {
			a.byOwner[owner] = kept
		}
	}

	if a.db != nil {
		dbCtx, cancel := stdctx.WithTimeout(stdctx.Background(), 5*time.Second)
		defer cancel()
		if _, err := a.db.DeleteExpiredBackups(dbCtx, cutoff); err != nil {
			log.Printf("Failed to sweep expired backups: %v", err)
		}
	}
	ctx.Respond(removed)
}

func cloneBackup(rec *models.BackupRecord) *models.BackupRecord {
	cp := *rec
	cp.Snapshot = *rec.Snapshot.Clone()
	return &cp
}

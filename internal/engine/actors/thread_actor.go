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

// Message types for ThreadActor
type (
	GetOrCreateThreadMsg struct {
		UserA uuid.UUID
		UserB uuid.UUID
	}

	GetThreadMsg struct {
		UserA uuid.UUID
		UserB uuid.UUID
	}

	// RecordThreadSendMsg applies a send: the recipient's unread counter
	// goes up by one, the last-message pointer moves, and the sender's
	// last-read-at refreshes (their own view is current by definition).
	RecordThreadSendMsg struct {
		SenderID    uuid.UUID
		RecipientID uuid.UUID
		MessageID   uuid.UUID
		At          time.Time
		MediaKinds  []string
	}

	// RecordThreadReadMsg zeroes the reader's counter and stamps
	// last-read-at.
	RecordThreadReadMsg struct {
		ReaderID uuid.UUID
		PeerID   uuid.UUID
		At       time.Time
	}

	SetTypingMsg struct {
		UserID uuid.UUID
		PeerID uuid.UUID
		Until  time.Time
	}

	// GetUnreadTotalMsg sums a user's unread counters across all threads.
	GetUnreadTotalMsg struct {
		UserID uuid.UUID
	}

	ListThreadsMsg struct {
		UserID uuid.UUID
	}
)

// ThreadActor maintains the canonical two-party thread records. The mailbox
// serializes upserts, so concurrent first-contact sends from both sides
// converge on one row per pair.
type ThreadActor struct {
	threads map[string]*models.Thread
	byUser  map[uuid.UUID][]string

	db      *database.MongoDB
	metrics *utils.MetricsCollector
}

func NewThreadActor(db *database.MongoDB, metrics *utils.MetricsCollector) actor.Actor {
	return &ThreadActor{
		threads: make(map[string]*models.Thread),
		byUser:  make(map[uuid.UUID][]string),
		db:      db,
		metrics: metrics,
	}
}

func (a *ThreadActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *GetOrCreateThreadMsg:
		a.handleGetOrCreate(context, msg)
	case *GetThreadMsg:
		a.handleGet(context, msg)
	case *RecordThreadSendMsg:
		a.handleRecordSend(context, msg)
	case *RecordThreadReadMsg:
		a.handleRecordRead(context, msg)
	case *SetTypingMsg:
		a.handleSetTyping(context, msg)
	case *GetUnreadTotalMsg:
		a.handleUnreadTotal(context, msg)
	case *ListThreadsMsg:
		a.handleList(context, msg)
	}
}

func (a *ThreadActor) handleGetOrCreate(ctx actor.Context, msg *GetOrCreateThreadMsg) {
	if msg.UserA == msg.UserB {
		ctx.Respond(utils.NewAppError(utils.ErrInvalidInput, "a thread needs two distinct participants", nil))
		return
	}
	ctx.Respond(cloneThread(a.getOrCreate(msg.UserA, msg.UserB)))
}

func (a *ThreadActor) getOrCreate(userA, userB uuid.UUID) *models.Thread {
	key := models.ThreadKey(userA, userB)
	if t, ok := a.threads[key]; ok {
		return t
	}

	t := models.NewThread(userA, userB)
	a.threads[key] = t
	a.byUser[t.ParticipantA] = append(a.byUser[t.ParticipantA], key)
	a.byUser[t.ParticipantB] = append(a.byUser[t.ParticipantB], key)

	if a.db != nil {
		dbCtx, cancel := stdctx.WithTimeout(stdctx.Background(), 5*time.Second)
		defer cancel()
		if err := a.db.UpsertThread(dbCtx, t); err != nil {
			log.Printf("Failed to persist thread %s: %v", t.ID, err)
		}
	}
	return t
}

func (a *ThreadActor) handleGet(ctx actor.Context, msg *GetThreadMsg) {
	if t, ok := a.threads[models.ThreadKey(msg.UserA, msg.UserB)]; ok {
		ctx.Respond(cloneThread(t))
		return
	}
	ctx.Respond(utils.NewAppError(utils.ErrNotFound, "thread not found", nil))
}

func (a *ThreadActor) handleRecordSend(ctx actor.Context, msg *RecordThreadSendMsg) {
	startTime := time.Now()
	t := a.getOrCreate(msg.SenderID, msg.RecipientID)

	at := msg.At
	if at.IsZero() {
		at = time.Now()
	}

	t.Unread[msg.RecipientID.String()]++
	mid := msg.MessageID
	t.LastMessage = &mid
	t.LastActivity = at
	t.LastReadAt[msg.SenderID.String()] = at
	for _, kind := range msg.MediaKinds {
		t.MediaCounts[kind]++
	}

	if a.db != nil {
		dbCtx, cancel := stdctx.WithTimeout(stdctx.Background(), 5*time.Second)
		defer cancel()
		if err := a.db.RecordThreadSend(dbCtx, t.ID, msg.RecipientID, msg.MessageID, at, msg.MediaKinds); err != nil {
			log.Printf("Failed to persist thread send %s: %v", t.ID, err)
		}
	}

	a.metrics.AddOperationLatency("record_thread_send", time.Since(startTime))
	ctx.Respond(cloneThread(t))
}

func (a *ThreadActor) handleRecordRead(ctx actor.Context, msg *RecordThreadReadMsg) {
	t, ok := a.threads[models.ThreadKey(msg.ReaderID, msg.PeerID)]
	if !ok {
		ctx.Respond(utils.NewAppError(utils.ErrNotFound, "thread not found", nil))
		return
	}

	at := msg.At
	if at.IsZero() {
		at = time.Now()
	}
	t.Unread[msg.ReaderID.String()] = 0
	t.LastReadAt[msg.ReaderID.String()] = at

	if a.db != nil {
		dbCtx, cancel := stdctx.WithTimeout(stdctx.Background(), 5*time.Second)
		defer cancel()
		if err := a.db.ResetThreadUnread(dbCtx, t.ID, msg.ReaderID, at); err != nil {
			log.Printf("Failed to persist thread read %s: %v", t.ID, err)
		}
	}

	ctx.Respond(cloneThread(t))
}

func (a *ThreadActor) handleSetTyping(ctx actor.Context, msg *SetTypingMsg) {
	t := a.getOrCreate(msg.UserID, msg.PeerID)
	t.TypingUntil[msg.UserID.String()] = msg.Until
	ctx.Respond(cloneThread(t))
}

func (a *ThreadActor) handleUnreadTotal(ctx actor.Context, msg *GetUnreadTotalMsg) {
	total := 0
	for _, key := range a.byUser[msg.UserID] {
		total += a.threads[key].Unread[msg.UserID.String()]
	}
	ctx.Respond(total)
}

func (a *ThreadActor) handleList(ctx actor.Context, msg *ListThreadsMsg) {
	out := make([]*models.Thread, 0, len(a.byUser[msg.UserID]))
	for _, key := range a.byUser[msg.UserID] {
		out = append(out, cloneThread(a.threads[key]))
	}
	ctx.Respond(out)
}

// cloneThread copies a live row so actor state never leaks by reference.
func cloneThread(t *models.Thread) *models.Thread {
	cp := *t
	cp.Unread = make(map[string]int, len(t.Unread))
	for k, v := range t.Unread {
		cp.Unread[k] = v
	}
	cp.LastReadAt = make(map[string]time.Time, len(t.LastReadAt))
	for k, v := range t.LastReadAt {
		cp.LastReadAt[k] = v
	}
	cp.TypingUntil = make(map[string]time.Time, len(t.TypingUntil))
	for k, v := range t.TypingUntil {
		cp.TypingUntil[k] = v
	}
	cp.MediaCounts = make(map[string]int, len(t.MediaCounts))
	for k, v := range t.MediaCounts {
		cp.MediaCounts[k] = v
	}
	if t.LastMessage != nil {
		mid := *t.LastMessage
		cp.LastMessage = &mid
	}
	return &cp
}

package actors

import (
	"context"
	"log"
	"strings"
	"time"

	"campuslink/internal/database"
	"campuslink/internal/models"
	"campuslink/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

// Message types for MessageActor
type (
	AppendMessageMsg struct {
		Message *models.Message
	}

	GetConversationMsg struct {
		ViewerID uuid.UUID
		PeerID   uuid.UUID
		Limit    int
	}

	GetGroupConversationMsg struct {
		GroupID  uuid.UUID
		ViewerID uuid.UUID
		Limit    int
	}

	GetMessageMsg struct {
		MessageID uuid.UUID
		ViewerID  uuid.UUID
	}

	// MarkReadRangeMsg stamps read (and delivered, where never delivered
	// live) on all unread direct messages FromID -> ToID.
	MarkReadRangeMsg struct {
		FromID uuid.UUID
		ToID   uuid.UUID
		At     time.Time
	}

	MarkDeliveredMsg struct {
		MessageID uuid.UUID
		At        time.Time
	}

	// MutateReactionMsg sets, switches or clears a user's reaction. Empty
	// emoji clears; repeating the current emoji also clears (toggle).
	MutateReactionMsg struct {
		MessageID uuid.UUID
		UserID    uuid.UUID
		Emoji     models.ReactionEmoji
	}

	ToggleStarMsg struct {
		MessageID uuid.UUID
		UserID    uuid.UUID
	}

	TogglePinMsg struct {
		MessageID uuid.UUID
		UserID    uuid.UUID
		Pin       bool
	}

	SoftDeleteMsg struct {
		MessageID uuid.UUID
		UserID    uuid.UUID
	}

	// DeleteForEveryoneMsg tombstones a message for all viewers. Direct
	// chat is sender-gated inside the configured window; group chat is
	// admin-gated with no window, so the caller resolves ByGroupAdmin
	// against the group's membership before asking.
	DeleteForEveryoneMsg struct {
		MessageID    uuid.UUID
		RequesterID  uuid.UUID
		ByGroupAdmin bool
		At           time.Time
	}

	BulkDeleteMsg struct {
		MessageIDs   []uuid.UUID
		UserID       uuid.UUID
		Everyone     bool
		ByGroupAdmin bool
	}

	// SearchMessagesMsg matches query text over messages visible to the
	// user. GroupIDs carries the groups the user belongs to; the caller
	// resolves membership.
	SearchMessagesMsg struct {
		UserID   uuid.UUID
		Query    string
		PeerID   *uuid.UUID
		GroupIDs []uuid.UUID
	}

	// CollectUserMessagesMsg snapshots every message a user can see, used
	// by the archive during key-rotation migrations.
	CollectUserMessagesMsg struct {
		UserID uuid.UUID
	}

	// ListUserDirectMessagesMsg returns the user's direct messages visible
	// to them, oldest first, for conversation-list derivation.
	ListUserDirectMessagesMsg struct {
		UserID uuid.UUID
	}
)

// ReadRangeResult reports what a MarkReadRangeMsg changed.
type ReadRangeResult struct {
	Count      int
	MessageIDs []uuid.UUID
}

// MessageActor is the durable log of direct and group messages. Actor
// mailbox ordering serializes all mutation; the Mongo mirror is
// write-through and best-effort.
type MessageActor struct {
	messages       map[uuid.UUID]*models.Message
	byConversation map[string][]uuid.UUID
	clientKeys     map[string]uuid.UUID // conversation key + client key -> message

	deleteWindow time.Duration
	db           *database.MongoDB
	metrics      *utils.MetricsCollector
}

func NewMessageActor(deleteWindow time.Duration, db *database.MongoDB, metrics *utils.MetricsCollector) actor.Actor {
	return &MessageActor{
		messages:       make(map[uuid.UUID]*models.Message),
		byConversation: make(map[string][]uuid.UUID),
		clientKeys:     make(map[string]uuid.UUID),
		deleteWindow:   deleteWindow,
		db:             db,
		metrics:        metrics,
	}
}

func (a *MessageActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *AppendMessageMsg:
		a.handleAppend(context, msg)
	case *GetConversationMsg:
		a.handleGetConversation(context, msg)
	case *GetGroupConversationMsg:
		a.handleGetGroupConversation(context, msg)
	case *GetMessageMsg:
		a.handleGetMessage(context, msg)
	case *MarkReadRangeMsg:
		a.handleMarkReadRange(context, msg)
	case *MarkDeliveredMsg:
		a.handleMarkDelivered(context, msg)
	case *MutateReactionMsg:
		a.handleMutateReaction(context, msg)
	case *ToggleStarMsg:
		a.handleToggleStar(context, msg)
	case *TogglePinMsg:
		a.handleTogglePin(context, msg)
	case *SoftDeleteMsg:
		a.handleSoftDelete(context, msg)
	case *DeleteForEveryoneMsg:
		a.handleDeleteForEveryone(context, msg)
	case *BulkDeleteMsg:
		a.handleBulkDelete(context, msg)
	case *SearchMessagesMsg:
		a.handleSearch(context, msg)
	case *CollectUserMessagesMsg:
		a.handleCollect(context, msg)
	case *ListUserDirectMessagesMsg:
		a.handleListUserDirect(context, msg)
	}
}

// conversationKey maps a message to its single conversation context:
// the canonical thread key for direct pairs, the group id for groups.
func conversationKey(msg *models.Message) string {
	if msg.GroupID != nil {
		return "group:" + msg.GroupID.String()
	}
	return models.ThreadKey(msg.SenderID, *msg.RecipientID)
}

func (a *MessageActor) handleAppend(ctx actor.Context, msg *AppendMessageMsg) {
	startTime := time.Now()
	m := msg.Message

	if (m.RecipientID == nil) == (m.GroupID == nil) {
		ctx.Respond(utils.NewAppError(utils.ErrInvalidInput, "message must target exactly one of recipient or group", nil))
		return
	}
	if m.Content == "" && len(m.Attachments) == 0 {
		ctx.Respond(utils.NewAppError(utils.ErrInvalidInput, "message needs content or at least one attachment", nil))
		return
	}

	convKey := conversationKey(m)

	// Idempotency: a retried send with the same client key returns the
	// original row instead of appending a duplicate.
	if m.ClientKey != "" {
		if existingID, ok := a.clientKeys[convKey+"|"+m.ClientKey]; ok {
			ctx.Respond(a.messages[existingID].Clone())
			return
		}
	}

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.Type == "" {
		m.Type = models.MessageTypeText
	}

	stored := m.Clone()
	a.messages[stored.ID] = stored
	a.byConversation[convKey] = append(a.byConversation[convKey], stored.ID)
	if stored.ClientKey != "" {
		a.clientKeys[convKey+"|"+stored.ClientKey] = stored.ID
	}

	a.persistSave(stored)
	a.metrics.AddOperationLatency("append_message", time.Since(startTime))
	ctx.Respond(stored.Clone())
}

func (a *MessageActor) handleGetConversation(ctx actor.Context, msg *GetConversationMsg) {
	convKey := models.ThreadKey(msg.ViewerID, msg.PeerID)
	ctx.Respond(a.page(convKey, msg.ViewerID, msg.Limit))
}

func (a *MessageActor) handleGetGroupConversation(ctx actor.Context, msg *GetGroupConversationMsg) {
	ctx.Respond(a.page("group:"+msg.GroupID.String(), msg.ViewerID, msg.Limit))
}

// page collects a conversation's messages visible to the viewer, oldest
// first. Tombstoned messages stay in the page with cleared content.
func (a *MessageActor) page(convKey string, viewerID uuid.UUID, limit int) []*models.Message {
	ids := a.byConversation[convKey]
	out := make([]*models.Message, 0, len(ids))
	for _, id := range ids {
		m := a.messages[id]
		if !m.VisibleTo(viewerID) {
			continue
		}
		out = append(out, m.Clone())
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (a *MessageActor) handleGetMessage(ctx actor.Context, msg *GetMessageMsg) {
	m, ok := a.messages[msg.MessageID]
	if !ok || !m.VisibleTo(msg.ViewerID) {
		ctx.Respond(utils.NewAppError(utils.ErrNotFound, "message not found", nil))
		return
	}
	ctx.Respond(m.Clone())
}

func (a *MessageActor) handleMarkReadRange(ctx actor.Context, msg *MarkReadRangeMsg) {
	startTime := time.Now()
	convKey := models.ThreadKey(msg.FromID, msg.ToID)

	result := &ReadRangeResult{}
	for _, id := range a.byConversation[convKey] {
		m := a.messages[id]
		if m.SenderID != msg.FromID || m.ReadAt != nil {
			continue
		}
		at := msg.At
		// Read implies delivered for recipients that were offline at send.
		if m.DeliveredAt == nil {
			m.DeliveredAt = &at
		}
		m.ReadAt = &at
		result.Count++
		result.MessageIDs = append(result.MessageIDs, m.ID)
		a.persistReplace(m)
	}

	a.metrics.AddOperationLatency("mark_read_range", time.Since(startTime))
	ctx.Respond(result)
}

func (a *MessageActor) handleMarkDelivered(ctx actor.Context, msg *MarkDeliveredMsg) {
	m, ok := a.messages[msg.MessageID]
	if !ok {
		ctx.Respond(utils.NewAppError(utils.ErrNotFound, "message not found", nil))
		return
	}
	// Delivery state never regresses.
	if m.DeliveredAt == nil && m.ReadAt == nil {
		at := msg.At
		m.DeliveredAt = &at
		a.persistReplace(m)
	}
	ctx.Respond(m.Clone())
}

func (a *MessageActor) handleMutateReaction(ctx actor.Context, msg *MutateReactionMsg) {
	m, ok := a.messages[msg.MessageID]
	if !ok || m.DeletedForEveryone || !m.VisibleTo(msg.UserID) {
		ctx.Respond(utils.NewAppError(utils.ErrNotFound, "message not found", nil))
		return
	}
	if msg.Emoji != "" && !msg.Emoji.Valid() {
		ctx.Respond(utils.NewAppError(utils.ErrInvalidInput, "unsupported reaction emoji", nil))
		return
	}

	existing := m.ReactionBy(msg.UserID)
	switch {
	case msg.Emoji == "" || (existing != nil && existing.Emoji == msg.Emoji):
		// Clear: explicit, or re-selecting the current emoji.
		m.Reactions = removeReaction(m.Reactions, msg.UserID)
	case existing != nil:
		existing.Emoji = msg.Emoji
		existing.ReactedAt = time.Now()
	default:
		m.Reactions = append(m.Reactions, models.Reaction{
			UserID:    msg.UserID,
			Emoji:     msg.Emoji,
			ReactedAt: time.Now(),
		})
	}

	a.persistReplace(m)
	ctx.Respond(m.Clone())
}

func removeReaction(reactions []models.Reaction, userID uuid.UUID) []models.Reaction {
	out := reactions[:0]
	for _, r := range reactions {
		if r.UserID != userID {
			out = append(out, r)
		}
	}
	return out
}

func (a *MessageActor) handleToggleStar(ctx actor.Context, msg *ToggleStarMsg) {
	m, ok := a.messages[msg.MessageID]
	if !ok || m.DeletedForEveryone || !m.VisibleTo(msg.UserID) {
		ctx.Respond(utils.NewAppError(utils.ErrNotFound, "message not found", nil))
		return
	}
	if m.StarredBy == nil {
		m.StarredBy = make(map[string]bool)
	}
	key := msg.UserID.String()
	if m.StarredBy[key] {
		delete(m.StarredBy, key)
	} else {
		m.StarredBy[key] = true
	}
	a.persistReplace(m)
	ctx.Respond(m.Clone())
}

func (a *MessageActor) handleTogglePin(ctx actor.Context, msg *TogglePinMsg) {
	m, ok := a.messages[msg.MessageID]
	if !ok || m.DeletedForEveryone || !m.VisibleTo(msg.UserID) {
		ctx.Respond(utils.NewAppError(utils.ErrNotFound, "message not found", nil))
		return
	}
	if m.PinnedBy == nil {
		m.PinnedBy = make(map[string]bool)
	}
	key := msg.UserID.String()
	if msg.Pin {
		m.PinnedBy[key] = true
	} else {
		delete(m.PinnedBy, key)
	}
	a.persistReplace(m)
	ctx.Respond(m.Clone())
}

func (a *MessageActor) handleSoftDelete(ctx actor.Context, msg *SoftDeleteMsg) {
	ctx.Respond(a.softDelete(msg))
}

// softDelete hides the message for one viewer only.
func (a *MessageActor) softDelete(msg *SoftDeleteMsg) interface{} {
	m, ok := a.messages[msg.MessageID]
	if !ok || !m.VisibleTo(msg.UserID) {
		return utils.NewAppError(utils.ErrNotFound, "message not found", nil)
	}
	if m.DeletedFor == nil {
		m.DeletedFor = make(map[string]bool)
	}
	m.DeletedFor[msg.UserID.String()] = true
	a.persistReplace(m)
	return m.Clone()
}

func (a *MessageActor) handleDeleteForEveryone(ctx actor.Context, msg *DeleteForEveryoneMsg) {
	ctx.Respond(a.deleteForEveryone(msg))
}

func (a *MessageActor) deleteForEveryone(msg *DeleteForEveryoneMsg) interface{} {
	m, ok := a.messages[msg.MessageID]
	if !ok {
		return utils.NewAppError(utils.ErrNotFound, "message not found", nil)
	}

	// Repeating the call is a no-op, not an error.
	if m.DeletedForEveryone {
		return m.Clone()
	}

	if err := a.deleteForEveryoneAllowed(m, msg); err != nil {
		return err
	}

	at := msg.At
	if at.IsZero() {
		at = time.Now()
	}
	m.Tombstone(at)
	a.persistReplace(m)
	log.Printf("Message %s deleted for everyone by %s", m.ID, msg.RequesterID)
	return m.Clone()
}

// deleteForEveryoneAllowed applies the two per-conversation-type policies:
// group messages are admin-gated with no time box, direct messages are
// sender-gated inside the delete window.
func (a *MessageActor) deleteForEveryoneAllowed(m *models.Message, msg *DeleteForEveryoneMsg) *utils.AppError {
	if m.IsGroup() {
		if !msg.ByGroupAdmin {
			return utils.NewAppError(utils.ErrForbidden, "only group admins may delete for everyone", nil)
		}
		return nil
	}
	if m.SenderID != msg.RequesterID {
		return utils.NewAppError(utils.ErrForbidden, "only the sender may delete for everyone", nil)
	}
	at := msg.At
	if at.IsZero() {
		at = time.Now()
	}
	if at.Sub(m.CreatedAt) > a.deleteWindow {
		return utils.NewAppError(utils.ErrWindowExpired, "delete-for-everyone window has expired", nil)
	}
	return nil
}

func (a *MessageActor) handleBulkDelete(ctx actor.Context, msg *BulkDeleteMsg) {
	results := make(map[string]bool, len(msg.MessageIDs))
	for _, id := range msg.MessageIDs {
		var res interface{}
		if msg.Everyone {
			res = a.deleteForEveryone(&DeleteForEveryoneMsg{
				MessageID:    id,
				RequesterID:  msg.UserID,
				ByGroupAdmin: msg.ByGroupAdmin,
				At:           time.Now(),
			})
		} else {
			res = a.softDelete(&SoftDeleteMsg{MessageID: id, UserID: msg.UserID})
		}
		_, failed := res.(*utils.AppError)
		results[id.String()] = !failed
	}
	ctx.Respond(results)
}

func (a *MessageActor) handleSearch(ctx actor.Context, msg *SearchMessagesMsg) {
	query := strings.ToLower(strings.TrimSpace(msg.Query))
	if query == "" {
		ctx.Respond([]*models.Message{})
		return
	}

	groupSet := make(map[uuid.UUID]bool, len(msg.GroupIDs))
	for _, id := range msg.GroupIDs {
		groupSet[id] = true
	}

	var matches []*models.Message
	for _, ids := range a.byConversation {
		for _, id := range ids {
			m := a.messages[id]
			if m.DeletedForEveryone || !m.VisibleTo(msg.UserID) {
				continue
			}
			if !a.searchScope(m, msg, groupSet) {
				continue
			}
			if strings.Contains(strings.ToLower(m.Content), query) {
				matches = append(matches, m.Clone())
			}
		}
	}
	ctx.Respond(matches)
}

func (a *MessageActor) searchScope(m *models.Message, msg *SearchMessagesMsg, groups map[uuid.UUID]bool) bool {
	if m.IsGroup() {
		return msg.PeerID == nil && groups[*m.GroupID]
	}
	if m.SenderID != msg.UserID && (m.RecipientID == nil || *m.RecipientID != msg.UserID) {
		return false
	}
	if msg.PeerID != nil {
		return m.SenderID == *msg.PeerID || (m.RecipientID != nil && *m.RecipientID == *msg.PeerID)
	}
	return true
}

func (a *MessageActor) handleCollect(ctx actor.Context, msg *CollectUserMessagesMsg) {
	var out []*models.Message
	for _, m := range a.messages {
		if m.DeletedForEveryone || !m.VisibleTo(msg.UserID) {
			continue
		}
		if m.SenderID == msg.UserID || (m.RecipientID != nil && *m.RecipientID == msg.UserID) {
			out = append(out, m.Clone())
		}
	}
	ctx.Respond(out)
}

func (a *MessageActor) handleListUserDirect(ctx actor.Context, msg *ListUserDirectMessagesMsg) {
	var out []*models.Message
	for _, ids := range a.byConversation {
		for _, id := range ids {
			m := a.messages[id]
			if m.IsGroup() || !m.VisibleTo(msg.UserID) {
				continue
			}
			if m.SenderID == msg.UserID || (m.RecipientID != nil && *m.RecipientID == msg.UserID) {
				out = append(out, m.Clone())
			}
		}
	}
	ctx.Respond(out)
}

func (a *MessageActor) persistSave(m *models.Message) {
	if a.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.db.SaveMessage(ctx, m); err != nil {
		log.Printf("Failed to persist message %s: %v", m.ID, err)
	}
}

func (a *MessageActor) persistReplace(m *models.Message) {
	if a.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.db.ReplaceMessage(ctx, m); err != nil {
		log.Printf("Failed to persist message update %s: %v", m.ID, err)
	}
}

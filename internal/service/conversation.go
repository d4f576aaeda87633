package service

import (
	"context"
	"sort"
	"time"

	"campuslink/internal/engine/actors"
	"campuslink/internal/models"
	"campuslink/internal/realtime"
	"campuslink/internal/utils"

	"github.com/google/uuid"
)

// SendDirectInput carries everything a direct send needs. Content arrives
// already encrypted when an envelope is present; the service never inspects
// it.
type SendDirectInput struct {
	SenderID    uuid.UUID
	RecipientID uuid.UUID
	Content     string
	Type        models.MessageType
	Attachments []models.Attachment
	ReplyToID   *uuid.UUID
	ClientKey   string
	Envelope    *models.Envelope
	Forwarded   *models.ForwardInfo
}

// SendDirectMessage runs the full direct-send pipeline: connection and
// block checks, reply validation, append, thread counters, then realtime
// fan-out. Delivery is stamped immediately when the recipient has a live
// connection.
func (s *ConversationService) SendDirectMessage(ctx context.Context, in SendDirectInput) (*models.Message, *utils.AppError) {
	sender, appErr := s.user(ctx, in.SenderID)
	if appErr != nil {
		return nil, appErr
	}
	recipient, appErr := s.user(ctx, in.RecipientID)
	if appErr != nil {
		return nil, appErr
	}
	if !sender.ConnectedTo(recipient.ID) || !recipient.ConnectedTo(sender.ID) {
		return nil, utils.NewNotConnectedError()
	}
	blocked, err := s.blocks.Blocked(ctx, sender.ID, recipient.ID)
	if err != nil {
		s.logger.Error("block lookup failed", "error", err)
		return nil, utils.NewAppError(utils.ErrDatabase, "could not verify block status", err)
	}
	if blocked {
		return nil, utils.NewBlockedError()
	}

	if in.ReplyToID != nil {
		if appErr := s.validateReplyTarget(*in.ReplyToID, in.SenderID, &in.RecipientID, nil); appErr != nil {
			return nil, appErr
		}
	}

	rid := in.RecipientID
	msg := &models.Message{
		SenderID:    in.SenderID,
		RecipientID: &rid,
		Content:     in.Content,
		Type:        in.Type,
		Attachments: in.Attachments,
		ReplyToID:   in.ReplyToID,
		ClientKey:   in.ClientKey,
		Envelope:    in.Envelope,
		Forwarded:   in.Forwarded,
	}
	result, appErr := s.ask(s.engine.GetMessageActor(), &actors.AppendMessageMsg{Message: msg})
	if appErr != nil {
		return nil, appErr
	}
	stored := result.(*models.Message)

	result, appErr = s.ask(s.engine.GetThreadActor(), &actors.RecordThreadSendMsg{
		SenderID:    in.SenderID,
		RecipientID: in.RecipientID,
		MessageID:   stored.ID,
		At:          stored.CreatedAt,
		MediaKinds:  mediaKinds(stored.Attachments),
	})
	if appErr != nil {
		return nil, appErr
	}
	thread := result.(*models.Thread)

	if s.hub.Connected(in.RecipientID) {
		at := time.Now()
		if result, appErr := s.ask(s.engine.GetMessageActor(), &actors.MarkDeliveredMsg{MessageID: stored.ID, At: at}); appErr == nil {
			stored = result.(*models.Message)
		}
		s.hub.PublishToUser(in.SenderID, &realtime.Event{
			Event:   realtime.EventDelivered,
			Payload: map[string]interface{}{"messageId": stored.ID, "deliveredAt": at},
		})
	}
	s.hub.PublishToUser(in.RecipientID, &realtime.Event{Event: realtime.EventMessageNew, Payload: stored})
	s.publishUnreadUpdate(in.RecipientID, map[string]interface{}{
		"kind":   "direct",
		"peerId": in.SenderID,
		"unread": thread.Unread[in.RecipientID.String()],
	})
	s.publishUnread(in.RecipientID)

	s.logger.Info("direct message sent", "message", stored.ID, "sender", in.SenderID, "recipient", in.RecipientID)
	return stored, nil
}

// validateReplyTarget ensures a reply points at a message the sender can
// see in the same conversation.
func (s *ConversationService) validateReplyTarget(replyToID, senderID uuid.UUID, recipientID *uuid.UUID, groupID *uuid.UUID) *utils.AppError {
	result, appErr := s.ask(s.engine.GetMessageActor(), &actors.GetMessageMsg{MessageID: replyToID, ViewerID: senderID})
	if appErr != nil {
		return utils.NewAppError(utils.ErrInvalidInput, "reply target not found", nil)
	}
	target := result.(*models.Message)
	switch {
	case groupID != nil:
		if target.GroupID == nil || *target.GroupID != *groupID {
			return utils.NewAppError(utils.ErrInvalidInput, "reply target is in a different conversation", nil)
		}
	default:
		if target.GroupID != nil {
			return utils.NewAppError(utils.ErrInvalidInput, "reply target is in a different conversation", nil)
		}
		if models.ThreadKey(target.SenderID, *target.RecipientID) != models.ThreadKey(senderID, *recipientID) {
			return utils.NewAppError(utils.ErrInvalidInput, "reply target is in a different conversation", nil)
		}
	}
	return nil
}

func mediaKinds(attachments []models.Attachment) []string {
	if len(attachments) == 0 {
		return nil
	}
	kinds := make([]string, 0, len(attachments))
	for _, att := range attachments {
		kinds = append(kinds, string(att.Kind))
	}
	return kinds
}

// ReadConversation returns the visible page of a direct conversation,
// oldest first.
func (s *ConversationService) ReadConversation(viewerID, peerID uuid.UUID, limit int) ([]*models.Message, *utils.AppError) {
	result, appErr := s.ask(s.engine.GetMessageActor(), &actors.GetConversationMsg{ViewerID: viewerID, PeerID: peerID, Limit: limit})
	if appErr != nil {
		return nil, appErr
	}
	return result.([]*models.Message), nil
}

// MarkConversationRead stamps read receipts on everything the peer sent
// that the reader had not read yet, zeroes the unread counter, and tells
// the peer which messages were read.
func (s *ConversationService) MarkConversationRead(readerID, peerID uuid.UUID) (int, *utils.AppError) {
	at := time.Now()
	result, appErr := s.ask(s.engine.GetMessageActor(), &actors.MarkReadRangeMsg{FromID: peerID, ToID: readerID, At: at})
	if appErr != nil {
		return 0, appErr
	}
	rangeResult := result.(*actors.ReadRangeResult)

	if _, appErr := s.ask(s.engine.GetThreadActor(), &actors.RecordThreadReadMsg{ReaderID: readerID, PeerID: peerID, At: at}); appErr != nil {
		// A read on a never-materialized thread still succeeds; there is
		// just no counter to reset.
		if appErr.Code != utils.ErrNotFound {
			return 0, appErr
		}
	}

	if rangeResult.Count > 0 {
		s.hub.PublishToUser(peerID, &realtime.Event{
			Event:   realtime.EventReadReceipt,
			Payload: map[string]interface{}{"readerId": readerID, "messageIds": rangeResult.MessageIDs, "readAt": at},
		})
	}
	s.publishUnreadUpdate(readerID, map[string]interface{}{
		"kind":   "direct",
		"peerId": peerID,
		"unread": 0,
	})
	s.publishUnread(readerID)
	return rangeResult.Count, nil
}

// requireParticipant resolves a message and verifies the caller belongs to
// its conversation: sender or recipient for direct messages, current member
// for group messages. Every per-message mutation goes through here before
// anything is dispatched to the engine.
func (s *ConversationService) requireParticipant(userID, messageID uuid.UUID) (*models.Message, *utils.AppError) {
	result, appErr := s.ask(s.engine.GetMessageActor(), &actors.GetMessageMsg{MessageID: messageID, ViewerID: userID})
	if appErr != nil {
		return nil, appErr
	}
	m := result.(*models.Message)
	if m.IsGroup() {
		g, appErr := s.group(*m.GroupID)
		if appErr != nil {
			return nil, appErr
		}
		if !g.IsMember(userID) {
			return nil, utils.NewNotAMemberError(g.ID.String())
		}
		return m, nil
	}
	// Outsiders learn nothing about a direct message, not even that it exists.
	if m.SenderID != userID && *m.RecipientID != userID {
		return nil, utils.NewAppError(utils.ErrNotFound, "message not found", nil)
	}
	return m, nil
}

// ToggleReaction sets, switches or clears the user's reaction and notifies
// the rest of the conversation.
func (s *ConversationService) ToggleReaction(userID, messageID uuid.UUID, emoji models.ReactionEmoji) (*models.Message, *utils.AppError) {
	if _, appErr := s.requireParticipant(userID, messageID); appErr != nil {
		return nil, appErr
	}
	result, appErr := s.ask(s.engine.GetMessageActor(), &actors.MutateReactionMsg{MessageID: messageID, UserID: userID, Emoji: emoji})
	if appErr != nil {
		return nil, appErr
	}
	m := result.(*models.Message)
	s.publishToConversation(m, userID, &realtime.Event{
		Event:   realtime.EventReacted,
		Payload: map[string]interface{}{"messageId": m.ID, "userId": userID, "reactions": m.Reactions},
	})
	return m, nil
}

// ToggleStar flips the user's private star on a message. Stars are never
// visible to anyone else, so no event leaves the user's own channel.
func (s *ConversationService) ToggleStar(userID, messageID uuid.UUID) (*models.Message, *utils.AppError) {
	if _, appErr := s.requireParticipant(userID, messageID); appErr != nil {
		return nil, appErr
	}
	result, appErr := s.ask(s.engine.GetMessageActor(), &actors.ToggleStarMsg{MessageID: messageID, UserID: userID})
	if appErr != nil {
		return nil, appErr
	}
	m := result.(*models.Message)
	s.hub.PublishToUser(userID, &realtime.Event{
		Event:   realtime.EventStarred,
		Payload: map[string]interface{}{"messageId": m.ID, "starred": m.StarredBy[userID.String()]},
	})
	return m, nil
}

// PinDirectMessage pins or unpins a message inside a direct conversation.
// Either participant may pin.
func (s *ConversationService) PinDirectMessage(userID, messageID uuid.UUID, pin bool) (*models.Message, *utils.AppError) {
	target, appErr := s.requireParticipant(userID, messageID)
	if appErr != nil {
		return nil, appErr
	}
	if target.IsGroup() {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "group pins go through the group, not the message", nil)
	}

	result, appErr := s.ask(s.engine.GetMessageActor(), &actors.TogglePinMsg{MessageID: messageID, UserID: userID, Pin: pin})
	if appErr != nil {
		return nil, appErr
	}
	m := result.(*models.Message)
	s.publishToConversation(m, userID, &realtime.Event{
		Event:   realtime.EventPinned,
		Payload: map[string]interface{}{"messageId": m.ID, "userId": userID, "pinned": pin},
	})
	return m, nil
}

// DeleteMessage removes a message for the requester only, or for everyone.
// Delete-for-everyone is sender-gated within the configured window in
// direct chat and admin-gated in groups; the tombstoned original is
// archived first.
func (s *ConversationService) DeleteMessage(userID, messageID uuid.UUID, everyone bool) (*models.Message, *utils.AppError) {
	original, appErr := s.requireParticipant(userID, messageID)
	if appErr != nil {
		return nil, appErr
	}

	if !everyone {
		result, appErr := s.ask(s.engine.GetMessageActor(), &actors.SoftDeleteMsg{MessageID: messageID, UserID: userID})
		if appErr != nil {
			return nil, appErr
		}
		return result.(*models.Message), nil
	}

	byAdmin := false
	if original.IsGroup() {
		g, appErr := s.group(*original.GroupID)
		if appErr != nil {
			return nil, appErr
		}
		byAdmin = g.IsAdmin(userID)
	}

	if !original.DeletedForEveryone {
		if _, appErr := s.ask(s.engine.GetArchiveActor(), &actors.SnapshotMessageMsg{
			OwnerID: original.SenderID,
			Message: original,
			Reason:  models.BackupManual,
		}); appErr != nil {
			s.logger.Warn("pre-delete snapshot failed", "message", original.ID, "error", appErr)
		}
	}

	result, appErr := s.ask(s.engine.GetMessageActor(), &actors.DeleteForEveryoneMsg{
		MessageID:    messageID,
		RequesterID:  userID,
		ByGroupAdmin: byAdmin,
		At:           time.Now(),
	})
	if appErr != nil {
		return nil, appErr
	}
	m := result.(*models.Message)

	event := realtime.EventDeleted
	if m.IsGroup() {
		event = realtime.EventGroupMsgDelete
	}
	s.publishToConversation(m, userID, &realtime.Event{
		Event:   event,
		Payload: map[string]interface{}{"messageId": m.ID, "deletedBy": userID},
	})
	return m, nil
}

// BulkDelete deletes a batch of messages with the same mode, reporting
// per-message success.
func (s *ConversationService) BulkDelete(userID uuid.UUID, messageIDs []uuid.UUID, everyone bool) (map[string]bool, *utils.AppError) {
	if everyone {
		// Each message carries its own policy, so route one by one.
		results := make(map[string]bool, len(messageIDs))
		for _, id := range messageIDs {
			_, appErr := s.DeleteMessage(userID, id, true)
			results[id.String()] = appErr == nil
		}
		return results, nil
	}
	result, appErr := s.ask(s.engine.GetMessageActor(), &actors.BulkDeleteMsg{MessageIDs: messageIDs, UserID: userID})
	if appErr != nil {
		return nil, appErr
	}
	return result.(map[string]bool), nil
}

// ForwardMessage re-sends an existing message to other direct recipients.
// Connection and block rules apply per target; results are per-target.
func (s *ConversationService) ForwardMessage(ctx context.Context, userID, messageID uuid.UUID, recipientIDs []uuid.UUID) (map[string]*models.Message, *utils.AppError) {
	original, appErr := s.requireParticipant(userID, messageID)
	if appErr != nil {
		return nil, appErr
	}
	if original.DeletedForEveryone {
		return nil, utils.NewAppError(utils.ErrNotFound, "message not found", nil)
	}

	info := &models.ForwardInfo{OriginalSenderID: original.SenderID, Count: 1}
	if original.Forwarded != nil {
		info.OriginalSenderID = original.Forwarded.OriginalSenderID
		info.Count = original.Forwarded.Count + 1
	}

	out := make(map[string]*models.Message, len(recipientIDs))
	for _, rid := range recipientIDs {
		sent, appErr := s.SendDirectMessage(ctx, SendDirectInput{
			SenderID:    userID,
			RecipientID: rid,
			Content:     original.Content,
			Type:        original.Type,
			Attachments: original.Attachments,
			Envelope:    original.Envelope,
			Forwarded:   info,
		})
		if appErr != nil {
			s.logger.Info("forward skipped", "recipient", rid, "reason", appErr.Code)
			out[rid.String()] = nil
			continue
		}
		out[rid.String()] = sent
	}
	return out, nil
}

// MessageInfo returns a single message with its delivery, read and
// reaction state. Participants only.
func (s *ConversationService) MessageInfo(userID, messageID uuid.UUID) (*models.Message, *utils.AppError) {
	return s.requireParticipant(userID, messageID)
}

// SearchMessages matches the query over every conversation the user can
// see, optionally narrowed to one direct peer.
func (s *ConversationService) SearchMessages(userID uuid.UUID, query string, peerID *uuid.UUID) ([]*models.Message, *utils.AppError) {
	var groupIDs []uuid.UUID
	if peerID == nil {
		groups, appErr := s.listGroups(userID)
		if appErr != nil {
			return nil, appErr
		}
		for _, g := range groups {
			groupIDs = append(groupIDs, g.ID)
		}
	}
	result, appErr := s.ask(s.engine.GetMessageActor(), &actors.SearchMessagesMsg{
		UserID:   userID,
		Query:    query,
		PeerID:   peerID,
		GroupIDs: groupIDs,
	})
	if appErr != nil {
		return nil, appErr
	}
	return result.([]*models.Message), nil
}

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	Kind         string     `json:"kind"` // "direct" or "group"
	PeerID       *uuid.UUID `json:"peerId,omitempty"`
	GroupID      *uuid.UUID `json:"groupId,omitempty"`
	Title        string     `json:"title,omitempty"`
	Snippet      string     `json:"snippet"`
	Unread       int        `json:"unread"`
	LastActivity time.Time  `json:"lastActivity"`
	Typing       bool       `json:"typing"`

	// Media counts by attachment kind, for the media/links quick tab.
	Media map[string]int `json:"media,omitempty"`
}

// ListConversations merges the user's direct threads and groups into one
// list, most recent activity first.
func (s *ConversationService) ListConversations(userID uuid.UUID) ([]*ConversationSummary, *utils.AppError) {
	result, appErr := s.ask(s.engine.GetThreadActor(), &actors.ListThreadsMsg{UserID: userID})
	if appErr != nil {
		return nil, appErr
	}
	threads := result.([]*models.Thread)

	groups, appErr := s.listGroups(userID)
	if appErr != nil {
		return nil, appErr
	}

	now := time.Now()
	summaries := make([]*ConversationSummary, 0, len(threads)+len(groups))
	for _, t := range threads {
		peer := t.Peer(userID)
		summaries = append(summaries, &ConversationSummary{
			Kind:         "direct",
			PeerID:       &peer,
			Snippet:      s.snippetFor(t.LastMessage, userID),
			Unread:       t.Unread[userID.String()],
			LastActivity: t.LastActivity,
			Typing:       t.Typing(peer, now),
			Media:        t.MediaCounts,
		})
	}
	for _, g := range groups {
		gid := g.ID
		summaries = append(summaries, &ConversationSummary{
			Kind:         "group",
			GroupID:      &gid,
			Title:        g.Name,
			Snippet:      s.snippetFor(g.LastMessage, userID),
			Unread:       g.Unread[userID.String()],
			LastActivity: g.LastActivity,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastActivity.After(summaries[j].LastActivity)
	})
	return summaries, nil
}

// snippetFor renders the preview line for a conversation's last message.
// A message hidden from this viewer shows nothing rather than leaking.
func (s *ConversationService) snippetFor(messageID *uuid.UUID, viewerID uuid.UUID) string {
	if messageID == nil {
		return ""
	}
	result, appErr := s.ask(s.engine.GetMessageActor(), &actors.GetMessageMsg{MessageID: *messageID, ViewerID: viewerID})
	if appErr != nil {
		return ""
	}
	return result.(*models.Message).Snippet()
}

// UnreadTotal sums the user's unread counters across threads and groups,
// for the app badge.
func (s *ConversationService) UnreadTotal(userID uuid.UUID) (int, *utils.AppError) {
	result, appErr := s.ask(s.engine.GetThreadActor(), &actors.GetUnreadTotalMsg{UserID: userID})
	if appErr != nil {
		return 0, appErr
	}
	total := result.(int)

	groups, appErr := s.listGroups(userID)
	if appErr != nil {
		return 0, appErr
	}
	for _, g := range groups {
		total += g.Unread[userID.String()]
	}
	return total, nil
}

// publishUnreadUpdate pushes one conversation's fresh unread count to its
// owner, so the client can update a single list row without refetching.
func (s *ConversationService) publishUnreadUpdate(userID uuid.UUID, payload map[string]interface{}) {
	s.hub.PublishToUser(userID, &realtime.Event{Event: realtime.EventUnreadUpdate, Payload: payload})
}

func (s *ConversationService) publishUnread(userID uuid.UUID) {
	total, appErr := s.UnreadTotal(userID)
	if appErr != nil {
		return
	}
	s.hub.PublishToUser(userID, &realtime.Event{
		Event:   realtime.EventUnreadTotal,
		Payload: map[string]interface{}{"total": total},
	})
}

// Typing refreshes the user's typing indicator toward a peer for the
// configured TTL.
func (s *ConversationService) Typing(userID, peerID uuid.UUID) *utils.AppError {
	until := time.Now().Add(s.cfg.Messaging.TypingTTL)
	if _, appErr := s.ask(s.engine.GetThreadActor(), &actors.SetTypingMsg{UserID: userID, PeerID: peerID, Until: until}); appErr != nil {
		return appErr
	}
	s.hub.PublishToUser(peerID, &realtime.Event{
		Event:   realtime.EventTyping,
		Payload: map[string]interface{}{"userId": userID, "until": until},
	})
	return nil
}

// BlockUser records a directed block edge. Existing conversation history
// stays readable; new sends fail in both directions.
func (s *ConversationService) BlockUser(ctx context.Context, blockerID, blockedID uuid.UUID) *utils.AppError {
	if blockerID == blockedID {
		return utils.NewAppError(utils.ErrInvalidInput, "cannot block yourself", nil)
	}
	if err := s.blocks.Block(ctx, blockerID, blockedID); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "could not record block", err)
	}
	s.logger.Info("user blocked", "blocker", blockerID, "blocked", blockedID)
	return nil
}

// UnblockUser removes the blocker's edge. A block in the other direction
// still prevents messaging.
func (s *ConversationService) UnblockUser(ctx context.Context, blockerID, blockedID uuid.UUID) *utils.AppError {
	if err := s.blocks.Unblock(ctx, blockerID, blockedID); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "could not remove block", err)
	}
	return nil
}

// publishToConversation pushes an event to the other side of a direct
// message, or to the group channel for group messages.
func (s *ConversationService) publishToConversation(m *models.Message, actorID uuid.UUID, event *realtime.Event) {
	if m.IsGroup() {
		s.hub.PublishToGroup(*m.GroupID, event)
		return
	}
	peer := m.SenderID
	if peer == actorID {
		peer = *m.RecipientID
	}
	s.hub.PublishToUser(peer, event)
	s.hub.PublishToUser(actorID, event)
}

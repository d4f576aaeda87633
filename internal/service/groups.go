package service

import (
	"context"
	"time"

	"campuslink/internal/engine/actors"
	"campuslink/internal/models"
	"campuslink/internal/realtime"
	"campuslink/internal/utils"

	"github.com/google/uuid"
)

// CreateGroupInput carries a group creation request. The creator becomes
// the sole admin; duplicate member ids collapse to one entry.
type CreateGroupInput struct {
	CreatorID   uuid.UUID
	Name        string
	Description string
	AvatarURL   string
	MemberIDs   []uuid.UUID
}

func (s *ConversationService) CreateGroup(ctx context.Context, in CreateGroupInput) (*models.Group, *utils.AppError) {
	if _, appErr := s.user(ctx, in.CreatorID); appErr != nil {
		return nil, appErr
	}
	for _, id := range in.MemberIDs {
		if _, appErr := s.user(ctx, id); appErr != nil {
			return nil, appErr
		}
	}

	result, appErr := s.ask(s.engine.GetGroupActor(), &actors.CreateGroupMsg{
		CreatorID:   in.CreatorID,
		Name:        in.Name,
		Description: in.Description,
		AvatarURL:   in.AvatarURL,
		MemberIDs:   in.MemberIDs,
	})
	if appErr != nil {
		return nil, appErr
	}
	g := result.(*models.Group)

	for _, id := range g.MemberIDs() {
		// Members already online join the group channel now rather than on
		// their next handshake.
		s.hub.SubscribeUser(id, realtime.GroupChannel(g.ID))
		s.hub.PublishToUser(id, &realtime.Event{Event: realtime.EventGroupCreated, Payload: g})
	}
	s.logger.Info("group created", "group", g.ID, "creator", in.CreatorID, "members", len(g.Members))
	return g, nil
}

func (s *ConversationService) GetGroup(userID, groupID uuid.UUID) (*models.Group, *utils.AppError) {
	g, appErr := s.group(groupID)
	if appErr != nil {
		return nil, appErr
	}
	if !g.IsMember(userID) {
		return nil, utils.NewNotAMemberError(groupID.String())
	}
	return g, nil
}

// UpdateGroup changes name, description or avatar. Nil fields stay as they
// are. Admin only.
func (s *ConversationService) UpdateGroup(requesterID, groupID uuid.UUID, name, description, avatarURL *string) (*models.Group, *utils.AppError) {
	result, appErr := s.ask(s.engine.GetGroupActor(), &actors.UpdateGroupMsg{
		GroupID:     groupID,
		RequesterID: requesterID,
		Name:        name,
		Description: description,
		AvatarURL:   avatarURL,
	})
	if appErr != nil {
		return nil, appErr
	}
	g := result.(*models.Group)
	s.hub.PublishToGroup(g.ID, &realtime.Event{Event: realtime.EventGroupUpdated, Payload: g})
	return g, nil
}

// AddGroupMembers adds users to the group, admin only. Existing members
// are skipped rather than rejected.
func (s *ConversationService) AddGroupMembers(ctx context.Context, requesterID, groupID uuid.UUID, memberIDs []uuid.UUID) (*models.Group, *utils.AppError) {
	for _, id := range memberIDs {
		if _, appErr := s.user(ctx, id); appErr != nil {
			return nil, appErr
		}
	}
	result, appErr := s.ask(s.engine.GetGroupActor(), &actors.AddMembersMsg{
		GroupID:     groupID,
		RequesterID: requesterID,
		MemberIDs:   memberIDs,
		At:          time.Now(),
	})
	if appErr != nil {
		return nil, appErr
	}
	g := result.(*models.Group)

	s.hub.PublishToGroup(g.ID, &realtime.Event{
		Event:   realtime.EventGroupAdded,
		Payload: map[string]interface{}{"groupId": g.ID, "memberIds": memberIDs, "addedBy": requesterID},
	})
	for _, id := range memberIDs {
		// New members with a live socket join the group channel immediately,
		// so the next group message reaches them without a reconnect.
		s.hub.SubscribeUser(id, realtime.GroupChannel(g.ID))
		s.hub.PublishToUser(id, &realtime.Event{Event: realtime.EventGroupAdded, Payload: g})
	}
	return g, nil
}

// RemoveGroupMember removes a member, or lets a member leave. When the
// last admin goes the earliest remaining member is promoted; removing the
// last member dissolves the group.
func (s *ConversationService) RemoveGroupMember(requesterID, groupID, targetID uuid.UUID) (*models.Group, *utils.AppError) {
	result, appErr := s.ask(s.engine.GetGroupActor(), &actors.RemoveMemberMsg{
		GroupID:     groupID,
		RequesterID: requesterID,
		TargetID:    targetID,
	})
	if appErr != nil {
		return nil, appErr
	}
	g := result.(*models.Group)

	s.hub.UnsubscribeUser(targetID, realtime.GroupChannel(g.ID))
	s.hub.PublishToUser(targetID, &realtime.Event{
		Event:   realtime.EventGroupRemoved,
		Payload: map[string]interface{}{"groupId": g.ID, "removedBy": requesterID},
	})
	if !g.IsDeleted {
		s.hub.PublishToGroup(g.ID, &realtime.Event{
			Event:   realtime.EventGroupRemoved,
			Payload: map[string]interface{}{"groupId": g.ID, "memberId": targetID, "removedBy": requesterID},
		})
	}
	return g, nil
}

// ChangeGroupRole promotes or demotes a member, admin only. The last admin
// cannot demote themselves.
func (s *ConversationService) ChangeGroupRole(requesterID, groupID, targetID uuid.UUID, role models.GroupRole) (*models.Group, *utils.AppError) {
	result, appErr := s.ask(s.engine.GetGroupActor(), &actors.ChangeRoleMsg{
		GroupID:     groupID,
		RequesterID: requesterID,
		TargetID:    targetID,
		Role:        role,
	})
	if appErr != nil {
		return nil, appErr
	}
	g := result.(*models.Group)
	s.hub.PublishToGroup(g.ID, &realtime.Event{
		Event:   realtime.EventGroupUpdated,
		Payload: map[string]interface{}{"groupId": g.ID, "memberId": targetID, "role": role},
	})
	return g, nil
}

// SendGroupInput carries a group message send.
type SendGroupInput struct {
	SenderID    uuid.UUID
	GroupID     uuid.UUID
	Content     string
	Type        models.MessageType
	Attachments []models.Attachment
	ReplyToID   *uuid.UUID
	ClientKey   string
	Envelope    *models.Envelope
	Forwarded   *models.ForwardInfo
}

// SendGroupMessage appends a message to the group conversation and bumps
// every other member's unread counter. Membership is checked here; blocks
// between individual members do not apply inside a group.
func (s *ConversationService) SendGroupMessage(ctx context.Context, in SendGroupInput) (*models.Message, *utils.AppError) {
	g, appErr := s.group(in.GroupID)
	if appErr != nil {
		return nil, appErr
	}
	if !g.IsMember(in.SenderID) {
		return nil, utils.NewNotAMemberError(in.GroupID.String())
	}

	if in.ReplyToID != nil {
		if appErr := s.validateReplyTarget(*in.ReplyToID, in.SenderID, nil, &in.GroupID); appErr != nil {
			return nil, appErr
		}
	}

	gid := in.GroupID
	msg := &models.Message{
		SenderID:    in.SenderID,
		GroupID:     &gid,
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

	result, appErr = s.ask(s.engine.GetGroupActor(), &actors.RecordGroupSendMsg{
		GroupID:   in.GroupID,
		SenderID:  in.SenderID,
		MessageID: stored.ID,
		At:        stored.CreatedAt,
	})
	if appErr != nil {
		return nil, appErr
	}
	g = result.(*models.Group)

	s.hub.PublishToGroup(in.GroupID, &realtime.Event{Event: realtime.EventGroupMessage, Payload: stored})
	for _, m := range g.Members {
		if m.UserID == in.SenderID {
			continue
		}
		s.publishUnreadUpdate(m.UserID, map[string]interface{}{
			"kind":    "group",
			"groupId": in.GroupID,
			"unread":  g.Unread[m.UserID.String()],
		})
		s.publishUnread(m.UserID)
	}

	s.logger.Info("group message sent", "message", stored.ID, "group", in.GroupID, "sender", in.SenderID)
	return stored, nil
}

// ReadGroupConversation returns the visible page of the group's messages,
// membership required.
func (s *ConversationService) ReadGroupConversation(viewerID, groupID uuid.UUID, limit int) ([]*models.Message, *utils.AppError) {
	g, appErr := s.group(groupID)
	if appErr != nil {
		return nil, appErr
	}
	if !g.IsMember(viewerID) {
		return nil, utils.NewNotAMemberError(groupID.String())
	}
	result, appErr := s.ask(s.engine.GetMessageActor(), &actors.GetGroupConversationMsg{GroupID: groupID, ViewerID: viewerID, Limit: limit})
	if appErr != nil {
		return nil, appErr
	}
	return result.([]*models.Message), nil
}

// MarkGroupRead zeroes the reader's unread counter for the group. Group
// messages carry no per-member read receipts.
func (s *ConversationService) MarkGroupRead(readerID, groupID uuid.UUID) *utils.AppError {
	if _, appErr := s.ask(s.engine.GetGroupActor(), &actors.RecordGroupReadMsg{GroupID: groupID, ReaderID: readerID, At: time.Now()}); appErr != nil {
		return appErr
	}
	s.publishUnreadUpdate(readerID, map[string]interface{}{
		"kind":    "group",
		"groupId": groupID,
		"unread":  0,
	})
	s.publishUnread(readerID)
	return nil
}

// PinGroupMessage pins one message at group level, admin only. A nil
// message id clears the pin.
func (s *ConversationService) PinGroupMessage(requesterID, groupID uuid.UUID, messageID *uuid.UUID) (*models.Group, *utils.AppError) {
	if messageID != nil {
		result, appErr := s.ask(s.engine.GetMessageActor(), &actors.GetMessageMsg{MessageID: *messageID, ViewerID: requesterID})
		if appErr != nil {
			return nil, appErr
		}
		target := result.(*models.Message)
		if target.GroupID == nil || *target.GroupID != groupID {
			return nil, utils.NewAppError(utils.ErrInvalidInput, "message does not belong to this group", nil)
		}
	}

	result, appErr := s.ask(s.engine.GetGroupActor(), &actors.PinGroupMessageMsg{
		GroupID:     groupID,
		RequesterID: requesterID,
		MessageID:   messageID,
	})
	if appErr != nil {
		return nil, appErr
	}
	g := result.(*models.Group)

	event := realtime.EventGroupPinned
	if messageID == nil {
		event = realtime.EventGroupUnpinned
	}
	s.hub.PublishToGroup(g.ID, &realtime.Event{
		Event:   event,
		Payload: map[string]interface{}{"groupId": g.ID, "messageId": messageID, "pinnedBy": requesterID},
	})
	return g, nil
}

// DeleteGroup soft-deletes the whole group, admin only.
func (s *ConversationService) DeleteGroup(requesterID, groupID uuid.UUID) *utils.AppError {
	result, appErr := s.ask(s.engine.GetGroupActor(), &actors.DeleteGroupMsg{GroupID: groupID, RequesterID: requesterID})
	if appErr != nil {
		return appErr
	}
	g := result.(*models.Group)
	for _, id := range g.MemberIDs() {
		s.hub.PublishToUser(id, &realtime.Event{
			Event:   realtime.EventGroupRemoved,
			Payload: map[string]interface{}{"groupId": g.ID, "deleted": true},
		})
		s.hub.UnsubscribeUser(id, realtime.GroupChannel(g.ID))
	}
	s.logger.Info("group deleted", "group", groupID, "by", requesterID)
	return nil
}

// ListGroups returns every live group the user belongs to.
func (s *ConversationService) ListGroups(userID uuid.UUID) ([]*models.Group, *utils.AppError) {
	return s.listGroups(userID)
}

func (s *ConversationService) listGroups(userID uuid.UUID) ([]*models.Group, *utils.AppError) {
	result, appErr := s.ask(s.engine.GetGroupActor(), &actors.ListGroupsMsg{UserID: userID})
	if appErr != nil {
		return nil, appErr
	}
	return result.([]*models.Group), nil
}

func (s *ConversationService) group(groupID uuid.UUID) (*models.Group, *utils.AppError) {
	result, appErr := s.ask(s.engine.GetGroupActor(), &actors.GetGroupMsg{GroupID: groupID})
	if appErr != nil {
		return nil, appErr
	}
	return result.(*models.Group), nil
}

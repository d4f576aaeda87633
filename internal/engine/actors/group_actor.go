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

// Message types for GroupActor
type (
	CreateGroupMsg struct {
		CreatorID   uuid.UUID
		Name        string
		Description string
		AvatarURL   string
		MemberIDs   []uuid.UUID
	}

	GetGroupMsg struct {
		GroupID uuid.UUID
	}

	UpdateGroupMsg struct {
		GroupID     uuid.UUID
		RequesterID uuid.UUID
		Name        *string
		Description *string
		AvatarURL   *string
	}

	AddMembersMsg struct {
		GroupID     uuid.UUID
		RequesterID uuid.UUID
		MemberIDs   []uuid.UUID
		At          time.Time
	}

	// RemoveMemberMsg covers both admin removal and self-leave. When the
	// last admin goes, the earliest remaining member is promoted; when the
	// last member goes, the group is soft-deleted.
	RemoveMemberMsg struct {
		GroupID     uuid.UUID
		RequesterID uuid.UUID
		TargetID    uuid.UUID
	}

	ChangeRoleMsg struct {
		GroupID     uuid.UUID
		RequesterID uuid.UUID
		TargetID    uuid.UUID
		Role        models.GroupRole
	}

	// RecordGroupSendMsg bumps the unread counter of every member except
	// the sender. Only users who are members at this moment are counted;
	// later joiners never inherit the backlog.
	RecordGroupSendMsg struct {
		GroupID   uuid.UUID
		SenderID  uuid.UUID
		MessageID uuid.UUID
		At        time.Time
	}

	RecordGroupReadMsg struct {
		GroupID  uuid.UUID
		ReaderID uuid.UUID
		At       time.Time
	}

	// PinGroupMessageMsg pins a message, or clears the pin when MessageID
	// is nil.
	PinGroupMessageMsg struct {
		GroupID     uuid.UUID
		RequesterID uuid.UUID
		MessageID   *uuid.UUID
	}

	DeleteGroupMsg struct {
		GroupID     uuid.UUID
		RequesterID uuid.UUID
	}

	ListGroupsMsg struct {
		UserID uuid.UUID
	}
)

// GroupActor owns all group records and their role-based membership rules.
type GroupActor struct {
	groups  map[uuid.UUID]*models.Group
	byUser  map[uuid.UUID]map[uuid.UUID]bool
	cap     int
	db      *database.MongoDB
	metrics *utils.MetricsCollector
}

func NewGroupActor(memberCap int, db *database.MongoDB, metrics *utils.MetricsCollector) actor.Actor {
	return &GroupActor{
		groups:  make(map[uuid.UUID]*models.Group),
		byUser:  make(map[uuid.UUID]map[uuid.UUID]bool),
		cap:     memberCap,
		db:      db,
		metrics: metrics,
	}
}

func (a *GroupActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *CreateGroupMsg:
		a.handleCreate(context, msg)
	case *GetGroupMsg:
		a.handleGet(context, msg)
	case *UpdateGroupMsg:
		a.handleUpdate(context, msg)
	case *AddMembersMsg:
		a.handleAddMembers(context, msg)
	case *RemoveMemberMsg:
		a.handleRemoveMember(context, msg)
	case *ChangeRoleMsg:
		a.handleChangeRole(context, msg)
	case *RecordGroupSendMsg:
		a.handleRecordSend(context, msg)
	case *RecordGroupReadMsg:
		a.handleRecordRead(context, msg)
	case *PinGroupMessageMsg:
		a.handlePin(context, msg)
	case *DeleteGroupMsg:
		a.handleDelete(context, msg)
	case *ListGroupsMsg:
		a.handleList(context, msg)
	}
}

func (a *GroupActor) handleCreate(ctx actor.Context, msg *CreateGroupMsg) {
	startTime := time.Now()
	if msg.Name == "" {
		ctx.Respond(utils.NewAppError(utils.ErrInvalidInput, "group name is required", nil))
		return
	}

	now := time.Now()
	g := &models.Group{
		ID:           uuid.New(),
		Name:         msg.Name,
		Description:  msg.Description,
		AvatarURL:    msg.AvatarURL,
		CreatorID:    msg.CreatorID,
		Members:      []models.GroupMember{{UserID: msg.CreatorID, Role: models.RoleAdmin, JoinedAt: now, AddedBy: msg.CreatorID}},
		Unread:       map[string]int{msg.CreatorID.String(): 0},
		LastActivity: now,
		CreatedAt:    now,
	}
	for _, id := range msg.MemberIDs {
		if g.IsMember(id) {
			continue
		}
		g.Members = append(g.Members, models.GroupMember{UserID: id, Role: models.RoleMember, JoinedAt: now, AddedBy: msg.CreatorID})
		g.Unread[id.String()] = 0
	}
	if len(g.Members) > a.cap {
		ctx.Respond(utils.NewMembershipCapError(a.cap, len(g.Members)))
		return
	}

	a.groups[g.ID] = g
	for _, m := range g.Members {
		a.index(m.UserID, g.ID)
	}
	a.persist(g)

	a.metrics.AddOperationLatency("create_group", time.Since(startTime))
	ctx.Respond(cloneGroup(g))
}

func (a *GroupActor) handleGet(ctx actor.Context, msg *GetGroupMsg) {
	g, appErr := a.live(msg.GroupID)
	if appErr != nil {
		ctx.Respond(appErr)
		return
	}
	ctx.Respond(cloneGroup(g))
}

func (a *GroupActor) handleUpdate(ctx actor.Context, msg *UpdateGroupMsg) {
	g, appErr := a.adminOnly(msg.GroupID, msg.RequesterID)
	if appErr != nil {
		ctx.Respond(appErr)
		return
	}
	if msg.Name != nil {
		if *msg.Name == "" {
			ctx.Respond(utils.NewAppError(utils.ErrInvalidInput, "group name cannot be empty", nil))
			return
		}
		g.Name = *msg.Name
	}
	if msg.Description != nil {
		g.Description = *msg.Description
	}
	if msg.AvatarURL != nil {
		g.AvatarURL = *msg.AvatarURL
	}
	a.persist(g)
	ctx.Respond(cloneGroup(g))
}

func (a *GroupActor) handleAddMembers(ctx actor.Context, msg *AddMembersMsg) {
	g, appErr := a.adminOnly(msg.GroupID, msg.RequesterID)
	if appErr != nil {
		ctx.Respond(appErr)
		return
	}

	at := msg.At
	if at.IsZero() {
		at = time.Now()
	}
	added := 0
	for _, id := range msg.MemberIDs {
		if g.IsMember(id) {
			continue
		}
		added++
	}
	if len(g.Members)+added > a.cap {
		ctx.Respond(utils.NewMembershipCapError(a.cap, len(g.Members)+added))
		return
	}
	for _, id := range msg.MemberIDs {
		if g.IsMember(id) {
			continue
		}
		g.Members = append(g.Members, models.GroupMember{UserID: id, Role: models.RoleMember, JoinedAt: at, AddedBy: msg.RequesterID})
		g.Unread[id.String()] = 0
		a.index(id, g.ID)
	}
	a.persist(g)
	ctx.Respond(cloneGroup(g))
}

func (a *GroupActor) handleRemoveMember(ctx actor.Context, msg *RemoveMemberMsg) {
	g, appErr := a.live(msg.GroupID)
	if appErr != nil {
		ctx.Respond(appErr)
		return
	}
	if !g.IsMember(msg.RequesterID) {
		ctx.Respond(utils.NewNotAMemberError(msg.GroupID.String()))
		return
	}
	// Anyone may leave; removing someone else takes the admin role.
	if msg.RequesterID != msg.TargetID && !g.IsAdmin(msg.RequesterID) {
		ctx.Respond(utils.NewNotAnAdminError(msg.GroupID.String()))
		return
	}
	if !g.IsMember(msg.TargetID) {
		ctx.Respond(utils.NewNotAMemberError(msg.GroupID.String()))
		return
	}

	for i := range g.Members {
		if g.Members[i].UserID == msg.TargetID {
			g.Members = append(g.Members[:i], g.Members[i+1:]...)
			break
		}
	}
	delete(g.Unread, msg.TargetID.String())
	delete(a.byUser[msg.TargetID], g.ID)

	if len(g.Members) == 0 {
		g.IsDeleted = true
	} else if g.AdminCount() == 0 {
		// Membership order is join order, so the earliest remaining
		// member inherits the group.
		g.Members[0].Role = models.RoleAdmin
	}
	a.persist(g)
	ctx.Respond(cloneGroup(g))
}

func (a *GroupActor) handleChangeRole(ctx actor.Context, msg *ChangeRoleMsg) {
	g, appErr := a.adminOnly(msg.GroupID, msg.RequesterID)
	if appErr != nil {
		ctx.Respond(appErr)
		return
	}
	if msg.Role != models.RoleAdmin && msg.Role != models.RoleMember {
		ctx.Respond(utils.NewAppError(utils.ErrInvalidInput, "unknown role", nil))
		return
	}
	target := g.Member(msg.TargetID)
	if target == nil {
		ctx.Respond(utils.NewNotAMemberError(msg.GroupID.String()))
		return
	}
	if target.Role == models.RoleAdmin && msg.Role == models.RoleMember && g.AdminCount() == 1 {
		ctx.Respond(utils.NewAppError(utils.ErrInvalidInput, "a group needs at least one admin", nil))
		return
	}
	target.Role = msg.Role
	a.persist(g)
	ctx.Respond(cloneGroup(g))
}

func (a *GroupActor) handleRecordSend(ctx actor.Context, msg *RecordGroupSendMsg) {
	startTime := time.Now()
	g, appErr := a.live(msg.GroupID)
	if appErr != nil {
		ctx.Respond(appErr)
		return
	}
	if !g.IsMember(msg.SenderID) {
		ctx.Respond(utils.NewNotAMemberError(msg.GroupID.String()))
		return
	}

	at := msg.At
	if at.IsZero() {
		at = time.Now()
	}
	recipients := make([]uuid.UUID, 0, len(g.Members)-1)
	for _, m := range g.Members {
		if m.UserID == msg.SenderID {
			continue
		}
		g.Unread[m.UserID.String()]++
		recipients = append(recipients, m.UserID)
	}
	mid := msg.MessageID
	g.LastMessage = &mid
	g.LastActivity = at

	if a.db != nil {
		dbCtx, cancel := stdctx.WithTimeout(stdctx.Background(), 5*time.Second)
		defer cancel()
		if err := a.db.RecordGroupSend(dbCtx, g.ID, msg.MessageID, recipients, at); err != nil {
			log.Printf("Failed to persist group send %s: %v", g.ID, err)
		}
	}

	a.metrics.AddOperationLatency("record_group_send", time.Since(startTime))
	ctx.Respond(cloneGroup(g))
}

func (a *GroupActor) handleRecordRead(ctx actor.Context, msg *RecordGroupReadMsg) {
	g, appErr := a.live(msg.GroupID)
	if appErr != nil {
		ctx.Respond(appErr)
		return
	}
	if !g.IsMember(msg.ReaderID) {
		ctx.Respond(utils.NewNotAMemberError(msg.GroupID.String()))
		return
	}
	g.Unread[msg.ReaderID.String()] = 0

	if a.db != nil {
		dbCtx, cancel := stdctx.WithTimeout(stdctx.Background(), 5*time.Second)
		defer cancel()
		if err := a.db.ResetGroupUnread(dbCtx, g.ID, msg.ReaderID); err != nil {
			log.Printf("Failed to persist group read %s: %v", g.ID, err)
		}
	}
	ctx.Respond(cloneGroup(g))
}

func (a *GroupActor) handlePin(ctx actor.Context, msg *PinGroupMessageMsg) {
	g, appErr := a.adminOnly(msg.GroupID, msg.RequesterID)
	if appErr != nil {
		ctx.Respond(appErr)
		return
	}
	if msg.MessageID == nil {
		g.PinnedMessage = nil
	} else {
		mid := *msg.MessageID
		g.PinnedMessage = &mid
	}
	a.persist(g)
	ctx.Respond(cloneGroup(g))
}

func (a *GroupActor) handleDelete(ctx actor.Context, msg *DeleteGroupMsg) {
	g, appErr := a.adminOnly(msg.GroupID, msg.RequesterID)
	if appErr != nil {
		ctx.Respond(appErr)
		return
	}
	g.IsDeleted = true
	for _, m := range g.Members {
		delete(a.byUser[m.UserID], g.ID)
	}
	a.persist(g)
	ctx.Respond(cloneGroup(g))
}

func (a *GroupActor) handleList(ctx actor.Context, msg *ListGroupsMsg) {
	out := make([]*models.Group, 0, len(a.byUser[msg.UserID]))
	for gid := range a.byUser[msg.UserID] {
		if g, ok := a.groups[gid]; ok && !g.IsDeleted {
			out = append(out, cloneGroup(g))
		}
	}
	ctx.Respond(out)
}

func (a *GroupActor) live(groupID uuid.UUID) (*models.Group, *utils.AppError) {
	g, ok := a.groups[groupID]
	if !ok || g.IsDeleted {
		return nil, utils.NewAppError(utils.ErrNotFound, "group not found", nil)
	}
	return g, nil
}

func (a *GroupActor) adminOnly(groupID, requesterID uuid.UUID) (*models.Group, *utils.AppError) {
	g, appErr := a.live(groupID)
	if appErr != nil {
		return nil, appErr
	}
	if !g.IsMember(requesterID) {
		return nil, utils.NewNotAMemberError(groupID.String())
	}
	if !g.IsAdmin(requesterID) {
		return nil, utils.NewNotAnAdminError(groupID.String())
	}
	return g, nil
}

func (a *GroupActor) index(userID, groupID uuid.UUID) {
	if a.byUser[userID] == nil {
		a.byUser[userID] = make(map[uuid.UUID]bool)
	}
	a.byUser[userID][groupID] = true
}

func (a *GroupActor) persist(g *models.Group) {
	if a.db == nil {
		return
	}
	dbCtx, cancel := stdctx.WithTimeout(stdctx.Background(), 5*time.Second)
	defer cancel()
	if err := a.db.SaveGroup(dbCtx, g); err != nil {
		log.Printf("Failed to persist group %s: %v", g.ID, err)
	}
}

func cloneGroup(g *models.Group) *models.Group {
	cp := *g
	cp.Members = make([]models.GroupMember, len(g.Members))
	copy(cp.Members, g.Members)
	cp.Unread = make(map[string]int, len(g.Unread))
	for k, v := range g.Unread {
		cp.Unread[k] = v
	}
	if g.PinnedMessage != nil {
		mid := *g.PinnedMessage
		cp.PinnedMessage = &mid
	}
	if g.LastMessage != nil {
		mid := *g.LastMessage
		cp.LastMessage = &mid
	}
	return &cp
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"campuslink/internal/config"
	"campuslink/internal/engine"
	"campuslink/internal/keys"
	"campuslink/internal/models"
	"campuslink/internal/realtime"
	"campuslink/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{users: make(map[uuid.UUID]*models.User)}
}

func (d *fakeDirectory) GetUser(_ context.Context, userID uuid.UUID) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return nil, errors.New("user not found")
	}
	return u, nil
}

// connect registers users that are all mutually connected.
func (d *fakeDirectory) connect(ids ...uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		u, ok := d.users[id]
		if !ok {
			u = &models.User{ID: id, Username: "user-" + id.String()[:8]}
			d.users[id] = u
		}
		for _, peer := range ids {
			if peer != id && !u.ConnectedTo(peer) {
				u.Connections = append(u.Connections, peer)
			}
		}
	}
}

func (d *fakeDirectory) add(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[id]; !ok {
		d.users[id] = &models.User{ID: id, Username: "user-" + id.String()[:8]}
	}
}

type fakeBlocks struct {
	mu    sync.Mutex
	edges map[[2]uuid.UUID]bool
}

func newFakeBlocks() *fakeBlocks {
	return &fakeBlocks{edges: make(map[[2]uuid.UUID]bool)}
}

func (b *fakeBlocks) Block(_ context.Context, blockerID, blockedID uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.edges[[2]uuid.UUID{blockerID, blockedID}] = true
	return nil
}

func (b *fakeBlocks) Unblock(_ context.Context, blockerID, blockedID uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.edges, [2]uuid.UUID{blockerID, blockedID})
	return nil
}

func (b *fakeBlocks) Blocked(_ context.Context, a, c uuid.UUID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.edges[[2]uuid.UUID{a, c}] || b.edges[[2]uuid.UUID{c, a}], nil
}

type fixture struct {
	svc    *ConversationService
	dir    *fakeDirectory
	blocks *fakeBlocks
	hub    *realtime.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{
		Server:    config.DefaultServerConfig(),
		Messaging: config.DefaultMessagingConfig(),
	}
	system := actor.NewActorSystem()
	eng := engine.NewEngine(system, cfg, nil, utils.NewMetricsCollector())
	hub := realtime.NewHub()
	go hub.Run()

	dir := newFakeDirectory()
	blocks := newFakeBlocks()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewConversationService(system.Root, eng, hub, dir, blocks, keys.NewRing(nil), cfg, logger)
	return &fixture{svc: svc, dir: dir, blocks: blocks, hub: hub}
}

// attachClient hangs a socket-less client on the user's private channel and
// waits until the hub has registered it.
func (f *fixture) attachClient(t *testing.T, userID uuid.UUID) *realtime.Client {
	t.Helper()
	client := &realtime.Client{
		Hub:      f.hub,
		UserID:   userID,
		Channels: []string{realtime.UserChannel(userID)},
		Send:     make(chan []byte, 32),
	}
	f.hub.Register <- client
	f.hub.PublishToUser(userID, &realtime.Event{Event: realtime.EventTyping})
	awaitEvent(t, client, realtime.EventTyping)
	return client
}

// awaitEvent reads the client's queue until the named event shows up,
// discarding everything before it.
func awaitEvent(t *testing.T, client *realtime.Client, name string) *realtime.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case payload := <-client.Send:
			var ev realtime.Event
			require.NoError(t, json.Unmarshal(payload, &ev))
			if ev.Event == name {
				return &ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a %s event", name)
			return nil
		}
	}
}

func TestSendDirectMessageRequiresMutualConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	f.dir.add(alice)
	f.dir.add(bob)

	_, appErr := f.svc.SendDirectMessage(ctx, SendDirectInput{SenderID: alice, RecipientID: bob, Content: "hi"})
	require.NotNil(t, appErr)
	assert.Equal(t, utils.ErrNotConnected, appErr.Code)

	_, appErr = f.svc.SendDirectMessage(ctx, SendDirectInput{SenderID: alice, RecipientID: uuid.New(), Content: "hi"})
	require.NotNil(t, appErr)
	assert.Equal(t, utils.ErrUserNotFound, appErr.Code)
}

func TestBlockStopsMessagingBothWays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	f.dir.connect(alice, bob)

	require.Nil(t, f.svc.BlockUser(ctx, alice, bob))

	_, appErr := f.svc.SendDirectMessage(ctx, SendDirectInput{SenderID: bob, RecipientID: alice, Content: "hello?"})
	require.NotNil(t, appErr)
	assert.Equal(t, utils.ErrBlocked, appErr.Code)

	_, appErr = f.svc.SendDirectMessage(ctx, SendDirectInput{SenderID: alice, RecipientID: bob, Content: "hello?"})
	require.NotNil(t, appErr)
	assert.Equal(t, utils.ErrBlocked, appErr.Code)

	require.Nil(t, f.svc.UnblockUser(ctx, alice, bob))
	_, appErr = f.svc.SendDirectMessage(ctx, SendDirectInput{SenderID: alice, RecipientID: bob, Content: "sorry about that"})
	assert.Nil(t, appErr)
}

func TestSelfBlockIsRejected(t *testing.T) {
	f := newFixture(t)
	alice := uuid.New()

	appErr := f.svc.BlockUser(context.Background(), alice, alice)
	require.NotNil(t, appErr)
	assert.Equal(t, utils.ErrInvalidInput, appErr.Code)
}

func TestDirectConversationLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	f.dir.connect(alice, bob)

	for _, content := range []string{"lecture moved to 10am", "bring the lab notes"} {
		_, appErr := f.svc.SendDirectMessage(ctx, SendDirectInput{SenderID: alice, RecipientID: bob, Content: content})
		require.Nil(t, appErr)
	}

	total, appErr := f.svc.UnreadTotal(bob)
	require.Nil(t, appErr)
	assert.Equal(t, 2, total)

	page, appErr := f.svc.ReadConversation(bob, alice, 0)
	require.Nil(t, appErr)
	require.Len(t, page, 2)
	assert.Nil(t, page[0].ReadAt)

	count, appErr := f.svc.MarkConversationRead(bob, alice)
	require.Nil(t, appErr)
	assert.Equal(t, 2, count)

	total, appErr = f.svc.UnreadTotal(bob)
	require.Nil(t, appErr)
	assert.Equal(t, 0, total)

	page, appErr = f.svc.ReadConversation(bob, alice, 0)
	require.Nil(t, appErr)
	require.NotNil(t, page[0].ReadAt)
	require.NotNil(t, page[0].DeliveredAt, "reading stamps delivery for offline recipients")
}

func TestListConversationsOrdersByActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	f.dir.connect(alice, bob, carol)

	_, appErr := f.svc.SendDirectMessage(ctx, SendDirectInput{
		SenderID:    alice,
		RecipientID: bob,
		Content:     "first thread",
		Attachments: []models.Attachment{{ID: uuid.New(), Kind: models.AttachmentImage, URL: "https://cdn.example/p.jpg"}},
	})
	require.Nil(t, appErr)
	_, appErr = f.svc.SendDirectMessage(ctx, SendDirectInput{SenderID: carol, RecipientID: alice, Content: "second thread"})
	require.Nil(t, appErr)

	list, appErr := f.svc.ListConversations(alice)
	require.Nil(t, appErr)
	require.Len(t, list, 2)
	assert.Equal(t, "direct", list[0].Kind)
	assert.Equal(t, carol, *list[0].PeerID)
	assert.Equal(t, "second thread", list[0].Snippet)
	assert.Equal(t, 1, list[0].Unread)
	assert.Equal(t, bob, *list[1].PeerID)
	assert.Equal(t, 0, list[1].Unread, "own sends never count as unread")
	assert.Equal(t, 1, list[1].Media["image"], "attachment kinds feed the media quick tab")
}

func TestReplyMustTargetSameConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	f.dir.connect(alice, bob, carol)

	elsewhere, appErr := f.svc.SendDirectMessage(ctx, SendDirectInput{SenderID: alice, RecipientID: carol, Content: "different thread"})
	require.Nil(t, appErr)

	_, appErr = f.svc.SendDirectMessage(ctx, SendDirectInput{
		SenderID:    alice,
		RecipientID: bob,
		Content:     "replying across threads",
		ReplyToID:   &elsewhere.ID,
	})
	require.NotNil(t, appErr)
	assert.Equal(t, utils.ErrInvalidInput, appErr.Code)

	here, appErr := f.svc.SendDirectMessage(ctx, SendDirectInput{SenderID: bob, RecipientID: alice, Content: "original"})
	require.Nil(t, appErr)
	reply, appErr := f.svc.SendDirectMessage(ctx, SendDirectInput{
		SenderID:    alice,
		RecipientID: bob,
		Content:     "proper reply",
		ReplyToID:   &here.ID,
	})
	require.Nil(t, appErr)
	assert.Equal(t, here.ID, *reply.ReplyToID)
}

func TestForwardCarriesLineageAndSkipsUnreachableTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, carol, stranger := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	f.dir.connect(alice, bob)
	f.dir.connect(bob, carol)
	f.dir.add(stranger)

	original, appErr := f.svc.SendDirectMessage(ctx, SendDirectInput{SenderID: alice, RecipientID: bob, Content: "meme"})
	require.Nil(t, appErr)

	results, appErr := f.svc.ForwardMessage(ctx, bob, original.ID, []uuid.UUID{carol, stranger})
	require.Nil(t, appErr)
	require.Len(t, results, 2)

	forwarded := results[carol.String()]
	require.NotNil(t, forwarded)
	require.NotNil(t, forwarded.Forwarded)
	assert.Equal(t, alice, forwarded.Forwarded.OriginalSenderID)
	assert.Equal(t, 1, forwarded.Forwarded.Count)

	assert.Nil(t, results[stranger.String()], "unconnected target is skipped, not fatal")

	// Forwarding a forward keeps the original sender and counts the hop.
	f.dir.connect(carol, alice)
	hops, appErr := f.svc.ForwardMessage(ctx, carol, forwarded.ID, []uuid.UUID{alice})
	require.Nil(t, appErr)
	second := hops[alice.String()]
	require.NotNil(t, second)
	assert.Equal(t, alice, second.Forwarded.OriginalSenderID)
	assert.Equal(t, 2, second.Forwarded.Count)
}

func TestDeleteForEveryoneArchivesTheOriginal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	f.dir.connect(alice, bob)

	msg, appErr := f.svc.SendDirectMessage(ctx, SendDirectInput{SenderID: alice, RecipientID: bob, Content: "sent in anger"})
	require.Nil(t, appErr)

	deleted, appErr := f.svc.DeleteMessage(alice, msg.ID, true)
	require.Nil(t, appErr)
	assert.True(t, deleted.DeletedForEveryone)
	assert.Empty(t, deleted.Content)

	backups, appErr := f.svc.Backups(alice)
	require.Nil(t, appErr)
	require.Len(t, backups, 1)
	assert.Equal(t, models.BackupManual, backups[0].Reason)
	assert.Equal(t, "sent in anger", backups[0].Snapshot.Content)
}

func TestDeleteForMeLeavesThePeerUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	f.dir.connect(alice, bob)

	msg, appErr := f.svc.SendDirectMessage(ctx, SendDirectInput{SenderID: alice, RecipientID: bob, Content: "just for me"})
	require.Nil(t, appErr)

	_, appErr = f.svc.DeleteMessage(alice, msg.ID, false)
	require.Nil(t, appErr)

	mine, appErr := f.svc.ReadConversation(alice, bob, 0)
	require.Nil(t, appErr)
	assert.Empty(t, mine)

	theirs, appErr := f.svc.ReadConversation(bob, alice, 0)
	require.Nil(t, appErr)
	require.Len(t, theirs, 1)
	assert.Equal(t, "just for me", theirs[0].Content)
}

func TestGroupConversationEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator, bob, carol := uuid.New(), uuid.New(), uuid.New()
	f.dir.connect(creator, bob, carol)

	g, appErr := f.svc.CreateGroup(ctx, CreateGroupInput{
		CreatorID: creator,
		Name:      "Algorithms HW",
		MemberIDs: []uuid.UUID{bob, carol},
	})
	require.Nil(t, appErr)
	require.Len(t, g.Members, 3)

	sent, appErr := f.svc.SendGroupMessage(ctx, SendGroupInput{SenderID: bob, GroupID: g.ID, Content: "who has problem 3?"})
	require.Nil(t, appErr)
	require.NotNil(t, sent.GroupID)

	// Non-members cannot read or post.
	stranger := uuid.New()
	f.dir.add(stranger)
	_, appErr = f.svc.SendGroupMessage(ctx, SendGroupInput{SenderID: stranger, GroupID: g.ID, Content: "let me in"})
	require.NotNil(t, appErr)
	assert.Equal(t, utils.ErrNotAMember, appErr.Code)
	_, appErr = f.svc.ReadGroupConversation(stranger, g.ID, 0)
	require.NotNil(t, appErr)
	assert.Equal(t, utils.ErrNotAMember, appErr.Code)

	total, appErr := f.svc.UnreadTotal(carol)
	require.Nil(t, appErr)
	assert.Equal(t, 1, total)

	require.Nil(t, f.svc.MarkGroupRead(carol, g.ID))
	total, appErr = f.svc.UnreadTotal(carol)
	require.Nil(t, appErr)
	assert.Equal(t, 0, total)

	page, appErr := f.svc.ReadGroupConversation(carol, g.ID, 0)
	require.Nil(t, appErr)
	require.Len(t, page, 1)
	assert.Equal(t, "who has problem 3?", page[0].Content)

	list, appErr := f.svc.ListConversations(carol)
	require.Nil(t, appErr)
	require.Len(t, list, 1)
	assert.Equal(t, "group", list[0].Kind)
	assert.Equal(t, "Algorithms HW", list[0].Title)
	assert.Equal(t, "who has problem 3?", list[0].Snippet)
}

func TestGroupPinMustBelongToTheGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator, bob := uuid.New(), uuid.New()
	f.dir.connect(creator, bob)

	g, appErr := f.svc.CreateGroup(ctx, CreateGroupInput{CreatorID: creator, Name: "study", MemberIDs: []uuid.UUID{bob}})
	require.Nil(t, appErr)

	direct, appErr := f.svc.SendDirectMessage(ctx, SendDirectInput{SenderID: creator, RecipientID: bob, Content: "not in the group"})
	require.Nil(t, appErr)

	_, appErr = f.svc.PinGroupMessage(creator, g.ID, &direct.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, utils.ErrInvalidInput, appErr.Code)

	inGroup, appErr := f.svc.SendGroupMessage(ctx, SendGroupInput{SenderID: creator, GroupID: g.ID, Content: "pin this"})
	require.Nil(t, appErr)

	pinned, appErr := f.svc.PinGroupMessage(creator, g.ID, &inGroup.ID)
	require.Nil(t, appErr)
	require.NotNil(t, pinned.PinnedMessage)
	assert.Equal(t, inGroup.ID, *pinned.PinnedMessage)

	cleared, appErr := f.svc.PinGroupMessage(creator, g.ID, nil)
	require.Nil(t, appErr)
	assert.Nil(t, cleared.PinnedMessage)
}

func TestGroupAdminDeletesAnyMessageForEveryone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator, bob := uuid.New(), uuid.New()
	f.dir.connect(creator, bob)

	g, appErr := f.svc.CreateGroup(ctx, CreateGroupInput{CreatorID: creator, Name: "announcements", MemberIDs: []uuid.UUID{bob}})
	require.Nil(t, appErr)

	msg, appErr := f.svc.SendGroupMessage(ctx, SendGroupInput{SenderID: bob, GroupID: g.ID, Content: "spam"})
	require.Nil(t, appErr)

	// The plain member cannot, even as the sender.
	_, appErr = f.svc.DeleteMessage(bob, msg.ID, true)
	require.NotNil(t, appErr)
	assert.Equal(t, utils.ErrForbidden, appErr.Code)

	deleted, appErr := f.svc.DeleteMessage(creator, msg.ID, true)
	require.Nil(t, appErr)
	assert.True(t, deleted.DeletedForEveryone)
}

func TestSearchCoversDirectAndGroupScopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	f.dir.connect(alice, bob)

	g, appErr := f.svc.CreateGroup(ctx, CreateGroupInput{CreatorID: alice, Name: "club", MemberIDs: []uuid.UUID{bob}})
	require.Nil(t, appErr)

	_, appErr = f.svc.SendDirectMessage(ctx, SendDirectInput{SenderID: alice, RecipientID: bob, Content: "pizza at eight"})
	require.Nil(t, appErr)
	_, appErr = f.svc.SendGroupMessage(ctx, SendGroupInput{SenderID: bob, GroupID: g.ID, Content: "pizza budget approved"})
	require.Nil(t, appErr)

	all, appErr := f.svc.SearchMessages(alice, "pizza", nil)
	require.Nil(t, appErr)
	assert.Len(t, all, 2)

	peer := bob
	direct, appErr := f.svc.SearchMessages(alice, "pizza", &peer)
	require.Nil(t, appErr)
	require.Len(t, direct, 1)
	assert.Equal(t, "pizza at eight", direct[0].Content)
}

func TestKeyLifecycleWithRotationBackups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	f.dir.connect(alice, bob)

	pair, appErr := f.svc.EnsureKeys(alice)
	require.Nil(t, appErr)
	assert.True(t, pair.Created)
	assert.Equal(t, 1, pair.Version)
	assert.NotEmpty(t, pair.PrivateKey)

	// A second ensure returns the current key, no private material.
	again, appErr := f.svc.EnsureKeys(alice)
	require.Nil(t, appErr)
	assert.False(t, again.Created)
	assert.Empty(t, again.PrivateKey)

	// An enveloped message gets archived when the key rotates.
	_, appErr = f.svc.SendDirectMessage(ctx, SendDirectInput{
		SenderID:    alice,
		RecipientID: bob,
		Content:     "ciphertext",
		Envelope: &models.Envelope{
			Scheme:      "x25519-xchacha20poly1305",
			KeyVersions: map[string]int{alice.String(): 1},
		},
	})
	require.Nil(t, appErr)

	rotated, appErr := f.svc.RotateKeys(alice)
	require.Nil(t, appErr)
	assert.Equal(t, 2, rotated.Version)

	backups, appErr := f.svc.Backups(alice)
	require.Nil(t, appErr)
	require.Len(t, backups, 1)
	assert.Equal(t, models.BackupKeyRotation, backups[0].Reason)

	pub, appErr := f.svc.PeerPublicKey(alice, 0)
	require.Nil(t, appErr)
	assert.Equal(t, 2, pub.Version)

	// Rotating a user with no keys fails loudly.
	_, appErr = f.svc.RotateKeys(uuid.New())
	require.NotNil(t, appErr)
	assert.Equal(t, utils.ErrKeyUnavailable, appErr.Code)
}

func TestTypingIsScopedToThePeer(t *testing.T) {
	f := newFixture(t)
	alice, bob := uuid.New(), uuid.New()
	f.dir.connect(alice, bob)

	require.Nil(t, f.svc.Typing(alice, bob))

	list, appErr := f.svc.ListConversations(bob)
	require.Nil(t, appErr)
	require.Len(t, list, 1)
	assert.True(t, list[0].Typing)

	list, appErr = f.svc.ListConversations(alice)
	require.Nil(t, appErr)
	assert.False(t, list[0].Typing, "your own typing never shows to you")
}

func TestOutsiderCannotTouchForeignMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, mallory := uuid.New(), uuid.New(), uuid.New()
	f.dir.connect(alice, bob)
	f.dir.add(mallory)

	msg, appErr := f.svc.SendDirectMessage(ctx, SendDirectInput{SenderID: alice, RecipientID: bob, Content: "between us"})
	require.Nil(t, appErr)

	_, appErr = f.svc.ToggleReaction(mallory, msg.ID, models.ReactionLike)
	require.NotNil(t, appErr)
	assert.Equal(t, utils.ErrNotFound, appErr.Code)

	_, appErr = f.svc.ToggleStar(mallory, msg.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, utils.ErrNotFound, appErr.Code)

	_, appErr = f.svc.PinDirectMessage(mallory, msg.ID, true)
	require.NotNil(t, appErr)
	assert.Equal(t, utils.ErrNotFound, appErr.Code)

	_, appErr = f.svc.DeleteMessage(mallory, msg.ID, false)
	require.NotNil(t, appErr)
	assert.Equal(t, utils.ErrNotFound, appErr.Code)

	_, appErr = f.svc.MessageInfo(mallory, msg.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, utils.ErrNotFound, appErr.Code)

	f.dir.connect(mallory, bob)
	_, appErr = f.svc.ForwardMessage(ctx, mallory, msg.ID, []uuid.UUID{bob})
	require.NotNil(t, appErr)
	assert.Equal(t, utils.ErrNotFound, appErr.Code)

	// The message survives untouched for its real participants.
	info, appErr := f.svc.MessageInfo(bob, msg.ID)
	require.Nil(t, appErr)
	assert.Empty(t, info.Reactions)
	assert.Empty(t, info.StarredBy)
	assert.True(t, info.VisibleTo(bob))
}

func TestNonMemberCannotTouchGroupMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator, bob, stranger := uuid.New(), uuid.New(), uuid.New()
	f.dir.connect(creator, bob)
	f.dir.add(stranger)

	g, appErr := f.svc.CreateGroup(ctx, CreateGroupInput{CreatorID: creator, Name: "officers", MemberIDs: []uuid.UUID{bob}})
	require.Nil(t, appErr)
	msg, appErr := f.svc.SendGroupMessage(ctx, SendGroupInput{SenderID: bob, GroupID: g.ID, Content: "minutes attached"})
	require.Nil(t, appErr)

	_, appErr = f.svc.ToggleReaction(stranger, msg.ID, models.ReactionLike)
	require.NotNil(t, appErr)
	assert.Equal(t, utils.ErrNotAMember, appErr.Code)

	_, appErr = f.svc.DeleteMessage(stranger, msg.ID, false)
	require.NotNil(t, appErr)
	assert.Equal(t, utils.ErrNotAMember, appErr.Code)

	// Members still can.
	reacted, appErr := f.svc.ToggleReaction(creator, msg.ID, models.ReactionLike)
	require.Nil(t, appErr)
	assert.Len(t, reacted.Reactions, 1)
}

func TestMemberAddedMidConnectionReceivesGroupMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, dave := uuid.New(), uuid.New(), uuid.New()
	f.dir.connect(alice, bob, dave)

	g, appErr := f.svc.CreateGroup(ctx, CreateGroupInput{CreatorID: alice, Name: "intramurals", MemberIDs: []uuid.UUID{bob}})
	require.Nil(t, appErr)

	// Dave connects before joining; his client knows nothing about the group.
	client := f.attachClient(t, dave)

	_, appErr = f.svc.AddGroupMembers(ctx, alice, g.ID, []uuid.UUID{dave})
	require.Nil(t, appErr)

	_, appErr = f.svc.SendGroupMessage(ctx, SendGroupInput{SenderID: bob, GroupID: g.ID, Content: "welcome dave"})
	require.Nil(t, appErr)
	awaitEvent(t, client, realtime.EventGroupMessage)

	// Removal detaches the live client before anything else is said.
	_, appErr = f.svc.RemoveGroupMember(alice, g.ID, dave)
	require.Nil(t, appErr)
	awaitEvent(t, client, realtime.EventGroupRemoved)

	_, appErr = f.svc.SendGroupMessage(ctx, SendGroupInput{SenderID: bob, GroupID: g.ID, Content: "after removal"})
	require.Nil(t, appErr)
	f.hub.PublishToUser(dave, &realtime.Event{Event: realtime.EventTyping})
	got := awaitEvent(t, client, realtime.EventTyping)
	assert.Equal(t, realtime.EventTyping, got.Event, "no group traffic reaches a removed member")
}

func TestUnreadUpdateFollowsCounterChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	f.dir.connect(alice, bob)
	client := f.attachClient(t, bob)

	_, appErr := f.svc.SendDirectMessage(ctx, SendDirectInput{SenderID: alice, RecipientID: bob, Content: "quiz tomorrow"})
	require.Nil(t, appErr)

	ev := awaitEvent(t, client, realtime.EventUnreadUpdate)
	payload := ev.Payload.(map[string]interface{})
	assert.Equal(t, "direct", payload["kind"])
	assert.Equal(t, alice.String(), payload["peerId"])
	assert.Equal(t, float64(1), payload["unread"])

	_, appErr = f.svc.MarkConversationRead(bob, alice)
	require.Nil(t, appErr)
	ev = awaitEvent(t, client, realtime.EventUnreadUpdate)
	assert.Equal(t, float64(0), ev.Payload.(map[string]interface{})["unread"])

	g, appErr := f.svc.CreateGroup(ctx, CreateGroupInput{CreatorID: alice, Name: "study hall", MemberIDs: []uuid.UUID{bob}})
	require.Nil(t, appErr)
	_, appErr = f.svc.SendGroupMessage(ctx, SendGroupInput{SenderID: alice, GroupID: g.ID, Content: "room 204"})
	require.Nil(t, appErr)

	ev = awaitEvent(t, client, realtime.EventUnreadUpdate)
	payload = ev.Payload.(map[string]interface{})
	assert.Equal(t, "group", payload["kind"])
	assert.Equal(t, g.ID.String(), payload["groupId"])
	assert.Equal(t, float64(1), payload["unread"])

	require.Nil(t, f.svc.MarkGroupRead(bob, g.ID))
	ev = awaitEvent(t, client, realtime.EventUnreadUpdate)
	assert.Equal(t, float64(0), ev.Payload.(map[string]interface{})["unread"])
}

func TestBlockKeepsExistingHistoryReadable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	f.dir.connect(alice, bob)

	_, appErr := f.svc.SendDirectMessage(ctx, SendDirectInput{SenderID: alice, RecipientID: bob, Content: "before the block"})
	require.Nil(t, appErr)
	require.Nil(t, f.svc.BlockUser(ctx, bob, alice))

	page, appErr := f.svc.ReadConversation(bob, alice, 0)
	require.Nil(t, appErr)
	require.Len(t, page, 1)
	assert.Equal(t, "before the block", page[0].Content)

	count, appErr := f.svc.MarkConversationRead(bob, alice)
	require.Nil(t, appErr)
	assert.Equal(t, 1, count)

	// Only new sends are cut off.
	_, appErr = f.svc.SendDirectMessage(ctx, SendDirectInput{SenderID: alice, RecipientID: bob, Content: "still there?"})
	require.NotNil(t, appErr)
	assert.Equal(t, utils.ErrBlocked, appErr.Code)
}

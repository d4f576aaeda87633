package actors

import (
	"testing"
	"time"

	"campuslink/internal/models"
	"campuslink/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ask(t *testing.T, system *actor.ActorSystem, pid *actor.PID, msg interface{}) interface{} {
	t.Helper()
	future := system.Root.RequestFuture(pid, msg, 5*time.Second)
	result, err := future.Result()
	if err != nil {
		t.Fatalf("actor request failed: %v", err)
	}
	return result
}

func spawnMessageActor(t *testing.T, window time.Duration) (*actor.ActorSystem, *actor.PID) {
	t.Helper()
	system := actor.NewActorSystem()
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMessageActor(window, nil, utils.NewMetricsCollector())
	})
	return system, system.Root.Spawn(props)
}

func directMessage(sender, recipient uuid.UUID, content string) *models.Message {
	rid := recipient
	return &models.Message{SenderID: sender, RecipientID: &rid, Content: content}
}

func TestAppendAndConversationPage(t *testing.T) {
	system, pid := spawnMessageActor(t, time.Hour)
	alice, bob := uuid.New(), uuid.New()

	for _, content := range []string{"hey", "you coming to the study session?", "room 204"} {
		result := ask(t, system, pid, &AppendMessageMsg{Message: directMessage(alice, bob, content)})
		msg, ok := result.(*models.Message)
		require.True(t, ok, "expected a message, got %T", result)
		assert.NotEqual(t, uuid.Nil, msg.ID)
		assert.False(t, msg.CreatedAt.IsZero())
	}

	page := ask(t, system, pid, &GetConversationMsg{ViewerID: bob, PeerID: alice}).([]*models.Message)
	require.Len(t, page, 3)
	assert.Equal(t, "hey", page[0].Content)
	assert.Equal(t, "room 204", page[2].Content)

	limited := ask(t, system, pid, &GetConversationMsg{ViewerID: bob, PeerID: alice, Limit: 2}).([]*models.Message)
	require.Len(t, limited, 2)
	assert.Equal(t, "you coming to the study session?", limited[0].Content)
}

func TestAppendRejectsAmbiguousTarget(t *testing.T) {
	system, pid := spawnMessageActor(t, time.Hour)
	sender := uuid.New()

	result := ask(t, system, pid, &AppendMessageMsg{Message: &models.Message{SenderID: sender, Content: "nowhere to go"}})
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrInvalidInput, appErr.Code)

	rid, gid := uuid.New(), uuid.New()
	result = ask(t, system, pid, &AppendMessageMsg{Message: &models.Message{
		SenderID: sender, RecipientID: &rid, GroupID: &gid, Content: "both targets",
	}})
	appErr, ok = result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrInvalidInput, appErr.Code)
}

func TestAppendIsIdempotentPerClientKey(t *testing.T) {
	system, pid := spawnMessageActor(t, time.Hour)
	alice, bob := uuid.New(), uuid.New()

	msg := directMessage(alice, bob, "only once")
	msg.ClientKey = "send-attempt-41"
	first := ask(t, system, pid, &AppendMessageMsg{Message: msg}).(*models.Message)

	retry := directMessage(alice, bob, "only once")
	retry.ClientKey = "send-attempt-41"
	second := ask(t, system, pid, &AppendMessageMsg{Message: retry}).(*models.Message)

	assert.Equal(t, first.ID, second.ID)

	page := ask(t, system, pid, &GetConversationMsg{ViewerID: bob, PeerID: alice}).([]*models.Message)
	assert.Len(t, page, 1)
}

func TestReactionToggleSwitchAndClear(t *testing.T) {
	system, pid := spawnMessageActor(t, time.Hour)
	alice, bob := uuid.New(), uuid.New()
	msg := ask(t, system, pid, &AppendMessageMsg{Message: directMessage(alice, bob, "pizza tonight?")}).(*models.Message)

	// Set.
	m := ask(t, system, pid, &MutateReactionMsg{MessageID: msg.ID, UserID: bob, Emoji: models.ReactionLike}).(*models.Message)
	require.Len(t, m.Reactions, 1)
	assert.Equal(t, models.ReactionLike, m.Reactions[0].Emoji)

	// Switch replaces, never stacks.
	m = ask(t, system, pid, &MutateReactionMsg{MessageID: msg.ID, UserID: bob, Emoji: models.ReactionLove}).(*models.Message)
	require.Len(t, m.Reactions, 1)
	assert.Equal(t, models.ReactionLove, m.Reactions[0].Emoji)

	// Re-selecting the current emoji toggles it off.
	m = ask(t, system, pid, &MutateReactionMsg{MessageID: msg.ID, UserID: bob, Emoji: models.ReactionLove}).(*models.Message)
	assert.Empty(t, m.Reactions)

	// Unknown emoji is rejected.
	result := ask(t, system, pid, &MutateReactionMsg{MessageID: msg.ID, UserID: bob, Emoji: "thumbsdown"})
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrInvalidInput, appErr.Code)
}

func TestSoftDeleteHidesForOneViewerOnly(t *testing.T) {
	system, pid := spawnMessageActor(t, time.Hour)
	alice, bob := uuid.New(), uuid.New()
	msg := ask(t, system, pid, &AppendMessageMsg{Message: directMessage(alice, bob, "embarrassing typo")}).(*models.Message)

	ask(t, system, pid, &SoftDeleteMsg{MessageID: msg.ID, UserID: alice})

	alicePage := ask(t, system, pid, &GetConversationMsg{ViewerID: alice, PeerID: bob}).([]*models.Message)
	assert.Empty(t, alicePage)

	bobPage := ask(t, system, pid, &GetConversationMsg{ViewerID: bob, PeerID: alice}).([]*models.Message)
	require.Len(t, bobPage, 1)
	assert.Equal(t, "embarrassing typo", bobPage[0].Content)
}

func TestDeleteForEveryonePolicies(t *testing.T) {
	system, pid := spawnMessageActor(t, time.Hour)
	alice, bob := uuid.New(), uuid.New()
	msg := ask(t, system, pid, &AppendMessageMsg{Message: directMessage(alice, bob, "wrong chat")}).(*models.Message)

	// Only the sender may delete a direct message for everyone.
	result := ask(t, system, pid, &DeleteForEveryoneMsg{MessageID: msg.ID, RequesterID: bob, At: time.Now()})
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrForbidden, appErr.Code)

	// The sender inside the window succeeds and leaves a tombstone.
	deleted := ask(t, system, pid, &DeleteForEveryoneMsg{MessageID: msg.ID, RequesterID: alice, At: time.Now()}).(*models.Message)
	assert.True(t, deleted.DeletedForEveryone)
	assert.Empty(t, deleted.Content)
	assert.NotNil(t, deleted.DeletedAt)

	// Repeating the delete is a no-op, not an error.
	again := ask(t, system, pid, &DeleteForEveryoneMsg{MessageID: msg.ID, RequesterID: alice, At: time.Now()})
	_, isErr := again.(*utils.AppError)
	assert.False(t, isErr)

	// Both viewers still see the tombstone in the page.
	page := ask(t, system, pid, &GetConversationMsg{ViewerID: bob, PeerID: alice}).([]*models.Message)
	require.Len(t, page, 1)
	assert.True(t, page[0].DeletedForEveryone)
}

func TestDeleteForEveryoneWindowExpires(t *testing.T) {
	system, pid := spawnMessageActor(t, time.Minute)
	alice, bob := uuid.New(), uuid.New()
	msg := ask(t, system, pid, &AppendMessageMsg{Message: directMessage(alice, bob, "too late")}).(*models.Message)

	result := ask(t, system, pid, &DeleteForEveryoneMsg{
		MessageID:   msg.ID,
		RequesterID: alice,
		At:          msg.CreatedAt.Add(2 * time.Minute),
	})
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrWindowExpired, appErr.Code)
}

func TestGroupDeleteForEveryoneIsAdminGatedWithoutWindow(t *testing.T) {
	system, pid := spawnMessageActor(t, time.Minute)
	sender, gid := uuid.New(), uuid.New()
	group := gid
	msg := ask(t, system, pid, &AppendMessageMsg{Message: &models.Message{
		SenderID: sender, GroupID: &group, Content: "old announcement",
	}}).(*models.Message)

	// A non-admin is rejected even when they sent the message.
	result := ask(t, system, pid, &DeleteForEveryoneMsg{MessageID: msg.ID, RequesterID: sender, At: time.Now()})
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrForbidden, appErr.Code)

	// An admin succeeds long past any direct-chat window.
	deleted := ask(t, system, pid, &DeleteForEveryoneMsg{
		MessageID:    msg.ID,
		RequesterID:  uuid.New(),
		ByGroupAdmin: true,
		At:           msg.CreatedAt.Add(48 * time.Hour),
	}).(*models.Message)
	assert.True(t, deleted.DeletedForEveryone)
}

func TestMarkReadRangeStampsDeliveredAndIsMonotonic(t *testing.T) {
	system, pid := spawnMessageActor(t, time.Hour)
	alice, bob := uuid.New(), uuid.New()
	for i := 0; i < 3; i++ {
		ask(t, system, pid, &AppendMessageMsg{Message: directMessage(alice, bob, "ping")})
	}

	at := time.Now()
	result := ask(t, system, pid, &MarkReadRangeMsg{FromID: alice, ToID: bob, At: at}).(*ReadRangeResult)
	assert.Equal(t, 3, result.Count)

	page := ask(t, system, pid, &GetConversationMsg{ViewerID: alice, PeerID: bob}).([]*models.Message)
	for _, m := range page {
		// Reading implies delivery for recipients offline at send time.
		require.NotNil(t, m.DeliveredAt)
		require.NotNil(t, m.ReadAt)
	}

	// A second pass finds nothing left to stamp.
	again := ask(t, system, pid, &MarkReadRangeMsg{FromID: alice, ToID: bob, At: time.Now()}).(*ReadRangeResult)
	assert.Equal(t, 0, again.Count)
}

func TestBulkDeleteReportsPerMessage(t *testing.T) {
	system, pid := spawnMessageActor(t, time.Hour)
	alice, bob := uuid.New(), uuid.New()
	mine := ask(t, system, pid, &AppendMessageMsg{Message: directMessage(alice, bob, "mine")}).(*models.Message)
	theirs := ask(t, system, pid, &AppendMessageMsg{Message: directMessage(bob, alice, "theirs")}).(*models.Message)

	results := ask(t, system, pid, &BulkDeleteMsg{
		MessageIDs: []uuid.UUID{mine.ID, theirs.ID, uuid.New()},
		UserID:     alice,
		Everyone:   true,
	}).(map[string]bool)

	assert.True(t, results[mine.ID.String()])
	assert.False(t, results[theirs.ID.String()], "cannot delete the peer's message for everyone")
	assert.Len(t, results, 3)
}

func TestSearchScopesToVisibleConversations(t *testing.T) {
	system, pid := spawnMessageActor(t, time.Hour)
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	myGroup, otherGroup := uuid.New(), uuid.New()

	ask(t, system, pid, &AppendMessageMsg{Message: directMessage(alice, bob, "exam results are out")})
	ask(t, system, pid, &AppendMessageMsg{Message: directMessage(carol, bob, "exam prep tomorrow")})
	g1, g2 := myGroup, otherGroup
	ask(t, system, pid, &AppendMessageMsg{Message: &models.Message{SenderID: bob, GroupID: &g1, Content: "exam room changed"}})
	ask(t, system, pid, &AppendMessageMsg{Message: &models.Message{SenderID: carol, GroupID: &g2, Content: "exam gossip"}})

	matches := ask(t, system, pid, &SearchMessagesMsg{
		UserID:   alice,
		Query:    "exam",
		GroupIDs: []uuid.UUID{myGroup},
	}).([]*models.Message)

	// Alice sees her direct thread and her group, not Carol's thread with
	// Bob and not the foreign group.
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.NotEqual(t, "exam prep tomorrow", m.Content)
		assert.NotEqual(t, "exam gossip", m.Content)
	}

	peer := bob
	narrowed := ask(t, system, pid, &SearchMessagesMsg{UserID: alice, Query: "exam", PeerID: &peer}).([]*models.Message)
	require.Len(t, narrowed, 1)
	assert.Equal(t, "exam results are out", narrowed[0].Content)
}

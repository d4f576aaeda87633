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

func spawnThreadActor(t *testing.T) (*actor.ActorSystem, *actor.PID) {
	t.Helper()
	system := actor.NewActorSystem()
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewThreadActor(nil, utils.NewMetricsCollector())
	})
	return system, system.Root.Spawn(props)
}

func TestThreadConvergesRegardlessOfParticipantOrder(t *testing.T) {
	system, pid := spawnThreadActor(t)
	alice, bob := uuid.New(), uuid.New()

	first := ask(t, system, pid, &GetOrCreateThreadMsg{UserA: alice, UserB: bob}).(*models.Thread)
	second := ask(t, system, pid, &GetOrCreateThreadMsg{UserA: bob, UserB: alice}).(*models.Thread)

	assert.Equal(t, first.ID, second.ID)

	aliceThreads := ask(t, system, pid, &ListThreadsMsg{UserID: alice}).([]*models.Thread)
	assert.Len(t, aliceThreads, 1)
}

func TestThreadRejectsSelfPair(t *testing.T) {
	system, pid := spawnThreadActor(t)
	alice := uuid.New()

	result := ask(t, system, pid, &GetOrCreateThreadMsg{UserA: alice, UserB: alice})
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrInvalidInput, appErr.Code)
}

func TestRecordSendAndReadCounters(t *testing.T) {
	system, pid := spawnThreadActor(t)
	alice, bob := uuid.New(), uuid.New()

	var thread *models.Thread
	for i := 0; i < 2; i++ {
		thread = ask(t, system, pid, &RecordThreadSendMsg{
			SenderID:    alice,
			RecipientID: bob,
			MessageID:   uuid.New(),
			At:          time.Now(),
			MediaKinds:  []string{"image"},
		}).(*models.Thread)
	}

	assert.Equal(t, 2, thread.Unread[bob.String()])
	assert.Equal(t, 0, thread.Unread[alice.String()], "the sender's own view stays current")
	assert.Equal(t, 2, thread.MediaCounts["image"])
	require.NotNil(t, thread.LastMessage)

	read := ask(t, system, pid, &RecordThreadReadMsg{ReaderID: bob, PeerID: alice, At: time.Now()}).(*models.Thread)
	assert.Equal(t, 0, read.Unread[bob.String()])
	assert.False(t, read.LastReadAt[bob.String()].IsZero())
}

func TestReadOnUnknownThreadIsNotFound(t *testing.T) {
	system, pid := spawnThreadActor(t)

	result := ask(t, system, pid, &RecordThreadReadMsg{ReaderID: uuid.New(), PeerID: uuid.New(), At: time.Now()})
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrNotFound, appErr.Code)
}

func TestUnreadTotalSumsAcrossThreads(t *testing.T) {
	system, pid := spawnThreadActor(t)
	bob, alice, carol := uuid.New(), uuid.New(), uuid.New()

	ask(t, system, pid, &RecordThreadSendMsg{SenderID: alice, RecipientID: bob, MessageID: uuid.New(), At: time.Now()})
	ask(t, system, pid, &RecordThreadSendMsg{SenderID: carol, RecipientID: bob, MessageID: uuid.New(), At: time.Now()})
	ask(t, system, pid, &RecordThreadSendMsg{SenderID: carol, RecipientID: bob, MessageID: uuid.New(), At: time.Now()})

	total := ask(t, system, pid, &GetUnreadTotalMsg{UserID: bob}).(int)
	assert.Equal(t, 3, total)

	ask(t, system, pid, &RecordThreadReadMsg{ReaderID: bob, PeerID: carol, At: time.Now()})
	total = ask(t, system, pid, &GetUnreadTotalMsg{UserID: bob}).(int)
	assert.Equal(t, 1, total)
}

func TestTypingIndicatorExpires(t *testing.T) {
	system, pid := spawnThreadActor(t)
	alice, bob := uuid.New(), uuid.New()

	until := time.Now().Add(5 * time.Second)
	thread := ask(t, system, pid, &SetTypingMsg{UserID: alice, PeerID: bob, Until: until}).(*models.Thread)

	assert.True(t, thread.Typing(alice, time.Now()))
	assert.False(t, thread.Typing(alice, until.Add(time.Second)))
	assert.False(t, thread.Typing(bob, time.Now()))
}

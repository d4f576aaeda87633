package engine

import (
	"campuslink/internal/config"
	"campuslink/internal/database"
	"campuslink/internal/engine/actors"
	"campuslink/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
)

// Engine spawns the messaging actors and hands out their PIDs.
type Engine struct {
	messageActor *actor.PID
	threadActor  *actor.PID
	groupActor   *actor.PID
	archiveActor *actor.PID
}

func NewEngine(system *actor.ActorSystem, cfg *config.Config, db *database.MongoDB, metrics *utils.MetricsCollector) *Engine {
	context := system.Root

	messageProps := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewMessageActor(cfg.Messaging.DeleteForEveryoneWindow, db, metrics)
	})
	messagePID := context.Spawn(messageProps)

	threadProps := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewThreadActor(db, metrics)
	})
	threadPID := context.Spawn(threadProps)

	groupProps := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewGroupActor(cfg.Messaging.GroupMemberCap, db, metrics)
	})
	groupPID := context.Spawn(groupProps)

	archiveProps := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewArchiveActor(cfg.Messaging.BackupRetention, db, metrics)
	})
	archivePID := context.Spawn(archiveProps)

	return &Engine{
		messageActor: messagePID,
		threadActor:  threadPID,
		groupActor:   groupPID,
		archiveActor: archivePID,
	}
}

// GetMessageActor returns the PID of the message actor
func (e *Engine) GetMessageActor() *actor.PID {
	return e.messageActor
}

// GetThreadActor returns the PID of the thread actor
func (e *Engine) GetThreadActor() *actor.PID {
	return e.threadActor
}

// GetGroupActor returns the PID of the group actor
func (e *Engine) GetGroupActor() *actor.PID {
	return e.groupActor
}

// GetArchiveActor returns the PID of the archive actor
func (e *Engine) GetArchiveActor() *actor.PID {
	return e.archiveActor
}

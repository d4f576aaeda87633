package service

import (
	"context"
	"log/slog"
	"time"

	"campuslink/internal/config"
	"campuslink/internal/engine"
	"campuslink/internal/keys"
	"campuslink/internal/models"
	"campuslink/internal/realtime"
	"campuslink/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

// UserDirectory resolves users and their accepted-connection sets. The
// account system owns this data; messaging only reads it.
type UserDirectory interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// BlockStore persists directed block edges and answers whether a pair is
// blocked in either direction.
type BlockStore interface {
	Block(ctx context.Context, blockerID, blockedID uuid.UUID) error
	Unblock(ctx context.Context, blockerID, blockedID uuid.UUID) error
	Blocked(ctx context.Context, a, b uuid.UUID) (bool, error)
}

// ConversationService orchestrates the messaging actors. It resolves
// directory and membership questions the actors cannot answer themselves,
// asks the right actor, and pushes the resulting events to connected
// clients.
type ConversationService struct {
	root    *actor.RootContext
	engine  *engine.Engine
	hub     *realtime.Hub
	users   UserDirectory
	blocks  BlockStore
	ring    *keys.Ring
	cfg     *config.Config
	logger  *slog.Logger
	timeout time.Duration
}

func NewConversationService(
	root *actor.RootContext,
	eng *engine.Engine,
	hub *realtime.Hub,
	users UserDirectory,
	blocks BlockStore,
	ring *keys.Ring,
	cfg *config.Config,
	logger *slog.Logger,
) *ConversationService {
	return &ConversationService{
		root:    root,
		engine:  eng,
		hub:     hub,
		users:   users,
		blocks:  blocks,
		ring:    ring,
		cfg:     cfg,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// ask sends a request to an actor and separates domain errors from the
// result. A dead or overloaded actor surfaces as a timeout error.
func (s *ConversationService) ask(pid *actor.PID, msg interface{}) (interface{}, *utils.AppError) {
	future := s.root.RequestFuture(pid, msg, s.timeout)
	result, err := future.Result()
	if err != nil {
		s.logger.Error("actor request failed", "error", err)
		return nil, utils.NewActorTimeoutError("messaging engine")
	}
	if appErr, ok := result.(*utils.AppError); ok {
		return nil, appErr
	}
	return result, nil
}

func (s *ConversationService) user(ctx context.Context, userID uuid.UUID) (*models.User, *utils.AppError) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, utils.NewUserNotFoundError(userID.String())
	}
	return u, nil
}

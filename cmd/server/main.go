package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"campuslink/internal/config"
	"campuslink/internal/database"
	"campuslink/internal/engine"
	"campuslink/internal/handlers"
	"campuslink/internal/keys"
	"campuslink/internal/middleware"
	"campuslink/internal/models"
	"campuslink/internal/realtime"
	"campuslink/internal/service"
	"campuslink/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	db, err := database.NewMongoDB(cfg.Database.URI, cfg.Database.Name)
	if err != nil {
		logger.Warn("document store unavailable, running memory-only", "error", err)
		db = nil
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := db.Close(ctx); err != nil {
				logger.Error("closing document store", "error", err)
			}
		}()
	}

	metrics := utils.NewMetricsCollector()
	system := actor.NewActorSystem()
	eng := engine.NewEngine(system, cfg, db, metrics)

	var keyStore keys.Store
	if db != nil {
		keyStore = db
	}
	ring := keys.NewRing(keyStore)

	hub := realtime.NewHub()
	go hub.Run()

	var users service.UserDirectory
	var blocks service.BlockStore
	if db != nil {
		users = db
		blocks = db
	} else {
		logger.Warn("no document store; user directory is unavailable and blocks reset on restart")
		users = unavailableDirectory{}
		blocks = newMemoryBlocks()
	}

	svc := service.NewConversationService(system.Root, eng, hub, users, blocks, ring, cfg, logger)
	auth := middleware.NewAuthenticator(cfg.JWTSecret, middleware.NewMemoryRevoker())
	server := handlers.NewServer(system, system.Root, eng, svc, hub, auth, metrics, db)

	// Expired backups age out once a day.
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if _, appErr := svc.SweepBackups(); appErr != nil {
				logger.Error("backup sweep failed", "error", appErr)
			}
		}
	}()

	corsCfg := middleware.DefaultCORSConfig(cfg.AllowedOrigins)
	handler := middleware.CORSMiddleware(corsCfg)(auth.Middleware(server.Routes()))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("starting server", "addr", addr, "persistent", db != nil)
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// unavailableDirectory rejects every lookup; it stands in when the
// document store is down so sends fail loudly instead of panicking.
type unavailableDirectory struct{}

func (unavailableDirectory) GetUser(context.Context, uuid.UUID) (*models.User, error) {
	return nil, fmt.Errorf("user directory unavailable")
}

// memoryBlocks holds directed block edges in memory for store-less runs.
// Edges enforce normally while the process lives and vanish on restart.
type memoryBlocks struct {
	mu    sync.RWMutex
	edges map[[2]uuid.UUID]bool
}

func newMemoryBlocks() *memoryBlocks {
	return &memoryBlocks{edges: make(map[[2]uuid.UUID]bool)}
}

func (b *memoryBlocks) Block(_ context.Context, blockerID, blockedID uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.edges[[2]uuid.UUID{blockerID, blockedID}] = true
	return nil
}

func (b *memoryBlocks) Unblock(_ context.Context, blockerID, blockedID uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.edges, [2]uuid.UUID{blockerID, blockedID})
	return nil
}

// Blocked reports a block in either direction, matching the send-path rule.
func (b *memoryBlocks) Blocked(_ context.Context, a, c uuid.UUID) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.edges[[2]uuid.UUID{a, c}] || b.edges[[2]uuid.UUID{c, a}], nil
}

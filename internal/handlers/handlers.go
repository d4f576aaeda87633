package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"campuslink/internal/database"
	"campuslink/internal/engine"
	"campuslink/internal/middleware"
	"campuslink/internal/realtime"
	"campuslink/internal/service"
	"campuslink/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

// Server holds all server dependencies, including the actor system and engine
type Server struct {
	System         *actor.ActorSystem
	Context        *actor.RootContext
	Engine         *engine.Engine
	Service        *service.ConversationService
	Hub            *realtime.Hub
	Auth           *middleware.Authenticator
	Metrics        *utils.MetricsCollector
	MongoDB        *database.MongoDB
	RequestTimeout time.Duration
}

// NewServer creates a new Server instance with the given components
func NewServer(
	system *actor.ActorSystem,
	context *actor.RootContext,
	eng *engine.Engine,
	svc *service.ConversationService,
	hub *realtime.Hub,
	auth *middleware.Authenticator,
	metrics *utils.MetricsCollector,
	mongodb *database.MongoDB,
) *Server {
	return &Server{
		System:         system,
		Context:        context,
		Engine:         eng,
		Service:        svc,
		Hub:            hub,
		Auth:           auth,
		Metrics:        metrics,
		MongoDB:        mongodb,
		RequestTimeout: 5 * time.Second,
	}
}

// Routes wires every endpoint onto a mux. Auth and CORS wrap the mux in
// main.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.HandleHealth())
	mux.HandleFunc("/metrics", s.HandleMetrics())
	mux.HandleFunc("/ws", s.HandleWebSocket())

	mux.HandleFunc("/messages/direct", s.HandleDirectMessages())
	mux.HandleFunc("/messages/conversation", s.HandleConversation())
	mux.HandleFunc("/messages/read", s.HandleMarkRead())
	mux.HandleFunc("/messages/reaction", s.HandleReaction())
	mux.HandleFunc("/messages/star", s.HandleStar())
	mux.HandleFunc("/messages/pin", s.HandlePin())
	mux.HandleFunc("/messages/delete", s.HandleDelete())
	mux.HandleFunc("/messages/bulk-delete", s.HandleBulkDelete())
	mux.HandleFunc("/messages/forward", s.HandleForward())
	mux.HandleFunc("/messages/info", s.HandleMessageInfo())
	mux.HandleFunc("/messages/search", s.HandleSearch())
	mux.HandleFunc("/messages/typing", s.HandleTyping())

	mux.HandleFunc("/conversations", s.HandleConversationList())
	mux.HandleFunc("/conversations/unread", s.HandleUnreadTotal())

	mux.HandleFunc("/blocks", s.HandleBlocks())

	mux.HandleFunc("/groups", s.HandleGroups())
	mux.HandleFunc("/groups/members", s.HandleGroupMembers())
	mux.HandleFunc("/groups/role", s.HandleGroupRole())
	mux.HandleFunc("/groups/messages", s.HandleGroupMessages())
	mux.HandleFunc("/groups/read", s.HandleGroupRead())
	mux.HandleFunc("/groups/pin", s.HandleGroupPin())

	mux.HandleFunc("/keys", s.HandleKeys())
	mux.HandleFunc("/keys/public", s.HandlePublicKey())
	mux.HandleFunc("/backups", s.HandleBackups())

	return mux
}

func respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func respondAppError(w http.ResponseWriter, appErr *utils.AppError) {
	http.Error(w, appErr.Error(), utils.AppErrorToHTTPStatus(appErr.Code))
}

// authedUser pulls the authenticated user id the JWT middleware stored on
// the request context.
func authedUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	return userID, true
}

func parseUUIDQuery(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		http.Error(w, name+" required", http.StatusBadRequest)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "Invalid "+name, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func parseUUIDField(w http.ResponseWriter, raw, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "Invalid "+name, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

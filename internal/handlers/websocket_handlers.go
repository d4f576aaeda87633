package handlers

import (
	"log"
	"net/http"

	"campuslink/internal/realtime"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin allow-listing happens in the CORS layer; the socket
		// accepts the upgrade once the token checks out.
		return true
	},
}

// HandleWebSocket authenticates the token from the query string, upgrades
// the connection and subscribes the client to its user channel plus one
// channel per group membership.
func (s *Server) HandleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.URL.Query().Get("token")
		if tokenString == "" {
			log.Println("WebSocket connection failed: Missing token")
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}

		claims, err := s.Auth.ValidateToken(tokenString)
		if err != nil {
			log.Printf("WebSocket connection failed: Invalid token: %v", err)
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		userID := claims.UserID
		if userID == uuid.Nil {
			log.Println("WebSocket connection failed: Nil userID in token claims")
			http.Error(w, "Invalid user ID in token", http.StatusInternalServerError)
			return
		}

		channels := []string{realtime.UserChannel(userID)}
		if groups, appErr := s.Service.ListGroups(userID); appErr == nil {
			for _, g := range groups {
				channels = append(channels, realtime.GroupChannel(g.ID))
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed for User %s: %v", userID, err)
			return
		}

		client := &realtime.Client{
			Hub:      s.Hub,
			UserID:   userID,
			Channels: channels,
			Conn:     conn,
			Send:     make(chan []byte, 256),
		}
		client.Hub.Register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}

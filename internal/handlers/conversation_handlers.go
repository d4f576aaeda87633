package handlers

import (
	"encoding/json"
	"net/http"
)

// HandleConversationList returns the caller's merged conversation list,
// most recent first
func (s *Server) HandleConversationList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID, ok := authedUser(w, r)
		if !ok {
			return
		}

		summaries, appErr := s.Service.ListConversations(userID)
		if appErr != nil {
			respondAppError(w, appErr)
			return
		}
		respondJSON(w, summaries)
	}
}

// HandleUnreadTotal returns the caller's app-badge unread count
func (s *Server) HandleUnreadTotal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID, ok := authedUser(w, r)
		if !ok {
			return
		}

		total, appErr := s.Service.UnreadTotal(userID)
		if appErr != nil {
			respondAppError(w, appErr)
			return
		}
		respondJSON(w, map[string]int{"total": total})
	}
}

// HandleBlocks records or removes a block edge from the caller
func (s *Server) HandleBlocks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := authedUser(w, r)
		if !ok {
			return
		}

		switch r.Method {
		case http.MethodPost:
			var req struct {
				BlockedID string `json:"blockedId"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "Invalid request body", http.StatusBadRequest)
				return
			}
			blockedID, ok := parseUUIDField(w, req.BlockedID, "blocked ID")
			if !ok {
				return
			}
			if appErr := s.Service.BlockUser(r.Context(), userID, blockedID); appErr != nil {
				respondAppError(w, appErr)
				return
			}
			respondJSON(w, map[string]bool{"blocked": true})

		case http.MethodDelete:
			blockedID, ok := parseUUIDQuery(w, r, "blockedId")
			if !ok {
				return
			}
			if appErr := s.Service.UnblockUser(r.Context(), userID, blockedID); appErr != nil {
				respondAppError(w, appErr)
				return
			}
			respondJSON(w, map[string]bool{"blocked": false})

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"campuslink/internal/models"
	"campuslink/internal/service"

	"github.com/google/uuid"
)

// SendMessageRequest represents a request to send a direct message
type SendMessageRequest struct {
	ToID        string              `json:"toId"`
	Content     string              `json:"content"`
	Type        string              `json:"type,omitempty"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
	ReplyToID   string              `json:"replyToId,omitempty"`
	ClientKey   string              `json:"clientKey,omitempty"`
	Envelope    *models.Envelope    `json:"envelope,omitempty"`
}

// HandleDirectMessages handles sending direct messages
func (s *Server) HandleDirectMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID, ok := authedUser(w, r)
		if !ok {
			return
		}

		var req SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		toID, ok := parseUUIDField(w, req.ToID, "recipient ID")
		if !ok {
			return
		}

		in := service.SendDirectInput{
			SenderID:    userID,
			RecipientID: toID,
			Content:     req.Content,
			Type:        models.MessageType(req.Type),
			Attachments: req.Attachments,
			ClientKey:   req.ClientKey,
			Envelope:    req.Envelope,
		}
		if req.ReplyToID != "" {
			replyTo, ok := parseUUIDField(w, req.ReplyToID, "reply target ID")
			if !ok {
				return
			}
			in.ReplyToID = &replyTo
		}

		msg, appErr := s.Service.SendDirectMessage(r.Context(), in)
		if appErr != nil {
			respondAppError(w, appErr)
			return
		}
		respondJSON(w, msg)
	}
}

// HandleConversation gets messages between the caller and one peer
func (s *Server) HandleConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID, ok := authedUser(w, r)
		if !ok {
			return
		}
		peerID, ok := parseUUIDQuery(w, r, "peerId")
		if !ok {
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		msgs, appErr := s.Service.ReadConversation(userID, peerID, limit)
		if appErr != nil {
			respondAppError(w, appErr)
			return
		}
		respondJSON(w, msgs)
	}
}

// HandleMarkRead marks everything the peer sent as read
func (s *Server) HandleMarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID, ok := authedUser(w, r)
		if !ok {
			return
		}

		var req struct {
			PeerID string `json:"peerId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		peerID, ok := parseUUIDField(w, req.PeerID, "peer ID")
		if !ok {
			return
		}

		count, appErr := s.Service.MarkConversationRead(userID, peerID)
		if appErr != nil {
			respondAppError(w, appErr)
			return
		}
		respondJSON(w, map[string]int{"read": count})
	}
}

// HandleReaction sets, switches or clears a reaction on a message
func (s *Server) HandleReaction() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID, ok := authedUser(w, r)
		if !ok {
			return
		}

		var req struct {
			MessageID string `json:"messageId"`
			Emoji     string `json:"emoji"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		messageID, ok := parseUUIDField(w, req.MessageID, "message ID")
		if !ok {
			return
		}

		msg, appErr := s.Service.ToggleReaction(userID, messageID, models.ReactionEmoji(req.Emoji))
		if appErr != nil {
			respondAppError(w, appErr)
			return
		}
		respondJSON(w, msg)
	}
}

// HandleStar flips the caller's private star on a message
func (s *Server) HandleStar() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID, ok := authedUser(w, r)
		if !ok {
			return
		}

		var req struct {
			MessageID string `json:"messageId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		messageID, ok := parseUUIDField(w, req.MessageID, "message ID")
		if !ok {
			return
		}

		msg, appErr := s.Service.ToggleStar(userID, messageID)
		if appErr != nil {
			respondAppError(w, appErr)
			return
		}
		respondJSON(w, msg)
	}
}

// HandlePin pins or unpins a direct message
func (s *Server) HandlePin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID, ok := authedUser(w, r)
		if !ok {
			return
		}

		var req struct {
			MessageID string `json:"messageId"`
			Pin       bool   `json:"pin"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		messageID, ok := parseUUIDField(w, req.MessageID, "message ID")
		if !ok {
			return
		}

		msg, appErr := s.Service.PinDirectMessage(userID, messageID, req.Pin)
		if appErr != nil {
			respondAppError(w, appErr)
			return
		}
		respondJSON(w, msg)
	}
}

// HandleDelete removes a message for the caller only, or for everyone
func (s *Server) HandleDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID, ok := authedUser(w, r)
		if !ok {
			return
		}
		messageID, ok := parseUUIDQuery(w, r, "messageId")
		if !ok {
			return
		}
		everyone := r.URL.Query().Get("everyone") == "true"

		msg, appErr := s.Service.DeleteMessage(userID, messageID, everyone)
		if appErr != nil {
			respondAppError(w, appErr)
			return
		}
		respondJSON(w, msg)
	}
}

// HandleBulkDelete deletes a batch of messages in one mode
func (s *Server) HandleBulkDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID, ok := authedUser(w, r)
		if !ok {
			return
		}

		var req struct {
			MessageIDs []string `json:"messageIds"`
			Everyone   bool     `json:"everyone"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		ids := make([]uuid.UUID, 0, len(req.MessageIDs))
		for _, raw := range req.MessageIDs {
			id, ok := parseUUIDField(w, raw, "message ID")
			if !ok {
				return
			}
			ids = append(ids, id)
		}

		results, appErr := s.Service.BulkDelete(userID, ids, req.Everyone)
		if appErr != nil {
			respondAppError(w, appErr)
			return
		}
		respondJSON(w, results)
	}
}

// HandleForward re-sends a message to other direct recipients
func (s *Server) HandleForward() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID, ok := authedUser(w, r)
		if !ok {
			return
		}

		var req struct {
			MessageID    string   `json:"messageId"`
			RecipientIDs []string `json:"recipientIds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		messageID, ok := parseUUIDField(w, req.MessageID, "message ID")
		if !ok {
			return
		}
		recipients := make([]uuid.UUID, 0, len(req.RecipientIDs))
		for _, raw := range req.RecipientIDs {
			id, ok := parseUUIDField(w, raw, "recipient ID")
			if !ok {
				return
			}
			recipients = append(recipients, id)
		}

		results, appErr := s.Service.ForwardMessage(r.Context(), userID, messageID, recipients)
		if appErr != nil {
			respondAppError(w, appErr)
			return
		}
		respondJSON(w, results)
	}
}

// HandleMessageInfo returns one message with its delivery and reaction state
func (s *Server) HandleMessageInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID, ok := authedUser(w, r)
		if !ok {
			return
		}
		messageID, ok := parseUUIDQuery(w, r, "messageId")
		if !ok {
			return
		}

		msg, appErr := s.Service.MessageInfo(userID, messageID)
		if appErr != nil {
			respondAppError(w, appErr)
			return
		}
		respondJSON(w, msg)
	}
}

// HandleSearch matches query text across the caller's conversations
func (s *Server) HandleSearch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID, ok := authedUser(w, r)
		if !ok {
			return
		}
		query := r.URL.Query().Get("q")
		if query == "" {
			http.Error(w, "q required", http.StatusBadRequest)
			return
		}

		var peerID *uuid.UUID
		if raw := r.URL.Query().Get("peerId"); raw != "" {
			id, ok := parseUUIDField(w, raw, "peer ID")
			if !ok {
				return
			}
			peerID = &id
		}

		msgs, appErr := s.Service.SearchMessages(userID, query, peerID)
		if appErr != nil {
			respondAppError(w, appErr)
			return
		}
		respondJSON(w, msgs)
	}
}

// HandleTyping refreshes the caller's typing indicator toward a peer
func (s *Server) HandleTyping() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID, ok := authedUser(w, r)
		if !ok {
			return
		}

		var req struct {
			PeerID string `json:"peerId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		peerID, ok := parseUUIDField(w, req.PeerID, "peer ID")
		if !ok {
			return
		}

		if appErr := s.Service.Typing(userID, peerID); appErr != nil {
			respondAppError(w, appErr)
			return
		}
		respondJSON(w, map[string]bool{"ok": true})
	}
}

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"campuslink/internal/models"
	"campuslink/internal/service"

	"github.com/google/uuid"
)

// CreateGroupRequest represents a request to create a group chat
type CreateGroupRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	AvatarURL   string   `json:"avatarUrl,omitempty"`
	MemberIDs   []string `json:"memberIds"`
}

// HandleGroups covers creation, listing, detail, update and deletion
func (s *Server) HandleGroups() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := authedUser(w, r)
		if !ok {
			return
		}

		switch r.Method {
		case http.MethodPost:
			var req CreateGroupRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "Invalid request body", http.StatusBadRequest)
				return
			}
			memberIDs := make([]uuid.UUID, 0, len(req.MemberIDs))
			for _, raw := range req.MemberIDs {
				id, ok := parseUUIDField(w, raw, "member ID")
				if !ok {
					return
				}
				memberIDs = append(memberIDs, id)
			}

			g, appErr := s.Service.CreateGroup(r.Context(), service.CreateGroupInput{
				CreatorID:   userID,
				Name:        req.Name,
				Description: req.Description,
				AvatarURL:   req.AvatarURL,
				MemberIDs:   memberIDs,
			})
			if appErr != nil {
				respondAppError(w, appErr)
				return
			}
			respondJSON(w, g)

		case http.MethodGet:
			if raw := r.URL.Query().Get("id"); raw != "" {
				groupID, ok := parseUUIDField(w, raw, "group ID")
				if !ok {
					return
				}
				g, appErr := s.Service.GetGroup(userID, groupID)
				if appErr != nil {
					respondAppError(w, appErr)
					return
				}
				respondJSON(w, g)
				return
			}

			groups, appErr := s.Service.ListGroups(userID)
			if appErr != nil {
				respondAppError(w, appErr)
				return
			}
			respondJSON(w, groups)

		case http.MethodPut:
			var req struct {
				GroupID     string  `json:"groupId"`
				Name        *string `json:"name,omitempty"`
				Description *string `json:"description,omitempty"`
				AvatarURL   *string `json:"avatarUrl,omitempty"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "Invalid request body", http.StatusBadRequest)
				return
			}
			groupID, ok := parseUUIDField(w, req.GroupID, "group ID")
			if !ok {
				return
			}
			g, appErr := s.Service.UpdateGroup(userID, groupID, req.Name, req.Description, req.AvatarURL)
			if appErr != nil {
				respondAppError(w, appErr)
				return
			}
			respondJSON(w, g)

		case http.MethodDelete:
			groupID, ok := parseUUIDQuery(w, r, "id")
			if !ok {
				return
			}
			if appErr := s.Service.DeleteGroup(userID, groupID); appErr != nil {
				respondAppError(w, appErr)
				return
			}
			respondJSON(w, map[string]bool{"deleted": true})

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// HandleGroupMembers adds members or removes one (including self-leave)
func (s *Server) HandleGroupMembers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := authedUser(w, r)
		if !ok {
			return
		}

		switch r.Method {
		case http.MethodPost:
			var req struct {
				GroupID   string   `json:"groupId"`
				MemberIDs []string `json:"memberIds"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "Invalid request body", http.StatusBadRequest)
				return
			}
			groupID, ok := parseUUIDField(w, req.GroupID, "group ID")
			if !ok {
				return
			}
			memberIDs := make([]uuid.UUID, 0, len(req.MemberIDs))
			for _, raw := range req.MemberIDs {
				id, ok := parseUUIDField(w, raw, "member ID")
				if !ok {
					return
				}
				memberIDs = append(memberIDs, id)
			}

			g, appErr := s.Service.AddGroupMembers(r.Context(), userID, groupID, memberIDs)
			if appErr != nil {
				respondAppError(w, appErr)
				return
			}
			respondJSON(w, g)

		case http.MethodDelete:
			groupID, ok := parseUUIDQuery(w, r, "groupId")
			if !ok {
				return
			}
			targetID := userID // default: leave
			if raw := r.URL.Query().Get("memberId"); raw != "" {
				id, ok := parseUUIDField(w, raw, "member ID")
				if !ok {
					return
				}
				targetID = id
			}

			g, appErr := s.Service.RemoveGroupMember(userID, groupID, targetID)
			if appErr != nil {
				respondAppError(w, appErr)
				return
			}
			respondJSON(w, g)

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// HandleGroupRole promotes or demotes a member
func (s *Server) HandleGroupRole() http.HandlerFunc {
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
			GroupID  string `json:"groupId"`
			MemberID string `json:"memberId"`
			Role     string `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		groupID, ok := parseUUIDField(w, req.GroupID, "group ID")
		if !ok {
			return
		}
		memberID, ok := parseUUIDField(w, req.MemberID, "member ID")
		if !ok {
			return
		}

		g, appErr := s.Service.ChangeGroupRole(userID, groupID, memberID, models.GroupRole(req.Role))
		if appErr != nil {
			respondAppError(w, appErr)
			return
		}
		respondJSON(w, g)
	}
}

// HandleGroupMessages sends to a group or pages its conversation
func (s *Server) HandleGroupMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := authedUser(w, r)
		if !ok {
			return
		}

		switch r.Method {
		case http.MethodPost:
			var req struct {
				GroupID     string              `json:"groupId"`
				Content     string              `json:"content"`
				Type        string              `json:"type,omitempty"`
				Attachments []models.Attachment `json:"attachments,omitempty"`
				ReplyToID   string              `json:"replyToId,omitempty"`
				ClientKey   string              `json:"clientKey,omitempty"`
				Envelope    *models.Envelope    `json:"envelope,omitempty"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "Invalid request body", http.StatusBadRequest)
				return
			}
			groupID, ok := parseUUIDField(w, req.GroupID, "group ID")
			if !ok {
				return
			}

			in := service.SendGroupInput{
				SenderID:    userID,
				GroupID:     groupID,
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

			msg, appErr := s.Service.SendGroupMessage(r.Context(), in)
			if appErr != nil {
				respondAppError(w, appErr)
				return
			}
			respondJSON(w, msg)

		case http.MethodGet:
			groupID, ok := parseUUIDQuery(w, r, "groupId")
			if !ok {
				return
			}
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

			msgs, appErr := s.Service.ReadGroupConversation(userID, groupID, limit)
			if appErr != nil {
				respondAppError(w, appErr)
				return
			}
			respondJSON(w, msgs)

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// HandleGroupRead zeroes the caller's unread counter for a group
func (s *Server) HandleGroupRead() http.HandlerFunc {
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
			GroupID string `json:"groupId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		groupID, ok := parseUUIDField(w, req.GroupID, "group ID")
		if !ok {
			return
		}

		if appErr := s.Service.MarkGroupRead(userID, groupID); appErr != nil {
			respondAppError(w, appErr)
			return
		}
		respondJSON(w, map[string]bool{"ok": true})
	}
}

// HandleGroupPin pins a group message, or clears the pin without one
func (s *Server) HandleGroupPin() http.HandlerFunc {
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
			GroupID   string `json:"groupId"`
			MessageID string `json:"messageId,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		groupID, ok := parseUUIDField(w, req.GroupID, "group ID")
		if !ok {
			return
		}
		var messageID *uuid.UUID
		if req.MessageID != "" {
			id, ok := parseUUIDField(w, req.MessageID, "message ID")
			if !ok {
				return
			}
			messageID = &id
		}

		g, appErr := s.Service.PinGroupMessage(userID, groupID, messageID)
		if appErr != nil {
			respondAppError(w, appErr)
			return
		}
		respondJSON(w, g)
	}
}

package handlers

import (
	"net/http"
	"strconv"
)

// HandleKeys establishes or rotates the caller's key pair. The private key
// appears only in the response of the generating call.
func (s *Server) HandleKeys() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID, ok := authedUser(w, r)
		if !ok {
			return
		}

		if r.URL.Query().Get("rotate") == "true" {
			pair, appErr := s.Service.RotateKeys(userID)
			if appErr != nil {
				respondAppError(w, appErr)
				return
			}
			respondJSON(w, pair)
			return
		}

		pair, appErr := s.Service.EnsureKeys(userID)
		if appErr != nil {
			respondAppError(w, appErr)
			return
		}
		respondJSON(w, pair)
	}
}

// HandlePublicKey returns a peer's public key record for key wrapping.
// version=0 (or absent) means the latest.
func (s *Server) HandlePublicKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if _, ok := authedUser(w, r); !ok {
			return
		}
		peerID, ok := parseUUIDQuery(w, r, "userId")
		if !ok {
			return
		}
		version, _ := strconv.Atoi(r.URL.Query().Get("version"))

		rec, appErr := s.Service.PeerPublicKey(peerID, version)
		if appErr != nil {
			respondAppError(w, appErr)
			return
		}
		respondJSON(w, rec)
	}
}

// HandleBackups lists the caller's archived message snapshots
func (s *Server) HandleBackups() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID, ok := authedUser(w, r)
		if !ok {
			return
		}

		recs, appErr := s.Service.Backups(userID)
		if appErr != nil {
			respondAppError(w, appErr)
			return
		}
		respondJSON(w, recs)
	}
}

// ABOUTME: Handlers for the friendship lifecycle endpoints
// ABOUTME: Thin HTTP shims over the friends service

package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clawnet/claw-gateway/internal/auth"
	"github.com/clawnet/claw-gateway/internal/store"
)

type friendshipResponse struct {
	FriendID  string    `json:"friend_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toFriendshipResponse(f *store.Friendship) friendshipResponse {
	return friendshipResponse{
		FriendID:  f.FriendID,
		Status:    string(f.Status),
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID
	all, err := s.friends.List(r.Context(), clawID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]friendshipResponse, len(all))
	for i, f := range all {
		out[i] = toFriendshipResponse(f)
	}
	writeJSON(w, http.StatusOK, map[string]any{"friends": out})
}

func (s *Server) handleFriendRequest(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID

	var req struct {
		FriendID string `json:"friend_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.FriendID == "" {
		writeError(w, http.StatusBadRequest, "friend_id required")
		return
	}

	f, err := s.friends.Request(r.Context(), clawID, req.FriendID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFriendshipResponse(f))
}

func (s *Server) handleFriendAccept(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID

	var req struct {
		FriendID string `json:"friend_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.FriendID == "" {
		writeError(w, http.StatusBadRequest, "friend_id required")
		return
	}

	f, err := s.friends.Accept(r.Context(), clawID, req.FriendID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFriendshipResponse(f))
}

func (s *Server) handleFriendRemove(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID
	friendID := chi.URLParam(r, "friendID")

	if err := s.friends.Remove(r.Context(), clawID, friendID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

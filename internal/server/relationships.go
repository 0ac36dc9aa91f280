// ABOUTME: Handlers for relationship strength and Dunbar layer endpoints
// ABOUTME: Layer pinning and at-risk queries surface the decay model to clients

package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clawnet/claw-gateway/internal/auth"
	"github.com/clawnet/claw-gateway/internal/store"
)

type relationshipResponse struct {
	FriendID          string     `json:"friend_id"`
	Strength          float64    `json:"strength"`
	Layer             string     `json:"layer"`
	ManualOverride    bool       `json:"manual_override"`
	LastInteractionAt *time.Time `json:"last_interaction_at,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func toRelationshipResponse(rec *store.Relationship) relationshipResponse {
	return relationshipResponse{
		FriendID:          rec.FriendID,
		Strength:          rec.Strength,
		Layer:             string(rec.Layer),
		ManualOverride:    rec.ManualOverride,
		LastInteractionAt: rec.LastInteractionAt,
		UpdatedAt:         rec.UpdatedAt,
	}
}

func (s *Server) handleListRelationships(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID
	recs, err := s.relationships.List(r.Context(), clawID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]relationshipResponse, len(recs))
	for i, rec := range recs {
		out[i] = toRelationshipResponse(rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"relationships": out})
}

func (s *Server) handleGetRelationship(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID
	rec, err := s.relationships.Get(r.Context(), clawID, chi.URLParam(r, "friendID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRelationshipResponse(rec))
}

// handleInteraction records an interaction with a friend: a touch plus an
// optional strength boost supplied by the caller, clamped by the engine.
func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID
	friendID := chi.URLParam(r, "friendID")

	var req struct {
		Boost float64 `json:"boost"`
	}
	if r.Body != nil {
		// Body is optional; a bare POST is just a touch.
		json.NewDecoder(r.Body).Decode(&req)
	}

	if err := s.relationships.TouchInteraction(r.Context(), clawID, friendID); err != nil {
		writeDomainError(w, err)
		return
	}

	rec, err := s.relationships.Get(r.Context(), clawID, friendID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if req.Boost > 0 {
		if rec, err = s.relationships.BoostStrength(r.Context(), clawID, friendID, req.Boost); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, toRelationshipResponse(rec))
}

func (s *Server) handleSetLayer(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID
	friendID := chi.URLParam(r, "friendID")

	var req struct {
		Layer string `json:"layer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := s.relationships.SetManualLayer(r.Context(), clawID, friendID, store.DunbarLayer(req.Layer)); err != nil {
		writeDomainError(w, err)
		return
	}

	rec, err := s.relationships.Get(r.Context(), clawID, friendID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRelationshipResponse(rec))
}

func (s *Server) handleClearLayer(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID
	friendID := chi.URLParam(r, "friendID")

	if err := s.relationships.ClearManualOverride(r.Context(), clawID, friendID); err != nil {
		writeDomainError(w, err)
		return
	}

	rec, err := s.relationships.Get(r.Context(), clawID, friendID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRelationshipResponse(rec))
}

func (s *Server) handleAtRisk(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID

	margin := 0.05
	if v := r.URL.Query().Get("margin"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			margin = parsed
		}
	}
	inactiveDays := 7
	if v := r.URL.Query().Get("inactive_days"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			inactiveDays = parsed
		}
	}

	recs, err := s.relationships.GetAtRisk(r.Context(), clawID, margin, inactiveDays)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]relationshipResponse, len(recs))
	for i, rec := range recs {
		out[i] = toRelationshipResponse(rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"at_risk": out})
}

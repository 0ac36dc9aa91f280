// ABOUTME: Handlers for trust score reads, signals, honesty, and witness reports
// ABOUTME: Signal posts apply the two-phase Q update then recompute the composite

package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/clawnet/claw-gateway/internal/auth"
	"github.com/clawnet/claw-gateway/internal/store"
)

type trustResponse struct {
	FriendID  string   `json:"friend_id"`
	Domain    string   `json:"domain"`
	Q         float64  `json:"q_score"`
	H         *float64 `json:"h_score"`
	N         float64  `json:"n_score"`
	W         float64  `json:"w_score"`
	Composite float64  `json:"composite"`
}

func toTrustResponse(ts *store.TrustScore) trustResponse {
	return trustResponse{
		FriendID:  ts.ToClawID,
		Domain:    ts.Domain,
		Q:         ts.Q,
		H:         ts.H,
		N:         ts.N,
		W:         ts.W,
		Composite: ts.Composite,
	}
}

func (s *Server) handleGetTrust(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID
	friendID := chi.URLParam(r, "friendID")

	domain := r.URL.Query().Get("domain")
	if domain == "" {
		domain = store.DomainOverall
	}

	ts, err := s.trust.Get(r.Context(), clawID, friendID, domain)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrustResponse(ts))
}

func (s *Server) handleTrustDomains(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID
	friendID := chi.URLParam(r, "friendID")

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	domains, err := s.trust.GetTopDomains(r.Context(), clawID, friendID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]trustResponse, len(domains))
	for i, ts := range domains {
		out[i] = toTrustResponse(ts)
	}
	writeJSON(w, http.StatusOK, map[string]any{"domains": out})
}

func (s *Server) handleTrustSignal(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID
	friendID := chi.URLParam(r, "friendID")

	var req struct {
		Domain string `json:"domain"`
		Signal string `json:"signal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Domain == "" {
		req.Domain = store.DomainOverall
	}

	if _, err := s.trust.ApplySignal(r.Context(), clawID, friendID, req.Domain, req.Signal); err != nil {
		writeDomainError(w, err)
		return
	}
	if _, err := s.trust.UpdateComposite(r.Context(), clawID, friendID, req.Domain); err != nil {
		writeDomainError(w, err)
		return
	}

	ts, err := s.trust.Get(r.Context(), clawID, friendID, req.Domain)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrustResponse(ts))
}

func (s *Server) handleHonesty(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID
	friendID := chi.URLParam(r, "friendID")

	var req struct {
		Domain string `json:"domain"`
		// Score null clears the honesty dimension back to "no evidence".
		Score *float64 `json:"score"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Domain == "" {
		req.Domain = store.DomainOverall
	}

	if _, err := s.trust.UpdateHScore(r.Context(), clawID, friendID, req.Domain, req.Score); err != nil {
		writeDomainError(w, err)
		return
	}

	ts, err := s.trust.Get(r.Context(), clawID, friendID, req.Domain)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrustResponse(ts))
}

func (s *Server) handleWitness(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID
	friendID := chi.URLParam(r, "friendID")

	var req struct {
		Domain    string  `json:"domain"`
		Composite float64 `json:"composite"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Domain == "" {
		req.Domain = store.DomainOverall
	}

	if _, err := s.trust.ApplyWitnessReport(r.Context(), clawID, friendID, req.Domain, req.Composite); err != nil {
		writeDomainError(w, err)
		return
	}

	ts, err := s.trust.Get(r.Context(), clawID, friendID, req.Domain)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrustResponse(ts))
}

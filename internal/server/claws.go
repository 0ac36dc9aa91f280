// ABOUTME: Handlers for claw registration, identity, heartbeats, and key rotation
// ABOUTME: Registration proves key ownership by verifying a self-signed request

package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clawnet/claw-gateway/internal/auth"
	"github.com/clawnet/claw-gateway/internal/bus"
	"github.com/clawnet/claw-gateway/internal/signing"
	"github.com/clawnet/claw-gateway/internal/store"
)

type clawResponse struct {
	ClawID                   string     `json:"claw_id"`
	PublicKey                string     `json:"public_key"`
	EncryptionKey            string     `json:"encryption_key,omitempty"`
	EncryptionKeyFingerprint string     `json:"encryption_key_fingerprint,omitempty"`
	Label                    string     `json:"label,omitempty"`
	LastSeenAt               *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt                time.Time  `json:"created_at"`
}

func toClawResponse(c *store.Claw) clawResponse {
	return clawResponse{
		ClawID:                   c.ID,
		PublicKey:                c.PublicKey,
		EncryptionKey:            c.EncryptionKey,
		EncryptionKeyFingerprint: c.EncryptionKeyFingerprint,
		Label:                    c.Label,
		LastSeenAt:               c.LastSeenAt,
		CreatedAt:                c.CreatedAt,
	}
}

// handleRegister creates a claw from its public key. The caller signs the
// request with the key being registered, so ownership is proven before any
// row exists; the claw id is always derived server-side, never trusted.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body")
		return
	}

	var req struct {
		PublicKey     string `json:"public_key"`
		EncryptionKey string `json:"encryption_key"`
		Label         string `json:"label"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.PublicKey == "" {
		writeError(w, http.StatusBadRequest, "public_key required")
		return
	}

	timestampMs, _ := strconv.ParseInt(r.Header.Get(auth.HeaderTimestamp), 10, 64)
	skewMs := s.cfg.Auth.TimestampSkew.Milliseconds()
	if drift := time.Now().UnixMilli() - timestampMs; drift > skewMs || drift < -skewMs {
		writeError(w, http.StatusUnauthorized, "timestamp outside allowed skew")
		return
	}

	message := signing.BuildSignMessage(r.Method, r.URL.Path, timestampMs, body)
	if !signing.Verify(r.Header.Get(auth.HeaderSignature), message, req.PublicKey) {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	claw := &store.Claw{
		ID:            signing.DeriveClawID(req.PublicKey),
		PublicKey:     req.PublicKey,
		EncryptionKey: req.EncryptionKey,
		Label:         req.Label,
		CreatedAt:     time.Now().UTC(),
	}
	if req.EncryptionKey != "" {
		claw.EncryptionKeyFingerprint = signing.KeyFingerprint(req.EncryptionKey)
	}

	if err := s.store.CreateClaw(r.Context(), claw); err != nil {
		writeDomainError(w, err)
		return
	}

	s.logger.Info("claw registered", "claw_id", claw.ID, "label", claw.Label)
	writeJSON(w, http.StatusCreated, toClawResponse(claw))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID
	claw, err := s.store.GetClaw(r.Context(), clawID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClawResponse(claw))
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID
	now := time.Now().UTC()
	if err := s.store.TouchClawSeen(r.Context(), clawID, now); err != nil {
		writeDomainError(w, err)
		return
	}

	s.bus.Emit(bus.Event{
		Name:    bus.EventHeartbeat,
		ClawID:  clawID,
		Payload: map[string]string{"claw_id": clawID},
	})

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "seen_at": now})
}

func (s *Server) handleSetEncryptionKey(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID

	var req struct {
		EncryptionKey string `json:"encryption_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.EncryptionKey == "" {
		writeError(w, http.StatusBadRequest, "encryption_key required")
		return
	}

	fingerprint := signing.KeyFingerprint(req.EncryptionKey)
	if err := s.store.SetEncryptionKey(r.Context(), clawID, req.EncryptionKey, fingerprint); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"encryption_key_fingerprint": fingerprint,
	})
}

// handleGetClaw exposes another claw's public identity, the material needed
// to encrypt a payload for it. Only friends of the caller are visible.
func (s *Server) handleGetClaw(w http.ResponseWriter, r *http.Request) {
	callerID := auth.MustFromContext(r.Context()).ClawID
	targetID := chi.URLParam(r, "clawID")

	if targetID != callerID {
		ok, err := s.friends.IsAccepted(r.Context(), callerID, targetID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
	}

	claw, err := s.store.GetClaw(r.Context(), targetID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClawResponse(claw))
}

func (s *Server) handleAdminListClaws(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	claws, err := s.store.ListClaws(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]clawResponse, len(claws))
	for i, c := range claws {
		out[i] = toClawResponse(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{"claws": out, "count": len(out)})
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	claws, err := s.store.ListClaws(r.Context(), 0)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	online := 0
	cutoff := time.Now().UTC().Add(-s.cfg.Scheduler.HeartbeatTimeout)
	for _, c := range claws {
		if c.LastSeenAt != nil && c.LastSeenAt.After(cutoff) {
			online++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"claws":       len(claws),
		"online":      online,
		"subscribers": s.bus.SubscriberCount(),
		"uptime":      time.Since(s.started).Seconds(),
	})
}

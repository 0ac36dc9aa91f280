// ABOUTME: Handlers for sending messages and reading the inbox
// ABOUTME: Sends are restricted to accepted friends and count as interactions

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

// Sending a message is a grooming interaction; the sender's bond with each
// recipient gets a small strength boost on top of the interaction touch.
const sendStrengthBoost = 0.02

type inboxEntryResponse struct {
	EntryID   string    `json:"entry_id"`
	MessageID string    `json:"message_id"`
	Seq       int64     `json:"seq"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID

	var req struct {
		Content    string   `json:"content"`
		Recipients []string `json:"recipients"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}

	// Empty recipients means all accepted friends.
	recipients := req.Recipients
	if len(recipients) == 0 {
		var err error
		if recipients, err = s.friends.Accepted(r.Context(), clawID); err != nil {
			writeDomainError(w, err)
			return
		}
		if len(recipients) == 0 {
			writeError(w, http.StatusBadRequest, "no recipients")
			return
		}
	} else {
		for _, recipientID := range recipients {
			ok, err := s.friends.IsAccepted(r.Context(), clawID, recipientID)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			if !ok {
				writeError(w, http.StatusForbidden, "recipient is not an accepted friend: "+recipientID)
				return
			}
		}
	}

	msg, entries, err := s.inbox.Send(r.Context(), clawID, req.Content, recipients)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	messagesSent.Inc()

	for _, recipientID := range recipients {
		if err := s.relationships.TouchInteraction(r.Context(), clawID, recipientID); err != nil {
			s.logger.Warn("recording interaction failed", "friend_id", recipientID, "error", err)
		}
		if _, err := s.relationships.BoostStrength(r.Context(), clawID, recipientID, sendStrengthBoost); err != nil {
			s.logger.Warn("boosting strength failed", "friend_id", recipientID, "error", err)
		}
	}

	out := make([]inboxEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = inboxEntryResponse{
			EntryID: e.ID, MessageID: e.MessageID, Seq: e.Seq,
			Status: string(e.Status), CreatedAt: e.CreatedAt,
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message_id": msg.ID,
		"deliveries": out,
	})
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID
	msg, err := s.inbox.GetMessage(r.Context(), clawID, chi.URLParam(r, "messageID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message_id": msg.ID,
		"sender_id":  msg.SenderID,
		"content":    msg.Content,
		"created_at": msg.CreatedAt,
	})
}

func (s *Server) handleGetInbox(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID

	afterSeq, _ := strconv.ParseInt(r.URL.Query().Get("after_seq"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := s.inbox.GetInbox(r.Context(), clawID, store.InboxQuery{
		Status:   store.InboxStatus(r.URL.Query().Get("status")),
		AfterSeq: afterSeq,
		Limit:    limit,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]inboxEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = inboxEntryResponse{
			EntryID: e.ID, MessageID: e.MessageID, Seq: e.Seq,
			Status: string(e.Status), CreatedAt: e.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID
	count, err := s.inbox.UnreadCount(r.Context(), clawID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": count})
}

func (s *Server) handleAckInbox(w http.ResponseWriter, r *http.Request) {
	s.handleEntryStatus(w, r, func(clawID string, ids []string) (int, error) {
		return s.inbox.Ack(r.Context(), clawID, ids)
	})
}

func (s *Server) handleReadInbox(w http.ResponseWriter, r *http.Request) {
	s.handleEntryStatus(w, r, func(clawID string, ids []string) (int, error) {
		return s.inbox.MarkRead(r.Context(), clawID, ids)
	})
}

func (s *Server) handleEntryStatus(w http.ResponseWriter, r *http.Request, apply func(string, []string) (int, error)) {
	clawID := auth.MustFromContext(r.Context()).ClawID

	var req struct {
		EntryIDs []string `json:"entry_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.EntryIDs) == 0 {
		writeError(w, http.StatusBadRequest, "entry_ids required")
		return
	}

	n, err := apply(clawID, req.EntryIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

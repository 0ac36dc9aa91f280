// ABOUTME: JSON response helpers shared by all handlers
// ABOUTME: Maps store sentinel errors onto HTTP status codes in one place

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clawnet/claw-gateway/internal/friends"
	"github.com/clawnet/claw-gateway/internal/relationship"
	"github.com/clawnet/claw-gateway/internal/store"
	"github.com/clawnet/claw-gateway/internal/trust"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError translates service errors into HTTP responses. Unmatched
// errors become opaque 500s; their detail stays in the log.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, "already exists")
	case errors.Is(err, friends.ErrSelfFriendship),
		errors.Is(err, friends.ErrAlreadyFriends),
		errors.Is(err, relationship.ErrInvalidLayer),
		errors.Is(err, trust.ErrUnknownSignal),
		errors.Is(err, trust.ErrScoreOutOfRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, friends.ErrNoPendingRequest):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

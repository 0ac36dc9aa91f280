// ABOUTME: Friendship lifecycle: request, accept, remove, and listing
// ABOUTME: Acceptance bootstraps relationship and trust records in both directions

package friends

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clawnet/claw-gateway/internal/bus"
	"github.com/clawnet/claw-gateway/internal/relationship"
	"github.com/clawnet/claw-gateway/internal/store"
	"github.com/clawnet/claw-gateway/internal/trust"
)

var (
	// ErrSelfFriendship is returned when a claw tries to befriend itself.
	ErrSelfFriendship = errors.New("cannot befriend self")
	// ErrNoPendingRequest is returned by Accept when no request exists to accept.
	ErrNoPendingRequest = errors.New("no pending friend request")
	// ErrAlreadyFriends is returned by Request when the pair is already accepted.
	ErrAlreadyFriends = errors.New("already friends")
)

// FriendChange is the payload of friend.accepted and friend.removed events.
type FriendChange struct {
	ClawID   string `json:"claw_id"`
	FriendID string `json:"friend_id"`
}

// Service manages the friendship lifecycle. A friendship starts as a pending
// row on the requester's side; accepting writes accepted rows in both
// directions and bootstraps the relationship and trust state for the pair.
type Service struct {
	claws         store.ClawStore
	friendships   store.FriendStore
	relationships *relationship.Engine
	trust         *trust.Engine
	bus           *bus.Bus
	logger        *slog.Logger
}

// NewService creates a friendship service. Pass nil logger for the default.
func NewService(claws store.ClawStore, friendships store.FriendStore, rel *relationship.Engine, tr *trust.Engine, eventBus *bus.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		claws:         claws,
		friendships:   friendships,
		relationships: rel,
		trust:         tr,
		bus:           eventBus,
		logger:        logger.With("component", "friends"),
	}
}

// TrackLayerChanges keeps each pair's trust N dimension in step with its
// Dunbar layer after the bootstrap seed. It consumes layer-change events in
// the background until ctx is cancelled; run once per process. Without it,
// decay or a manual pin would reclassify the pair while the trust record
// kept the stale network score.
func (s *Service) TrackLayerChanges(ctx context.Context) {
	if s.bus == nil {
		return
	}
	events, _ := s.bus.Subscribe(ctx)
	go func() {
		for ev := range events {
			if ev.Name != bus.EventLayerChanged {
				continue
			}
			lc, ok := ev.Payload.(relationship.LayerChange)
			if !ok {
				continue
			}
			if _, err := s.trust.UpdateNFromLayer(ctx, lc.ClawID, lc.FriendID, lc.To); err != nil {
				s.logger.Warn("updating network score from layer change",
					"claw_id", lc.ClawID, "friend_id", lc.FriendID, "layer", lc.To, "error", err)
			}
		}
	}()
}

// Request records a pending friend request from clawID to friendID. Both
// claws must be registered. Repeating a pending request is a no-op; if the
// other side already has a pending request toward us, the request completes
// as an acceptance instead.
func (s *Service) Request(ctx context.Context, clawID, friendID string) (*store.Friendship, error) {
	if clawID == friendID {
		return nil, ErrSelfFriendship
	}
	if _, err := s.claws.GetClaw(ctx, friendID); err != nil {
		return nil, fmt.Errorf("resolving friend: %w", err)
	}

	if existing, err := s.friendships.GetFriendship(ctx, clawID, friendID); err == nil {
		if existing.Status == store.FriendshipAccepted {
			return nil, ErrAlreadyFriends
		}
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	// A pending request in the opposite direction means both sides want the
	// friendship; complete it instead of leaving two dangling requests.
	if reverse, err := s.friendships.GetFriendship(ctx, friendID, clawID); err == nil && reverse.Status == store.FriendshipPending {
		return s.Accept(ctx, clawID, friendID)
	}

	now := time.Now().UTC()
	f := &store.Friendship{
		ClawID:    clawID,
		FriendID:  friendID,
		Status:    store.FriendshipPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.friendships.UpsertFriendship(ctx, f); err != nil {
		return nil, fmt.Errorf("saving friend request: %w", err)
	}

	s.logger.Info("friend request created", "claw_id", clawID, "friend_id", friendID)
	return f, nil
}

// Accept completes a pending request sent by requesterID to accepterID.
// It writes accepted rows in both directions, establishes a relationship
// (default strength) and an overall trust record for each direction, and
// emits friend.accepted for both claws.
func (s *Service) Accept(ctx context.Context, accepterID, requesterID string) (*store.Friendship, error) {
	pending, err := s.friendships.GetFriendship(ctx, requesterID, accepterID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoPendingRequest
		}
		return nil, err
	}
	if pending.Status != store.FriendshipPending {
		return nil, ErrNoPendingRequest
	}

	now := time.Now().UTC()
	for _, pair := range [][2]string{{requesterID, accepterID}, {accepterID, requesterID}} {
		f := &store.Friendship{
			ClawID:    pair[0],
			FriendID:  pair[1],
			Status:    store.FriendshipAccepted,
			CreatedAt: pending.CreatedAt,
			UpdatedAt: now,
		}
		if err := s.friendships.UpsertFriendship(ctx, f); err != nil {
			return nil, fmt.Errorf("accepting friendship: %w", err)
		}
		rel, err := s.relationships.Establish(ctx, pair[0], pair[1])
		if err != nil && !errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("establishing relationship: %w", err)
		}
		if err := s.trust.Establish(ctx, pair[0], pair[1]); err != nil {
			return nil, fmt.Errorf("establishing trust: %w", err)
		}
		if rel != nil {
			if _, err := s.trust.UpdateNFromLayer(ctx, pair[0], pair[1], rel.Layer); err != nil {
				return nil, fmt.Errorf("seeding network score: %w", err)
			}
		}
	}

	if s.bus != nil {
		s.bus.Emit(bus.Event{
			Name:    bus.EventFriendAccepted,
			ClawID:  accepterID,
			Payload: FriendChange{ClawID: accepterID, FriendID: requesterID},
		})
		s.bus.Emit(bus.Event{
			Name:    bus.EventFriendAccepted,
			ClawID:  requesterID,
			Payload: FriendChange{ClawID: requesterID, FriendID: accepterID},
		})
	}

	s.logger.Info("friendship accepted", "accepter", accepterID, "requester", requesterID)
	return s.friendships.GetFriendship(ctx, accepterID, requesterID)
}

// Remove tears a friendship down from both sides: friendship rows,
// relationship records, and trust scores all go. Removing a friendship that
// does not exist is not an error.
func (s *Service) Remove(ctx context.Context, clawID, friendID string) error {
	for _, pair := range [][2]string{{clawID, friendID}, {friendID, clawID}} {
		if err := s.friendships.DeleteFriendship(ctx, pair[0], pair[1]); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("deleting friendship: %w", err)
		}
		if err := s.relationships.Remove(ctx, pair[0], pair[1]); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("removing relationship: %w", err)
		}
		if err := s.trust.RemovePair(ctx, pair[0], pair[1]); err != nil {
			return fmt.Errorf("removing trust scores: %w", err)
		}
	}

	if s.bus != nil {
		s.bus.Emit(bus.Event{
			Name:    bus.EventFriendRemoved,
			ClawID:  clawID,
			Payload: FriendChange{ClawID: clawID, FriendID: friendID},
		})
	}

	s.logger.Info("friendship removed", "claw_id", clawID, "friend_id", friendID)
	return nil
}

// List returns a claw's friendships, pending and accepted.
func (s *Service) List(ctx context.Context, clawID string) ([]*store.Friendship, error) {
	return s.friendships.ListFriendships(ctx, clawID)
}

// Accepted filters List down to accepted friendships and returns the friend
// ids, the set a message send may target.
func (s *Service) Accepted(ctx context.Context, clawID string) ([]string, error) {
	all, err := s.friendships.ListFriendships(ctx, clawID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(all))
	for _, f := range all {
		if f.Status == store.FriendshipAccepted {
			ids = append(ids, f.FriendID)
		}
	}
	return ids, nil
}

// IsAccepted reports whether clawID and friendID have an accepted friendship.
func (s *Service) IsAccepted(ctx context.Context, clawID, friendID string) (bool, error) {
	f, err := s.friendships.GetFriendship(ctx, clawID, friendID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return f.Status == store.FriendshipAccepted, nil
}

// ABOUTME: Store interfaces and data types for claw-gateway persistence
// ABOUTME: Defines claws, relationships, trust scores, inbox entries, and the capability interfaces

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when creating an entity that already exists.
var ErrDuplicate = errors.New("already exists")

// DunbarLayer is a coarse relationship-closeness tier, ordered by ascending
// strength: casual < active < sympathy < core.
type DunbarLayer string

const (
	LayerCore     DunbarLayer = "core"
	LayerSympathy DunbarLayer = "sympathy"
	LayerActive   DunbarLayer = "active"
	LayerCasual   DunbarLayer = "casual"
)

// Valid reports whether the layer is one of the four known tiers.
func (l DunbarLayer) Valid() bool {
	switch l {
	case LayerCore, LayerSympathy, LayerActive, LayerCasual:
		return true
	}
	return false
}

// Claw is a registered identity. The id is always derived from the public key
// (signing.DeriveClawID); it is cached here, never assigned.
type Claw struct {
	ID                       string
	PublicKey                string // hex ed25519 signing key
	EncryptionKey            string // hex x25519 key, may be empty
	EncryptionKeyFingerprint string // sha256 prefix of EncryptionKey, rotation detection
	Label                    string
	LastSeenAt               *time.Time
	CreatedAt                time.Time
}

// FriendshipStatus tracks the lifecycle of a friend request.
type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
)

// Friendship is a directed friendship row. An accepted friendship exists in
// both directions; the relationship and trust records hang off each direction
// independently.
type Friendship struct {
	ClawID    string
	FriendID  string
	Status    FriendshipStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Relationship is the per-pair continuous strength record. Strength stays in
// [0.01, 1.0] after decay; the layer is recomputed from strength unless
// ManualOverride is set.
type Relationship struct {
	ClawID            string
	FriendID          string
	Strength          float64
	Layer             DunbarLayer
	ManualOverride    bool
	LastInteractionAt *time.Time
	UpdatedAt         time.Time
}

// DomainOverall is the trust domain created automatically with a friendship.
// Tag domains (e.g. "AI") are created lazily by signal traffic.
const DomainOverall = "_overall"

// TrustScore is the five-dimensional trust record for an ordered pair and
// domain. H is a pointer: nil means "never endorsed by a human", which is a
// different fact from an explicit 0.0 low-trust endorsement.
type TrustScore struct {
	FromClawID string
	ToClawID   string
	Domain     string
	Q          float64  // agent-interaction quality
	H          *float64 // human endorsement, nil = never endorsed
	N          float64  // network position (from Dunbar layer)
	W          float64  // witness reputation
	Composite  float64
	UpdatedAt  time.Time
}

// InboxStatus is the delivery state of an inbox entry.
type InboxStatus string

const (
	InboxUnread InboxStatus = "unread"
	InboxRead   InboxStatus = "read"
	InboxAcked  InboxStatus = "acked"

	// InboxStatusAll is a query filter value, never stored.
	InboxStatusAll = "all"
)

// InboxEntry is a sequence-numbered delivery of a message to one recipient.
// Seq is strictly increasing per recipient; gaps from retention cleanup are
// tolerated, ordering is not.
type InboxEntry struct {
	ID          string
	RecipientID string
	MessageID   string
	Seq         int64
	Status      InboxStatus
	CreatedAt   time.Time
}

// Message is the minimal persisted message body inbox entries point at.
type Message struct {
	ID        string
	SenderID  string
	Content   string
	CreatedAt time.Time
}

// InboxQuery filters a ListInbox call. A zero Limit defaults to 50 and is
// capped at 100. Status InboxStatusAll (or empty) disables status filtering.
type InboxQuery struct {
	Status   InboxStatus
	AfterSeq int64
	Limit    int
}

// ClawStore persists registered identities.
type ClawStore interface {
	CreateClaw(ctx context.Context, claw *Claw) error
	GetClaw(ctx context.Context, id string) (*Claw, error)
	ListClaws(ctx context.Context, limit int) ([]*Claw, error)
	SetEncryptionKey(ctx context.Context, id, key, fingerprint string) error
	TouchClawSeen(ctx context.Context, id string, at time.Time) error
}

// FriendStore persists friendship rows.
type FriendStore interface {
	UpsertFriendship(ctx context.Context, f *Friendship) error
	GetFriendship(ctx context.Context, clawID, friendID string) (*Friendship, error)
	ListFriendships(ctx context.Context, clawID string) ([]*Friendship, error)
	DeleteFriendship(ctx context.Context, clawID, friendID string) error
}

// RelationshipStore persists per-pair strength records. SetStrength and
// SetManualLayer are single-row updates returning the affected-row count so
// engines can treat missing pairs as no-ops where the contract allows it.
type RelationshipStore interface {
	CreateRelationship(ctx context.Context, r *Relationship) error
	GetRelationship(ctx context.Context, clawID, friendID string) (*Relationship, error)
	ListRelationships(ctx context.Context, clawID string) ([]*Relationship, error)
	ListAllRelationships(ctx context.Context) ([]*Relationship, error)
	SetStrength(ctx context.Context, clawID, friendID string, strength float64, layer DunbarLayer) (int, error)
	SetManualLayer(ctx context.Context, clawID, friendID string, layer DunbarLayer, override bool) (int, error)
	TouchRelationship(ctx context.Context, clawID, friendID string, at time.Time) error
	DeleteRelationship(ctx context.Context, clawID, friendID string) error
}

// TrustStore persists per-pair, per-domain trust records.
type TrustStore interface {
	UpsertTrustScore(ctx context.Context, ts *TrustScore) error
	GetTrustScore(ctx context.Context, from, to, domain string) (*TrustScore, error)
	SaveTrustScore(ctx context.Context, ts *TrustScore) (int, error)
	ListTrustScores(ctx context.Context, fromClawID string) ([]*TrustScore, error)
	ListTrustDomains(ctx context.Context, from, to string, limit int) ([]*TrustScore, error)
	DecayQScores(ctx context.Context, rate float64, fromClawID string) (int, error)
	DeleteTrustScores(ctx context.Context, from, to string) error
}

// InboxStore persists messages and sequence-numbered inbox entries. NextSeq
// is the single authoritative per-recipient counter; allocation is atomic
// even though callers are otherwise concurrent.
type InboxStore interface {
	SaveMessage(ctx context.Context, m *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	HasInboxEntry(ctx context.Context, recipientID, messageID string) (bool, error)
	NextSeq(ctx context.Context, recipientID string) (int64, error)
	CreateInboxEntry(ctx context.Context, e *InboxEntry) error
	ListInbox(ctx context.Context, recipientID string, q InboxQuery) ([]*InboxEntry, error)
	SetEntryStatus(ctx context.Context, recipientID string, ids []string, status InboxStatus) (int, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
	PurgeAckedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Store is the full persistence surface. SQLiteStore implements every
// capability interface in one struct; consumers depend only on the slice
// they use.
type Store interface {
	ClawStore
	FriendStore
	RelationshipStore
	TrustStore
	InboxStore

	Close() error
}

// ABOUTME: Tests for the SQLite store: CRUD, sentinel errors, seq allocation
// ABOUTME: Runs against a temp-file database, same pragmas as production

package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestClawCRUD(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	claw := &Claw{
		ID:        "claw_0123456789abcdef",
		PublicKey: "aabbcc",
		Label:     "test claw",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateClaw(ctx, claw))

	got, err := st.GetClaw(ctx, claw.ID)
	require.NoError(t, err)
	assert.Equal(t, "aabbcc", got.PublicKey)
	assert.Equal(t, "test claw", got.Label)
	assert.Nil(t, got.LastSeenAt)

	// Duplicate registration by id or public key is refused.
	assert.ErrorIs(t, st.CreateClaw(ctx, claw), ErrDuplicate)

	_, err = st.GetClaw(ctx, "claw_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTouchClawSeen(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateClaw(ctx, &Claw{ID: "claw_a", PublicKey: "pk", CreatedAt: time.Now().UTC()}))

	when := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, st.TouchClawSeen(ctx, "claw_a", when))

	got, err := st.GetClaw(ctx, "claw_a")
	require.NoError(t, err)
	require.NotNil(t, got.LastSeenAt)
	assert.True(t, got.LastSeenAt.Equal(when))
}

func TestSetEncryptionKey(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateClaw(ctx, &Claw{ID: "claw_a", PublicKey: "pk", CreatedAt: time.Now().UTC()}))
	require.NoError(t, st.SetEncryptionKey(ctx, "claw_a", "enckey", "fingerprint16"))

	got, err := st.GetClaw(ctx, "claw_a")
	require.NoError(t, err)
	assert.Equal(t, "enckey", got.EncryptionKey)
	assert.Equal(t, "fingerprint16", got.EncryptionKeyFingerprint)

	assert.ErrorIs(t, st.SetEncryptionKey(ctx, "claw_missing", "k", "f"), ErrNotFound)
}

func TestRelationshipCRUD(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	rec := &Relationship{
		ClawID:    "claw_a",
		FriendID:  "claw_b",
		Strength:  0.5,
		Layer:     LayerActive,
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateRelationship(ctx, rec))
	assert.ErrorIs(t, st.CreateRelationship(ctx, rec), ErrDuplicate)

	got, err := st.GetRelationship(ctx, "claw_a", "claw_b")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got.Strength, 1e-9)
	assert.Equal(t, LayerActive, got.Layer)
	assert.False(t, got.ManualOverride)

	n, err := st.SetStrength(ctx, "claw_a", "claw_b", 0.7, LayerSympathy)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = st.SetStrength(ctx, "claw_a", "claw_x", 0.7, LayerSympathy)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, st.DeleteRelationship(ctx, "claw_a", "claw_b"))
	_, err = st.GetRelationship(ctx, "claw_a", "claw_b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTrustScore_NullHRoundTrip(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	// H starts null: no honesty evidence at all, distinct from measured zero.
	require.NoError(t, st.UpsertTrustScore(ctx, &TrustScore{
		FromClawID: "claw_a", ToClawID: "claw_b", Domain: DomainOverall,
		Q: 0.2, N: 0.5, UpdatedAt: time.Now().UTC(),
	}))

	got, err := st.GetTrustScore(ctx, "claw_a", "claw_b", DomainOverall)
	require.NoError(t, err)
	assert.Nil(t, got.H)

	zero := 0.0
	got.H = &zero
	got.UpdatedAt = time.Now().UTC()
	require.NoError(t, st.UpsertTrustScore(ctx, got))

	got, err = st.GetTrustScore(ctx, "claw_a", "claw_b", DomainOverall)
	require.NoError(t, err)
	require.NotNil(t, got.H)
	assert.Zero(t, *got.H)
}

func TestDecayQScores_ClampsAtBounds(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertTrustScore(ctx, &TrustScore{
		FromClawID: "claw_a", ToClawID: "claw_b", Domain: DomainOverall,
		Q: 0.5, UpdatedAt: time.Now().UTC(),
	}))

	n, err := st.DecayQScores(ctx, 0.99, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := st.GetTrustScore(ctx, "claw_a", "claw_b", DomainOverall)
	require.NoError(t, err)
	assert.InDelta(t, 0.495, got.Q, 1e-9)
}

func TestNextSeq_MonotonicPerRecipient(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 10; i++ {
		seq, err := st.NextSeq(ctx, "claw_r1")
		require.NoError(t, err)
		assert.Equal(t, i, seq)
	}

	seq, err := st.NextSeq(ctx, "claw_r2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestNextSeq_ConcurrentAllocationsAreDistinct(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	const workers = 20
	seqs := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seq, err := st.NextSeq(ctx, "claw_r1")
			assert.NoError(t, err)
			seqs[i] = seq
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, workers)
	for _, seq := range seqs {
		assert.False(t, seen[seq], "duplicate seq %d", seq)
		seen[seq] = true
		assert.GreaterOrEqual(t, seq, int64(1))
		assert.LessOrEqual(t, seq, int64(workers))
	}
}

func TestInboxEntry_DuplicateSeqRejected(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	entry := &InboxEntry{
		ID: "e1", RecipientID: "claw_r1", MessageID: "m1", Seq: 1,
		Status: InboxUnread, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateInboxEntry(ctx, entry))

	dup := &InboxEntry{
		ID: "e2", RecipientID: "claw_r1", MessageID: "m2", Seq: 1,
		Status: InboxUnread, CreatedAt: time.Now().UTC(),
	}
	assert.ErrorIs(t, st.CreateInboxEntry(ctx, dup), ErrDuplicate)
}

func TestListTrustDomains_OrderedByComposite(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	for domain, composite := range map[string]float64{
		"research": 0.9,
		"writing":  0.3,
		"curation": 0.6,
	} {
		require.NoError(t, st.UpsertTrustScore(ctx, &TrustScore{
			FromClawID: "claw_a", ToClawID: "claw_b", Domain: domain,
			Composite: composite, UpdatedAt: time.Now().UTC(),
		}))
	}

	domains, err := st.ListTrustDomains(ctx, "claw_a", "claw_b", 2)
	require.NoError(t, err)
	require.Len(t, domains, 2)
	assert.Equal(t, "research", domains[0].Domain)
	assert.Equal(t, "curation", domains[1].Domain)
}

// ABOUTME: Tests for the friendship lifecycle service
// ABOUTME: Covers request/accept/remove flows and the bootstrap side effects

package friends

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawnet/claw-gateway/internal/bus"
	"github.com/clawnet/claw-gateway/internal/relationship"
	"github.com/clawnet/claw-gateway/internal/store"
	"github.com/clawnet/claw-gateway/internal/trust"
)

func setupService(t *testing.T) (*Service, *store.SQLiteStore, *bus.Bus) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := bus.New(nil)
	rel := relationship.NewEngine(st, b, nil)
	tr := trust.NewEngine(st, nil)
	svc := NewService(st, st, rel, tr, b, nil)

	ctx := context.Background()
	for _, id := range []string{"claw_alpha", "claw_beta", "claw_gamma"} {
		require.NoError(t, st.CreateClaw(ctx, &store.Claw{
			ID:        id,
			PublicKey: "pk-" + id,
			CreatedAt: time.Now().UTC(),
		}))
	}
	return svc, st, b
}

func TestRequest_CreatesPendingRow(t *testing.T) {
	svc, st, _ := setupService(t)
	ctx := context.Background()

	f, err := svc.Request(ctx, "claw_alpha", "claw_beta")
	require.NoError(t, err)
	assert.Equal(t, store.FriendshipPending, f.Status)

	stored, err := st.GetFriendship(ctx, "claw_alpha", "claw_beta")
	require.NoError(t, err)
	assert.Equal(t, store.FriendshipPending, stored.Status)

	// No reverse row until acceptance.
	_, err = st.GetFriendship(ctx, "claw_beta", "claw_alpha")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRequest_RejectsSelfAndUnknownClaw(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Request(ctx, "claw_alpha", "claw_alpha")
	assert.ErrorIs(t, err, ErrSelfFriendship)

	_, err = svc.Request(ctx, "claw_alpha", "claw_nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRequest_RepeatIsNoOp(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	first, err := svc.Request(ctx, "claw_alpha", "claw_beta")
	require.NoError(t, err)
	second, err := svc.Request(ctx, "claw_alpha", "claw_beta")
	require.NoError(t, err)
	assert.WithinDuration(t, first.CreatedAt, second.CreatedAt, time.Second)
	assert.Equal(t, store.FriendshipPending, second.Status)
}

func TestRequest_CrossingRequestsComplete(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Request(ctx, "claw_alpha", "claw_beta")
	require.NoError(t, err)

	f, err := svc.Request(ctx, "claw_beta", "claw_alpha")
	require.NoError(t, err)
	assert.Equal(t, store.FriendshipAccepted, f.Status)

	ok, err := svc.IsAccepted(ctx, "claw_alpha", "claw_beta")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAccept_BootstrapsBothDirections(t *testing.T) {
	svc, st, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Request(ctx, "claw_alpha", "claw_beta")
	require.NoError(t, err)

	f, err := svc.Accept(ctx, "claw_beta", "claw_alpha")
	require.NoError(t, err)
	assert.Equal(t, store.FriendshipAccepted, f.Status)

	for _, pair := range [][2]string{{"claw_alpha", "claw_beta"}, {"claw_beta", "claw_alpha"}} {
		fr, err := st.GetFriendship(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.Equal(t, store.FriendshipAccepted, fr.Status)

		rel, err := st.GetRelationship(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.InDelta(t, relationship.DefaultStrength, rel.Strength, 1e-9)
		assert.Equal(t, store.LayerActive, rel.Layer)

		ts, err := st.GetTrustScore(ctx, pair[0], pair[1], store.DomainOverall)
		require.NoError(t, err)
		assert.Zero(t, ts.Q)
		assert.Nil(t, ts.H)
		assert.InDelta(t, 0.5, ts.N, 1e-9)
	}
}

func TestAccept_WithoutRequestFails(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Accept(ctx, "claw_beta", "claw_alpha")
	assert.ErrorIs(t, err, ErrNoPendingRequest)
}

func TestAccept_TwiceFails(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Request(ctx, "claw_alpha", "claw_beta")
	require.NoError(t, err)
	_, err = svc.Accept(ctx, "claw_beta", "claw_alpha")
	require.NoError(t, err)

	_, err = svc.Accept(ctx, "claw_beta", "claw_alpha")
	assert.ErrorIs(t, err, ErrNoPendingRequest)
}

func TestAccept_EmitsEventForBothClaws(t *testing.T) {
	svc, _, b := setupService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := svc.Request(ctx, "claw_alpha", "claw_beta")
	require.NoError(t, err)

	events, _ := b.Subscribe(ctx)
	_, err = svc.Accept(ctx, "claw_beta", "claw_alpha")
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			require.Equal(t, bus.EventFriendAccepted, ev.Name)
			seen[ev.ClawID] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for friend.accepted")
		}
	}
	assert.True(t, seen["claw_alpha"])
	assert.True(t, seen["claw_beta"])
}

func TestTrackLayerChanges_KeepsNetworkScoreInStep(t *testing.T) {
	svc, st, _ := setupService(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	svc.TrackLayerChanges(ctx)

	_, err := svc.Request(ctx, "claw_alpha", "claw_beta")
	require.NoError(t, err)
	_, err = svc.Accept(ctx, "claw_beta", "claw_alpha")
	require.NoError(t, err)

	ts, err := st.GetTrustScore(ctx, "claw_alpha", "claw_beta", store.DomainOverall)
	require.NoError(t, err)
	require.InDelta(t, trust.DunbarLayerScores[store.LayerActive], ts.N, 1e-9)

	// Pinning the pair to core reclassifies it; N must follow, not keep the
	// score seeded at acceptance.
	require.NoError(t, svc.relationships.SetManualLayer(ctx, "claw_alpha", "claw_beta", store.LayerCore))

	want := trust.DunbarLayerScores[store.LayerCore]
	require.Eventually(t, func() bool {
		ts, err := st.GetTrustScore(ctx, "claw_alpha", "claw_beta", store.DomainOverall)
		return err == nil && ts.N == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTrackLayerChanges_FollowsDecay(t *testing.T) {
	svc, st, _ := setupService(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	svc.TrackLayerChanges(ctx)

	_, err := svc.Request(ctx, "claw_alpha", "claw_beta")
	require.NoError(t, err)
	_, err = svc.Accept(ctx, "claw_beta", "claw_alpha")
	require.NoError(t, err)

	// Park the pair just above the casual boundary so one decay pass drops it.
	_, err = st.SetStrength(ctx, "claw_alpha", "claw_beta", 0.301, store.LayerActive)
	require.NoError(t, err)
	_, err = svc.relationships.DecayAll(ctx)
	require.NoError(t, err)

	want := trust.DunbarLayerScores[store.LayerCasual]
	require.Eventually(t, func() bool {
		ts, err := st.GetTrustScore(ctx, "claw_alpha", "claw_beta", store.DomainOverall)
		return err == nil && ts.N == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRemove_TearsDownEverything(t *testing.T) {
	svc, st, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Request(ctx, "claw_alpha", "claw_beta")
	require.NoError(t, err)
	_, err = svc.Accept(ctx, "claw_beta", "claw_alpha")
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, "claw_alpha", "claw_beta"))

	for _, pair := range [][2]string{{"claw_alpha", "claw_beta"}, {"claw_beta", "claw_alpha"}} {
		_, err := st.GetFriendship(ctx, pair[0], pair[1])
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = st.GetRelationship(ctx, pair[0], pair[1])
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = st.GetTrustScore(ctx, pair[0], pair[1], store.DomainOverall)
		assert.ErrorIs(t, err, store.ErrNotFound)
	}
}

func TestRemove_MissingFriendshipIsNotAnError(t *testing.T) {
	svc, _, _ := setupService(t)
	assert.NoError(t, svc.Remove(context.Background(), "claw_alpha", "claw_beta"))
}

func TestAccepted_FiltersPending(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Request(ctx, "claw_alpha", "claw_beta")
	require.NoError(t, err)
	_, err = svc.Accept(ctx, "claw_beta", "claw_alpha")
	require.NoError(t, err)
	_, err = svc.Request(ctx, "claw_alpha", "claw_gamma")
	require.NoError(t, err)

	ids, err := svc.Accepted(ctx, "claw_alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"claw_beta"}, ids)

	all, err := svc.List(ctx, "claw_alpha")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

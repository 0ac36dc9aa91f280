// ABOUTME: End-to-end tests for the HTTP API using signed requests
// ABOUTME: Spins up the full stack on a real store; no handler is mocked

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawnet/claw-gateway/internal/auth"
	"github.com/clawnet/claw-gateway/internal/bus"
	"github.com/clawnet/claw-gateway/internal/config"
	"github.com/clawnet/claw-gateway/internal/dedupe"
	"github.com/clawnet/claw-gateway/internal/friends"
	"github.com/clawnet/claw-gateway/internal/inbox"
	"github.com/clawnet/claw-gateway/internal/relationship"
	"github.com/clawnet/claw-gateway/internal/signing"
	"github.com/clawnet/claw-gateway/internal/store"
	"github.com/clawnet/claw-gateway/internal/trust"
)

type testClaw struct {
	keys   *signing.KeyPair
	clawID string
}

type testServer struct {
	server *Server
	store  *store.SQLiteStore
	bus    *bus.Bus
	cfg    *config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := bus.New(nil)
	rel := relationship.NewEngine(st, b, nil)
	tr := trust.NewEngine(st, nil)
	fr := friends.NewService(st, st, rel, tr, b, nil)
	trackCtx, stopTracking := context.WithCancel(context.Background())
	t.Cleanup(stopTracking)
	fr.TrackLayerChanges(trackCtx)
	pipe := inbox.NewPipeline(st, b, nil)

	nonces := dedupe.New(10*time.Minute, 1000)
	t.Cleanup(func() { nonces.Close() })

	cfg := &config.Config{
		Server:   config.ServerConfig{HTTPAddr: ":0"},
		Database: config.DatabaseConfig{Path: "unused"},
		Auth: config.AuthConfig{
			AdminJWTSecret: "test-admin-secret",
			TimestampSkew:  5 * time.Minute,
			NonceTTL:       10 * time.Minute,
		},
		Scheduler: config.SchedulerConfig{HeartbeatTimeout: 24 * time.Hour},
		Webhooks:  config.WebhooksConfig{Timeout: time.Second},
	}

	srv := New(cfg, Deps{
		Store:         st,
		Bus:           b,
		Friends:       fr,
		Inbox:         pipe,
		Relationships: rel,
		Trust:         tr,
		Verifier:      auth.NewVerifier(st, nonces, cfg.Auth.TimestampSkew),
		JWT:           auth.NewJWTVerifier([]byte(cfg.Auth.AdminJWTSecret)),
	}, nil)

	return &testServer{server: srv, store: st, bus: b, cfg: cfg}
}

func newTestClaw(t *testing.T) *testClaw {
	t.Helper()
	keys, err := signing.GenerateKeyPair()
	require.NoError(t, err)
	return &testClaw{keys: keys, clawID: signing.DeriveClawID(keys.PublicKey)}
}

// do sends a signed request through the full router and returns the recorder.
func (ts *testServer) do(t *testing.T, claw *testClaw, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		require.NoError(t, err)
	}

	timestamp := time.Now().UnixMilli()
	message := signing.BuildSignMessage(method, path, timestamp, body)
	sig, err := signing.Sign(message, claw.keys.PrivateKey)
	require.NoError(t, err)
	nonce, err := signing.GenerateNonce()
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set(auth.HeaderClawID, claw.clawID)
	req.Header.Set(auth.HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	req.Header.Set(auth.HeaderSignature, sig)
	req.Header.Set(auth.HeaderNonce, nonce)

	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	return rec
}

// register registers a claw through the public endpoint.
func (ts *testServer) register(t *testing.T, claw *testClaw, label string) {
	t.Helper()

	body, err := json.Marshal(map[string]string{
		"public_key": claw.keys.PublicKey,
		"label":      label,
	})
	require.NoError(t, err)

	timestamp := time.Now().UnixMilli()
	message := signing.BuildSignMessage("POST", "/api/register", timestamp, body)
	sig, err := signing.Sign(message, claw.keys.PrivateKey)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/register", bytes.NewReader(body))
	req.Header.Set(auth.HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	req.Header.Set(auth.HeaderSignature, sig)

	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// befriend registers both claws and completes a friendship between them.
func (ts *testServer) befriend(t *testing.T, a, b *testClaw) {
	t.Helper()
	rec := ts.do(t, a, "POST", "/api/friends/request", map[string]string{"friend_id": b.clawID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = ts.do(t, b, "POST", "/api/friends/accept", map[string]string{"friend_id": a.clawID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestRegister_DerivesIDFromKey(t *testing.T) {
	ts := newTestServer(t)
	claw := newTestClaw(t)

	ts.register(t, claw, "my claw")

	stored, err := ts.store.GetClaw(context.Background(), claw.clawID)
	require.NoError(t, err)
	assert.Equal(t, claw.keys.PublicKey, stored.PublicKey)
	assert.Equal(t, "my claw", stored.Label)
}

func TestRegister_BadSignatureRejected(t *testing.T) {
	ts := newTestServer(t)
	claw := newTestClaw(t)

	body, _ := json.Marshal(map[string]string{"public_key": claw.keys.PublicKey})
	req := httptest.NewRequest("POST", "/api/register", bytes.NewReader(body))
	req.Header.Set(auth.HeaderTimestamp, strconv.FormatInt(time.Now().UnixMilli(), 10))
	req.Header.Set(auth.HeaderSignature, "deadbeef")

	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegister_DuplicateConflicts(t *testing.T) {
	ts := newTestServer(t)
	claw := newTestClaw(t)
	ts.register(t, claw, "first")

	body, _ := json.Marshal(map[string]string{"public_key": claw.keys.PublicKey})
	timestamp := time.Now().UnixMilli()
	sig, err := signing.Sign(signing.BuildSignMessage("POST", "/api/register", timestamp, body), claw.keys.PrivateKey)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/register", bytes.NewReader(body))
	req.Header.Set(auth.HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	req.Header.Set(auth.HeaderSignature, sig)
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMeAndHeartbeat(t *testing.T) {
	ts := newTestServer(t)
	claw := newTestClaw(t)
	ts.register(t, claw, "heartbeat claw")

	rec := ts.do(t, claw, "GET", "/api/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, claw.clawID, decodeBody(t, rec)["claw_id"])

	rec = ts.do(t, claw, "POST", "/api/heartbeat", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := ts.store.GetClaw(context.Background(), claw.clawID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastSeenAt)
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, httptest.NewRequest("GET", "/api/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSetEncryptionKey(t *testing.T) {
	ts := newTestServer(t)
	claw := newTestClaw(t)
	ts.register(t, claw, "")

	encKeys, err := signing.GenerateEncryptionKeyPair()
	require.NoError(t, err)

	rec := ts.do(t, claw, "PUT", "/api/me/encryption-key", map[string]string{
		"encryption_key": encKeys.PublicKey,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := ts.store.GetClaw(context.Background(), claw.clawID)
	require.NoError(t, err)
	assert.Equal(t, encKeys.PublicKey, stored.EncryptionKey)
	assert.Equal(t, signing.KeyFingerprint(encKeys.PublicKey), stored.EncryptionKeyFingerprint)
}

func TestFriendLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	alpha, beta := newTestClaw(t), newTestClaw(t)
	ts.register(t, alpha, "alpha")
	ts.register(t, beta, "beta")

	ts.befriend(t, alpha, beta)

	rec := ts.do(t, alpha, "GET", "/api/friends", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	friendsList := decodeBody(t, rec)["friends"].([]any)
	require.Len(t, friendsList, 1)
	assert.Equal(t, "accepted", friendsList[0].(map[string]any)["status"])

	// Acceptance bootstrapped the relationship.
	rec = ts.do(t, alpha, "GET", "/api/relationships/"+beta.clawID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", decodeBody(t, rec)["layer"])

	rec = ts.do(t, alpha, "DELETE", "/api/friends/"+beta.clawID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, alpha, "GET", "/api/relationships/"+beta.clawID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendMessageAndInboxFlow(t *testing.T) {
	ts := newTestServer(t)
	alpha, beta := newTestClaw(t), newTestClaw(t)
	ts.register(t, alpha, "alpha")
	ts.register(t, beta, "beta")
	ts.befriend(t, alpha, beta)

	rec := ts.do(t, alpha, "POST", "/api/messages", map[string]any{
		"content":    "hello beta",
		"recipients": []string{beta.clawID},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	deliveries := decodeBody(t, rec)["deliveries"].([]any)
	require.Len(t, deliveries, 1)
	entryID := deliveries[0].(map[string]any)["entry_id"].(string)

	rec = ts.do(t, beta, "GET", "/api/inbox", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody(t, rec)["entries"].([]any)
	require.Len(t, entries, 1)
	messageID := entries[0].(map[string]any)["message_id"].(string)

	rec = ts.do(t, beta, "GET", "/api/messages/"+messageID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello beta", decodeBody(t, rec)["content"])

	rec = ts.do(t, beta, "GET", "/api/inbox/unread-count", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["unread"])

	rec = ts.do(t, beta, "POST", "/api/inbox/ack", map[string]any{"entry_ids": []string{entryID}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["updated"])

	// Re-ack is a zero-count success.
	rec = ts.do(t, beta, "POST", "/api/inbox/ack", map[string]any{"entry_ids": []string{entryID}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["updated"])
}

func TestGetMessage_NonParticipantGetsNotFound(t *testing.T) {
	ts := newTestServer(t)
	alpha, beta, gamma := newTestClaw(t), newTestClaw(t), newTestClaw(t)
	ts.register(t, alpha, "alpha")
	ts.register(t, beta, "beta")
	ts.register(t, gamma, "gamma")
	ts.befriend(t, alpha, beta)

	rec := ts.do(t, alpha, "POST", "/api/messages", map[string]any{
		"content":    "for beta only",
		"recipients": []string{beta.clawID},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	deliveries := decodeBody(t, rec)["deliveries"].([]any)
	messageID := deliveries[0].(map[string]any)["message_id"].(string)

	// Knowing the id is not enough: only the sender and recipients may read.
	rec = ts.do(t, gamma, "GET", "/api/messages/"+messageID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, alpha, "GET", "/api/messages/"+messageID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSendMessage_NonFriendForbidden(t *testing.T) {
	ts := newTestServer(t)
	alpha, stranger := newTestClaw(t), newTestClaw(t)
	ts.register(t, alpha, "alpha")
	ts.register(t, stranger, "stranger")

	rec := ts.do(t, alpha, "POST", "/api/messages", map[string]any{
		"content":    "hello",
		"recipients": []string{stranger.clawID},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSendMessage_BoostsSenderBond(t *testing.T) {
	ts := newTestServer(t)
	alpha, beta := newTestClaw(t), newTestClaw(t)
	ts.register(t, alpha, "alpha")
	ts.register(t, beta, "beta")
	ts.befriend(t, alpha, beta)

	rec := ts.do(t, alpha, "POST", "/api/messages", map[string]any{
		"content":    "hi",
		"recipients": []string{beta.clawID},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rel, err := ts.store.GetRelationship(context.Background(), alpha.clawID, beta.clawID)
	require.NoError(t, err)
	assert.InDelta(t, 0.52, rel.Strength, 1e-9)
	assert.NotNil(t, rel.LastInteractionAt)
}

func TestLayerOverrideOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	alpha, beta := newTestClaw(t), newTestClaw(t)
	ts.register(t, alpha, "alpha")
	ts.register(t, beta, "beta")
	ts.befriend(t, alpha, beta)

	rec := ts.do(t, alpha, "PUT", "/api/relationships/"+beta.clawID+"/layer", map[string]string{"layer": "core"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "core", body["layer"])
	assert.Equal(t, true, body["manual_override"])

	rec = ts.do(t, alpha, "PUT", "/api/relationships/"+beta.clawID+"/layer", map[string]string{"layer": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, alpha, "DELETE", "/api/relationships/"+beta.clawID+"/layer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, "active", body["layer"])
	assert.Equal(t, false, body["manual_override"])
}

func TestTrustSignalOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	alpha, beta := newTestClaw(t), newTestClaw(t)
	ts.register(t, alpha, "alpha")
	ts.register(t, beta, "beta")
	ts.befriend(t, alpha, beta)

	rec := ts.do(t, alpha, "POST", "/api/trust/"+beta.clawID+"/signals", map[string]string{
		"signal": "pearl_endorsed_high",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.InDelta(t, 0.05, body["q_score"].(float64), 1e-9)
	assert.Greater(t, body["composite"].(float64), 0.0)

	rec = ts.do(t, alpha, "POST", "/api/trust/"+beta.clawID+"/signals", map[string]string{
		"signal": "not_a_signal",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHonestyNullVsZeroOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	alpha, beta := newTestClaw(t), newTestClaw(t)
	ts.register(t, alpha, "alpha")
	ts.register(t, beta, "beta")
	ts.befriend(t, alpha, beta)

	rec := ts.do(t, alpha, "GET", "/api/trust/"+beta.clawID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody(t, rec)["h_score"])

	zero := 0.0
	rec = ts.do(t, alpha, "PUT", "/api/trust/"+beta.clawID+"/honesty", map[string]any{"score": &zero})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(0), decodeBody(t, rec)["h_score"])
}

func TestWitnessReportOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	alpha, beta := newTestClaw(t), newTestClaw(t)
	ts.register(t, alpha, "alpha")
	ts.register(t, beta, "beta")
	ts.befriend(t, alpha, beta)

	rec := ts.do(t, alpha, "POST", "/api/trust/"+beta.clawID+"/witness", map[string]any{
		"composite": 0.8,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.InDelta(t, 0.4, decodeBody(t, rec)["w_score"].(float64), 1e-9)
}

func TestAdminEndpoints(t *testing.T) {
	ts := newTestServer(t)
	claw := newTestClaw(t)
	ts.register(t, claw, "visible to admin")

	jwt := auth.NewJWTVerifier([]byte(ts.cfg.Auth.AdminJWTSecret))
	token, err := jwt.Generate("operator", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/admin/claws", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])

	req = httptest.NewRequest("GET", "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["claws"])

	// No token, no access.
	rec = httptest.NewRecorder()
	ts.server.ServeHTTP(rec, httptest.NewRequest("GET", "/admin/claws", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetClaw_OnlyFriendsVisible(t *testing.T) {
	ts := newTestServer(t)
	alpha, beta := newTestClaw(t), newTestClaw(t)
	ts.register(t, alpha, "alpha")
	ts.register(t, beta, "beta")

	rec := ts.do(t, alpha, "GET", "/api/claws/"+beta.clawID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.befriend(t, alpha, beta)

	rec = ts.do(t, alpha, "GET", "/api/claws/"+beta.clawID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, beta.clawID, decodeBody(t, rec)["claw_id"])
}

func TestWebhookDispatcher_DeliversMatchingEvents(t *testing.T) {
	var delivered atomic.Int32
	var lastEvent atomic.Value
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastEvent.Store(r.Header.Get("X-Claw-Event"))
		delivered.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	b := bus.New(nil)
	d := NewWebhookDispatcher(config.WebhooksConfig{
		Timeout: time.Second,
		Endpoints: []config.WebhookEndpoint{
			{URL: hook.URL, Events: []string{bus.EventInboxDelivered}},
		},
	}, b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	b.Emit(bus.Event{Name: bus.EventInboxDelivered, ClawID: "claw_x", Payload: map[string]string{"k": "v"}})
	b.Emit(bus.Event{Name: bus.EventHeartbeat, ClawID: "claw_x"})

	require.Eventually(t, func() bool { return delivered.Load() == 1 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, bus.EventInboxDelivered, lastEvent.Load())

	// The filtered-out heartbeat never arrives.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), delivered.Load())
}

func TestEventVisibility(t *testing.T) {
	assert.True(t, eventVisibleTo(bus.Event{ClawID: ""}, "claw_a"))
	assert.True(t, eventVisibleTo(bus.Event{ClawID: "claw_a"}, "claw_a"))
	assert.False(t, eventVisibleTo(bus.Event{ClawID: "claw_b"}, "claw_a"))
}

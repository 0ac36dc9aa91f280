// ABOUTME: Signature verification for authenticating claw requests
// ABOUTME: Checks timestamp skew, nonce replay, key ownership, and the ed25519 signature

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clawnet/claw-gateway/internal/dedupe"
	"github.com/clawnet/claw-gateway/internal/signing"
	"github.com/clawnet/claw-gateway/internal/store"
)

// Verification errors
var (
	ErrMissingHeaders   = errors.New("missing authentication headers")
	ErrUnknownClaw      = errors.New("unknown claw")
	ErrTimestampSkew    = errors.New("timestamp outside allowed skew")
	ErrNonceReplayed    = errors.New("nonce already used")
	ErrKeyMismatch      = errors.New("claw id does not match public key")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Request carries the authentication material extracted from one HTTP request.
type Request struct {
	ClawID      string
	TimestampMs int64
	Signature   string
	Nonce       string
	Method      string
	Path        string
	Body        []byte
}

// ClawLookup resolves registered claws for verification.
type ClawLookup interface {
	GetClaw(ctx context.Context, id string) (*store.Claw, error)
}

// Verifier authenticates signed claw requests.
type Verifier struct {
	claws  ClawLookup
	nonces *dedupe.Cache
	skew   time.Duration
}

// NewVerifier creates a request verifier. The nonce cache may be nil, which
// disables replay detection (tests only).
func NewVerifier(claws ClawLookup, nonces *dedupe.Cache, skew time.Duration) *Verifier {
	return &Verifier{claws: claws, nonces: nonces, skew: skew}
}

// Verify authenticates one request and returns the caller's claw id.
//
// Checks run cheapest first: header presence, timestamp skew, nonce replay,
// then the key lookup and signature. The claw id must re-derive from the
// stored public key, so a stolen id cannot be paired with a different key.
func (v *Verifier) Verify(ctx context.Context, req *Request) (string, error) {
	if req.ClawID == "" || req.Signature == "" || req.TimestampMs == 0 {
		return "", ErrMissingHeaders
	}

	now := time.Now().UnixMilli()
	if diff := now - req.TimestampMs; diff > v.skew.Milliseconds() || diff < -v.skew.Milliseconds() {
		return "", fmt.Errorf("%w: %dms drift", ErrTimestampSkew, now-req.TimestampMs)
	}

	// Replay protection is mandatory when a nonce cache is configured. A
	// caller must not be able to opt out by omitting the header, or a
	// captured request could be replayed for the whole skew window.
	if v.nonces != nil {
		if req.Nonce == "" {
			return "", ErrMissingHeaders
		}
		if v.nonces.CheckAndMark(req.ClawID + ":" + req.Nonce) {
			return "", ErrNonceReplayed
		}
	}

	claw, err := v.claws.GetClaw(ctx, req.ClawID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrUnknownClaw
		}
		return "", fmt.Errorf("looking up claw: %w", err)
	}

	if signing.DeriveClawID(claw.PublicKey) != req.ClawID {
		return "", ErrKeyMismatch
	}

	message := signing.BuildSignMessage(req.Method, req.Path, req.TimestampMs, req.Body)
	if !signing.Verify(req.Signature, message, claw.PublicKey) {
		return "", ErrInvalidSignature
	}

	return req.ClawID, nil
}

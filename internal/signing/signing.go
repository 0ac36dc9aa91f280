// ABOUTME: Canonical request-signing protocol shared by the gateway, CLI, and agents
// ABOUTME: Ed25519 sign/verify over METHOD|PATH|TIMESTAMP|SHA256(body) plus claw-id derivation

package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/curve25519"
)

// ClawIDPrefix is prepended to the truncated public-key hash to form a claw id.
const ClawIDPrefix = "claw_"

// fingerprintLen is the number of hex characters kept from a SHA-256 digest
// for claw ids and key fingerprints.
const fingerprintLen = 16

// nonceSize is the number of random bytes in a request nonce.
const nonceSize = 16

// KeyPair holds a hex-encoded ed25519 signing key pair. The private key is the
// full 64-byte ed25519 private key (seed || public key).
type KeyPair struct {
	PublicKey  string
	PrivateKey string
}

// GenerateKeyPair produces a fresh ed25519 key pair, hex-encoded.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating ed25519 key: %w", err)
	}
	return &KeyPair{
		PublicKey:  hex.EncodeToString(pub),
		PrivateKey: hex.EncodeToString(priv),
	}, nil
}

// GenerateEncryptionKeyPair produces a fresh x25519 key pair for end-to-end
// payload encryption. These keys live in a separate keyspace from signing
// keys; only KeyFingerprint is applied to them server-side.
func GenerateEncryptionKeyPair() (*KeyPair, error) {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return nil, fmt.Errorf("generating x25519 key: %w", err)
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("deriving x25519 public key: %w", err)
	}
	return &KeyPair{
		PublicKey:  hex.EncodeToString(pub),
		PrivateKey: hex.EncodeToString(priv[:]),
	}, nil
}

// BuildSignMessage constructs the canonical string that is signed for request
// authentication:
//
//	{METHOD_UPPER}|{PATH_NO_QUERY}|{TIMESTAMP_MS}|{SHA256_HEX_OF_BODY}
//
// A nil or empty body hashes as sha256("") so that bodyless requests produce
// a stable digest. This format is a cross-client contract: the gateway, the
// CLI, and browser clients must all produce byte-identical output.
func BuildSignMessage(method, path string, timestampMs int64, body []byte) string {
	cleanPath := path
	if i := strings.Index(cleanPath, "?"); i >= 0 {
		cleanPath = cleanPath[:i]
	}
	digest := sha256.Sum256(body)
	return strings.ToUpper(method) + "|" + cleanPath + "|" +
		strconv.FormatInt(timestampMs, 10) + "|" + hex.EncodeToString(digest[:])
}

// Sign signs a message with a hex-encoded ed25519 private key and returns the
// hex-encoded signature. Both 64-byte private keys and 32-byte seeds are
// accepted. A malformed key is an error; Sign never silently produces a
// signature from bad key material.
func Sign(message, privateKeyHex string) (string, error) {
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return "", fmt.Errorf("invalid private key hex: %w", err)
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	default:
		return "", fmt.Errorf("invalid private key length: %d bytes", len(raw))
	}

	sig := ed25519.Sign(priv, []byte(message))
	return hex.EncodeToString(sig), nil
}

// Verify checks an ed25519 signature over a message against a hex-encoded
// public key. It is the single source of truth for request authentication and
// always returns a bare boolean: malformed signatures, malformed keys, and
// parse failures all verify as false, never as an error or panic. Callers
// cannot distinguish "bad signature" from "bad key", which is deliberate.
func Verify(signatureHex, message, publicKeyHex string) bool {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), []byte(message), sig)
}

// DeriveClawID derives the stable claw id for a hex-encoded signing public
// key: "claw_" + first 16 hex chars of sha256(publicKeyHex). The id is a pure
// function of the key; it is cached in storage but never stored independently
// of its derivation.
func DeriveClawID(publicKeyHex string) string {
	digest := sha256.Sum256([]byte(publicKeyHex))
	return ClawIDPrefix + hex.EncodeToString(digest[:])[:fingerprintLen]
}

// KeyFingerprint returns the first 16 hex chars of sha256(keyHex). Used to
// detect rotation of a claw's x25519 encryption key without storing the key
// comparison logic at every call site.
func KeyFingerprint(keyHex string) string {
	digest := sha256.Sum256([]byte(keyHex))
	return hex.EncodeToString(digest[:])[:fingerprintLen]
}

// GenerateNonce returns a 16-byte random nonce, hex-encoded. Uniqueness is a
// statistical property; replay rejection within the timestamp window is
// enforced by the verifier's nonce cache.
func GenerateNonce() (string, error) {
	buf := make([]byte, nonceSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

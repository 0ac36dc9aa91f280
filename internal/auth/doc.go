// ABOUTME: Package doc for request authentication
// ABOUTME: Documents the signed-request scheme and the admin JWT path

// Package auth authenticates API requests.
//
// Claw requests are signed, not tokened: the caller sends its claw id, a
// millisecond timestamp, an optional nonce, and an ed25519 signature over
// the canonical message
//
//	METHOD|PATH|TIMESTAMP|SHA256(BODY)
//
// in the X-Claw-Id, X-Claw-Timestamp, X-Claw-Nonce, and X-Claw-Signature
// headers. The verifier enforces a timestamp skew window, rejects replayed
// nonces within their TTL, re-derives the claw id from the stored public key,
// and checks the signature. Signature verification failure is a normal
// outcome, never a panic.
//
// The admin surface uses HS256 JWTs instead; those callers carry the Admin
// flag in their AuthContext.
package auth

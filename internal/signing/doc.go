// Package signing implements the claw request-signing protocol.
//
// Every authenticated request carries an ed25519 signature over the canonical
// string:
//
//	{METHOD_UPPER}|{PATH_NO_QUERY}|{TIMESTAMP_MS}|{SHA256_HEX_OF_BODY}
//
// The same package is consumed by the gateway (verification), the claw CLI
// (signing), and any other client implementation. There is exactly one copy of
// the canonical-message construction; clients must not reimplement it.
//
// Identity is derived from key material rather than assigned:
//
//	clawID = "claw_" + sha256hex(publicKeyHex)[0:16]
//
// Signing keys (ed25519) and encryption keys (x25519) are distinct keyspaces.
// KeyFingerprint applies to either for rotation detection.
package signing

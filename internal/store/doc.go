// Package store provides persistent storage for claw-gateway using SQLite.
//
// # Architecture
//
// Capability interfaces keep consumers narrow:
//
//   - ClawStore: registered identities and their keys
//   - FriendStore: friendship lifecycle rows
//   - RelationshipStore: per-pair strength records
//   - TrustStore: per-pair, per-domain trust records
//   - InboxStore: messages, inbox entries, sequence counters
//
// SQLiteStore implements all of them in one struct; components are handed the
// interface slice they need, and tests can substitute any slice independently.
//
// # Concurrency
//
// The store relies on SQLite's single-row update atomicity rather than
// application-level locking. Strength decay, interaction touches, and trust
// updates are all single-row writes that commute under last-write-wins.
// Per-recipient sequence allocation (NextSeq) is the one serialized counter:
// a single upsert-returning statement allocates distinct increasing values
// under concurrency.
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicate: insert hit a uniqueness constraint
//
// Methods that return an affected-row count treat missing rows as 0, not as
// an error; the engines decide which operations require existence.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Use NewSQLiteStore(":memory:") in tests.
package store

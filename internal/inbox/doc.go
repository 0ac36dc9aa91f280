// ABOUTME: Package doc for the inbox delivery pipeline
// ABOUTME: Documents the seq contract and at-least-once delivery semantics

// Package inbox fans sent messages out into per-recipient inboxes.
//
// Every delivery is stamped with a strictly increasing per-recipient seq
// allocated by the store. Clients catch up after a disconnect by asking for
// everything above the highest seq they have processed; the pipeline never
// tracks client cursors server-side.
//
// Entries move unread -> read -> acked. Acknowledgment is idempotent and
// terminal: re-acking is a no-op and marking read never demotes an acked
// entry. Acked entries older than the retention window are purged by the
// scheduler.
package inbox

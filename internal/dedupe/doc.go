// Package dedupe provides a time-bounded nonce cache used by request
// authentication to reject replayed signatures within the timestamp window.
package dedupe

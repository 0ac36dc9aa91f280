// ABOUTME: Tests for the nonce replay cache
// ABOUTME: Covers replay detection, TTL expiry, and capacity eviction

package dedupe

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_CheckAndMark(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	assert.False(t, c.CheckAndMark("nonce-1"), "first sight is not a replay")
	assert.True(t, c.CheckAndMark("nonce-1"), "second sight is a replay")
	assert.False(t, c.CheckAndMark("nonce-2"))
}

func TestCache_Expiry(t *testing.T) {
	c := New(20*time.Millisecond, 100)
	defer c.Close()

	assert.False(t, c.CheckAndMark("nonce-1"))
	time.Sleep(30 * time.Millisecond)
	assert.False(t, c.CheckAndMark("nonce-1"), "expired nonce is treated as new")
}

func TestCache_CapacityEviction(t *testing.T) {
	c := New(time.Minute, 3)
	defer c.Close()

	for i := 0; i < 3; i++ {
		c.CheckAndMark(fmt.Sprintf("nonce-%d", i))
	}
	assert.Equal(t, 3, c.Len())

	// Fourth insert evicts the oldest.
	c.CheckAndMark("nonce-3")
	assert.Equal(t, 3, c.Len())
	assert.False(t, c.CheckAndMark("nonce-0"), "evicted nonce no longer counts as seen")
}

func TestCache_CloseIdempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	assert.NotPanics(t, func() { c.Close() })
}

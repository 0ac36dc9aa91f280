// ABOUTME: Thread-safe TTL cache for replay protection of request nonces
// ABOUTME: Bounded in size with O(1) oldest-entry eviction via insertion-order list

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry tracks when a nonce was first seen and its position in the eviction order.
type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache tracks nonces seen within a TTL window so that a captured request
// cannot be replayed. Capacity is bounded: when full, the oldest nonce is
// evicted. Evicting a live nonce weakens replay protection to the timestamp
// check alone, so size the cache for peak request volume within one window.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a nonce cache with the given TTL and maximum size. A background
// goroutine sweeps expired entries once a minute; call Close to stop it.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// CheckAndMark atomically checks whether a nonce has been seen within the TTL
// and marks it if not. Returns true if the nonce was already seen (replay),
// false if it is new and now recorded. The check and mark are a single
// critical section so two concurrent requests with the same nonce cannot both
// pass.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[key]; ok {
		if time.Since(e.seenAt) < c.ttl {
			return true
		}
		// Expired entry for the same nonce: refresh in place.
		e.seenAt = time.Now()
		c.order.MoveToBack(e.element)
		return false
	}

	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.seen, oldest)
		}
	}

	c.seen[key] = &entry{
		seenAt:  time.Now(),
		element: c.order.PushBack(key),
	}
	return false
}

// Len returns the number of nonces currently tracked, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// sweep removes expired entries once a minute until Close is called.
func (c *Cache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, e := range c.seen {
				if now.Sub(e.seenAt) > c.ttl {
					c.order.Remove(e.element)
					delete(c.seen, key)
				}
			}
			c.mu.Unlock()
		case <-c.done:
			return
		}
	}
}

// Close stops the background sweeper. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
}

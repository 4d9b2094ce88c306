// cache.go implements the recent-item cache used for deduplication.
// It keeps every clipboard item the engine has accepted or sent, keyed by item
// id, so that re-delivered items can be dropped before they reach the clipboard.
//
// Purpose:
//
// Items can arrive more than once: a relay may retry, several peers may forward
// the same update, and our own sends can echo back. The cache answers "have we
// seen this id recently?" in O(1).
//
// Retention:
//
// The cache is bounded by age, not by count. Entries live until Sweep removes
// every item older than the retention window. Nothing inside the engine calls
// Sweep; the surrounding application owns a Sweeper that does, and without one
// the cache grows for the life of the process.
//
// Thread Safety:
//
// All operations are protected by a mutex. The engine additionally serializes
// its own access under the engine lock, but the cache is safe to share.

package sync

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

// errEmptyItemID is returned by Put for items without an identity.
var errEmptyItemID = errors.New("clipboard item has no id")

// itemCache implements a thread-safe, time-bounded cache of clipboard items.
type itemCache struct {
	items map[string]protocol.ClipboardItem
	mu    sync.Mutex
}

// newItemCache creates an empty cache.
func newItemCache() *itemCache {
	return &itemCache{
		items: make(map[string]protocol.ClipboardItem),
	}
}

// Put stores an item, replacing any entry with the same id.
func (c *itemCache) Put(item protocol.ClipboardItem) error {
	if item.ID == "" {
		return errEmptyItemID
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[item.ID] = item
	return nil
}

// Has reports whether an item with the given id is cached.
func (c *itemCache) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, exists := c.items[id]
	return exists
}

// Get returns the cached item with the given id.
func (c *itemCache) Get(id string) (protocol.ClipboardItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[id]
	return item, exists
}

// Sweep removes every item whose age at now exceeds maxAge and returns the
// number removed. Items exactly maxAge old are kept.
func (c *itemCache) Sweep(maxAge time.Duration, now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := now.UnixMilli()
	limit := maxAge.Milliseconds()

	removed := 0
	for id, item := range c.items {
		if cutoff-item.Timestamp > limit {
			delete(c.items, id)
			removed++
		}
	}
	return removed
}

// Clear removes all entries from the cache
func (c *itemCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]protocol.ClipboardItem)
}

// Len returns the number of items in the cache
func (c *itemCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.items)
}

// Items returns every cached item, newest first. Ties are broken by id so the
// order is stable.
func (c *itemCache) Items() []protocol.ClipboardItem {
	c.mu.Lock()
	result := make([]protocol.ClipboardItem, 0, len(c.items))
	for _, item := range c.items {
		result = append(result, item)
	}
	c.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp > result[j].Timestamp
		}
		return result[i].ID < result[j].ID
	})
	return result
}

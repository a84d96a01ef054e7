// Package cache provides the TTL+LRU response cache for correction-service
// calls. It is the only mutable structure shared across concurrent
// orchestrations, so it must be safe for concurrent use.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"
)

// Key identifies one correction call: deployment identity, the sorted field
// set, the document fingerprint, and a sanitized snapshot of current values.
type Key struct {
	Deployment  string
	Fields      []string
	Fingerprint string
	Snapshot    map[string]any
}

// Hash renders the key as a stable hex digest. Field order and snapshot map
// order do not affect the result.
func (k Key) Hash() string {
	fields := make([]string, len(k.Fields))
	copy(fields, k.Fields)
	sort.Strings(fields)

	snap, _ := json.Marshal(sortedSnapshot(k.Snapshot))

	h := sha256.New()
	h.Write([]byte(k.Deployment))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(fields, ",")))
	h.Write([]byte{0})
	h.Write([]byte(k.Fingerprint))
	h.Write([]byte{0})
	h.Write(snap)
	return hex.EncodeToString(h.Sum(nil))
}

func sortedSnapshot(m map[string]any) []any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		out = append(out, k, m[k])
	}
	return out
}

type entry struct {
	key        string
	reply      string
	insertedAt time.Time
}

// ResponseCache is a capacity-bounded LRU with per-entry TTL. Entries are
// immutable once written; expiry is checked lazily on read and eviction is
// O(1) per insert, so no lookup ever waits behind a scan.
type ResponseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	order   *list.List // front = most recently used
	entries map[string]*list.Element
	now     func() time.Time
}

// New creates a cache holding up to maxSize entries, each valid for ttl.
func New(ttl time.Duration, maxSize int) *ResponseCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if maxSize <= 0 {
		maxSize = 512
	}
	return &ResponseCache{
		ttl:     ttl,
		maxSize: maxSize,
		order:   list.New(),
		entries: make(map[string]*list.Element, maxSize),
		now:     time.Now,
	}
}

// Get returns the cached raw reply for k, if present and within TTL.
func (c *ResponseCache) Get(k Key) (string, bool) {
	h := k.Hash()

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[h]
	if !ok {
		return "", false
	}
	e := el.Value.(*entry)
	if c.now().Sub(e.insertedAt) > c.ttl {
		c.order.Remove(el)
		delete(c.entries, h)
		return "", false
	}
	c.order.MoveToFront(el)
	return e.reply, true
}

// Set stores the raw reply under k, evicting the least recently used entry
// when the capacity bound is exceeded.
func (c *ResponseCache) Set(k Key, reply string) {
	h := k.Hash()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[h]; ok {
		// Entries are immutable once written; refresh recency only.
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&entry{key: h, reply: reply, insertedAt: c.now()})
	c.entries[h] = el

	if c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*entry).key)
		}
	}
}

// Len returns the number of live entries, expired or not.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

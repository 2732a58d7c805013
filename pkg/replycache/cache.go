// Package replycache stores the bilingual rendering of every generated reply,
// keyed by the id of the chat message that displays it. Entries are written
// once and never changed.
package replycache

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	// ErrDuplicateKey is returned by Put when the message id already has a reply.
	ErrDuplicateKey = errors.New("reply already cached for message")
	// ErrNotFound is returned by Get for unknown or evicted message ids.
	ErrNotFound = errors.New("no cached reply for message")
)

// Reply holds both renderings. A is the user-language text shown first, B is
// the text in the generation language.
type Reply struct {
	A string
	B string
}

// Cache is safe for concurrent use.
type Cache struct {
	capacity int

	mu      sync.Mutex
	entries *orderedmap.OrderedMap[string, Reply]
}

// New creates a cache holding at most capacity replies; 0 means unbounded.
// When full, the oldest reply is dropped.
func New(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		entries:  orderedmap.New[string, Reply](),
	}
}

// Put stores both variants for messageID.
func (c *Cache) Put(messageID, a, b string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries.Get(messageID); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, messageID)
	}
	c.entries.Set(messageID, Reply{A: a, B: b})

	for c.capacity > 0 && c.entries.Len() > c.capacity {
		oldest := c.entries.Oldest()
		c.entries.Delete(oldest.Key)
		slog.Debug("Cached reply evicted", "message_id", oldest.Key)
	}
	return nil
}

// Get returns the reply cached for messageID.
func (c *Cache) Get(messageID string) (Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.entries.Get(messageID)
	if !ok {
		return Reply{}, fmt.Errorf("%w: %s", ErrNotFound, messageID)
	}
	return r, nil
}

// Len returns the number of cached replies.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

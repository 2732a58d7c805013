// Package conversation keeps the per-conversation history used as generation
// context. History lives in memory only and is lost on restart.
package conversation

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"relaybot/pkg/llm"

	"github.com/golang/groupcache/lru"
)

// ErrInvalidRole is returned by Append for roles other than user and assistant.
var ErrInvalidRole = errors.New("invalid turn role")

// Options bounds the store. Zero values mean unbounded.
type Options struct {
	// MaxTurns caps the stored turns of one conversation; the oldest
	// user/assistant pairs go first. Values below 2 are raised to 2 so the
	// latest pair always survives.
	MaxTurns int
	// MaxConversations caps how many conversations are kept; the least
	// recently used one is forgotten. Conversations with a turn in progress
	// are never forgotten, so the cap may be exceeded until they finish.
	MaxConversations int
}

type conversation struct {
	mu    sync.RWMutex
	turns []llm.Turn
	pins  int // guarded by Store.mu
}

type evictedEntry struct {
	key  lru.Key
	conv *conversation
}

// Store maps conversation ids to their ordered history.
type Store struct {
	system llm.Turn
	opts   Options

	mu      sync.Mutex
	convs   *lru.Cache
	removed evictedEntry // last entry handed to OnEvicted
}

// NewStore creates a store whose ContextFor always starts with systemPrompt.
func NewStore(systemPrompt string, opts Options) *Store {
	if opts.MaxTurns > 0 && opts.MaxTurns < 2 {
		opts.MaxTurns = 2
	}
	s := &Store{
		system: llm.NewSystemTurn(systemPrompt),
		opts:   opts,
		// 容量由 evictLocked 自行控制，才能跳過進行中的對話
		convs: lru.New(0),
	}
	s.convs.OnEvicted = func(key lru.Key, value interface{}) {
		s.removed = evictedEntry{key: key, conv: value.(*conversation)}
	}
	return s
}

// lookup returns an existing conversation without creating or pinning it.
func (s *Store) lookup(id string) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.convs.Get(id); ok {
		return v.(*conversation)
	}
	return nil
}

// acquire 取得或建立 conversation 並釘住，釘住期間不會被淘汰
func (s *Store) acquire(id string) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c *conversation
	if v, ok := s.convs.Get(id); ok {
		c = v.(*conversation)
	} else {
		c = &conversation{}
		s.convs.Add(id, c)
	}
	c.pins++
	s.evictLocked()
	return c
}

func (s *Store) release(c *conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.pins--
	s.evictLocked()
}

// evictLocked forgets least recently used conversations until the cap holds,
// skipping pinned ones. s.mu must be held.
func (s *Store) evictLocked() {
	limit := s.opts.MaxConversations
	if limit <= 0 {
		return
	}

	var pinned []evictedEntry
	for s.convs.Len() > 0 && s.convs.Len()+len(pinned) > limit {
		s.convs.RemoveOldest()
		e := s.removed
		if e.conv.pins > 0 {
			pinned = append(pinned, e)
			continue
		}
		slog.Debug("Conversation evicted", "conversation", e.key)
	}
	for _, e := range pinned {
		s.convs.Add(e.key, e.conv)
	}
	s.removed = evictedEntry{}
}

// Pin keeps a conversation, creating it if needed, from being evicted until
// the returned release function is called. A turn in progress holds a pin so
// its context always contains the user turn it just appended.
func (s *Store) Pin(id string) (release func()) {
	c := s.acquire(id)
	var once sync.Once
	return func() { once.Do(func() { s.release(c) }) }
}

// Append adds one turn to the end of a conversation, creating it on first use.
func (s *Store) Append(id string, role llm.Role, content string) error {
	if role != llm.RoleUser && role != llm.RoleAssistant {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	c := s.acquire(id)
	defer s.release(c)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = append(c.turns, llm.Turn{Role: role, Content: content})
	if s.opts.MaxTurns > 0 && len(c.turns) > s.opts.MaxTurns {
		c.turns = trim(c.turns, s.opts.MaxTurns)
	}
	return nil
}

// trim drops the oldest user/assistant pairs until at most limit turns remain.
// A user turn left without a reply by a failed generation is dropped alone.
// The result never starts with an assistant turn.
func trim(turns []llm.Turn, limit int) []llm.Turn {
	drop := 0
	for len(turns)-drop > limit {
		if drop+1 < len(turns) && turns[drop].Role == llm.RoleUser && turns[drop+1].Role == llm.RoleAssistant {
			drop += 2
		} else {
			drop++
		}
	}
	for drop < len(turns) && turns[drop].Role == llm.RoleAssistant {
		drop++
	}
	kept := make([]llm.Turn, len(turns)-drop)
	copy(kept, turns[drop:])
	return kept
}

// ContextFor returns the system turn followed by the stored history, oldest
// first. The result is a copy the caller may keep.
func (s *Store) ContextFor(id string) []llm.Turn {
	c := s.lookup(id)
	if c == nil {
		return []llm.Turn{s.system}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]llm.Turn, 0, len(c.turns)+1)
	out = append(out, s.system)
	return append(out, c.turns...)
}

// Len returns how many turns are stored for id, excluding the system turn.
func (s *Store) Len(id string) int {
	c := s.lookup(id)
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// Conversations returns how many conversations are currently held.
func (s *Store) Conversations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convs.Len()
}

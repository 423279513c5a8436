// Package convo keeps recent conversation histories in memory so a
// follow-up request can continue a chat by id alone.
package convo

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/linkmind/linkmind/internal/llm"
)

const (
	// DefaultTTL controls how long an idle conversation is retained.
	// An hour comfortably covers a browsing session; anything older is
	// better restarted than resumed against a cold model context.
	DefaultTTL = 60 * time.Minute
	// DefaultCapacity is a safety ceiling to prevent unbounded memory
	// growth in long-running instances. LRU eviction keeps the most
	// recently used conversations within this limit.
	DefaultCapacity = 1000
	// cleanupTick is the interval between background expired-entry sweeps.
	cleanupTick = 30 * time.Second
)

// Conversation is a read-only snapshot of one stored conversation.
type Conversation struct {
	ID       string        `json:"id"`
	Messages []llm.Message `json:"messages"`
	Updated  time.Time     `json:"updated"`
}

type entry struct {
	messages   []llm.Message
	lastAccess time.Time
	listElem   *list.Element
}

// Store is an in-memory conversation store with TTL and capacity
// limits.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*entry
	lru      *list.List
	ttl      time.Duration
	capacity int
	stopCh   chan struct{}
	done     chan struct{}
}

// NewStore creates a store and starts its background cleanup
// goroutine. The caller must call Close to stop it.
func NewStore(ttl time.Duration, capacity int) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{
		entries:  make(map[string]*entry),
		lru:      list.New(),
		ttl:      ttl,
		capacity: capacity,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Close stops the background cleanup goroutine and waits for it to
// finish.
func (s *Store) Close() {
	close(s.stopCh)
	<-s.done
}

func (s *Store) cleanupLoop() {
	defer close(s.done)
	ticker := time.NewTicker(cleanupTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			s.cleanupExpiredLocked(now)
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

// Append adds messages to the conversation, creating it when id is
// empty or unknown, and returns the conversation id.
func (s *Store) Append(id string, msgs ...llm.Message) string {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if ok && now.Sub(e.lastAccess) > s.ttl {
		s.removeLocked(id, e)
		ok = false
	}
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	e.messages = append(e.messages, msgs...)
	e.lastAccess = now
	s.touchLRU(id, e)
	s.evictIfNeededLocked()
	return id
}

// History returns a copy of the conversation's messages. Expired
// conversations read as absent even before the sweep collects them.
func (s *Store) History(id string) ([]llm.Message, bool) {
	if id == "" {
		return nil, false
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	if now.Sub(e.lastAccess) > s.ttl {
		s.removeLocked(id, e)
		return nil, false
	}
	e.lastAccess = now
	s.touchLRU(id, e)

	out := make([]llm.Message, len(e.messages))
	copy(out, e.messages)
	return out, true
}

// Snapshot returns the conversation in its externally served form.
// Unlike History it does not refresh the entry's retention clock;
// inspecting a transcript is not continuing it.
func (s *Store) Snapshot(id string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Conversation{}, false
	}
	if time.Since(e.lastAccess) > s.ttl {
		s.removeLocked(id, e)
		return Conversation{}, false
	}
	msgs := make([]llm.Message, len(e.messages))
	copy(msgs, e.messages)
	return Conversation{ID: id, Messages: msgs, Updated: e.lastAccess}, true
}

// Delete removes a conversation, reporting whether one was present.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	s.removeLocked(id, e)
	return true
}

// Len returns current entry count (for tests).
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// touchLRU moves or inserts an entry's element to the front of the LRU list.
func (s *Store) touchLRU(id string, e *entry) {
	if e.listElem != nil {
		s.lru.MoveToFront(e.listElem)
	} else {
		e.listElem = s.lru.PushFront(id)
	}
}

func (s *Store) removeLocked(id string, e *entry) {
	if e.listElem != nil {
		s.lru.Remove(e.listElem)
		e.listElem = nil
	}
	delete(s.entries, id)
}

func (s *Store) cleanupExpiredLocked(now time.Time) {
	for id, e := range s.entries {
		if now.Sub(e.lastAccess) > s.ttl {
			s.removeLocked(id, e)
		}
	}
}

func (s *Store) evictIfNeededLocked() {
	for len(s.entries) > s.capacity {
		back := s.lru.Back()
		if back == nil {
			return
		}
		id := back.Value.(string)
		s.lru.Remove(back)
		if e, ok := s.entries[id]; ok {
			e.listElem = nil
			delete(s.entries, id)
		}
	}
}

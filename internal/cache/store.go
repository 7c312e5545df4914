// Package cache provides the bounded in-memory TTL store for fetched
// attachments. Capacity is enforced with LRU eviction over a recency list;
// expiry is checked lazily against the entry age on every read.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/mortimer-cra/mcp-atlassian/confluence"
)

type storeEntry struct {
	key        string
	resource   *confluence.Resource
	insertedAt time.Time
}

// Store is a thread-safe fixed-capacity mapping from cache key to fetched
// resource. The size never exceeds the configured capacity, and no entry
// is returned once its age exceeds the TTL.
type Store struct {
	mu        sync.Mutex
	capacity  int
	ttl       time.Duration
	items     map[string]*list.Element
	evictList *list.List
}

// New creates a Store holding at most capacity entries for at most ttl each.
func New(capacity int, ttl time.Duration) *Store {
	return &Store{
		capacity:  capacity,
		ttl:       ttl,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
	}
}

// Get returns the cached resource for key, or false if missing or expired.
// Expired entries are removed on the spot.
func (s *Store) Get(key string) (*confluence.Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return nil, false
	}

	entry := elem.Value.(*storeEntry)
	if time.Since(entry.insertedAt) > s.ttl {
		s.removeElement(elem)
		return nil, false
	}

	s.evictList.MoveToFront(elem)
	return entry.resource, true
}

// Put stores a resource under key. When the store is at capacity an insert
// of a new key evicts exactly one entry: the least recently used, which for
// never-read entries degrades to oldest inserted. The returned flag reports
// whether an eviction happened.
func (s *Store) Put(key string, res *confluence.Resource) (evicted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		s.evictList.MoveToFront(elem)
		entry := elem.Value.(*storeEntry)
		entry.resource = res
		entry.insertedAt = time.Now()
		return false
	}

	if s.evictList.Len() >= s.capacity {
		s.removeOldest()
		evicted = true
	}

	elem := s.evictList.PushFront(&storeEntry{
		key:        key,
		resource:   res,
		insertedAt: time.Now(),
	})
	s.items[key] = elem
	return evicted
}

// Delete removes an entry from the store.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		s.removeElement(elem)
	}
}

// Len returns the number of entries currently stored, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictList.Len()
}

func (s *Store) removeOldest() {
	if elem := s.evictList.Back(); elem != nil {
		s.removeElement(elem)
	}
}

func (s *Store) removeElement(elem *list.Element) {
	s.evictList.Remove(elem)
	entry := elem.Value.(*storeEntry)
	delete(s.items, entry.key)
}

package store

import (
	"errors"
	"sync"
	"time"
)

var _ Store = (*InMemory)(nil)

type entry struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e entry) expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// InMemory is a thread-safe in-memory implementation of Store.
// Expired entries are evicted lazily, on the next Get of the same key.
type InMemory struct {
	mu      sync.RWMutex
	entries map[string]entry
	nowFunc func() time.Time
}

// NewInMemory creates an empty in-memory store
func NewInMemory(opts ...Option) *InMemory {
	o := applyOptions(opts)
	return &InMemory{
		entries: make(map[string]entry),
		nowFunc: o.nowFunc,
	}
}

// Get retrieves a value by key
func (s *InMemory) Get(key string) (string, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}

	if e.expired(s.nowFunc()) {
		s.mu.Lock()
		// Re-check: a concurrent Set may have replaced the entry
		if current, ok := s.entries[key]; ok && current.expired(s.nowFunc()) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return "", ErrNotFound
	}
	return e.Value, nil
}

// Set stores a value until expiresAt
func (s *InMemory) Set(key, value string, expiresAt time.Time) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{Value: value, ExpiresAt: expiresAt}
	return nil
}

// Remove deletes a key
func (s *InMemory) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Len returns the number of entries held, including expired ones not yet evicted
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package lrucache provides a small keyed LRU store used to bound the number
// of per-key states (limiter slots, backlog slots) tracked by middleware.
// Unlike the TTL cache serving search responses, entries here never expire;
// the least recently used one is discarded when the capacity is reached.
package lrucache

import (
	"container/list"
	"fmt"
	"sync"
)

type storeEntry[K comparable, V any] struct {
	key   K
	value V
}

// LRUStore is a fixed-capacity map with LRU displacement.
type LRUStore[K comparable, V any] struct {
	maxEntries int

	mu      sync.Mutex
	lruList *list.List
	entries map[K]*list.Element
}

// New creates a new LRUStore with the provided maximum number of entries.
func New[K comparable, V any](maxEntries int) (*LRUStore[K, V], error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("maxEntries must be greater than 0")
	}
	return &LRUStore[K, V]{
		maxEntries: maxEntries,
		lruList:    list.New(),
		entries:    make(map[K]*list.Element),
	}, nil
}

// Get returns a value from the store by the provided key.
func (s *LRUStore[K, V]) Get(key K) (value V, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(key)
}

// GetOrAdd returns a value from the store by the provided key.
// If the key does not exist, valueProvider is called under the store lock
// and the produced value is added, displacing the least recently used entry
// when the store is full.
func (s *LRUStore[K, V]) GetOrAdd(key K, valueProvider func() V) (value V, exists bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value, exists = s.get(key); exists {
		return value, true
	}

	value = valueProvider()
	s.entries[key] = s.lruList.PushFront(&storeEntry[K, V]{key: key, value: value})
	if len(s.entries) > s.maxEntries {
		s.removeOldest()
	}
	return value, false
}

// Remove removes a value from the store by the provided key.
func (s *LRUStore[K, V]) Remove(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[key]
	if !ok {
		return false
	}
	s.lruList.Remove(elem)
	delete(s.entries, key)
	return true
}

// Purge removes all entries from the store.
func (s *LRUStore[K, V]) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[K]*list.Element)
	s.lruList.Init()
}

// Len returns the number of entries in the store.
func (s *LRUStore[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *LRUStore[K, V]) get(key K) (value V, ok bool) {
	elem, hit := s.entries[key]
	if !hit {
		return value, false
	}
	s.lruList.MoveToFront(elem)
	return elem.Value.(*storeEntry[K, V]).value, true
}

func (s *LRUStore[K, V]) removeOldest() {
	elem := s.lruList.Back()
	if elem == nil {
		return
	}
	s.lruList.Remove(elem)
	delete(s.entries, elem.Value.(*storeEntry[K, V]).key)
}

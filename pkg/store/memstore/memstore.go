// Package memstore provides an in-memory transcript store with push
// notifications. It is the default backend for embedded use and tests.
package memstore

import (
	"context"
	"sync"

	"github.com/voxlane/parley/pkg/store"
)

// Store is a map-backed transcript store. It implements both [store.Store]
// and [store.Subscriber], so monitors observing it take the push path.
//
// All methods are safe for concurrent use. Subscription callbacks are invoked
// synchronously from Set, in registration order, after the value is stored.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
	subs   map[string]map[int]func(string)
	nextID int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		values: make(map[string]string),
		subs:   make(map[string]map[int]func(string)),
	}
}

// Get implements [store.Store]. Missing keys return ("", nil).
func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key], nil
}

// Set implements [store.Store] and notifies subscribers of the new value.
// Rewriting the stored value with an identical one is a no-op for
// subscribers: callbacks fire only when the value actually changes.
func (s *Store) Set(_ context.Context, key string, value string) error {
	s.mu.Lock()
	if prev, ok := s.values[key]; ok && prev == value {
		s.mu.Unlock()
		return nil
	}
	s.values[key] = value

	// Snapshot callbacks in registration order so they can be invoked
	// outside the lock (a callback may call back into the store).
	var fns []func(string)
	if byID := s.subs[key]; len(byID) > 0 {
		ids := make([]int, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		// IDs are assigned monotonically, so sorting them restores
		// registration order.
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				if ids[j] < ids[i] {
					ids[i], ids[j] = ids[j], ids[i]
				}
			}
		}
		for _, id := range ids {
			fns = append(fns, byID[id])
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(value)
	}
	return nil
}

// Subscribe implements [store.Subscriber].
func (s *Store) Subscribe(key string, fn func(value string)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs[key] == nil {
		s.subs[key] = make(map[int]func(string))
	}
	id := s.nextID
	s.nextID++
	s.subs[key][id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[key], id)
	}, nil
}

var (
	_ store.Store      = (*Store)(nil)
	_ store.Subscriber = (*Store)(nil)
)

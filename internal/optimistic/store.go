// Package optimistic implements the shared insert/confirm/rollback pattern
// used by every dashboard feature that applies a local speculative change
// before the server confirms it. Features differ only in their record type,
// key extraction and supersede rule; the four-state shape (pending,
// confirmed, failed, superseded) is identical and lives here once.
package optimistic

import "sync"

// Config parametrizes a Store for one feature.
type Config[T any] struct {
	// Key extracts the record id. For optimistic records this is the
	// temporary client-generated id until Confirm swaps it out.
	Key func(T) string

	// Supersede decides whether an incoming remote record replaces an
	// existing local record with the same key. Nil means duplicates are
	// dropped and the local copy wins.
	Supersede func(local, remote T) bool
}

// Store holds a feature's visible, ordered record list plus the set of
// outstanding optimistic inserts. Every inserted record must eventually be
// confirmed, failed, or superseded by a remote echo — exactly one of the
// three — so the list never shows both a temporary and a permanent copy.
type Store[T any] struct {
	cfg Config[T]

	mu      sync.Mutex
	order   []string
	items   map[string]T
	pending map[string]struct{}
}

func New[T any](cfg Config[T]) *Store[T] {
	if cfg.Key == nil {
		panic("optimistic: Config.Key is required")
	}
	return &Store[T]{
		cfg:     cfg,
		items:   make(map[string]T),
		pending: make(map[string]struct{}),
	}
}

// Insert adds an optimistic record under its temporary id. The record is
// visible immediately and tracked as pending until Confirm or Fail.
func (s *Store[T]) Insert(rec T) {
	key := s.cfg.Key(rec)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; !ok {
		s.order = append(s.order, key)
	}
	s.items[key] = rec
	s.pending[key] = struct{}{}
}

// Confirm replaces the temporary record wholesale with the server-confirmed
// one, preserving its list position. If the record was already superseded by
// a remote echo, Confirm only de-duplicates: the echoed copy stays, the
// confirmed value updates it in place. Confirm never resurrects: when the
// record is gone under both ids it was resolved out of band (Fail on a
// rejection echo, or Remove) and the late confirmation is a no-op.
func (s *Store[T]) Confirm(tempID string, final T) {
	finalKey := s.cfg.Key(final)

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, tempID)

	if _, ok := s.items[tempID]; ok {
		// Drop any copy of the final record that arrived out of band,
		// then rename the temporary slot in place.
		if finalKey != tempID {
			if _, dup := s.items[finalKey]; dup {
				s.removeLocked(finalKey)
			}
		}
		for i, key := range s.order {
			if key == tempID {
				s.order[i] = finalKey
				break
			}
		}
		delete(s.items, tempID)
		s.items[finalKey] = final
		return
	}

	// Superseded before confirmation: keep exactly one copy.
	if _, ok := s.items[finalKey]; ok {
		s.items[finalKey] = final
	}
}

// Fail removes the optimistic record after the durable write was rejected.
// Returns the removed record so the caller can surface a notification. There
// is no automatic retry; re-submission is explicit.
func (s *Store[T]) Fail(tempID string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, tempID)
	rec, ok := s.items[tempID]
	if !ok {
		var zero T
		return zero, false
	}
	s.removeLocked(tempID)
	return rec, true
}

// ApplyRemote reconciles a server-broadcast record. ref is the correlation
// id echoed back for the sender's own actions; when it matches an
// outstanding optimistic record that record is superseded in place. Other
// duplicates are resolved by key using the configured supersede rule.
// Reports whether the visible list changed.
func (s *Store[T]) ApplyRemote(ref string, remote T) bool {
	remoteKey := s.cfg.Key(remote)

	s.mu.Lock()
	defer s.mu.Unlock()

	if ref != "" {
		if _, ok := s.items[ref]; ok {
			delete(s.pending, ref)
			if remoteKey != ref {
				if _, dup := s.items[remoteKey]; dup {
					s.removeLocked(remoteKey)
				}
			}
			for i, key := range s.order {
				if key == ref {
					s.order[i] = remoteKey
					break
				}
			}
			delete(s.items, ref)
			s.items[remoteKey] = remote
			return true
		}
		// Echo for an action we no longer hold (already confirmed or
		// failed); fall through to plain dedup by key.
	}

	if local, ok := s.items[remoteKey]; ok {
		if s.cfg.Supersede != nil && s.cfg.Supersede(local, remote) {
			s.items[remoteKey] = remote
			return true
		}
		return false
	}

	s.order = append(s.order, remoteKey)
	s.items[remoteKey] = remote
	return true
}

// Remove deletes a record by id, e.g. for remote deletions.
func (s *Store[T]) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.pending, id)
	s.removeLocked(id)
	return true
}

// Update mutates a record in place via fn, if present.
func (s *Store[T]) Update(id string, fn func(T) T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.items[id]
	if !ok {
		return false
	}
	s.items[id] = fn(rec)
	return true
}

// Get returns a record by id.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[id]
	return rec, ok
}

// List returns the visible records in insertion order.
func (s *Store[T]) List() []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]T, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.items[key])
	}
	return out
}

// PendingCount reports how many optimistic inserts are still unresolved.
// A count that never drains indicates a stuck reconciliation.
func (s *Store[T]) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Store[T]) removeLocked(key string) {
	delete(s.items, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

package store

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/taleloom/taleloom/backend/internal/taverr"
)

// MemoryStore implements Store on a map. It round-trips records through JSON
// so callers observe the same copy semantics as the Pebble store. Used by
// tests and as a fallback when no data directory is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

// Get loads the latest saved value for (kind, id) into out.
func (s *MemoryStore) Get(kind Kind, id string, out any) error {
	s.mu.RLock()
	data, ok := s.records[string(recordKey(kind, id))]
	s.mu.RUnlock()
	if !ok {
		return errors.Wrapf(taverr.ErrNotFound, "%s %q", kind, id)
	}
	return json.Unmarshal(data, out)
}

// Put replaces the value for (kind, id) wholesale.
func (s *MemoryStore) Put(kind Kind, id string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrapf(err, "encode %s %q", kind, id)
	}
	s.mu.Lock()
	s.records[string(recordKey(kind, id))] = data
	s.mu.Unlock()
	return nil
}

// Delete removes (kind, id). Deleting a missing record is not an error.
func (s *MemoryStore) Delete(kind Kind, id string) error {
	s.mu.Lock()
	delete(s.records, string(recordKey(kind, id)))
	s.mu.Unlock()
	return nil
}

// ListIDs returns every stored id of the given kind in key order.
func (s *MemoryStore) ListIDs(kind Kind) ([]string, error) {
	prefix := string(kind) + ":"
	s.mu.RLock()
	var ids []string
	for key := range s.records {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			ids = append(ids, key[len(prefix):])
		}
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

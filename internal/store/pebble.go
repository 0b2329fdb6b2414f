package store

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/taleloom/taleloom/backend/internal/taverr"
)

// PebbleStore implements Store on a Pebble key-value database. Keys are
// "<kind>:<id>", values are JSON-encoded records.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) the database at path.
func OpenPebble(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble db at %s", path)
	}
	log.WithField("path", path).Info("record store opened")
	return &PebbleStore{db: db}, nil
}

// Close closes the underlying database.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func recordKey(kind Kind, id string) []byte {
	return []byte(string(kind) + ":" + id)
}

// Get loads the latest saved value for (kind, id) into out.
func (s *PebbleStore) Get(kind Kind, id string, out any) error {
	value, closer, err := s.db.Get(recordKey(kind, id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return errors.Wrapf(taverr.ErrNotFound, "%s %q", kind, id)
		}
		return errors.Wrapf(err, "get %s %q", kind, id)
	}
	defer closer.Close()

	if err := json.Unmarshal(value, out); err != nil {
		return errors.Wrapf(err, "decode %s %q", kind, id)
	}
	return nil
}

// Put replaces the value for (kind, id) wholesale.
func (s *PebbleStore) Put(kind Kind, id string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrapf(err, "encode %s %q", kind, id)
	}
	if err := s.db.Set(recordKey(kind, id), data, pebble.Sync); err != nil {
		return errors.Wrapf(err, "put %s %q", kind, id)
	}
	return nil
}

// Delete removes (kind, id). Deleting a missing record is not an error.
func (s *PebbleStore) Delete(kind Kind, id string) error {
	if err := s.db.Delete(recordKey(kind, id), pebble.Sync); err != nil {
		return errors.Wrapf(err, "delete %s %q", kind, id)
	}
	return nil
}

// ListIDs returns every stored id of the given kind in key order.
func (s *PebbleStore) ListIDs(kind Kind) ([]string, error) {
	prefix := string(kind) + ":"
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "\xff"),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", kind)
	}
	defer iter.Close()

	var ids []string
	for iter.First(); iter.Valid(); iter.Next() {
		ids = append(ids, strings.TrimPrefix(string(iter.Key()), prefix))
	}
	return ids, iter.Error()
}

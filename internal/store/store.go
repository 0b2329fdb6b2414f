// Package store provides keyed persistence for chat, character, note and
// settings records. There are no transactions and no locking: a record is
// read fully, mutated in memory and written back wholesale, and concurrent
// writers to the same id are last-write-wins. Callers that need conditional
// updates must re-read immediately before writing.
package store

// Kind namespaces record ids.
type Kind string

const (
	KindChat      Kind = "chat"
	KindCharacter Kind = "character"
	KindNote      Kind = "note"
	KindSettings  Kind = "settings"
)

// Store is the record persistence boundary. Get unmarshals the latest saved
// value into out or returns taverr.ErrNotFound.
type Store interface {
	Get(kind Kind, id string, out any) error
	Put(kind Kind, id string, record any) error
	Delete(kind Kind, id string) error
	ListIDs(kind Kind) ([]string, error)
	Close() error
}

// Package library manages the global character and note libraries.
package library

import (
	"context"

	"github.com/google/uuid"

	"github.com/taleloom/taleloom/backend/internal/model/character"
	"github.com/taleloom/taleloom/backend/internal/model/note"
	"github.com/taleloom/taleloom/backend/internal/store"
	"github.com/taleloom/taleloom/backend/internal/taverr"
)

// Service exposes CRUD over library records.
type Service struct {
	store store.Store
}

// NewService wires the library service over the shared store.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// ListCharacters returns every library character in id order.
func (s *Service) ListCharacters(ctx context.Context) ([]character.Character, error) {
	ids, err := s.store.ListIDs(store.KindCharacter)
	if err != nil {
		return nil, err
	}
	out := make([]character.Character, 0, len(ids))
	for _, id := range ids {
		var ch character.Character
		if err := s.store.Get(store.KindCharacter, id, &ch); err != nil {
			if taverr.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, ch)
	}
	return out, nil
}

// GetCharacter loads one library character.
func (s *Service) GetCharacter(ctx context.Context, id string) (character.Character, error) {
	var ch character.Character
	if err := s.store.Get(store.KindCharacter, id, &ch); err != nil {
		return character.Character{}, err
	}
	return ch, nil
}

// SaveCharacter creates or replaces a library character, assigning an id
// when absent.
func (s *Service) SaveCharacter(ctx context.Context, ch character.Character) (character.Character, error) {
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	if err := s.store.Put(store.KindCharacter, ch.ID, &ch); err != nil {
		return character.Character{}, err
	}
	return ch, nil
}

// DeleteCharacter removes a library character.
func (s *Service) DeleteCharacter(ctx context.Context, id string) error {
	if _, err := s.GetCharacter(ctx, id); err != nil {
		return err
	}
	return s.store.Delete(store.KindCharacter, id)
}

// ListNotes returns every library note in id order.
func (s *Service) ListNotes(ctx context.Context) ([]note.Note, error) {
	ids, err := s.store.ListIDs(store.KindNote)
	if err != nil {
		return nil, err
	}
	out := make([]note.Note, 0, len(ids))
	for _, id := range ids {
		var n note.Note
		if err := s.store.Get(store.KindNote, id, &n); err != nil {
			if taverr.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// GetNote loads one library note.
func (s *Service) GetNote(ctx context.Context, id string) (note.Note, error) {
	var n note.Note
	if err := s.store.Get(store.KindNote, id, &n); err != nil {
		return note.Note{}, err
	}
	return n, nil
}

// SaveNote creates or replaces a library note, assigning an id when absent.
func (s *Service) SaveNote(ctx context.Context, n note.Note) (note.Note, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if err := s.store.Put(store.KindNote, n.ID, &n); err != nil {
		return note.Note{}, err
	}
	return n, nil
}

// DeleteNote removes a library note.
func (s *Service) DeleteNote(ctx context.Context, id string) error {
	if _, err := s.GetNote(ctx, id); err != nil {
		return err
	}
	return s.store.Delete(store.KindNote, id)
}

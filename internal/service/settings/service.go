// Package settings reads and mutates the generation configuration record.
// Each prompt assembly takes an immutable snapshot; nothing shares a mutable
// settings object across requests.
package settings

import (
	"context"

	"github.com/pkg/errors"

	"github.com/taleloom/taleloom/backend/internal/model/settings"
	"github.com/taleloom/taleloom/backend/internal/store"
	"github.com/taleloom/taleloom/backend/internal/taverr"
)

// recordID is the single settings record key.
const recordID = "settings"

// Service exposes settings snapshots and preset activation.
type Service struct {
	store store.Store
}

// NewService wires the settings service over the shared store.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Snapshot returns the current settings, seeding the default record when
// none exists yet.
func (s *Service) Snapshot(ctx context.Context) (settings.Settings, error) {
	var snap settings.Settings
	err := s.store.Get(store.KindSettings, recordID, &snap)
	if taverr.IsNotFound(err) {
		snap = settings.Default()
		if err := s.store.Put(store.KindSettings, recordID, &snap); err != nil {
			return settings.Settings{}, err
		}
		return snap, nil
	}
	if err != nil {
		return settings.Settings{}, err
	}
	return snap, nil
}

// Activate switches the active preset. Naming a preset that does not exist
// is an invalid operation.
func (s *Service) Activate(ctx context.Context, name string) (settings.Settings, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return settings.Settings{}, err
	}
	if _, ok := snap.Presets[name]; !ok {
		return settings.Settings{}, errors.Wrapf(taverr.ErrInvalidOperation, "preset %q does not exist", name)
	}
	snap.Active = name
	if err := s.store.Put(store.KindSettings, recordID, &snap); err != nil {
		return settings.Settings{}, err
	}
	return snap, nil
}

// SavePreset creates or replaces a named preset.
func (s *Service) SavePreset(ctx context.Context, name string, preset settings.Preset) (settings.Settings, error) {
	if name == "" {
		return settings.Settings{}, errors.Wrap(taverr.ErrInvalidOperation, "preset name is required")
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return settings.Settings{}, err
	}
	if snap.Presets == nil {
		snap.Presets = make(map[string]settings.Preset)
	}
	snap.Presets[name] = preset
	if err := s.store.Put(store.KindSettings, recordID, &snap); err != nil {
		return settings.Settings{}, err
	}
	return snap, nil
}

package settings

// Preset bundles the generation parameters handed to the model backend.
// Pointer fields are omitted from the request when nil.
type Preset struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	MaxTokens        *int     `json:"maxTokens,omitempty"`
	MergeConsecutive bool     `json:"mergeConsecutive,omitempty"`
	CurationEnabled  bool     `json:"curationEnabled,omitempty"`
}

// Settings is the persisted generation configuration: named presets plus the
// name of the active one. Callers read it as an immutable snapshot at the
// start of each prompt assembly rather than sharing a mutable object across
// requests.
type Settings struct {
	Active  string            `json:"active"`
	Presets map[string]Preset `json:"presets"`
}

// ActivePreset returns the currently active preset, or a zero Preset when
// the record is missing or the active name is dangling.
func (s Settings) ActivePreset() Preset {
	if s.Presets == nil {
		return Preset{}
	}
	return s.Presets[s.Active]
}

// Default returns the settings record seeded on first boot.
func Default() Settings {
	return Settings{
		Active: "default",
		Presets: map[string]Preset{
			"default": {MergeConsecutive: true},
		},
	}
}

package note

// Note carries contextual material injected into prompts. Describes
// optionally names what the note is about (a scenario, a location, a
// character). CharacterOverrides holds per-character supplemental text keyed
// by character id.
type Note struct {
	ID                 string            `json:"id,omitempty"`
	Name               string            `json:"name"`
	Description        string            `json:"description,omitempty"`
	Describes          string            `json:"describes,omitempty"`
	CharacterOverrides map[string]string `json:"characterOverrides,omitempty"`
}

// Ref points at a library note by id or carries an embedded snapshot.
type Ref struct {
	ID       string `json:"id,omitempty"`
	Embedded *Note  `json:"embedded,omitempty"`
}

// ByID builds a reference to a library note.
func ByID(id string) Ref {
	return Ref{ID: id}
}

// Embed builds a reference carrying an inline snapshot.
func Embed(n Note) Ref {
	return Ref{Embedded: &n}
}

// IsEmbedded reports whether the reference carries an inline snapshot.
func (r Ref) IsEmbedded() bool {
	return r.Embedded != nil
}

package character

// Character is a participant profile. Library characters are stored under
// their own id; embedded snapshots live inside a chat record and have no
// independent lifecycle until promoted.
type Character struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Avatar      string   `json:"avatar,omitempty"`
	Gallery     []string `json:"gallery,omitempty"`
	Expressions []string `json:"expressions,omitempty"`
}

// Ref points at a library character by id or carries an embedded snapshot.
// Exactly one of the two fields is set.
type Ref struct {
	ID       string     `json:"id,omitempty"`
	Embedded *Character `json:"embedded,omitempty"`
}

// ByID builds a reference to a library character.
func ByID(id string) Ref {
	return Ref{ID: id}
}

// Embed builds a reference carrying an inline snapshot.
func Embed(c Character) Ref {
	return Ref{Embedded: &c}
}

// IsEmbedded reports whether the reference carries an inline snapshot.
func (r Ref) IsEmbedded() bool {
	return r.Embedded != nil
}

package prompt

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/taleloom/taleloom/backend/internal/model/chat"
)

// Slot is one position in the prompt template: either a macro template bound
// to a role, or the chat-history placeholder.
type Slot struct {
	Role    chat.Role `yaml:"role"`
	Content string    `yaml:"content,omitempty"`
	History bool      `yaml:"history,omitempty"`
}

// Template is the ordered slot sequence applied at assembly time.
type Template struct {
	Slots []Slot `yaml:"slots"`
}

// LoadTemplate parses a YAML template file.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read prompt template %s", path)
	}
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, errors.Wrapf(err, "parse prompt template %s", path)
	}
	for _, s := range t.Slots {
		if !s.History && !s.Role.Valid() {
			return nil, errors.Errorf("prompt template %s: invalid slot role %q", path, s.Role)
		}
	}
	return &t, nil
}

// DefaultTemplate is used when no template file is configured: persona and
// scene context in the system slot, then the history.
func DefaultTemplate() *Template {
	return &Template{Slots: []Slot{
		{Role: chat.RoleSystem, Content: "{{characters}}"},
		{Role: chat.RoleSystem, Content: "{{notes}}"},
		{History: true},
	}}
}

// HasHistorySlot reports whether the template places the history explicitly.
func (t *Template) HasHistorySlot() bool {
	for _, s := range t.Slots {
		if s.History {
			return true
		}
	}
	return false
}

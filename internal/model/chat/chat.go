package chat

import (
	"time"

	"github.com/taleloom/taleloom/backend/internal/model/character"
	"github.com/taleloom/taleloom/backend/internal/model/note"
)

// Chat is a node in the conversation forest. Messages holds only the turns
// this chat owns; turns at or before ForkMessageID belong to ancestors and
// are reconstructed at read time. ContentOverrides and Tombstones apply only
// to inherited messages — editing or deleting an owned message mutates
// Messages directly.
type Chat struct {
	ID               string            `json:"id"`
	ParentID         string            `json:"parentId,omitempty"`
	ForkMessageID    string            `json:"forkMessageId,omitempty"`
	ChildIDs         []string          `json:"childIds,omitempty"`
	Messages         []Message         `json:"messages"`
	ContentOverrides map[string]string `json:"contentOverrides,omitempty"`
	Tombstones       []string          `json:"tombstones,omitempty"`
	Participants     []character.Ref   `json:"participants,omitempty"`
	Notes            []note.Ref        `json:"notes,omitempty"`
	PersonaID        string            `json:"personaId,omitempty"`
	Title            string            `json:"title,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	LastModifiedAt   time.Time         `json:"lastModifiedAt"`
}

// OwnsMessage reports whether the chat's own Messages slice contains id.
func (c *Chat) OwnsMessage(id string) bool {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return true
		}
	}
	return false
}

// IsTombstoned reports whether the chat hides inherited message id.
func (c *Chat) IsTombstoned(id string) bool {
	for _, t := range c.Tombstones {
		if t == id {
			return true
		}
	}
	return false
}

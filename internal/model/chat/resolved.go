package chat

import (
	"time"

	"github.com/taleloom/taleloom/backend/internal/model/character"
	"github.com/taleloom/taleloom/backend/internal/model/note"
)

// ResolvedMessage wraps a stored Message with annotations that only exist
// during resolution. It is a separate type so the flags can never be written
// back into a persisted chat record by accident.
type ResolvedMessage struct {
	Message
	Inherited  bool `json:"inherited,omitempty"`
	Overridden bool `json:"overridden,omitempty"`
}

// ResolvedChat is the client-visible view of a chat: metadata plus the fully
// reconciled linear history. It is what change notifications carry, so
// downstream consumers never see an inheritance-unaware object.
type ResolvedChat struct {
	ID             string            `json:"id"`
	ParentID       string            `json:"parentId,omitempty"`
	ForkMessageID  string            `json:"forkMessageId,omitempty"`
	ChildIDs       []string          `json:"childIds,omitempty"`
	Messages       []ResolvedMessage `json:"messages"`
	Participants   []character.Ref   `json:"participants,omitempty"`
	Notes          []note.Ref        `json:"notes,omitempty"`
	PersonaID      string            `json:"personaId,omitempty"`
	Title          string            `json:"title,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	LastModifiedAt time.Time         `json:"lastModifiedAt"`
}

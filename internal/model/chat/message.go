package chat

import "time"

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether the role is one of the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is a single persisted turn, owned by exactly one Chat. Turns a
// chat inherits from an ancestor never appear in its stored Messages slice.
type Message struct {
	ID                string    `json:"id"`
	Role              Role      `json:"role"`
	Content           string    `json:"content"`
	Timestamp         time.Time `json:"timestamp"`
	AuthorCharacterID string    `json:"authorCharacterId,omitempty"`
}

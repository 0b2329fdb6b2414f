// Package chat owns the lifecycle of conversation-tree nodes: creation,
// forking, per-branch edits and deletions, cascade delete, and committing
// generated turns. Every mutation that changes a chat's visible history ends
// with a change notification carrying the resolved view.
package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/taleloom/taleloom/backend/internal/model/character"
	"github.com/taleloom/taleloom/backend/internal/model/chat"
	"github.com/taleloom/taleloom/backend/internal/model/note"
	"github.com/taleloom/taleloom/backend/internal/notify"
	"github.com/taleloom/taleloom/backend/internal/service/resolve"
	"github.com/taleloom/taleloom/backend/internal/store"
	"github.com/taleloom/taleloom/backend/internal/taverr"
)

// Service encapsulates chat-tree state management.
type Service struct {
	store    store.Store
	resolver *resolve.Resolver
	hub      *notify.Hub
}

// NewService wires the lifecycle service over the shared store and resolver.
// hub may be nil in tests.
func NewService(st store.Store, r *resolve.Resolver, hub *notify.Hub) *Service {
	return &Service{store: st, resolver: r, hub: hub}
}

// CreateParams describes a new root chat.
type CreateParams struct {
	Title        string
	PersonaID    string
	Participants []character.Ref
	Notes        []note.Ref
}

// Create provisions a new root chat.
func (s *Service) Create(ctx context.Context, p CreateParams) (chat.Chat, error) {
	now := time.Now().UTC()
	c := chat.Chat{
		ID:             uuid.NewString(),
		Messages:       []chat.Message{},
		Participants:   p.Participants,
		Notes:          p.Notes,
		PersonaID:      p.PersonaID,
		Title:          p.Title,
		CreatedAt:      now,
		LastModifiedAt: now,
	}
	if err := s.store.Put(store.KindChat, c.ID, &c); err != nil {
		return chat.Chat{}, err
	}
	return c, nil
}

// Get loads a stored chat record.
func (s *Service) Get(ctx context.Context, id string) (chat.Chat, error) {
	var c chat.Chat
	if err := s.store.Get(store.KindChat, id, &c); err != nil {
		return chat.Chat{}, err
	}
	return c, nil
}

// List returns every stored chat id.
func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.store.ListIDs(store.KindChat)
}

// ResolvedView builds the client-visible history for a chat and forwards
// resolution warnings to the notification hub.
func (s *Service) ResolvedView(ctx context.Context, id string) (*chat.ResolvedChat, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	view, warns, err := s.resolver.BuildResolvedView(ctx, &c)
	if err != nil {
		return nil, err
	}
	if s.hub != nil {
		s.hub.Warnings(warns)
	}
	return view, nil
}

// Fork creates a child chat diverging from parentID at forkMessageID. The
// fork point must name a message in the parent's resolved history. The
// parent record is re-read immediately before its child list is updated,
// which narrows (but does not close) the lost-update window between
// concurrent forks; last write wins by design.
func (s *Service) Fork(ctx context.Context, parentID, forkMessageID string) (chat.Chat, error) {
	if forkMessageID == "" {
		return chat.Chat{}, errors.Wrap(taverr.ErrInvalidOperation, "fork requires a fork message id")
	}

	parent, err := s.Get(ctx, parentID)
	if err != nil {
		return chat.Chat{}, err
	}

	view, _, err := s.resolver.BuildResolvedView(ctx, &parent)
	if err != nil {
		return chat.Chat{}, err
	}
	if !viewContains(view, forkMessageID) {
		return chat.Chat{}, errors.Wrapf(taverr.ErrNotFound, "fork message %s in chat %s", forkMessageID, parentID)
	}

	now := time.Now().UTC()
	child := chat.Chat{
		ID:             uuid.NewString(),
		ParentID:       parentID,
		ForkMessageID:  forkMessageID,
		Messages:       []chat.Message{},
		Participants:   parent.Participants,
		Notes:          parent.Notes,
		PersonaID:      parent.PersonaID,
		Title:          parent.Title,
		CreatedAt:      now,
		LastModifiedAt: now,
	}
	if err := s.store.Put(store.KindChat, child.ID, &child); err != nil {
		return chat.Chat{}, err
	}

	// Re-read the parent so the childIds append works on the freshest copy.
	if err := s.store.Get(store.KindChat, parentID, &parent); err != nil {
		return chat.Chat{}, err
	}
	parent.ChildIDs = append(parent.ChildIDs, child.ID)
	parent.LastModifiedAt = now
	if err := s.store.Put(store.KindChat, parentID, &parent); err != nil {
		return chat.Chat{}, err
	}

	log.WithFields(log.Fields{"parent": parentID, "child": child.ID, "fork": forkMessageID}).Info("chat forked")
	return child, nil
}

// AppendMessage commits a new turn to the chat's own message list.
func (s *Service) AppendMessage(ctx context.Context, chatID string, role chat.Role, content, authorCharacterID string) (chat.Message, error) {
	if !role.Valid() {
		return chat.Message{}, errors.Wrapf(taverr.ErrInvalidOperation, "unknown role %q", role)
	}

	c, err := s.Get(ctx, chatID)
	if err != nil {
		return chat.Message{}, err
	}

	msg := chat.Message{
		ID:                uuid.NewString(),
		Role:              role,
		Content:           content,
		Timestamp:         time.Now().UTC(),
		AuthorCharacterID: authorCharacterID,
	}
	c.Messages = append(c.Messages, msg)
	c.LastModifiedAt = msg.Timestamp
	if err := s.store.Put(store.KindChat, chatID, &c); err != nil {
		return chat.Message{}, err
	}

	s.publishResolved(ctx, chatID)
	return msg, nil
}

// EditMessage changes the content of a message in the chat's view. Owned
// messages are edited in place; inherited messages get a content override
// scoped to this branch. The ancestor record is never touched.
func (s *Service) EditMessage(ctx context.Context, chatID, messageID, content string) error {
	c, err := s.Get(ctx, chatID)
	if err != nil {
		return err
	}

	if c.OwnsMessage(messageID) {
		for i := range c.Messages {
			if c.Messages[i].ID == messageID {
				c.Messages[i].Content = content
			}
		}
	} else {
		if err := s.assertInherited(ctx, &c, messageID); err != nil {
			return err
		}
		if c.ContentOverrides == nil {
			c.ContentOverrides = make(map[string]string)
		}
		c.ContentOverrides[messageID] = content
	}

	c.LastModifiedAt = time.Now().UTC()
	if err := s.store.Put(store.KindChat, chatID, &c); err != nil {
		return err
	}

	s.publishResolved(ctx, chatID)
	return nil
}

// DeleteMessage removes a message from the chat's view. Owned messages are
// removed from storage; inherited messages are tombstoned so sibling
// branches keep seeing them.
func (s *Service) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	c, err := s.Get(ctx, chatID)
	if err != nil {
		return err
	}

	if c.OwnsMessage(messageID) {
		kept := c.Messages[:0]
		for _, m := range c.Messages {
			if m.ID != messageID {
				kept = append(kept, m)
			}
		}
		c.Messages = kept
	} else {
		if err := s.assertInherited(ctx, &c, messageID); err != nil {
			return err
		}
		if !c.IsTombstoned(messageID) {
			c.Tombstones = append(c.Tombstones, messageID)
		}
	}

	c.LastModifiedAt = time.Now().UTC()
	if err := s.store.Put(store.KindChat, chatID, &c); err != nil {
		return err
	}

	s.publishResolved(ctx, chatID)
	return nil
}

// Delete removes a chat and cascades to all descendants: a branch cannot
// outlive the history it depends on.
func (s *Service) Delete(ctx context.Context, id string) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	// Detach from the parent's child list first.
	if c.ParentID != "" {
		var parent chat.Chat
		if err := s.store.Get(store.KindChat, c.ParentID, &parent); err == nil {
			kept := parent.ChildIDs[:0]
			for _, childID := range parent.ChildIDs {
				if childID != id {
					kept = append(kept, childID)
				}
			}
			parent.ChildIDs = kept
			parent.LastModifiedAt = time.Now().UTC()
			if err := s.store.Put(store.KindChat, c.ParentID, &parent); err != nil {
				return err
			}
		}
	}

	return s.deleteSubtree(ctx, id, make(map[string]struct{}))
}

func (s *Service) deleteSubtree(ctx context.Context, id string, seen map[string]struct{}) error {
	if _, done := seen[id]; done {
		// A cycle in childIds would otherwise recurse forever.
		return nil
	}
	seen[id] = struct{}{}

	var c chat.Chat
	if err := s.store.Get(store.KindChat, id, &c); err != nil {
		if taverr.IsNotFound(err) {
			return nil
		}
		return err
	}
	for _, childID := range c.ChildIDs {
		if err := s.deleteSubtree(ctx, childID, seen); err != nil {
			return err
		}
	}
	if err := s.store.Delete(store.KindChat, id); err != nil {
		return err
	}
	log.WithField("chat", id).Info("chat deleted")
	return nil
}

// PromoteParticipant moves an embedded participant into the global character
// library: it gains a permanent id and the chat's reference is rewritten
// from embedded snapshot to id.
func (s *Service) PromoteParticipant(ctx context.Context, chatID string, index int) (character.Character, error) {
	c, err := s.Get(ctx, chatID)
	if err != nil {
		return character.Character{}, err
	}
	if index < 0 || index >= len(c.Participants) {
		return character.Character{}, errors.Wrapf(taverr.ErrNotFound, "participant index %d in chat %s", index, chatID)
	}
	ref := c.Participants[index]
	if !ref.IsEmbedded() {
		return character.Character{}, errors.Wrapf(taverr.ErrInvalidOperation, "participant %d of chat %s is already a library character", index, chatID)
	}

	promoted := *ref.Embedded
	promoted.ID = uuid.NewString()
	if err := s.store.Put(store.KindCharacter, promoted.ID, &promoted); err != nil {
		return character.Character{}, err
	}

	c.Participants[index] = character.ByID(promoted.ID)
	c.LastModifiedAt = time.Now().UTC()
	if err := s.store.Put(store.KindChat, chatID, &c); err != nil {
		return character.Character{}, err
	}

	log.WithFields(log.Fields{"chat": chatID, "character": promoted.ID}).Info("participant promoted to library")
	return promoted, nil
}

// assertInherited verifies messageID actually appears in the chat's resolved
// view, so overrides and tombstones can only target real inherited turns.
func (s *Service) assertInherited(ctx context.Context, c *chat.Chat, messageID string) error {
	view, _, err := s.resolver.BuildResolvedView(ctx, c)
	if err != nil {
		return err
	}
	if !viewContains(view, messageID) {
		return errors.Wrapf(taverr.ErrNotFound, "message %s in chat %s", messageID, c.ID)
	}
	return nil
}

// publishResolved pushes the chat's fresh resolved view to subscribers.
// Notification failures never fail the mutation.
func (s *Service) publishResolved(ctx context.Context, chatID string) {
	if s.hub == nil {
		return
	}
	view, err := s.ResolvedView(ctx, chatID)
	if err != nil {
		log.WithError(err).WithField("chat", chatID).Warn("failed to publish resolved view")
		return
	}
	s.hub.ChatResolved(view)
}

func viewContains(view *chat.ResolvedChat, messageID string) bool {
	for i := range view.Messages {
		if view.Messages[i].ID == messageID {
			return true
		}
	}
	return false
}

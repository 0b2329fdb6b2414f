package chat

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/taleloom/taleloom/backend/internal/model/chat"
	"github.com/taleloom/taleloom/backend/internal/store"
	"github.com/taleloom/taleloom/backend/internal/taverr"
)

// CommitRegeneration replaces the target assistant message's content with
// the regenerated text and drops every message after it from this branch's
// view. Owned trailing messages are removed from storage; inherited ones are
// tombstoned. Ancestors are never mutated.
func (s *Service) CommitRegeneration(ctx context.Context, chatID, targetID, content string) error {
	c, err := s.Get(ctx, chatID)
	if err != nil {
		return err
	}

	view, _, err := s.resolver.BuildResolvedView(ctx, &c)
	if err != nil {
		return err
	}

	targetIdx := -1
	for i := range view.Messages {
		if view.Messages[i].ID == targetID {
			targetIdx = i
			break
		}
	}
	if targetIdx == -1 {
		return errors.Wrapf(taverr.ErrNotFound, "regenerate target %s in chat %s", targetID, chatID)
	}
	if view.Messages[targetIdx].Role != chat.RoleAssistant {
		return errors.Wrapf(taverr.ErrInvalidOperation, "regenerate target %s has role %s, want assistant", targetID, view.Messages[targetIdx].Role)
	}

	// Rewrite the target.
	if c.OwnsMessage(targetID) {
		for i := range c.Messages {
			if c.Messages[i].ID == targetID {
				c.Messages[i].Content = content
			}
		}
	} else {
		if c.ContentOverrides == nil {
			c.ContentOverrides = make(map[string]string)
		}
		c.ContentOverrides[targetID] = content
	}

	// Drop everything after the target.
	drop := make(map[string]struct{})
	for _, m := range view.Messages[targetIdx+1:] {
		drop[m.ID] = struct{}{}
	}
	if len(drop) > 0 {
		kept := c.Messages[:0]
		for _, m := range c.Messages {
			if _, gone := drop[m.ID]; gone {
				continue
			}
			kept = append(kept, m)
		}
		c.Messages = kept

		for _, m := range view.Messages[targetIdx+1:] {
			if m.Inherited && !c.IsTombstoned(m.ID) {
				c.Tombstones = append(c.Tombstones, m.ID)
			}
		}
	}

	c.LastModifiedAt = time.Now().UTC()
	if err := s.store.Put(store.KindChat, chatID, &c); err != nil {
		return err
	}

	s.publishResolved(ctx, chatID)
	return nil
}

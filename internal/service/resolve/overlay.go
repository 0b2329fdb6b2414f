package resolve

import (
	"context"

	"github.com/taleloom/taleloom/backend/internal/model/chat"
)

// BuildResolvedView flattens a chat into its client-visible history: the
// inherited ancestor messages up to the fork point, this chat's own
// messages, this chat's content overrides (which win over anything an
// ancestor already applied), minus tombstoned messages. The input chat and
// every ancestor record are left untouched; the returned view is always a
// fresh allocation.
func (r *Resolver) BuildResolvedView(ctx context.Context, c *chat.Chat) (*chat.ResolvedChat, []Warning, error) {
	var (
		msgs  []chat.ResolvedMessage
		warns []Warning
	)

	switch {
	case c.ParentID != "" && c.ForkMessageID != "":
		inherited, inheritWarns, err := r.ResolveAncestry(ctx, c.ParentID, c.ForkMessageID)
		if err != nil {
			return nil, inheritWarns, err
		}
		warns = inheritWarns

		for _, w := range warns {
			if w.Corruption() {
				// Corrupt ancestry: serve an empty history rather than a
				// partial one that misattributes turns.
				return emptyView(c), warns, nil
			}
		}

		msgs = make([]chat.ResolvedMessage, 0, len(inherited)+len(c.Messages))
		msgs = append(msgs, inherited...)
		for i := range c.Messages {
			msgs = append(msgs, chat.ResolvedMessage{Message: c.Messages[i]})
		}
		applyOverrides(msgs, c.ContentOverrides)
		msgs = dropTombstoned(msgs, c.Tombstones)

	case c.ParentID != "":
		// Legacy branch: no recorded fork point, so the inherited part of
		// the history cannot be attributed reliably. Serve the chat's own
		// messages and advise the caller.
		warns = append(warns, report(Warning{
			Kind:   WarnLegacyBranch,
			ChatID: c.ID,
			Detail: "chat has a parent but no fork point; history may be incomplete",
		}))
		msgs = ownMessages(c)

	default:
		msgs = ownMessages(c)
	}

	view := &chat.ResolvedChat{
		ID:             c.ID,
		ParentID:       c.ParentID,
		ForkMessageID:  c.ForkMessageID,
		ChildIDs:       append([]string(nil), c.ChildIDs...),
		Messages:       msgs,
		Participants:   c.Participants,
		Notes:          c.Notes,
		PersonaID:      c.PersonaID,
		Title:          c.Title,
		CreatedAt:      c.CreatedAt,
		LastModifiedAt: c.LastModifiedAt,
	}
	return view, warns, nil
}

func emptyView(c *chat.Chat) *chat.ResolvedChat {
	return &chat.ResolvedChat{
		ID:             c.ID,
		ParentID:       c.ParentID,
		ForkMessageID:  c.ForkMessageID,
		ChildIDs:       append([]string(nil), c.ChildIDs...),
		Messages:       []chat.ResolvedMessage{},
		Participants:   c.Participants,
		Notes:          c.Notes,
		PersonaID:      c.PersonaID,
		Title:          c.Title,
		CreatedAt:      c.CreatedAt,
		LastModifiedAt: c.LastModifiedAt,
	}
}

func ownMessages(c *chat.Chat) []chat.ResolvedMessage {
	msgs := make([]chat.ResolvedMessage, 0, len(c.Messages))
	for i := range c.Messages {
		msgs = append(msgs, chat.ResolvedMessage{Message: c.Messages[i]})
	}
	return msgs
}

func dropTombstoned(msgs []chat.ResolvedMessage, tombstones []string) []chat.ResolvedMessage {
	if len(tombstones) == 0 {
		return msgs
	}
	hidden := make(map[string]struct{}, len(tombstones))
	for _, id := range tombstones {
		hidden[id] = struct{}{}
	}
	kept := msgs[:0]
	for _, m := range msgs {
		if _, gone := hidden[m.ID]; !gone {
			kept = append(kept, m)
		}
	}
	return kept
}

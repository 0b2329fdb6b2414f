// Package prompt turns a chat's resolved view plus a slot template into the
// exact message sequence handed to the model backend.
package prompt

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"

	"github.com/taleloom/taleloom/backend/internal/model/character"
	"github.com/taleloom/taleloom/backend/internal/model/chat"
	"github.com/taleloom/taleloom/backend/internal/model/note"
	"github.com/taleloom/taleloom/backend/internal/model/settings"
	"github.com/taleloom/taleloom/backend/internal/service/macro"
	"github.com/taleloom/taleloom/backend/internal/service/resolve"
	"github.com/taleloom/taleloom/backend/internal/store"
	"github.com/taleloom/taleloom/backend/internal/taverr"
)

// Assembler orchestrates the resolver and the macro engine.
type Assembler struct {
	store    store.Store
	resolver *resolve.Resolver
	engine   *macro.Engine
}

// NewAssembler wires an assembler over the shared store and resolver.
func NewAssembler(st store.Store, r *resolve.Resolver) *Assembler {
	return &Assembler{store: st, resolver: r, engine: macro.New()}
}

// Input describes one assembly request. PendingUserContent, when non-empty,
// becomes a user turn that is part of the prompt but is not persisted until
// a response arrives. RegenerateTargetID, when non-empty, truncates the
// history strictly before that assistant message.
type Input struct {
	Chat               *chat.Chat
	Template           *Template
	Settings           settings.Settings
	PendingUserContent string
	RegenerateTargetID string
}

// Output is the provider-ready prompt: system text (the concatenated
// system-role slots), the ordered non-system message list, and the
// generation parameters from the active preset.
type Output struct {
	System   string
	Messages []*schema.Message
	Params   settings.Preset
	Warnings []resolve.Warning
}

type entry struct {
	role    chat.Role
	content string
}

// Assemble builds the prompt for in. The stored chat is never mutated.
func (a *Assembler) Assemble(ctx context.Context, in Input) (*Output, error) {
	tmpl := in.Template
	if tmpl == nil || len(tmpl.Slots) == 0 {
		tmpl = DefaultTemplate()
	}

	view, warns, err := a.resolver.BuildResolvedView(ctx, in.Chat)
	if err != nil {
		return nil, err
	}
	history := view.Messages

	if in.RegenerateTargetID != "" {
		history, err = truncateForRegeneration(history, in.RegenerateTargetID)
		if err != nil {
			return nil, err
		}
	}

	historyEntries := make([]entry, 0, len(history)+1)
	for _, m := range history {
		historyEntries = append(historyEntries, entry{role: m.Role, content: m.Content})
	}
	if in.PendingUserContent != "" {
		pending := chat.Message{
			Role:              chat.RoleUser,
			Content:           in.PendingUserContent,
			Timestamp:         time.Now().UTC(),
			AuthorCharacterID: in.Chat.PersonaID,
		}
		historyEntries = append(historyEntries, entry{role: pending.Role, content: pending.Content})
	}

	mctx, err := a.buildMacroContext(in.Chat)
	if err != nil {
		return nil, err
	}

	var (
		entries       []entry
		historyPlaced bool
	)
	for _, slot := range tmpl.Slots {
		if slot.History {
			entries = append(entries, historyEntries...)
			historyPlaced = true
			continue
		}
		rendered := a.engine.Expand(slot.Content, mctx)
		if strings.TrimSpace(rendered) == "" {
			continue
		}
		entries = append(entries, entry{role: slot.Role, content: rendered})
	}
	if !historyPlaced {
		// Never silently drop the conversation when a template forgets the
		// placeholder.
		entries = append(entries, historyEntries...)
	}

	preset := in.Settings.ActivePreset()
	if preset.MergeConsecutive {
		entries = mergeConsecutive(entries)
	}

	out := &Output{Params: preset, Warnings: warns}
	var systemParts []string
	for _, e := range entries {
		switch e.role {
		case chat.RoleSystem:
			systemParts = append(systemParts, e.content)
		case chat.RoleAssistant:
			out.Messages = append(out.Messages, schema.AssistantMessage(e.content, nil))
		default:
			out.Messages = append(out.Messages, schema.UserMessage(e.content))
		}
	}
	out.System = strings.Join(systemParts, "\n\n")
	return out, nil
}

// truncateForRegeneration drops the target message and everything after it.
// The target must exist and must be an assistant turn.
func truncateForRegeneration(history []chat.ResolvedMessage, targetID string) ([]chat.ResolvedMessage, error) {
	for i, m := range history {
		if m.ID != targetID {
			continue
		}
		if m.Role != chat.RoleAssistant {
			return nil, errors.Wrapf(taverr.ErrInvalidOperation, "regenerate target %s has role %s, want assistant", targetID, m.Role)
		}
		return history[:i], nil
	}
	return nil, errors.Wrapf(taverr.ErrNotFound, "regenerate target message %s", targetID)
}

// mergeConsecutive folds runs of same-role entries into one entry with a
// blank-line separator.
func mergeConsecutive(entries []entry) []entry {
	if len(entries) < 2 {
		return entries
	}
	merged := entries[:1]
	for _, e := range entries[1:] {
		last := &merged[len(merged)-1]
		if e.role == last.role {
			last.content = last.content + "\n\n" + e.content
			continue
		}
		merged = append(merged, e)
	}
	return merged
}

// buildMacroContext resolves the chat's participant and note references
// against the store and snapshots the character library.
func (a *Assembler) buildMacroContext(c *chat.Chat) (*macro.Context, error) {
	libIDs, err := a.store.ListIDs(store.KindCharacter)
	if err != nil {
		return nil, errors.Wrap(err, "list character library")
	}
	library := make([]character.Character, 0, len(libIDs))
	for _, id := range libIDs {
		var ch character.Character
		if err := a.store.Get(store.KindCharacter, id, &ch); err != nil {
			if taverr.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		library = append(library, ch)
	}

	participants := make([]character.Character, 0, len(c.Participants))
	for _, ref := range c.Participants {
		if ref.IsEmbedded() {
			participants = append(participants, *ref.Embedded)
			continue
		}
		var ch character.Character
		if err := a.store.Get(store.KindCharacter, ref.ID, &ch); err != nil {
			if taverr.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		participants = append(participants, ch)
	}

	notes := make([]note.Note, 0, len(c.Notes))
	for _, ref := range c.Notes {
		if ref.IsEmbedded() {
			notes = append(notes, *ref.Embedded)
			continue
		}
		var n note.Note
		if err := a.store.Get(store.KindNote, ref.ID, &n); err != nil {
			if taverr.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		notes = append(notes, n)
	}

	return &macro.Context{
		Library:      library,
		Participants: participants,
		Notes:        notes,
		PersonaID:    c.PersonaID,
	}, nil
}

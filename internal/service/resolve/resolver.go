package resolve

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/taleloom/taleloom/backend/internal/metrics"
	"github.com/taleloom/taleloom/backend/internal/model/chat"
	"github.com/taleloom/taleloom/backend/internal/store"
)

const (
	// DefaultMaxDepth bounds the ancestor chain length.
	DefaultMaxDepth = 100
	// DefaultMaxMessages bounds the assembled history size; when exceeded
	// the most recent messages are kept.
	DefaultMaxMessages = 10000
)

// Resolver reconstructs linear message histories from the chat forest held
// in the record store. Ancestor records are read-only inputs: resolution
// never writes anything back.
type Resolver struct {
	store       store.Store
	maxDepth    int
	maxMessages int
}

// NewResolver builds a resolver with the default safety bounds.
func NewResolver(st store.Store) *Resolver {
	return &Resolver{store: st, maxDepth: DefaultMaxDepth, maxMessages: DefaultMaxMessages}
}

// NewResolverWithLimits builds a resolver with explicit bounds, used by
// configuration and tests.
func NewResolverWithLimits(st store.Store, maxDepth, maxMessages int) *Resolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Resolver{store: st, maxDepth: maxDepth, maxMessages: maxMessages}
}

// depthOverrides is one ancestor's override map tagged with the recursion
// depth it was found at. Greater depth means older ancestor.
type depthOverrides struct {
	depth     int
	overrides map[string]string
}

// ResolveAncestry walks the ancestor chain starting at chatID and returns
// the inherited history up to and including forkMessageID (all of the chat's
// messages when the id is empty or unknown). Every returned message is
// marked inherited; ancestor content overrides are applied oldest-ancestor
// first so the nearest descendant wins on conflict.
func (r *Resolver) ResolveAncestry(ctx context.Context, chatID, forkMessageID string) ([]chat.ResolvedMessage, []Warning, error) {
	visited := make(map[string]struct{})
	msgs, overrides, warns, err := r.walk(ctx, chatID, forkMessageID, visited, 0)
	if err != nil {
		return nil, warns, err
	}

	// A cycle or depth abort anywhere in the chain poisons the whole
	// result: partial history assembled around the break would silently
	// misattribute turns, so the caller gets nothing plus the warning.
	for _, w := range warns {
		if w.Corruption() {
			return []chat.ResolvedMessage{}, warns, nil
		}
	}

	// Apply collected overrides at the top of the recursion only, ordered
	// from greatest depth to least.
	sort.SliceStable(overrides, func(i, j int) bool {
		return overrides[i].depth > overrides[j].depth
	})
	for _, layer := range overrides {
		applyOverrides(msgs, layer.overrides)
	}

	if len(msgs) > r.maxMessages {
		warns = append(warns, report(Warning{
			Kind:   WarnSize,
			ChatID: chatID,
			Detail: fmt.Sprintf("history of %d messages truncated to most recent %d", len(msgs), r.maxMessages),
		}))
		msgs = msgs[len(msgs)-r.maxMessages:]
	}

	metrics.Resolutions.Inc()
	return msgs, warns, nil
}

// walk is the recursive core. It returns the inherited messages for chatID
// bounded at forkMessageID plus every ancestor override map found along the
// path, tagged with its depth.
func (r *Resolver) walk(ctx context.Context, chatID, forkMessageID string, visited map[string]struct{}, depth int) ([]chat.ResolvedMessage, []depthOverrides, []Warning, error) {
	if _, seen := visited[chatID]; seen {
		w := report(Warning{Kind: WarnCycle, ChatID: chatID, Detail: "chat is its own ancestor"})
		return nil, nil, []Warning{w}, nil
	}
	if depth > r.maxDepth {
		w := report(Warning{Kind: WarnDepth, ChatID: chatID, Detail: fmt.Sprintf("ancestor chain deeper than %d", r.maxDepth)})
		return nil, nil, []Warning{w}, nil
	}
	visited[chatID] = struct{}{}

	var c chat.Chat
	if err := r.store.Get(store.KindChat, chatID, &c); err != nil {
		return nil, nil, nil, errors.Wrap(err, "load ancestor chat")
	}

	var (
		msgs      []chat.ResolvedMessage
		overrides []depthOverrides
		warns     []Warning
	)

	if c.ParentID != "" {
		parentFork := c.ForkMessageID
		if parentFork == "" {
			inferred, warning := r.inferForkPoint(&c)
			parentFork = inferred
			warns = append(warns, warning)
		}

		parentMsgs, parentOverrides, parentWarns, err := r.walk(ctx, c.ParentID, parentFork, visited, depth+1)
		if err != nil {
			return nil, nil, warns, err
		}
		msgs = append(msgs, parentMsgs...)
		overrides = append(overrides, parentOverrides...)
		warns = append(warns, parentWarns...)
	}

	for i := range c.Messages {
		msgs = append(msgs, chat.ResolvedMessage{Message: c.Messages[i], Inherited: true})
		if c.Messages[i].ID == forkMessageID {
			break
		}
	}

	if len(c.ContentOverrides) > 0 {
		overrides = append(overrides, depthOverrides{depth: depth, overrides: c.ContentOverrides})
	}

	return msgs, overrides, warns, nil
}

// inferForkPoint recovers a fork boundary for a legacy branch: the most
// recent message in the chat's own list whose (role, content) exactly
// matches a message in the immediate parent. Duplicate content can pick the
// wrong turn; this is an accepted compatibility behavior. An empty result
// means the whole parent history is included.
func (r *Resolver) inferForkPoint(c *chat.Chat) (string, Warning) {
	var parent chat.Chat
	if err := r.store.Get(store.KindChat, c.ParentID, &parent); err != nil {
		return "", report(Warning{
			Kind:   WarnLegacyFallback,
			ChatID: c.ID,
			Detail: "parent unreadable during fork inference, including full parent history",
		})
	}

	for i := len(c.Messages) - 1; i >= 0; i-- {
		own := c.Messages[i]
		for j := len(parent.Messages) - 1; j >= 0; j-- {
			if parent.Messages[j].Role == own.Role && parent.Messages[j].Content == own.Content {
				return parent.Messages[j].ID, report(Warning{
					Kind:   WarnLegacyInferred,
					ChatID: c.ID,
					Detail: fmt.Sprintf("fork point inferred as parent message %s", parent.Messages[j].ID),
				})
			}
		}
	}

	return "", report(Warning{
		Kind:   WarnLegacyFallback,
		ChatID: c.ID,
		Detail: "no content match in parent, including full parent history",
	})
}

// applyOverrides rewrites message content in place on the resolved slice.
// The slice elements are copies, so stored ancestor records are untouched.
func applyOverrides(msgs []chat.ResolvedMessage, overrides map[string]string) {
	if len(overrides) == 0 {
		return
	}
	for i := range msgs {
		if replacement, ok := overrides[msgs[i].ID]; ok {
			msgs[i].Content = replacement
			msgs[i].Overridden = true
		}
	}
}

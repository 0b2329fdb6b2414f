package resolve_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/taleloom/taleloom/backend/internal/model/chat"
	"github.com/taleloom/taleloom/backend/internal/service/resolve"
	"github.com/taleloom/taleloom/backend/internal/store"
)

func msg(id string, role chat.Role, content string) chat.Message {
	return chat.Message{
		ID:        id,
		Role:      role,
		Content:   content,
		Timestamp: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func putChat(t *testing.T, st store.Store, c chat.Chat) {
	t.Helper()
	require.NoError(t, st.Put(store.KindChat, c.ID, &c))
}

func messageIDs(msgs []chat.ResolvedMessage) []string {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}

// Root chat with [u1, a1], fork at a1, child appends u2. The child's view is
// [u1, a1, u2] with the first two marked inherited.
func TestResolvedViewOfFork(t *testing.T) {
	st := store.NewMemoryStore()
	r := resolve.NewResolver(st)

	putChat(t, st, chat.Chat{
		ID: "c1",
		Messages: []chat.Message{
			msg("u1", chat.RoleUser, "hi"),
			msg("a1", chat.RoleAssistant, "hello"),
		},
		ChildIDs: []string{"c2"},
	})
	c2 := chat.Chat{
		ID:            "c2",
		ParentID:      "c1",
		ForkMessageID: "a1",
		Messages:      []chat.Message{msg("u2", chat.RoleUser, "bye")},
	}
	putChat(t, st, c2)

	view, warns, err := r.BuildResolvedView(context.Background(), &c2)
	require.NoError(t, err)
	require.Empty(t, warns)

	require.Equal(t, []string{"u1", "a1", "u2"}, messageIDs(view.Messages))
	require.True(t, view.Messages[0].Inherited)
	require.True(t, view.Messages[1].Inherited)
	require.False(t, view.Messages[2].Inherited)
}

func TestAncestryDeterminism(t *testing.T) {
	st := store.NewMemoryStore()
	r := resolve.NewResolver(st)

	putChat(t, st, chat.Chat{
		ID: "root",
		Messages: []chat.Message{
			msg("m1", chat.RoleUser, "one"),
			msg("m2", chat.RoleAssistant, "two"),
			msg("m3", chat.RoleUser, "three"),
		},
	})
	putChat(t, st, chat.Chat{
		ID:            "mid",
		ParentID:      "root",
		ForkMessageID: "m2",
		Messages:      []chat.Message{msg("m4", chat.RoleAssistant, "four")},
	})

	ctx := context.Background()
	first, _, err := r.ResolveAncestry(ctx, "mid", "m4")
	require.NoError(t, err)
	second, _, err := r.ResolveAncestry(ctx, "mid", "m4")
	require.NoError(t, err)

	if diff := cmp.Diff(messageIDs(first), messageIDs(second)); diff != "" {
		t.Fatalf("resolution not deterministic (-first +second):\n%s", diff)
	}
	require.Equal(t, []string{"m1", "m2", "m4"}, messageIDs(first))
}

// Resolving a descendant must leave every ancestor's stored record intact.
func TestNoAncestorMutation(t *testing.T) {
	st := store.NewMemoryStore()
	r := resolve.NewResolver(st)

	putChat(t, st, chat.Chat{
		ID: "c1",
		Messages: []chat.Message{
			msg("u1", chat.RoleUser, "hi"),
			msg("a1", chat.RoleAssistant, "hello"),
		},
		ContentOverrides: map[string]string{"x": "y"},
		Tombstones:       []string{"z"},
	})
	c2 := chat.Chat{
		ID:               "c2",
		ParentID:         "c1",
		ForkMessageID:    "a1",
		Messages:         []chat.Message{msg("u2", chat.RoleUser, "bye")},
		ContentOverrides: map[string]string{"a1": "hey there"},
		Tombstones:       []string{"u1"},
	}
	putChat(t, st, c2)

	var before chat.Chat
	require.NoError(t, st.Get(store.KindChat, "c1", &before))

	_, _, err := r.BuildResolvedView(context.Background(), &c2)
	require.NoError(t, err)

	var after chat.Chat
	require.NoError(t, st.Get(store.KindChat, "c1", &after))
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("ancestor record mutated by resolution (-before +after):\n%s", diff)
	}
}

// The nearest descendant's override wins over an older ancestor's.
func TestOverridePrecedence(t *testing.T) {
	st := store.NewMemoryStore()
	r := resolve.NewResolver(st)

	putChat(t, st, chat.Chat{
		ID:       "root",
		Messages: []chat.Message{msg("m1", chat.RoleAssistant, "original")},
	})
	putChat(t, st, chat.Chat{
		ID:               "a",
		ParentID:         "root",
		ForkMessageID:    "m1",
		Messages:         []chat.Message{msg("m2", chat.RoleUser, "next")},
		ContentOverrides: map[string]string{"m1": "old"},
	})
	b := chat.Chat{
		ID:               "b",
		ParentID:         "a",
		ForkMessageID:    "m2",
		Messages:         []chat.Message{},
		ContentOverrides: map[string]string{"m1": "new"},
	}
	putChat(t, st, b)

	view, _, err := r.BuildResolvedView(context.Background(), &b)
	require.NoError(t, err)

	require.Equal(t, "new", view.Messages[0].Content)
	require.True(t, view.Messages[0].Overridden)

	// The ancestor's stored content is untouched.
	var root chat.Chat
	require.NoError(t, st.Get(store.KindChat, "root", &root))
	require.Equal(t, "original", root.Messages[0].Content)
}

func TestOverrideScenario(t *testing.T) {
	st := store.NewMemoryStore()
	r := resolve.NewResolver(st)

	putChat(t, st, chat.Chat{
		ID: "c1",
		Messages: []chat.Message{
			msg("u1", chat.RoleUser, "hi"),
			msg("a1", chat.RoleAssistant, "hello"),
		},
	})
	c2 := chat.Chat{
		ID:               "c2",
		ParentID:         "c1",
		ForkMessageID:    "a1",
		Messages:         []chat.Message{msg("u2", chat.RoleUser, "bye")},
		ContentOverrides: map[string]string{"a1": "hey there"},
	}
	putChat(t, st, c2)

	view, _, err := r.BuildResolvedView(context.Background(), &c2)
	require.NoError(t, err)

	require.Equal(t, "hey there", view.Messages[1].Content)
	require.True(t, view.Messages[1].Overridden)

	var c1 chat.Chat
	require.NoError(t, st.Get(store.KindChat, "c1", &c1))
	require.Equal(t, "hello", c1.Messages[1].Content)
}

// Tombstoning an inherited message in one branch must not affect a sibling
// sharing the same ancestor.
func TestTombstoneIsolation(t *testing.T) {
	st := store.NewMemoryStore()
	r := resolve.NewResolver(st)

	putChat(t, st, chat.Chat{
		ID: "root",
		Messages: []chat.Message{
			msg("m1", chat.RoleUser, "one"),
			msg("m2", chat.RoleAssistant, "two"),
		},
	})
	b := chat.Chat{
		ID:            "b",
		ParentID:      "root",
		ForkMessageID: "m2",
		Messages:      []chat.Message{},
		Tombstones:    []string{"m2"},
	}
	c := chat.Chat{
		ID:            "c",
		ParentID:      "root",
		ForkMessageID: "m2",
		Messages:      []chat.Message{},
	}
	putChat(t, st, b)
	putChat(t, st, c)

	ctx := context.Background()
	viewB, _, err := r.BuildResolvedView(ctx, &b)
	require.NoError(t, err)
	require.Equal(t, []string{"m1"}, messageIDs(viewB.Messages))

	viewC, _, err := r.BuildResolvedView(ctx, &c)
	require.NoError(t, err)
	require.Equal(t, []string{"m1", "m2"}, messageIDs(viewC.Messages))
}

// A parentId cycle resolves to an empty sequence plus a corruption warning,
// never an infinite loop.
func TestCycleSafety(t *testing.T) {
	st := store.NewMemoryStore()
	r := resolve.NewResolver(st)

	putChat(t, st, chat.Chat{ID: "a", ParentID: "b", ForkMessageID: "x", Messages: []chat.Message{msg("ma", chat.RoleUser, "a")}})
	putChat(t, st, chat.Chat{ID: "b", ParentID: "c", ForkMessageID: "y", Messages: []chat.Message{msg("mb", chat.RoleUser, "b")}})
	putChat(t, st, chat.Chat{ID: "c", ParentID: "a", ForkMessageID: "z", Messages: []chat.Message{msg("mc", chat.RoleUser, "c")}})

	var a chat.Chat
	require.NoError(t, st.Get(store.KindChat, "a", &a))

	view, warns, err := r.BuildResolvedView(context.Background(), &a)
	require.NoError(t, err)
	require.Empty(t, view.Messages)

	found := false
	for _, w := range warns {
		if w.Kind == resolve.WarnCycle {
			found = true
		}
	}
	require.True(t, found, "expected a cycle warning, got %v", warns)
}

func TestDepthBound(t *testing.T) {
	st := store.NewMemoryStore()
	r := resolve.NewResolverWithLimits(st, 3, 0)

	// Chain of 6 chats, each forking at its parent's only message.
	prev := ""
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5", "c6"} {
		c := chat.Chat{
			ID:       id,
			Messages: []chat.Message{msg("m-"+id, chat.RoleUser, id)},
		}
		if prev != "" {
			c.ParentID = prev
			c.ForkMessageID = "m-" + prev
		}
		putChat(t, st, c)
		prev = id
	}

	var leaf chat.Chat
	require.NoError(t, st.Get(store.KindChat, "c6", &leaf))

	view, warns, err := r.BuildResolvedView(context.Background(), &leaf)
	require.NoError(t, err)
	require.Empty(t, view.Messages)

	found := false
	for _, w := range warns {
		if w.Kind == resolve.WarnDepth {
			found = true
		}
	}
	require.True(t, found, "expected a depth warning, got %v", warns)
}

func TestSizeTruncationKeepsTail(t *testing.T) {
	st := store.NewMemoryStore()
	r := resolve.NewResolverWithLimits(st, 0, 3)

	root := chat.Chat{ID: "root"}
	for _, id := range []string{"m1", "m2", "m3", "m4", "m5"} {
		root.Messages = append(root.Messages, msg(id, chat.RoleUser, id))
	}
	putChat(t, st, root)

	msgs, warns, err := r.ResolveAncestry(context.Background(), "root", "")
	require.NoError(t, err)
	require.Equal(t, []string{"m3", "m4", "m5"}, messageIDs(msgs))

	found := false
	for _, w := range warns {
		if w.Kind == resolve.WarnSize {
			found = true
		}
	}
	require.True(t, found, "expected a size warning, got %v", warns)
}

// A legacy ancestor (parent but no fork point) gets its fork point inferred
// by matching (role, content) against the parent from the tail.
func TestLegacyForkInference(t *testing.T) {
	st := store.NewMemoryStore()
	r := resolve.NewResolver(st)

	putChat(t, st, chat.Chat{
		ID: "root",
		Messages: []chat.Message{
			msg("m1", chat.RoleUser, "hi"),
			msg("m2", chat.RoleAssistant, "hello"),
			msg("m3", chat.RoleUser, "more"),
		},
	})
	// Legacy branch: duplicated parent turns, no fork metadata.
	putChat(t, st, chat.Chat{
		ID:       "legacy",
		ParentID: "root",
		Messages: []chat.Message{
			msg("l1", chat.RoleUser, "hi"),
			msg("l2", chat.RoleAssistant, "hello"),
			msg("l3", chat.RoleUser, "diverged"),
		},
	})
	leaf := chat.Chat{
		ID:            "leaf",
		ParentID:      "legacy",
		ForkMessageID: "l3",
		Messages:      []chat.Message{msg("x1", chat.RoleAssistant, "leaf turn")},
	}
	putChat(t, st, leaf)

	view, warns, err := r.BuildResolvedView(context.Background(), &leaf)
	require.NoError(t, err)

	// legacy's inferred fork point is m2 ("hello"), so root contributes
	// m1+m2, then legacy's own l1..l3, then the leaf's turn.
	require.Equal(t, []string{"m1", "m2", "l1", "l2", "l3", "x1"}, messageIDs(view.Messages))

	found := false
	for _, w := range warns {
		if w.Kind == resolve.WarnLegacyInferred {
			found = true
		}
	}
	require.True(t, found, "expected a legacy inference warning, got %v", warns)
}

func TestLegacyForkFallbackIncludesFullParent(t *testing.T) {
	st := store.NewMemoryStore()
	r := resolve.NewResolver(st)

	putChat(t, st, chat.Chat{
		ID: "root",
		Messages: []chat.Message{
			msg("m1", chat.RoleUser, "one"),
			msg("m2", chat.RoleAssistant, "two"),
		},
	})
	putChat(t, st, chat.Chat{
		ID:       "legacy",
		ParentID: "root",
		Messages: []chat.Message{msg("l1", chat.RoleUser, "no overlap")},
	})
	leaf := chat.Chat{
		ID:            "leaf",
		ParentID:      "legacy",
		ForkMessageID: "l1",
		Messages:      []chat.Message{},
	}
	putChat(t, st, leaf)

	view, warns, err := r.BuildResolvedView(context.Background(), &leaf)
	require.NoError(t, err)
	require.Equal(t, []string{"m1", "m2", "l1"}, messageIDs(view.Messages))

	found := false
	for _, w := range warns {
		if w.Kind == resolve.WarnLegacyFallback {
			found = true
		}
	}
	require.True(t, found, "expected a legacy fallback warning, got %v", warns)
}

// The requested chat itself lacking fork metadata serves only its own
// messages plus an advisory.
func TestLegacyBranchViewServesOwnMessages(t *testing.T) {
	st := store.NewMemoryStore()
	r := resolve.NewResolver(st)

	putChat(t, st, chat.Chat{
		ID:       "root",
		Messages: []chat.Message{msg("m1", chat.RoleUser, "one")},
	})
	legacy := chat.Chat{
		ID:       "legacy",
		ParentID: "root",
		Messages: []chat.Message{msg("l1", chat.RoleUser, "own")},
	}
	putChat(t, st, legacy)

	view, warns, err := r.BuildResolvedView(context.Background(), &legacy)
	require.NoError(t, err)
	require.Equal(t, []string{"l1"}, messageIDs(view.Messages))
	require.Len(t, warns, 1)
	require.Equal(t, resolve.WarnLegacyBranch, warns[0].Kind)
}

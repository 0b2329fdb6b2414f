package resolve

import (
	log "github.com/sirupsen/logrus"

	"github.com/taleloom/taleloom/backend/internal/metrics"
)

// WarningKind classifies an advisory signal emitted during resolution.
// Warnings are never errors: resolution degrades to a best-effort result and
// the surrounding system decides whether to alert the operator.
type WarningKind string

const (
	// WarnCycle means the ancestor chain loops back on itself.
	WarnCycle WarningKind = "cycle"
	// WarnDepth means the ancestor chain exceeded the depth bound.
	WarnDepth WarningKind = "depth-exceeded"
	// WarnSize means the assembled history was truncated to its tail.
	WarnSize WarningKind = "size-truncated"
	// WarnLegacyInferred means a missing fork point was recovered by
	// content matching against the parent.
	WarnLegacyInferred WarningKind = "legacy-fork-inferred"
	// WarnLegacyFallback means content matching failed and the entire
	// parent history was included instead.
	WarnLegacyFallback WarningKind = "legacy-fork-fallback"
	// WarnLegacyBranch means the requested chat itself has a parent but no
	// fork point, so its view may be incomplete.
	WarnLegacyBranch WarningKind = "legacy-branch"
)

// Warning is an advisory produced while resolving a chat's ancestry.
type Warning struct {
	Kind   WarningKind `json:"kind"`
	ChatID string      `json:"chatId"`
	Detail string      `json:"detail,omitempty"`
}

// Corruption reports whether the warning indicates a damaged tree rather
// than merely legacy or oversized data. A corrupt ancestry poisons the whole
// resolved history; anything else degrades to a best-effort result.
func (w Warning) Corruption() bool {
	return w.Kind == WarnCycle || w.Kind == WarnDepth
}

// report logs the warning and bumps its counter. Called once per emission so
// every advisory is observable even when the caller drops the slice.
func report(w Warning) Warning {
	log.WithFields(log.Fields{
		"kind":   string(w.Kind),
		"chatId": w.ChatID,
		"detail": w.Detail,
	}).Warn("resolution warning")
	metrics.ResolutionWarnings.WithLabelValues(string(w.Kind)).Inc()
	return w
}

// Package macro expands template placeholders against a resolved chat
// context. Two passes run in order: bracketed multi-property macros like
// {{characters[name,description]}}, then scalar and dotted macros like
// {{player}} or {{<characterId>.description}}. An unresolved macro is left
// verbatim in the output and logged; it is never an error.
package macro

import (
	"fmt"
	"html"
	"math/rand"
	"path"
	"regexp"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/taleloom/taleloom/backend/internal/model/character"
	"github.com/taleloom/taleloom/backend/internal/model/note"
)

// Context is the snapshot a template is expanded against. Participants are
// the characters in the current chat; Library is the full character library
// used to resolve dotted id macros; Notes are the chat's active notes.
type Context struct {
	Library      []character.Character
	Participants []character.Character
	Notes        []note.Note
	PersonaID    string
	Now          func() time.Time
	RandInt      func(n int) int
}

func (c *Context) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Context) randInt(n int) int {
	if c.RandInt != nil {
		return c.RandInt(n)
	}
	return rand.Intn(n)
}

// persona returns the persona character from the library, if any.
func (c *Context) persona() (character.Character, bool) {
	if c.PersonaID == "" {
		return character.Character{}, false
	}
	return c.lookup(c.PersonaID)
}

func (c *Context) lookup(id string) (character.Character, bool) {
	for _, ch := range c.Library {
		if ch.ID == id {
			return ch, true
		}
	}
	for _, ch := range c.Participants {
		if ch.ID == id {
			return ch, true
		}
	}
	return character.Character{}, false
}

// augmentedDescription is the character's base description with every active
// note's per-character override text appended, blank-line separated.
func (c *Context) augmentedDescription(ch character.Character) string {
	parts := []string{ch.Description}
	for _, n := range c.Notes {
		if extra, ok := n.CharacterOverrides[ch.ID]; ok && extra != "" {
			parts = append(parts, extra)
		}
	}
	return strings.Join(parts, "\n\n")
}

var (
	bracketPattern = regexp.MustCompile(`\{\{([A-Za-z]+)\[([^\]]*)\]\}\}`)
	scalarPattern  = regexp.MustCompile(`\{\{([A-Za-z0-9_-]+)(?:\.([A-Za-z0-9_-]+))?\}\}`)
)

// Engine expands templates. It holds no state; the zero value is usable.
type Engine struct{}

// New returns a macro engine.
func New() *Engine { return &Engine{} }

// Expand runs both expansion passes over template. Output is byte-identical
// for identical inputs except for the time, date and random macros.
func (e *Engine) Expand(template string, ctx *Context) string {
	out := bracketPattern.ReplaceAllStringFunc(template, func(match string) string {
		groups := bracketPattern.FindStringSubmatch(match)
		replaced, ok := e.expandBracketed(groups[1], groups[2], ctx)
		if !ok {
			log.WithField("macro", match).Warn("unresolved bracketed macro left verbatim")
			return match
		}
		return replaced
	})

	out = scalarPattern.ReplaceAllStringFunc(out, func(match string) string {
		groups := scalarPattern.FindStringSubmatch(match)
		replaced, ok := e.expandScalar(groups[1], groups[2], ctx)
		if !ok {
			log.WithField("macro", match).Warn("unresolved macro left verbatim")
			return match
		}
		return replaced
	})

	return out
}

// escape encodes the five reserved markup characters in user-supplied text.
func escape(s string) string {
	return html.EscapeString(s)
}

// expandBracketed handles pass one. Only the "characters" family is defined;
// anything else stays verbatim.
func (e *Engine) expandBracketed(name, propList string, ctx *Context) (string, bool) {
	if !strings.EqualFold(name, "characters") {
		return "", false
	}

	props := make([]string, 0, 4)
	for _, p := range strings.Split(propList, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			props = append(props, p)
		}
	}

	includePersona := false
	for _, p := range props {
		if p == "player" || p == "focus" {
			includePersona = true
		}
	}

	roster := append([]character.Character(nil), ctx.Participants...)
	if includePersona {
		if p, ok := ctx.persona(); ok && !rosterContains(roster, p.ID) {
			roster = append(roster, p)
		}
	}

	var blocks []string
	for _, ch := range roster {
		focus := includePersona && ctx.PersonaID != "" && ch.ID == ctx.PersonaID
		if block := renderCharacterBlock(ch, props, focus, ctx); block != "" {
			blocks = append(blocks, block)
		}
	}
	return strings.Join(blocks, "\n"), true
}

func rosterContains(roster []character.Character, id string) bool {
	for _, ch := range roster {
		if ch.ID == id {
			return true
		}
	}
	return false
}

// renderCharacterBlock emits one tagged block per character, with one
// sub-element per requested property the character actually has. A character
// matching no requested property renders nothing.
func renderCharacterBlock(ch character.Character, props []string, focus bool, ctx *Context) string {
	var lines []string
	for _, prop := range props {
		switch prop {
		case "name":
			if ch.Name != "" {
				lines = append(lines, fmt.Sprintf("  <name>%s</name>", escape(ch.Name)))
			}
		case "description":
			if desc := strings.TrimSpace(ctx.augmentedDescription(ch)); desc != "" {
				lines = append(lines, fmt.Sprintf("  <description>%s</description>", escape(desc)))
			}
		case "avatar":
			if ch.Avatar != "" {
				lines = append(lines, fmt.Sprintf("  <avatar>%s</avatar>", escape(path.Base(ch.Avatar))))
			}
		case "images", "gallery":
			for _, img := range ch.Gallery {
				lines = append(lines, fmt.Sprintf("  <image>%s</image>", escape(img)))
			}
		case "expressions":
			for _, expr := range ch.Expressions {
				lines = append(lines, fmt.Sprintf("  <expression>%s</expression>", escape(expr)))
			}
		case "player", "focus":
			// Roster flag, handled by the caller; emits nothing itself.
		}
	}
	if len(lines) == 0 {
		return ""
	}

	open := fmt.Sprintf("<character id=\"%s\">", escape(ch.ID))
	if focus {
		open = fmt.Sprintf("<character id=\"%s\" focus=\"true\">", escape(ch.ID))
	}
	return open + "\n" + strings.Join(lines, "\n") + "\n</character>"
}

// macroKind enumerates the scalar macro families so dispatch is an explicit
// switch rather than a table of closures.
type macroKind int

const (
	macroUnknown macroKind = iota
	macroCharacters
	macroNotes
	macroPlayer
	macroTime
	macroDate
	macroRandom
	macroDotted
)

func classify(ident, prop string) macroKind {
	switch strings.ToLower(ident) {
	case "characters":
		if prop == "" {
			return macroCharacters
		}
	case "notes", "scenarios":
		if prop == "" {
			return macroNotes
		}
	case "player":
		return macroPlayer
	case "time":
		if prop == "" {
			return macroTime
		}
	case "date":
		if prop == "" {
			return macroDate
		}
	case "random":
		if prop == "" {
			return macroRandom
		}
	}
	if prop != "" {
		return macroDotted
	}
	return macroUnknown
}

// expandScalar handles pass two.
func (e *Engine) expandScalar(ident, prop string, ctx *Context) (string, bool) {
	switch classify(ident, prop) {
	case macroCharacters:
		return e.renderParticipants(ctx), true
	case macroNotes:
		return e.renderNotes(ctx), true
	case macroPlayer:
		return e.renderPlayer(prop, ctx)
	case macroTime:
		return ctx.now().Format("15:04:05"), true
	case macroDate:
		return ctx.now().Format("January 2, 2006"), true
	case macroRandom:
		return fmt.Sprintf("%d", ctx.randInt(1000000)), true
	case macroDotted:
		return e.renderDotted(ident, prop, ctx)
	}
	return "", false
}

func (e *Engine) renderParticipants(ctx *Context) string {
	var parts []string
	for _, ch := range ctx.Participants {
		entry := fmt.Sprintf("%s (%s)", ch.Name, ch.ID)
		if desc := strings.TrimSpace(ctx.augmentedDescription(ch)); desc != "" {
			entry += "\n" + desc
		}
		parts = append(parts, entry)
	}
	return strings.Join(parts, "\n\n")
}

func (e *Engine) renderNotes(ctx *Context) string {
	var parts []string
	for _, n := range ctx.Notes {
		if strings.TrimSpace(n.Description) == "" {
			continue
		}
		if n.Describes != "" {
			parts = append(parts, fmt.Sprintf("<note describes=\"%s\">%s</note>", escape(n.Describes), escape(n.Description)))
		} else {
			parts = append(parts, fmt.Sprintf("<note>%s</note>", escape(n.Description)))
		}
	}
	return strings.Join(parts, "\n\n")
}

func (e *Engine) renderPlayer(prop string, ctx *Context) (string, bool) {
	p, ok := ctx.persona()
	if !ok {
		return "", false
	}
	switch strings.ToLower(prop) {
	case "":
		return p.Name + "\n" + ctx.augmentedDescription(p), true
	case "name":
		return p.Name, true
	case "description":
		return ctx.augmentedDescription(p), true
	}
	return "", false
}

func (e *Engine) renderDotted(id, prop string, ctx *Context) (string, bool) {
	ch, ok := ctx.lookup(id)
	if !ok {
		return "", false
	}
	switch strings.ToLower(prop) {
	case "name":
		return ch.Name, true
	case "description":
		return ctx.augmentedDescription(ch), true
	case "images":
		return strings.Join(ch.Gallery, "\n"), true
	}
	return "", false
}

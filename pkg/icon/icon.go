// Package icon resolves category icon strings for display. An icon is
// either a literal glyph (usually an emoji) or a ":namespace:name"
// reference into an icon set.
package icon

import (
	"strings"
	"sync"
	"unicode"
)

type Icon struct {
	// Name is the canonical icon set reference, e.g. "lucide:server".
	// Empty for literal glyphs nothing maps to.
	Name string
	// Glyph is what a text renderer prints.
	Glyph string
	// Literal is set when the raw value was printed as-is.
	Literal bool
}

type Resolver interface {
	Resolve(raw string) Icon
}

type ResolverFunc func(raw string) Icon

func (f ResolverFunc) Resolve(raw string) Icon { return f(raw) }

// Literal is a Resolver that never maps anything.
var Literal Resolver = ResolverFunc(func(raw string) Icon {
	return Icon{Glyph: raw, Literal: true}
})

// Parse splits ":namespace:name". Names are folded to kebab case, so
// ":lucide:HardDrive", ":lucide:hard_drive" and ":lucide:hard-drive" match.
func Parse(raw string) (namespace, name string, ok bool) {
	if !strings.HasPrefix(raw, ":") {
		return "", "", false
	}
	rest := raw[1:]
	i := strings.IndexByte(rest, ':')
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return strings.ToLower(rest[:i]), normalizeName(rest[i+1:]), true
}

func normalizeName(s string) string {
	var b strings.Builder
	var prev rune
	for i, r := range strings.TrimSpace(s) {
		switch {
		case r == '_' || r == ' ':
			r = '-'
		case i > 0 && unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			b.WriteByte('-')
		case i > 0 && unicode.IsDigit(r) && unicode.IsLetter(prev):
			b.WriteByte('-')
		}
		b.WriteRune(unicode.ToLower(r))
		prev = r
	}
	return b.String()
}

// Table maps icon references to glyphs and literal glyphs to references.
// It is safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	glyphs  map[string]string // "ns:name" -> glyph
	aliases map[string]string // glyph -> "ns:name"
}

func NewTable() *Table {
	return &Table{glyphs: map[string]string{}, aliases: map[string]string{}}
}

func (t *Table) Register(namespace, name, glyph string) {
	t.mu.Lock()
	t.glyphs[strings.ToLower(namespace)+":"+normalizeName(name)] = glyph
	t.mu.Unlock()
}

// Alias makes a literal glyph resolve to an icon set reference.
func (t *Table) Alias(glyph, namespace, name string) {
	t.mu.Lock()
	t.aliases[glyph] = strings.ToLower(namespace) + ":" + normalizeName(name)
	t.mu.Unlock()
}

func (t *Table) Resolve(raw string) Icon {
	raw = strings.TrimSpace(raw)
	t.mu.RLock()
	defer t.mu.RUnlock()
	if ns, name, ok := Parse(raw); ok {
		ref := ns + ":" + name
		if g, ok := t.glyphs[ref]; ok {
			return Icon{Name: ref, Glyph: g}
		}
		return Icon{Glyph: raw, Literal: true}
	}
	if ref, ok := t.aliases[raw]; ok {
		return Icon{Name: ref, Glyph: raw}
	}
	return Icon{Glyph: raw, Literal: true}
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the built-in lucide table.
func Default() *Table {
	defaultOnce.Do(func() {
		defaultTable = NewTable()
		for name, glyph := range lucideGlyphs {
			defaultTable.Register("lucide", name, glyph)
		}
		for glyph, name := range emojiAliases {
			defaultTable.Alias(glyph, "lucide", name)
		}
	})
	return defaultTable
}

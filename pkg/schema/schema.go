// Package schema maps a decoded wire document onto the typed Snapshot model.
//
// Structural problems fail the whole document with a path-qualified
// SCHEMA_MISMATCH. Unknown schema versions, unknown component types and
// unknown enum names are tolerated and reported as warnings.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	"raisu/pkg/domain"
	"raisu/pkg/wire"
)

type WarningKind string

const (
	WarnUnknownVersion WarningKind = "UNKNOWN_VERSION"
	WarnUnknownType    WarningKind = "UNKNOWN_COMPONENT_TYPE"
	WarnUnknownEnum    WarningKind = "UNKNOWN_ENUM_VALUE"
	WarnClamped        WarningKind = "VALUE_CLAMPED"
)

type Warning struct {
	Kind    WarningKind `json:"kind"`
	Path    string      `json:"path"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	if w.Path == "" {
		return w.Message
	}
	return w.Path + ": " + w.Message
}

// Mapper holds mapping options. The zero value is ready to use.
type Mapper struct {
	// MaxDepth bounds component and tree nesting. Zero means
	// wire.DefaultMaxDepth.
	MaxDepth int
}

// Map converts doc with default options.
func Map(doc any) (*domain.Snapshot, []Warning, error) {
	return Mapper{}.Map(doc)
}

func (mp Mapper) Map(doc any) (*domain.Snapshot, []Warning, error) {
	m := &mapper{maxDepth: mp.MaxDepth}
	if m.maxDepth <= 0 {
		m.maxDepth = wire.DefaultMaxDepth
	}
	s, err := m.snapshot(doc)
	if err != nil {
		return nil, nil, err
	}
	return s, m.warnings, nil
}

type mapper struct {
	maxDepth int
	warnings []Warning
}

func (m *mapper) warn(kind WarningKind, path, format string, args ...interface{}) {
	m.warnings = append(m.warnings, Warning{Kind: kind, Path: path, Message: fmt.Sprintf(format, args...)})
}

func (m *mapper) snapshot(doc any) (*domain.Snapshot, error) {
	root, err := asRecord(doc, "")
	if err != nil {
		return nil, err
	}
	s := &domain.Snapshot{}
	if s.SchemaVersion, err = root.intOr("version", domain.SchemaLegacy); err != nil {
		return nil, err
	}
	if !domain.KnownVersion(s.SchemaVersion) {
		m.warn(WarnUnknownVersion, "version",
			"unknown schema version %d, rendering best-effort", s.SchemaVersion)
	}
	if s.CapturedAt, err = root.intOr("timestamp", 0); err != nil {
		return nil, err
	}
	if s.ServerLabel, err = strOr(root, "serverVersion"); err != nil {
		return nil, err
	}
	if s.RuntimeLabel, err = strOr(root, "javaVersion"); err != nil {
		return nil, err
	}

	cats, err := root.listOr("categories")
	if err != nil {
		return nil, err
	}
	s.Categories = make([]domain.Category, 0, len(cats))
	for i, c := range cats {
		cat, err := m.category(c, index("categories", i))
		if err != nil {
			return nil, err
		}
		s.Categories = append(s.Categories, cat)
	}
	SortCategories(s.Categories)
	return s, nil
}

// SortCategories orders categories by ascending priority, keeping the
// received order among equal priorities.
func SortCategories(cats []domain.Category) {
	sort.SliceStable(cats, func(i, j int) bool {
		return cats[i].Priority < cats[j].Priority
	})
}

func (m *mapper) category(v any, path string) (domain.Category, error) {
	var c domain.Category
	rec, err := asRecord(v, path)
	if err != nil {
		return c, err
	}
	if c.ID, err = rec.str("id"); err != nil {
		return c, err
	}
	name, err := rec.require("name")
	if err != nil {
		return c, err
	}
	if c.Name, err = rawName(name, rec.at("name")); err != nil {
		return c, err
	}
	c.DisplayName = NormalizeDisplayName(c.Name)
	if c.Icon, err = strOr(rec, "icon"); err != nil {
		return c, err
	}
	if c.Priority, err = rec.intOr("priority", 0); err != nil {
		return c, err
	}
	list, err := rec.listOr("components")
	if err != nil {
		return c, err
	}
	c.Components, err = m.components(list, rec.at("components"), 1)
	return c, err
}

func strOr(r record, key string) (string, error) {
	s, err := r.optStr(key)
	if err != nil || s == nil {
		return "", err
	}
	return *s, nil
}

// rawName keeps a string name as sent. A structured name is re-encoded as
// JSON so it runs through the same display normalization.
func rawName(v any, path string) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case *wire.Object, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return "", mismatch(path, "name cannot be encoded: %v", err)
		}
		return string(b), nil
	}
	return "", wrongType(path, "string", v)
}

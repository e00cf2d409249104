package domain

import (
	"time"
)

// Schema versions a decoder fully understands. Version 0 is the legacy
// layout produced before the version field existed.
const (
	SchemaLegacy int64 = 0
	SchemaV1     int64 = 1
	SchemaV2     int64 = 2
)

func KnownVersion(v int64) bool {
	return v >= SchemaLegacy && v <= SchemaV2
}

// Snapshot is the decoded root document. It is built once per decode and
// never mutated afterwards.
type Snapshot struct {
	SchemaVersion int64      `json:"version"`
	CapturedAt    int64      `json:"timestamp"`
	ServerLabel   string     `json:"serverVersion"`
	RuntimeLabel  string     `json:"javaVersion"`
	Categories    []Category `json:"categories"`
}

func (s *Snapshot) CapturedTime() time.Time {
	return time.UnixMilli(s.CapturedAt)
}

// ComponentCount counts every component in the snapshot, containers and
// their descendants included.
func (s *Snapshot) ComponentCount() int {
	n := 0
	for _, c := range s.Categories {
		Walk(c.Components, func(Component, int) bool {
			n++
			return true
		})
	}
	return n
}

type Category struct {
	ID string `json:"id"`
	// Name is the raw wire value, possibly a rich-text JSON document.
	Name        string     `json:"name"`
	DisplayName string     `json:"displayName"`
	Icon        string     `json:"icon"`
	Priority    int64      `json:"priority"`
	Components  Components `json:"components"`
}

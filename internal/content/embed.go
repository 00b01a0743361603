package content

import (
	"embed"
	"encoding/json"
)

// defaultFS holds the embedded fallback assets.
//
//go:embed default/chapters.json
var defaultFS embed.FS

// DefaultChapterNames returns the embedded chapter catalog, used by the study
// planner when a snapshot carries no chapter names of its own.
func DefaultChapterNames() []string {
	b, err := defaultFS.ReadFile("default/chapters.json")
	if err != nil {
		return nil // embed is checked at build time; this cannot happen
	}
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return nil
	}
	return names
}

// Chapters returns the snapshot's chapter names, falling back to the
// embedded catalog when the snapshot has none.
func (s *Snapshot) Chapters() []string {
	if s != nil && len(s.ChapterNames) > 0 {
		return s.ChapterNames
	}
	return DefaultChapterNames()
}

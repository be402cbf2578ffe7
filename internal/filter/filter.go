// Package filter selects listing entries by name globs, search terms and
// folder path globs.
package filter

import (
	"path"
	"strings"

	"github.com/keystone-cm/filedesk/internal/models"
)

// Config holds filter configuration. The zero value matches everything.
type Config struct {
	// Include globs matched against the entry name. Empty means include all.
	Include []string

	// Exclude globs take precedence over Include.
	Exclude []string

	// Search terms are case-insensitive substrings; all must match.
	Search []string

	// Paths are globs matched against the entry's full path ("/a/b/c").
	// "**" matches any number of path segments.
	Paths []string

	// FoldersOnly and FilesOnly restrict by kind.
	FoldersOnly bool
	FilesOnly   bool
}

// IsEmpty reports whether cfg filters nothing out.
func (c Config) IsEmpty() bool {
	return len(c.Include) == 0 && len(c.Exclude) == 0 && len(c.Search) == 0 &&
		len(c.Paths) == 0 && !c.FoldersOnly && !c.FilesOnly
}

// Apply returns the entries matching cfg, in input order. pathOf resolves an
// entry's full path and is only consulted when Paths is set; a nil pathOf
// makes path patterns match against the bare name.
func Apply(entries []models.Entry, cfg Config, pathOf func(models.Entry) string) []models.Entry {
	if cfg.IsEmpty() {
		return entries
	}

	out := make([]models.Entry, 0, len(entries))
	for _, e := range entries {
		if cfg.FoldersOnly && !e.IsFolder() || cfg.FilesOnly && e.IsFolder() {
			continue
		}
		if len(cfg.Paths) > 0 {
			p := e.Name
			if pathOf != nil {
				p = pathOf(e)
			}
			if !MatchesAnyPath(p, cfg.Paths) {
				continue
			}
		}
		if MatchesName(e.Name, cfg) {
			out = append(out, e)
		}
	}
	return out
}

// MatchesName applies the Include, Exclude and Search rules to one name.
func MatchesName(name string, cfg Config) bool {
	for _, pattern := range cfg.Exclude {
		if ok, _ := path.Match(pattern, name); ok {
			return false
		}
	}

	if len(cfg.Include) > 0 {
		included := false
		for _, pattern := range cfg.Include {
			if ok, _ := path.Match(pattern, name); ok {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}

	lower := strings.ToLower(name)
	for _, term := range cfg.Search {
		if !strings.Contains(lower, strings.ToLower(term)) {
			return false
		}
	}
	return true
}

// MatchesAnyPath reports whether p matches at least one pattern. A leading
// slash is ignored on both sides.
func MatchesAnyPath(p string, patterns []string) bool {
	p = strings.TrimPrefix(p, "/")
	for _, pattern := range patterns {
		if matchPath(p, strings.TrimPrefix(pattern, "/")) {
			return true
		}
	}
	return false
}

// matchPath matches slash-separated p against pattern segment by segment.
// "**" consumes zero or more segments; other segments use path.Match.
//
//	"**/report.pdf" matches "report.pdf" and "a/b/report.pdf"
//	"projects/**"   matches "projects" and "projects/x/y"
//	"run_*/out"     matches "run_1/out"
func matchPath(p, pattern string) bool {
	if pattern == "**" {
		return true
	}
	return matchSegments(splitPath(p), splitPath(pattern))
}

func matchSegments(parts, pats []string) bool {
	for len(pats) > 0 {
		if pats[0] == "**" {
			rest := pats[1:]
			for i := 0; i <= len(parts); i++ {
				if matchSegments(parts[i:], rest) {
					return true
				}
			}
			return false
		}
		if len(parts) == 0 {
			return false
		}
		if ok, _ := path.Match(pats[0], parts[0]); !ok {
			return false
		}
		parts, pats = parts[1:], pats[1:]
	}
	return len(parts) == 0
}

func splitPath(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// ParsePatternList splits a comma-separated flag value into trimmed patterns.
// Example: "*.dat, *.txt" -> ["*.dat", "*.txt"]
func ParsePatternList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Package ignore compiles exclusion patterns into a matcher that is
// evaluated once per directory entry during a scan.
//
// Pattern syntax:
//   - "name/"   matches directories only
//   - "a/b*"    a pattern containing "/" matches the full slash-relative path
//   - "*.log"   anything else matches the entry's base name
package ignore

import (
	"fmt"
	"path"
	"strings"
)

// DefaultPatterns are always applied in addition to project overrides.
var DefaultPatterns = []string{
	".git/",
	".svn/",
	".hg/",
	"node_modules/",
	"vendor/",
	"__pycache__/",
	".venv/",
	"venv/",
	".mypy_cache/",
	".pytest_cache/",
	".idea/",
	".vscode/",
	"dist/",
	"build/",
	"*.pyc",
	"*.o",
	"*.so",
	"*.swp",
	"*.tmp",
	".DS_Store",
	"Thumbs.db",
}

type rule struct {
	glob     string
	dirOnly  bool
	fullPath bool
}

// Matcher reports whether a relative path is excluded. It is immutable
// and safe for concurrent use.
type Matcher struct {
	patterns []string
	rules    []rule
}

// New compiles patterns. Blank entries are dropped; malformed globs are
// an error.
func New(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range Merge(patterns) {
		r := rule{glob: p}
		if strings.HasSuffix(r.glob, "/") {
			r.dirOnly = true
			r.glob = strings.TrimSuffix(r.glob, "/")
		}
		r.glob = strings.TrimPrefix(r.glob, "/")
		r.fullPath = strings.Contains(r.glob, "/") || strings.HasPrefix(p, "/")
		if r.glob == "" {
			continue
		}
		if _, err := path.Match(r.glob, ""); err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}
		m.rules = append(m.rules, r)
		m.patterns = append(m.patterns, p)
	}
	return m, nil
}

// Match reports whether rel (slash-separated, relative to the scan root)
// is excluded.
func (m *Matcher) Match(rel string, isDir bool) bool {
	if m == nil {
		return false
	}
	base := path.Base(rel)
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		target := base
		if r.fullPath {
			target = rel
		}
		if ok, _ := path.Match(r.glob, target); ok {
			return true
		}
	}
	return false
}

// Patterns returns the source patterns in evaluation order.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.patterns))
	copy(out, m.patterns)
	return out
}

// Merge concatenates pattern lists, dropping blanks and duplicates while
// keeping first-seen order.
func Merge(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, p := range list {
			p = strings.TrimSpace(p)
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Escape quotes glob metacharacters in a literal path so it can be used as
// a pattern that matches only itself.
func Escape(literal string) string {
	var b strings.Builder
	for _, r := range literal {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

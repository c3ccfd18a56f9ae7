package exclude

import (
	"path"
	"strings"
)

// Matcher filters relative paths out of a transfer by pattern. A pattern
// ending in "/" matches a directory and everything under it; glob
// patterns match the full relative path or the base name; plain names
// match exactly or as a base name for files.
type Matcher struct {
	patterns []string
}

// DefaultPatterns returns the patterns applied to uploads unless the
// caller opts out: tool droppings and secrets that should not land on a
// shared storage system.
func DefaultPatterns() []string {
	return []string{
		".git/",
		".DS_Store",
		"._*",
		"*.tmp",
		"*.swp",
		".env",
		".env.*",
		"*.key",
		"*.pem",
	}
}

// New builds a matcher from exactly the given patterns
func New(patterns []string) *Matcher {
	cleaned := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return &Matcher{patterns: cleaned}
}

// NewWithDefaults builds a matcher from the default patterns plus extras
func NewWithDefaults(patterns []string) *Matcher {
	return New(append(DefaultPatterns(), patterns...))
}

// IsExcluded reports whether relPath should be left out of the transfer
func (m *Matcher) IsExcluded(relPath string, isDir bool) bool {
	if m == nil {
		return false
	}
	relPath = strings.TrimPrefix(relPath, "./")
	for _, p := range m.patterns {
		if strings.HasSuffix(p, "/") {
			dirPattern := strings.TrimSuffix(p, "/")
			if relPath == dirPattern || strings.HasPrefix(relPath, dirPattern+"/") {
				return true
			}
			continue
		}
		if strings.ContainsAny(p, "*?[]") {
			if ok, _ := path.Match(p, relPath); ok {
				return true
			}
			if ok, _ := path.Match(p, path.Base(relPath)); ok {
				return true
			}
			continue
		}
		if relPath == p || strings.HasPrefix(relPath, p+"/") {
			return true
		}
		if !isDir && path.Base(relPath) == p {
			return true
		}
	}
	return false
}

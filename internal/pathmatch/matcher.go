// Package pathmatch decides which file paths an exclude-pattern list drops
// from a review. Patterns follow filepath.Match syntax with one extension:
// a "dir/**" (or "dir/**/*") pattern excludes the whole directory subtree,
// and a "**/name" pattern matches the name anywhere in the tree.
package pathmatch

import (
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Warnings tracks exclude patterns already reported as unsupported, so each
// one is logged at most once. The caller owns the set; allocating a fresh
// one per run keeps runs independent.
type Warnings map[string]bool

// NewWarnings returns an empty warn-once set.
func NewWarnings() Warnings {
	return make(Warnings)
}

func (w Warnings) warnOnce(pattern, reason string) {
	if w == nil || w[pattern] {
		return
	}
	w[pattern] = true
	log.Warn().
		Str("pattern", pattern).
		Str("reason", reason).
		Msg("Skipping unsupported exclude pattern")
}

// Excluded reports whether path matches any of the glob patterns. Paths are
// normalized to forward slashes before matching. Patterns that cannot be
// evaluated are skipped after a single warning recorded in warn.
func Excluded(path string, patterns []string, warn Warnings) bool {
	if len(patterns) == 0 {
		return false
	}
	path = filepath.ToSlash(path)
	for _, pattern := range patterns {
		if matchOne(path, pattern, warn) {
			return true
		}
	}
	return false
}

func matchOne(path, pattern string, warn Warnings) bool {
	if strings.Contains(pattern, "**") {
		// filepath.Match has no recursive wildcard; support the two forms
		// diffs actually use and refuse the rest.
		if prefix, ok := subtreePrefix(pattern); ok {
			return path == prefix || strings.HasPrefix(path, prefix+"/")
		}
		if rest, ok := strings.CutPrefix(pattern, "**/"); ok &&
			!strings.Contains(rest, "**") && !strings.Contains(rest, "/") {
			matched, err := filepath.Match(rest, filepath.Base(path))
			return err == nil && matched
		}
		warn.warnOnce(pattern, "recursive wildcard only supported as dir/** or **/name")
		return false
	}

	matched, err := filepath.Match(pattern, path)
	if err != nil {
		warn.warnOnce(pattern, "malformed pattern")
		return false
	}
	if matched {
		return true
	}
	// Bare name patterns also match against the base name, so "*.lock"
	// excludes lockfiles at any depth.
	if !strings.Contains(pattern, "/") {
		matched, _ = filepath.Match(pattern, filepath.Base(path))
		return matched
	}
	return false
}

// subtreePrefix extracts dir from the "dir/**" and "dir/**/*" forms.
func subtreePrefix(pattern string) (string, bool) {
	for _, suffix := range []string{"/**/*", "/**"} {
		if strings.HasSuffix(pattern, suffix) {
			prefix := strings.TrimSuffix(pattern, suffix)
			if prefix != "" && !strings.Contains(prefix, "*") {
				return prefix, true
			}
		}
	}
	return "", false
}

// Package redact scrubs credential-looking values out of rendered review
// context before it is handed to an analyzer process.
package redact

import (
	"regexp"

	"github.com/rs/zerolog/log"
)

const placeholder = "[REDACTED]"

// secretPatterns are ordered heuristics for common credential formats.
// Specific vendor formats come before the generic assignment patterns.
// Character classes deliberately exclude newlines so redaction never
// changes the line structure of annotated context.
var secretPatterns = []*regexp.Regexp{
	// AWS access key IDs
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	// GitHub tokens
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
	// GitLab personal access tokens
	regexp.MustCompile(`glpat-[A-Za-z0-9_-]{20,}`),
	// Slack tokens
	regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`),
	// JWTs (three base64url segments separated by dots)
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	// Bearer tokens
	regexp.MustCompile(`(?i)Bearer +[A-Za-z0-9._-]{20,}`),
	// Private key block markers
	regexp.MustCompile(`-----BEGIN +(?:[A-Z]+ +)?PRIVATE KEY-----`),
	// API key assignments
	regexp.MustCompile(`(?i)(?:api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?[A-Za-z0-9/+=_-]{20,}["']?`),
	// AWS secret access keys in assignments
	regexp.MustCompile(`(?i)aws[_-]?secret[_-]?access[_-]?key\s*[:=]\s*["']?[A-Za-z0-9/+=]{40}["']?`),
	// Quoted secrets, tokens and passwords in assignments
	regexp.MustCompile(`(?i)(?:secret|token|password|passwd|credential)\s*[:=]\s*["'][^"'\n]{8,}["']`),
}

// Secrets replaces anything that looks like a credential with a
// placeholder and returns the scrubbed text.
func Secrets(text string) string {
	replaced := 0
	for _, pat := range secretPatterns {
		text = pat.ReplaceAllStringFunc(text, func(string) string {
			replaced++
			return placeholder
		})
	}
	if replaced > 0 {
		log.Debug().Int("replacements", replaced).Msg("redacted credential-looking values from context")
	}
	return text
}

// Package dedup collapses duplicate findings produced by overlapping
// review chunks. It runs two stages: exact-key matching on location and
// normalized title, then a fuzzy pass that treats findings in the same
// file with overlapping line ranges and similar titles as one.
package dedup

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/synth/copilot-review-agent/pkg/models"
)

// DefaultSimilarityThreshold is the minimum Jaccard similarity between
// title token sets for two findings to count as near-duplicates.
const DefaultSimilarityThreshold = 0.6

// Deduper removes duplicate findings while preserving input order.
type Deduper struct {
	threshold float64
}

// New returns a Deduper using the given similarity threshold. Values
// outside (0, 1] fall back to DefaultSimilarityThreshold.
func New(threshold float64) *Deduper {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	return &Deduper{threshold: threshold}
}

type keptFinding struct {
	startLine int
	endLine   int
	tokens    map[string]bool
}

// Dedupe returns the findings with duplicates removed. The first
// occurrence of a duplicate group wins; later ones are dropped.
func (d *Deduper) Dedupe(findings []models.Finding) []models.Finding {
	if len(findings) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(findings))
	byFile := make(map[string][]keptFinding)
	out := make([]models.Finding, 0, len(findings))

	for _, f := range findings {
		tokens := titleTokens(f.Title)

		key := fmt.Sprintf("%s|%d|%d|%s", f.File, f.StartLine, f.EndLine, strings.Join(tokens, " "))
		if seen[key] {
			log.Debug().Str("file", f.File).Str("title", f.Title).Msg("dropping exact duplicate finding")
			continue
		}

		tokenSet := make(map[string]bool, len(tokens))
		for _, t := range tokens {
			tokenSet[t] = true
		}

		if d.nearDuplicate(byFile[f.File], f, tokenSet) {
			log.Debug().Str("file", f.File).Str("title", f.Title).Msg("dropping near-duplicate finding")
			continue
		}

		seen[key] = true
		byFile[f.File] = append(byFile[f.File], keptFinding{
			startLine: f.StartLine,
			endLine:   f.EndLine,
			tokens:    tokenSet,
		})
		out = append(out, f)
	}

	return out
}

// nearDuplicate reports whether f overlaps a kept finding in the same
// file with a sufficiently similar title.
func (d *Deduper) nearDuplicate(kept []keptFinding, f models.Finding, tokens map[string]bool) bool {
	for _, k := range kept {
		if !rangesOverlap(k.startLine, k.endLine, f.StartLine, f.EndLine) {
			continue
		}
		if jaccard(k.tokens, tokens) >= d.threshold {
			return true
		}
	}
	return false
}

func rangesOverlap(aStart, aEnd, bStart, bEnd int) bool {
	return aStart <= bEnd && bStart <= aEnd
}

// jaccard computes intersection over union of two token sets. Empty
// sets never match anything.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if b[t] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// titleTokens lowercases a title and splits it on anything that is not
// a letter or digit, so punctuation and word order do not affect
// comparison.
func titleTokens(title string) []string {
	return strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

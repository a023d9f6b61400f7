// Package excerpt turns a file's hunks plus its full text into the annotated
// source windows an analyzer reads. Windows cover every hunk with a margin
// of surrounding lines, and windows that touch or overlap are merged so no
// source line is ever printed twice.
package excerpt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/synth/copilot-review-agent/pkg/models"
)

// Windows computes the merged context windows covering every hunk plus
// margin lines on each side, clamped to the file's line count. The merge is
// a left-to-right interval walk: a candidate joins the previous window when
// its start is at or before that window's end.
func Windows(hunks []models.Hunk, lineCount, margin int) []models.ContextWindow {
	if lineCount <= 0 || len(hunks) == 0 {
		return nil
	}
	if margin < 0 {
		margin = 0
	}

	ordered := make([]models.Hunk, len(hunks))
	copy(ordered, hunks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].NewStartLine < ordered[j].NewStartLine
	})

	type span struct {
		start, end int // 0-based, end exclusive
		hunks      []models.Hunk
	}
	var spans []span
	for _, h := range ordered {
		start := h.NewStartLine - 1 - margin
		end := h.NewStartLine - 1 + h.NewLineCount + margin
		if start < 0 {
			start = 0
		}
		if end > lineCount {
			end = lineCount
		}
		if end < start {
			end = start
		}
		if n := len(spans); n > 0 && start <= spans[n-1].end {
			if end > spans[n-1].end {
				spans[n-1].end = end
			}
			spans[n-1].hunks = append(spans[n-1].hunks, h)
			continue
		}
		spans = append(spans, span{start: start, end: end, hunks: []models.Hunk{h}})
	}

	windows := make([]models.ContextWindow, 0, len(spans))
	for _, s := range spans {
		if s.start == s.end {
			// Nothing visible in new-file coordinates (removal-only hunk
			// with no margin).
			continue
		}
		w := models.ContextWindow{
			StartLine: s.start + 1,
			EndLine:   s.end + 1,
			Hunks:     s.hunks,
		}
		for _, h := range s.hunks {
			for _, n := range h.AddedLines {
				if n >= w.StartLine && n < w.EndLine {
					w.AddedLines = append(w.AddedLines, n)
				}
			}
		}
		sort.Ints(w.AddedLines)
		windows = append(windows, w)
	}
	return windows
}

// BuildContext renders the annotated review context for one file change.
// With full text available it prints each merged window as a fenced block,
// marking added lines in the gutter. Without it (deleted files, files the
// resolver could not load) it falls back to the raw hunk text captured by
// the parser, one block per hunk. The output is deterministic: identical
// inputs render byte-identical text.
func BuildContext(change models.FileChange, fullText string, marginLines int) string {
	if len(change.Hunks) == 0 {
		return ""
	}
	if fullText == "" {
		return renderRawHunks(change.Hunks)
	}

	lines := strings.Split(fullText, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		// Artifact of splitting text that ends with a newline.
		lines = lines[:n-1]
	}

	windows := Windows(change.Hunks, len(lines), marginLines)
	if len(windows) == 0 {
		return renderRawHunks(change.Hunks)
	}

	blocks := make([]string, 0, len(windows))
	for _, w := range windows {
		blocks = append(blocks, renderWindow(w, lines))
	}
	return strings.Join(blocks, "\n")
}

// renderWindow prints one window as a fenced block of "marker, zero-padded
// line number, source text" lines. A line carries the '+' marker exactly
// when its number is in the window's added set.
func renderWindow(w models.ContextWindow, lines []string) string {
	added := make(map[int]bool, len(w.AddedLines))
	for _, n := range w.AddedLines {
		added[n] = true
	}

	var b strings.Builder
	b.WriteString("```\n")
	for n := w.StartLine; n < w.EndLine && n <= len(lines); n++ {
		marker := byte(' ')
		if added[n] {
			marker = '+'
		}
		fmt.Fprintf(&b, "%c%04d | %s\n", marker, n, lines[n-1])
	}
	b.WriteString("```\n")
	return b.String()
}

func renderRawHunks(hunks []models.Hunk) string {
	blocks := make([]string, 0, len(hunks))
	for _, h := range hunks {
		blocks = append(blocks, "```\n"+h.Content+"\n```\n")
	}
	return strings.Join(blocks, "\n")
}

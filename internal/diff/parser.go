// Package diff parses unified diff text into line-accurate per-file change
// records. Parsing never fails: segments the parser cannot make sense of are
// skipped so one odd entry (a mode-only change, an exotic header) cannot
// abort the rest of the diff.
package diff

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/synth/copilot-review-agent/internal/pathmatch"
	"github.com/synth/copilot-review-agent/pkg/models"
)

// binaryMarker is the sentinel git prints instead of hunks for binary files.
const binaryMarker = "Binary files "

// hunkHeaderRegex matches "@@ -oldStart[,oldLen] +newStart[,newLen] @@ label".
// A missing ",len" means a length of 1 per unified-diff convention.
var hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)`)

// Parser parses git diff output into structured data.
type Parser struct{}

// NewParser creates a new diff parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse parses a unified diff string into a slice of FileChange. Files whose
// path matches any of the exclude patterns are dropped before hunk parsing.
// An empty or unrecognizable diff yields an empty slice.
func (p *Parser) Parse(diffText string, excludePatterns []string) []models.FileChange {
	if strings.TrimSpace(diffText) == "" {
		return nil
	}

	warn := pathmatch.NewWarnings()
	fileDiffs := p.splitDiffByFile(diffText)

	result := make([]models.FileChange, 0, len(fileDiffs))
	for _, fileDiff := range fileDiffs {
		change, ok := p.parseFileDiff(fileDiff, excludePatterns, warn)
		if ok {
			result = append(result, change)
		}
	}
	return result
}

// splitDiffByFile splits a unified diff into per-file segments on
// "diff --git" boundaries. Text before the first boundary is not a file
// segment and is discarded.
func (p *Parser) splitDiffByFile(diffText string) []string {
	parts := strings.Split(diffText, "\ndiff --git ")

	result := make([]string, 0, len(parts))
	for i, part := range parts {
		if i == 0 {
			if !strings.HasPrefix(part, "diff --git ") {
				continue
			}
		} else {
			part = "diff --git " + part
		}
		if strings.TrimSpace(part) != "" {
			result = append(result, part)
		}
	}
	return result
}

// parseFileDiff parses a single file segment. The second return value is
// false when the segment produced no record: unparseable header, excluded
// path, or nothing reviewable in it.
func (p *Parser) parseFileDiff(segment string, excludePatterns []string, warn pathmatch.Warnings) (models.FileChange, bool) {
	lines := strings.Split(segment, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		// Artifact of splitting text that ends with a newline.
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return models.FileChange{}, false
	}

	oldPath, newPath := parseGitHeader(lines[0])
	if oldPath == "" && newPath == "" {
		log.Debug().Str("header", lines[0]).Msg("Skipping diff segment with unparseable header")
		return models.FileChange{}, false
	}
	// Review against the new side of the pair; deletions keep their path in
	// the "diff --git" header even though the +++ banner says /dev/null.
	path := newPath
	if path == "" {
		path = oldPath
	}

	if pathmatch.Excluded(path, excludePatterns, warn) {
		log.Debug().Str("path", path).Msg("Skipping excluded file")
		return models.FileChange{}, false
	}

	change := models.FileChange{Path: path}
	for _, line := range lines[1:] {
		if strings.HasPrefix(line, "@@") {
			break
		}
		switch {
		case strings.HasPrefix(line, "new file mode"), line == "--- /dev/null":
			change.IsNew = true
		case strings.HasPrefix(line, "deleted file mode"), line == "+++ /dev/null":
			change.IsDeleted = true
		case strings.HasPrefix(line, binaryMarker) && strings.HasSuffix(line, " differ"):
			change.IsBinary = true
		}
	}

	if change.IsBinary {
		// Binary files carry no hunks, only the flag.
		return change, true
	}

	change.Hunks = p.extractHunks(lines)
	if len(change.Hunks) == 0 && !change.IsNew && !change.IsDeleted {
		// Mode-only changes and pure renames have nothing to review.
		log.Debug().Str("path", path).Msg("Skipping diff segment without content changes")
		return models.FileChange{}, false
	}
	return change, true
}

// extractHunks walks the segment's hunk bodies, recording added line numbers
// in the new file's numbering and removed line numbers in the old file's.
// Hunks that change nothing are dropped.
func (p *Parser) extractHunks(lines []string) []models.Hunk {
	var hunks []models.Hunk

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !strings.HasPrefix(line, "@@") {
			continue
		}

		matches := hunkHeaderRegex.FindStringSubmatch(line)
		if matches == nil {
			log.Debug().Str("line", line).Msg("Skipping malformed hunk header")
			continue
		}

		hunk := models.Hunk{
			OldStartLine: atoiOr(matches[1], 0),
			OldLineCount: atoiOr(matches[2], 1),
			NewStartLine: atoiOr(matches[3], 0),
			NewLineCount: atoiOr(matches[4], 1),
			Header:       strings.TrimSpace(matches[5]),
		}

		var raw strings.Builder
		raw.WriteString(line)

		// The new-file cursor starts at newStart, the old-file cursor at
		// oldStart; additions move only the new cursor, removals only the
		// old one.
		oldLineNo, newLineNo := hunk.OldStartLine, hunk.NewStartLine

		i++
		for ; i < len(lines); i++ {
			hunkLine := lines[i]
			if strings.HasPrefix(hunkLine, "@@") || strings.HasPrefix(hunkLine, "diff --git ") {
				// Reached the next hunk or file; step back for the outer loop.
				i--
				break
			}

			raw.WriteString("\n")
			raw.WriteString(hunkLine)

			switch {
			case hunkLine == `\ No newline at end of file`:
				// Metadata, not a line of code.
			case strings.HasPrefix(hunkLine, "+"):
				hunk.AddedLines = append(hunk.AddedLines, newLineNo)
				newLineNo++
			case strings.HasPrefix(hunkLine, "-"):
				hunk.RemovedLines = append(hunk.RemovedLines, oldLineNo)
				oldLineNo++
			default:
				// Context line, with or without its leading space (some
				// tools trim blank context lines down to "").
				oldLineNo++
				newLineNo++
			}
		}

		if len(hunk.AddedLines) == 0 && len(hunk.RemovedLines) == 0 {
			log.Debug().Str("header", line).Msg("Skipping hunk with no content changes")
			continue
		}
		hunk.Content = raw.String()
		hunks = append(hunks, hunk)
	}

	return hunks
}

// parseGitHeader pulls the old and new paths out of a
// "diff --git a/old b/new" line. Splitting on the last " b/" keeps paths
// containing spaces intact.
func parseGitHeader(header string) (oldPath, newPath string) {
	rest, ok := strings.CutPrefix(header, "diff --git a/")
	if !ok {
		return "", ""
	}
	idx := strings.LastIndex(rest, " b/")
	if idx < 0 {
		return "", ""
	}
	return rest[:idx], rest[idx+len(" b/"):]
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

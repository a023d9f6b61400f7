// Package analyze adapts an external analyzer command to the review
// pipeline. The command receives one JSON request on stdin describing a
// chunk's files and must print findings as JSON on stdout, either as a
// bare array or wrapped in {"findings": [...]}.
package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"

	"github.com/synth/copilot-review-agent/pkg/models"
)

// request is the document written to the analyzer's stdin.
type request struct {
	Instructions string        `json:"instructions,omitempty"`
	Files        []requestFile `json:"files"`
}

type requestFile struct {
	Path    string `json:"path"`
	Context string `json:"context"`
}

// rawFinding is the analyzer's wire shape before normalization.
type rawFinding struct {
	File        string `json:"file"`
	StartLine   int    `json:"start_line"`
	EndLine     int    `json:"end_line"`
	Severity    string `json:"severity"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
}

// CommandAnalyzer runs a configured argv for every chunk.
type CommandAnalyzer struct {
	argv    []string
	timeout time.Duration
}

// New returns a CommandAnalyzer. argv must name the executable and its
// fixed arguments; a zero timeout disables the per-chunk deadline.
func New(argv []string, timeout time.Duration) (*CommandAnalyzer, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("analyzer command is not configured")
	}
	return &CommandAnalyzer{argv: argv, timeout: timeout}, nil
}

// Analyze sends one chunk to the analyzer process and returns its
// findings, normalized and restricted to files the chunk contains.
func (a *CommandAnalyzer) Analyze(ctx context.Context, chunk models.ReviewChunk, instructions string) ([]models.Finding, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	req := request{Instructions: instructions, Files: make([]requestFile, 0, len(chunk.Files))}
	for _, f := range chunk.Files {
		req.Files = append(req.Files, requestFile{Path: f.Path, Context: f.Context})
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode analyzer request: %w", err)
	}

	log.Debug().Int("chunk", chunk.Index).Int("files", len(chunk.Files)).Str("command", a.argv[0]).Msg("invoking analyzer")

	cmd := exec.CommandContext(ctx, a.argv[0], a.argv[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("analyzer %s: %w: %s", a.argv[0], err, msg)
		}
		return nil, fmt.Errorf("analyzer %s: %w", a.argv[0], err)
	}

	raws, err := decodeFindings(stdout.String())
	if err != nil {
		return nil, fmt.Errorf("analyzer %s: %w", a.argv[0], err)
	}
	return normalize(raws, chunk), nil
}

// decodeFindings extracts the JSON payload from analyzer output and
// unmarshals it, running it through jsonrepair when it does not parse
// as written.
func decodeFindings(out string) ([]rawFinding, error) {
	payload := extractJSON(out)
	if payload == "" {
		return nil, errors.New("output contained no JSON")
	}

	raws, err := unmarshalFindings(payload)
	if err == nil {
		return raws, nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(payload)
	if repairErr != nil {
		return nil, fmt.Errorf("decode findings: %w", err)
	}
	raws, retryErr := unmarshalFindings(repaired)
	if retryErr != nil {
		return nil, fmt.Errorf("decode findings: %w", err)
	}
	log.Debug().Msg("analyzer output needed json repair")
	return raws, nil
}

func unmarshalFindings(payload string) ([]rawFinding, error) {
	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "[") {
		var arr []rawFinding
		if err := json.Unmarshal([]byte(trimmed), &arr); err != nil {
			return nil, err
		}
		return arr, nil
	}
	var wrapped struct {
		Findings []rawFinding `json:"findings"`
	}
	if err := json.Unmarshal([]byte(trimmed), &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Findings, nil
}

// extractJSON pulls the JSON body out of mixed text output. Analyzers
// built on language models tend to wrap their answer in markdown fences
// or lead with prose.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		return raw
	}

	if strings.Contains(raw, "```") {
		var inBlock bool
		var kept []string
		for _, line := range strings.Split(raw, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				inBlock = !inBlock
				continue
			}
			if inBlock {
				kept = append(kept, line)
			}
		}
		if len(kept) > 0 {
			return strings.TrimSpace(strings.Join(kept, "\n"))
		}
	}

	if i := strings.IndexAny(raw, "[{"); i >= 0 {
		return raw[i:]
	}
	return ""
}

// normalize converts wire findings to model findings. Findings without
// a title or for files outside the chunk are dropped; unknown
// severities fall back to info, and inverted line ranges collapse to
// their start line.
func normalize(raws []rawFinding, chunk models.ReviewChunk) []models.Finding {
	paths := make(map[string]bool, len(chunk.Files))
	for _, f := range chunk.Files {
		paths[f.Path] = true
	}

	out := make([]models.Finding, 0, len(raws))
	for _, r := range raws {
		if strings.TrimSpace(r.Title) == "" {
			log.Debug().Str("file", r.File).Msg("dropping finding without a title")
			continue
		}
		if !paths[r.File] {
			log.Debug().Str("file", r.File).Msg("dropping finding for a file outside the chunk")
			continue
		}

		severity := models.FindingSeverity(strings.ToLower(strings.TrimSpace(r.Severity)))
		if !severity.Valid() {
			severity = models.SeverityInfo
		}

		start, end := r.StartLine, r.EndLine
		if start < 0 {
			start = 0
		}
		if end < start {
			end = start
		}

		out = append(out, models.Finding{
			File:        r.File,
			StartLine:   start,
			EndLine:     end,
			Severity:    severity,
			Category:    strings.ToLower(strings.TrimSpace(r.Category)),
			Title:       strings.TrimSpace(r.Title),
			Description: r.Description,
			Suggestion:  r.Suggestion,
			Status:      models.StatusOpen,
		})
	}
	return out
}

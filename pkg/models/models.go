package models

import (
	"time"
)

// FileChange represents one file's changes parsed out of a unified diff.
type FileChange struct {
	Path      string `json:"path"`
	IsNew     bool   `json:"is_new"`
	IsDeleted bool   `json:"is_deleted"`
	IsBinary  bool   `json:"is_binary"`
	Hunks     []Hunk `json:"hunks"`
	// FullText is the file content at the target revision. It is filled in
	// by a resolution step after parsing and stays empty for deleted or
	// binary files, or when the file could not be loaded.
	FullText string `json:"-"`
}

// Hunk represents a single contiguous change region within a file.
type Hunk struct {
	OldStartLine int    `json:"old_start_line"`
	OldLineCount int    `json:"old_line_count"`
	NewStartLine int    `json:"new_start_line"`
	NewLineCount int    `json:"new_line_count"`
	Header       string `json:"header,omitempty"`
	// AddedLines are line numbers in the new file's numbering, strictly
	// increasing. RemovedLines use the old file's numbering.
	AddedLines   []int `json:"added_lines"`
	RemovedLines []int `json:"removed_lines"`
	// Content is the raw hunk text as it appeared in the diff, kept for
	// rendering when the full file text is unavailable.
	Content string `json:"content"`
}

// ContextWindow is a merged, renderable span of a file covering one or more
// hunks plus margin. StartLine/EndLine are 1-based with EndLine exclusive.
type ContextWindow struct {
	StartLine  int
	EndLine    int
	Hunks      []Hunk
	AddedLines []int
}

// ChunkFile pairs a changed file with its rendered context, sized in
// budget units.
type ChunkFile struct {
	Path    string `json:"path"`
	Context string `json:"context"`
	Tokens  int    `json:"tokens"`
}

// ReviewChunk is a batch of rendered file contexts ready for one analysis
// call. Either the member estimates sum to at most the configured budget, or
// the chunk holds a single file whose own estimate already exceeds it.
type ReviewChunk struct {
	Index  int         `json:"index"`
	Files  []ChunkFile `json:"files"`
	Tokens int         `json:"tokens"`
}

// Finding represents a single reported issue from an analysis pass.
type Finding struct {
	ID          string          `json:"id,omitempty"`
	RunID       string          `json:"run_id,omitempty"`
	File        string          `json:"file"`
	StartLine   int             `json:"start_line"`
	EndLine     int             `json:"end_line"`
	Severity    FindingSeverity `json:"severity"`
	Category    string          `json:"category,omitempty"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Suggestion  string          `json:"suggestion,omitempty"`
	Status      FindingStatus   `json:"status"`
	CreatedAt   time.Time       `json:"created_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at,omitempty"`
}

// FindingSeverity represents the severity level of a finding.
type FindingSeverity string

const (
	SeverityInfo     FindingSeverity = "info"
	SeverityWarning  FindingSeverity = "warning"
	SeverityCritical FindingSeverity = "critical"
)

// Rank orders severities for sorting, higher is more severe. Unknown
// severities rank below info.
func (s FindingSeverity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is one of the known severity levels.
func (s FindingSeverity) Valid() bool {
	return s.Rank() > 0
}

// FindingStatus represents the lifecycle state of a finding. The analysis
// core only ever creates findings as open; later transitions are user
// actions.
type FindingStatus string

const (
	StatusOpen       FindingStatus = "open"
	StatusSkipped    FindingStatus = "skipped"
	StatusFixed      FindingStatus = "fixed"
	StatusInProgress FindingStatus = "in-progress"
)

// Valid reports whether s is one of the known lifecycle states.
func (s FindingStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusSkipped, StatusFixed, StatusInProgress:
		return true
	}
	return false
}

// Finding categories. Analyzers may emit other tags; these are the ones the
// tooling knows how to color.
const (
	CategoryBug             = "bug"
	CategorySecurity        = "security"
	CategoryPerformance     = "performance"
	CategoryStyle           = "style"
	CategoryMaintainability = "maintainability"
)

// ReviewRun records one invocation of the review pipeline.
type ReviewRun struct {
	ID           string    `json:"id"`
	RepoPath     string    `json:"repo_path"`
	BaseRef      string    `json:"base_ref"`
	HeadRef      string    `json:"head_ref"`
	FileCount    int       `json:"file_count"`
	ChunkCount   int       `json:"chunk_count"`
	FindingCount int       `json:"finding_count"`
	CreatedAt    time.Time `json:"created_at"`
}

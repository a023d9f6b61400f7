// Package chunk bin-packs rendered file contexts into review chunks sized
// for an analysis budget. Files are ordered by a semantic priority rule
// first, so packing order tracks what deserves review attention earliest,
// not what minimizes chunk count.
package chunk

import (
	"sort"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/synth/copilot-review-agent/pkg/models"
)

// Defaults applied by New when a limit is zero or negative. The real values
// come from configuration.
const (
	DefaultTokenBudget      = 20000
	DefaultMaxFilesPerChunk = 8
	DefaultCharsPerToken    = 4
)

// Priority ranks, lower reviews earlier. Test paths always take the last
// rank no matter what else they match.
const (
	rankSecurity = iota
	rankRouting
	rankDomain
	rankData
	rankViews
	rankOther
	rankTests
)

var rankRules = []struct {
	rank   int
	tokens map[string]bool
}{
	{rankSecurity, tokenSet("auth", "security", "session", "sessions", "password",
		"passwords", "secret", "secrets", "login", "oauth", "crypto",
		"permission", "permissions")},
	{rankRouting, tokenSet("route", "routes", "routing", "router", "config",
		"configs", "configuration", "settings", "middleware", "initializer",
		"initializers")},
	{rankDomain, tokenSet("model", "models", "service", "services", "job",
		"jobs", "worker", "workers", "domain", "controller", "controllers",
		"handler", "handlers")},
	{rankData, tokenSet("db", "database", "migration", "migrations", "migrate",
		"schema", "sql", "seed", "seeds")},
	{rankViews, tokenSet("view", "views", "template", "templates", "layout",
		"layouts", "partial", "partials", "component", "components")},
}

var testTokens = tokenSet("test", "tests", "spec", "specs", "testdata",
	"fixture", "fixtures", "mock", "mocks", "e2e")

func tokenSet(tokens ...string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// Input pairs a parsed change with its rendered review context.
type Input struct {
	Change  models.FileChange
	Context string
}

// Chunker splits rendered file contexts into budget-sized review chunks.
type Chunker struct {
	tokenBudget   int
	maxFiles      int
	charsPerToken int
}

// New returns a Chunker with the given limits, falling back to defaults for
// zero or negative values.
func New(tokenBudget, maxFilesPerChunk, charsPerToken int) *Chunker {
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}
	if maxFilesPerChunk <= 0 {
		maxFilesPerChunk = DefaultMaxFilesPerChunk
	}
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	return &Chunker{
		tokenBudget:   tokenBudget,
		maxFiles:      maxFilesPerChunk,
		charsPerToken: charsPerToken,
	}
}

// EstimateTokens converts rendered text to budget units using the
// characters-per-token ratio. Non-empty text always costs at least one unit.
func (c *Chunker) EstimateTokens(content string) int {
	if content == "" {
		return 0
	}
	est := len(content) / c.charsPerToken
	if est == 0 {
		est = 1
	}
	return est
}

// Chunk orders the reviewable files by priority rank and greedily packs them
// into chunks. A file whose own estimate exceeds the budget becomes a chunk
// of its own; it is never split further. Zero reviewable files yields an
// empty chunk list.
func (c *Chunker) Chunk(inputs []Input) []models.ReviewChunk {
	reviewable := make([]Input, 0, len(inputs))
	for _, in := range inputs {
		if in.Change.IsBinary || len(in.Change.Hunks) == 0 {
			log.Debug().Str("path", in.Change.Path).Msg("Skipping file with nothing to analyze")
			continue
		}
		reviewable = append(reviewable, in)
	}
	if len(reviewable) == 0 {
		return nil
	}

	// Stable: files of equal rank keep their diff order.
	sort.SliceStable(reviewable, func(i, j int) bool {
		return pathRank(reviewable[i].Change.Path) < pathRank(reviewable[j].Change.Path)
	})

	var chunks []models.ReviewChunk
	var current []models.ChunkFile
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, models.ReviewChunk{
			Index:  len(chunks),
			Files:  current,
			Tokens: currentTokens,
		})
		current = nil
		currentTokens = 0
	}

	for _, in := range reviewable {
		file := models.ChunkFile{
			Path:    in.Change.Path,
			Context: in.Context,
			Tokens:  c.EstimateTokens(in.Context),
		}

		if file.Tokens > c.tokenBudget {
			// Oversized single file: isolate it in its own chunk. Sub-file
			// splitting is left to the analyzer.
			flush()
			chunks = append(chunks, models.ReviewChunk{
				Index:  len(chunks),
				Files:  []models.ChunkFile{file},
				Tokens: file.Tokens,
			})
			log.Debug().
				Str("path", file.Path).
				Int("tokens", file.Tokens).
				Int("budget", c.tokenBudget).
				Msg("File exceeds chunk budget, isolating")
			continue
		}

		if len(current) > 0 && (currentTokens+file.Tokens > c.tokenBudget || len(current) >= c.maxFiles) {
			flush()
		}
		current = append(current, file)
		currentTokens += file.Tokens
	}
	flush()

	return chunks
}

// pathRank classifies a path by its segment tokens. Matching is on whole
// tokens split at separators and non-alphanumeric boundaries, never on
// substrings, so "reroute.go" is not a routing file.
func pathRank(path string) int {
	tokens := pathTokens(path)
	for _, tok := range tokens {
		if testTokens[tok] {
			return rankTests
		}
	}
	for _, rule := range rankRules {
		for _, tok := range tokens {
			if rule.tokens[tok] {
				return rule.rank
			}
		}
	}
	return rankOther
}

func pathTokens(path string) []string {
	return strings.FieldsFunc(strings.ToLower(path), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synth/copilot-review-agent/pkg/models"
)

// reviewableInput builds an Input with one hunk so the chunker keeps it.
func reviewableInput(path string, contextLen int) Input {
	return Input{
		Change: models.FileChange{
			Path:  path,
			Hunks: []models.Hunk{{NewStartLine: 1, NewLineCount: 1, AddedLines: []int{1}}},
		},
		Context: strings.Repeat("x", contextLen),
	}
}

func TestPathRank(t *testing.T) {
	tests := []struct {
		path string
		want int
	}{
		{"auth/session.x", rankSecurity},
		{"lib/security/crypto_helper.rb", rankSecurity},
		{"config/routes.x", rankRouting},
		{"internal/router/register.go", rankRouting},
		{"app/models/user.rb", rankDomain},
		{"internal/service/billing.go", rankDomain},
		{"db/migrations/0001_init.sql", rankData},
		{"app/views/home.html.erb", rankViews},
		{"web/templates/index.tmpl", rankViews},
		{"cmd/main.go", rankOther},
		{"docs/guide.md", rankOther},
		// Whole-token matching: "reroute" must not count as "route".
		{"pkg/reroute.go", rankOther},
		{"pkg/preauthorize.go", rankOther},
		// Tests rank last even when other keywords match.
		{"spec/session_test.x", rankTests},
		{"internal/auth/session_test.go", rankTests},
		{"config/routes_spec.rb", rankTests},
		{"testdata/golden.json", rankTests},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, pathRank(tt.path))
		})
	}
}

func TestChunkPriorityOrdering(t *testing.T) {
	inputs := []Input{
		reviewableInput("spec/session_test.x", 10),
		reviewableInput("config/routes.x", 10),
		reviewableInput("auth/session.x", 10),
	}

	chunks := New(1000, 10, 1).Chunk(inputs)

	require.Len(t, chunks, 1)
	require.Len(t, chunks[0].Files, 3)
	assert.Equal(t, "auth/session.x", chunks[0].Files[0].Path)
	assert.Equal(t, "config/routes.x", chunks[0].Files[1].Path)
	assert.Equal(t, "spec/session_test.x", chunks[0].Files[2].Path)
}

func TestChunkStableWithinRank(t *testing.T) {
	inputs := []Input{
		reviewableInput("zz.txt", 10),
		reviewableInput("aa.txt", 10),
		reviewableInput("mm.txt", 10),
	}

	chunks := New(1000, 10, 1).Chunk(inputs)

	require.Len(t, chunks, 1)
	assert.Equal(t, "zz.txt", chunks[0].Files[0].Path)
	assert.Equal(t, "aa.txt", chunks[0].Files[1].Path)
	assert.Equal(t, "mm.txt", chunks[0].Files[2].Path)
}

func TestChunkBudgetAndIsolation(t *testing.T) {
	inputs := []Input{
		reviewableInput("alpha.txt", 40),
		reviewableInput("beta.txt", 40),
		reviewableInput("gamma.txt", 30),
		reviewableInput("delta.txt", 120),
		reviewableInput("epsilon.txt", 10),
	}

	chunks := New(100, 3, 1).Chunk(inputs)

	require.Len(t, chunks, 4)

	assert.Equal(t, []string{"alpha.txt", "beta.txt"}, chunkPaths(chunks[0]))
	assert.Equal(t, 80, chunks[0].Tokens)

	assert.Equal(t, []string{"gamma.txt"}, chunkPaths(chunks[1]))

	assert.Equal(t, []string{"delta.txt"}, chunkPaths(chunks[2]))
	assert.Equal(t, 120, chunks[2].Tokens, "oversized file keeps its full estimate")

	assert.Equal(t, []string{"epsilon.txt"}, chunkPaths(chunks[3]))

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		if len(chunk.Files) > 1 {
			assert.LessOrEqual(t, chunk.Tokens, 100,
				"multi-file chunks must respect the budget")
			assert.LessOrEqual(t, len(chunk.Files), 3)
		}
	}
}

func TestChunkMaxFilesPerChunk(t *testing.T) {
	var inputs []Input
	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt"} {
		inputs = append(inputs, reviewableInput(name, 5))
	}

	chunks := New(1000, 2, 1).Chunk(inputs)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0].Files, 2)
	assert.Len(t, chunks[1].Files, 2)
	assert.Len(t, chunks[2].Files, 1)
}

func TestChunkDiscardsUnreviewable(t *testing.T) {
	inputs := []Input{
		{Change: models.FileChange{Path: "logo.png", IsBinary: true}},
		{Change: models.FileChange{Path: "empty.go"}},
		reviewableInput("kept.go", 10),
	}

	chunks := New(1000, 10, 1).Chunk(inputs)

	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"kept.go"}, chunkPaths(chunks[0]))
}

func TestChunkEmptyInput(t *testing.T) {
	chunker := New(1000, 10, 4)

	assert.Empty(t, chunker.Chunk(nil))
	assert.Empty(t, chunker.Chunk([]Input{
		{Change: models.FileChange{Path: "img.bin", IsBinary: true}},
	}), "nothing reviewable means an empty chunk list, not an error")
}

func TestEstimateTokens(t *testing.T) {
	chunker := New(1000, 10, 4)

	assert.Equal(t, 0, chunker.EstimateTokens(""))
	assert.Equal(t, 1, chunker.EstimateTokens("ab"), "non-empty text costs at least one unit")
	assert.Equal(t, 25, chunker.EstimateTokens(strings.Repeat("x", 100)))
}

func chunkPaths(chunk models.ReviewChunk) []string {
	paths := make([]string, 0, len(chunk.Files))
	for _, f := range chunk.Files {
		paths = append(paths, f.Path)
	}
	return paths
}

package analyze

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synth/copilot-review-agent/pkg/models"
)

// writeScript materializes a shell script acting as a fake analyzer.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake analyzers are shell scripts")
	}
	path := filepath.Join(t.TempDir(), "analyzer.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func testChunk() models.ReviewChunk {
	return models.ReviewChunk{
		Index: 0,
		Files: []models.ChunkFile{
			{Path: "a.go", Context: "```\n+0001 | package a\n```\n", Tokens: 8},
		},
		Tokens: 8,
	}
}

func TestAnalyzeDecodesBareArray(t *testing.T) {
	script := writeScript(t, `cat >/dev/null
echo '[{"file":"a.go","start_line":3,"end_line":4,"severity":"CRITICAL","category":"Security","title":"SQL injection","description":"concatenated query"}]'
`)
	a, err := New([]string{script}, 0)
	require.NoError(t, err)

	got, err := a.Analyze(context.Background(), testChunk(), "")
	require.NoError(t, err)

	want := []models.Finding{{
		File:        "a.go",
		StartLine:   3,
		EndLine:     4,
		Severity:    models.SeverityCritical,
		Category:    models.CategorySecurity,
		Title:       "SQL injection",
		Description: "concatenated query",
		Status:      models.StatusOpen,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeDecodesFencedOutputWithRepair(t *testing.T) {
	script := writeScript(t, `cat >/dev/null
cat <<'EOF'
Reviewed the chunk, one issue found.
`+"```json"+`
{"findings": [{"file":"a.go","start_line":1,"end_line":1,"severity":"warning","title":"unchecked error",},]}
`+"```"+`
EOF
`)
	a, err := New([]string{script}, 0)
	require.NoError(t, err)

	got, err := a.Analyze(context.Background(), testChunk(), "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "unchecked error", got[0].Title)
	assert.Equal(t, models.SeverityWarning, got[0].Severity)
}

func TestAnalyzeSendsRequestOnStdin(t *testing.T) {
	capture := filepath.Join(t.TempDir(), "request.json")
	script := writeScript(t, fmt.Sprintf(`cat > %q
echo '[]'
`, capture))
	a, err := New([]string{script}, 0)
	require.NoError(t, err)

	_, err = a.Analyze(context.Background(), testChunk(), "focus on error handling")
	require.NoError(t, err)

	data, err := os.ReadFile(capture)
	require.NoError(t, err)
	req := string(data)
	assert.Contains(t, req, `"path":"a.go"`)
	assert.Contains(t, req, `"instructions":"focus on error handling"`)
	assert.Contains(t, req, `0001 | package a`)
}

func TestAnalyzeCommandFailure(t *testing.T) {
	script := writeScript(t, `cat >/dev/null
echo "model quota exhausted" >&2
exit 3
`)
	a, err := New([]string{script}, 0)
	require.NoError(t, err)

	_, err = a.Analyze(context.Background(), testChunk(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model quota exhausted")
}

func TestAnalyzeTimeout(t *testing.T) {
	script := writeScript(t, `cat >/dev/null
sleep 5
echo '[]'
`)
	a, err := New([]string{script}, 100*time.Millisecond)
	require.NoError(t, err)

	_, err = a.Analyze(context.Background(), testChunk(), "")
	assert.Error(t, err)
}

func TestAnalyzeRejectsNonJSONOutput(t *testing.T) {
	script := writeScript(t, `cat >/dev/null
echo "no issues found, great work"
`)
	a, err := New([]string{script}, 0)
	require.NoError(t, err)

	_, err = a.Analyze(context.Background(), testChunk(), "")
	assert.Error(t, err)
}

func TestNewRequiresCommand(t *testing.T) {
	_, err := New(nil, 0)
	assert.Error(t, err)
	_, err = New([]string{""}, 0)
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	chunk := testChunk()

	raws := []rawFinding{
		{File: "a.go", StartLine: 9, EndLine: 2, Severity: "blocker", Title: "inverted range"},
		{File: "a.go", StartLine: -4, Title: "negative start"},
		{File: "other.go", StartLine: 1, EndLine: 1, Severity: "info", Title: "foreign file"},
		{File: "a.go", StartLine: 1, EndLine: 1, Severity: "info", Title: "   "},
	}

	got := normalize(raws, chunk)
	require.Len(t, got, 2)

	assert.Equal(t, 9, got[0].StartLine)
	assert.Equal(t, 9, got[0].EndLine, "inverted range collapses to start")
	assert.Equal(t, models.SeverityInfo, got[0].Severity, "unknown severity falls back to info")

	assert.Equal(t, 0, got[1].StartLine, "negative start clamps to zero")
	assert.Equal(t, models.StatusOpen, got[1].Status)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"pure object", `{"findings": []}`, `{"findings": []}`},
		{"pure array", ` [1, 2] `, `[1, 2]`},
		{"fenced", "prose\n```json\n[1]\n```\nmore prose", "[1]"},
		{"prose prefix", `the result is {"findings": []}`, `{"findings": []}`},
		{"no json", "all clear", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.in))
		})
	}
}

package diff

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synth/copilot-review-agent/pkg/models"
)

const routerHunk = `@@ -10,6 +10,7 @@ func Register(mux *http.ServeMux) {
 	mux.Handle("/health", health())
 	mux.Handle("/metrics", metrics())
-	mux.Handle("/debug", debug())
+	mux.Handle("/debug", auth(debug()))
+	mux.Handle("/debug/pprof", auth(pprof()))
 	mux.Handle("/", root())
 	mux.Handle("/version", version())
 }`

const routerDiff = `diff --git a/internal/server/router.go b/internal/server/router.go
index 3f1a2b4..9c8d7e6 100644
--- a/internal/server/router.go
+++ b/internal/server/router.go
` + routerHunk + "\n"

const readmeDiff = `diff --git a/README.md b/README.md
index 1111111..2222222 100644
--- a/README.md
+++ b/README.md
@@ -1,3 +1,4 @@
 # svc
+Badge line

 Usage
`

const newFileDiff = `diff --git a/docs/CHANGELOG.md b/docs/CHANGELOG.md
new file mode 100644
index 0000000..e69de29
--- /dev/null
+++ b/docs/CHANGELOG.md
@@ -0,0 +1,2 @@
+# Changelog
+Initial release.
`

const deletedFileDiff = `diff --git a/old/legacy.sh b/old/legacy.sh
deleted file mode 100755
index abc1234..0000000
--- a/old/legacy.sh
+++ /dev/null
@@ -1,2 +0,0 @@
-#!/bin/sh
-echo legacy
`

const binaryDiff = `diff --git a/assets/logo.png b/assets/logo.png
index 1234567..89abcde 100644
Binary files a/assets/logo.png and b/assets/logo.png differ
`

const modeOnlyDiff = `diff --git a/scripts/run.sh b/scripts/run.sh
old mode 100644
new mode 100755
`

const versionDiff = `diff --git a/VERSION b/VERSION
index aaa1111..bbb2222 100644
--- a/VERSION
+++ b/VERSION
@@ -1 +1 @@
-1.0.0
+1.0.1
`

func TestParseSingleFile(t *testing.T) {
	changes := NewParser().Parse(routerDiff, nil)
	require.Len(t, changes, 1)

	want := models.FileChange{
		Path: "internal/server/router.go",
		Hunks: []models.Hunk{
			{
				OldStartLine: 10,
				OldLineCount: 6,
				NewStartLine: 10,
				NewLineCount: 7,
				Header:       "func Register(mux *http.ServeMux) {",
				AddedLines:   []int{12, 13},
				RemovedLines: []int{12},
				Content:      routerHunk,
			},
		},
	}
	if diff := cmp.Diff(want, changes[0]); diff != "" {
		t.Errorf("parsed change mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFileFlags(t *testing.T) {
	tests := []struct {
		name      string
		diff      string
		path      string
		isNew     bool
		isDeleted bool
		isBinary  bool
		added     []int
		removed   []int
	}{
		{
			name:  "new file",
			diff:  newFileDiff,
			path:  "docs/CHANGELOG.md",
			isNew: true,
			added: []int{1, 2},
		},
		{
			name:      "deleted file",
			diff:      deletedFileDiff,
			path:      "old/legacy.sh",
			isDeleted: true,
			removed:   []int{1, 2},
		},
		{
			name:     "binary file",
			diff:     binaryDiff,
			path:     "assets/logo.png",
			isBinary: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := NewParser().Parse(tt.diff, nil)
			require.Len(t, changes, 1)
			change := changes[0]

			assert.Equal(t, tt.path, change.Path)
			assert.Equal(t, tt.isNew, change.IsNew)
			assert.Equal(t, tt.isDeleted, change.IsDeleted)
			assert.Equal(t, tt.isBinary, change.IsBinary)

			if tt.isBinary {
				assert.Empty(t, change.Hunks, "binary files must carry no hunks")
				return
			}
			require.Len(t, change.Hunks, 1)
			assert.Equal(t, tt.added, change.Hunks[0].AddedLines)
			assert.Equal(t, tt.removed, change.Hunks[0].RemovedLines)
		})
	}
}

func TestParseMultipleFilesKeepsOrder(t *testing.T) {
	text := routerDiff + readmeDiff + deletedFileDiff
	changes := NewParser().Parse(text, nil)

	require.Len(t, changes, 3)
	assert.Equal(t, "internal/server/router.go", changes[0].Path)
	assert.Equal(t, "README.md", changes[1].Path)
	assert.Equal(t, "old/legacy.sh", changes[2].Path)
}

func TestParseExcludePatterns(t *testing.T) {
	text := routerDiff + readmeDiff + newFileDiff
	changes := NewParser().Parse(text, []string{"*.md"})

	require.Len(t, changes, 1)
	assert.Equal(t, "internal/server/router.go", changes[0].Path)
}

func TestParseHunkHeaderWithoutLengths(t *testing.T) {
	changes := NewParser().Parse(versionDiff, nil)
	require.Len(t, changes, 1)
	require.Len(t, changes[0].Hunks, 1)

	hunk := changes[0].Hunks[0]
	assert.Equal(t, 1, hunk.OldStartLine)
	assert.Equal(t, 1, hunk.OldLineCount, "missing ,len defaults to 1")
	assert.Equal(t, 1, hunk.NewStartLine)
	assert.Equal(t, 1, hunk.NewLineCount, "missing ,len defaults to 1")
	assert.Equal(t, []int{1}, hunk.AddedLines)
	assert.Equal(t, []int{1}, hunk.RemovedLines)
	assert.Equal(t, "@@ -1 +1 @@\n-1.0.0\n+1.0.1", hunk.Content)
}

func TestParseSkipsUnparseableSegments(t *testing.T) {
	malformed := "diff --git something-without-paths\njunk line\n"
	text := malformed + readmeDiff + modeOnlyDiff

	changes := NewParser().Parse(text, nil)

	require.Len(t, changes, 1, "malformed and mode-only segments are skipped, not fatal")
	assert.Equal(t, "README.md", changes[0].Path)
}

func TestParseNoNewlineMarker(t *testing.T) {
	text := `diff --git a/conf/app.ini b/conf/app.ini
index aaa1111..bbb2222 100644
--- a/conf/app.ini
+++ b/conf/app.ini
@@ -1,2 +1,2 @@
 [core]
-debug = true
+debug = false
\ No newline at end of file
`
	changes := NewParser().Parse(text, nil)
	require.Len(t, changes, 1)
	require.Len(t, changes[0].Hunks, 1)

	hunk := changes[0].Hunks[0]
	assert.Equal(t, []int{2}, hunk.AddedLines, "marker must not advance the cursor")
	assert.Equal(t, []int{2}, hunk.RemovedLines)
}

func TestParseAddedLinesRoundTrip(t *testing.T) {
	// For @@ -a,b +c,d @@ the added-line entries match the count of
	// '+'-prefixed body lines, and when the first body line is an addition
	// its number equals c.
	text := routerDiff + readmeDiff + newFileDiff + versionDiff
	changes := NewParser().Parse(text, nil)
	require.NotEmpty(t, changes)

	for _, change := range changes {
		for _, hunk := range change.Hunks {
			plus := 0
			body := strings.Split(hunk.Content, "\n")[1:]
			for _, line := range body {
				if strings.HasPrefix(line, "+") {
					plus++
				}
			}
			assert.Equal(t, plus, len(hunk.AddedLines),
				"%s %s: added-line count must match '+' lines", change.Path, hunk.Header)

			if len(body) > 0 && strings.HasPrefix(body[0], "+") {
				assert.Equal(t, hunk.NewStartLine, hunk.AddedLines[0],
					"%s: first added line must equal the hunk's new start", change.Path)
			}

			for i := 1; i < len(hunk.AddedLines); i++ {
				assert.Greater(t, hunk.AddedLines[i], hunk.AddedLines[i-1],
					"added lines must be strictly increasing")
			}
			upper := hunk.NewStartLine + hunk.NewLineCount
			for _, n := range hunk.AddedLines {
				assert.GreaterOrEqual(t, n, hunk.NewStartLine)
				assert.Less(t, n, upper)
			}
		}
	}
}

func TestParseEmptyInput(t *testing.T) {
	assert.Empty(t, NewParser().Parse("", nil))
	assert.Empty(t, NewParser().Parse("   \n\t\n", nil))
	assert.Empty(t, NewParser().Parse("random text, not a diff", nil))
}

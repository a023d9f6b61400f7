package dedup

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synth/copilot-review-agent/pkg/models"
)

func finding(file string, start, end int, title string) models.Finding {
	return models.Finding{
		File:      file,
		StartLine: start,
		EndLine:   end,
		Severity:  models.SeverityWarning,
		Category:  models.CategoryBug,
		Title:     title,
		Status:    models.StatusOpen,
	}
}

func titles(findings []models.Finding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Title)
	}
	return out
}

func TestDedupeCollapsesReorderedTitles(t *testing.T) {
	d := New(DefaultSimilarityThreshold)

	got := d.Dedupe([]models.Finding{
		finding("a.go", 10, 12, "Null check missing"),
		finding("a.go", 11, 13, "Missing null check"),
	})

	require.Len(t, got, 1)
	assert.Equal(t, "Null check missing", got[0].Title)
}

func TestDedupeKeepsSameTitleAcrossFiles(t *testing.T) {
	d := New(DefaultSimilarityThreshold)

	got := d.Dedupe([]models.Finding{
		finding("a.go", 10, 12, "Missing null check"),
		finding("b.go", 10, 12, "Missing null check"),
	})

	assert.Len(t, got, 2)
}

func TestDedupeExactKeyIgnoresCaseAndPunctuation(t *testing.T) {
	d := New(DefaultSimilarityThreshold)

	got := d.Dedupe([]models.Finding{
		finding("a.go", 5, 5, "Unchecked error!"),
		finding("a.go", 5, 5, "unchecked error"),
	})

	require.Len(t, got, 1)
	assert.Equal(t, "Unchecked error!", got[0].Title)
}

func TestDedupeRequiresLineOverlap(t *testing.T) {
	d := New(DefaultSimilarityThreshold)

	got := d.Dedupe([]models.Finding{
		finding("a.go", 10, 12, "Missing null check"),
		finding("a.go", 20, 22, "Missing null check"),
	})

	assert.Len(t, got, 2, "disjoint ranges describe different code")
}

func TestDedupeTouchingRangesOverlap(t *testing.T) {
	d := New(DefaultSimilarityThreshold)

	got := d.Dedupe([]models.Finding{
		finding("a.go", 10, 12, "Missing null check"),
		finding("a.go", 12, 14, "Missing null check"),
	})

	assert.Len(t, got, 1, "ranges sharing an endpoint overlap")
}

func TestDedupeSimilarityThreshold(t *testing.T) {
	near := []models.Finding{
		finding("a.go", 10, 12, "missing null check"),
		finding("a.go", 10, 12, "missing null check here"), // jaccard 3/4
	}
	far := []models.Finding{
		finding("a.go", 10, 12, "missing null check"),
		finding("a.go", 10, 12, "missing null guard"), // jaccard 2/4
	}

	d := New(DefaultSimilarityThreshold)
	assert.Len(t, d.Dedupe(near), 1)
	assert.Len(t, d.Dedupe(far), 2)

	loose := New(0.4)
	assert.Len(t, loose.Dedupe(far), 1, "lower threshold collapses looser matches")
}

func TestDedupeComparesAgainstSurvivorsOnly(t *testing.T) {
	d := New(DefaultSimilarityThreshold)

	// The second finding duplicates the first and is dropped. The third is
	// similar to the dropped one (3/4) but not to the survivor (2/4), so it
	// stays.
	got := d.Dedupe([]models.Finding{
		finding("a.go", 10, 12, "missing null check"),
		finding("a.go", 10, 12, "missing null check here"),
		finding("a.go", 10, 12, "null check here"),
	})

	assert.Equal(t, []string{"missing null check", "null check here"}, titles(got))
}

func TestDedupeEmptyTitlesNeverFuzzyMatch(t *testing.T) {
	d := New(DefaultSimilarityThreshold)

	got := d.Dedupe([]models.Finding{
		finding("a.go", 10, 12, ""),
		finding("a.go", 11, 13, ""),
	})

	assert.Len(t, got, 2)
}

func TestDedupePreservesOrder(t *testing.T) {
	d := New(DefaultSimilarityThreshold)

	got := d.Dedupe([]models.Finding{
		finding("a.go", 10, 12, "missing null check"),
		finding("a.go", 10, 12, "missing null check"),
		finding("b.go", 1, 3, "unquoted shell variable"),
		finding("a.go", 40, 41, "error swallowed"),
	})

	assert.Equal(t, []string{
		"missing null check",
		"unquoted shell variable",
		"error swallowed",
	}, titles(got))
}

func TestDedupeIdempotent(t *testing.T) {
	d := New(DefaultSimilarityThreshold)

	input := []models.Finding{
		finding("a.go", 10, 12, "Null check missing"),
		finding("a.go", 11, 13, "Missing null check"),
		finding("b.go", 5, 6, "Missing null check"),
		finding("a.go", 100, 100, "Hardcoded credential"),
	}

	once := d.Dedupe(input)
	twice := d.Dedupe(once)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("second pass changed output (-once +twice):\n%s", diff)
	}
}

func TestDedupeEmptyInput(t *testing.T) {
	d := New(DefaultSimilarityThreshold)

	assert.Empty(t, d.Dedupe(nil))
	assert.Empty(t, d.Dedupe([]models.Finding{}))
}

func TestNewFallsBackToDefaultThreshold(t *testing.T) {
	for _, bad := range []float64{0, -1, 1.5} {
		d := New(bad)
		// A 2/4 jaccard pair survives under the default threshold.
		got := d.Dedupe([]models.Finding{
			finding("a.go", 10, 12, "missing null check"),
			finding("a.go", 10, 12, "missing null guard"),
		})
		assert.Len(t, got, 2, "threshold %v should fall back to default", bad)
	}
}

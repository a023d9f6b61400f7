package review

import (
	"context"

	"github.com/synth/copilot-review-agent/pkg/models"
)

// Analyzer produces findings for one review chunk. Implementations must
// be safe for concurrent use; the service fans chunks out to a worker
// pool.
type Analyzer interface {
	Analyze(ctx context.Context, chunk models.ReviewChunk, instructions string) ([]models.Finding, error)
}

// Source supplies the branch diff and file content for a review.
type Source interface {
	Diff(ctx context.Context, base, head string) (string, error)
	FileText(ctx context.Context, ref, path string) (string, error)
}

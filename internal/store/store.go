// Package store persists review runs and their findings.
package store

import (
	"context"
	"errors"

	"github.com/synth/copilot-review-agent/pkg/models"
)

// ErrNotFound is returned when a run or finding does not exist.
var ErrNotFound = errors.New("not found")

// FindingFilter narrows ListFindings. Zero-valued fields match
// everything.
type FindingFilter struct {
	RunID    string
	File     string
	Severity models.FindingSeverity
	Status   models.FindingStatus
}

// Store is the persistence surface used by the CLI and the HTTP API.
type Store interface {
	Migrate(ctx context.Context) error

	// CreateRun persists a run together with its findings in one
	// transaction, assigning IDs and timestamps as needed.
	CreateRun(ctx context.Context, run *models.ReviewRun, findings []models.Finding) error
	GetRun(ctx context.Context, id string) (*models.ReviewRun, error)
	LatestRun(ctx context.Context) (*models.ReviewRun, error)
	ListRuns(ctx context.Context, limit int) ([]*models.ReviewRun, error)

	ListFindings(ctx context.Context, filter FindingFilter) ([]*models.Finding, error)
	GetFinding(ctx context.Context, id string) (*models.Finding, error)
	UpdateFindingStatus(ctx context.Context, id string, status models.FindingStatus) (*models.Finding, error)

	Close() error
}

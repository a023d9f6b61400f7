package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/synth/copilot-review-agent/pkg/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no
// CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes access through Go's pool and avoids "database is
	// locked" errors when the API and CLI overlap.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.ReviewRun, findings []models.Finding) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	run.CreatedAt = now
	run.FindingCount = len(findings)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO review_runs (id, repo_path, base_ref, head_ref, file_count, chunk_count, finding_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.RepoPath, run.BaseRef, run.HeadRef,
		run.FileCount, run.ChunkCount, run.FindingCount, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	for i := range findings {
		f := &findings[i]
		if f.ID == "" {
			f.ID = uuid.New().String()
		}
		f.RunID = run.ID
		if f.Status == "" {
			f.Status = models.StatusOpen
		}
		f.CreatedAt = now
		f.UpdatedAt = now

		_, err = tx.ExecContext(ctx,
			`INSERT INTO findings (id, run_id, file, start_line, end_line, severity, category, title, description, suggestion, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.RunID, f.File, f.StartLine, f.EndLine,
			string(f.Severity), f.Category, f.Title, f.Description, f.Suggestion,
			string(f.Status), f.CreatedAt, f.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("create finding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const runColumns = "id, repo_path, base_ref, head_ref, file_count, chunk_count, finding_count, created_at"

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*models.ReviewRun, error) {
	run := &models.ReviewRun{}
	err := s.db.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM review_runs WHERE id = ?", id,
	).Scan(&run.ID, &run.RepoPath, &run.BaseRef, &run.HeadRef, &run.FileCount, &run.ChunkCount, &run.FindingCount, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (*models.ReviewRun, error) {
	run := &models.ReviewRun{}
	err := s.db.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM review_runs ORDER BY created_at DESC LIMIT 1",
	).Scan(&run.ID, &run.RepoPath, &run.BaseRef, &run.HeadRef, &run.FileCount, &run.ChunkCount, &run.FindingCount, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no runs recorded: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*models.ReviewRun, error) {
	query := "SELECT " + runColumns + " FROM review_runs ORDER BY created_at DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*models.ReviewRun
	for rows.Next() {
		run := &models.ReviewRun{}
		if err := rows.Scan(&run.ID, &run.RepoPath, &run.BaseRef, &run.HeadRef, &run.FileCount, &run.ChunkCount, &run.FindingCount, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// --- Findings ---

const findingColumns = "id, run_id, file, start_line, end_line, severity, category, title, description, suggestion, status, created_at, updated_at"

func (s *SQLiteStore) ListFindings(ctx context.Context, filter FindingFilter) ([]*models.Finding, error) {
	query := "SELECT " + findingColumns + " FROM findings"
	var conditions []string
	var args []any

	if filter.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.File != "" {
		conditions = append(conditions, "file = ?")
		args = append(args, filter.File)
	}
	if filter.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, string(filter.Severity))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY
		CASE severity WHEN 'critical' THEN 0 WHEN 'warning' THEN 1 WHEN 'info' THEN 2 ELSE 3 END,
		file, start_line`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var findings []*models.Finding
	for rows.Next() {
		f, err := scanFinding(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

func (s *SQLiteStore) GetFinding(ctx context.Context, id string) (*models.Finding, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+findingColumns+" FROM findings WHERE id = ?", id)
	f, err := scanFinding(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("finding %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get finding: %w", err)
	}
	return f, nil
}

func (s *SQLiteStore) UpdateFindingStatus(ctx context.Context, id string, status models.FindingStatus) (*models.Finding, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("status %q is not recognized", status)
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE findings SET status = ?, updated_at = ? WHERE id = ?",
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update finding status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("finding %s: %w", id, ErrNotFound)
	}

	return s.GetFinding(ctx, id)
}

// scanFinding maps one findings row through any row/rows Scan function.
func scanFinding(scan func(dest ...any) error) (*models.Finding, error) {
	f := &models.Finding{}
	var severity, status string
	if err := scan(&f.ID, &f.RunID, &f.File, &f.StartLine, &f.EndLine,
		&severity, &f.Category, &f.Title, &f.Description, &f.Suggestion,
		&status, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.Severity = models.FindingSeverity(severity)
	f.Status = models.FindingStatus(status)
	return f, nil
}

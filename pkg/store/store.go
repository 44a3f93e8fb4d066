// Package store keeps run history in a local SQLite database. History is
// observability only: apart from delivery dedup in listen mode, the
// pipeline never consults it to change behavior.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one recorded pipeline run.
type Run struct {
	ID string
	// DeliveryID is the webhook delivery GUID, empty for manual runs.
	DeliveryID string
	Repo       string
	Tag        string
	Revision   string
	// Fingerprint is the source tree digest recorded after checkout.
	Fingerprint string
	Status      string
	// Step is the last step the run reached.
	Step       string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Artifact is one build artifact recorded against a run.
type Artifact struct {
	RunID    string
	Filename string
	Kind     string
	Size     int64
	SHA256   string
	Uploaded bool
}

// Store is the run history database.
type Store struct {
	db *sql.DB
}

// DefaultPath returns where run history lives unless overridden.
func DefaultPath() (string, error) {
	dir, err := homedir.Expand("~/.config/slipway")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "runs.db"), nil
}

// Open opens (creating if needed) the run history database at path and
// brings its schema up to date.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create run history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate run history: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun records a new run. A missing ID is assigned; StartedAt
// defaults to now.
func (s *Store) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, delivery_id, repo, tag, revision, fingerprint, status, step, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.DeliveryID, run.Repo, run.Tag, run.Revision, run.Fingerprint,
		run.Status, run.Step, run.Error, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// SetStep records the step a run has reached.
func (s *Store) SetStep(ctx context.Context, id, step string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET step = ? WHERE id = ?`, step, id)
	return err
}

// SetSource records the revision and fingerprint resolved at checkout.
func (s *Store) SetSource(ctx context.Context, id, revision, fingerprint string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET revision = ?, fingerprint = ? WHERE id = ?`,
		revision, fingerprint, id)
	return err
}

// FinishRun marks a run succeeded, or failed with runErr's message.
func (s *Store) FinishRun(ctx context.Context, id string, runErr error) error {
	status := StatusSucceeded
	message := ""
	if runErr != nil {
		status = StatusFailed
		message = runErr.Error()
	}
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, message, time.Now().UTC(), id)
	return err
}

// AddArtifacts records the artifacts a run built.
func (s *Store) AddArtifacts(ctx context.Context, runID string, artifacts []Artifact) error {
	for _, artifact := range artifacts {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO run_artifacts (run_id, filename, kind, size, sha256, uploaded)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runID, artifact.Filename, artifact.Kind, artifact.Size, artifact.SHA256, artifact.Uploaded)
		if err != nil {
			return fmt.Errorf("failed to record artifact %s: %w", artifact.Filename, err)
		}
	}
	return nil
}

// MarkUploaded flags one artifact as uploaded.
func (s *Store) MarkUploaded(ctx context.Context, runID, filename string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE run_artifacts SET uploaded = 1 WHERE run_id = ? AND filename = ?`,
		runID, filename)
	return err
}

// SeenDelivery reports whether a run for this delivery GUID already
// exists, giving listen mode at-most-once activation per delivery.
func (s *Store) SeenDelivery(ctx context.Context, deliveryID string) (bool, error) {
	if deliveryID == "" {
		return false, nil
	}
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE delivery_id = ?`, deliveryID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetRun loads one run by ID, or by unambiguous ID prefix.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, delivery_id, repo, tag, revision, fingerprint, status, step, error, started_at, finished_at
		FROM runs WHERE id = ? OR id LIKE ?`, id, id+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	switch len(runs) {
	case 0:
		return nil, fmt.Errorf("no run %s", id)
	case 1:
		return runs[0], nil
	default:
		return nil, fmt.Errorf("run ID %s is ambiguous (%d matches)", id, len(runs))
	}
}

// ListRuns returns the newest runs, up to limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, delivery_id, repo, tag, revision, fingerprint, status, step, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

// RunArtifacts returns the artifacts recorded for a run.
func (s *Store) RunArtifacts(ctx context.Context, runID string) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, filename, kind, size, sha256, uploaded
		FROM run_artifacts WHERE run_id = ? ORDER BY filename`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []Artifact
	for rows.Next() {
		var artifact Artifact
		if err := rows.Scan(&artifact.RunID, &artifact.Filename, &artifact.Kind,
			&artifact.Size, &artifact.SHA256, &artifact.Uploaded); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, rows.Err()
}

func scanRuns(rows *sql.Rows) ([]*Run, error) {
	var runs []*Run
	for rows.Next() {
		var run Run
		var finished sql.NullTime
		err := rows.Scan(&run.ID, &run.DeliveryID, &run.Repo, &run.Tag, &run.Revision,
			&run.Fingerprint, &run.Status, &run.Step, &run.Error, &run.StartedAt, &finished)
		if err != nil {
			return nil, err
		}
		if finished.Valid {
			run.FinishedAt = finished.Time
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// Document renders the run as a plain map, the shape query filters
// evaluate against.
func (r *Run) Document() map[string]interface{} {
	return map[string]interface{}{
		"id":          r.ID,
		"delivery_id": r.DeliveryID,
		"repo":        r.Repo,
		"tag":         r.Tag,
		"revision":    r.Revision,
		"status":      r.Status,
		"step":        r.Step,
		"error":       r.Error,
	}
}

// Package store implements the durable side of the loop: pattern records,
// prediction and decision audit rows, measured outcomes, optimization
// passes, and the measurement job queue. The SQLite store is the default
// single-node backend; the Postgres store is the shared-deployment variant.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"xbot/internal/logging"
	"xbot/internal/outcome"
	"xbot/internal/types"
)

// maxMeasurementAttempts bounds retries for one measurement job: the first
// failure leaves it pending, the second is terminal.
const maxMeasurementAttempts = 2

// SQLiteStore is the single-node persistence backend. It satisfies
// patterns.Backend, outcome.JobStore, outcome.OutcomeLog and
// optimizer.AuditLog.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates or opens the store at dbPath, creating the parent
// directory and schema as needed.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteStore")
	defer timer.Stop()

	if dbPath == "" {
		return nil, fmt.Errorf("database path required")
	}

	logging.Store("Initializing store at: %s", dbPath)

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	s := &SQLiteStore{db: db, dbPath: dbPath}
	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Store("Store initialized successfully")
	return s, nil
}

// initializeSchema creates the tables. Idempotent.
func (s *SQLiteStore) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS patterns (
		identifier TEXT PRIMARY KEY,
		pattern_type TEXT NOT NULL,
		sample_size INTEGER NOT NULL DEFAULT 0,
		avg_followers_gained REAL NOT NULL DEFAULT 0,
		avg_engagement_rate REAL NOT NULL DEFAULT 0,
		success_rate REAL NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_patterns_type ON patterns(pattern_type);

	CREATE TABLE IF NOT EXISTS predictions (
		content_hash TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_predictions_hash ON predictions(content_hash);

	CREATE TABLE IF NOT EXISTS decisions (
		content_hash TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_hash ON decisions(content_hash);

	CREATE TABLE IF NOT EXISTS outcomes (
		content_id TEXT NOT NULL,
		horizon TEXT NOT NULL,
		before_followers INTEGER NOT NULL,
		after_followers INTEGER NOT NULL,
		actual_gained INTEGER NOT NULL,
		predicted_followers INTEGER NOT NULL,
		was_accurate INTEGER NOT NULL,
		measured_at TEXT NOT NULL,
		PRIMARY KEY (content_id, horizon)
	);

	CREATE TABLE IF NOT EXISTS optimizations (
		content_hash TEXT NOT NULL,
		original TEXT NOT NULL,
		revised TEXT NOT NULL,
		directives TEXT NOT NULL,
		accepted INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS measurement_jobs (
		id TEXT PRIMARY KEY,
		content_id TEXT NOT NULL,
		horizon TEXT NOT NULL,
		due_at TEXT NOT NULL,
		before_followers INTEGER NOT NULL,
		candidate_text TEXT NOT NULL,
		prediction TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		last_error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_due ON measurement_jobs(status, due_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// timeLayout is fixed-width so stored timestamps compare lexicographically
// in time order, which DueMeasurements relies on.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func decodeTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ============================================================================
// PATTERN RECORDS (patterns.Backend)
// ============================================================================

// LoadPatternRecords returns every persisted pattern record.
func (s *SQLiteStore) LoadPatternRecords(ctx context.Context) ([]types.PatternRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identifier, pattern_type, sample_size, avg_followers_gained,
		       avg_engagement_rate, success_rate, updated_at
		FROM patterns`)
	if err != nil {
		return nil, fmt.Errorf("failed to load patterns: %w", err)
	}
	defer rows.Close()

	var records []types.PatternRecord
	for rows.Next() {
		var rec types.PatternRecord
		var updatedAt string
		if err := rows.Scan(&rec.Identifier, &rec.PatternType, &rec.SampleSize,
			&rec.AvgFollowersGained, &rec.AvgEngagementRate, &rec.SuccessRate, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pattern row: %w", err)
		}
		rec.UpdatedAt = decodeTime(updatedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SavePatternRecord upserts one pattern record by identifier.
func (s *SQLiteStore) SavePatternRecord(ctx context.Context, rec types.PatternRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patterns (identifier, pattern_type, sample_size,
			avg_followers_gained, avg_engagement_rate, success_rate, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identifier) DO UPDATE SET
			pattern_type = excluded.pattern_type,
			sample_size = excluded.sample_size,
			avg_followers_gained = excluded.avg_followers_gained,
			avg_engagement_rate = excluded.avg_engagement_rate,
			success_rate = excluded.success_rate,
			updated_at = excluded.updated_at`,
		rec.Identifier, rec.PatternType, rec.SampleSize,
		rec.AvgFollowersGained, rec.AvgEngagementRate, rec.SuccessRate,
		encodeTime(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save pattern %q: %w", rec.Identifier, err)
	}
	return nil
}

// ============================================================================
// PREDICTION AND DECISION AUDIT
// ============================================================================

// SavePrediction appends one prediction audit row.
func (s *SQLiteStore) SavePrediction(ctx context.Context, prediction types.Prediction) error {
	payload, err := json.Marshal(prediction)
	if err != nil {
		return fmt.Errorf("failed to encode prediction: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO predictions (content_hash, payload, created_at) VALUES (?, ?, ?)`,
		prediction.ContentHash, string(payload), encodeTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save prediction: %w", err)
	}
	return nil
}

// SaveDecision appends one decision audit row.
func (s *SQLiteStore) SaveDecision(ctx context.Context, contentHash string, decision types.Decision) error {
	payload, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decisions (content_hash, kind, payload, created_at) VALUES (?, ?, ?, ?)`,
		contentHash, string(decision.Kind), string(payload), encodeTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save decision: %w", err)
	}
	return nil
}

// ============================================================================
// OUTCOMES (outcome.OutcomeLog)
// ============================================================================

// PersistOutcome writes one measured horizon. Re-measuring the same
// content/horizon pair overwrites the earlier row.
func (s *SQLiteStore) PersistOutcome(ctx context.Context, m types.OutcomeMeasurement) error {
	accurate := 0
	if m.WasAccurate {
		accurate = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes (content_id, horizon, before_followers, after_followers,
			actual_gained, predicted_followers, was_accurate, measured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_id, horizon) DO UPDATE SET
			before_followers = excluded.before_followers,
			after_followers = excluded.after_followers,
			actual_gained = excluded.actual_gained,
			predicted_followers = excluded.predicted_followers,
			was_accurate = excluded.was_accurate,
			measured_at = excluded.measured_at`,
		m.ContentID, string(m.Horizon), m.BeforeFollowers, m.AfterFollowers,
		m.ActualFollowersGained, m.PredictedFollowers, accurate, encodeTime(m.MeasuredAt))
	if err != nil {
		return fmt.Errorf("failed to persist outcome: %w", err)
	}
	return nil
}

// AccuracyAggregates returns the totals needed to restore the running
// accuracy at startup.
func (s *SQLiteStore) AccuracyAggregates(ctx context.Context) (total, correct int, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(was_accurate), 0) FROM outcomes`)
	if err := row.Scan(&total, &correct); err != nil {
		return 0, 0, fmt.Errorf("failed to read accuracy aggregates: %w", err)
	}
	return total, correct, nil
}

// ============================================================================
// OPTIMIZATION AUDIT (optimizer.AuditLog)
// ============================================================================

// RecordOptimization appends one optimization pass, accepted or not.
func (s *SQLiteStore) RecordOptimization(ctx context.Context, rec types.OptimizationRecord) error {
	directives, err := json.Marshal(rec.Directives)
	if err != nil {
		return fmt.Errorf("failed to encode directives: %w", err)
	}
	accepted := 0
	if rec.Accepted {
		accepted = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO optimizations (content_hash, original, revised, directives, accepted, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ContentHash, rec.Original, rec.Revised, string(directives), accepted,
		encodeTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record optimization: %w", err)
	}
	return nil
}

// ============================================================================
// MEASUREMENT JOBS (outcome.JobStore)
// ============================================================================

// EnqueueMeasurements persists a batch of pending measurement jobs in one
// transaction: either every job lands or none does.
func (s *SQLiteStore) EnqueueMeasurements(ctx context.Context, jobs []outcome.MeasurementJob) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin enqueue transaction: %w", err)
	}
	defer tx.Rollback()

	for _, job := range jobs {
		prediction, err := json.Marshal(job.Prediction)
		if err != nil {
			return fmt.Errorf("failed to encode prediction for job %s: %w", job.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO measurement_jobs (id, content_id, horizon, due_at,
				before_followers, candidate_text, prediction, attempts, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, 'pending', ?)`,
			job.ID, job.ContentID, string(job.Horizon), encodeTime(job.DueAt),
			job.BeforeFollowers, job.CandidateText, string(prediction),
			encodeTime(time.Now()))
		if err != nil {
			return fmt.Errorf("failed to enqueue measurement job %s: %w", job.ID, err)
		}
	}
	return tx.Commit()
}

// DueMeasurements returns pending jobs whose due time is at or before now,
// oldest first. The fixed-width timestamp encoding makes the comparison
// work directly on the stored text.
func (s *SQLiteStore) DueMeasurements(ctx context.Context, now time.Time, limit int) ([]outcome.MeasurementJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content_id, horizon, due_at, before_followers, candidate_text,
		       prediction, attempts
		FROM measurement_jobs
		WHERE status = 'pending' AND due_at <= ?
		ORDER BY due_at
		LIMIT ?`, encodeTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due measurements: %w", err)
	}
	defer rows.Close()

	var jobs []outcome.MeasurementJob
	for rows.Next() {
		var job outcome.MeasurementJob
		var horizon, dueAt, prediction string
		if err := rows.Scan(&job.ID, &job.ContentID, &horizon, &dueAt,
			&job.BeforeFollowers, &job.CandidateText, &prediction, &job.Attempts); err != nil {
			return nil, fmt.Errorf("failed to scan measurement job: %w", err)
		}
		job.Horizon = types.Horizon(horizon)
		job.DueAt = decodeTime(dueAt)
		if err := json.Unmarshal([]byte(prediction), &job.Prediction); err != nil {
			return nil, fmt.Errorf("failed to decode prediction for job %s: %w", job.ID, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CompleteMeasurement marks one job done.
func (s *SQLiteStore) CompleteMeasurement(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE measurement_jobs SET status = 'done' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to complete measurement job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("measurement job %s not found", id)
	}
	return nil
}

// FailMeasurement records one failed attempt. The job stays pending until
// its attempts reach the retry limit, then it is marked failed for good.
func (s *SQLiteStore) FailMeasurement(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE measurement_jobs
		SET attempts = attempts + 1,
		    last_error = ?,
		    status = CASE WHEN attempts + 1 >= ? THEN 'failed' ELSE 'pending' END
		WHERE id = ? AND status = 'pending'`,
		reason, maxMeasurementAttempts, id)
	if err != nil {
		return fmt.Errorf("failed to fail measurement job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("measurement job %s not found or not pending", id)
	}
	return nil
}

// PendingMeasurements counts jobs still waiting to fire. Used by health
// checks.
func (s *SQLiteStore) PendingMeasurements(ctx context.Context) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM measurement_jobs WHERE status = 'pending'`)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending measurements: %w", err)
	}
	return n, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"xbot/internal/logging"
	"xbot/internal/outcome"
	"xbot/internal/types"
)

// PostgresStore is the shared-deployment persistence backend. Same surface
// as SQLiteStore: patterns.Backend, outcome.JobStore, outcome.OutcomeLog
// and optimizer.AuditLog.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects with the given DSN and ensures the schema.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewPostgresStore")
	defer timer.Stop()

	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify postgres connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &PostgresStore{db: db}
	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize postgres schema: %w", err)
	}

	logging.Store("Postgres store initialized successfully")
	return s, nil
}

func (s *PostgresStore) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS patterns (
		identifier TEXT PRIMARY KEY,
		pattern_type TEXT NOT NULL,
		sample_size INTEGER NOT NULL DEFAULT 0,
		avg_followers_gained DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_engagement_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		success_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_patterns_type ON patterns(pattern_type);

	CREATE TABLE IF NOT EXISTS predictions (
		content_hash TEXT NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_predictions_hash ON predictions(content_hash);

	CREATE TABLE IF NOT EXISTS decisions (
		content_hash TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_hash ON decisions(content_hash);

	CREATE TABLE IF NOT EXISTS outcomes (
		content_id TEXT NOT NULL,
		horizon TEXT NOT NULL,
		before_followers INTEGER NOT NULL,
		after_followers INTEGER NOT NULL,
		actual_gained INTEGER NOT NULL,
		predicted_followers INTEGER NOT NULL,
		was_accurate BOOLEAN NOT NULL,
		measured_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (content_id, horizon)
	);

	CREATE TABLE IF NOT EXISTS optimizations (
		content_hash TEXT NOT NULL,
		original TEXT NOT NULL,
		revised TEXT NOT NULL,
		directives JSONB NOT NULL,
		accepted BOOLEAN NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS measurement_jobs (
		id TEXT PRIMARY KEY,
		content_id TEXT NOT NULL,
		horizon TEXT NOT NULL,
		due_at TIMESTAMPTZ NOT NULL,
		before_followers INTEGER NOT NULL,
		candidate_text TEXT NOT NULL,
		prediction JSONB NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		last_error TEXT NOT NULL DEFAULT '',
		claimed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_due ON measurement_jobs(status, due_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// LoadPatternRecords returns every persisted pattern record.
func (s *PostgresStore) LoadPatternRecords(ctx context.Context) ([]types.PatternRecord, error) {
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
		if err := rows.Scan(&rec.Identifier, &rec.PatternType, &rec.SampleSize,
			&rec.AvgFollowersGained, &rec.AvgEngagementRate, &rec.SuccessRate, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pattern row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SavePatternRecord upserts one pattern record by identifier.
func (s *PostgresStore) SavePatternRecord(ctx context.Context, rec types.PatternRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patterns (identifier, pattern_type, sample_size,
			avg_followers_gained, avg_engagement_rate, success_rate, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (identifier) DO UPDATE SET
			pattern_type = EXCLUDED.pattern_type,
			sample_size = EXCLUDED.sample_size,
			avg_followers_gained = EXCLUDED.avg_followers_gained,
			avg_engagement_rate = EXCLUDED.avg_engagement_rate,
			success_rate = EXCLUDED.success_rate,
			updated_at = EXCLUDED.updated_at`,
		rec.Identifier, rec.PatternType, rec.SampleSize,
		rec.AvgFollowersGained, rec.AvgEngagementRate, rec.SuccessRate, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save pattern %q: %w", rec.Identifier, err)
	}
	return nil
}

// SavePrediction appends one prediction audit row.
func (s *PostgresStore) SavePrediction(ctx context.Context, prediction types.Prediction) error {
	payload, err := json.Marshal(prediction)
	if err != nil {
		return fmt.Errorf("failed to encode prediction: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO predictions (content_hash, payload, created_at) VALUES ($1, $2, $3)`,
		prediction.ContentHash, payload, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save prediction: %w", err)
	}
	return nil
}

// SaveDecision appends one decision audit row.
func (s *PostgresStore) SaveDecision(ctx context.Context, contentHash string, decision types.Decision) error {
	payload, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decisions (content_hash, kind, payload, created_at) VALUES ($1, $2, $3, $4)`,
		contentHash, string(decision.Kind), payload, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save decision: %w", err)
	}
	return nil
}

// PersistOutcome writes one measured horizon, overwriting any earlier row
// for the same content/horizon pair.
func (s *PostgresStore) PersistOutcome(ctx context.Context, m types.OutcomeMeasurement) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes (content_id, horizon, before_followers, after_followers,
			actual_gained, predicted_followers, was_accurate, measured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (content_id, horizon) DO UPDATE SET
			before_followers = EXCLUDED.before_followers,
			after_followers = EXCLUDED.after_followers,
			actual_gained = EXCLUDED.actual_gained,
			predicted_followers = EXCLUDED.predicted_followers,
			was_accurate = EXCLUDED.was_accurate,
			measured_at = EXCLUDED.measured_at`,
		m.ContentID, string(m.Horizon), m.BeforeFollowers, m.AfterFollowers,
		m.ActualFollowersGained, m.PredictedFollowers, m.WasAccurate, m.MeasuredAt)
	if err != nil {
		return fmt.Errorf("failed to persist outcome: %w", err)
	}
	return nil
}

// AccuracyAggregates returns the totals needed to restore the running
// accuracy at startup.
func (s *PostgresStore) AccuracyAggregates(ctx context.Context) (total, correct int, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN was_accurate THEN 1 ELSE 0 END), 0)
		FROM outcomes`)
	if err := row.Scan(&total, &correct); err != nil {
		return 0, 0, fmt.Errorf("failed to read accuracy aggregates: %w", err)
	}
	return total, correct, nil
}

// RecordOptimization appends one optimization pass, accepted or not.
func (s *PostgresStore) RecordOptimization(ctx context.Context, rec types.OptimizationRecord) error {
	directives, err := json.Marshal(rec.Directives)
	if err != nil {
		return fmt.Errorf("failed to encode directives: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO optimizations (content_hash, original, revised, directives, accepted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ContentHash, rec.Original, rec.Revised, directives, rec.Accepted, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record optimization: %w", err)
	}
	return nil
}

// EnqueueMeasurements persists a batch of pending measurement jobs in one
// transaction: either every job lands or none does.
func (s *PostgresStore) EnqueueMeasurements(ctx context.Context, jobs []outcome.MeasurementJob) error {
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
			VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 'pending', $8)`,
			job.ID, job.ContentID, string(job.Horizon), job.DueAt,
			job.BeforeFollowers, job.CandidateText, prediction, time.Now())
		if err != nil {
			return fmt.Errorf("failed to enqueue measurement job %s: %w", job.ID, err)
		}
	}
	return tx.Commit()
}

// claimLease is how long a claimed job stays invisible to other workers.
// A worker that dies mid-measurement releases its claims after this long.
const claimLease = 10 * time.Minute

// DueMeasurements atomically claims due jobs. The claim is a single UPDATE
// over a FOR UPDATE SKIP LOCKED subselect, so concurrent workers sharing
// one database never receive the same job; the row locks alone would not
// survive past the statement. Claims older than claimLease count as
// abandoned and are handed out again.
func (s *PostgresStore) DueMeasurements(ctx context.Context, now time.Time, limit int) ([]outcome.MeasurementJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE measurement_jobs
		SET status = 'claimed', claimed_at = $1
		WHERE id IN (
			SELECT id FROM measurement_jobs
			WHERE due_at <= $1
			  AND (status = 'pending' OR (status = 'claimed' AND claimed_at <= $2))
			ORDER BY due_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, content_id, horizon, due_at, before_followers, candidate_text,
		          prediction, attempts`,
		now, now.Add(-claimLease), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due measurements: %w", err)
	}
	defer rows.Close()

	var jobs []outcome.MeasurementJob
	for rows.Next() {
		var job outcome.MeasurementJob
		var horizon string
		var prediction []byte
		if err := rows.Scan(&job.ID, &job.ContentID, &horizon, &job.DueAt,
			&job.BeforeFollowers, &job.CandidateText, &prediction, &job.Attempts); err != nil {
			return nil, fmt.Errorf("failed to scan measurement job: %w", err)
		}
		job.Horizon = types.Horizon(horizon)
		if err := json.Unmarshal(prediction, &job.Prediction); err != nil {
			return nil, fmt.Errorf("failed to decode prediction for job %s: %w", job.ID, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CompleteMeasurement marks one job done.
func (s *PostgresStore) CompleteMeasurement(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE measurement_jobs SET status = 'done' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to complete measurement job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("measurement job %s not found", id)
	}
	return nil
}

// FailMeasurement records one failed attempt. Releasing the claim back to
// pending gives the job its retry on the next poll tick; at the retry limit
// it is marked failed for good.
func (s *PostgresStore) FailMeasurement(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE measurement_jobs
		SET attempts = attempts + 1,
		    last_error = $1,
		    claimed_at = NULL,
		    status = CASE WHEN attempts + 1 >= $2 THEN 'failed' ELSE 'pending' END
		WHERE id = $3 AND status IN ('pending', 'claimed')`,
		reason, maxMeasurementAttempts, id)
	if err != nil {
		return fmt.Errorf("failed to fail measurement job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("measurement job %s not found or already finished", id)
	}
	return nil
}

// PendingMeasurements counts jobs still waiting for a completed
// measurement. Claimed jobs are in flight, not finished, so they count.
func (s *PostgresStore) PendingMeasurements(ctx context.Context) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM measurement_jobs WHERE status IN ('pending', 'claimed')`)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending measurements: %w", err)
	}
	return n, nil
}

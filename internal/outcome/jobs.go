// Package outcome schedules delayed measurements of posted content and
// reconciles the measured results against the predictions that drove them.
//
// Measurements are durable scheduled jobs: a persisted due-timestamp plus
// payload, polled by a worker. In-memory timers were considered and
// rejected because 24h/7d timers silently lose every pending measurement
// on restart; a fresh worker on the same database picks pending jobs up.
package outcome

import (
	"context"
	"time"

	"xbot/internal/types"
)

// MeasurementJob is one pending horizon measurement for a posted content.
type MeasurementJob struct {
	ID              string           `json:"id"`
	ContentID       string           `json:"content_id"`
	Horizon         types.Horizon    `json:"horizon"`
	DueAt           time.Time        `json:"due_at"`
	BeforeFollowers int              `json:"before_followers"`
	CandidateText   string           `json:"candidate_text"`
	Prediction      types.Prediction `json:"prediction"`
	Attempts        int              `json:"attempts"`
}

// JobStore persists measurement jobs. Implemented by the SQLite and
// Postgres stores.
//
// EnqueueMeasurements is all-or-nothing: either every job in the batch is
// persisted or none is, so a post never ends up with only one of its
// horizons scheduled.
//
// FailMeasurement gives a job one retry: the first failure leaves it
// pending for the next poll tick, the second marks it failed for good.
type JobStore interface {
	EnqueueMeasurements(ctx context.Context, jobs []MeasurementJob) error
	DueMeasurements(ctx context.Context, now time.Time, limit int) ([]MeasurementJob, error)
	CompleteMeasurement(ctx context.Context, id string) error
	FailMeasurement(ctx context.Context, id, reason string) error
}

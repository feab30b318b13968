package outcome

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"xbot/internal/logging"
	"xbot/internal/social"
	"xbot/internal/types"
)

// Scheduler enqueues the two horizon measurements for freshly posted
// content. Call Schedule exactly once per successful post.
type Scheduler struct {
	jobs        JobStore
	followers   social.FollowerSource
	short       time.Duration
	long        time.Duration
	readTimeout time.Duration
	now         func() time.Time
}

// NewScheduler creates a Scheduler with the given horizons.
func NewScheduler(jobs JobStore, followers social.FollowerSource, short, long time.Duration) *Scheduler {
	return &Scheduler{
		jobs:        jobs,
		followers:   followers,
		short:       short,
		long:        long,
		readTimeout: 30 * time.Second,
		now:         time.Now,
	}
}

// SetClock overrides the clock for deterministic tests.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Schedule snapshots the current follower count and enqueues the short and
// long horizon measurements. The snapshot read is the one step that must
// succeed: without a baseline neither horizon can be computed.
func (s *Scheduler) Schedule(ctx context.Context, contentID string, candidate types.ContentCandidate, prediction types.Prediction) error {
	readCtx, cancel := context.WithTimeout(ctx, s.readTimeout)
	before, err := s.followers.CurrentFollowerCount(readCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("follower baseline read failed for %s: %w", contentID, err)
	}

	now := s.now()
	var batch []MeasurementJob
	for _, h := range []struct {
		label types.Horizon
		delay time.Duration
	}{
		{types.HorizonShort, s.short},
		{types.HorizonLong, s.long},
	} {
		batch = append(batch, MeasurementJob{
			ID:              uuid.NewString(),
			ContentID:       contentID,
			Horizon:         h.label,
			DueAt:           now.Add(h.delay),
			BeforeFollowers: before,
			CandidateText:   candidate.Text,
			Prediction:      prediction,
		})
	}
	// One atomic write for both horizons: a storage failure must not leave
	// a post with only its short horizon scheduled.
	if err := s.jobs.EnqueueMeasurements(ctx, batch); err != nil {
		return fmt.Errorf("failed to enqueue measurements for %s: %w", contentID, err)
	}

	logging.Scheduler("scheduled measurements for %s: before=%d, due %s and %s",
		contentID, before, now.Add(s.short).Format(time.RFC3339), now.Add(s.long).Format(time.RFC3339))
	return nil
}

package outcome

import (
	"context"
	"sort"
	"time"

	"xbot/internal/logging"
	"xbot/internal/patterns"
	"xbot/internal/predictor"
	"xbot/internal/state"
	"xbot/internal/types"
)

// OutcomeLog persists reconciled measurements for audit.
type OutcomeLog interface {
	PersistOutcome(ctx context.Context, m types.OutcomeMeasurement) error
}

// Reconciler compares measured outcomes against their predictions, updates
// the running prediction accuracy, and folds results into the pattern store.
type Reconciler struct {
	state     *state.SystemState
	patterns  *patterns.Store
	audit     OutcomeLog
	tolerance int
	now       func() time.Time
}

// NewReconciler creates a Reconciler. tolerance is the maximum
// |predicted - actual| still counted as an accurate prediction.
func NewReconciler(st *state.SystemState, store *patterns.Store, audit OutcomeLog, tolerance int) *Reconciler {
	return &Reconciler{
		state:     st,
		patterns:  store,
		audit:     audit,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// SetClock overrides the clock for deterministic tests.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

// Reconcile processes one measured horizon. actual is the signed follower
// delta (after - before). Accuracy is a running ratio and the per-pattern
// updates are running means, so replaying the same sequence of outcomes
// always produces the same final statistics.
func (r *Reconciler) Reconcile(ctx context.Context, contentID string, prediction types.Prediction, candidateText string, before, after int, horizon types.Horizon) types.OutcomeMeasurement {
	actual := after - before

	diff := actual - prediction.PredictedFollowers
	if diff < 0 {
		diff = -diff
	}
	wasAccurate := diff <= r.tolerance

	r.state.RecordPrediction(wasAccurate)

	// Every pattern present in the original text shares this outcome:
	// records already in the store that substring-match, plus structural
	// patterns observed for the first time.
	seen := make(map[string]string)
	for _, rec := range r.patterns.Match(candidateText) {
		seen[rec.Identifier] = rec.PatternType
	}
	for _, tag := range predictor.ExtractPatterns(candidateText) {
		if _, ok := seen[tag.Identifier]; !ok {
			seen[tag.Identifier] = tag.PatternType
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	success := actual > 0
	for _, id := range ids {
		r.patterns.Update(ctx, id, seen[id], float64(actual), prediction.PredictedEngagementRate, success)
	}

	m := types.OutcomeMeasurement{
		ContentID:             contentID,
		Horizon:               horizon,
		BeforeFollowers:       before,
		AfterFollowers:        after,
		ActualFollowersGained: actual,
		PredictedFollowers:    prediction.PredictedFollowers,
		WasAccurate:           wasAccurate,
		MeasuredAt:            r.now(),
	}

	if r.audit != nil {
		if err := r.audit.PersistOutcome(ctx, m); err != nil {
			logging.StoreWarn("outcome persist failed for %s/%s: %v", contentID, horizon, err)
		}
	}

	logging.Learning("reconciled %s/%s: predicted=%d actual=%d accurate=%v accuracy=%.3f patterns=%d",
		contentID, horizon, prediction.PredictedFollowers, actual, wasAccurate, r.state.Accuracy(), len(ids))

	return m
}

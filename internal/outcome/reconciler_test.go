package outcome

import (
	"context"
	"math"
	"testing"
	"time"

	"xbot/internal/patterns"
	"xbot/internal/state"
	"xbot/internal/types"
)

var reconNow = time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

func newTestReconciler(audit OutcomeLog) (*Reconciler, *state.SystemState, *patterns.Store) {
	st := state.New()
	store := patterns.NewStore(context.Background(), nil)
	store.SetClock(func() time.Time { return reconNow })
	r := NewReconciler(st, store, audit, 2)
	r.SetClock(func() time.Time { return reconNow })
	return r, st, store
}

func TestReconcileAccurateWithinTolerance(t *testing.T) {
	tests := []struct {
		name      string
		predicted int
		actual    int
		want      bool
	}{
		{"exact", 4, 4, true},
		{"off by tolerance", 4, 6, true},
		{"off by tolerance below", 4, 2, true},
		{"beyond tolerance", 4, 7, false},
		{"net loss", 4, -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, st, _ := newTestReconciler(nil)
			m := r.Reconcile(context.Background(), "post-1",
				types.Prediction{PredictedFollowers: tt.predicted},
				"plain text", 100, 100+tt.actual, types.HorizonShort)

			if m.WasAccurate != tt.want {
				t.Errorf("WasAccurate = %v, want %v", m.WasAccurate, tt.want)
			}
			if m.ActualFollowersGained != tt.actual {
				t.Errorf("ActualFollowersGained = %d, want %d", m.ActualFollowersGained, tt.actual)
			}
			if st.TotalPredictions() != 1 {
				t.Errorf("TotalPredictions = %d, want 1", st.TotalPredictions())
			}
		})
	}
}

func TestReconcileUpdatesAccuracy(t *testing.T) {
	r, st, _ := newTestReconciler(nil)
	ctx := context.Background()

	r.Reconcile(ctx, "p1", types.Prediction{PredictedFollowers: 4}, "text", 100, 104, types.HorizonShort) // accurate
	r.Reconcile(ctx, "p2", types.Prediction{PredictedFollowers: 4}, "text", 104, 114, types.HorizonShort) // off by 6
	r.Reconcile(ctx, "p3", types.Prediction{PredictedFollowers: 2}, "text", 114, 115, types.HorizonShort) // accurate

	if got := st.Accuracy(); math.Abs(got-2.0/3.0) > 1e-9 {
		t.Errorf("Accuracy = %v, want 2/3", got)
	}
}

func TestReconcileCreatesPatternRecords(t *testing.T) {
	r, _, store := newTestReconciler(nil)

	r.Reconcile(context.Background(), "post-1",
		types.Prediction{PredictedFollowers: 4, PredictedEngagementRate: 0.2},
		"Ever wonder why 87% of sleep trackers fail?",
		500, 505, types.HorizonShort)

	for _, id := range []string{"ever wonder", "%", "?"} {
		rec, ok := store.Get(id)
		if !ok {
			t.Errorf("pattern %q not created on first observed use", id)
			continue
		}
		if rec.SampleSize != 1 {
			t.Errorf("pattern %q SampleSize = %d, want 1", id, rec.SampleSize)
		}
		if rec.SuccessRate != 1.0 {
			t.Errorf("pattern %q SuccessRate = %v, want 1.0 for a net gain", id, rec.SuccessRate)
		}
		if rec.AvgFollowersGained != 5 {
			t.Errorf("pattern %q AvgFollowersGained = %v, want 5", id, rec.AvgFollowersGained)
		}
	}
}

func TestReconcileUpdatesExistingPatternsOnce(t *testing.T) {
	r, _, store := newTestReconciler(nil)
	ctx := context.Background()

	// "ever wonder" exists already and is also extracted from the text; it
	// must be updated exactly once per reconcile.
	store.Update(ctx, "ever wonder", "hook", 10, 0.2, true)

	r.Reconcile(ctx, "post-1", types.Prediction{PredictedFollowers: 4},
		"Ever wonder why things fail?", 100, 98, types.HorizonLong)

	rec, _ := store.Get("ever wonder")
	if rec.SampleSize != 2 {
		t.Errorf("SampleSize = %d, want 2 (one seed + one reconcile)", rec.SampleSize)
	}
	if rec.SuccessRate != 0.5 {
		t.Errorf("SuccessRate = %v, want 0.5 after one success and one net loss", rec.SuccessRate)
	}
}

func TestReconcileNetLossIsFailure(t *testing.T) {
	r, _, store := newTestReconciler(nil)

	// Zero gain is not success either.
	r.Reconcile(context.Background(), "post-1", types.Prediction{PredictedFollowers: 0},
		"What if nothing happens?", 100, 100, types.HorizonShort)

	rec, ok := store.Get("?")
	if !ok {
		t.Fatal("pattern not created")
	}
	if rec.SuccessRate != 0 {
		t.Errorf("SuccessRate = %v, want 0 for zero gain", rec.SuccessRate)
	}
}

func TestReconcilePersistsOutcome(t *testing.T) {
	audit := &recordingLog{}
	r, _, _ := newTestReconciler(audit)

	r.Reconcile(context.Background(), "post-1",
		types.Prediction{PredictedFollowers: 4}, "text", 500, 503, types.HorizonLong)

	got := audit.all()
	if len(got) != 1 {
		t.Fatalf("persisted outcomes = %d, want 1", len(got))
	}
	m := got[0]
	if m.ContentID != "post-1" || m.Horizon != types.HorizonLong {
		t.Errorf("persisted %+v, want post-1/7d", m)
	}
	if m.BeforeFollowers != 500 || m.AfterFollowers != 503 || m.ActualFollowersGained != 3 {
		t.Errorf("persisted counts %+v wrong", m)
	}
	if !m.MeasuredAt.Equal(reconNow) {
		t.Errorf("MeasuredAt = %v, want the reconciler clock", m.MeasuredAt)
	}
}

func TestReconcileReplayDeterministic(t *testing.T) {
	run := func() (float64, types.PatternRecord) {
		r, st, store := newTestReconciler(nil)
		ctx := context.Background()
		r.Reconcile(ctx, "p1", types.Prediction{PredictedFollowers: 4}, "Why do posts fail?", 100, 103, types.HorizonShort)
		r.Reconcile(ctx, "p2", types.Prediction{PredictedFollowers: 1}, "Why do posts fail?", 103, 103, types.HorizonShort)
		r.Reconcile(ctx, "p3", types.Prediction{PredictedFollowers: 6}, "Why do posts fail?", 103, 110, types.HorizonShort)
		rec, _ := store.Get("why do")
		return st.Accuracy(), rec
	}

	acc1, rec1 := run()
	acc2, rec2 := run()
	if acc1 != acc2 || rec1 != rec2 {
		t.Error("replaying the same outcomes produced different learning state")
	}
}

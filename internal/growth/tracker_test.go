package growth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"xbot/internal/state"
)

type stubFollowers struct {
	mu    sync.Mutex
	count int
	err   error
}

func (s *stubFollowers) CurrentFollowerCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return s.count, nil
}

func TestTrackerPollUpdatesState(t *testing.T) {
	st := state.New()
	tr := NewFollowerTracker(&stubFollowers{count: 777}, st, time.Hour)

	tr.Poll(context.Background())

	if st.FollowerCount() != 777 {
		t.Errorf("FollowerCount = %d, want 777", st.FollowerCount())
	}
}

func TestTrackerPollFailureKeepsLastKnown(t *testing.T) {
	st := state.New()
	st.SetFollowerCount(500)
	tr := NewFollowerTracker(&stubFollowers{err: errors.New("api down")}, st, time.Hour)

	tr.Poll(context.Background())

	if st.FollowerCount() != 500 {
		t.Errorf("FollowerCount = %d, want the last known 500", st.FollowerCount())
	}
}

func TestTrackerStartStopIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	st := state.New()
	tr := NewFollowerTracker(&stubFollowers{count: 10}, st, time.Hour)
	ctx := context.Background()

	tr.Start(ctx)
	tr.Start(ctx) // no-op
	if !tr.Running() || !st.IsRunning() {
		t.Error("tracker not reported running after Start")
	}

	tr.Stop()
	if tr.Running() || st.IsRunning() {
		t.Error("tracker still reported running after Stop")
	}
	tr.Stop() // no-op

	tr.Start(ctx)
	if !tr.Running() {
		t.Error("tracker not running after restart")
	}
	tr.Stop()
}

package growth

import (
	"context"
	"sync"
	"time"

	"xbot/internal/logging"
	"xbot/internal/social"
	"xbot/internal/state"
)

// FollowerTracker periodically reads the current follower count into the
// system state so predictions and health checks see a recent number even
// between measurements.
type FollowerTracker struct {
	followers social.FollowerSource
	state     *state.SystemState
	interval  time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	done    chan struct{}
	running bool
}

// NewFollowerTracker creates a tracker polling at the given interval.
func NewFollowerTracker(followers social.FollowerSource, st *state.SystemState, interval time.Duration) *FollowerTracker {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &FollowerTracker{
		followers: followers,
		state:     st,
		interval:  interval,
	}
}

// Start launches the poll loop. Starting a running tracker is a no-op.
func (t *FollowerTracker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		logging.Growth("follower tracker already running, start ignored")
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	t.done = make(chan struct{})
	t.state.SetRunning(true)

	go t.loop(ctx, t.stopCh, t.done)
	logging.Growth("follower tracker started, polling every %s", t.interval)
}

// Stop halts the loop and blocks until it has exited. Stopping a stopped
// tracker is a no-op.
func (t *FollowerTracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopCh)
	done := t.done
	t.mu.Unlock()

	<-done
	t.state.SetRunning(false)
	logging.Growth("follower tracker stopped")
}

// Running reports whether the poll loop is active.
func (t *FollowerTracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *FollowerTracker) loop(ctx context.Context, stopCh, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.Poll(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Poll(ctx)
		}
	}
}

// Poll performs a single follower count read. A read failure keeps the last
// known count; the tracker never guesses.
func (t *FollowerTracker) Poll(ctx context.Context) {
	count, err := t.followers.CurrentFollowerCount(ctx)
	if err != nil {
		logging.GrowthDebug("follower poll failed, keeping last known count: %v", err)
		return
	}
	t.state.SetFollowerCount(count)
	logging.GrowthDebug("follower count: %d", count)
}

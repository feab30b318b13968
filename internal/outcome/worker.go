package outcome

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"xbot/internal/logging"
	"xbot/internal/social"
	"xbot/internal/state"
)

const (
	defaultBatchSize   = 50
	defaultConcurrency = 4
)

// Worker polls the job store for due measurements, reads the current
// follower count, and hands each job to the Reconciler. A failed job gets
// one retry through JobStore.FailMeasurement; the two horizons of one
// content fail or succeed independently.
type Worker struct {
	jobs       JobStore
	followers  social.FollowerSource
	reconciler *Reconciler
	state      *state.SystemState
	interval   time.Duration
	batchSize  int
	now        func() time.Time

	mu      sync.Mutex
	stopCh  chan struct{}
	done    chan struct{}
	running bool
}

// NewWorker creates a Worker polling at the given interval.
func NewWorker(jobs JobStore, followers social.FollowerSource, reconciler *Reconciler, st *state.SystemState, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Worker{
		jobs:       jobs,
		followers:  followers,
		reconciler: reconciler,
		state:      st,
		interval:   interval,
		batchSize:  defaultBatchSize,
		now:        time.Now,
	}
}

// SetClock overrides the clock for deterministic tests.
func (w *Worker) SetClock(now func() time.Time) {
	w.now = now
}

// Start launches the poll loop. Calling Start on a running worker is a
// no-op, so a supervisor restart never doubles the loop.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		logging.Learning("measurement worker already running, start ignored")
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	w.state.SetLearning(true)

	go w.loop(ctx, w.stopCh, w.done)
	logging.Learning("measurement worker started, polling every %s", w.interval)
}

// Stop halts the poll loop and blocks until it has exited. After Stop
// returns no further measurements fire until Start is called again.
// Stopping a stopped worker is a no-op.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	done := w.done
	w.mu.Unlock()

	<-done
	w.state.SetLearning(false)
	logging.Learning("measurement worker stopped")
}

// Running reports whether the poll loop is active.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) loop(ctx context.Context, stopCh, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// One immediate pass so jobs that came due while we were down are not
	// delayed by a full interval.
	w.Poll(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll runs a single poll pass: fetch due jobs, measure, reconcile. Exposed
// so tests and the supervisor can drive measurement without the loop.
func (w *Worker) Poll(ctx context.Context) {
	due, err := w.jobs.DueMeasurements(ctx, w.now(), w.batchSize)
	if err != nil {
		logging.StoreWarn("due measurement fetch failed: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}

	timer := logging.StartTimer(logging.CategoryLearning, "Poll")
	defer timer.Stop()

	// Jobs are independent; the pattern store and system state take care of
	// their own locking.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultConcurrency)
	for _, job := range due {
		g.Go(func() error {
			w.process(gctx, job)
			return nil
		})
	}
	_ = g.Wait()
}

func (w *Worker) process(ctx context.Context, job MeasurementJob) {
	after, err := w.followers.CurrentFollowerCount(ctx)
	if err != nil {
		logging.LearningDebug("follower read failed for job %s (%s/%s): %v",
			job.ID, job.ContentID, job.Horizon, err)
		if ferr := w.jobs.FailMeasurement(ctx, job.ID, err.Error()); ferr != nil {
			logging.StoreWarn("failed to mark job %s failed: %v", job.ID, ferr)
		}
		return
	}

	w.reconciler.Reconcile(ctx, job.ContentID, job.Prediction, job.CandidateText,
		job.BeforeFollowers, after, job.Horizon)

	if err := w.jobs.CompleteMeasurement(ctx, job.ID); err != nil {
		logging.StoreWarn("failed to mark job %s complete: %v", job.ID, err)
	}
}

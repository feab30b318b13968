// Package supervisor watches the background loops and restarts the ones it
// finds stopped. Restarts are idempotent: the loops' Start methods are
// no-ops while running, so a spurious restart can never double a loop.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"xbot/internal/logging"
	"xbot/internal/state"
)

// Status summarizes a health check.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
)

// accuracyMinSamples is how many reconciled outcomes the accuracy floor
// check waits for before it can flag anything. Early accuracy over a
// handful of samples is noise.
const accuracyMinSamples = 10

// HealthReport is the result of one supervisor pass.
type HealthReport struct {
	Status    Status    `json:"status"`
	Issues    []string  `json:"issues,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Loop is a restartable background loop. Satisfied by *outcome.Worker and
// *growth.FollowerTracker. Start must be a no-op on a running loop.
type Loop interface {
	Start(ctx context.Context)
	Stop()
	Running() bool
}

// Supervisor periodically health-checks the named loops and the prediction
// accuracy, restarting stopped loops.
type Supervisor struct {
	loops         map[string]Loop
	state         *state.SystemState
	accuracyFloor float64
	interval      time.Duration
	now           func() time.Time

	mu      sync.Mutex
	stopCh  chan struct{}
	done    chan struct{}
	running bool
}

// New creates a Supervisor over the given named loops.
func New(loops map[string]Loop, st *state.SystemState, accuracyFloor float64, interval time.Duration) *Supervisor {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Supervisor{
		loops:         loops,
		state:         st,
		accuracyFloor: accuracyFloor,
		interval:      interval,
		now:           time.Now,
	}
}

// SetClock overrides the clock for deterministic tests.
func (s *Supervisor) SetClock(now func() time.Time) {
	s.now = now
}

// CheckHealth runs one supervision pass: every stopped loop is restarted,
// and each restart or accuracy breach becomes a reported issue. A restarted
// loop is still an issue for this pass; the next pass sees it healthy.
func (s *Supervisor) CheckHealth(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:    StatusHealthy,
		CheckedAt: s.now(),
	}

	for name, loop := range s.loops {
		if loop.Running() {
			continue
		}
		logging.SupervisorWarn("loop %q found stopped, restarting", name)
		loop.Start(ctx)
		report.Issues = append(report.Issues, fmt.Sprintf("loop %q was stopped and has been restarted", name))
	}

	if s.state.TotalPredictions() >= accuracyMinSamples {
		if acc := s.state.Accuracy(); acc < s.accuracyFloor {
			report.Issues = append(report.Issues,
				fmt.Sprintf("prediction accuracy %.2f below floor %.2f", acc, s.accuracyFloor))
		}
	}

	if len(report.Issues) > 0 {
		report.Status = StatusDegraded
		logging.Supervisor("health: %s (%d issue(s))", report.Status, len(report.Issues))
	} else {
		logging.SupervisorDebug("health: %s", report.Status)
	}
	return report
}

// Run launches the periodic supervision loop. Running twice is a no-op.
func (s *Supervisor) Run(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		logging.Supervisor("supervisor already running, start ignored")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(ctx, s.stopCh, s.done)
	logging.Supervisor("supervisor started, checking every %s", s.interval)
}

// Stop halts supervision and every supervised loop, blocking until the
// supervision loop has exited. After Stop returns nothing fires again until
// Run is called. Stopping a stopped supervisor is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	<-done

	for name, loop := range s.loops {
		loop.Stop()
		logging.Supervisor("stopped loop %q", name)
	}
	logging.Supervisor("supervisor stopped")
}

// Running reports whether the supervision loop is active.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Supervisor) loop(ctx context.Context, stopCh, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.CheckHealth(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckHealth(ctx)
		}
	}
}

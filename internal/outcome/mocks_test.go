package outcome

import (
	"context"
	"errors"
	"sync"
	"time"

	"xbot/internal/types"
)

// memJobStore is an in-memory JobStore with the same retry semantics as the
// real backends. Sharing one across two workers simulates a restart against
// the same database.
type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]*memJob

	enqueueErr error
	dueErr     error
}

type memJob struct {
	job    MeasurementJob
	status string
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]*memJob)}
}

func (m *memJobStore) EnqueueMeasurements(ctx context.Context, jobs []MeasurementJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	// All-or-nothing, like the transactional backends.
	for _, job := range jobs {
		if _, exists := m.jobs[job.ID]; exists {
			return errors.New("duplicate job id")
		}
	}
	for _, job := range jobs {
		m.jobs[job.ID] = &memJob{job: job, status: "pending"}
	}
	return nil
}

func (m *memJobStore) DueMeasurements(ctx context.Context, now time.Time, limit int) ([]MeasurementJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dueErr != nil {
		return nil, m.dueErr
	}
	var due []MeasurementJob
	for _, j := range m.jobs {
		if j.status == "pending" && !j.job.DueAt.After(now) {
			due = append(due, j.job)
			if len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

func (m *memJobStore) CompleteMeasurement(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return errors.New("job not found")
	}
	j.status = "done"
	return nil
}

func (m *memJobStore) FailMeasurement(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.status != "pending" {
		return errors.New("job not found or not pending")
	}
	j.job.Attempts++
	if j.job.Attempts >= 2 {
		j.status = "failed"
	}
	return nil
}

func (m *memJobStore) statusOf(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		return j.status
	}
	return ""
}

func (m *memJobStore) pending() []MeasurementJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MeasurementJob
	for _, j := range m.jobs {
		if j.status == "pending" {
			out = append(out, j.job)
		}
	}
	return out
}

// fakeFollowers serves a scripted follower count.
type fakeFollowers struct {
	mu    sync.Mutex
	count int
	err   error
	calls int
}

func (f *fakeFollowers) CurrentFollowerCount(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.count, nil
}

func (f *fakeFollowers) set(count int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count = count
	f.err = err
}

// recordingLog captures persisted outcomes.
type recordingLog struct {
	mu       sync.Mutex
	outcomes []types.OutcomeMeasurement
	err      error
}

func (r *recordingLog) PersistOutcome(ctx context.Context, m types.OutcomeMeasurement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.outcomes = append(r.outcomes, m)
	return nil
}

func (r *recordingLog) all() []types.OutcomeMeasurement {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.OutcomeMeasurement, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

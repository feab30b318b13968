// Package state holds the process-wide learning state. It is an explicitly
// constructed object passed to the components that need it, not a singleton,
// so multiple instances can coexist in tests or multi-account deployments.
package state

import "sync"

// SystemState tracks the running calibration of the loop. Accuracy is an
// exact running ratio (correct/total), replayable from the outcome history.
type SystemState struct {
	mu sync.RWMutex

	isLearning bool
	isRunning  bool

	totalPredictions   int
	correctPredictions int
	lastAccuracy       float64

	lastKnownFollowers int
}

// New creates an empty SystemState (cold start: zero predictions).
func New() *SystemState {
	return &SystemState{}
}

// Restore rebuilds state from persisted aggregates at startup.
func Restore(total, correct, followers int) *SystemState {
	s := &SystemState{
		totalPredictions:   total,
		correctPredictions: correct,
		lastKnownFollowers: followers,
	}
	if total > 0 {
		s.lastAccuracy = float64(correct) / float64(total)
	}
	return s
}

// RecordPrediction folds one reconciled outcome into the running accuracy.
func (s *SystemState) RecordPrediction(wasAccurate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalPredictions++
	if wasAccurate {
		s.correctPredictions++
	}
	s.lastAccuracy = float64(s.correctPredictions) / float64(s.totalPredictions)
}

// Accuracy returns the running prediction accuracy in [0,1].
func (s *SystemState) Accuracy() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAccuracy
}

// TotalPredictions returns how many outcomes have been reconciled.
func (s *SystemState) TotalPredictions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalPredictions
}

// SetFollowerCount records the latest observed follower count.
func (s *SystemState) SetFollowerCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastKnownFollowers = n
}

// FollowerCount returns the last observed follower count.
func (s *SystemState) FollowerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastKnownFollowers
}

// SetLearning marks the learning loop as running or stopped.
func (s *SystemState) SetLearning(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isLearning = on
}

// IsLearning reports whether the learning loop is running.
func (s *SystemState) IsLearning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isLearning
}

// SetRunning marks the follower-tracking loop as running or stopped.
func (s *SystemState) SetRunning(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isRunning = on
}

// IsRunning reports whether the follower-tracking loop is running.
func (s *SystemState) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Snapshot returns a consistent copy of the counters for reporting.
func (s *SystemState) Snapshot() (total, correct, followers int, accuracy float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalPredictions, s.correctPredictions, s.lastKnownFollowers, s.lastAccuracy
}

package state

import (
	"math"
	"sync"
	"testing"
)

func TestRecordPredictionRunningRatio(t *testing.T) {
	s := New()

	if s.Accuracy() != 0 {
		t.Errorf("cold start Accuracy = %v, want 0", s.Accuracy())
	}

	s.RecordPrediction(true)
	s.RecordPrediction(true)
	s.RecordPrediction(false)

	if got := s.Accuracy(); math.Abs(got-2.0/3.0) > 1e-9 {
		t.Errorf("Accuracy = %v, want 2/3", got)
	}
	if s.TotalPredictions() != 3 {
		t.Errorf("TotalPredictions = %d, want 3", s.TotalPredictions())
	}
}

func TestRestoreMatchesReplay(t *testing.T) {
	// Restoring from aggregates must land on the same accuracy as replaying
	// the individual outcomes.
	replayed := New()
	outcomes := []bool{true, false, true, true, false, true, true}
	correct := 0
	for _, ok := range outcomes {
		replayed.RecordPrediction(ok)
		if ok {
			correct++
		}
	}

	restored := Restore(len(outcomes), correct, 0)

	if replayed.Accuracy() != restored.Accuracy() {
		t.Errorf("replayed %v != restored %v", replayed.Accuracy(), restored.Accuracy())
	}
	if replayed.TotalPredictions() != restored.TotalPredictions() {
		t.Errorf("replayed total %d != restored total %d", replayed.TotalPredictions(), restored.TotalPredictions())
	}
}

func TestFlagsAndFollowerCount(t *testing.T) {
	s := New()

	if s.IsLearning() || s.IsRunning() {
		t.Error("fresh state must report both loops stopped")
	}

	s.SetLearning(true)
	s.SetRunning(true)
	s.SetFollowerCount(1234)

	if !s.IsLearning() || !s.IsRunning() {
		t.Error("flags not set")
	}
	if s.FollowerCount() != 1234 {
		t.Errorf("FollowerCount = %d, want 1234", s.FollowerCount())
	}
}

func TestSnapshotConsistent(t *testing.T) {
	s := Restore(10, 7, 500)
	total, correct, followers, accuracy := s.Snapshot()

	if total != 10 || correct != 7 || followers != 500 {
		t.Errorf("Snapshot = (%d, %d, %d), want (10, 7, 500)", total, correct, followers)
	}
	if math.Abs(accuracy-0.7) > 1e-9 {
		t.Errorf("accuracy = %v, want 0.7", accuracy)
	}
}

func TestRecordPredictionConcurrent(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(accurate bool) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.RecordPrediction(accurate)
			}
		}(i%2 == 0)
	}
	wg.Wait()

	if s.TotalPredictions() != 1000 {
		t.Errorf("TotalPredictions = %d, want 1000", s.TotalPredictions())
	}
}

package patterns

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"xbot/internal/types"
)

// mockBackend is a hand-rolled Backend with pluggable behavior.
type mockBackend struct {
	mu      sync.Mutex
	saved   []types.PatternRecord
	loadFn  func(ctx context.Context) ([]types.PatternRecord, error)
	saveErr error
}

func (m *mockBackend) LoadPatternRecords(ctx context.Context) ([]types.PatternRecord, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx)
	}
	return nil, nil
}

func (m *mockBackend) SavePatternRecord(ctx context.Context, rec types.PatternRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, rec)
	return nil
}

func (m *mockBackend) savedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

var patternNow = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func newFrozenStore(backend Backend) *Store {
	s := NewStore(context.Background(), backend)
	s.SetClock(func() time.Time { return patternNow })
	return s
}

func TestUpdateRunningMeans(t *testing.T) {
	s := newFrozenStore(nil)
	ctx := context.Background()

	for i, gained := range []float64{10, 20, 30} {
		s.Update(ctx, "ever wonder", "hook", gained, 0.1*float64(i+1), i < 2)
	}

	rec, ok := s.Get("ever wonder")
	if !ok {
		t.Fatal("record not found after updates")
	}
	if rec.SampleSize != 3 {
		t.Errorf("SampleSize = %d, want 3", rec.SampleSize)
	}
	if math.Abs(rec.AvgFollowersGained-20) > 1e-9 {
		t.Errorf("AvgFollowersGained = %v, want 20", rec.AvgFollowersGained)
	}
	if math.Abs(rec.SuccessRate-2.0/3.0) > 1e-9 {
		t.Errorf("SuccessRate = %v, want 2/3", rec.SuccessRate)
	}
	if math.Abs(rec.AvgEngagementRate-0.2) > 1e-9 {
		t.Errorf("AvgEngagementRate = %v, want 0.2", rec.AvgEngagementRate)
	}
}

func TestUpdateReplayDeterministic(t *testing.T) {
	run := func() types.PatternRecord {
		s := newFrozenStore(nil)
		ctx := context.Background()
		s.Update(ctx, "?", "structure", 3, 0.2, true)
		s.Update(ctx, "?", "structure", -1, 0.1, false)
		s.Update(ctx, "?", "structure", 7, 0.3, true)
		rec, _ := s.Get("?")
		return rec
	}

	if run() != run() {
		t.Error("replaying the same outcome sequence produced different records")
	}
}

func TestMatchSubstringCaseInsensitive(t *testing.T) {
	s := newFrozenStore(nil)
	ctx := context.Background()
	s.Update(ctx, "ever wonder", "hook", 5, 0.2, true)
	s.Update(ctx, "%", "structure", 2, 0.1, true)
	s.Update(ctx, "unpopular opinion", "hook", 1, 0.1, false)

	got := s.Match("EVER WONDER why 87% fail?")

	if len(got) != 2 {
		t.Fatalf("matched %d records %v, want 2", len(got), got)
	}
	// Sorted by identifier.
	if got[0].Identifier != "%" || got[1].Identifier != "ever wonder" {
		t.Errorf("match order = [%s, %s], want sorted identifiers", got[0].Identifier, got[1].Identifier)
	}
}

func TestRecencyDecayAtReadOnly(t *testing.T) {
	s := newFrozenStore(nil)
	ctx := context.Background()
	s.Update(ctx, "ever wonder", "hook", 5, 0.2, true) // SuccessRate 1.0 at patternNow

	// One half-life later the stored 1.0 reads as 0.75.
	s.SetClock(func() time.Time { return patternNow.Add(30 * 24 * time.Hour) })

	rec, _ := s.Get("ever wonder")
	if math.Abs(rec.SuccessRate-0.75) > 1e-9 {
		t.Errorf("SuccessRate after one half-life = %v, want 0.75", rec.SuccessRate)
	}

	// Far future: fully decayed toward neutral.
	s.SetClock(func() time.Time { return patternNow.Add(10 * 365 * 24 * time.Hour) })
	rec, _ = s.Get("ever wonder")
	if math.Abs(rec.SuccessRate-0.5) > 1e-3 {
		t.Errorf("SuccessRate in the far future = %v, want ~0.5", rec.SuccessRate)
	}

	// The stored value is untouched: back at write time it reads 1.0 again.
	s.SetClock(func() time.Time { return patternNow })
	rec, _ = s.Get("ever wonder")
	if rec.SuccessRate != 1.0 {
		t.Errorf("SuccessRate at write time = %v, want 1.0 (decay applies at read only)", rec.SuccessRate)
	}
}

func TestNewStoreLoadsBackend(t *testing.T) {
	backend := &mockBackend{
		loadFn: func(ctx context.Context) ([]types.PatternRecord, error) {
			return []types.PatternRecord{
				{Identifier: "ever wonder", PatternType: "hook", SampleSize: 4, SuccessRate: 0.75, UpdatedAt: patternNow},
			}, nil
		},
	}

	s := newFrozenStore(backend)
	rec, ok := s.Get("ever wonder")
	if !ok {
		t.Fatal("persisted record not loaded")
	}
	if rec.SampleSize != 4 {
		t.Errorf("SampleSize = %d, want 4", rec.SampleSize)
	}
}

func TestNewStoreLoadFailureStartsEmpty(t *testing.T) {
	backend := &mockBackend{
		loadFn: func(ctx context.Context) ([]types.PatternRecord, error) {
			return nil, errors.New("disk gone")
		},
	}

	s := newFrozenStore(backend)
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0 after failed load", s.Len())
	}
	// Still usable.
	s.Update(context.Background(), "?", "structure", 1, 0.1, true)
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1 after update", s.Len())
	}
}

func TestUpdateWritesThrough(t *testing.T) {
	backend := &mockBackend{}
	s := newFrozenStore(backend)

	s.Update(context.Background(), "?", "structure", 1, 0.1, true)
	if backend.savedCount() != 1 {
		t.Errorf("backend saves = %d, want 1", backend.savedCount())
	}
}

func TestUpdateSaveFailureKeptInMemory(t *testing.T) {
	backend := &mockBackend{saveErr: errors.New("disk full")}
	s := newFrozenStore(backend)

	s.Update(context.Background(), "?", "structure", 1, 0.1, true)

	rec, ok := s.Get("?")
	if !ok || rec.SampleSize != 1 {
		t.Error("update lost when backend save failed; want kept in memory")
	}
}

func TestUpdateConcurrent(t *testing.T) {
	s := newFrozenStore(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				s.Update(ctx, "ever wonder", "hook", 1, 0.1, true)
			}
		}()
	}
	wg.Wait()

	rec, _ := s.Get("ever wonder")
	if rec.SampleSize != 200 {
		t.Errorf("SampleSize = %d, want 200; concurrent updates lost", rec.SampleSize)
	}
}

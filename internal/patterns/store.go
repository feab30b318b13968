// Package patterns implements the learned pattern store: a persisted mapping
// of pattern identifier to aggregated success statistics. The Predictor reads
// it, the Learning Reconciler writes it.
//
// The store is sharded by identifier hash so a read-modify-write on one
// pattern never serializes updates to unrelated patterns. Records are never
// deleted; stale ones lose influence through recency weighting applied at
// read time only.
package patterns

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"xbot/internal/logging"
	"xbot/internal/types"
)

const shardCount = 16

// decayHalfLife controls how fast an untouched pattern's success rate
// drifts back toward the neutral 0.5 at read time.
const decayHalfLife = 30 * 24 * time.Hour

// Backend persists pattern records. Implemented by the SQLite and Postgres
// stores; failures are recovered locally (stale-but-available reads, dropped
// writes with a logged warning).
type Backend interface {
	LoadPatternRecords(ctx context.Context) ([]types.PatternRecord, error)
	SavePatternRecord(ctx context.Context, record types.PatternRecord) error
}

type shard struct {
	mu      sync.RWMutex
	records map[string]*types.PatternRecord
}

// Store is the in-memory view of the pattern store, write-through to a
// Backend.
type Store struct {
	shards  [shardCount]*shard
	backend Backend
	now     func() time.Time
}

// NewStore creates a Store and loads the persisted records. A load failure
// is not fatal: the store starts empty and logs a warning, preferring
// stale-but-available over fail-fast.
func NewStore(ctx context.Context, backend Backend) *Store {
	s := &Store{
		backend: backend,
		now:     time.Now,
	}
	for i := range s.shards {
		s.shards[i] = &shard{records: make(map[string]*types.PatternRecord)}
	}

	if backend == nil {
		return s
	}

	records, err := backend.LoadPatternRecords(ctx)
	if err != nil {
		logging.StoreWarn("pattern store load failed, starting empty: %v", err)
		return s
	}
	for _, r := range records {
		rec := r
		sh := s.shardFor(rec.Identifier)
		sh.records[rec.Identifier] = &rec
	}
	logging.Store("pattern store loaded %d records", len(records))
	return s
}

// SetClock overrides the store's clock. Used by tests to make recency
// weighting deterministic.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) shardFor(identifier string) *shard {
	h := fnv.New32a()
	h.Write([]byte(identifier))
	return s.shards[h.Sum32()%shardCount]
}

// Get returns a copy of one record with recency weighting applied.
func (s *Store) Get(identifier string) (types.PatternRecord, bool) {
	sh := s.shardFor(identifier)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	rec, ok := sh.records[identifier]
	if !ok {
		return types.PatternRecord{}, false
	}
	return s.weighted(*rec), true
}

// Match returns recency-weighted copies of every record whose identifier is
// a case-insensitive substring of text, sorted by identifier so callers see
// a stable order.
func (s *Store) Match(text string) []types.PatternRecord {
	lower := strings.ToLower(text)

	var matched []types.PatternRecord
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id, rec := range sh.records {
			if strings.Contains(lower, strings.ToLower(id)) {
				matched = append(matched, s.weighted(*rec))
			}
		}
		sh.mu.RUnlock()
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Identifier < matched[j].Identifier
	})
	return matched
}

// Snapshot returns recency-weighted copies of every record.
func (s *Store) Snapshot() []types.PatternRecord {
	var all []types.PatternRecord
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, rec := range sh.records {
			all = append(all, s.weighted(*rec))
		}
		sh.mu.RUnlock()
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Identifier < all[j].Identifier
	})
	return all
}

// Update folds one reconciled outcome into a pattern's running means.
// Creates the record on first use. The read-modify-write is atomic per
// identifier: only the owning shard is locked.
//
// Averages are simple running means (sum/count), not EMAs, so the final
// values are exactly reproducible from the outcome history.
func (s *Store) Update(ctx context.Context, identifier, patternType string, followersGained, engagementRate float64, success bool) types.PatternRecord {
	sh := s.shardFor(identifier)
	sh.mu.Lock()

	rec, ok := sh.records[identifier]
	if !ok {
		rec = &types.PatternRecord{
			Identifier:  identifier,
			PatternType: patternType,
		}
		sh.records[identifier] = rec
		logging.LearningDebug("new pattern record: %q (type=%s)", identifier, patternType)
	}

	n := float64(rec.SampleSize)
	rec.AvgFollowersGained = (rec.AvgFollowersGained*n + followersGained) / (n + 1)
	rec.AvgEngagementRate = (rec.AvgEngagementRate*n + engagementRate) / (n + 1)
	successVal := 0.0
	if success {
		successVal = 1.0
	}
	rec.SuccessRate = (rec.SuccessRate*n + successVal) / (n + 1)
	rec.SampleSize++
	rec.UpdatedAt = s.now()

	updated := *rec
	sh.mu.Unlock()

	if s.backend != nil {
		if err := s.backend.SavePatternRecord(ctx, updated); err != nil {
			logging.StoreWarn("pattern save failed for %q (kept in memory): %v", identifier, err)
		}
	}
	return updated
}

// Len returns the number of records across all shards.
func (s *Store) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.records)
		sh.mu.RUnlock()
	}
	return total
}

// weighted applies recency weighting: an untouched record's success rate
// decays toward the neutral 0.5 with a 30-day half-life. Sample counts and
// averages are reported as stored.
func (s *Store) weighted(rec types.PatternRecord) types.PatternRecord {
	if rec.UpdatedAt.IsZero() {
		return rec
	}
	age := s.now().Sub(rec.UpdatedAt)
	if age <= 0 {
		return rec
	}
	w := math.Pow(0.5, age.Hours()/decayHalfLife.Hours())
	rec.SuccessRate = 0.5 + (rec.SuccessRate-0.5)*w
	return rec
}

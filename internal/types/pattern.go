package types

import "time"

// PatternRecord aggregates historical performance for one content pattern.
// The identifier is a short phrase or structural tag matched as a substring
// of candidate text. Records are never deleted; staleness is handled by
// recency weighting at read time.
//
// Invariants: SuccessRate stays in [0,1]; SampleSize never decreases.
type PatternRecord struct {
	Identifier         string    `json:"identifier"`
	PatternType        string    `json:"pattern_type"`
	SampleSize         int       `json:"sample_size"`
	AvgFollowersGained float64   `json:"avg_followers_gained"`
	AvgEngagementRate  float64   `json:"avg_engagement_rate"`
	SuccessRate        float64   `json:"success_rate"`
	UpdatedAt          time.Time `json:"updated_at"`
}

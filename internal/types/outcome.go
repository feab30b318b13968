package types

import "time"

// Horizon labels the delay after posting at which an outcome is measured.
type Horizon string

const (
	HorizonShort Horizon = "24h"
	HorizonLong  Horizon = "7d"
)

// OutcomeMeasurement records one measured horizon for a posted content.
// ActualFollowersGained is signed: unfollows can outweigh gains.
// The measurement for HorizonLong is terminal for its content.
type OutcomeMeasurement struct {
	ContentID             string    `json:"content_id"`
	Horizon               Horizon   `json:"horizon"`
	BeforeFollowers       int       `json:"before_followers"`
	AfterFollowers        int       `json:"after_followers"`
	ActualFollowersGained int       `json:"actual_followers_gained"`
	PredictedFollowers    int       `json:"predicted_followers"`
	WasAccurate           bool      `json:"was_accurate"`
	MeasuredAt            time.Time `json:"measured_at"`
}

// OptimizationRecord is the audit trail for one Optimizer pass,
// written whether or not the revision was accepted.
type OptimizationRecord struct {
	ContentHash string    `json:"content_hash"`
	Original    string    `json:"original"`
	Revised     string    `json:"revised"`
	Directives  []string  `json:"directives"`
	Accepted    bool      `json:"accepted"`
	CreatedAt   time.Time `json:"created_at"`
}

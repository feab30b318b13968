package types

import "time"

// DecisionKind is the discrete outcome of the Decision Engine.
type DecisionKind string

const (
	DecisionPost    DecisionKind = "post"
	DecisionImprove DecisionKind = "improve"
	DecisionDelay   DecisionKind = "delay"
	DecisionReject  DecisionKind = "reject"
)

// ExpectedPerformance is the snapshot of a Prediction carried on a Post
// decision, compared later against the measured outcome.
type ExpectedPerformance struct {
	Followers      int     `json:"followers"`
	EngagementRate float64 `json:"engagement_rate"`
	ViralScore     int     `json:"viral_score"`
}

// Decision is derived deterministically from a Prediction.
// Improvements is populated only for DecisionImprove, PostAt only for
// DecisionDelay, Expected only for DecisionPost.
type Decision struct {
	Kind       DecisionKind `json:"kind"`
	Confidence float64      `json:"confidence"`
	Reasoning  []string     `json:"reasoning"`

	Improvements []string             `json:"improvements,omitempty"`
	PostAt       time.Time            `json:"post_at,omitempty"`
	Expected     *ExpectedPerformance `json:"expected,omitempty"`
}

package types

import "time"

// AudienceAppeal breaks down who a piece of content is likely to reach.
type AudienceAppeal struct {
	BroadAppeal    int `json:"broad_appeal"`    // 0-100
	NicheFactor    int `json:"niche_factor"`    // 0-100
	ViralPotential int `json:"viral_potential"` // 0-100
}

// Prediction is the Predictor's structured forecast for one candidate.
// Created fresh per Predict call and never mutated afterwards.
// Issues and Improvements correspond one-to-one and in order: the Nth
// improvement addresses the Nth issue. The Optimizer relies on that order
// when building revision prompts.
type Prediction struct {
	ContentHash string `json:"content_hash"`

	PredictedFollowers      int     `json:"predicted_followers"`       // >= 0
	PredictedEngagementRate float64 `json:"predicted_engagement_rate"` // [0,1]
	PredictedViralScore     int     `json:"predicted_viral_score"`     // [0,100]

	QualityScore int `json:"quality_score"` // [0,100]
	BoringScore  int `json:"boring_score"`  // [0,100]
	NicheScore   int `json:"niche_score"`   // [0,100]

	Issues       []string `json:"issues"`
	Improvements []string `json:"improvements"`

	Confidence    float64        `json:"confidence"` // [0,1]
	OptimalTiming time.Time      `json:"optimal_timing"`
	Appeal        AudienceAppeal `json:"audience_appeal"`
}

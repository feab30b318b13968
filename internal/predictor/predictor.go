// Package predictor scores not-yet-posted content and forecasts its
// follower and engagement impact. Scoring is fully deterministic: for a
// fixed pattern store snapshot and fixed clock, the same candidate always
// yields the same Prediction.
package predictor

import (
	"math"
	"time"

	"xbot/internal/logging"
	"xbot/internal/patterns"
	"xbot/internal/state"
	"xbot/internal/types"
)

// Multipliers applied to the base follower estimate. The learned product
// composed from pattern matches is clamped so a large pattern store cannot
// compound it unboundedly.
const (
	baseQuality       = 50
	broadAppealFactor = 1.5
	hookFactor        = 1.3
	learnedBoost      = 1.2
	learnedDrag       = 0.8
	learnedFloor      = 0.5
	learnedCeiling    = 2.0

	hotPatternRate  = 0.7 // success rate above which a pattern boosts
	coldPatternRate = 0.3 // success rate below which a pattern drags
)

// Predictor scores candidates against the heuristics and the pattern store.
// Safe for concurrent use: it only reads the store and the system state.
type Predictor struct {
	patterns   *patterns.Store
	state      *state.SystemState
	heuristics []Heuristic
	goodHours  []int
	now        func() time.Time
}

// New creates a Predictor with the default heuristics.
func New(store *patterns.Store, st *state.SystemState, goodHours []int) *Predictor {
	return &Predictor{
		patterns:   store,
		state:      st,
		heuristics: DefaultHeuristics(),
		goodHours:  goodHours,
		now:        time.Now,
	}
}

// SetHeuristics swaps the scoring rules (e.g. for a statistical model later).
func (p *Predictor) SetHeuristics(hs []Heuristic) {
	p.heuristics = hs
}

// SetClock overrides the clock for deterministic tests.
func (p *Predictor) SetClock(now func() time.Time) {
	p.now = now
}

// Predict scores a candidate and forecasts its impact.
func (p *Predictor) Predict(candidate types.ContentCandidate) types.Prediction {
	timer := logging.StartTimer(logging.CategoryPredictor, "Predict")
	defer timer.Stop()

	card := Scorecard{Quality: baseQuality}
	for _, h := range p.heuristics {
		h.Apply(candidate.Text, &card)
	}

	quality := clampScore(card.Quality)
	boring := clampScore(card.Boring)
	niche := clampScore(card.Niche)
	viral := clampScore(card.Viral)

	appeal := types.AudienceAppeal{
		BroadAppeal:    clampScore(quality - niche/2 + viral/4),
		NicheFactor:    niche,
		ViralPotential: viral,
	}

	// Base estimate from intrinsic quality, then the two fixed multipliers.
	followers := float64(quality)/25.0 - float64(boring)/50.0
	if appeal.BroadAppeal > 70 {
		followers *= broadAppealFactor
	}
	if quality > 80 {
		followers *= hookFactor
	}

	// Learned multiplier from historical pattern performance. Multiplication
	// is commutative, so match order cannot change the product.
	learned := 1.0
	matches := p.patterns.Match(candidate.Text)
	for _, m := range matches {
		if m.SuccessRate > hotPatternRate {
			learned *= learnedBoost
		} else if m.SuccessRate < coldPatternRate {
			learned *= learnedDrag
		}
	}
	if learned < learnedFloor {
		learned = learnedFloor
	}
	if learned > learnedCeiling {
		learned = learnedCeiling
	}
	followers *= learned

	predictedFollowers := int(math.Floor(followers))
	if predictedFollowers < 0 {
		predictedFollowers = 0
	}

	// Confidence blends content quality with historical calibration. It
	// starts low and rises only as reconciled predictions accumulate.
	accuracy := p.state.Accuracy()
	maturity := math.Min(1, float64(p.state.TotalPredictions())/50.0)
	confidence := (float64(quality)/100.0 + accuracy + maturity) / 3.0

	prediction := types.Prediction{
		ContentHash:             candidate.Hash(),
		PredictedFollowers:      predictedFollowers,
		PredictedEngagementRate: clampUnit(float64(quality+viral) / 400.0),
		PredictedViralScore:     clampScore(viral + quality/4),
		QualityScore:            quality,
		BoringScore:             boring,
		NicheScore:              niche,
		Issues:                  card.Issues,
		Improvements:            card.Improvements,
		Confidence:              confidence,
		OptimalTiming:           NextGoodHour(p.now(), p.goodHours),
		Appeal:                  appeal,
	}

	logging.PredictorDebug("predicted %s: followers=%d quality=%d confidence=%.2f issues=%d patterns=%d",
		prediction.ContentHash, predictedFollowers, quality, confidence, len(card.Issues), len(matches))

	return prediction
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Package decision maps a Prediction to a discrete post/improve/delay/reject
// decision. The engine is a pure function of (prediction, now, thresholds);
// the rule order below is a contract and must not be rearranged.
package decision

import (
	"fmt"
	"time"

	"xbot/internal/logging"
	"xbot/internal/types"
)

// Thresholds gate the Post rule.
type Thresholds struct {
	PostFollowers  int     // minimum predicted followers for rule 1
	PostConfidence float64 // minimum confidence for rule 1
}

// DefaultThresholds returns the standard gates.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PostFollowers:  3,
		PostConfidence: 0.7,
	}
}

// Engine derives decisions deterministically. Stateless and safe for
// concurrent use.
type Engine struct {
	thresholds Thresholds
	now        func() time.Time
}

// NewEngine creates a decision engine.
func NewEngine(thresholds Thresholds) *Engine {
	return &Engine{
		thresholds: thresholds,
		now:        time.Now,
	}
}

// SetClock overrides the clock for deterministic tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Decide applies the rules in strict order; first match wins.
//
//  1. followers >= PostFollowers AND confidence >= PostConfidence -> Post
//  2. followers >= 1 AND 1 <= len(issues) <= 2                    -> Improve
//  3. optimal timing strictly in the future                       -> Delay
//  4. otherwise                                                   -> Reject
//
// A low-follower candidate with past timing is rejected, not delayed,
// unless rule 2 catches it first.
func (e *Engine) Decide(p types.Prediction) types.Decision {
	now := e.now()

	// Rule 1: strong prediction, post it. Wins even when issues exist.
	if p.PredictedFollowers >= e.thresholds.PostFollowers && p.Confidence >= e.thresholds.PostConfidence {
		d := types.Decision{
			Kind:       types.DecisionPost,
			Confidence: p.Confidence,
			Reasoning: []string{
				fmt.Sprintf("predicted +%d followers at %.0f%% confidence", p.PredictedFollowers, p.Confidence*100),
			},
			Expected: &types.ExpectedPerformance{
				Followers:      p.PredictedFollowers,
				EngagementRate: p.PredictedEngagementRate,
				ViralScore:     p.PredictedViralScore,
			},
		}
		logging.Decision("post %s: followers=%d confidence=%.2f", p.ContentHash, p.PredictedFollowers, p.Confidence)
		return d
	}

	// Rule 2: some upside and a small, fixable issue list.
	if p.PredictedFollowers >= 1 && len(p.Issues) >= 1 && len(p.Issues) <= 2 {
		d := types.Decision{
			Kind:       types.DecisionImprove,
			Confidence: p.Confidence,
			Reasoning: []string{
				fmt.Sprintf("%d fixable issue(s) holding back a +%d follower prediction", len(p.Issues), p.PredictedFollowers),
			},
			Improvements: p.Improvements,
		}
		logging.Decision("improve %s: issues=%d", p.ContentHash, len(p.Issues))
		return d
	}

	// Rule 3: nothing to fix now, but a better posting window exists.
	if p.OptimalTiming.After(now) {
		d := types.Decision{
			Kind:       types.DecisionDelay,
			Confidence: p.Confidence,
			Reasoning: []string{
				fmt.Sprintf("better posting window at %s", p.OptimalTiming.Format(time.RFC3339)),
			},
			PostAt: p.OptimalTiming,
		}
		logging.Decision("delay %s until %s", p.ContentHash, p.OptimalTiming.Format(time.RFC3339))
		return d
	}

	// Rule 4: reject, carrying at most 3 issues plus a summary line.
	reasoning := make([]string, 0, 4)
	for i, issue := range p.Issues {
		if i == 3 {
			break
		}
		reasoning = append(reasoning, issue)
	}
	reasoning = append(reasoning, fmt.Sprintf("predicted only +%d followers at %.0f%% confidence",
		p.PredictedFollowers, p.Confidence*100))

	logging.Decision("reject %s: followers=%d confidence=%.2f", p.ContentHash, p.PredictedFollowers, p.Confidence)
	return types.Decision{
		Kind:       types.DecisionReject,
		Confidence: p.Confidence,
		Reasoning:  reasoning,
	}
}

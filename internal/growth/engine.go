// Package growth orchestrates one full pass of the loop for a content
// candidate: predict, decide, optionally improve and re-decide, post, and
// schedule outcome measurement. It owns no policy itself; policy lives in
// the predictor, the decision engine, and the optimizer.
package growth

import (
	"context"
	"errors"
	"fmt"

	"xbot/internal/logging"
	"xbot/internal/social"
	"xbot/internal/types"
)

// ErrPostFailed marks a publish that did not go through. Callers can
// errors.Is against it; the cycle never retries a failed post itself.
var ErrPostFailed = errors.New("post failed")

// Scorer produces a prediction for a candidate. Satisfied by
// *predictor.Predictor.
type Scorer interface {
	Predict(candidate types.ContentCandidate) types.Prediction
}

// Decider maps a prediction to a decision. Satisfied by *decision.Engine.
type Decider interface {
	Decide(p types.Prediction) types.Decision
}

// Improver revises a candidate per the decision's improvement directives.
// Satisfied by *optimizer.Optimizer.
type Improver interface {
	Optimize(ctx context.Context, candidate types.ContentCandidate, improvements []string) types.ContentCandidate
}

// MeasurementScheduler enqueues the outcome measurements after a post.
// Satisfied by *outcome.Scheduler.
type MeasurementScheduler interface {
	Schedule(ctx context.Context, contentID string, candidate types.ContentCandidate, prediction types.Prediction) error
}

// CycleAudit persists predictions and decisions for later analysis.
// Implemented by the SQLite and Postgres stores.
type CycleAudit interface {
	SavePrediction(ctx context.Context, prediction types.Prediction) error
	SaveDecision(ctx context.Context, contentHash string, decision types.Decision) error
}

// CycleResult is what one RunCycle pass produced. Candidate is the text the
// final decision applies to, which differs from the input when an
// improvement pass was accepted.
type CycleResult struct {
	Candidate  types.ContentCandidate
	Prediction types.Prediction
	Decision   types.Decision
	Posted     bool
	ContentID  string
}

// Engine runs the candidate cycle.
type Engine struct {
	scorer    Scorer
	decider   Decider
	improver  Improver
	publisher social.Publisher
	scheduler MeasurementScheduler
	audit     CycleAudit
}

// NewEngine wires the cycle. improver, scheduler and audit may be nil:
// without an improver an Improve decision is returned as-is, without a
// scheduler posts go unmeasured, without audit nothing is persisted.
func NewEngine(scorer Scorer, decider Decider, improver Improver, publisher social.Publisher, scheduler MeasurementScheduler, audit CycleAudit) *Engine {
	return &Engine{
		scorer:    scorer,
		decider:   decider,
		improver:  improver,
		publisher: publisher,
		scheduler: scheduler,
		audit:     audit,
	}
}

// RunCycle takes a candidate through predict -> decide -> act.
//
// An Improve decision triggers at most one optimization pass followed by one
// re-decision; if the second decision is Improve again it is returned
// without further revision, so a cycle is bounded at two predictions. Only
// a posting failure is returned as an error: everything else, including a
// Reject, is a normal result.
func (e *Engine) RunCycle(ctx context.Context, candidate types.ContentCandidate) (CycleResult, error) {
	timer := logging.StartTimer(logging.CategoryGrowth, "RunCycle")
	defer timer.Stop()

	prediction := e.scorer.Predict(candidate)
	e.persistPrediction(ctx, prediction)

	dec := e.decider.Decide(prediction)
	e.persistDecision(ctx, prediction.ContentHash, dec)

	if dec.Kind == types.DecisionImprove && e.improver != nil {
		improved := e.improver.Optimize(ctx, candidate, dec.Improvements)
		if improved.Hash() != candidate.Hash() {
			candidate = improved
			prediction = e.scorer.Predict(candidate)
			e.persistPrediction(ctx, prediction)

			dec = e.decider.Decide(prediction)
			e.persistDecision(ctx, prediction.ContentHash, dec)
		}
	}

	result := CycleResult{
		Candidate:  candidate,
		Prediction: prediction,
		Decision:   dec,
	}

	if dec.Kind != types.DecisionPost {
		logging.Growth("cycle for %s ended without posting: %s", candidate.Hash(), dec.Kind)
		return result, nil
	}

	posted, err := e.publisher.PostContent(ctx, candidate.Text)
	if err != nil {
		return result, fmt.Errorf("%w for %s: %v", ErrPostFailed, candidate.Hash(), err)
	}
	if !posted.Success {
		return result, fmt.Errorf("%w for %s: publisher reported failure", ErrPostFailed, candidate.Hash())
	}

	result.Posted = true
	result.ContentID = posted.ContentID
	logging.Growth("posted %s as %s", candidate.Hash(), posted.ContentID)

	if e.scheduler != nil {
		if err := e.scheduler.Schedule(ctx, posted.ContentID, candidate, prediction); err != nil {
			// The post went out; a scheduling failure only loses the
			// measurement, so it is logged rather than returned.
			logging.Get(logging.CategoryGrowth).Warn("measurement scheduling failed for %s: %v", posted.ContentID, err)
		}
	}
	return result, nil
}

func (e *Engine) persistPrediction(ctx context.Context, p types.Prediction) {
	if e.audit == nil {
		return
	}
	if err := e.audit.SavePrediction(ctx, p); err != nil {
		logging.StoreWarn("prediction persist failed for %s: %v", p.ContentHash, err)
	}
}

func (e *Engine) persistDecision(ctx context.Context, hash string, d types.Decision) {
	if e.audit == nil {
		return
	}
	if err := e.audit.SaveDecision(ctx, hash, d); err != nil {
		logging.StoreWarn("decision persist failed for %s: %v", hash, err)
	}
}

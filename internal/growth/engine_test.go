package growth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"xbot/internal/social"
	"xbot/internal/types"
)

// scripted components, one struct per collaborator.

type scriptScorer struct {
	predictions map[string]types.Prediction
	calls       int
}

func (s *scriptScorer) Predict(candidate types.ContentCandidate) types.Prediction {
	s.calls++
	p := s.predictions[candidate.Text]
	p.ContentHash = candidate.Hash()
	return p
}

type scriptDecider struct {
	byHash map[string]types.Decision
	calls  int
}

func (d *scriptDecider) Decide(p types.Prediction) types.Decision {
	d.calls++
	return d.byHash[p.ContentHash]
}

type scriptImprover struct {
	result types.ContentCandidate
	called int
}

func (i *scriptImprover) Optimize(ctx context.Context, candidate types.ContentCandidate, improvements []string) types.ContentCandidate {
	i.called++
	if i.result.Text == "" {
		return candidate
	}
	return i.result
}

type scriptPublisher struct {
	result social.PostResult
	err    error
	posted []string
}

func (p *scriptPublisher) PostContent(ctx context.Context, text string) (social.PostResult, error) {
	if p.err != nil {
		return social.PostResult{}, p.err
	}
	p.posted = append(p.posted, text)
	return p.result, nil
}

type scriptScheduler struct {
	mu        sync.Mutex
	scheduled []string
	err       error
}

func (s *scriptScheduler) Schedule(ctx context.Context, contentID string, candidate types.ContentCandidate, prediction types.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.scheduled = append(s.scheduled, contentID)
	return nil
}

type countingAudit struct {
	predictions int
	decisions   int
}

func (a *countingAudit) SavePrediction(ctx context.Context, p types.Prediction) error {
	a.predictions++
	return nil
}

func (a *countingAudit) SaveDecision(ctx context.Context, hash string, d types.Decision) error {
	a.decisions++
	return nil
}

func hashOf(text string) string {
	return types.ContentCandidate{Text: text}.Hash()
}

func TestRunCyclePostsAndSchedules(t *testing.T) {
	text := "strong candidate"
	scorer := &scriptScorer{predictions: map[string]types.Prediction{
		text: {PredictedFollowers: 5, Confidence: 0.8},
	}}
	decider := &scriptDecider{byHash: map[string]types.Decision{
		hashOf(text): {Kind: types.DecisionPost, Confidence: 0.8},
	}}
	publisher := &scriptPublisher{result: social.PostResult{Success: true, ContentID: "post-9"}}
	scheduler := &scriptScheduler{}
	audit := &countingAudit{}

	e := NewEngine(scorer, decider, nil, publisher, scheduler, audit)
	result, err := e.RunCycle(context.Background(), types.ContentCandidate{Text: text})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if !result.Posted || result.ContentID != "post-9" {
		t.Errorf("result = %+v, want posted as post-9", result)
	}
	if len(scheduler.scheduled) != 1 || scheduler.scheduled[0] != "post-9" {
		t.Errorf("scheduled = %v, want [post-9]", scheduler.scheduled)
	}
	if audit.predictions != 1 || audit.decisions != 1 {
		t.Errorf("audit wrote %d predictions, %d decisions; want 1 and 1", audit.predictions, audit.decisions)
	}
}

func TestRunCycleImproveOnceThenRedecide(t *testing.T) {
	original := "weak candidate"
	improved := "improved candidate"
	scorer := &scriptScorer{predictions: map[string]types.Prediction{
		original: {PredictedFollowers: 2, Confidence: 0.3},
		improved: {PredictedFollowers: 5, Confidence: 0.8},
	}}
	decider := &scriptDecider{byHash: map[string]types.Decision{
		hashOf(original): {Kind: types.DecisionImprove, Improvements: []string{"add a hook"}},
		hashOf(improved): {Kind: types.DecisionPost},
	}}
	improver := &scriptImprover{result: types.ContentCandidate{Text: improved}}
	publisher := &scriptPublisher{result: social.PostResult{Success: true, ContentID: "post-1"}}
	scheduler := &scriptScheduler{}

	e := NewEngine(scorer, decider, improver, publisher, scheduler, &countingAudit{})
	result, err := e.RunCycle(context.Background(), types.ContentCandidate{Text: original})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if improver.called != 1 {
		t.Errorf("improver called %d times, want exactly 1", improver.called)
	}
	if result.Candidate.Text != improved {
		t.Errorf("final candidate = %q, want the improved text", result.Candidate.Text)
	}
	if !result.Posted {
		t.Error("improved candidate with a post decision was not posted")
	}
	if len(publisher.posted) != 1 || publisher.posted[0] != improved {
		t.Errorf("posted %v, want the improved text", publisher.posted)
	}
}

func TestRunCycleSecondImproveIsTerminal(t *testing.T) {
	original := "still weak"
	improved := "slightly better"
	scorer := &scriptScorer{predictions: map[string]types.Prediction{
		original: {PredictedFollowers: 2},
		improved: {PredictedFollowers: 2},
	}}
	decider := &scriptDecider{byHash: map[string]types.Decision{
		hashOf(original): {Kind: types.DecisionImprove, Improvements: []string{"fix"}},
		hashOf(improved): {Kind: types.DecisionImprove, Improvements: []string{"fix more"}},
	}}
	improver := &scriptImprover{result: types.ContentCandidate{Text: improved}}
	publisher := &scriptPublisher{}

	e := NewEngine(scorer, decider, improver, publisher, nil, nil)
	result, err := e.RunCycle(context.Background(), types.ContentCandidate{Text: original})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if improver.called != 1 {
		t.Errorf("improver called %d times, want 1; the cycle is bounded", improver.called)
	}
	if result.Decision.Kind != types.DecisionImprove {
		t.Errorf("Kind = %s, want the second improve returned as-is", result.Decision.Kind)
	}
	if result.Posted || len(publisher.posted) != 0 {
		t.Error("nothing should be posted")
	}
}

func TestRunCycleRejectedImprovementKeepsOriginalDecision(t *testing.T) {
	// The optimizer returned the original unchanged (revision discarded):
	// no re-prediction, no re-decision.
	original := "weak candidate"
	scorer := &scriptScorer{predictions: map[string]types.Prediction{
		original: {PredictedFollowers: 2},
	}}
	decider := &scriptDecider{byHash: map[string]types.Decision{
		hashOf(original): {Kind: types.DecisionImprove, Improvements: []string{"fix"}},
	}}
	improver := &scriptImprover{} // returns input unchanged

	e := NewEngine(scorer, decider, improver, &scriptPublisher{}, nil, nil)
	result, err := e.RunCycle(context.Background(), types.ContentCandidate{Text: original})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if scorer.calls != 1 || decider.calls != 1 {
		t.Errorf("scorer/decider called %d/%d times, want 1/1 when the revision was discarded", scorer.calls, decider.calls)
	}
	if result.Decision.Kind != types.DecisionImprove {
		t.Errorf("Kind = %s, want improve", result.Decision.Kind)
	}
}

func TestRunCyclePostFailure(t *testing.T) {
	text := "strong candidate"
	scorer := &scriptScorer{predictions: map[string]types.Prediction{
		text: {PredictedFollowers: 5},
	}}
	decider := &scriptDecider{byHash: map[string]types.Decision{
		hashOf(text): {Kind: types.DecisionPost},
	}}

	t.Run("transport error", func(t *testing.T) {
		publisher := &scriptPublisher{err: errors.New("503")}
		scheduler := &scriptScheduler{}
		e := NewEngine(scorer, decider, nil, publisher, scheduler, nil)

		_, err := e.RunCycle(context.Background(), types.ContentCandidate{Text: text})
		if !errors.Is(err, ErrPostFailed) {
			t.Errorf("err = %v, want ErrPostFailed", err)
		}
		if len(scheduler.scheduled) != 0 {
			t.Error("nothing should be scheduled after a failed post")
		}
	})

	t.Run("publisher reports failure", func(t *testing.T) {
		publisher := &scriptPublisher{result: social.PostResult{Success: false}}
		e := NewEngine(scorer, decider, nil, publisher, nil, nil)

		_, err := e.RunCycle(context.Background(), types.ContentCandidate{Text: text})
		if !errors.Is(err, ErrPostFailed) {
			t.Errorf("err = %v, want ErrPostFailed", err)
		}
	})
}

func TestRunCycleRejectAndDelayDoNotPost(t *testing.T) {
	for _, kind := range []types.DecisionKind{types.DecisionReject, types.DecisionDelay} {
		t.Run(string(kind), func(t *testing.T) {
			text := "candidate"
			scorer := &scriptScorer{predictions: map[string]types.Prediction{text: {}}}
			decider := &scriptDecider{byHash: map[string]types.Decision{
				hashOf(text): {Kind: kind},
			}}
			publisher := &scriptPublisher{}

			e := NewEngine(scorer, decider, nil, publisher, nil, nil)
			result, err := e.RunCycle(context.Background(), types.ContentCandidate{Text: text})
			if err != nil {
				t.Fatalf("RunCycle: %v", err)
			}
			if result.Posted || len(publisher.posted) != 0 {
				t.Errorf("%s decision must not post", kind)
			}
			if result.Decision.Kind != kind {
				t.Errorf("Kind = %s, want %s", result.Decision.Kind, kind)
			}
		})
	}
}

func TestRunCycleSchedulingFailureDoesNotFailCycle(t *testing.T) {
	text := "strong candidate"
	scorer := &scriptScorer{predictions: map[string]types.Prediction{text: {PredictedFollowers: 5}}}
	decider := &scriptDecider{byHash: map[string]types.Decision{
		hashOf(text): {Kind: types.DecisionPost},
	}}
	publisher := &scriptPublisher{result: social.PostResult{Success: true, ContentID: "post-2"}}
	scheduler := &scriptScheduler{err: errors.New("db locked")}

	e := NewEngine(scorer, decider, nil, publisher, scheduler, nil)
	result, err := e.RunCycle(context.Background(), types.ContentCandidate{Text: text})
	if err != nil {
		t.Fatalf("RunCycle: %v; the post went out, the cycle succeeded", err)
	}
	if !result.Posted {
		t.Error("result must report the post")
	}
}

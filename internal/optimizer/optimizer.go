// Package optimizer revises content that the Decision Engine marked
// improvable. A revision is only accepted when it strictly out-predicts the
// original, which guards against regressions from a misbehaving generation
// collaborator.
package optimizer

import (
	"context"
	"strings"
	"time"

	"xbot/internal/llm"
	"xbot/internal/logging"
	"xbot/internal/types"
)

// Scorer re-scores candidates. Satisfied by *predictor.Predictor.
type Scorer interface {
	Predict(candidate types.ContentCandidate) types.Prediction
}

// AuditLog records optimization passes for later analysis.
type AuditLog interface {
	RecordOptimization(ctx context.Context, record types.OptimizationRecord) error
}

const revisionSystemPrompt = `You revise short social media posts. Apply exactly the instruction given.
Return only the revised post text, no quotes, no commentary.`

// Optimizer applies improvement directives through the LLM collaborator.
type Optimizer struct {
	client      llm.Client
	scorer      Scorer
	audit       AuditLog
	callTimeout time.Duration
	now         func() time.Time
}

// New creates an Optimizer. callTimeout bounds each LLM call.
func New(client llm.Client, scorer Scorer, audit AuditLog, callTimeout time.Duration) *Optimizer {
	if callTimeout <= 0 {
		callTimeout = 2 * time.Minute
	}
	return &Optimizer{
		client:      client,
		scorer:      scorer,
		audit:       audit,
		callTimeout: callTimeout,
		now:         time.Now,
	}
}

// Optimize applies each improvement directive in order, one LLM call per
// directive, then keeps the revision only if its predicted followers
// strictly increase. Generation failures are recovered by returning the
// original candidate unchanged; they never propagate as errors.
func (o *Optimizer) Optimize(ctx context.Context, candidate types.ContentCandidate, improvements []string) types.ContentCandidate {
	if len(improvements) == 0 {
		return candidate
	}

	timer := logging.StartTimer(logging.CategoryOptimizer, "Optimize")
	defer timer.Stop()

	current := candidate.Text
	for i, directive := range improvements {
		revised, err := o.revise(ctx, current, directive)
		if err != nil {
			logging.Get(logging.CategoryOptimizer).Warn("revision %d/%d failed, keeping original: %v",
				i+1, len(improvements), err)
			o.record(ctx, candidate, current, improvements, false)
			return candidate
		}
		current = revised
	}

	revisedCandidate := types.ContentCandidate{
		Text:     current,
		Topic:    candidate.Topic,
		Template: candidate.Template,
	}

	before := o.scorer.Predict(candidate)
	after := o.scorer.Predict(revisedCandidate)

	accepted := after.PredictedFollowers > before.PredictedFollowers
	o.record(ctx, candidate, current, improvements, accepted)

	if !accepted {
		logging.Optimizer("revision discarded for %s: %d -> %d predicted followers",
			candidate.Hash(), before.PredictedFollowers, after.PredictedFollowers)
		return candidate
	}

	logging.Optimizer("revision accepted for %s: %d -> %d predicted followers",
		candidate.Hash(), before.PredictedFollowers, after.PredictedFollowers)
	return revisedCandidate
}

// revise applies one directive through the generation collaborator.
func (o *Optimizer) revise(ctx context.Context, text, directive string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	prompt := "Post:\n" + text + "\n\nInstruction: " + directive
	resp, err := o.client.CompleteWithSystem(callCtx, revisionSystemPrompt, prompt)
	if err != nil {
		return "", err
	}

	cleaned := cleanRevision(resp)
	if cleaned == "" {
		return text, nil // collaborator returned nothing usable; keep current text
	}
	return cleaned, nil
}

// record writes the audit trail for this pass, accept or reject.
func (o *Optimizer) record(ctx context.Context, original types.ContentCandidate, revised string, directives []string, accepted bool) {
	if o.audit == nil {
		return
	}
	rec := types.OptimizationRecord{
		ContentHash: original.Hash(),
		Original:    original.Text,
		Revised:     revised,
		Directives:  directives,
		Accepted:    accepted,
		CreatedAt:   o.now(),
	}
	if err := o.audit.RecordOptimization(ctx, rec); err != nil {
		logging.StoreWarn("optimization audit write failed: %v", err)
	}
}

// cleanRevision strips the wrapping LLMs tend to add around plain text.
func cleanRevision(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"")
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.Index(s, "\n"); idx >= 0 && !strings.Contains(s[:idx], " ") {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

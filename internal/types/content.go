// Package types holds the shared data model for the growth loop.
// Kept dependency-free so every component can import it without cycles.
package types

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentCandidate is a piece of not-yet-posted content under evaluation.
// Immutable once scored - the Predictor ties a Prediction to it via Hash().
type ContentCandidate struct {
	Text     string `json:"text"`
	Topic    string `json:"topic,omitempty"`
	Template string `json:"template,omitempty"`
}

// Hash returns a stable identifier for the candidate text.
// Two candidates with identical text share a hash, which is what ties
// a Prediction to the content it scored.
func (c ContentCandidate) Hash() string {
	sum := sha256.Sum256([]byte(c.Text))
	return hex.EncodeToString(sum[:8])
}

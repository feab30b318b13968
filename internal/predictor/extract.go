package predictor

import "strings"

// PatternTag names a pattern observed in a piece of content, used as a
// pattern store identifier.
type PatternTag struct {
	Identifier  string
	PatternType string
}

// ExtractPatterns returns the structural patterns present in text. The
// Learning Reconciler uses these to create pattern records on a pattern's
// first observed use; the identifiers are chosen so they substring-match
// the texts they came from.
func ExtractPatterns(text string) []PatternTag {
	lower := strings.ToLower(strings.TrimSpace(text))

	var tags []PatternTag
	for _, prefix := range hookPrefixes {
		if strings.HasPrefix(lower, prefix) {
			tags = append(tags, PatternTag{Identifier: strings.TrimSpace(prefix), PatternType: "hook"})
			break
		}
	}
	if percentRe.MatchString(text) {
		tags = append(tags, PatternTag{Identifier: "%", PatternType: "structure"})
	}
	if strings.Contains(text, "?") {
		tags = append(tags, PatternTag{Identifier: "?", PatternType: "structure"})
	}
	return tags
}

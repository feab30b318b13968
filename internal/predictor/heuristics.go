package predictor

import (
	"fmt"
	"regexp"
	"strings"
)

// =============================================================================
// SCORING HEURISTICS - HOW GOOD IS THIS CONTENT BEFORE IT'S POSTED?
// =============================================================================

// Scorecard accumulates heuristic scores for one candidate. Issues and
// Improvements stay paired and ordered: heuristics must append to both or
// neither.
type Scorecard struct {
	Quality int
	Boring  int
	Niche   int
	Viral   int

	Issues       []string
	Improvements []string
}

// Flag records an issue with its paired improvement suggestion.
func (s *Scorecard) Flag(issue, improvement string) {
	s.Issues = append(s.Issues, issue)
	s.Improvements = append(s.Improvements, improvement)
}

// Heuristic is a pure, swappable scoring rule. Implementations must be
// deterministic: same text, same scorecard mutation, every time.
type Heuristic interface {
	Name() string
	Apply(text string, card *Scorecard)
}

// DefaultHeuristics returns the built-in scoring rules, in the order their
// issues should surface to the Optimizer.
func DefaultHeuristics() []Heuristic {
	return []Heuristic{
		boringLanguage{},
		hookOpening{},
		specificData{},
		questionMark{},
		callToAction{},
		lengthCheck{},
		nicheJargon{},
	}
}

// -----------------------------------------------------------------------------
// boringLanguage penalizes hedging/academic phrasing
// -----------------------------------------------------------------------------

type boringLanguage struct{}

var boringMarkers = []string{
	"studies show",
	"research suggests",
	"it is important to note",
	"in conclusion",
	"furthermore",
	"moreover",
	"as we all know",
	"in today's world",
}

func (boringLanguage) Name() string { return "boring_language" }

func (boringLanguage) Apply(text string, card *Scorecard) {
	lower := strings.ToLower(text)
	for _, marker := range boringMarkers {
		if strings.Contains(lower, marker) {
			card.Boring += 15
			card.Quality -= 10
			card.Flag(
				fmt.Sprintf("boring phrase: %q", marker),
				fmt.Sprintf("replace %q with a concrete claim or number", marker),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// hookOpening rewards attention-grabbing openers
// -----------------------------------------------------------------------------

type hookOpening struct{}

var hookPrefixes = []string{
	"ever wonder",
	"here's what",
	"here's why",
	"why do",
	"what if",
	"unpopular opinion",
	"the truth about",
	"stop ",
	"most people",
}

func (hookOpening) Name() string { return "hook_opening" }

func (hookOpening) Apply(text string, card *Scorecard) {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, prefix := range hookPrefixes {
		if strings.HasPrefix(lower, prefix) {
			card.Quality += 15
			card.Viral += 10
			return
		}
	}
	card.Flag(
		"opens flat, no hook",
		"open with a question, bold claim, or surprising fact",
	)
}

// -----------------------------------------------------------------------------
// specificData rewards numbers, percentages, money, multipliers
// -----------------------------------------------------------------------------

type specificData struct{}

var (
	percentRe    = regexp.MustCompile(`\d+(\.\d+)?%`)
	currencyRe   = regexp.MustCompile(`[$€£]\d+`)
	multiplierRe = regexp.MustCompile(`\b\d+(\.\d+)?x\b`)
)

func (specificData) Name() string { return "specific_data" }

func (specificData) Apply(text string, card *Scorecard) {
	found := false
	if percentRe.MatchString(text) {
		card.Quality += 10
		found = true
	}
	if currencyRe.MatchString(text) {
		card.Quality += 10
		found = true
	}
	if multiplierRe.MatchString(text) {
		card.Quality += 10
		found = true
	}
	if found {
		card.Viral += 15
		return
	}
	card.Flag(
		"no specific data",
		"add a concrete number, percentage, or dollar figure",
	)
}

// -----------------------------------------------------------------------------
// questionMark rewards direct questions (small engagement bump, no issue)
// -----------------------------------------------------------------------------

type questionMark struct{}

func (questionMark) Name() string { return "question_mark" }

func (questionMark) Apply(text string, card *Scorecard) {
	if strings.Contains(text, "?") {
		card.Quality += 5
	}
}

// -----------------------------------------------------------------------------
// callToAction checks for an explicit invitation to engage
// -----------------------------------------------------------------------------

type callToAction struct{}

var ctaMarkers = []string{
	"what do you think",
	"agree?",
	"reply",
	"share this",
	"follow for",
	"comment",
	"tell me",
}

func (callToAction) Name() string { return "call_to_action" }

func (callToAction) Apply(text string, card *Scorecard) {
	lower := strings.ToLower(text)
	for _, marker := range ctaMarkers {
		if strings.Contains(lower, marker) {
			card.Quality += 5
			return
		}
	}
	card.Flag(
		"no call to action",
		"end with a question or an invitation to reply",
	)
}

// -----------------------------------------------------------------------------
// lengthCheck penalizes walls of text and throwaway fragments
// -----------------------------------------------------------------------------

type lengthCheck struct{}

func (lengthCheck) Name() string { return "length_check" }

func (lengthCheck) Apply(text string, card *Scorecard) {
	n := len(strings.TrimSpace(text))
	switch {
	case n > 280:
		card.Quality -= 10
		card.Flag(
			"too long for a single post",
			"cut to one idea under 280 characters",
		)
	case n < 30:
		card.Quality -= 10
		card.Flag(
			"too short to carry an idea",
			"expand with the specific insight or outcome",
		)
	}
}

// -----------------------------------------------------------------------------
// nicheJargon estimates how specialized the audience is (no issue flagged)
// -----------------------------------------------------------------------------

type nicheJargon struct{}

var jargonMarkers = []string{
	"algorithm",
	"optimization",
	"biomarker",
	"protocol",
	"methodology",
	"cohort",
	"meta-analysis",
}

func (nicheJargon) Name() string { return "niche_jargon" }

func (nicheJargon) Apply(text string, card *Scorecard) {
	lower := strings.ToLower(text)
	for _, marker := range jargonMarkers {
		if strings.Contains(lower, marker) {
			card.Niche += 20
		}
	}
	if card.Niche > 100 {
		card.Niche = 100
	}
}

package analyzer

import (
	"context"
	"strings"

	"github.com/antzucaro/matchr"
)

// Rule-based scoring weights. Unlike the short-circuit gates these are
// additive: several weak signals can together cross the respond threshold.
const (
	boostAddressed  = 0.3
	boostQuestion   = 0.5
	boostGreeting   = 0.4
	boostRole       = 0.1
	boostCompletion = 0.2

	// Final confidence is clamped into [minRuleConfidence, maxRuleConfidence]:
	// the rule path never claims certainty in either direction.
	minRuleConfidence = 0.1
	maxRuleConfidence = 0.95

	// completionWords is the word count beyond which a transcript counts as
	// "long enough to be complete" even without terminal punctuation.
	completionWords = 10

	// completionSilence gates the completion boost: punctuation or length
	// alone is not enough, the speaker must also have stayed quiet.
	completionSilence = 2000 // milliseconds

	// defaultFuzzyThreshold is the minimum Jaro-Winkler score for a
	// phonetic name match to count as direct addressing.
	defaultFuzzyThreshold = 0.85
)

// Rules is the deterministic fallback scorer. It runs when no custom scorer
// is configured and the model-assisted path is unavailable or produced a
// malformed verdict.
//
// Rules is read-only after construction and safe for concurrent use.
type Rules struct {
	fuzzyThreshold float64
}

// RulesOption configures a [Rules] scorer.
type RulesOption func(*Rules)

// WithFuzzyThreshold sets the minimum Jaro-Winkler similarity required for a
// phonetically matched name to count as direct addressing. Default: 0.85.
func WithFuzzyThreshold(threshold float64) RulesOption {
	return func(r *Rules) {
		r.fuzzyThreshold = threshold
	}
}

// NewRules returns a Rules scorer with the supplied options applied.
func NewRules(opts ...RulesOption) *Rules {
	r := &Rules{fuzzyThreshold: defaultFuzzyThreshold}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Score implements [Scorer] with additive deterministic boosts:
//
//   - the configured name appearing in the transcript (exact containment or
//     phonetic match, since STT frequently mangles proper names)
//   - a question mark or greeting token
//   - a configured role (context richness, not content-specific)
//   - apparent completion: terminal punctuation or a long transcript,
//     combined with an extended silence
//
// ShouldRespond is true when any content signal fired — address, question,
// greeting or completion. The role boost raises confidence only and never
// triggers a response on its own. Confidence is the boost sum clamped into
// [0.1, 0.95].
func (r *Rules) Score(_ context.Context, in Context) (Result, error) {
	var (
		confidence float64
		reasons    []string
	)

	if in.Name != "" && r.addressed(in.Transcript, in.Name) {
		confidence += boostAddressed
		reasons = append(reasons, "directly addressed by name")
	}

	if strings.Contains(in.Transcript, "?") {
		confidence += boostQuestion
		reasons = append(reasons, "contains a question")
	} else if containsGreeting(in.Transcript) {
		confidence += boostGreeting
		reasons = append(reasons, "contains a greeting")
	}

	if in.Role != "" {
		confidence += boostRole
	}

	if r.looksComplete(in) {
		confidence += boostCompletion
		reasons = append(reasons, "utterance appears complete")
	}

	if len(reasons) == 0 {
		return Result{
			ShouldRespond: false,
			Confidence:    minRuleConfidence,
			Reason:        "incomplete or unclear",
		}, nil
	}

	if confidence < minRuleConfidence {
		confidence = minRuleConfidence
	}
	if confidence > maxRuleConfidence {
		confidence = maxRuleConfidence
	}

	return Result{
		ShouldRespond: true,
		Confidence:    confidence,
		Reason:        strings.Join(reasons, "; "),
	}, nil
}

// looksComplete reports whether the transcript reads as a finished thought:
// sentence-terminal punctuation or sufficient length, and the speaker has
// stayed silent well past the speaking gate.
func (r *Rules) looksComplete(in Context) bool {
	if in.Silence.Milliseconds() <= completionSilence {
		return false
	}
	trimmed := strings.TrimSpace(in.Transcript)
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return true
	}
	return len(strings.Fields(trimmed)) > completionWords
}

// addressed reports whether name occurs in transcript. Exact containment is
// checked first (case-insensitive); failing that, each transcript token is
// compared phonetically against the name using Double Metaphone codes ranked
// by Jaro-Winkler similarity, so "hey Sophya" still addresses "Sophia".
func (r *Rules) addressed(transcript, name string) bool {
	lowerName := strings.ToLower(name)
	lowerText := strings.ToLower(transcript)

	if strings.Contains(lowerText, lowerName) {
		return true
	}

	namePrimary, nameSecondary := matchr.DoubleMetaphone(lowerName)
	for _, tok := range strings.Fields(lowerText) {
		tok = strings.Trim(tok, ".,;:!?\"'()")
		if len(tok) < 2 {
			continue
		}
		p, s := matchr.DoubleMetaphone(tok)
		if !codesOverlap(p, s, namePrimary, nameSecondary) {
			continue
		}
		if matchr.JaroWinkler(tok, lowerName, false) >= r.fuzzyThreshold {
			return true
		}
	}
	return false
}

// codesOverlap reports whether any non-empty metaphone code is shared
// between the two (primary, secondary) pairs.
func codesOverlap(p1, s1, p2, s2 string) bool {
	for _, a := range []string{p1, s1} {
		if a == "" {
			continue
		}
		if a == p2 || a == s2 {
			return true
		}
	}
	return false
}

// containsGreeting reports whether any word of the transcript is a greeting
// token. Unlike the immediate trigger, the greeting may appear anywhere.
func containsGreeting(transcript string) bool {
	lower := strings.ToLower(transcript)
	for _, g := range greetings {
		idx := strings.Index(lower, g)
		for idx >= 0 {
			end := idx + len(g)
			startOK := idx == 0 || !isWordChar(lower[idx-1])
			endOK := end == len(lower) || !isWordChar(lower[end])
			if startOK && endOK {
				return true
			}
			next := strings.Index(lower[idx+1:], g)
			if next < 0 {
				break
			}
			idx += 1 + next
		}
	}
	return false
}

var _ Scorer = (*Rules)(nil)

// Package ambiguity scores how under-specified a request is and decides
// clarify vs. proceed using mode-dependent threshold bands.
package ambiguity

import (
	"strings"

	"clariond/internal/logging"
	"clariond/internal/question"
	"clariond/internal/types"
)

// Signal weights. Tuned so a bare vague request ("Do it now") lands inside
// the default careful band and a fully specified request scores near zero.
const (
	weightVagueVerb  = 0.30 // vague verb heading the prompt
	weightNoObject   = 0.20 // vague verb with nothing after it
	weightPronoun    = 0.20 // pronoun standing in for the object
	weightVeryShort  = 0.15 // three words or fewer
	weightShort      = 0.08 // six words or fewer
	weightNoDomain   = 0.10 // no domain signal anywhere
	bonusDomainMatch = 0.15 // context resolves the domain
)

// quickBandNarrowing pulls each edge of the clarify band inward in quick
// mode, trading clarification coverage for latency.
const quickBandNarrowing = 0.10

var vagueVerbs = map[string]bool{
	"do": true, "fix": true, "optimize": true, "handle": true,
	"improve": true, "update": true, "change": true, "make": true,
	"clean": true, "sort": true, "check": true,
}

var barePronouns = map[string]bool{
	"it": true, "this": true, "that": true, "them": true, "these": true, "those": true,
}

// Detector computes ambiguity scores and applies the clarify band.
type Detector struct {
	askClarify float64
	proceed    float64
	maxRounds  int
}

// Result is the detector's verdict for one utterance.
type Result struct {
	Clarify       bool
	Score         float64
	Domain        string
	DomainMatched bool
}

// NewDetector creates a detector with the given band edges and round cap.
func NewDetector(askClarify, proceed float64, maxRounds int) *Detector {
	return &Detector{askClarify: askClarify, proceed: proceed, maxRounds: maxRounds}
}

// Detect scores the prompt/context pair and decides clarify vs. proceed.
// Score < ask_clarify proceeds (confidently unambiguous); score >= proceed
// proceeds (ambiguous but inferable); in between clarifies. The round cap
// override always wins. Never fails: a malformed or missing context only
// degrades the domain signal.
func (d *Detector) Detect(prompt string, ctx *types.ConversationContext, mode types.Mode, round int) Result {
	domain, matched := question.InferDomain(prompt, ctx)
	res := Result{Domain: domain, DomainMatched: matched}
	res.Score = d.score(prompt, ctx, matched)

	if d.maxRounds >= 0 && round >= d.maxRounds {
		logging.SafetyDebug("Round cap reached (round=%d, max=%d), forcing proceed", round, d.maxRounds)
		return res
	}

	lo, hi := d.band(mode)
	res.Clarify = res.Score >= lo && res.Score < hi
	logging.EngineDebug("Ambiguity scored: score=%.2f band=[%.2f,%.2f) domain=%s clarify=%v",
		res.Score, lo, hi, domain, res.Clarify)
	return res
}

// band returns the clarify band for the mode. Quick mode narrows both edges;
// the band never inverts.
func (d *Detector) band(mode types.Mode) (float64, float64) {
	lo, hi := d.askClarify, d.proceed
	if mode == types.ModeQuick {
		lo += quickBandNarrowing
		hi -= quickBandNarrowing
		if lo > hi {
			lo = hi
		}
	}
	return lo, hi
}

func (d *Detector) score(prompt string, ctx *types.ConversationContext, domainMatched bool) float64 {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return 0
	}

	words := strings.Fields(strings.ToLower(strings.Trim(trimmed, ".!?")))
	score := 0.0

	if len(words) > 0 && vagueVerbs[words[0]] {
		score += weightVagueVerb
		if len(words) == 1 {
			score += weightNoObject
		}
	}
	for _, w := range words {
		if barePronouns[w] {
			score += weightPronoun
			break
		}
	}
	switch {
	case len(words) <= 3:
		score += weightVeryShort
	case len(words) <= 6:
		score += weightShort
	}

	if domainMatched && hasContext(ctx) {
		score -= bonusDomainMatch
	} else if !domainMatched {
		score += weightNoDomain
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func hasContext(ctx *types.ConversationContext) bool {
	return ctx != nil && (len(ctx.History) > 0 || len(ctx.ProjectHints) > 0 || len(ctx.Environment) > 0)
}

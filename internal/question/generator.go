// Package question infers a topical domain from context and selects a
// clarifying question, preferring learned templates over the static bank.
package question

import (
	"math/rand"
	"sync"

	"clariond/internal/learning"
	"clariond/internal/logging"
	"clariond/internal/types"
)

// tieEpsilon bounds the confidence spread treated as a tie for top-K
// randomization.
const tieEpsilon = 1e-9

// Question is a selected clarifying question with attribution.
type Question struct {
	Question   string   `json:"question"`
	Options    []string `json:"options,omitempty"`
	TemplateID string   `json:"template_id"`
	Domain     string   `json:"domain"`
}

// Generator selects clarifying questions. When learning is enabled it ranks
// learned templates by confidence and randomizes among top ties to avoid
// asking the same question every time.
type Generator struct {
	learner         *learning.Learner
	learningEnabled bool

	mu  sync.Mutex
	rng *rand.Rand
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithRandSource seeds the tie-break RNG (tests).
func WithRandSource(src rand.Source) GeneratorOption {
	return func(g *Generator) { g.rng = rand.New(src) }
}

// NewGenerator creates a question generator.
func NewGenerator(learner *learning.Learner, learningEnabled bool, opts ...GeneratorOption) *Generator {
	g := &Generator{
		learner:         learner,
		learningEnabled: learningEnabled,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return g
}

// Generate selects a question for the given domain. Learned templates with
// enough samples win over the static bank; the template id is returned so a
// later feedback call can attribute the outcome.
func (g *Generator) Generate(prompt string, ctx *types.ConversationContext, domain string) Question {
	if domain == "" {
		domain = GenericDomain
	}

	if g.learningEnabled && g.learner != nil {
		if q, ok := g.fromLearned(domain); ok {
			logging.QuestionDebug("Selected learned template: domain=%s template=%s", domain, q.TemplateID)
			return q
		}
	}

	templates := StaticTemplates(domain)
	t := templates[g.intn(len(templates))]
	logging.QuestionDebug("Selected static template: domain=%s template=%s", domain, t.ID)
	return Question{
		Question:   t.Question,
		Options:    t.Options,
		TemplateID: t.ID,
		Domain:     domain,
	}
}

// fromLearned picks among the qualified learned templates, randomizing
// across the tied top of the ranking.
func (g *Generator) fromLearned(domain string) (Question, bool) {
	qualified := g.learner.Qualified(domain)
	if len(qualified) == 0 {
		return Question{}, false
	}

	top := learning.Confidence(qualified[0])
	ties := 1
	for ties < len(qualified) && top-learning.Confidence(qualified[ties]) < tieEpsilon {
		ties++
	}
	chosen := qualified[g.intn(ties)]

	t, ok := TemplateByID(chosen.TemplateID)
	if !ok {
		// Learned id no longer in any bank; fall back to the static path.
		logging.Get(logging.CategoryQuestion).Warn("Learned template %q has no definition, falling back", chosen.TemplateID)
		return Question{}, false
	}
	return Question{
		Question:   t.Question,
		Options:    t.Options,
		TemplateID: t.ID,
		Domain:     domain,
	}, true
}

func (g *Generator) intn(n int) int {
	if n <= 1 {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Intn(n)
}

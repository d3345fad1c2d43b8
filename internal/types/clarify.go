// Package types holds the shared data model for the clarification engine.
package types

import "time"

// Mode selects the threshold band used by the ambiguity detector.
type Mode string

const (
	// ModeQuick favors latency: a narrower clarify band, fewer questions.
	ModeQuick Mode = "quick"
	// ModeCareful favors precision: the full clarify band.
	ModeCareful Mode = "careful"
)

// Valid reports whether m is a recognized mode.
func (m Mode) Valid() bool {
	return m == ModeQuick || m == ModeCareful
}

// ReasonCode explains why a decision came out the way it did.
type ReasonCode string

const (
	ReasonNormal      ReasonCode = "normal"
	ReasonBreakerOpen ReasonCode = "breaker-open"
	ReasonRoundCap    ReasonCode = "round-cap"
	ReasonDisabled    ReasonCode = "disabled"
)

// Outcome is the resolution state of a clarification attempt.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Turn is one prior exchange in the conversation history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationContext carries what the gateway knows about the conversation.
// A nil or empty context is always acceptable; the engine degrades to the
// "generic" domain rather than failing.
type ConversationContext struct {
	History      []Turn            `json:"history,omitempty"`
	ProjectHints []string          `json:"project_hints,omitempty"`
	Environment  map[string]string `json:"environment,omitempty"`
}

// PatternStat tracks success/failure evidence for one (domain, template) pair.
// Counts are integers and never go negative; decay truncates toward zero.
type PatternStat struct {
	Domain      string    `json:"domain"`
	TemplateID  string    `json:"template_id"`
	Success     int       `json:"success"`
	Failure     int       `json:"failure"`
	LastUpdated time.Time `json:"last_updated"`
}

// Total returns the total number of recorded attempts.
func (p PatternStat) Total() int {
	return p.Success + p.Failure
}

// SuccessRate returns success/(success+failure), or 0 with no attempts.
func (p PatternStat) SuccessRate() float64 {
	total := p.Total()
	if total == 0 {
		return 0
	}
	return float64(p.Success) / float64(total)
}

// ClarificationAttempt is created per clarify decision and finalized (or not)
// by a later feedback call. An unresolved attempt never touches aggregates.
type ClarificationAttempt struct {
	ID         string    `json:"id"`
	TraceID    string    `json:"trace_id"`
	Prompt     string    `json:"prompt"`
	Question   string    `json:"question"`
	Domain     string    `json:"domain"`
	TemplateID string    `json:"template_id"`
	Round      int       `json:"round"`
	Mode       Mode      `json:"mode"`
	CreatedAt  time.Time `json:"created_at"`
	Outcome    Outcome   `json:"outcome"`
}

// ClarificationDecision is the engine's answer to "clarify or proceed?".
type ClarificationDecision struct {
	Clarify    bool       `json:"clarify"`
	Question   string     `json:"question,omitempty"`
	Options    []string   `json:"options,omitempty"`
	Domain     string     `json:"domain"`
	TemplateID string     `json:"template_id,omitempty"`
	Confidence float64    `json:"confidence"`
	Score      float64    `json:"score"`
	Round      int        `json:"round"`
	TraceID    string     `json:"trace_id"`
	Reason     ReasonCode `json:"reason"`
}

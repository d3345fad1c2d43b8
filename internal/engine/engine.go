// Package engine composes the ambiguity detector, question generator,
// learner, and safety governor behind the public detect/feedback contract.
package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"clariond/internal/ambiguity"
	"clariond/internal/config"
	"clariond/internal/learning"
	"clariond/internal/logging"
	"clariond/internal/question"
	"clariond/internal/safety"
	"clariond/internal/store"
	"clariond/internal/telemetry"
	"clariond/internal/types"

	"github.com/google/uuid"
)

// pendingTTL bounds how long an unresolved clarification attempt is kept for
// feedback attribution. Expired attempts are dropped without ever touching
// the aggregates.
const pendingTTL = 30 * time.Minute

// ReplyClassifier decides whether a user's free-text reply to a clarifying
// question counts as a successful clarification. Injected because the right
// rule is owned by the caller; the default is a bail-out heuristic.
type ReplyClassifier func(reply string) bool

// DetectRequest is the input to DetectAmbiguity.
type DetectRequest struct {
	Prompt  string
	Context *types.ConversationContext
	Mode    types.Mode
	Round   int
	TraceID string
}

// Feedback reports the outcome of an earlier clarification.
type Feedback struct {
	TraceID   string
	Prompt    string
	Question  string
	UserReply string
	// Success overrides reply classification when the caller has an
	// explicit signal.
	Success *bool
	// Domain and TemplateID allow attribution when the original decision
	// is no longer in the pending registry (e.g. across processes).
	Domain     string
	TemplateID string
	Context    *types.ConversationContext
}

// EngineStats aggregates operator-facing state.
type EngineStats struct {
	Store               store.Stats `json:"store"`
	BreakerState        string      `json:"breaker_state"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	PendingAttempts     int         `json:"pending_attempts"`
}

// Engine is the process-scoped clarification engine. One instance serves
// many concurrent requests.
type Engine struct {
	cfgMu   sync.RWMutex
	cfg     *config.Config
	learner *learning.Learner
	gen     *question.Generator

	store    *store.PatternStore
	breaker  *safety.Breaker
	emitter  telemetry.Emitter
	classify ReplyClassifier
	now      func() time.Time

	pendingMu sync.Mutex
	pending   map[string]*types.ClarificationAttempt
	lastSweep time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClassifier injects the reply success classifier.
func WithClassifier(fn ReplyClassifier) Option {
	return func(e *Engine) { e.classify = fn }
}

// WithClock overrides the time source (tests). Also applied to the breaker.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRandSource seeds the question generator's tie-break RNG (tests).
func WithRandSource(src rand.Source) Option {
	return func(e *Engine) {
		e.gen = question.NewGenerator(e.learner, e.cfg.Learning.Enabled, question.WithRandSource(src))
	}
}

// New creates an engine over the given store. The store is the explicit,
// process-scoped learning state; there are no hidden singletons.
func New(cfg *config.Config, st *store.PatternStore, emitter telemetry.Emitter, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if emitter == nil {
		emitter = telemetry.NopEmitter{}
	}

	e := &Engine{
		cfg:      cfg,
		store:    st,
		emitter:  emitter,
		classify: DefaultReplyClassifier,
		now:      time.Now,
		pending:  make(map[string]*types.ClarificationAttempt),
	}
	e.learner = learning.New(st, cfg.Learning.Decay, cfg.Learning.MinSamplesToApply)
	e.gen = question.NewGenerator(e.learner, cfg.Learning.Enabled)

	// Apply WithClock before the breaker is built so it shares the clock.
	for _, opt := range opts {
		opt(e)
	}
	e.breaker = safety.NewBreaker(
		cfg.Safety.CircuitBreaker.MaxFailures,
		time.Duration(cfg.Safety.CircuitBreaker.ResetSeconds)*time.Second,
		safety.WithClock(e.now),
	)

	logging.Engine("Engine initialized: mode=%s max_rounds=%d learning=%v",
		cfg.DefaultMode, cfg.MaxRounds, cfg.Learning.Enabled)
	return e
}

// ApplyConfig swaps in a reloaded config. Thresholds, mode, round cap, and
// learning settings take effect immediately; the breaker takes the new
// trip threshold and reset window but keeps its state and counter.
func (e *Engine) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	e.cfg = cfg
	e.learner = learning.New(e.store, cfg.Learning.Decay, cfg.Learning.MinSamplesToApply)
	e.gen = question.NewGenerator(e.learner, cfg.Learning.Enabled)
	e.breaker.Configure(
		cfg.Safety.CircuitBreaker.MaxFailures,
		time.Duration(cfg.Safety.CircuitBreaker.ResetSeconds)*time.Second,
	)
	logging.Engine("Config applied: mode=%s max_rounds=%d thresholds=[%.2f,%.2f)",
		cfg.DefaultMode, cfg.MaxRounds, cfg.Thresholds.AskClarify, cfg.Thresholds.Proceed)
}

func (e *Engine) snapshot() (*config.Config, *learning.Learner, *question.Generator) {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg, e.learner, e.gen
}

// DetectAmbiguity decides clarify vs. proceed for one utterance. Safety
// gates run first and skip scoring entirely; the detection path performs no
// blocking I/O. Never returns an error to the caller: worst case is a
// forced-proceed decision.
func (e *Engine) DetectAmbiguity(ctx context.Context, req DetectRequest) types.ClarificationDecision {
	timer := logging.StartTimer(logging.CategoryEngine, "DetectAmbiguity")
	defer timer.StopWithThreshold(200 * time.Millisecond)

	cfg, _, gen := e.snapshot()

	traceID := req.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	mode := req.Mode
	if !mode.Valid() {
		mode = cfg.DefaultMode
	}

	decision := types.ClarificationDecision{
		Domain:  question.GenericDomain,
		Round:   req.Round,
		TraceID: traceID,
		Reason:  types.ReasonNormal,
	}

	switch {
	case !cfg.Enabled:
		decision.Reason = types.ReasonDisabled
	case safety.ExceededRoundCap(req.Round, cfg.MaxRounds):
		decision.Reason = types.ReasonRoundCap
	case !e.breaker.Allow():
		decision.Reason = types.ReasonBreakerOpen
	}
	if decision.Reason != types.ReasonNormal {
		domain, _ := question.InferDomain(req.Prompt, req.Context)
		decision.Domain = domain
		e.emitDetect(decision, mode)
		return decision
	}

	det := ambiguity.NewDetector(cfg.Thresholds.AskClarify, cfg.Thresholds.Proceed, cfg.MaxRounds)
	res := det.Detect(req.Prompt, req.Context, mode, req.Round)
	decision.Domain = res.Domain
	decision.Score = res.Score

	if !res.Clarify {
		e.emitDetect(decision, mode)
		return decision
	}

	q := gen.Generate(req.Prompt, req.Context, res.Domain)
	decision.Clarify = true
	decision.Question = q.Question
	decision.Options = q.Options
	decision.TemplateID = q.TemplateID
	decision.Round = req.Round + 1
	if stat, ok := e.store.Get(q.Domain, q.TemplateID); ok {
		decision.Confidence = learning.Confidence(stat)
	}

	e.registerAttempt(&types.ClarificationAttempt{
		ID:         uuid.NewString(),
		TraceID:    traceID,
		Prompt:     req.Prompt,
		Question:   q.Question,
		Domain:     q.Domain,
		TemplateID: q.TemplateID,
		Round:      decision.Round,
		Mode:       mode,
		CreatedAt:  e.now(),
		Outcome:    types.OutcomePending,
	})

	e.emitDetect(decision, mode)
	return decision
}

// RecordClarificationFeedback attributes an outcome to the (domain,
// template) of the original decision, updates the learner, then updates the
// breaker's consecutive-failure counter. The in-memory pattern store
// reflects the update before this returns; the durable write happens behind
// it.
func (e *Engine) RecordClarificationFeedback(ctx context.Context, fb Feedback) {
	timer := logging.StartTimer(logging.CategoryEngine, "RecordClarificationFeedback")
	defer timer.Stop()

	cfg, learner, _ := e.snapshot()

	success := false
	if fb.Success != nil {
		success = *fb.Success
	} else {
		success = e.classify(fb.UserReply)
	}

	domain, templateID := fb.Domain, fb.TemplateID
	var mode types.Mode
	var round int
	if attempt := e.takeAttempt(fb.TraceID); attempt != nil {
		domain, templateID = attempt.Domain, attempt.TemplateID
		mode = attempt.Mode
		round = attempt.Round
		if success {
			attempt.Outcome = types.OutcomeSuccess
		} else {
			attempt.Outcome = types.OutcomeFailure
		}
	}

	var confidence float64
	if domain != "" && templateID != "" {
		if cfg.Learning.Enabled {
			stat := learner.Record(domain, templateID, success)
			confidence = learning.Confidence(stat)
		} else if stat, ok := e.store.Get(domain, templateID); ok {
			confidence = learning.Confidence(stat)
		}
	} else {
		// Unattributable feedback still counts for breaker health, but
		// never corrupts the aggregates.
		logging.EngineDebug("Feedback without attribution: trace=%s", fb.TraceID)
	}

	if success {
		e.breaker.RecordSuccess()
	} else {
		e.breaker.RecordFailure()
	}

	e.emitter.Emit(telemetry.Event{
		Kind:       "feedback",
		TraceID:    fb.TraceID,
		Mode:       string(mode),
		Domain:     domain,
		TemplateID: templateID,
		Confidence: confidence,
		Round:      round,
		Success:    &success,
		Timestamp:  e.now(),
	})
}

// ResetBreaker is the operator override for the circuit breaker.
func (e *Engine) ResetBreaker() {
	e.breaker.Reset()
}

// ClearLearning wipes the pattern store entirely, in memory and durable.
func (e *Engine) ClearLearning() error {
	return e.store.Clear()
}

// Stats returns operator-facing aggregate state.
func (e *Engine) Stats() EngineStats {
	e.pendingMu.Lock()
	pending := len(e.pending)
	e.pendingMu.Unlock()

	return EngineStats{
		Store:               e.store.Stats(),
		BreakerState:        e.breaker.State().String(),
		ConsecutiveFailures: e.breaker.ConsecutiveFailures(),
		PendingAttempts:     pending,
	}
}

// Close flushes pending durable writes and releases the store.
func (e *Engine) Close() error {
	return e.store.Close()
}

func (e *Engine) emitDetect(d types.ClarificationDecision, mode types.Mode) {
	e.emitter.Emit(telemetry.Event{
		Kind:       "detect",
		TraceID:    d.TraceID,
		Mode:       string(mode),
		Domain:     d.Domain,
		TemplateID: d.TemplateID,
		Confidence: d.Confidence,
		Round:      d.Round,
		Reason:     string(d.Reason),
		Clarify:    d.Clarify,
		Timestamp:  e.now(),
	})
}

func (e *Engine) registerAttempt(attempt *types.ClarificationAttempt) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	e.sweepLocked()
	e.pending[attempt.TraceID] = attempt
}

func (e *Engine) takeAttempt(traceID string) *types.ClarificationAttempt {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	attempt, ok := e.pending[traceID]
	if !ok {
		return nil
	}
	delete(e.pending, traceID)
	return attempt
}

// sweepLocked drops expired pending attempts. Must hold pendingMu.
func (e *Engine) sweepLocked() {
	now := e.now()
	if now.Sub(e.lastSweep) < time.Minute {
		return
	}
	e.lastSweep = now
	for traceID, attempt := range e.pending {
		if now.Sub(attempt.CreatedAt) > pendingTTL {
			delete(e.pending, traceID)
		}
	}
}

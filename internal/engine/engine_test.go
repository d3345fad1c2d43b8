package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"clariond/internal/config"
	"clariond/internal/store"
	"clariond/internal/telemetry"
	"clariond/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingEmitter captures emitted events for assertions.
type recordingEmitter struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (r *recordingEmitter) Emit(e telemetry.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) last() telemetry.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recordingEmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newTestEngine(t *testing.T, mutate func(*config.Config)) (*Engine, *recordingEmitter) {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	emitter := &recordingEmitter{}
	e := New(cfg, store.NewPatternStore(store.NewMemoryBackend()), emitter)
	t.Cleanup(func() { _ = e.Close() })
	return e, emitter
}

func boolPtr(b bool) *bool { return &b }

// fakeClock is a mutable time source shared with the engine and breaker.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestVaguePromptYieldsClarification(t *testing.T) {
	e, emitter := newTestEngine(t, nil)

	decision := e.DetectAmbiguity(context.Background(), DetectRequest{
		Prompt: "Do it now",
		Mode:   types.ModeCareful,
	})

	require.True(t, decision.Clarify)
	assert.Equal(t, types.ReasonNormal, decision.Reason)
	assert.Equal(t, "generic", decision.Domain)
	assert.NotEmpty(t, decision.Question)
	assert.NotEmpty(t, decision.TemplateID)
	assert.NotEmpty(t, decision.TraceID)
	assert.Equal(t, 1, decision.Round, "clarify decisions carry round_number+1")
	assert.GreaterOrEqual(t, decision.Score, 0.25)
	assert.Less(t, decision.Score, 0.80)

	event := emitter.last()
	assert.Equal(t, "detect", event.Kind)
	assert.Equal(t, decision.TraceID, event.TraceID)
	assert.True(t, event.Clarify)
}

func TestRoundCapForcesProceed(t *testing.T) {
	e, emitter := newTestEngine(t, nil)

	decision := e.DetectAmbiguity(context.Background(), DetectRequest{
		Prompt: "Optimize this",
		Mode:   types.ModeCareful,
		Round:  2,
	})

	assert.False(t, decision.Clarify)
	assert.Equal(t, types.ReasonRoundCap, decision.Reason)
	assert.Equal(t, "round-cap", emitter.last().Reason)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	for i := 0; i < 5; i++ {
		e.RecordClarificationFeedback(context.Background(), Feedback{
			TraceID:    "t-fail",
			Domain:     "web",
			TemplateID: "T1",
			Success:    boolPtr(false),
		})
	}

	decision := e.DetectAmbiguity(context.Background(), DetectRequest{
		Prompt: "Do it now",
		Mode:   types.ModeCareful,
	})
	assert.False(t, decision.Clarify)
	assert.Equal(t, types.ReasonBreakerOpen, decision.Reason)

	// Operator reset restores normal operation.
	e.ResetBreaker()
	decision = e.DetectAmbiguity(context.Background(), DetectRequest{
		Prompt: "Do it now",
		Mode:   types.ModeCareful,
	})
	assert.Equal(t, types.ReasonNormal, decision.Reason)
	assert.True(t, decision.Clarify)
}

func TestFeedbackAttributesThroughPendingAttempt(t *testing.T) {
	e, emitter := newTestEngine(t, nil)

	decision := e.DetectAmbiguity(context.Background(), DetectRequest{
		Prompt: "Fix it",
		Mode:   types.ModeCareful,
	})
	require.True(t, decision.Clarify)

	e.RecordClarificationFeedback(context.Background(), Feedback{
		TraceID:   decision.TraceID,
		UserReply: "the login endpoint in the Flask app",
	})

	stats := e.Stats()
	assert.Equal(t, 1, stats.Store.Successes)
	assert.Equal(t, 0, stats.Store.Failures)
	assert.Equal(t, 0, stats.PendingAttempts)
	assert.Equal(t, "CLOSED", stats.BreakerState)

	event := emitter.last()
	assert.Equal(t, "feedback", event.Kind)
	require.NotNil(t, event.Success)
	assert.True(t, *event.Success)
	assert.Equal(t, decision.TemplateID, event.TemplateID)
	assert.Equal(t, string(types.ModeCareful), event.Mode)
	assert.Equal(t, decision.Round, event.Round)
	assert.Greater(t, event.Confidence, 0.0)
}

func TestBailOutReplyCountsAsFailure(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	decision := e.DetectAmbiguity(context.Background(), DetectRequest{
		Prompt: "Fix it",
		Mode:   types.ModeCareful,
	})
	require.True(t, decision.Clarify)

	e.RecordClarificationFeedback(context.Background(), Feedback{
		TraceID:   decision.TraceID,
		UserReply: "never mind",
	})

	stats := e.Stats()
	assert.Equal(t, 0, stats.Store.Successes)
	assert.Equal(t, 1, stats.Store.Failures)
	assert.Equal(t, 1, stats.ConsecutiveFailures)
}

func TestUnattributableFeedbackSkipsAggregates(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	e.RecordClarificationFeedback(context.Background(), Feedback{
		TraceID: "unknown-trace",
		Success: boolPtr(false),
	})

	stats := e.Stats()
	assert.Equal(t, 0, stats.Store.Patterns, "aggregates must not be corrupted")
	assert.Equal(t, 1, stats.ConsecutiveFailures, "breaker health still counts")
}

func TestDisabledEngineForcesProceed(t *testing.T) {
	e, _ := newTestEngine(t, func(cfg *config.Config) { cfg.Enabled = false })

	decision := e.DetectAmbiguity(context.Background(), DetectRequest{
		Prompt: "Do it now",
		Mode:   types.ModeCareful,
	})
	assert.False(t, decision.Clarify)
	assert.Equal(t, types.ReasonDisabled, decision.Reason)
}

func TestLearningDisabledSkipsRecording(t *testing.T) {
	e, _ := newTestEngine(t, func(cfg *config.Config) { cfg.Learning.Enabled = false })

	decision := e.DetectAmbiguity(context.Background(), DetectRequest{
		Prompt: "Fix it",
		Mode:   types.ModeCareful,
	})
	require.True(t, decision.Clarify)

	e.RecordClarificationFeedback(context.Background(), Feedback{
		TraceID: decision.TraceID,
		Success: boolPtr(true),
	})
	assert.Equal(t, 0, e.Stats().Store.Patterns)
}

func TestOneEventPerCall(t *testing.T) {
	e, emitter := newTestEngine(t, nil)

	e.DetectAmbiguity(context.Background(), DetectRequest{Prompt: "Do it now"})
	e.DetectAmbiguity(context.Background(), DetectRequest{Prompt: "Deploy the Flask app to Kubernetes staging", Round: 0})
	e.RecordClarificationFeedback(context.Background(), Feedback{TraceID: "x", Success: boolPtr(true)})

	assert.Equal(t, 3, emitter.count())
}

func TestApplyConfigTakesEffect(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	cfg := config.DefaultConfig()
	cfg.MaxRounds = 0
	e.ApplyConfig(cfg)

	decision := e.DetectAmbiguity(context.Background(), DetectRequest{
		Prompt: "Do it now",
		Mode:   types.ModeCareful,
	})
	assert.Equal(t, types.ReasonRoundCap, decision.Reason)
}

func TestApplyConfigUpdatesBreakerThresholds(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	cfg := config.DefaultConfig()
	cfg.Safety.CircuitBreaker.MaxFailures = 2
	e.ApplyConfig(cfg)

	for i := 0; i < 2; i++ {
		e.RecordClarificationFeedback(context.Background(), Feedback{
			TraceID:    "t-thresh",
			Domain:     "web",
			TemplateID: "web.framework",
			Success:    boolPtr(false),
		})
	}

	decision := e.DetectAmbiguity(context.Background(), DetectRequest{
		Prompt: "Do it now",
		Mode:   types.ModeCareful,
	})
	assert.Equal(t, types.ReasonBreakerOpen, decision.Reason,
		"reloaded max_failures must apply without a restart")
}

func TestExpiredPendingAttemptsAreSwept(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)}
	emitter := &recordingEmitter{}
	e := New(config.DefaultConfig(), store.NewPatternStore(store.NewMemoryBackend()), emitter,
		WithClock(clock.now))
	t.Cleanup(func() { _ = e.Close() })

	stale := e.DetectAmbiguity(context.Background(), DetectRequest{
		Prompt: "Fix it",
		Mode:   types.ModeCareful,
	})
	require.True(t, stale.Clarify)
	require.Equal(t, 1, e.Stats().PendingAttempts)

	clock.advance(31 * time.Minute)

	fresh := e.DetectAmbiguity(context.Background(), DetectRequest{
		Prompt: "Fix it",
		Mode:   types.ModeCareful,
	})
	require.True(t, fresh.Clarify)
	assert.Equal(t, 1, e.Stats().PendingAttempts, "expired attempt should be swept, not accumulated")

	// Late feedback for the swept trace is unattributable and must leave the
	// aggregates untouched.
	e.RecordClarificationFeedback(context.Background(), Feedback{
		TraceID: stale.TraceID,
		Success: boolPtr(true),
	})
	assert.Equal(t, 0, e.Stats().Store.Patterns)
}

func TestClearLearningWipesStore(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	decision := e.DetectAmbiguity(context.Background(), DetectRequest{Prompt: "Fix it"})
	require.True(t, decision.Clarify)
	e.RecordClarificationFeedback(context.Background(), Feedback{
		TraceID: decision.TraceID,
		Success: boolPtr(true),
	})
	require.Equal(t, 1, e.Stats().Store.Patterns)

	require.NoError(t, e.ClearLearning())
	assert.Equal(t, 0, e.Stats().Store.Patterns)
}

func TestConcurrentDetectionsAreSafe(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision := e.DetectAmbiguity(context.Background(), DetectRequest{
				Prompt: "Fix it",
				Mode:   types.ModeCareful,
			})
			if decision.Clarify {
				e.RecordClarificationFeedback(context.Background(), Feedback{
					TraceID:   decision.TraceID,
					UserReply: "the auth middleware",
				})
			}
		}()
	}
	wg.Wait()

	// Decay keeps repeated counts bounded, so assert shape, not totals.
	stats := e.Stats()
	assert.Greater(t, stats.Store.Successes, 0)
	assert.Equal(t, 0, stats.Store.Failures)
	assert.Equal(t, 0, stats.PendingAttempts)
	assert.Equal(t, "CLOSED", stats.BreakerState)
}

func TestDefaultReplyClassifier(t *testing.T) {
	tests := []struct {
		reply string
		want  bool
	}{
		{"the login endpoint", true},
		{"Flask", true},
		{"", false},
		{"   ", false},
		{"never mind", false},
		{"Nevermind.", false},
		{"cancel", false},
		{"no", false},
		{"No!", false},
		{"yes, the staging cluster", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultReplyClassifier(tt.reply), "reply %q", tt.reply)
	}
}

package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"clariond/internal/logging"
	"clariond/internal/types"
)

// PatternStore holds the in-memory truth for pattern statistics. Every
// update lands in memory before the call returns; the durable write happens
// behind it. A read/load failure degrades to in-memory-only operation.
type PatternStore struct {
	mu      sync.RWMutex
	stats   map[string]map[string]types.PatternStat // domain -> template id -> stat
	backend Backend
	now     func() time.Time
	writes  sync.WaitGroup
}

// Stats aggregates store contents for operator visibility.
type Stats struct {
	Domains   int `json:"domains"`
	Patterns  int `json:"patterns"`
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
}

// Option configures a PatternStore.
type Option func(*PatternStore)

// WithClock overrides the timestamp source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *PatternStore) { s.now = now }
}

// NewPatternStore creates a store over the given backend and loads persisted
// state. A nil backend or a failed load yields an empty in-memory store,
// never an error: a missing or corrupt backing file must not be fatal.
func NewPatternStore(backend Backend, opts ...Option) *PatternStore {
	s := &PatternStore{
		stats:   make(map[string]map[string]types.PatternStat),
		backend: backend,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if backend == nil {
		logging.Store("No durable backend configured, running in-memory only")
		return s
	}

	loaded, err := backend.Load()
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("Pattern load failed, starting empty: %v", err)
		return s
	}
	for domain, stats := range loaded {
		byTemplate := make(map[string]types.PatternStat, len(stats))
		for _, stat := range stats {
			byTemplate[stat.TemplateID] = stat
		}
		s.stats[domain] = byTemplate
	}
	logging.Store("Pattern store loaded: %d domains", len(s.stats))
	return s
}

// Apply runs the decay-then-update rule for one observation and returns the
// updated stat. The whole read-decay-increment sequence runs under the store
// lock so concurrent updates to the same key never lose observations. The
// durable write is fire-and-forget; in-memory state reflects the update
// before Apply returns.
func (s *PatternStore) Apply(domain, templateID string, success bool, decay float64) types.PatternStat {
	s.mu.Lock()
	byTemplate, ok := s.stats[domain]
	if !ok {
		byTemplate = make(map[string]types.PatternStat)
		s.stats[domain] = byTemplate
	}
	stat, ok := byTemplate[templateID]
	if !ok {
		stat = types.PatternStat{Domain: domain, TemplateID: templateID}
	}

	// Discount stale evidence before counting the new observation. Only
	// applies once there is more than one prior attempt; truncation toward
	// zero keeps counts integral and non-negative.
	if stat.Total() > 1 {
		stat.Success = decayCount(stat.Success, decay)
		stat.Failure = decayCount(stat.Failure, decay)
	}
	if success {
		stat.Success++
	} else {
		stat.Failure++
	}
	stat.LastUpdated = s.now()
	byTemplate[templateID] = stat
	persist := s.backend != nil
	if persist {
		// Register the write before releasing the lock so Clear and Close
		// cannot observe the memory update without waiting for its durable
		// counterpart.
		s.writes.Add(1)
	}
	s.mu.Unlock()

	logging.LearningDebug("Pattern updated: domain=%s template=%s success=%d failure=%d",
		domain, templateID, stat.Success, stat.Failure)

	if persist {
		go func(st types.PatternStat) {
			defer s.writes.Done()
			if err := s.backend.Upsert(st); err != nil {
				// In-memory truth already holds the update; no retry storm.
				logging.Get(logging.CategoryStore).Warn("Pattern write failed, serving from memory: %v", err)
			}
		}(stat)
	}

	return stat
}

func decayCount(count int, decay float64) int {
	if count <= 0 {
		return 0
	}
	decayed := int(float64(count) * decay)
	if decayed < 0 {
		return 0
	}
	return decayed
}

// ByDomain returns a copy of all stats for the domain, ordered by template
// id for determinism. Read-only callers never block writers on other keys.
func (s *PatternStore) ByDomain(domain string) []types.PatternStat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byTemplate, ok := s.stats[domain]
	if !ok {
		return nil
	}
	out := make([]types.PatternStat, 0, len(byTemplate))
	for _, stat := range byTemplate {
		out = append(out, stat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TemplateID < out[j].TemplateID })
	return out
}

// Get returns the stat for one key, if present.
func (s *PatternStore) Get(domain, templateID string) (types.PatternStat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stat, ok := s.stats[domain][templateID]
	return stat, ok
}

// Snapshot returns a copy of the entire store keyed by domain.
func (s *PatternStore) Snapshot() map[string][]types.PatternStat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]types.PatternStat, len(s.stats))
	for domain, byTemplate := range s.stats {
		stats := make([]types.PatternStat, 0, len(byTemplate))
		for _, stat := range byTemplate {
			stats = append(stats, stat)
		}
		sort.Slice(stats, func(i, j int) bool { return stats[i].TemplateID < stats[j].TemplateID })
		out[domain] = stats
	}
	return out
}

// Stats returns aggregate counts.
func (s *PatternStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg := Stats{Domains: len(s.stats)}
	for _, byTemplate := range s.stats {
		agg.Patterns += len(byTemplate)
		for _, stat := range byTemplate {
			agg.Successes += stat.Success
			agg.Failures += stat.Failure
		}
	}
	return agg
}

// Clear wipes all learning data, in memory and durable.
func (s *PatternStore) Clear() error {
	s.mu.Lock()
	s.stats = make(map[string]map[string]types.PatternStat)
	s.mu.Unlock()

	logging.Store("Learning data cleared")

	if s.backend == nil {
		return nil
	}
	s.writes.Wait() // let in-flight upserts land before wiping
	if err := s.backend.Clear(); err != nil {
		return fmt.Errorf("failed to clear durable patterns: %w", err)
	}
	return nil
}

// Close waits for in-flight writes and closes the backend.
func (s *PatternStore) Close() error {
	s.writes.Wait()
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

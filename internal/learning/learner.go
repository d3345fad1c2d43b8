// Package learning implements the outcome learner over the pattern store.
// It records clarification outcomes with the decay-then-update rule and
// produces ranked template suggestions per domain.
package learning

import (
	"sort"

	"clariond/internal/logging"
	"clariond/internal/store"
	"clariond/internal/types"
)

// confidenceK dampens confidence at low sample counts. With K equal to the
// default min_samples_to_apply, a template at the trust threshold starts at
// half its success rate.
const confidenceK = 3.0

// Learner records outcomes and ranks templates by learned confidence.
type Learner struct {
	store      *store.PatternStore
	decay      float64
	minSamples int
}

// New creates a Learner over the given store.
func New(st *store.PatternStore, decay float64, minSamples int) *Learner {
	return &Learner{store: st, decay: decay, minSamples: minSamples}
}

// Record attributes one outcome to (domain, templateID) and returns the
// updated stat. The in-memory store reflects the update on return.
func (l *Learner) Record(domain, templateID string, success bool) types.PatternStat {
	stat := l.store.Apply(domain, templateID, success, l.decay)
	logging.Learning("Recorded outcome: domain=%s template=%s success=%v rate=%.2f total=%d",
		domain, templateID, success, stat.SuccessRate(), stat.Total())
	return stat
}

// Confidence scores a stat from its success rate and sample volume:
// rate * total/(total+K). Monotone non-decreasing in rate at fixed samples
// and in samples at fixed rate.
func Confidence(stat types.PatternStat) float64 {
	total := float64(stat.Total())
	if total == 0 {
		return 0
	}
	return stat.SuccessRate() * total / (total + confidenceK)
}

// Suggest returns all stats for the domain ranked by confidence descending,
// then sample count descending, then template id ascending. The ordering is
// fully deterministic for unchanged inputs.
func (l *Learner) Suggest(domain string) []types.PatternStat {
	stats := l.store.ByDomain(domain)
	sortRanked(stats)
	return stats
}

// Qualified returns the ranked stats with enough samples to be trusted
// (total >= min_samples_to_apply).
func (l *Learner) Qualified(domain string) []types.PatternStat {
	stats := l.Suggest(domain)
	qualified := stats[:0]
	for _, stat := range stats {
		if stat.Total() >= l.minSamples {
			qualified = append(qualified, stat)
		}
	}
	return qualified
}

// MinSamples returns the configured trust threshold.
func (l *Learner) MinSamples() int { return l.minSamples }

// Stats returns aggregate counts from the underlying store.
func (l *Learner) Stats() store.Stats { return l.store.Stats() }

func sortRanked(stats []types.PatternStat) {
	sort.SliceStable(stats, func(i, j int) bool {
		ci, cj := Confidence(stats[i]), Confidence(stats[j])
		if ci != cj {
			return ci > cj
		}
		if stats[i].Total() != stats[j].Total() {
			return stats[i].Total() > stats[j].Total()
		}
		return stats[i].TemplateID < stats[j].TemplateID
	})
}

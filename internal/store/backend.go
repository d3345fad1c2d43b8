// Package store implements persistence for clarification pattern statistics.
// The in-memory PatternStore is the source of truth on the request path;
// durable writes go through a pluggable Backend so the learning algorithm is
// independent of the storage choice.
package store

import (
	"sync"

	"clariond/internal/types"
)

// Backend is the durable key-value layer beneath the PatternStore. One
// record per (domain, template_id). Implementations must be safe for
// concurrent use.
type Backend interface {
	// Load reads all persisted stats, keyed by domain.
	Load() (map[string][]types.PatternStat, error)
	// Upsert writes or replaces the record for (stat.Domain, stat.TemplateID).
	Upsert(stat types.PatternStat) error
	// Clear wipes all persisted records.
	Clear() error
	// Close releases backend resources.
	Close() error
}

// MemoryBackend keeps records in a map. Used in tests and as the degraded
// mode when the durable backend cannot be opened.
type MemoryBackend struct {
	mu      sync.Mutex
	records map[string]types.PatternStat // key: domain + "\x00" + template id
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]types.PatternStat)}
}

// Load returns a copy of all records keyed by domain.
func (m *MemoryBackend) Load() (map[string][]types.PatternStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]types.PatternStat)
	for _, stat := range m.records {
		out[stat.Domain] = append(out[stat.Domain], stat)
	}
	return out, nil
}

// Upsert stores the record.
func (m *MemoryBackend) Upsert(stat types.PatternStat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[stat.Domain+"\x00"+stat.TemplateID] = stat
	return nil
}

// Clear wipes all records.
func (m *MemoryBackend) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]types.PatternStat)
	return nil
}

// Close is a no-op.
func (m *MemoryBackend) Close() error { return nil }

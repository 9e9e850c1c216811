// Package reliability tracks rolling success/failure/latency counters
// per downstream provider and derives a composite score in [0,1] used
// as advisory input to routing.
package reliability

import (
	"sync"
	"time"
)

// Score weighting: success rate dominates, latency tempers it. A
// provider averaging latencyCeilingMs or worse earns no latency credit.
const (
	successWeight    = 0.7
	latencyWeight    = 0.3
	latencyCeilingMs = 5000.0

	// NeutralScore is returned before the first observation, when
	// both rate and average latency are undefined.
	NeutralScore = 1.0
)

// Stat holds per-provider counters. Counts only ever increase;
// entries are never deleted.
type Stat struct {
	ProviderID     string    `json:"providerId"`
	SuccessCount   int64     `json:"successCount"`
	FailureCount   int64     `json:"failureCount"`
	TotalLatencyMs int64     `json:"totalLatencyMs"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Observations is the total number of recorded outcomes.
func (s Stat) Observations() int64 {
	return s.SuccessCount + s.FailureCount
}

// SuccessRate is undefined (0) with no observations; callers should
// gate on Observations first.
func (s Stat) SuccessRate() float64 {
	n := s.Observations()
	if n == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(n)
}

// AvgLatencyMs is the mean observed latency.
func (s Stat) AvgLatencyMs() float64 {
	n := s.Observations()
	if n == 0 {
		return 0
	}
	return float64(s.TotalLatencyMs) / float64(n)
}

// Tracker maintains provider statistics. Safe for concurrent use.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*Stat
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{stats: make(map[string]*Stat)}
}

// Record adds one completed-attempt observation for a provider.
func (t *Tracker) Record(providerID string, success bool, latencyMs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stats[providerID]
	if !ok {
		s = &Stat{ProviderID: providerID}
		t.stats[providerID] = s
	}
	if success {
		s.SuccessCount++
	} else {
		s.FailureCount++
	}
	s.TotalLatencyMs += latencyMs
	s.UpdatedAt = time.Now()
}

// Score derives the composite routing score:
//
//	0.7*successRate + 0.3*max(0, 1 - avgLatencyMs/5000)
//
// A provider with no observations scores NeutralScore rather than
// dividing by zero.
func (t *Tracker) Score(providerID string) float64 {
	// Copy the counters before releasing the lock; Record mutates
	// the shared entry in place.
	t.mu.RLock()
	s, ok := t.stats[providerID]
	var snap Stat
	if ok {
		snap = *s
	}
	t.mu.RUnlock()

	if !ok || snap.Observations() == 0 {
		return NeutralScore
	}

	latencyScore := 1.0 - snap.AvgLatencyMs()/latencyCeilingMs
	if latencyScore < 0 {
		latencyScore = 0
	}
	return successWeight*snap.SuccessRate() + latencyWeight*latencyScore
}

// Stat returns a copy of a provider's counters.
func (t *Tracker) Stat(providerID string) (Stat, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.stats[providerID]
	if !ok {
		return Stat{}, false
	}
	return *s, true
}

// All returns copies of every provider's counters.
func (t *Tracker) All() []Stat {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Stat, 0, len(t.stats))
	for _, s := range t.stats {
		out = append(out, *s)
	}
	return out
}

// Restore seeds the tracker from persisted counters, e.g. on startup.
// Existing in-memory entries for the same provider are overwritten.
func (t *Tracker) Restore(stats []Stat) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range stats {
		cp := s
		t.stats[s.ProviderID] = &cp
	}
}

// Package providers maintains the registry of downstream paid services
// and ranks candidates for routing.
package providers

import (
	"errors"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mbd888/paygate/internal/usdc"
)

var (
	ErrNotFound    = errors.New("providers: not found")
	ErrNoCandidate = errors.New("providers: no candidate available")
)

// Routing strategies.
const (
	StrategyCheapest  = "cheapest"
	StrategyReliable  = "reliability"
	StrategyBestValue = "best_value"
)

// DefaultTimeout bounds a single upstream call when a provider does not
// declare its own.
const DefaultTimeout = 30 * time.Second

// Provider describes one downstream paid service.
type Provider struct {
	ID       string        `json:"id"`
	Kind     string        `json:"kind"`     // result kind, e.g. "weather"
	Endpoint string        `json:"endpoint"` // POST target
	Price    string        `json:"price"`    // USDC per call, decimal string
	Timeout  time.Duration `json:"timeout,omitempty"`
}

// Candidate is a provider annotated with its current reliability score.
type Candidate struct {
	Provider
	Score float64 `json:"score"`
}

// Scorer supplies a reliability score for a provider ID.
// *reliability.Tracker satisfies this.
type Scorer interface {
	Score(providerID string) float64
}

// Registry holds registered providers. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]Provider
	scorer Scorer
}

// NewRegistry creates a registry. scorer may be nil, in which case all
// candidates rank with a neutral score.
func NewRegistry(scorer Scorer) *Registry {
	return &Registry{
		byID:   make(map[string]Provider),
		scorer: scorer,
	}
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) error {
	if p.ID == "" || p.Kind == "" || p.Endpoint == "" {
		return errors.New("providers: id, kind and endpoint are required")
	}
	if _, ok := usdc.Parse(p.Price); !ok {
		return errors.New("providers: invalid price")
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[p.ID] = p
	return nil
}

// Remove deletes a provider by ID.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// Get returns a provider by ID.
func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return Provider{}, ErrNotFound
	}
	return p, nil
}

// All returns every registered provider.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolve finds and ranks providers of a kind. maxPrice ("" for no cap)
// filters candidates whose price exceeds the cap.
func (r *Registry) Resolve(kind, maxPrice, strategy string) ([]Candidate, error) {
	var priceCap *big.Int
	if maxPrice != "" {
		parsed, ok := usdc.Parse(maxPrice)
		if !ok {
			return nil, errors.New("providers: invalid max price")
		}
		priceCap = parsed
	}

	r.mu.RLock()
	var candidates []Candidate
	for _, p := range r.byID {
		if !strings.EqualFold(p.Kind, kind) {
			continue
		}
		if priceCap != nil {
			price, _ := usdc.Parse(p.Price)
			if price != nil && price.Cmp(priceCap) > 0 {
				continue
			}
		}
		c := Candidate{Provider: p, Score: 1.0}
		if r.scorer != nil {
			c.Score = r.scorer.Score(p.ID)
		}
		candidates = append(candidates, c)
	}
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, ErrNoCandidate
	}

	rank(candidates, strategy)
	return candidates, nil
}

func rank(candidates []Candidate, strategy string) {
	switch strategy {
	case StrategyReliable:
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].Score > candidates[j].Score
		})
	case StrategyBestValue:
		sort.Slice(candidates, func(i, j int) bool {
			return valueScore(candidates[i]) > valueScore(candidates[j])
		})
	default: // cheapest
		sort.Slice(candidates, func(i, j int) bool {
			pi, _ := usdc.Parse(candidates[i].Price)
			pj, _ := usdc.Parse(candidates[j].Price)
			if pi == nil || pj == nil {
				return false
			}
			return pi.Cmp(pj) < 0
		})
	}
}

// valueScore is reliability per unit cost (higher = better deal).
func valueScore(c Candidate) float64 {
	price, _ := usdc.Parse(c.Price)
	if price == nil || price.Sign() == 0 {
		return 0
	}
	// Use big.Float to avoid Int64() truncation on large values.
	priceF, _ := new(big.Float).SetInt(price).Float64()
	if priceF == 0 {
		return 0
	}
	// price is in USDC base units (6 decimals), so divide by 1e6.
	return c.Score / (priceF / 1e6)
}

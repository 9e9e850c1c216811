// Package replay tracks consumed (payer, nonce) pairs so an
// authorization can be settled at most once per process or, with the
// Postgres store, per deployment.
//
// The guard is a fast-path optimization: the asset contract enforces
// the same single-use rule at settlement time, which remains the
// authority in multi-process deployments.
package replay

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Store is the injected nonce store. Consume must be atomic: of any
// number of concurrent calls with the same (payer, nonce), exactly one
// observes accepted=true.
type Store interface {
	// Consume records the pair if unseen and reports whether this call
	// claimed it.
	Consume(ctx context.Context, payer, nonce string) (accepted bool, err error)
}

// key normalizes payer and nonce so that address casing and 0x
// prefixes do not open replay holes.
func key(payer, nonce string) string {
	return strings.ToLower(payer) + ":" + strings.ToLower(strings.TrimPrefix(nonce, "0x"))
}

// MemoryStore is a process-local guard backed by a mutex-guarded map.
// Check-and-insert happens under one lock acquisition, never as a
// lookup followed by a separate insert.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemoryStore creates an empty in-memory nonce store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]time.Time)}
}

// Consume implements Store.
func (m *MemoryStore) Consume(_ context.Context, payer, nonce string) (bool, error) {
	k := key(payer, nonce)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.seen[k]; dup {
		return false, nil
	}
	m.seen[k] = time.Now()
	return true, nil
}

// Len reports how many pairs have been consumed.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

var _ Store = (*MemoryStore)(nil)

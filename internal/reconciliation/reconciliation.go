// Package reconciliation resolves settlement attempts whose chain
// state was unknown or negative when the response was sent: the
// service was already delivered, so the final disposition must come
// from chain receipts, never from a duplicate settlement attempt.
package reconciliation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mbd888/paygate/internal/settlement"
)

// Case is one parked attempt awaiting resolution against chain state.
type Case struct {
	Attempt    settlement.Attempt `json:"attempt"`
	EnqueuedAt time.Time          `json:"enqueuedAt"`
	Checks     int                `json:"checks"`
	LastError  string             `json:"lastError,omitempty"`
}

// Queue holds pending reconciliation cases. Safe for concurrent use.
// It satisfies settlement.ReconcileQueue.
type Queue struct {
	mu    sync.Mutex
	cases map[string]*Case // by attempt ID
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{cases: make(map[string]*Case)}
}

// Enqueue parks an attempt for later resolution. Re-enqueueing the
// same attempt is a no-op; the first observation wins.
func (q *Queue) Enqueue(_ context.Context, attempt settlement.Attempt) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.cases[attempt.ID]; ok {
		return
	}
	q.cases[attempt.ID] = &Case{Attempt: attempt, EnqueuedAt: time.Now()}
	reconcilePending.Set(float64(len(q.cases)))
}

// Pending returns a snapshot of unresolved cases, oldest first.
func (q *Queue) Pending() []Case {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Case, 0, len(q.cases))
	for _, c := range q.cases {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out
}

// Len returns the number of unresolved cases.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.cases)
}

func (q *Queue) remove(attemptID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.cases, attemptID)
	reconcilePending.Set(float64(len(q.cases)))
}

func (q *Queue) noteFailure(attemptID, detail string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if c, ok := q.cases[attemptID]; ok {
		c.Checks++
		c.LastError = detail
	}
}

var _ settlement.ReconcileQueue = (*Queue)(nil)

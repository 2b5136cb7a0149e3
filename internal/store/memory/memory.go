// Package memory provides store implementations for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/appscout/appscout/internal/scout"
)

// LeadStore is an in-memory scout.DedupStore. Reservation is first-writer-wins
// under a single mutex, mirroring the atomicity the Postgres store gets from
// its primary-key constraint.
type LeadStore struct {
	mu    sync.Mutex
	leads map[string]scout.Lead
}

// NewLeadStore constructs an empty LeadStore.
func NewLeadStore() *LeadStore {
	return &LeadStore{leads: make(map[string]scout.Lead)}
}

// TryReserve inserts the lead if the key is absent and reports whether this
// caller won the reservation.
func (s *LeadStore) TryReserve(_ context.Context, key string, lead scout.Lead) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.leads[key]; exists {
		return false, nil
	}
	s.leads[key] = lead
	return true, nil
}

// ReadAll returns every stored lead ordered by key for stable exports.
func (s *LeadStore) ReadAll(_ context.Context) ([]scout.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scout.Lead, 0, len(s.leads))
	for _, lead := range s.leads {
		out = append(out, lead)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// DeleteAll removes every stored lead.
func (s *LeadStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads = make(map[string]scout.Lead)
	return nil
}

// Count returns the number of stored leads.
func (s *LeadStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.leads), nil
}

// WorkQueue is an in-memory FIFO scout.WorkQueue.
type WorkQueue struct {
	mu    sync.Mutex
	terms []string
}

// NewWorkQueue constructs a WorkQueue seeded with the given terms.
func NewWorkQueue(terms ...string) *WorkQueue {
	return &WorkQueue{terms: append([]string(nil), terms...)}
}

// Push appends a term to the queue.
func (q *WorkQueue) Push(_ context.Context, term string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.terms = append(q.terms, term)
	return nil
}

// PopOne removes and returns the oldest term.
func (q *WorkQueue) PopOne(_ context.Context) (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.terms) == 0 {
		return "", false, nil
	}
	term := q.terms[0]
	q.terms = q.terms[1:]
	return term, true, nil
}

package app

import (
	"fmt"
	"sync"
	"time"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	"github.com/fd1az/arbitrage-scanner/internal/apperror"
)

type entry struct {
	candidate detection.Candidate
	status    detection.Status
	reason    string
	updatedAt time.Time
}

// Registry tracks the live status of every candidate this process has
// seen. Transitions are compare-and-swap, which is what makes the
// admitted -> executing step claim a candidate exactly once.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{entries: make(map[string]*entry), now: now}
}

// Add registers c in its current status. It returns false when the id is
// already known.
func (r *Registry) Add(c detection.Candidate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[c.ID]; ok {
		return false
	}
	status := c.Status
	if status == "" {
		status = detection.StatusDiscovered
	}
	r.entries[c.ID] = &entry{candidate: c, status: status, updatedAt: r.now()}
	return true
}

// Transition moves id from -> to. It fails when the candidate is unknown,
// not currently in from, or the move is illegal.
func (r *Registry) Transition(id string, from, to detection.Status, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return apperror.New(apperror.CodeNotFound,
			apperror.WithContext("candidate "+id))
	}
	if e.status != from {
		code := apperror.CodeInvalidStatusTransition
		if to == detection.StatusExecuting {
			code = apperror.CodeCandidateAlreadyClaimed
		}
		return apperror.New(code,
			apperror.WithContext(fmt.Sprintf("%s: is %s, expected %s", id, e.status, from)))
	}
	if !detection.CanTransition(from, to) {
		return apperror.New(apperror.CodeInvalidStatusTransition,
			apperror.WithContext(fmt.Sprintf("%s: %s -> %s", id, from, to)))
	}

	e.status = to
	e.reason = reason
	e.updatedAt = r.now()
	return nil
}

// Status returns the current status of id.
func (r *Registry) Status(id string) (detection.Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e.status, true
	}
	return "", false
}

// Reason returns the reason recorded with the last transition.
func (r *Registry) Reason(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e.reason
	}
	return ""
}

// ExpireDue moves every discovered or admitted candidate past its deadline
// to expired and returns their ids.
func (r *Registry) ExpireDue(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, e := range r.entries {
		if e.status != detection.StatusDiscovered && e.status != detection.StatusAdmitted {
			continue
		}
		if !e.candidate.Expired(now) {
			continue
		}
		e.status = detection.StatusExpired
		e.reason = "expired"
		e.updatedAt = now
		ids = append(ids, id)
	}
	return ids
}

// Prune drops terminal entries last updated before cutoff.
func (r *Registry) Prune(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, e := range r.entries {
		if e.status.Terminal() && e.updatedAt.Before(cutoff) {
			delete(r.entries, id)
			n++
		}
	}
	return n
}

// Counts returns the number of tracked candidates per status.
func (r *Registry) Counts() map[detection.Status]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[detection.Status]int)
	for _, e := range r.entries {
		out[e.status]++
	}
	return out
}

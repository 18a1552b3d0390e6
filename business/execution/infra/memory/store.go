// Package memory is an in-process execution store for tests and for runs
// without a database.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	"github.com/fd1az/arbitrage-scanner/business/execution/domain"
	"github.com/fd1az/arbitrage-scanner/internal/apperror"
)

type record struct {
	candidate detection.Candidate
	reason    string
}

// Store keeps candidates and trades in maps guarded by one mutex.
type Store struct {
	mu         sync.RWMutex
	candidates map[string]*record
	trades     []domain.ExecutedTrade
	byCand     map[string]int
}

func NewStore() *Store {
	return &Store{
		candidates: make(map[string]*record),
		byCand:     make(map[string]int),
	}
}

func (s *Store) SaveCandidate(_ context.Context, c *detection.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *c
	cp.Legs = slices.Clone(c.Legs)
	if cp.Status == "" {
		cp.Status = detection.StatusDiscovered
	}
	s.candidates[c.ID] = &record{candidate: cp}
	return nil
}

func (s *Store) UpdateCandidateStatus(_ context.Context, id string, status detection.Status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.candidates[id]
	if !ok {
		return apperror.New(apperror.CodeNotFound, apperror.WithContext("candidate "+id))
	}
	r.candidate.Status = status
	r.reason = reason
	return nil
}

func (s *Store) SaveExecutedTrade(_ context.Context, t *domain.ExecutedTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byCand[t.CandidateID]; dup {
		return apperror.New(apperror.CodeInvalidState,
			apperror.WithContext("trade already recorded for candidate "+t.CandidateID))
	}
	s.byCand[t.CandidateID] = len(s.trades)
	s.trades = append(s.trades, *t)
	return nil
}

func (s *Store) LoadRecentTrades(_ context.Context, since time.Time) ([]domain.ExecutedTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ExecutedTrade
	for _, t := range s.trades {
		if !t.CompletedAt.Before(since) {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.ExecutedTrade) int {
		return a.CompletedAt.Compare(b.CompletedAt)
	})
	return out, nil
}

func (s *Store) ExpireCandidates(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.candidates {
		st := r.candidate.Status
		if st != detection.StatusDiscovered && st != detection.StatusAdmitted {
			continue
		}
		if r.candidate.Expired(now) {
			r.candidate.Status = detection.StatusExpired
			r.reason = domain.ReasonExpired
			n++
		}
	}
	return n, nil
}

// Candidate returns the stored copy of id with its last reason.
func (s *Store) Candidate(id string) (detection.Candidate, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.candidates[id]
	if !ok {
		return detection.Candidate{}, "", false
	}
	return r.candidate, r.reason, true
}

// Trades returns every recorded trade in insertion order.
func (s *Store) Trades() []domain.ExecutedTrade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.trades)
}

func (s *Store) Close() error { return nil }

package domain

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-scanner/internal/apperror"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
)

// Book keeps only the latest valid ticker per (venue, symbol).
type Book struct {
	maxPrice decimal.Decimal

	mu          sync.RWMutex
	latest      map[Key]Ticker
	venueUpdate map[Venue]time.Time
	lastUpdate  time.Time
}

func NewBook(maxPrice decimal.Decimal) *Book {
	return &Book{
		maxPrice:    maxPrice,
		latest:      make(map[Key]Ticker),
		venueUpdate: make(map[Venue]time.Time),
	}
}

// Put stores t if it is valid and not older than the current value.
func (b *Book) Put(t Ticker) error {
	if err := t.Validate(b.maxPrice); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.latest[t.Key()]; ok && t.Timestamp.Before(prev.Timestamp) {
		return apperror.New(apperror.CodeInvalidTicker,
			apperror.WithContext(fmt.Sprintf("%s: timestamp regression %s < %s",
				t.Key(), t.Timestamp.Format(time.RFC3339Nano), prev.Timestamp.Format(time.RFC3339Nano))))
	}

	b.latest[t.Key()] = t
	if t.Timestamp.After(b.venueUpdate[t.Venue]) {
		b.venueUpdate[t.Venue] = t.Timestamp
	}
	if t.Timestamp.After(b.lastUpdate) {
		b.lastUpdate = t.Timestamp
	}
	return nil
}

// Filter narrows a snapshot. Empty fields match everything.
type Filter struct {
	Symbols   []instrument.Symbol
	Venues    []Venue
	NotBefore time.Time
}

func (f Filter) match(t Ticker) bool {
	if len(f.Symbols) > 0 && !slices.Contains(f.Symbols, t.Symbol) {
		return false
	}
	if len(f.Venues) > 0 && !slices.Contains(f.Venues, t.Venue) {
		return false
	}
	return f.NotBefore.IsZero() || !t.Timestamp.Before(f.NotBefore)
}

// Snapshot returns matching tickers ordered by venue then symbol.
func (b *Book) Snapshot(f Filter) []Ticker {
	b.mu.RLock()
	out := make([]Ticker, 0, len(b.latest))
	for _, t := range b.latest {
		if f.match(t) {
			out = append(out, t)
		}
	}
	b.mu.RUnlock()

	slices.SortFunc(out, func(a, b Ticker) int {
		if c := strings.Compare(string(a.Venue), string(b.Venue)); c != 0 {
			return c
		}
		return strings.Compare(a.Symbol.String(), b.Symbol.String())
	})
	return out
}

// Get returns the latest ticker for key.
func (b *Book) Get(k Key) (Ticker, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.latest[k]
	return t, ok
}

func (b *Book) LastUpdate() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate
}

// VenueUpdates returns the newest observation time per venue.
func (b *Book) VenueUpdates() map[Venue]time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[Venue]time.Time, len(b.venueUpdate))
	for v, ts := range b.venueUpdate {
		out[v] = ts
	}
	return out
}

func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.latest)
}

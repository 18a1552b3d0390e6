package app

import (
	"sync"
	"sync/atomic"

	"github.com/fd1az/arbitrage-scanner/business/risk/domain"
)

// ConfigStore holds the live risk configuration. Readers never block;
// updates are serialized and either fully apply or leave the prior
// configuration in place.
type ConfigStore struct {
	mu  sync.Mutex
	cur atomic.Pointer[domain.Configuration]
}

func NewConfigStore(cfg domain.Configuration) (*ConfigStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &ConfigStore{}
	c := cfg.Clone()
	s.cur.Store(&c)
	return s, nil
}

// Get returns the current configuration. Callers must not mutate its maps.
func (s *ConfigStore) Get() domain.Configuration { return *s.cur.Load() }

// Update applies u atomically and returns the configuration in effect
// afterwards.
func (s *ConfigStore) Update(u domain.Update) (domain.Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := *s.cur.Load()
	next, err := u.Apply(prev)
	if err != nil {
		return prev, err
	}
	s.cur.Store(&next)
	return next, nil
}

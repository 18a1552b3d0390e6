package simulated

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fd1az/arbitrage-scanner/business/marketdata/app"
	"github.com/fd1az/arbitrage-scanner/business/marketdata/domain"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
)

// Feed pushes Generator output into a sink on a fixed tick.
type Feed struct {
	gen    *Generator
	tick   time.Duration
	logger logger.LoggerInterface
	now    func() time.Time

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ app.Feed = (*Feed)(nil)

func NewFeed(cfg GeneratorConfig, tick time.Duration, log logger.LoggerInterface) *Feed {
	if tick <= 0 {
		tick = time.Second
	}
	return &Feed{
		gen:    NewGenerator(cfg),
		tick:   tick,
		logger: log,
		now:    time.Now,
	}
}

func (f *Feed) Name() string           { return "simulated" }
func (f *Feed) Venues() []domain.Venue { return f.gen.cfg.Venues }
func (f *Feed) Connected() bool        { return f.running.Load() }

// Start emits one round immediately, then one per tick.
func (f *Feed) Start(ctx context.Context, sink app.Sink) error {
	if !f.running.CompareAndSwap(false, true) {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f.cancel = cancel

	f.emit(runCtx, sink)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(f.tick)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				f.emit(runCtx, sink)
			}
		}
	}()

	f.logger.Info(ctx, "simulated feed started",
		"venues", len(f.gen.cfg.Venues),
		"symbols", len(f.gen.cfg.Symbols),
		"tick", f.tick)
	return nil
}

func (f *Feed) emit(ctx context.Context, sink app.Sink) {
	for _, t := range f.gen.Next(f.now()) {
		sink(ctx, t)
	}
}

func (f *Feed) Close() error {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
	f.running.Store(false)
	return nil
}

// Package monolith provides the application container and module interface.
package monolith

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/fd1az/arbitrage-scanner/internal/config"
	"github.com/fd1az/arbitrage-scanner/internal/di"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
)

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	Instruments() *instrument.Registry
	Services() di.ServiceRegistry
	// OnClose registers a shutdown hook. Hooks run in reverse order.
	OnClose(fn func() error)
}

// Module represents a bounded context module that can register services and start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

type app struct {
	config      *config.Config
	logger      logger.LoggerInterface
	instruments *instrument.Registry
	container   di.Container

	mu      sync.Mutex
	closers []func() error
}

// New creates a new Monolith instance.
func New(cfg *config.Config, log logger.LoggerInterface) (*app, error) {
	instruments := instrument.DefaultRegistry()

	container := di.NewContainer()

	container.Register("config", cfg)
	container.Register("logger", log)
	container.Register("instruments", instruments)

	return &app{
		config:      cfg,
		logger:      log,
		instruments: instruments,
		container:   container,
	}, nil
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) Instruments() *instrument.Registry {
	return a.instruments
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

// Container returns the DI container for module registration.
func (a *app) Container() di.Container {
	return a.container
}

func (a *app) OnClose(fn func() error) {
	a.mu.Lock()
	a.closers = append(a.closers, fn)
	a.mu.Unlock()
}

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Close runs the registered shutdown hooks, last registered first.
func (a *app) Close() error {
	a.mu.Lock()
	closers := slices.Clone(a.closers)
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for _, fn := range slices.Backward(closers) {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

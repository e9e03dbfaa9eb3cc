package vantage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/kode4food/vantage/module"
	"github.com/kode4food/vantage/provider"
	"github.com/kode4food/vantage/rpc"
	"github.com/kode4food/vantage/table"
	"github.com/kode4food/vantage/viewport"

	viewportImpl "github.com/kode4food/vantage/internal/viewport"
)

type (
	// Server owns the realized Modules of a process: it assembles them,
	// supervises their Providers, opens Viewports over their tables, and
	// routes RPC Requests to their handlers. The network transport that
	// carries subscriptions and requests to actual clients sits in front
	// of a Server and is outside this module's concern
	Server struct {
		clk     clock.Clock
		log     *slog.Logger
		mu      sync.RWMutex
		modules map[string]*module.Module
		runners []*provider.Runner
		started bool
	}

	// Option applies an option to a Server before it is used
	Option func(*Server) error
)

// Error messages
var (
	ErrUnknownModule   = errors.New("module not installed in server")
	ErrDuplicateModule = errors.New("module already installed in server")
)

// WithClock sets the clock exposed to Providers and Runners
func WithClock(c clock.Clock) Option {
	return func(s *Server) error {
		s.clk = c
		return nil
	}
}

// WithLogger sets the logger that receives operational alerts
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) error {
		s.log = l
		return nil
	}
}

// NewServer instantiates a new Server
func NewServer(o ...Option) (*Server, error) {
	s := &Server{
		clk:     clock.New(),
		log:     slog.Default(),
		modules: map[string]*module.Module{},
	}
	for _, opt := range o {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Clock exposes the Server's clock to provider and handler factories
func (s *Server) Clock() clock.Clock {
	return s.clk
}

// Install realizes a module Builder against this Server and registers
// the result. Installing after Start also starts the new Module's
// Providers
func (s *Server) Install(b module.Builder) (*module.Module, error) {
	m, err := b.AsModule(s)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modules[m.Name()]; ok {
		m.Close()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateModule, m.Name())
	}
	s.modules[m.Name()] = m
	if s.started {
		if err := s.startProviders(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Start spins up a supervised worker for every bound Provider
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	for _, m := range s.modules {
		if err := s.startProviders(m); err != nil {
			return err
		}
	}
	return nil
}

// Stop terminates every Provider worker and tears down every Module
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, r := range s.runners {
		if err := r.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	s.runners = nil
	for _, m := range s.modules {
		m.Close()
	}
	s.started = false
	return errors.Join(errs...)
}

// Module resolves an installed Module by name
func (s *Server) Module(name string) (*module.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.modules[name]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
}

// Table resolves a realized table within an installed Module
func (s *Server) Table(
	moduleName, tableName string,
) (table.Table, error) {
	m, err := s.Module(moduleName)
	if err != nil {
		return nil, err
	}
	return m.Get(tableName)
}

// Subscribe opens a live Viewport over a realized table or join
func (s *Server) Subscribe(
	moduleName, tableName string, set viewport.Settings,
) (viewport.Viewport, error) {
	t, err := s.Table(moduleName, tableName)
	if err != nil {
		return nil, err
	}
	return viewportImpl.Make(t, set)
}

// Dispatch routes an RPC Request to the named Module's Handler for its
// action
func (s *Server) Dispatch(
	ctx context.Context, moduleName string, req rpc.Request,
) (rpc.Response, error) {
	m, err := s.Module(moduleName)
	if err != nil {
		return rpc.Response{}, err
	}
	return m.Dispatch(ctx, req)
}

func (s *Server) startProviders(m *module.Module) error {
	providers := m.Providers()
	names := m.ProviderNames()
	for i, p := range providers {
		r, err := provider.StartRunner(names[i], p,
			provider.WithClock(s.clk),
			provider.WithLogger(s.log),
		)
		if err != nil {
			return err
		}
		s.runners = append(s.runners, r)
	}
	return nil
}

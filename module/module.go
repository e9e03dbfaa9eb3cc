package module

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/benbjohnson/clock"

	"github.com/kode4food/vantage/internal/sync/mutex"
	tableImpl "github.com/kode4food/vantage/internal/table"
	"github.com/kode4food/vantage/join"
	"github.com/kode4food/vantage/provider"
	"github.com/kode4food/vantage/rpc"
	"github.com/kode4food/vantage/table"

	joinImpl "github.com/kode4food/vantage/internal/join"
)

type (
	// Env is what the engine owner exposes to provider and handler
	// factories at realization time
	Env interface {
		Clock() clock.Clock
	}

	// ProviderFactory binds a Provider to its table. It is invoked
	// exactly once, when the module is realized
	ProviderFactory func(table.Table, Env) provider.Provider

	// HandlerFactory binds an RPC Handler to a realized Module
	HandlerFactory func(*Module) rpc.Handler

	// StaticResource is a static-content declaration carried through to
	// the serving layer untouched
	StaticResource struct {
		URIDirectory string
		Path         string
		CanBrowse    bool
	}

	// Builder accumulates the pieces of a Module. Builders are immutable
	// values: every Add method returns a new Builder, so independently
	// authored fragments can compose without trampling shared state
	Builder struct {
		namespace string
		tables    []tableBinding
		joins     []join.Producer
		handlers  []handlerBinding
		statics   []StaticResource
	}

	// Module is a named, frozen bundle of realized tables, joins, bound
	// providers, RPC handlers, and static resources. Nothing about a
	// Module changes for the life of the process
	Module struct {
		name      string
		arena     *arena
		providers []boundProvider
		handlers  map[string]rpc.Handler
		statics   []StaticResource
	}

	tableBinding struct {
		def      table.Definition
		provider ProviderFactory
	}

	handlerBinding struct {
		action  string
		factory HandlerFactory
	}

	boundProvider struct {
		name string
		p    provider.Provider
	}

	// arena is the append-only realization list. It is mutable only
	// while AsModule runs; once frozen its lock is bypassed entirely
	arena struct {
		mu   mutex.InitialMutex
		defs table.Definitions
		live map[string]table.Table
	}
)

// Error messages
var (
	ErrNoNamespace     = errors.New("module namespace not set")
	ErrDuplicateTable  = errors.New("table name duplicated in module")
	ErrDuplicateAction = errors.New("rpc action duplicated in module")
	ErrUnknownTable    = errors.New("table not defined in module")
)

// New instantiates an empty Builder
func New() Builder {
	return Builder{}
}

// WithNamespace returns a Builder whose Module will carry the provided
// name
func (b Builder) WithNamespace(name string) Builder {
	b.namespace = name
	return b
}

// AddTable returns a Builder that additionally realizes the provided
// table Definition, feeding it from the Provider the factory constructs.
// A nil factory declares a table fed only by RPC or join flow
func (b Builder) AddTable(
	def table.Definition, p ProviderFactory,
) Builder {
	b.tables = append(slices.Clip(b.tables), tableBinding{
		def:      def,
		provider: p,
	})
	return b
}

// AddJoinTable returns a Builder that additionally realizes the provided
// join Producer. Producers realize in declaration order against the
// definitions realized so far, so a join may build on the output of any
// join declared before it
func (b Builder) AddJoinTable(p join.Producer) Builder {
	b.joins = append(slices.Clip(b.joins), p)
	return b
}

// AddRpcHandler returns a Builder that additionally binds a Handler for
// the named action
func (b Builder) AddRpcHandler(action string, f HandlerFactory) Builder {
	b.handlers = append(slices.Clip(b.handlers), handlerBinding{
		action:  action,
		factory: f,
	})
	return b
}

// AddStaticResource returns a Builder that additionally declares static
// content for the serving layer
func (b Builder) AddStaticResource(
	uriDirectory, path string, canBrowse bool,
) Builder {
	b.statics = append(slices.Clip(b.statics), StaticResource{
		URIDirectory: uriDirectory,
		Path:         path,
		CanBrowse:    canBrowse,
	})
	return b
}

// AsModule realizes the accumulated definitions into a frozen Module.
// Base tables realize first, then join Producers in declaration order,
// each invoked with the append-only list realized so far. Any failure
// here is a configuration error and fatal to assembly
func (b Builder) AsModule(env Env) (*Module, error) {
	if b.namespace == "" {
		return nil, ErrNoNamespace
	}

	a := &arena{
		live: map[string]table.Table{},
	}
	for _, tb := range b.tables {
		if err := a.append(tb.def, tableImpl.Make(tb.def)); err != nil {
			a.teardown()
			return nil, err
		}
	}
	for _, p := range b.joins {
		spec, err := p(a.realized())
		if err != nil {
			a.teardown()
			return nil, err
		}
		left, ok := a.get(spec.Left)
		if !ok {
			a.teardown()
			return nil, fmt.Errorf("%w: %s", ErrUnknownTable, spec.Left)
		}
		right, ok := a.get(spec.Right)
		if !ok {
			a.teardown()
			return nil, fmt.Errorf("%w: %s", ErrUnknownTable, spec.Right)
		}
		jt := joinImpl.Make(spec, left, right)
		if err := a.append(spec.Definition, jt); err != nil {
			a.teardown()
			return nil, err
		}
	}
	a.freeze()

	m := &Module{
		name:     b.namespace,
		arena:    a,
		handlers: map[string]rpc.Handler{},
		statics:  slices.Clip(b.statics),
	}
	for _, hb := range b.handlers {
		if _, ok := m.handlers[hb.action]; ok {
			a.teardown()
			return nil, fmt.Errorf(
				"%w: %s", ErrDuplicateAction, hb.action,
			)
		}
		m.handlers[hb.action] = hb.factory(m)
	}
	for _, tb := range b.tables {
		if tb.provider == nil {
			continue
		}
		live, _ := a.get(tb.def.Name)
		m.providers = append(m.providers, boundProvider{
			name: b.namespace + "." + tb.def.Name,
			p:    tb.provider(live, env),
		})
	}
	return m, nil
}

// Name returns the Module's namespace
func (m *Module) Name() string {
	return m.name
}

// Get resolves a realized table by name. An unknown name is a
// configuration error; nothing recovers it at runtime
func (m *Module) Get(name string) (table.Table, error) {
	if t, ok := m.arena.get(name); ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrUnknownTable, m.name, name)
}

// Tables returns the names of all realized tables in realization order
func (m *Module) Tables() []string {
	defs := m.arena.realized()
	res := make([]string, len(defs))
	for i, d := range defs {
		res[i] = d.Name
	}
	return res
}

// Definitions returns the realized definition list
func (m *Module) Definitions() table.Definitions {
	return m.arena.realized()
}

// Providers returns each bound Provider along with its qualified name
func (m *Module) Providers() []provider.Provider {
	res := make([]provider.Provider, len(m.providers))
	for i, bp := range m.providers {
		res[i] = bp.p
	}
	return res
}

// ProviderNames returns the qualified name of each bound Provider
func (m *Module) ProviderNames() []string {
	res := make([]string, len(m.providers))
	for i, bp := range m.providers {
		res[i] = bp.name
	}
	return res
}

// Dispatch routes a Request to the Handler bound for its action
func (m *Module) Dispatch(
	ctx context.Context, req rpc.Request,
) (rpc.Response, error) {
	h, ok := m.handlers[req.Action]
	if !ok {
		return rpc.Response{}, fmt.Errorf(
			"%w: %s.%s", rpc.ErrUnknownAction, m.name, req.Action,
		)
	}
	return h.Dispatch(ctx, req)
}

// StaticResources returns the Module's static-content declarations
func (m *Module) StaticResources() []StaticResource {
	return slices.Clip(m.statics)
}

// Close tears down every realized table, joins before their sources
func (m *Module) Close() {
	m.arena.teardown()
}

func (a *arena) append(def table.Definition, live table.Table) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.live[def.Name]; ok {
		live.Close()
		return fmt.Errorf("%w: %s", ErrDuplicateTable, def.Name)
	}
	a.defs = append(a.defs, def)
	a.live[def.Name] = live
	return nil
}

func (a *arena) realized() table.Definitions {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.defs[:len(a.defs):len(a.defs)]
}

func (a *arena) get(name string) (table.Table, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.live[name]
	return t, ok
}

func (a *arena) freeze() {
	a.mu.DisableLock()
}

func (a *arena) teardown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.defs) - 1; i >= 0; i-- {
		a.live[a.defs[i].Name].Close()
	}
}

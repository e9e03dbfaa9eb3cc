package viewport

import (
	"sync"
	"sync/atomic"

	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"

	"github.com/kode4food/vantage/closer"
	"github.com/kode4food/vantage/column"
	"github.com/kode4food/vantage/internal/events"
	"github.com/kode4food/vantage/message"
	"github.com/kode4food/vantage/table"
	"github.com/kode4food/vantage/viewport"
)

type (
	// Viewport is the internal implementation of a viewport.Viewport. A
	// single routine per Viewport consumes table change notifications
	// and client parameter changes, so no two recomputations for the
	// same Viewport ever run concurrently, while distinct Viewports over
	// the same table proceed fully in parallel
	Viewport struct {
		closer.Closer
		id     uuid.UUID
		tbl    table.Table
		events message.ClosingReceiver[table.Event]

		controls chan control
		out      *events.Stream[viewport.Delta]
		deltas   message.ClosingReceiver[viewport.Delta]
		state    atomic.Int32

		// requested is the last validated Settings, shared between the
		// Set methods and the engine routine
		rmu       sync.Mutex
		requested viewport.Settings

		// visible is the last computed, projected window
		vmu     sync.Mutex
		visible []table.Row

		// engine-routine state
		settings    viewport.Settings
		filter      *vm.Program
		window      []entry
		index       map[string]int
		lastVersion uint64
	}

	control struct {
		settings viewport.Settings
		filter   *vm.Program
	}

	// entry is one visible row before projection. eval carries the
	// fields used for filter and sort evaluation
	entry struct {
		key     string
		version uint64
		fields  table.Fields
		eval    map[string]any
	}
)

// Make instantiates a live Viewport over the provided table. The
// Settings are validated up front; the initial window arrives as a
// WindowReplaced Delta once the engine routine spins up
func Make(
	tbl table.Table, s viewport.Settings,
) (*Viewport, error) {
	filter, err := validate(tbl, s)
	if err != nil {
		return nil, err
	}

	out := events.Make(coalesceDeltas)
	ev := tbl.Events()
	v := &Viewport{
		id:        uuid.New(),
		tbl:       tbl,
		events:    ev,
		controls:  make(chan control),
		out:       out,
		deltas:    out.Subscribe(),
		requested: s,
		settings:  s,
		filter:    filter,
		index:     map[string]int{},
	}
	v.state.Store(int32(viewport.Created))
	v.Closer = closer.Make(func() {
		v.state.Store(int32(viewport.Closed))
		ev.Close()
		out.Close()
	})
	go v.run()
	return v, nil
}

func (v *Viewport) ID() uuid.UUID {
	return v.id
}

func (v *Viewport) State() viewport.State {
	return viewport.State(v.state.Load())
}

func (v *Viewport) Deltas() <-chan viewport.Delta {
	return v.deltas.Receive()
}

// SetRange changes the visible row Range
func (v *Viewport) SetRange(r viewport.Range) error {
	return v.change(func(s *viewport.Settings) {
		s.Range = r
	})
}

// SetFilter changes the filter expression
func (v *Viewport) SetFilter(f string) error {
	return v.change(func(s *viewport.Settings) {
		s.Filter = f
	})
}

// SetSort changes the Sort order
func (v *Viewport) SetSort(sort viewport.Sort) error {
	return v.change(func(s *viewport.Settings) {
		s.Sort = sort
	})
}

// SetColumns changes the projected column Set
func (v *Viewport) SetColumns(c *column.Set) error {
	return v.change(func(s *viewport.Settings) {
		s.Columns = c
	})
}

// Window returns the currently visible, projected window
func (v *Viewport) Window() []table.Row {
	v.vmu.Lock()
	defer v.vmu.Unlock()
	res := make([]table.Row, len(v.visible))
	copy(res, v.visible)
	return res
}

// change validates a Settings mutation synchronously, leaving the
// Viewport in its prior state on failure, then hands the new Settings to
// the engine routine
func (v *Viewport) change(fn func(*viewport.Settings)) error {
	if closer.IsClosed(v) {
		return viewport.ErrViewportClosed
	}

	v.rmu.Lock()
	next := v.requested
	fn(&next)
	filter, err := validate(v.tbl, next)
	if err != nil {
		v.rmu.Unlock()
		return err
	}
	v.requested = next
	v.rmu.Unlock()

	select {
	case <-v.IsClosed():
		return viewport.ErrViewportClosed
	case v.controls <- control{settings: next, filter: filter}:
		return nil
	}
}

func (v *Viewport) run() {
	v.recompute(true)
	v.state.CompareAndSwap(int32(viewport.Created), int32(viewport.Active))

	for {
		select {
		case <-v.IsClosed():
			return
		case c := <-v.controls:
			v.state.CompareAndSwap(
				int32(viewport.Active), int32(viewport.Updating),
			)
			v.settings = c.settings
			v.filter = c.filter
			v.recompute(true)
			v.state.CompareAndSwap(
				int32(viewport.Updating), int32(viewport.Active),
			)
		case _, ok := <-v.events.Receive():
			if !ok {
				// table teardown
				v.Close()
				return
			}
			v.recompute(false)
		}
	}
}

// recompute takes a consistent snapshot of the table, derives the new
// visible window, and emits either a full WindowReplaced Delta or the
// incremental Deltas between the old window and the new one. Delta
// versions never decrease because the snapshot version can only advance
// between recomputations
func (v *Viewport) recompute(replace bool) {
	rows, version := v.tbl.Snapshot()
	if version < v.lastVersion {
		version = v.lastVersion
	}
	v.lastVersion = version

	win := computeWindow(rows, v.settings, v.filter, v.columns())
	if replace {
		projected := v.project(win)
		v.publish(viewport.Delta{
			Kind:    viewport.WindowReplaced,
			Version: version,
			Rows:    projected,
		})
		v.store(win, projected)
		return
	}

	deltas := v.diff(win, version)
	for _, d := range deltas {
		v.publish(d)
	}
	v.store(win, v.project(win))
}

func (v *Viewport) columns() *column.Set {
	if v.settings.Columns != nil {
		return v.settings.Columns
	}
	return v.tbl.Columns()
}

func (v *Viewport) store(win []entry, projected []table.Row) {
	v.window = win
	index := make(map[string]int, len(win))
	for i, e := range win {
		index[e.key] = i
	}
	v.index = index

	v.vmu.Lock()
	v.visible = projected
	v.vmu.Unlock()
}

func (v *Viewport) publish(d viewport.Delta) {
	if closer.IsClosed(v) {
		return
	}
	v.out.Publish(d)
}

// coalesceDeltas keeps a slow client's pending queue bounded: a
// WindowReplaced supersedes everything before it, and at most one row
// Delta is pending per key, folded so the client still observes a
// coherent add/update/remove sequence. The stale entry is removed and
// the folded result appended, so drain order remains version order
func coalesceDeltas(
	pending []viewport.Delta, next viewport.Delta,
) []viewport.Delta {
	if next.Kind == viewport.WindowReplaced {
		return append(pending[:0], next)
	}
	for i, prev := range pending {
		if prev.Kind == viewport.WindowReplaced ||
			prev.Row.Key != next.Row.Key {
			continue
		}
		pending = append(pending[:i], pending[i+1:]...)
		if prev.Kind == viewport.RowAdded {
			if next.Kind == viewport.RowRemoved {
				// never seen; drop both
				return pending
			}
			next.Kind = viewport.RowAdded
		}
		break
	}
	return append(pending, next)
}

package join

import (
	"fmt"
	"sync"

	"github.com/kode4food/vantage/closer"
	"github.com/kode4food/vantage/column"
	"github.com/kode4food/vantage/internal/events"
	"github.com/kode4food/vantage/join"
	"github.com/kode4food/vantage/message"
	"github.com/kode4food/vantage/table"
)

// Table is the live realization of a join.Spec. It satisfies table.Table
// but owns no rows of its own authority: its content is derived from the
// two underlying tables, a joined row becoming visible once both sides
// match and disappearing when either side's row is deleted. Join tables
// are read-only; mutation flows through the underlying tables
type Table struct {
	closer.Closer
	spec  join.Spec
	left  table.Table
	right table.Table
	out   *events.Stream[table.Event]

	mu         sync.RWMutex
	rows       map[string]table.Row
	byLeft     map[string]string
	wantByLeft map[string]string
	byWant     map[string]map[string]struct{}
	version    uint64
}

// Make realizes a live join Table over the two underlying tables named by
// the Spec. Existing rows are joined immediately; subsequent changes on
// either side flow through as they arrive
func Make(spec join.Spec, left, right table.Table) *Table {
	out := events.Make(
		events.LatestByKey(func(e table.Event) string {
			return e.Key
		}),
	)
	t := &Table{
		spec:       spec,
		left:       left,
		right:      right,
		out:        out,
		rows:       map[string]table.Row{},
		byLeft:     map[string]string{},
		wantByLeft: map[string]string{},
		byWant:     map[string]map[string]struct{}{},
	}

	leftEvents := left.Events()
	rightEvents := right.Events()
	t.Closer = closer.Make(func() {
		leftEvents.Close()
		rightEvents.Close()
		out.Close()
	})

	rows, _ := left.Snapshot()
	for _, r := range rows {
		t.applyLeft(r.Key)
	}
	go t.pump(leftEvents, rightEvents)
	return t
}

func (t *Table) Name() string {
	return t.spec.Definition.Name
}

func (t *Table) KeyColumn() string {
	return t.spec.Definition.KeyColumn
}

func (t *Table) Columns() *column.Set {
	return t.spec.Definition.Columns
}

func (t *Table) Get(key string) (table.Row, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rows[key]
	return r, ok
}

// Upsert always fails; join tables derive their rows
func (t *Table) Upsert(string, table.Fields) (uint64, error) {
	return 0, fmt.Errorf("%w: %s", table.ErrReadOnly, t.Name())
}

// Delete always fails; join tables derive their rows
func (t *Table) Delete(string) (uint64, error) {
	return 0, fmt.Errorf("%w: %s", table.ErrReadOnly, t.Name())
}

func (t *Table) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

func (t *Table) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	res := make([]string, 0, len(t.rows))
	for k := range t.rows {
		res = append(res, k)
	}
	return res
}

func (t *Table) Snapshot() ([]table.Row, uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	res := make([]table.Row, 0, len(t.rows))
	for _, r := range t.rows {
		res = append(res, r)
	}
	return res, t.version
}

func (t *Table) Events() message.ClosingReceiver[table.Event] {
	return t.out.Subscribe()
}

func (t *Table) pump(
	left, right message.ClosingReceiver[table.Event],
) {
	for {
		select {
		case <-t.IsClosed():
			return
		case e, ok := <-left.Receive():
			if !ok {
				return
			}
			t.applyLeft(e.Key)
		case e, ok := <-right.Receive():
			if !ok {
				return
			}
			t.applyRight(e.Key)
		}
	}
}

// applyLeft reconciles the joined row derived from a single left-side key
// against the current state of both underlying tables
func (t *Table) applyLeft(lk string) {
	lrow, ok := t.left.Get(lk)

	t.mu.Lock()
	var out []table.Event
	if !ok {
		t.forgetWant(lk)
		out = t.removeJoined(lk, out)
		t.mu.Unlock()
		t.publish(out)
		return
	}

	rk := keyString(lrow.Fields[t.spec.ForeignKey])
	if prev, ok := t.wantByLeft[lk]; ok && prev != rk {
		t.forgetWant(lk)
		out = t.removeJoined(lk, out)
	}
	t.wantByLeft[lk] = rk
	if _, ok := t.byWant[rk]; !ok {
		t.byWant[rk] = map[string]struct{}{}
	}
	t.byWant[rk][lk] = struct{}{}

	if rrow, ok := t.right.Get(rk); ok {
		out = t.upsertJoined(lk, lrow, rk, rrow, out)
	} else {
		out = t.removeJoined(lk, out)
	}
	t.mu.Unlock()
	t.publish(out)
}

// applyRight reconciles every joined row that depends on a single
// right-side key
func (t *Table) applyRight(rk string) {
	t.mu.RLock()
	lks := make([]string, 0, len(t.byWant[rk]))
	for lk := range t.byWant[rk] {
		lks = append(lks, lk)
	}
	t.mu.RUnlock()

	for _, lk := range lks {
		t.applyLeft(lk)
	}
}

func (t *Table) forgetWant(lk string) {
	if rk, ok := t.wantByLeft[lk]; ok {
		delete(t.wantByLeft, lk)
		if set, ok := t.byWant[rk]; ok {
			delete(set, lk)
			if len(set) == 0 {
				delete(t.byWant, rk)
			}
		}
	}
}

func (t *Table) removeJoined(
	lk string, out []table.Event,
) []table.Event {
	ck, ok := t.byLeft[lk]
	if !ok {
		return out
	}
	delete(t.byLeft, lk)
	delete(t.rows, ck)
	t.version++
	return append(out, table.Event{
		Key:     ck,
		Kind:    table.RowRemoved,
		Version: t.version,
	})
}

func (t *Table) upsertJoined(
	lk string, lrow table.Row, rk string, rrow table.Row,
	out []table.Event,
) []table.Event {
	ck := join.CompositeKey(lk, rk)
	if prev, ok := t.byLeft[lk]; ok && prev != ck {
		out = t.removeJoined(lk, out)
	}

	fields := make(table.Fields, len(lrow.Fields)+len(rrow.Fields))
	for k, v := range rrow.Fields {
		fields[k] = v
	}
	for k, v := range lrow.Fields {
		fields[k] = v
	}

	kind := table.RowAdded
	if _, ok := t.rows[ck]; ok {
		kind = table.RowUpdated
	}
	t.version++
	t.rows[ck] = table.Row{
		Key:     ck,
		Version: t.version,
		Fields:  fields,
	}
	t.byLeft[lk] = ck
	return append(out, table.Event{
		Key:     ck,
		Kind:    kind,
		Version: t.version,
	})
}

func (t *Table) publish(out []table.Event) {
	for _, e := range out {
		t.out.Publish(e)
	}
}

func keyString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

package table

import (
	"fmt"
	"sync"

	"github.com/kode4food/vantage/closer"
	"github.com/kode4food/vantage/column"
	"github.com/kode4food/vantage/internal/events"
	"github.com/kode4food/vantage/message"
	"github.com/kode4food/vantage/table"
)

// Table is the internal implementation of a live table.Table. Rows are
// exclusively owned; every mutation stamps the table-wide version onto
// the affected row and is published to subscribed listeners. Concurrent
// writers to the same key are serialized by arrival order
type Table struct {
	closer.Closer
	def     table.Definition
	rows    map[string]table.Row
	out     *events.Stream[table.Event]
	version uint64
	mu      sync.RWMutex
}

// Make realizes a live Table from the provided Definition
func Make(def table.Definition) *Table {
	out := events.Make(
		events.LatestByKey(func(e table.Event) string {
			return e.Key
		}),
	)
	t := &Table{
		def:  def,
		rows: map[string]table.Row{},
		out:  out,
	}
	t.Closer = closer.Make(out.Close)
	return t
}

func (t *Table) Name() string {
	return t.def.Name
}

func (t *Table) KeyColumn() string {
	return t.def.KeyColumn
}

func (t *Table) Columns() *column.Set {
	return t.def.Columns
}

// Get returns the Row stored under the provided key. The returned Row's
// fields are shared and must be treated as read-only
func (t *Table) Get(key string) (table.Row, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rows[key]
	return r, ok
}

// Upsert inserts the provided fields under the key, merging them into any
// row already stored there. The new row becomes visible atomically at the
// stamped version; readers never observe a partially-applied row
func (t *Table) Upsert(key string, fields table.Fields) (uint64, error) {
	cols := t.def.Columns
	for name := range fields {
		if c, ok := cols.ForName(name); !ok || c.IsCalculated() {
			return 0, fmt.Errorf("%w: %s", table.ErrUnknownColumn, name)
		}
	}

	t.mu.Lock()
	prev, existed := t.rows[key]
	var next table.Fields
	if existed {
		next = prev.Fields.Copy()
		for k, v := range fields {
			next[k] = v
		}
	} else {
		next = fields.Copy()
	}
	if _, ok := next[t.def.KeyColumn]; !ok {
		next[t.def.KeyColumn] = key
	}
	t.version++
	v := t.version
	t.rows[key] = table.Row{
		Key:     key,
		Version: v,
		Fields:  next,
	}
	t.mu.Unlock()

	kind := table.RowAdded
	if existed {
		kind = table.RowUpdated
	}
	t.out.Publish(table.Event{
		Key:     key,
		Kind:    kind,
		Version: v,
	})
	return v, nil
}

// Delete removes the Row stored under the provided key
func (t *Table) Delete(key string) (uint64, error) {
	t.mu.Lock()
	if _, ok := t.rows[key]; !ok {
		t.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", table.ErrKeyNotFound, key)
	}
	delete(t.rows, key)
	t.version++
	v := t.version
	t.mu.Unlock()

	t.out.Publish(table.Event{
		Key:     key,
		Kind:    table.RowRemoved,
		Version: v,
	})
	return v, nil
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

// Snapshot returns a copy of all Rows taken at a single table version.
// Field maps are shared with the table and must be treated as read-only
func (t *Table) Snapshot() ([]table.Row, uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	res := make([]table.Row, 0, len(t.rows))
	for _, r := range t.rows {
		res = append(res, r)
	}
	return res, t.version
}

// Events returns a new independent listener over this Table's change
// notifications. Pending notifications for the same key coalesce to the
// latest when the listener lags
func (t *Table) Events() message.ClosingReceiver[table.Event] {
	return t.out.Subscribe()
}

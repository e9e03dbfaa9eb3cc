package viewport

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/expr-lang/expr/vm"

	"github.com/kode4food/vantage/column"
	"github.com/kode4food/vantage/table"
	"github.com/kode4food/vantage/viewport"
)

// computeWindow filters, sorts, and slices a table snapshot down to the
// visible window. Filter and sort evaluate against physical fields plus
// any calculated columns declared sortable; projection of the remaining
// calculated columns waits until a row is actually emitted
func computeWindow(
	rows []table.Row, s viewport.Settings, filter *vm.Program,
	cols *column.Set,
) []entry {
	res := make([]entry, 0, len(rows))
	for _, r := range rows {
		fields := cols.EvalFields(r.Fields)
		if filter != nil && !matches(filter, fields) {
			continue
		}
		res = append(res, entry{
			key:     r.Key,
			version: r.Version,
			fields:  r.Fields,
			eval:    fields,
		})
	}

	slices.SortStableFunc(res, func(a, b entry) int {
		for _, k := range s.Sort {
			c := compareValues(a.eval[k.Column], b.eval[k.Column])
			if k.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return strings.Compare(a.key, b.key)
	})

	lo := min(max(s.Range.From, 0), len(res))
	hi := min(max(s.Range.To, lo), len(res))
	return res[lo:hi]
}

func matches(filter *vm.Program, fields map[string]any) bool {
	res, err := vm.Run(filter, fields)
	if err != nil {
		return false
	}
	b, ok := res.(bool)
	return ok && b
}

// diff derives the incremental Deltas between the previous window and
// the new one: removals first, then additions, updates, and rank moves
// in window order
func (v *Viewport) diff(
	win []entry, version uint64,
) []viewport.Delta {
	index := make(map[string]int, len(win))
	for i, e := range win {
		index[e.key] = i
	}

	var res []viewport.Delta
	for i, e := range v.window {
		if _, ok := index[e.key]; !ok {
			res = append(res, viewport.Delta{
				Kind:    viewport.RowRemoved,
				Version: version,
				Index:   i,
				Row:     table.Row{Key: e.key},
			})
		}
	}
	for i, e := range win {
		old, ok := v.index[e.key]
		switch {
		case !ok:
			res = append(res, v.rowDelta(
				viewport.RowAdded, version, i, e,
			))
		case v.window[old].version != e.version:
			res = append(res, v.rowDelta(
				viewport.RowUpdated, version, i, e,
			))
		case old != i:
			res = append(res, v.rowDelta(
				viewport.RowMoved, version, i, e,
			))
		}
	}
	return res
}

func (v *Viewport) rowDelta(
	kind viewport.DeltaKind, version uint64, i int, e entry,
) viewport.Delta {
	return viewport.Delta{
		Kind:    kind,
		Version: version,
		Index:   i,
		Row:     v.projectRow(e),
	}
}

func (v *Viewport) project(win []entry) []table.Row {
	res := make([]table.Row, len(win))
	for i, e := range win {
		res[i] = v.projectRow(e)
	}
	return res
}

// projectRow pulls an entry's fields through the projected column Set,
// evaluating calculated columns. When the Set has no calculated columns
// the source fields flow through untouched
func (v *Viewport) projectRow(e entry) table.Row {
	fields, err := v.columns().PullRow(e.fields)
	if err != nil {
		slog.Debug("viewport projection failed",
			"viewport", v.id,
			"key", e.key,
			"error", err,
		)
		fields = e.fields
	}
	return table.Row{
		Key:     e.key,
		Version: e.version,
		Fields:  fields,
	}
}

// compareValues imposes a total order over heterogeneous field values:
// numerics compare numerically, strings lexically, booleans false-first,
// nil before everything, and anything else by its printed form
func compareValues(a, b any) int {
	if a == nil || b == nil {
		return boolCompare(a != nil, b != nil)
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return cmp.Compare(fa, fb)
		}
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.Compare(sa, sb)
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return boolCompare(ba, bb)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func boolCompare(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	default:
		return -1
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

package column

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Set is an ordered, append-only sequence of Columns. Two Sets are equal
// when they carry the same (name, type) membership regardless of order.
// Whether a Set carries calculated Columns is memoized, since it is
// consulted on every row emission
type Set struct {
	mu         sync.RWMutex
	columns    []Column
	index      map[string]int
	calculated []int
}

// Error messages
var (
	ErrDuplicateColumn = errors.New("column name duplicated in set")
)

// MakeSet instantiates a new Set from the provided Columns
func MakeSet(cols ...Column) (*Set, error) {
	s := &Set{
		index: map[string]int{},
	}
	for _, c := range cols {
		if err := s.Append(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Append adds a Column to the end of the Set. Re-adding an identical
// Column is harmless; adding a Column whose name collides with a
// differing Column fails. Columns are never removed, so outstanding row
// projections remain valid
func (s *Set) Append(c Column) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[c.name]; ok {
		prev := s.columns[i]
		if prev.dataType == c.dataType &&
			prev.expression == c.expression {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrDuplicateColumn, c.name)
	}
	s.index[c.name] = len(s.columns)
	if c.IsCalculated() {
		s.calculated = append(s.calculated, len(s.columns))
	}
	s.columns = append(s.columns, c)
	return nil
}

// Exists returns whether the named Column is part of this Set
func (s *Set) Exists(name string) bool {
	_, ok := s.ForName(name)
	return ok
}

// ForName resolves a Column by name. A name carrying the CalcPrefix
// resolves only to a calculated Column; an undecorated name resolves to
// whatever Column was registered under it
func (s *Set) ForName(name string) (Column, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rest, ok := strings.CutPrefix(name, CalcPrefix); ok {
		if i, ok := s.index[rest]; ok && s.columns[i].IsCalculated() {
			return s.columns[i], true
		}
		return Column{}, false
	}
	if i, ok := s.index[name]; ok {
		return s.columns[i], true
	}
	return Column{}, false
}

// Columns returns the Set's Columns in declaration order
func (s *Set) Columns() []Column {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.columns[:len(s.columns):len(s.columns)]
}

// Names returns the Set's Column names in declaration order
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]string, len(s.columns))
	for i, c := range s.columns {
		res[i] = c.name
	}
	return res
}

// Len returns the number of Columns in the Set
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.columns)
}

// HasCalculated returns whether this Set carries any calculated Columns
func (s *Set) HasCalculated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.calculated) != 0
}

// PullRow projects the fields of a source row through this Set. When the
// Set has no calculated Columns the source fields are returned untouched,
// avoiding any copying. Otherwise a new field map is produced containing
// exactly this Set's Columns, calculated values evaluated against the
// full source row
func (s *Set) PullRow(fields map[string]any) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.calculated) == 0 {
		return fields, nil
	}
	res := make(map[string]any, len(s.columns))
	for _, c := range s.columns {
		v, err := c.Eval(fields)
		if err != nil {
			return nil, err
		}
		res[c.name] = v
	}
	return res, nil
}

// EvalFields returns the source fields augmented with the values of the
// Set's sortable calculated Columns, for use in filter and sort
// evaluation. Non-sortable calculated Columns are deliberately excluded;
// a sortable Column whose expression fails to evaluate is logged and
// omitted
func (s *Set) EvalFields(fields map[string]any) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.calculated) == 0 {
		return fields
	}
	var res map[string]any
	for _, i := range s.calculated {
		c := s.columns[i]
		if !c.sortable {
			continue
		}
		if res == nil {
			res = make(map[string]any, len(fields)+len(s.calculated))
			for k, v := range fields {
				res[k] = v
			}
		}
		if v, err := c.Eval(fields); err == nil {
			res[c.name] = v
		} else {
			slog.Debug("column evaluation failed",
				"column", c.name,
				"error", err,
			)
		}
	}
	if res == nil {
		return fields
	}
	return res
}

// Equal returns whether two Sets carry the same (name, type) membership,
// independent of declaration order
func (s *Set) Equal(other *Set) bool {
	if s == other {
		return true
	}
	left := s.Columns()
	right := other.Columns()
	if len(left) != len(right) {
		return false
	}
	types := make(map[string]DataType, len(left))
	for _, c := range left {
		types[c.name] = c.dataType
	}
	for _, c := range right {
		t, ok := types[c.name]
		if !ok || t != c.dataType {
			return false
		}
	}
	return true
}

// MergeSets produces a new Set carrying the union of two Sets' Columns.
// Name conflicts resolve in favor of the left Set
func MergeSets(left, right *Set) *Set {
	res := &Set{
		index: map[string]int{},
	}
	for _, c := range left.Columns() {
		_ = res.Append(c)
	}
	for _, c := range right.Columns() {
		if !res.Exists(c.name) {
			_ = res.Append(c)
		}
	}
	return res
}

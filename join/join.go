package join

import (
	"errors"
	"fmt"

	"github.com/kode4food/vantage/column"
	"github.com/kode4food/vantage/table"
)

type (
	// Spec describes how two previously realized tables combine into a
	// virtual join table. The joined column Set is the union of both
	// sides, conflicts resolving in favor of the left table. Rows of the
	// join are keyed by a composite of the constituent keys
	Spec struct {
		Definition table.Definition
		Left       string
		Right      string
		ForeignKey string
	}

	// Producer realizes a join Spec against the list of definitions
	// realized so far. Because the list is append-only and Producers run
	// in declaration order, a Producer may depend on the output of any
	// join declared before it, and on nothing declared after
	Producer func(defs table.Definitions) (Spec, error)
)

// Error messages
var (
	ErrUnknownDependency = errors.New("join dependency not realized")
	ErrUnknownForeignKey = errors.New("join foreign key column not defined")
)

// KeySeparator joins the constituent keys of a joined row
const KeySeparator = "|"

// To returns a Producer that joins the named left table to the named
// right table, matching the left table's foreignKey column against the
// right table's row key
func To(name, left, right, foreignKey string) Producer {
	return func(defs table.Definitions) (Spec, error) {
		l, ok := defs.Get(left)
		if !ok {
			return Spec{}, fmt.Errorf(
				"%w: %s requires %s", ErrUnknownDependency, name, left,
			)
		}
		r, ok := defs.Get(right)
		if !ok {
			return Spec{}, fmt.Errorf(
				"%w: %s requires %s", ErrUnknownDependency, name, right,
			)
		}
		if !l.Columns.Exists(foreignKey) {
			return Spec{}, fmt.Errorf(
				"%w: %s in %s", ErrUnknownForeignKey, foreignKey, left,
			)
		}
		return Spec{
			Definition: table.Definition{
				Name:      name,
				KeyColumn: l.KeyColumn,
				Columns:   column.MergeSets(l.Columns, r.Columns),
			},
			Left:       left,
			Right:      right,
			ForeignKey: foreignKey,
		}, nil
	}
}

// CompositeKey derives a joined row's key from its constituent keys
func CompositeKey(left, right string) string {
	return left + KeySeparator + right
}

package viewport

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"

	"github.com/kode4food/vantage/table"
	"github.com/kode4food/vantage/viewport"
)

// validate rejects bad Settings synchronously, before they ever reach
// the engine routine. It returns the compiled filter program, reused for
// every subsequent row evaluation
func validate(
	tbl table.Table, s viewport.Settings,
) (*vm.Program, error) {
	if s.Range.From < 0 || s.Range.To < s.Range.From {
		return nil, fmt.Errorf("%w: [%d, %d)",
			viewport.ErrInvalidRange, s.Range.From, s.Range.To,
		)
	}

	cols := tbl.Columns()
	for _, k := range s.Sort {
		c, ok := cols.ForName(k.Column)
		if !ok || !c.IsSortable() {
			return nil, fmt.Errorf("%w: %s",
				viewport.ErrUnknownSortColumn, k.Column,
			)
		}
	}

	if s.Filter == "" {
		return nil, nil
	}
	tree, err := parser.Parse(s.Filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", viewport.ErrBadFilter, err)
	}
	v := &identifiers{}
	ast.Walk(&tree.Node, v)
	for _, name := range v.names {
		c, ok := cols.ForName(name)
		if !ok || !c.IsSortable() {
			return nil, fmt.Errorf("%w: %s",
				viewport.ErrUnknownFilterColumn, name,
			)
		}
	}
	p, err := expr.Compile(s.Filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", viewport.ErrBadFilter, err)
	}
	return p, nil
}

// identifiers collects the column names a filter expression references
type identifiers struct {
	names []string
}

func (v *identifiers) Visit(node *ast.Node) {
	if n, ok := (*node).(*ast.IdentifierNode); ok {
		v.names = append(v.names, n.Value)
	}
}

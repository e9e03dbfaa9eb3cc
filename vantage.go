package vantage

import (
	"github.com/kode4food/vantage/column"
	"github.com/kode4food/vantage/module"
	"github.com/kode4food/vantage/table"
	"github.com/kode4food/vantage/viewport"

	tableImpl "github.com/kode4food/vantage/internal/table"
	viewportImpl "github.com/kode4food/vantage/internal/viewport"
)

// NewModule instantiates an empty module Builder
func NewModule() module.Builder {
	return module.New()
}

// NewTableDef instantiates an immutable table Definition from the
// provided key column and Columns
func NewTableDef(
	name, keyColumn string, cols ...column.Column,
) (table.Definition, error) {
	set, err := column.MakeSet(cols...)
	if err != nil {
		return table.Definition{}, err
	}
	return table.Definition{
		Name:      name,
		KeyColumn: keyColumn,
		Columns:   set,
	}, nil
}

// NewTable realizes a standalone live Table from a Definition, outside
// of any Module
func NewTable(def table.Definition) table.Table {
	return tableImpl.Make(def)
}

// NewViewport opens a live Viewport directly over a Table
func NewViewport(
	tbl table.Table, s viewport.Settings,
) (viewport.Viewport, error) {
	return viewportImpl.Make(tbl, s)
}

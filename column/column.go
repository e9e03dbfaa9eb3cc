package column

import (
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

type (
	// DataType is the primitive type tag carried by a Column. Values of a
	// Column are not coerced; the tag drives comparison and projection
	DataType int

	// Column describes a single column of a Set. A Column is either
	// physical (its value is stored on the row) or calculated (its value
	// is computed from the other columns of the same row and is never
	// stored). Columns are immutable values
	Column struct {
		name       string
		dataType   DataType
		expression string
		program    *vm.Program
		sortable   bool
	}
)

// Recognized DataType tags
const (
	String DataType = iota
	Int
	Long
	Double
	Boolean
	Char
)

// CalcPrefix marks a column reference as naming a calculated Column
const CalcPrefix = "="

// Error messages
var (
	ErrUnknownDataType = errors.New("unknown column data type")
	ErrBadExpression   = errors.New("cannot compile column expression")
	ErrMalformedColumn = errors.New("malformed calculated column")
)

var typeNames = map[DataType]string{
	String:  "string",
	Int:     "int",
	Long:    "long",
	Double:  "double",
	Boolean: "boolean",
	Char:    "char",
}

// Make instantiates a new physical Column
func Make(name string, t DataType) Column {
	return Column{
		name:     name,
		dataType: t,
	}
}

// MakeCalculated instantiates a calculated Column. The expression is
// compiled exactly once, here; evaluation reuses the compiled program
func MakeCalculated(name string, t DataType, src string) (Column, error) {
	p, err := expr.Compile(src)
	if err != nil {
		return Column{}, fmt.Errorf("%w: %s: %w", ErrBadExpression, name, err)
	}
	return Column{
		name:       name,
		dataType:   t,
		expression: src,
		program:    p,
	}, nil
}

// Parse turns a textual "name:type:expression" declaration into a
// calculated Column
func Parse(spec string) (Column, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 {
		return Column{}, fmt.Errorf("%w: %s", ErrMalformedColumn, spec)
	}
	t, err := ParseDataType(parts[1])
	if err != nil {
		return Column{}, err
	}
	return MakeCalculated(parts[0], t, parts[2])
}

// ParseDataType resolves a textual type tag to its DataType
func ParseDataType(s string) (DataType, error) {
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownDataType, s)
}

func (t DataType) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("datatype(%d)", int(t))
}

// Name returns the Column's name. Names are case-sensitive
func (c Column) Name() string {
	return c.name
}

// Type returns the Column's DataType tag
func (c Column) Type() DataType {
	return c.dataType
}

// IsCalculated returns whether this Column carries an expression
func (c Column) IsCalculated() bool {
	return c.program != nil
}

// IsSortable returns whether a calculated Column participates in filter
// and sort evaluation. Physical columns always participate
func (c Column) IsSortable() bool {
	return !c.IsCalculated() || c.sortable
}

// AsSortable returns a copy of this Column that participates in filter
// and sort evaluation
func (c Column) AsSortable() Column {
	c.sortable = true
	return c
}

// Eval computes the value of a calculated Column against the full set of
// fields of a source row. Physical columns read their stored value
func (c Column) Eval(fields map[string]any) (any, error) {
	if c.program == nil {
		return fields[c.name], nil
	}
	res, err := expr.Run(c.program, fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBadExpression, c.name, err)
	}
	return res, nil
}

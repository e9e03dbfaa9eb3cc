package column_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/vantage/column"
)

func TestMake(t *testing.T) {
	as := assert.New(t)

	c := column.Make("qty", column.Int)
	as.Equal("qty", c.Name())
	as.Equal(column.Int, c.Type())
	as.False(c.IsCalculated())
	as.True(c.IsSortable())
}

func TestMakeCalculated(t *testing.T) {
	as := assert.New(t)

	c, err := column.MakeCalculated("total", column.Double, "qty * price")
	as.NoError(err)
	as.True(c.IsCalculated())
	as.False(c.IsSortable())

	v, err := c.Eval(map[string]any{"qty": 4, "price": 2.5})
	as.NoError(err)
	as.Equal(10.0, v)
}

func TestBadExpression(t *testing.T) {
	as := assert.New(t)

	_, err := column.MakeCalculated("oops", column.Int, "qty +")
	as.ErrorIs(err, column.ErrBadExpression)
}

func TestParse(t *testing.T) {
	as := assert.New(t)

	c, err := column.Parse("doubled:long:qty * 2")
	as.NoError(err)
	as.Equal("doubled", c.Name())
	as.Equal(column.Long, c.Type())
	as.True(c.IsCalculated())

	v, err := c.Eval(map[string]any{"qty": 5})
	as.NoError(err)
	as.Equal(10, v)
}

func TestParseErrors(t *testing.T) {
	as := assert.New(t)

	_, err := column.Parse("name-only")
	as.ErrorIs(err, column.ErrMalformedColumn)

	_, err = column.Parse("c:decimal:qty * 2")
	as.ErrorIs(err, column.ErrUnknownDataType)
}

func TestSortableCopy(t *testing.T) {
	as := assert.New(t)

	c, err := column.MakeCalculated("total", column.Int, "qty * 2")
	as.NoError(err)

	s := c.AsSortable()
	as.True(s.IsSortable())
	as.False(c.IsSortable(), "original column is untouched")
}

func TestDataTypeNames(t *testing.T) {
	as := assert.New(t)

	as.Equal("string", column.String.String())
	as.Equal("boolean", column.Boolean.String())

	dt, err := column.ParseDataType("double")
	as.NoError(err)
	as.Equal(column.Double, dt)
}

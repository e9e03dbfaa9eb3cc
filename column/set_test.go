package column_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/vantage/column"

	helpers "github.com/kode4food/vantage/internal/testing"
)

func TestSetAppend(t *testing.T) {
	as := assert.New(t)

	s, err := column.MakeSet(
		column.Make("id", column.String),
		column.Make("qty", column.Int),
	)
	as.NoError(err)
	as.Equal(2, s.Len())
	as.Equal([]string{"id", "qty"}, s.Names())

	// re-adding an identical column is harmless
	as.NoError(s.Append(column.Make("qty", column.Int)))
	as.Equal(2, s.Len())

	// a differing column under the same name is not
	err = s.Append(column.Make("qty", column.Double))
	as.ErrorIs(err, column.ErrDuplicateColumn)
}

func TestSetCalculatedCollision(t *testing.T) {
	as := assert.New(t)

	s, err := column.MakeSet(column.Make("qty", column.Int))
	as.NoError(err)

	c, err := column.MakeCalculated("qty", column.Int, "qty * 2")
	as.NoError(err)
	as.ErrorIs(s.Append(c), column.ErrDuplicateColumn)
}

func TestSetForName(t *testing.T) {
	as := assert.New(t)

	calc, err := column.MakeCalculated("doubled", column.Int, "qty * 2")
	as.NoError(err)
	s, err := column.MakeSet(column.Make("qty", column.Int), calc)
	as.NoError(err)

	c, ok := s.ForName("qty")
	as.True(ok)
	as.False(c.IsCalculated())

	// the "=" form resolves only calculated columns
	c, ok = s.ForName("=doubled")
	as.True(ok)
	as.True(c.IsCalculated())

	_, ok = s.ForName("=qty")
	as.False(ok)

	_, ok = s.ForName("missing")
	as.False(ok)
	as.True(s.Exists("doubled"))
	as.False(s.Exists("missing"))
}

func TestSetEqualityIgnoresOrder(t *testing.T) {
	as := assert.New(t)

	a, err := column.MakeSet(
		column.Make("id", column.String),
		column.Make("qty", column.Int),
	)
	as.NoError(err)
	b, err := column.MakeSet(
		column.Make("qty", column.Int),
		column.Make("id", column.String),
	)
	as.NoError(err)
	c, err := column.MakeSet(
		column.Make("id", column.String),
		column.Make("qty", column.Long),
	)
	as.NoError(err)

	as.True(a.Equal(b))
	as.True(b.Equal(a))
	as.False(a.Equal(c))
}

func TestPullRowFastPath(t *testing.T) {
	as := assert.New(t)

	s, err := column.MakeSet(
		column.Make("id", column.String),
		column.Make("qty", column.Int),
	)
	as.NoError(err)
	as.False(s.HasCalculated())

	fields := map[string]any{"id": "1", "qty": 5}
	res, err := s.PullRow(fields)
	as.NoError(err)

	// no calculated columns means the very same map comes back
	res["sentinel"] = true
	as.Contains(fields, "sentinel")
}

func TestPullRowProjection(t *testing.T) {
	as := assert.New(t)

	calc, err := column.MakeCalculated("calc", column.Int, "qty * 2")
	as.NoError(err)
	s, err := column.MakeSet(column.Make("qty", column.Int), calc)
	as.NoError(err)
	as.True(s.HasCalculated())

	fields := map[string]any{"qty": 5}
	res, err := s.PullRow(fields)
	as.NoError(err)
	as.Equal(map[string]any{"qty": 5, "calc": 10}, res)

	// the source row is untouched
	as.Equal(map[string]any{"qty": 5}, fields)
}

func TestEvalFields(t *testing.T) {
	as := assert.New(t)

	hidden, err := column.MakeCalculated("hidden", column.Int, "qty * 2")
	as.NoError(err)
	shown, err := column.MakeCalculated("shown", column.Int, "qty * 3")
	as.NoError(err)
	s, err := column.MakeSet(
		column.Make("qty", column.Int),
		hidden,
		shown.AsSortable(),
	)
	as.NoError(err)

	fields := map[string]any{"qty": 2}
	res := s.EvalFields(fields)
	as.Equal(6, res["shown"])
	as.NotContains(res, "hidden")
	as.Equal(2, res["qty"])
}

func TestEvalFieldsLogsFailure(t *testing.T) {
	as := assert.New(t)

	bad, err := column.MakeCalculated("bad", column.Int, "len(qty)")
	as.NoError(err)
	s, err := column.MakeSet(
		column.Make("qty", column.Int),
		bad.AsSortable(),
	)
	as.NoError(err)

	handler := helpers.NewTestSlogHandler()
	prev := slog.Default()
	slog.SetDefault(slog.New(handler))
	defer slog.SetDefault(prev)

	// the failed column is omitted, but never silently
	fields := map[string]any{"qty": 2}
	res := s.EvalFields(fields)
	as.NotContains(res, "bad")
	as.Equal(2, res["qty"])

	rec := <-handler.Logs
	as.Equal(slog.LevelDebug, rec.Level)
	as.Equal("column evaluation failed", rec.Message)
}

func TestMergeSets(t *testing.T) {
	as := assert.New(t)

	left, err := column.MakeSet(
		column.Make("id", column.String),
		column.Make("side", column.String),
	)
	as.NoError(err)
	right, err := column.MakeSet(
		column.Make("side", column.Int),
		column.Make("price", column.Double),
	)
	as.NoError(err)

	merged := column.MergeSets(left, right)
	as.Equal([]string{"id", "side", "price"}, merged.Names())

	c, ok := merged.ForName("side")
	as.True(ok)
	as.Equal(column.String, c.Type(), "left side wins conflicts")
}

package join_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/vantage/column"
	"github.com/kode4food/vantage/join"
	"github.com/kode4food/vantage/message"
	"github.com/kode4food/vantage/table"

	joinImpl "github.com/kode4food/vantage/internal/join"
	tableImpl "github.com/kode4food/vantage/internal/table"
)

type fixture struct {
	orders table.Table
	prices table.Table
	joined table.Table
}

func makeFixture(t *testing.T) *fixture {
	t.Helper()
	as := assert.New(t)

	orderCols, err := column.MakeSet(
		column.Make("id", column.String),
		column.Make("instrument", column.String),
		column.Make("qty", column.Int),
	)
	as.NoError(err)
	priceCols, err := column.MakeSet(
		column.Make("instrument", column.String),
		column.Make("price", column.Double),
	)
	as.NoError(err)

	orders := tableImpl.Make(table.Definition{
		Name:      "orders",
		KeyColumn: "id",
		Columns:   orderCols,
	})
	prices := tableImpl.Make(table.Definition{
		Name:      "prices",
		KeyColumn: "instrument",
		Columns:   priceCols,
	})

	p := join.To("orderPrices", "orders", "prices", "instrument")
	spec, err := p(table.Definitions{
		{Name: "orders", KeyColumn: "id", Columns: orderCols},
		{Name: "prices", KeyColumn: "instrument", Columns: priceCols},
	})
	as.NoError(err)

	joined := joinImpl.Make(spec, orders, prices)
	t.Cleanup(func() {
		joined.Close()
		prices.Close()
		orders.Close()
	})
	return &fixture{orders: orders, prices: prices, joined: joined}
}

func waitForCount(t *testing.T, tbl table.Table, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for tbl.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("table %s never reached %d rows", tbl.Name(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestVisibleOnceBothSidesMatch(t *testing.T) {
	as := assert.New(t)
	f := makeFixture(t)

	_, err := f.orders.Upsert("1", table.Fields{
		"instrument": "VOD.L", "qty": 100,
	})
	as.NoError(err)
	time.Sleep(20 * time.Millisecond)
	as.Equal(0, f.joined.Count(), "one-sided rows stay invisible")

	_, err = f.prices.Upsert("VOD.L", table.Fields{"price": 1.25})
	as.NoError(err)
	waitForCount(t, f.joined, 1)

	r, ok := f.joined.Get("1|VOD.L")
	as.True(ok)
	as.Equal(100, r.Fields["qty"])
	as.Equal(1.25, r.Fields["price"])
	as.Equal("VOD.L", r.Fields["instrument"])
}

func TestSeededFromExistingRows(t *testing.T) {
	as := assert.New(t)

	f := makeFixture(t)
	_, err := f.prices.Upsert("VOD.L", table.Fields{"price": 1.25})
	as.NoError(err)
	_, err = f.orders.Upsert("1", table.Fields{
		"instrument": "VOD.L", "qty": 100,
	})
	as.NoError(err)
	waitForCount(t, f.joined, 1)
}

func TestRemovedWhenEitherSideDeletes(t *testing.T) {
	as := assert.New(t)
	f := makeFixture(t)

	_, err := f.orders.Upsert("1", table.Fields{
		"instrument": "VOD.L", "qty": 100,
	})
	as.NoError(err)
	_, err = f.prices.Upsert("VOD.L", table.Fields{"price": 1.25})
	as.NoError(err)
	waitForCount(t, f.joined, 1)

	_, err = f.prices.Delete("VOD.L")
	as.NoError(err)
	waitForCount(t, f.joined, 0)

	_, err = f.prices.Upsert("VOD.L", table.Fields{"price": 1.30})
	as.NoError(err)
	waitForCount(t, f.joined, 1)

	_, err = f.orders.Delete("1")
	as.NoError(err)
	waitForCount(t, f.joined, 0)
}

func TestForeignKeyChangeRetargets(t *testing.T) {
	as := assert.New(t)
	f := makeFixture(t)

	_, err := f.prices.Upsert("VOD.L", table.Fields{"price": 1.25})
	as.NoError(err)
	_, err = f.prices.Upsert("BT.L", table.Fields{"price": 2.50})
	as.NoError(err)
	_, err = f.orders.Upsert("1", table.Fields{
		"instrument": "VOD.L", "qty": 100,
	})
	as.NoError(err)
	waitForCount(t, f.joined, 1)

	_, err = f.orders.Upsert("1", table.Fields{"instrument": "BT.L"})
	as.NoError(err)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if r, ok := f.joined.Get("1|BT.L"); ok {
			as.Equal(2.50, r.Fields["price"])
			as.Equal(100, r.Fields["qty"])
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("join never retargeted")
		}
		time.Sleep(time.Millisecond)
	}
	_, ok := f.joined.Get("1|VOD.L")
	as.False(ok)
}

func TestJoinIsReadOnly(t *testing.T) {
	as := assert.New(t)
	f := makeFixture(t)

	_, err := f.joined.Upsert("1|VOD.L", table.Fields{"qty": 1})
	as.ErrorIs(err, table.ErrReadOnly)
	_, err = f.joined.Delete("1|VOD.L")
	as.ErrorIs(err, table.ErrReadOnly)
}

func TestJoinEmitsEvents(t *testing.T) {
	as := assert.New(t)
	f := makeFixture(t)

	ev := f.joined.Events()
	defer ev.Close()

	_, err := f.orders.Upsert("1", table.Fields{
		"instrument": "VOD.L", "qty": 100,
	})
	as.NoError(err)
	_, err = f.prices.Upsert("VOD.L", table.Fields{"price": 1.25})
	as.NoError(err)

	e, ok := message.Poll(ev, 2*time.Second)
	as.True(ok)
	as.Equal(table.RowAdded, e.Kind)
	as.Equal("1|VOD.L", e.Key)

	_, err = f.prices.Delete("VOD.L")
	as.NoError(err)
	e, ok = message.Poll(ev, 2*time.Second)
	as.True(ok)
	as.Equal(table.RowRemoved, e.Kind)
}

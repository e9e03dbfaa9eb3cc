package vantage_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"

	"github.com/kode4food/vantage"
	"github.com/kode4food/vantage/column"
	"github.com/kode4food/vantage/join"
	"github.com/kode4food/vantage/module"
	"github.com/kode4food/vantage/provider"
	"github.com/kode4food/vantage/rpc"
	"github.com/kode4food/vantage/table"
	"github.com/kode4food/vantage/viewport"
)

func marketModule(t *testing.T) module.Builder {
	t.Helper()
	as := assert.New(t)

	orders, err := vantage.NewTableDef("orders", "id",
		column.Make("id", column.String),
		column.Make("instrument", column.String),
		column.Make("qty", column.Int),
	)
	as.NoError(err)
	prices, err := vantage.NewTableDef("prices", "instrument",
		column.Make("instrument", column.String),
		column.Make("price", column.Double),
	)
	as.NoError(err)

	return vantage.NewModule().
		WithNamespace("market").
		AddTable(orders, seedOrders).
		AddTable(prices, nil).
		AddJoinTable(join.To(
			"orderPrices", "orders", "prices", "instrument",
		)).
		AddRpcHandler("orderCount", func(m *module.Module) rpc.Handler {
			return rpc.HandlerFunc(func(
				_ context.Context, req rpc.Request,
			) (rpc.Response, error) {
				tbl, err := m.Get("orders")
				if err != nil {
					return rpc.Response{}, err
				}
				return rpc.Response{
					Action: req.Action,
					Body:   tbl.Count(),
				}, nil
			})
		})
}

func seedOrders(tbl table.Table, _ module.Env) provider.Provider {
	return provider.Func(func(ctx context.Context) error {
		_, err := tbl.Upsert("1", table.Fields{
			"instrument": "VOD.L", "qty": 100,
		})
		if err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	})
}

func newServer(t *testing.T) *vantage.Server {
	t.Helper()
	s, err := vantage.NewServer(vantage.WithClock(clock.NewMock()))
	assert.NoError(t, err)
	return s
}

func TestServerLifecycle(t *testing.T) {
	as := assert.New(t)

	s := newServer(t)
	m, err := s.Install(marketModule(t))
	as.NoError(err)
	as.Equal("market", m.Name())

	_, err = s.Install(marketModule(t))
	as.ErrorIs(err, vantage.ErrDuplicateModule)

	as.NoError(s.Start())
	as.NoError(s.Start(), "starting twice is harmless")

	// the seeding provider populates the table
	orders, err := s.Table("market", "orders")
	as.NoError(err)
	deadline := time.Now().Add(2 * time.Second)
	for orders.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("provider never seeded the table")
		}
		time.Sleep(time.Millisecond)
	}

	as.NoError(s.Stop())
}

func TestServerResolution(t *testing.T) {
	as := assert.New(t)

	s := newServer(t)
	_, err := s.Install(marketModule(t))
	as.NoError(err)
	defer func() { _ = s.Stop() }()

	m, err := s.Module("market")
	as.NoError(err)
	as.Equal(
		[]string{"orders", "prices", "orderPrices"}, m.Tables(),
	)

	_, err = s.Module("nope")
	as.ErrorIs(err, vantage.ErrUnknownModule)

	_, err = s.Table("market", "nope")
	as.ErrorIs(err, module.ErrUnknownTable)
}

func TestServerSubscribe(t *testing.T) {
	as := assert.New(t)

	s := newServer(t)
	_, err := s.Install(marketModule(t))
	as.NoError(err)
	as.NoError(s.Start())
	defer func() { _ = s.Stop() }()

	vp, err := s.Subscribe("market", "orders", viewport.Settings{
		Range: viewport.Range{From: 0, To: 10},
	})
	as.NoError(err)
	defer vp.Close()

	// the seeded row eventually shows up in the window
	deadline := time.Now().Add(2 * time.Second)
	for {
		select {
		case d := <-vp.Deltas():
			if len(d.Rows) == 1 || d.Kind == viewport.RowAdded {
				return
			}
		case <-time.After(time.Until(deadline)):
			t.Fatal("never saw the seeded row")
		}
	}
}

func TestServerDispatch(t *testing.T) {
	as := assert.New(t)

	s := newServer(t)
	_, err := s.Install(marketModule(t))
	as.NoError(err)
	defer func() { _ = s.Stop() }()

	res, err := s.Dispatch(
		context.Background(), "market",
		rpc.Request{Action: "orderCount"},
	)
	as.NoError(err)
	as.Equal("orderCount", res.Action)
	as.Equal(0, res.Body)

	_, err = s.Dispatch(
		context.Background(), "nope", rpc.Request{Action: "orderCount"},
	)
	as.ErrorIs(err, vantage.ErrUnknownModule)
}

func TestStandaloneTableAndViewport(t *testing.T) {
	as := assert.New(t)

	def, err := vantage.NewTableDef("quotes", "sym",
		column.Make("sym", column.String),
		column.Make("bid", column.Double),
	)
	as.NoError(err)

	tbl := vantage.NewTable(def)
	defer tbl.Close()

	_, err = tbl.Upsert("VOD.L", table.Fields{"bid": 1.25})
	as.NoError(err)

	vp, err := vantage.NewViewport(tbl, viewport.Settings{
		Range: viewport.Range{From: 0, To: 10},
	})
	as.NoError(err)
	defer vp.Close()

	select {
	case d := <-vp.Deltas():
		as.Equal(viewport.WindowReplaced, d.Kind)
		as.Len(d.Rows, 1)
		as.Equal(1.25, d.Rows[0].Fields["bid"])
	case <-time.After(2 * time.Second):
		t.Fatal("no initial window")
	}
}

package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rustyeddy/papertrader/errs"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runSession drives an engine through an open, a close and a second open and
// returns the resulting state and ledger.
func runSession(t *testing.T) (portfolio.State, []journal.TradeRecord) {
	t.Helper()

	ctx := context.Background()
	e, j := newEngine(t, "1000", 0.001)

	_, err := e.Apply(ctx, t0, "C1", longEntry("SOL", "1", "90", "120", 1, "10"), snap("SOL", "100"))
	require.NoError(t, err)
	_, err = e.Apply(ctx, t0, "C1", longEntry("ETH", "0.01", "2900", "3300", 2, "0.5"), snap("ETH", "3000"))
	require.NoError(t, err)
	_, err = e.CheckTriggers(ctx, t0.Add(3*time.Minute), "C2", map[string]decimal.Decimal{"SOL": dec("121")})
	require.NoError(t, err)

	trades, err := j.ListTrades(ctx, journal.Query{})
	require.NoError(t, err)
	return e.State(), trades
}

func TestReplayMatchesEngine(t *testing.T) {
	t.Parallel()

	st, trades := runSession(t)
	require.Len(t, trades, 3)

	got, err := Replay(dec("1000"), trades)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(st.Balance))
	assert.Equal(t, st.Assets(), got.Assets())
	assert.Equal(t, st.Version, got.Version)
	assert.True(t, got.UpdatedAt.Equal(st.UpdatedAt))
	assert.True(t, got.Equal(st))

	eth, ok := got.Position("ETH")
	require.True(t, ok)
	assert.Equal(t, "close below 85", eth.InvalidationCondition)
}

func TestReplayRejectsInconsistentLedger(t *testing.T) {
	t.Parallel()

	_, trades := runSession(t)

	_, err := Replay(dec("1000"), append(trades[:0:0], trades[2]))
	assert.Error(t, err, "close on flat asset")

	dup := append([]journal.TradeRecord{}, trades[0], trades[0])
	_, err = Replay(dec("1000"), dup)
	assert.Error(t, err, "entry on open asset")
}

func TestReplaySameInstantClosesFirst(t *testing.T) {
	t.Parallel()

	t1 := t0.Add(3 * time.Minute)
	row := func(id string, at time.Time, action journal.Action) journal.TradeRecord {
		r := journal.TradeRecord{
			ID: id, Time: at, Asset: "SOL", Action: action, Side: market.Long,
			Quantity: dec("1"), Price: dec("100"), StopLoss: dec("90"), ProfitTarget: dec("120"),
			Leverage: 1, RiskUSD: dec("10"), Invalidation: "close below 85",
		}
		if action.Closing() {
			r.Price = dec("88")
			r.RealizedPnL = decimal.NewNullDecimal(dec("-12"))
			r.Fees = decimal.NewNullDecimal(dec("0.188"))
		}
		return r
	}

	// the re-entry sorts ahead of the stop by ID
	ledger := []journal.TradeRecord{
		row("03", t0, journal.ActionEntry),
		row("01", t1, journal.ActionEntry),
		row("02", t1, journal.ActionStopLoss),
	}

	got, err := Replay(dec("1000"), ledger)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("987.812")), got.Balance.String())
	pos, ok := got.Position("SOL")
	require.True(t, ok)
	assert.Equal(t, "01", pos.TradeID)
	assert.Equal(t, "close below 85", pos.InvalidationCondition)
	assert.Equal(t, "03", ledger[0].ID, "input is not reordered")
}

func TestReconcile(t *testing.T) {
	t.Parallel()

	st, trades := runSession(t)
	initial := dec("1000")
	tol := dec("0.01")

	t.Run("fresh start", func(t *testing.T) {
		r, err := Reconcile(portfolio.State{}, portfolio.ErrEmpty, nil, initial, tol)
		require.NoError(t, err)
		assert.Equal(t, FromInitial, r.Source)
		assert.NoError(t, r.Warning)
		assert.True(t, r.State.Balance.Equal(initial))
	})

	t.Run("snapshot agrees", func(t *testing.T) {
		r, err := Reconcile(st, nil, trades, initial, tol)
		require.NoError(t, err)
		assert.Equal(t, FromSnapshot, r.Source)
		assert.NoError(t, r.Warning)
		assert.True(t, r.State.Equal(st))
	})

	t.Run("snapshot missing", func(t *testing.T) {
		r, err := Reconcile(portfolio.State{}, portfolio.ErrEmpty, trades, initial, tol)
		require.NoError(t, err)
		assert.Equal(t, FromLedger, r.Source)
		assert.True(t, errs.IsKind(r.Warning, errs.Reconciliation))
		assert.True(t, r.State.Balance.Equal(st.Balance))
	})

	t.Run("snapshot corrupt", func(t *testing.T) {
		r, err := Reconcile(portfolio.State{}, errors.New("bad json"), trades, initial, tol)
		require.NoError(t, err)
		assert.Equal(t, FromLedger, r.Source)
		assert.Error(t, r.Warning)
	})

	t.Run("snapshot corrupt without ledger", func(t *testing.T) {
		_, err := Reconcile(portfolio.State{}, errors.New("bad json"), nil, initial, tol)
		require.Error(t, err)
		assert.True(t, errs.IsKind(err, errs.Reconciliation))
	})

	t.Run("balance drift", func(t *testing.T) {
		drifted := st.Clone()
		drifted.Balance = drifted.Balance.Add(dec("5"))
		r, err := Reconcile(drifted, nil, trades, initial, tol)
		require.NoError(t, err)
		assert.Equal(t, FromLedger, r.Source)
		assert.True(t, r.State.Balance.Equal(st.Balance))
		assert.Error(t, r.Warning)
	})

	t.Run("balance within tolerance", func(t *testing.T) {
		near := st.Clone()
		near.Balance = near.Balance.Add(dec("0.005"))
		r, err := Reconcile(near, nil, trades, initial, tol)
		require.NoError(t, err)
		assert.Equal(t, FromSnapshot, r.Source)
	})

	t.Run("position drift", func(t *testing.T) {
		drifted := st.Clone()
		delete(drifted.Positions, "ETH")
		r, err := Reconcile(drifted, nil, trades, initial, tol)
		require.NoError(t, err)
		assert.Equal(t, FromLedger, r.Source)
		assert.Equal(t, []string{"ETH"}, r.State.Assets())
	})

	t.Run("ledger broken keeps snapshot", func(t *testing.T) {
		r, err := Reconcile(st, nil, trades[2:], initial, tol)
		require.NoError(t, err)
		assert.Equal(t, FromSnapshot, r.Source)
		assert.Error(t, r.Warning)
	})
}

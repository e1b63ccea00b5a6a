package journal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rustyeddy/papertrader/errs"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	for _, table := range []string{"trades", "decisions", "messages", "equity", "portfolio_state"} {
		assert.True(t, found[table], table)
	}
}

func TestSQLiteAddsInvalidationColumn(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "old.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE trades (
		id TEXT PRIMARY KEY, cycle_id TEXT NOT NULL, ts INTEGER NOT NULL, asset TEXT NOT NULL,
		action TEXT NOT NULL, side TEXT NOT NULL, quantity TEXT NOT NULL, price TEXT NOT NULL,
		realized_pnl TEXT, fees TEXT, balance_after TEXT NOT NULL, stop_loss TEXT NOT NULL,
		profit_target TEXT NOT NULL, leverage INTEGER NOT NULL, risk_usd TEXT NOT NULL,
		confidence REAL NOT NULL, reason TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO trades VALUES ('01OLD', 'C0', 0, 'BTC', 'ENTRY', 'long', '1', '100',
		NULL, NULL, '1000', '90', '120', 1, '10', 0.5, 'old row')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	j, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	old, err := j.GetTrade(ctx, "01OLD")
	require.NoError(t, err)
	assert.Empty(t, old.Invalidation)

	require.NoError(t, j.RecordTrade(ctx, entryRecord("01A", "SOL", t0)))
	got, err := j.GetTrade(ctx, "01A")
	require.NoError(t, err)
	assert.Equal(t, "close below 85", got.Invalidation)
}

func TestSQLiteTradeRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j, _ := newTestSQLite(t)

	open := entryRecord("01A", "SOL", t0)
	closed := closeRecord("01B", "SOL", t0.Add(3*time.Minute), ActionStopLoss)
	require.NoError(t, j.RecordTrade(ctx, open))
	require.NoError(t, j.RecordTrade(ctx, closed))

	got, err := j.GetTrade(ctx, "01B")
	require.NoError(t, err)
	assert.Equal(t, ActionStopLoss, got.Action)
	assert.Equal(t, market.Long, got.Side)
	assert.True(t, got.Time.Equal(closed.Time))
	assert.True(t, got.Price.Equal(dec("88")))
	require.True(t, got.RealizedPnL.Valid)
	assert.True(t, got.RealizedPnL.Decimal.Equal(dec("-12")))
	assert.True(t, got.Fees.Decimal.Equal(dec("0.188")))
	assert.True(t, got.BalanceAfter.Equal(dec("987.812")))

	got, err = j.GetTrade(ctx, "01A")
	require.NoError(t, err)
	assert.False(t, got.RealizedPnL.Valid)
	assert.False(t, got.Fees.Valid)
	assert.Equal(t, 1, got.Leverage)
	assert.Equal(t, "trend up", got.Reason)
	assert.Equal(t, "close below 85", got.Invalidation)

	_, err = j.GetTrade(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteDuplicateWritesIgnored(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j, _ := newTestSQLite(t)

	rec := entryRecord("01A", "SOL", t0)
	require.NoError(t, j.RecordTrade(ctx, rec))
	require.NoError(t, j.RecordTrade(ctx, rec))

	d := decisionRecord("C1", "ETH", t0)
	require.NoError(t, j.RecordDecision(ctx, d))
	require.NoError(t, j.RecordDecision(ctx, d))

	e := equitySample("C1", t0, "1000")
	require.NoError(t, j.RecordEquity(ctx, e))
	require.NoError(t, j.RecordEquity(ctx, e))

	trades, err := j.ListTrades(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, trades, 1)

	decs, err := j.ListDecisions(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, decs, 1)
	assert.Equal(t, errs.RiskExceeded, decs[0].Kind)

	eq, err := j.ListEquity(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, eq, 1)
}

func TestSQLiteMessages(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j, _ := newTestSQLite(t)

	require.NoError(t, j.RecordMessage(ctx, MessageRecord{
		Time:     t0,
		CycleID:  "C1",
		Model:    "deepseek-chat",
		Request:  "req",
		Response: "resp",
		Latency:  1500 * time.Millisecond,
	}))

	msgs, err := j.ListMessages(ctx, Query{CycleID: "C1"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "deepseek-chat", msgs[0].Model)
	assert.Equal(t, 1500*time.Millisecond, msgs[0].Latency)
	assert.True(t, msgs[0].Time.Equal(t0))
}

func TestSQLiteStateStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j, _ := newTestSQLite(t)

	_, err := j.Load(ctx)
	assert.ErrorIs(t, err, portfolio.ErrEmpty)

	s := portfolio.New(dec("1000"))
	s.Positions["SOL"] = &portfolio.Position{
		Asset:        "SOL",
		Side:         market.Long,
		Quantity:     dec("1"),
		EntryPrice:   dec("100"),
		StopLoss:     dec("90"),
		ProfitTarget: dec("120"),
		Leverage:     1,
		RiskUSD:      dec("10"),
		OpenedAt:     t0,
		TradeID:      "01A",
	}
	s.Version = 1
	s.UpdatedAt = t0
	require.NoError(t, j.Save(ctx, s))

	s.Version = 2
	s.Balance = dec("990")
	require.NoError(t, j.Save(ctx, s))

	got, err := j.Load(ctx)
	require.NoError(t, err)
	assert.True(t, s.Equal(got))
}

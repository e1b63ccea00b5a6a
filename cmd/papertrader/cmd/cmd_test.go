package cmd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/papertrader/config"
	"github.com/rustyeddy/papertrader/errs"
	"github.com/rustyeddy/papertrader/internal/logx"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/metrics"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/scheduler"
	"github.com/rustyeddy/papertrader/sim"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Journal.DBPath = filepath.Join(dir, "db", "papertrader.db")
	cfg.Journal.CSVDir = filepath.Join(dir, "csv")
	cfg.Store.Path = filepath.Join(dir, "portfolio.json")
	return cfg
}

func TestOpenStoresFileState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig(t)
	log := logrus.NewEntry(logx.Discard())

	st, err := openStores(ctx, cfg, log, true)
	require.NoError(t, err)

	_, isMulti := st.journal.(*journal.Multi)
	assert.True(t, isMulti, "csv mirror wraps the primary")
	_, isFile := st.state.(*portfolio.FileStore)
	assert.True(t, isFile)

	require.NoError(t, st.journal.RecordEquity(ctx, journal.EquitySample{CycleID: "C1", Time: t0}))
	require.NoError(t, st.Close())

	assert.FileExists(t, filepath.Join(cfg.Journal.CSVDir, "equity.csv"))

	st, err = openStores(ctx, cfg, log, false)
	require.NoError(t, err)
	defer st.Close()
	eq, err := st.journal.ListEquity(ctx, journal.Query{})
	require.NoError(t, err)
	assert.Len(t, eq, 1)
}

func TestOpenStoresSQLiteState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Store.Type = config.StoreSQLite
	cfg.Journal.CSVDir = ""

	st, err := openStores(ctx, cfg, logrus.NewEntry(logx.Discard()), true)
	require.NoError(t, err)
	defer st.Close()

	_, isLite := st.state.(*journal.SQLite)
	assert.True(t, isLite)
	_, err = st.state.Load(ctx)
	assert.ErrorIs(t, err, portfolio.ErrEmpty)
}

func TestOpenLoopHoldOracle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Oracle.Provider = "hold"

	l, err := openLoop(ctx, cfg, logrus.NewEntry(logx.Discard()))
	require.NoError(t, err)
	defer l.Close()

	assert.NotNil(t, l.sched)
	assert.Nil(t, l.hub)
	assert.True(t, l.engine.State().Balance.Equal(cfg.Account.InitialBalance))

	saved, err := l.state.Load(ctx)
	require.NoError(t, err, "first start writes the initial state")
	assert.True(t, saved.Balance.Equal(cfg.Account.InitialBalance))
}

func TestRenderStatus(t *testing.T) {
	t.Parallel()

	st := portfolio.New(decimal.NewFromInt(1000))
	out := renderStatus(st, nil, nil)
	assert.Contains(t, out, "no open positions")
	assert.Contains(t, out, "1000.00")

	st.Positions["SOL"] = &portfolio.Position{
		Asset:                 "SOL",
		Side:                  market.Long,
		Quantity:              decimal.NewFromInt(1),
		EntryPrice:            decimal.NewFromInt(100),
		StopLoss:              decimal.NewFromInt(90),
		ProfitTarget:          decimal.NewFromInt(120),
		Leverage:              1,
		InvalidationCondition: "close below 85",
	}
	out = renderStatus(st, &journal.EquitySample{CycleID: "C9", ReturnPct: 1.5},
		map[string]decimal.Decimal{"SOL": decimal.NewFromInt(110)})
	assert.Contains(t, out, "SOL")
	assert.Contains(t, out, "+10.00")
	assert.Contains(t, out, "close below 85")
	assert.Contains(t, out, "C9")
}

func TestRenderCycle(t *testing.T) {
	t.Parallel()

	tr := journal.TradeRecord{
		Asset:  "SOL",
		Action: journal.ActionEntry,
		Price:  decimal.NewFromInt(100),
	}
	res := scheduler.Result{
		CycleID: "C1",
		Outcomes: []sim.Outcome{
			{Asset: "BTC", Signal: "hold", Result: journal.OutcomeFailed, Err: errs.Newf(errs.DataUnavailable, "BTC", "timeout")},
			{Asset: "SOL", Signal: "entry", Result: journal.OutcomeOpened, Trade: &tr},
		},
		Sample:   journal.EquitySample{Balance: decimal.NewFromInt(1000), Equity: decimal.NewFromInt(1000)},
		Warnings: []string{"BTC: timeout"},
	}
	out := renderCycle(res)
	assert.Contains(t, out, "cycle C1")
	assert.Contains(t, out, "DataUnavailable")
	assert.Contains(t, out, "@ 100")
	assert.Contains(t, out, "warn: BTC: timeout")
}

func TestFormatCompleted(t *testing.T) {
	t.Parallel()

	exit := t0.Add(time.Hour)
	out := formatCompleted([]metrics.CompletedTrade{
		{Asset: "SOL", Side: market.Long, EntryTime: &t0, ExitTime: &exit,
			PnL: decimal.NewNullDecimal(decimal.RequireFromString("9.79")), ExitAction: journal.ActionClose},
		{Asset: "ETH", Side: market.Short, EntryTime: &t0},
	})
	assert.Contains(t, out, "9.79")
	assert.Contains(t, out, metrics.OpenPosition)
}

func TestParseWhen(t *testing.T) {
	t.Parallel()

	d, err := parseWhen("2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Day())

	ts, err := parseWhen("2025-03-01T12:00:00Z")
	require.NoError(t, err)
	assert.True(t, ts.Equal(t0))

	_, err = parseWhen("yesterday")
	assert.Error(t, err)
}

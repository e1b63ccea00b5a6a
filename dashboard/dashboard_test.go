package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rustyeddy/papertrader/internal/logx"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/metrics"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testLog() *logrus.Entry { return logrus.NewEntry(logx.Discard()) }

type fixture struct {
	srv   *httptest.Server
	mem   *journal.Memory
	store *portfolio.FileStore
	hub   *Hub
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()

	mem := journal.NewMemory()
	store := portfolio.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	hub := NewHub(testLog())

	require.NoError(t, mem.RecordTrade(ctx, journal.TradeRecord{
		ID: "01A", CycleID: "C1", Time: t0, Asset: "SOL", Action: journal.ActionEntry,
		Side: market.Long, Quantity: dec("1"), Price: dec("100"), BalanceAfter: dec("1000"),
		StopLoss: dec("90"), ProfitTarget: dec("120"), Leverage: 1, RiskUSD: dec("10"),
	}))
	require.NoError(t, mem.RecordTrade(ctx, journal.TradeRecord{
		ID: "01B", CycleID: "C2", Time: t0.Add(3 * time.Minute), Asset: "SOL", Action: journal.ActionTakeProfit,
		Side: market.Long, Quantity: dec("1"), Price: dec("121"), BalanceAfter: dec("1021"),
		RealizedPnL: decimal.NewNullDecimal(dec("21")), Fees: decimal.NewNullDecimal(dec("0")),
		StopLoss: dec("90"), ProfitTarget: dec("120"), Leverage: 1, RiskUSD: dec("10"),
	}))
	for i, eq := range []string{"1000", "1010", "1021"} {
		require.NoError(t, mem.RecordEquity(ctx, journal.EquitySample{
			Time: t0.Add(time.Duration(i) * 3 * time.Minute), CycleID: "C" + string(rune('1'+i)),
			Balance: dec(eq), Equity: dec(eq), BenchmarkPrice: 60000,
		}))
	}
	require.NoError(t, mem.RecordDecision(ctx, journal.DecisionRecord{
		Time: t0, CycleID: "C1", Asset: "SOL", Signal: "entry", Effective: "entry", Outcome: journal.OutcomeOpened,
	}))

	s := NewServer(mem, store, metrics.DefaultConfig(), hub, testLog())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return fixture{srv: srv, mem: mem, store: store, hub: hub}
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestStateEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	assert.Equal(t, http.StatusNotFound, getJSON(t, f.srv.URL+"/api/state", nil))

	st := portfolio.New(dec("1021"))
	require.NoError(t, f.store.Save(context.Background(), st))

	var got map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/state", &got))
	assert.Equal(t, "1021", got["balance"])
	assert.Equal(t, "1021", got["free_balance"])
}

func TestTradesEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var all []journal.TradeRecord
	assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/trades", &all))
	assert.Len(t, all, 2)

	var last []journal.TradeRecord
	getJSON(t, f.srv.URL+"/api/trades?limit=1", &last)
	require.Len(t, last, 1)
	assert.Equal(t, "01B", last[0].ID)

	var none []journal.TradeRecord
	getJSON(t, f.srv.URL+"/api/trades?asset=ETH", &none)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, f.srv.URL+"/api/trades?start=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, f.srv.URL+"/api/trades?limit=-1", nil))
}

func TestDecisionsAndEquityEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var decs []journal.DecisionRecord
	getJSON(t, f.srv.URL+"/api/decisions?cycle=C1", &decs)
	require.Len(t, decs, 1)
	assert.Equal(t, journal.OutcomeOpened, decs[0].Outcome)

	var eq []journal.EquitySample
	start := t0.Add(time.Minute).Format(time.RFC3339)
	getJSON(t, f.srv.URL+"/api/equity?start="+start, &eq)
	assert.Len(t, eq, 2)

	var msgs []journal.MessageRecord
	assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/messages", &msgs))
	assert.Empty(t, msgs)
}

func TestSummaryEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var s metrics.Summary
	assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/summary", &s))
	assert.Equal(t, 3, s.Samples)
	assert.InDelta(t, 2.1, float64(s.NetReturnPct), 1e-9)
	assert.Equal(t, 1, s.ClosedTrades)
	assert.InDelta(t, 100, float64(s.WinRatePct), 1e-9)

	var completed []metrics.CompletedTrade
	getJSON(t, f.srv.URL+"/api/completed", &completed)
	require.Len(t, completed, 1)
	assert.Equal(t, journal.ActionTakeProfit, completed[0].ExitAction)
}

func TestWebsocketFeed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.hub.Publish(Event{Type: "cycle", CycleID: "C9", Time: t0, Data: map[string]int{"open": 1}}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "cycle", got.Type)
	assert.Equal(t, "C9", got.CycleID)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return f.hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubPublishWithoutClients(t *testing.T) {
	t.Parallel()

	h := NewHub(testLog())
	assert.NoError(t, h.Publish(Event{Type: "cycle"}))
	assert.Equal(t, 0, h.Clients())
}

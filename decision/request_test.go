package decision

import (
	"strings"
	"testing"
	"time"

	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/snapshot"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSystemPrompt(t *testing.T) {
	t.Parallel()

	s := SystemPrompt(Contract{MaxRiskFraction: 0.02, MaxLeverage: 20, Notes: "  be patient "})
	assert.Contains(t, s, "2.0% of current balance")
	assert.Contains(t, s, "between 1 and 20")
	assert.Contains(t, s, "stop_loss")
	assert.True(t, strings.HasSuffix(s, "be patient"))
}

func TestBuildRequest(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 2, 3, 4, 6, 0, 0, time.UTC)
	st := portfolio.New(decimal.NewFromInt(1000))
	st.Positions["SOL"] = &portfolio.Position{
		Asset:                 "SOL",
		Side:                  market.Long,
		Quantity:              decimal.NewFromInt(1),
		EntryPrice:            decimal.NewFromInt(100),
		StopLoss:              decimal.NewFromInt(90),
		ProfitTarget:          decimal.NewFromInt(120),
		Leverage:              1,
		InvalidationCondition: "close below 90",
	}

	sol := snapshot.Snapshot{Asset: "SOL", Price: decimal.NewFromInt(105), EMAFast: 104, EMASlow: 101, RSI: 61}
	sol.Attach(st.Positions["SOL"])
	snaps := map[string]snapshot.Snapshot{
		"SOL": sol,
		"BTC": {Asset: "BTC", Price: decimal.NewFromInt(60000), EMAFast: 1, EMASlow: 2},
	}

	req := BuildRequest(now, st, snaps, Contract{MaxRiskFraction: 0.02, MaxLeverage: 10})

	assert.Equal(t, []string{"BTC", "SOL"}, req.Assets)
	assert.True(t, req.Time.Equal(now))
	assert.Contains(t, req.System, "between 1 and 10")
	assert.Contains(t, req.User, "Balance: 1000.00 USD")
	assert.Contains(t, req.User, "Free balance: 900.00 USD")
	assert.Contains(t, req.User, "Equity: 1005.00 USD")
	assert.Contains(t, req.User, "Risk cap per trade: 20.00 USD")
	assert.Contains(t, req.User, "unrealized=5.00")
	assert.Contains(t, req.User, `invalidation="close below 90"`)
	assert.Contains(t, req.User, "=== SOL ===")
	assert.Contains(t, req.User, "trend=up")
	assert.Contains(t, req.User, "trend=down")
	assert.Less(t, strings.Index(req.User, "=== BTC ==="), strings.Index(req.User, "=== SOL ==="))
	assert.Contains(t, req.User, `"signal": "hold" | "entry" | "close"`)

	again := BuildRequest(now, st, snaps, Contract{MaxRiskFraction: 0.02, MaxLeverage: 10})
	assert.Equal(t, req, again)
}

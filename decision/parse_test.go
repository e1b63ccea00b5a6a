package decision

import (
	"testing"

	"github.com/rustyeddy/papertrader/errs"
	"github.com/rustyeddy/papertrader/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fiveAssets = []string{"BTC", "ETH", "SOL", "BNB", "XRP"}

const goodReply = "```json\n" + `{
  "BTC": {"signal": "hold", "confidence": 0.4, "justification": "chop"},
  "ETH": {"signal": "close", "confidence": 0.8, "justification": "target near", "reasoning": "rsi 75"},
  "SOL": {"signal": "entry", "side": "long", "quantity": 1, "profit_target": 120, "stop_loss": 90,
          "leverage": 1, "risk_usd": 10, "confidence": 0.7, "invalidation_condition": "close below 90",
          "justification": "ema cross"},
  "BNB": {"signal": "hold", "confidence": 0.5, "justification": "no setup"},
  "XRP": {"signal": "entry", "side": "SHORT", "quantity": "250", "profit_target": "0.5", "stop_loss": "0.6",
          "leverage": 3.0, "risk_usd": "8.33", "confidence": 0.55, "invalidation_condition": "reclaim 0.6",
          "justification": "downtrend"}
}` + "\n```"

func TestParseGoodReply(t *testing.T) {
	t.Parallel()

	res := Parse(goodReply, fiveAssets)
	require.Len(t, res, 5)
	for _, a := range fiveAssets {
		assert.NoError(t, res[a].Err, a)
	}

	assert.Equal(t, Hold, res["BTC"].Decision.Signal)
	assert.Nil(t, res["BTC"].Decision.Entry)
	assert.Equal(t, Close, res["ETH"].Decision.Signal)
	assert.Equal(t, "rsi 75", res["ETH"].Decision.Reasoning)

	sol := res["SOL"].Decision
	require.NotNil(t, sol.Entry)
	assert.Equal(t, market.Long, sol.Entry.Side)
	assert.True(t, sol.Entry.Quantity.Equal(decimal.NewFromInt(1)))
	assert.True(t, sol.Entry.StopLoss.Equal(decimal.NewFromInt(90)))
	assert.Equal(t, 1, sol.Entry.Leverage)
	assert.Equal(t, "close below 90", sol.Entry.InvalidationCondition)
	assert.InDelta(t, 0.7, sol.Confidence, 1e-12)

	xrp := res["XRP"].Decision
	require.NotNil(t, xrp.Entry)
	assert.Equal(t, market.Short, xrp.Entry.Side)
	assert.Equal(t, 3, xrp.Entry.Leverage)
	assert.True(t, xrp.Entry.RiskUSD.Equal(decimal.RequireFromString("8.33")))
}

func TestParseIsolatesMalformedAsset(t *testing.T) {
	t.Parallel()

	reply := `{
	  "BTC": {"signal": "hold", "confidence": 0.4, "justification": "chop"},
	  "ETH": {"signal": "hold", "confidence": 0.4, "justification": "chop"},
	  "SOL": {"signal": "entry", "side": "long", "quantity": 1, "confidence": 0.7, "justification": "x"},
	  "BNB": {"signal": "hold", "confidence": 0.4, "justification": "chop"},
	  "XRP": {"signal": "hold", "confidence": 0.4, "justification": "chop"}
	}`

	res := Parse(reply, fiveAssets)
	for _, a := range fiveAssets {
		if a == "SOL" {
			continue
		}
		assert.NoError(t, res[a].Err, a)
	}

	sol := res["SOL"]
	require.Error(t, sol.Err)
	assert.True(t, errs.IsKind(sol.Err, errs.ParseError))
	assert.Contains(t, sol.Err.Error(), "profit_target")
	assert.Equal(t, Hold, sol.Decision.Signal)
	assert.Contains(t, sol.Raw, `"signal": "entry"`)
}

func TestParseWholeReplyUnreadable(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "I think BTC looks bullish", "{not json}"} {
		res := Parse(raw, fiveAssets)
		require.Len(t, res, 5)
		for _, a := range fiveAssets {
			assert.True(t, errs.IsKind(res[a].Err, errs.ParseError), "%q %s", raw, a)
			assert.Equal(t, Hold, res[a].Decision.Signal)
			assert.Equal(t, raw, res[a].Raw)
		}
	}
}

func TestParseMissingAsset(t *testing.T) {
	t.Parallel()

	res := Parse(`{"btc": {"signal": "hold", "confidence": 0.1, "justification": "x"}}`, []string{"BTC", "ETH"})
	assert.NoError(t, res["BTC"].Err)
	assert.True(t, errs.IsKind(res["ETH"].Err, errs.ParseError))
}

func TestParseSchemaViolations(t *testing.T) {
	t.Parallel()

	entry := func(extra string) string {
		return `{"SOL": {"signal": "entry", "side": "long", "quantity": 1, "profit_target": 120,
			"stop_loss": 90, "risk_usd": 10, "confidence": 0.7, "invalidation_condition": "x",
			"justification": "y", ` + extra + `}}`
	}

	tests := []struct {
		name string
		raw  string
	}{
		{"fractional leverage", entry(`"leverage": 2.5`)},
		{"missing leverage", entry(`"reasoning": "r"`)},
		{"leverage past uint64", entry(`"leverage": 18446744073709551617`)},
		{"leverage past int32", entry(`"leverage": 2147483648`)},
		{"huge negative leverage", entry(`"leverage": -18446744073709551615`)},
		{"bad side", `{"SOL": {"signal": "entry", "side": "up", "quantity": 1, "profit_target": 120, "stop_loss": 90, "leverage": 1, "risk_usd": 10, "confidence": 0.7, "invalidation_condition": "x", "justification": "y"}}`},
		{"zero quantity", `{"SOL": {"signal": "entry", "side": "long", "quantity": 0, "profit_target": 120, "stop_loss": 90, "leverage": 1, "risk_usd": 10, "confidence": 0.7, "invalidation_condition": "x", "justification": "y"}}`},
		{"negative risk", `{"SOL": {"signal": "entry", "side": "long", "quantity": 1, "profit_target": 120, "stop_loss": 90, "leverage": 1, "risk_usd": -1, "confidence": 0.7, "invalidation_condition": "x", "justification": "y"}}`},
		{"confidence above one", `{"SOL": {"signal": "hold", "confidence": 1.2, "justification": "y"}}`},
		{"missing confidence", `{"SOL": {"signal": "hold", "justification": "y"}}`},
		{"missing justification", `{"SOL": {"signal": "close", "confidence": 0.5}}`},
		{"unknown signal", `{"SOL": {"signal": "buy", "confidence": 0.5, "justification": "y"}}`},
		{"wrong type", `{"SOL": {"signal": 3, "confidence": 0.5, "justification": "y"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse(tt.raw, []string{"SOL"})
			assert.True(t, errs.IsKind(res["SOL"].Err, errs.ParseError), res["SOL"].Err)
			assert.Equal(t, Hold, res["SOL"].Decision.Signal)
		})
	}
}

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	got, ok := ExtractJSON("Sure!\n```json\n{\"a\": {\"b\": 1}}\n```\nbye")
	require.True(t, ok)
	assert.Equal(t, `{"a": {"b": 1}}`, got)

	_, ok = ExtractJSON("nothing here")
	assert.False(t, ok)
}

package journal

import (
	"time"

	"github.com/rustyeddy/papertrader/errs"
	"github.com/rustyeddy/papertrader/market"
	"github.com/shopspring/decimal"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func entryRecord(id, asset string, at time.Time) TradeRecord {
	return TradeRecord{
		ID:           id,
		CycleID:      "C-" + at.Format("1504"),
		Time:         at,
		Asset:        asset,
		Action:       ActionEntry,
		Side:         market.Long,
		Quantity:     dec("1"),
		Price:        dec("100"),
		BalanceAfter: dec("1000"),
		StopLoss:     dec("90"),
		ProfitTarget: dec("120"),
		Leverage:     1,
		RiskUSD:      dec("10"),
		Confidence:   0.7,
		Reason:       "trend up",
		Invalidation: "close below 85",
	}
}

func closeRecord(id, asset string, at time.Time, action Action) TradeRecord {
	return TradeRecord{
		ID:           id,
		CycleID:      "C-" + at.Format("1504"),
		Time:         at,
		Asset:        asset,
		Action:       action,
		Side:         market.Long,
		Quantity:     dec("1"),
		Price:        dec("88"),
		RealizedPnL:  decimal.NewNullDecimal(dec("-12")),
		Fees:         decimal.NewNullDecimal(dec("0.188")),
		BalanceAfter: dec("987.812"),
		StopLoss:     dec("90"),
		ProfitTarget: dec("120"),
		Leverage:     1,
		RiskUSD:      dec("10"),
	}
}

func decisionRecord(cycle, asset string, at time.Time) DecisionRecord {
	return DecisionRecord{
		Time:          at,
		CycleID:       cycle,
		Asset:         asset,
		Signal:        "entry",
		Effective:     "hold",
		Outcome:       OutcomeRejected,
		Kind:          errs.RiskExceeded,
		Reason:        "risk 500 above cap 200",
		Confidence:    0.6,
		Justification: "breakout",
		Payload:       `{"signal":"entry"}`,
	}
}

func equitySample(cycle string, at time.Time, equity string) EquitySample {
	return EquitySample{
		Time:           at,
		CycleID:        cycle,
		Balance:        dec("1000"),
		Equity:         dec(equity),
		UnrealizedPnL:  dec(equity).Sub(dec("1000")),
		OpenPositions:  1,
		ReturnPct:      0.5,
		BenchmarkPrice: 100,
	}
}

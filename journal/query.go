package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/papertrader/errs"
	"github.com/rustyeddy/papertrader/market"
)

const tradeColumns = `id, cycle_id, ts, asset, action, side, quantity, price, realized_pnl, fees,
	balance_after, stop_loss, profit_target, leverage, risk_usd, confidence, reason, invalidation`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(r rowScanner) (TradeRecord, error) {
	var (
		rec          TradeRecord
		ts           int64
		action, side string
	)
	err := r.Scan(
		&rec.ID, &rec.CycleID, &ts, &rec.Asset, &action, &side,
		&rec.Quantity, &rec.Price, &rec.RealizedPnL, &rec.Fees,
		&rec.BalanceAfter, &rec.StopLoss, &rec.ProfitTarget,
		&rec.Leverage, &rec.RiskUSD, &rec.Confidence, &rec.Reason, &rec.Invalidation,
	)
	if err != nil {
		return TradeRecord{}, err
	}
	rec.Time = fromNanos(ts)
	rec.Action = Action(action)
	rec.Side = market.Side(side)
	return rec, nil
}

// GetTrade returns a single ledger row by ID.
func (j *SQLite) GetTrade(ctx context.Context, id string) (TradeRecord, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)
	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %q: %w", id, ErrNotFound)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTrades returns ledger rows ordered by time, then asset.
func (j *SQLite) ListTrades(ctx context.Context, q Query) ([]TradeRecord, error) {
	stmt, args := tradeFilter.with(sqlitePH, unixNanos).build(`SELECT `+tradeColumns+` FROM trades`, q)
	rows, err := j.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if q.Limit > 0 {
		reverse(out)
	}
	return out, nil
}

func (j *SQLite) ListDecisions(ctx context.Context, q Query) ([]DecisionRecord, error) {
	stmt, args := decisionFilter.with(sqlitePH, unixNanos).build(`
		SELECT cycle_id, asset, ts, signal, effective, outcome, kind, reason, confidence, justification, payload
		FROM decisions`, q)
	rows, err := j.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var (
			rec  DecisionRecord
			ts   int64
			kind string
		)
		if err := rows.Scan(&rec.CycleID, &rec.Asset, &ts, &rec.Signal, &rec.Effective, &rec.Outcome,
			&kind, &rec.Reason, &rec.Confidence, &rec.Justification, &rec.Payload); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		rec.Time = fromNanos(ts)
		rec.Kind = errs.Kind(kind)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if q.Limit > 0 {
		reverse(out)
	}
	return out, nil
}

func (j *SQLite) ListMessages(ctx context.Context, q Query) ([]MessageRecord, error) {
	stmt, args := messageFilter.with(sqlitePH, unixNanos).build(`
		SELECT cycle_id, ts, model, request, response, error, latency_ms FROM messages`, q)
	rows, err := j.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []MessageRecord
	for rows.Next() {
		var (
			rec     MessageRecord
			ts, lat int64
		)
		if err := rows.Scan(&rec.CycleID, &ts, &rec.Model, &rec.Request, &rec.Response, &rec.Error, &lat); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		rec.Time = fromNanos(ts)
		rec.Latency = time.Duration(lat) * time.Millisecond
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if q.Limit > 0 {
		reverse(out)
	}
	return out, nil
}

func (j *SQLite) ListEquity(ctx context.Context, q Query) ([]EquitySample, error) {
	stmt, args := equityFilter.with(sqlitePH, unixNanos).build(`
		SELECT cycle_id, ts, balance, equity, unrealized_pnl, open_positions, return_pct, benchmark_price
		FROM equity`, q)
	rows, err := j.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list equity: %w", err)
	}
	defer rows.Close()

	var out []EquitySample
	for rows.Next() {
		var (
			rec EquitySample
			ts  int64
		)
		if err := rows.Scan(&rec.CycleID, &ts, &rec.Balance, &rec.Equity, &rec.UnrealizedPnL,
			&rec.OpenPositions, &rec.ReturnPct, &rec.BenchmarkPrice); err != nil {
			return nil, fmt.Errorf("scan equity: %w", err)
		}
		rec.Time = fromNanos(ts)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if q.Limit > 0 {
		reverse(out)
	}
	return out, nil
}

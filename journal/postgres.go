package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rustyeddy/papertrader/errs"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/portfolio"
)

// Postgres is the server-side equivalent of SQLite. NUMERIC columns are read
// back through ::text so decimals keep their exact digits.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ Store           = (*Postgres)(nil)
	_ portfolio.Store = (*Postgres)(nil)
)

// NewPostgres connects, pings, and applies the schema.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, PostgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) RecordTrade(ctx context.Context, t TradeRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO trades
		(id, cycle_id, ts, asset, action, side, quantity, price, realized_pnl, fees,
		 balance_after, stop_loss, profit_target, leverage, risk_usd, confidence, reason, invalidation)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric, $10::numeric,
		 $11::numeric, $12::numeric, $13::numeric, $14, $15::numeric, $16, $17, $18)
		ON CONFLICT (id) DO NOTHING`,
		t.ID, t.CycleID, t.Time.UTC(), t.Asset, string(t.Action), string(t.Side),
		t.Quantity.String(), t.Price.String(), nullDec(t.RealizedPnL), nullDec(t.Fees),
		t.BalanceAfter.String(), t.StopLoss.String(), t.ProfitTarget.String(),
		t.Leverage, t.RiskUSD.String(), t.Confidence, t.Reason, t.Invalidation,
	)
	if err != nil {
		return fmt.Errorf("record trade %s: %w", t.ID, err)
	}
	return nil
}

func (p *Postgres) RecordDecision(ctx context.Context, d DecisionRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO decisions
		(cycle_id, asset, ts, signal, effective, outcome, kind, reason, confidence, justification, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (cycle_id, asset) DO NOTHING`,
		d.CycleID, d.Asset, d.Time.UTC(), d.Signal, d.Effective, d.Outcome,
		string(d.Kind), d.Reason, d.Confidence, d.Justification, d.Payload,
	)
	if err != nil {
		return fmt.Errorf("record decision %s/%s: %w", d.CycleID, d.Asset, err)
	}
	return nil
}

func (p *Postgres) RecordMessage(ctx context.Context, m MessageRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO messages (cycle_id, ts, model, request, response, error, latency_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (cycle_id) DO NOTHING`,
		m.CycleID, m.Time.UTC(), m.Model, m.Request, m.Response, m.Error, m.Latency.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record message %s: %w", m.CycleID, err)
	}
	return nil
}

func (p *Postgres) RecordEquity(ctx context.Context, e EquitySample) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO equity
		(cycle_id, ts, balance, equity, unrealized_pnl, open_positions, return_pct, benchmark_price)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7, $8)
		ON CONFLICT (cycle_id) DO NOTHING`,
		e.CycleID, e.Time.UTC(), e.Balance.String(), e.Equity.String(), e.UnrealizedPnL.String(),
		e.OpenPositions, e.ReturnPct, e.BenchmarkPrice,
	)
	if err != nil {
		return fmt.Errorf("record equity %s: %w", e.CycleID, err)
	}
	return nil
}

const pgTradeColumns = `id, cycle_id, ts, asset, action, side, quantity::text, price::text,
	realized_pnl::text, fees::text, balance_after::text, stop_loss::text, profit_target::text,
	leverage, risk_usd::text, confidence, reason, invalidation`

func scanPgTrade(r pgx.Row) (TradeRecord, error) {
	var (
		rec          TradeRecord
		action, side string
	)
	err := r.Scan(
		&rec.ID, &rec.CycleID, &rec.Time, &rec.Asset, &action, &side,
		&rec.Quantity, &rec.Price, &rec.RealizedPnL, &rec.Fees,
		&rec.BalanceAfter, &rec.StopLoss, &rec.ProfitTarget,
		&rec.Leverage, &rec.RiskUSD, &rec.Confidence, &rec.Reason, &rec.Invalidation,
	)
	if err != nil {
		return TradeRecord{}, err
	}
	rec.Time = rec.Time.UTC()
	rec.Action = Action(action)
	rec.Side = market.Side(side)
	return rec, nil
}

func (p *Postgres) GetTrade(ctx context.Context, id string) (TradeRecord, error) {
	rec, err := scanPgTrade(p.pool.QueryRow(ctx, `SELECT `+pgTradeColumns+` FROM trades WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %q: %w", id, ErrNotFound)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

func (p *Postgres) ListTrades(ctx context.Context, q Query) ([]TradeRecord, error) {
	stmt, args := tradeFilter.with(postgresPH, asTime).build(`SELECT `+pgTradeColumns+` FROM trades`, q)
	rows, err := p.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanPgTrade(rows)
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

func (p *Postgres) ListDecisions(ctx context.Context, q Query) ([]DecisionRecord, error) {
	stmt, args := decisionFilter.with(postgresPH, asTime).build(`
		SELECT cycle_id, asset, ts, signal, effective, outcome, kind, reason, confidence, justification, payload
		FROM decisions`, q)
	rows, err := p.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var (
			rec  DecisionRecord
			kind string
		)
		if err := rows.Scan(&rec.CycleID, &rec.Asset, &rec.Time, &rec.Signal, &rec.Effective, &rec.Outcome,
			&kind, &rec.Reason, &rec.Confidence, &rec.Justification, &rec.Payload); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		rec.Time = rec.Time.UTC()
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

func (p *Postgres) ListMessages(ctx context.Context, q Query) ([]MessageRecord, error) {
	stmt, args := messageFilter.with(postgresPH, asTime).build(`
		SELECT cycle_id, ts, model, request, response, error, latency_ms FROM messages`, q)
	rows, err := p.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []MessageRecord
	for rows.Next() {
		var (
			rec MessageRecord
			lat int64
		)
		if err := rows.Scan(&rec.CycleID, &rec.Time, &rec.Model, &rec.Request, &rec.Response, &rec.Error, &lat); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		rec.Time = rec.Time.UTC()
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

func (p *Postgres) ListEquity(ctx context.Context, q Query) ([]EquitySample, error) {
	stmt, args := equityFilter.with(postgresPH, asTime).build(`
		SELECT cycle_id, ts, balance::text, equity::text, unrealized_pnl::text, open_positions,
		       return_pct, benchmark_price
		FROM equity`, q)
	rows, err := p.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list equity: %w", err)
	}
	defer rows.Close()

	var out []EquitySample
	for rows.Next() {
		var rec EquitySample
		if err := rows.Scan(&rec.CycleID, &rec.Time, &rec.Balance, &rec.Equity, &rec.UnrealizedPnL,
			&rec.OpenPositions, &rec.ReturnPct, &rec.BenchmarkPrice); err != nil {
			return nil, fmt.Errorf("scan equity: %w", err)
		}
		rec.Time = rec.Time.UTC()
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

func (p *Postgres) Load(ctx context.Context) (portfolio.State, error) {
	var doc string
	err := p.pool.QueryRow(ctx, `SELECT doc::text FROM portfolio_state WHERE id = 1`).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return portfolio.State{}, portfolio.ErrEmpty
	}
	if err != nil {
		return portfolio.State{}, fmt.Errorf("load portfolio state: %w", err)
	}
	return portfolio.Unmarshal([]byte(doc))
}

func (p *Postgres) Save(ctx context.Context, s portfolio.State) error {
	doc, err := portfolio.Marshal(s)
	if err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin state tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO portfolio_state (id, version, updated_at, doc)
		VALUES (1, $1, $2, $3::jsonb)
		ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at,
			doc = EXCLUDED.doc`,
		s.Version, s.UpdatedAt.UTC(), string(doc),
	)
	if err != nil {
		return fmt.Errorf("save portfolio state: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

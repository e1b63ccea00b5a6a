package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite keeps every stream, plus the current portfolio state, in one
// database file.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

func NewSQLite(path string) (*SQLite, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	if err := addInvalidationColumn(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite trades: %w", err)
	}

	return &SQLite{db: db}, nil
}

// addInvalidationColumn upgrades a trades table created before the column
// existed.
func addInvalidationColumn(db *sql.DB) error {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('trades') WHERE name = 'invalidation'`).Scan(&n)
	if err != nil || n > 0 {
		return err
	}
	_, err = db.Exec(`ALTER TABLE trades ADD COLUMN invalidation TEXT NOT NULL DEFAULT ''`)
	return err
}

func (j *SQLite) RecordTrade(ctx context.Context, t TradeRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO trades
		(id, cycle_id, ts, asset, action, side, quantity, price, realized_pnl, fees,
		 balance_after, stop_loss, profit_target, leverage, risk_usd, confidence, reason, invalidation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.CycleID, t.Time.UTC().UnixNano(), t.Asset, string(t.Action), string(t.Side),
		t.Quantity.String(), t.Price.String(), nullDec(t.RealizedPnL), nullDec(t.Fees),
		t.BalanceAfter.String(), t.StopLoss.String(), t.ProfitTarget.String(),
		t.Leverage, t.RiskUSD.String(), t.Confidence, t.Reason, t.Invalidation,
	)
	if err != nil {
		return fmt.Errorf("record trade %s: %w", t.ID, err)
	}
	return nil
}

func (j *SQLite) RecordDecision(ctx context.Context, d DecisionRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO decisions
		(cycle_id, asset, ts, signal, effective, outcome, kind, reason, confidence, justification, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.CycleID, d.Asset, d.Time.UTC().UnixNano(), d.Signal, d.Effective, d.Outcome,
		string(d.Kind), d.Reason, d.Confidence, d.Justification, d.Payload,
	)
	if err != nil {
		return fmt.Errorf("record decision %s/%s: %w", d.CycleID, d.Asset, err)
	}
	return nil
}

func (j *SQLite) RecordMessage(ctx context.Context, m MessageRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages
		(cycle_id, ts, model, request, response, error, latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.CycleID, m.Time.UTC().UnixNano(), m.Model, m.Request, m.Response, m.Error,
		m.Latency.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record message %s: %w", m.CycleID, err)
	}
	return nil
}

func (j *SQLite) RecordEquity(ctx context.Context, e EquitySample) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO equity
		(cycle_id, ts, balance, equity, unrealized_pnl, open_positions, return_pct, benchmark_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.CycleID, e.Time.UTC().UnixNano(), e.Balance.String(), e.Equity.String(),
		e.UnrealizedPnL.String(), e.OpenPositions, e.ReturnPct, e.BenchmarkPrice,
	)
	if err != nil {
		return fmt.Errorf("record equity %s: %w", e.CycleID, err)
	}
	return nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

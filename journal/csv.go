package journal

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

var (
	tradeHeader    = []string{"id", "cycle_id", "time", "asset", "action", "side", "quantity", "price", "realized_pnl", "fees", "balance_after", "stop_loss", "profit_target", "leverage", "risk_usd", "confidence", "reason", "invalidation_condition"}
	decisionHeader = []string{"time", "cycle_id", "asset", "signal", "effective", "outcome", "kind", "reason", "confidence", "justification"}
	messageHeader  = []string{"time", "cycle_id", "model", "latency_ms", "error", "request_bytes", "response_bytes"}
	equityHeader   = []string{"time", "cycle_id", "balance", "equity", "unrealized_pnl", "open_positions", "return_pct", "benchmark_price"}
)

type csvFile struct {
	f *os.File
	w *csv.Writer
}

func openCSV(path string, header []string) (*csvFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	cf := &csvFile{f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := cf.write(header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return cf, nil
}

func (c *csvFile) write(row []string) error {
	if err := c.w.Write(row); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *csvFile) close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}

// CSV appends each stream to its own file in a directory. Rows are never
// deduplicated, so it is meant as a mirror rather than a primary store.
type CSV struct {
	mu                                  sync.Mutex
	trades, decisions, messages, equity *csvFile
}

var _ Journal = (*CSV)(nil)

func NewCSV(dir string) (*CSV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	j := &CSV{}
	var err error
	if j.trades, err = openCSV(filepath.Join(dir, "trades.csv"), tradeHeader); err != nil {
		return nil, err
	}
	if j.decisions, err = openCSV(filepath.Join(dir, "decisions.csv"), decisionHeader); err != nil {
		j.Close()
		return nil, err
	}
	if j.messages, err = openCSV(filepath.Join(dir, "messages.csv"), messageHeader); err != nil {
		j.Close()
		return nil, err
	}
	if j.equity, err = openCSV(filepath.Join(dir, "equity.csv"), equityHeader); err != nil {
		j.Close()
		return nil, err
	}
	return j, nil
}

func (j *CSV) RecordTrade(_ context.Context, t TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.trades.write([]string{
		t.ID,
		t.CycleID,
		ts(t.Time),
		t.Asset,
		string(t.Action),
		string(t.Side),
		t.Quantity.String(),
		t.Price.String(),
		nullStr(t.RealizedPnL.Valid, t.RealizedPnL.Decimal.String()),
		nullStr(t.Fees.Valid, t.Fees.Decimal.String()),
		t.BalanceAfter.String(),
		t.StopLoss.String(),
		t.ProfitTarget.String(),
		strconv.Itoa(t.Leverage),
		t.RiskUSD.String(),
		f(t.Confidence),
		t.Reason,
		t.Invalidation,
	})
}

func (j *CSV) RecordDecision(_ context.Context, d DecisionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.decisions.write([]string{
		ts(d.Time),
		d.CycleID,
		d.Asset,
		d.Signal,
		d.Effective,
		d.Outcome,
		string(d.Kind),
		d.Reason,
		f(d.Confidence),
		d.Justification,
	})
}

func (j *CSV) RecordMessage(_ context.Context, m MessageRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.messages.write([]string{
		ts(m.Time),
		m.CycleID,
		m.Model,
		strconv.FormatInt(m.Latency.Milliseconds(), 10),
		m.Error,
		strconv.Itoa(len(m.Request)),
		strconv.Itoa(len(m.Response)),
	})
}

func (j *CSV) RecordEquity(_ context.Context, e EquitySample) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.equity.write([]string{
		ts(e.Time),
		e.CycleID,
		e.Balance.String(),
		e.Equity.String(),
		e.UnrealizedPnL.String(),
		strconv.Itoa(e.OpenPositions),
		f(e.ReturnPct),
		f(e.BenchmarkPrice),
	})
}

func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var first error
	for _, c := range []*csvFile{j.trades, j.decisions, j.messages, j.equity} {
		if c == nil {
			continue
		}
		if err := c.close(); err != nil && first == nil {
			first = fmt.Errorf("close csv journal: %w", err)
		}
	}
	return first
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullStr(valid bool, s string) string {
	if !valid {
		return ""
	}
	return s
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

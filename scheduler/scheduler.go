// Package scheduler drives the trading loop: one cycle per interval, each
// cycle running snapshot, trigger check, oracle, apply and persist in that
// order.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/papertrader/dashboard"
	"github.com/rustyeddy/papertrader/decision"
	"github.com/rustyeddy/papertrader/errs"
	"github.com/rustyeddy/papertrader/internal/id"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/metrics"
	"github.com/rustyeddy/papertrader/notify"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/sim"
	"github.com/rustyeddy/papertrader/snapshot"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Assets          []string      `json:"assets" yaml:"assets"`
	Interval        time.Duration `json:"interval" yaml:"interval"`
	SnapshotTimeout time.Duration `json:"snapshot_timeout" yaml:"snapshot_timeout"`
	OracleTimeout   time.Duration `json:"oracle_timeout" yaml:"oracle_timeout"`
	PersistTimeout  time.Duration `json:"persist_timeout" yaml:"persist_timeout"`
	NotifyTimeout   time.Duration `json:"notify_timeout" yaml:"notify_timeout"`
	// Concurrency bounds parallel snapshot fetches.
	Concurrency int `json:"concurrency" yaml:"concurrency"`
	// MaxPersistFailures consecutive failed saves stop Run.
	MaxPersistFailures int `json:"max_persist_failures" yaml:"max_persist_failures"`
}

func DefaultConfig() Config {
	return Config{
		Assets:             []string{"BTC", "ETH", "SOL", "BNB", "XRP", "DOGE"},
		Interval:           3 * time.Minute,
		SnapshotTimeout:    20 * time.Second,
		OracleTimeout:      90 * time.Second,
		PersistTimeout:     30 * time.Second,
		NotifyTimeout:      10 * time.Second,
		Concurrency:        4,
		MaxPersistFailures: 3,
	}
}

func (c Config) Validate() error {
	if len(c.Assets) == 0 {
		return errors.New("schedule: at least one asset is required")
	}
	seen := map[string]bool{}
	for _, a := range c.Assets {
		if a == "" || seen[a] {
			return fmt.Errorf("schedule: empty or duplicate asset %q", a)
		}
		seen[a] = true
	}
	if c.Interval < time.Second {
		return fmt.Errorf("schedule: interval %s too short", c.Interval)
	}
	if c.SnapshotTimeout <= 0 || c.OracleTimeout <= 0 || c.PersistTimeout <= 0 {
		return errors.New("schedule: timeouts must be positive")
	}
	return nil
}

// PriceSource supplies the benchmark price when the benchmark is not traded.
type PriceSource interface {
	Price(ctx context.Context, asset string) (decimal.Decimal, error)
}

type Publisher interface {
	Publish(e dashboard.Event) error
}

type Deps struct {
	Builder *snapshot.Builder
	Oracle  decision.Oracle
	Engine  *sim.Engine
	Journal journal.Journal
	Store   portfolio.Store

	// Optional.
	Reader    journal.Reader
	Prices    PriceSource
	Notifier  notify.Notifier
	Publisher Publisher

	Contract     decision.Contract
	Metrics      metrics.Config
	OnlyOnTrades bool
	Log          *logrus.Entry
}

type Scheduler struct {
	cfg    Config
	deps   Deps
	outbox *outbox
	log    *logrus.Entry
	now    func() time.Time

	// held for a whole cycle so cycles never overlap
	cycleMu sync.Mutex
}

func New(cfg Config, d Deps) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if d.Builder == nil || d.Oracle == nil || d.Engine == nil || d.Journal == nil || d.Store == nil {
		return nil, errors.New("scheduler: builder, oracle, engine, journal and store are required")
	}
	if d.Log == nil {
		d.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	assets := append([]string(nil), cfg.Assets...)
	sort.Strings(assets)
	cfg.Assets = assets

	s := &Scheduler{
		cfg:    cfg,
		deps:   d,
		outbox: &outbox{},
		log:    d.Log,
		now:    time.Now,
	}
	d.Engine.SetJournal(s.outbox)
	return s, nil
}

// Result describes one finished cycle.
type Result struct {
	CycleID   string
	Time      time.Time
	Triggered []journal.TradeRecord
	Outcomes  []sim.Outcome
	Sample    journal.EquitySample
	Warnings  []string
	Summary   *metrics.Summary
}

// Trades is every ledger row the cycle wrote, triggers first.
func (r Result) Trades() []journal.TradeRecord {
	out := append([]journal.TradeRecord(nil), r.Triggered...)
	for _, o := range r.Outcomes {
		if o.Trade != nil {
			out = append(out, *o.Trade)
		}
	}
	return out
}

// Run executes a cycle at every interval boundary until ctx is cancelled.
// Missed boundaries are skipped, never replayed. A cycle that has started
// always finishes.
func (s *Scheduler) Run(ctx context.Context) error {
	failures := 0
	for {
		now := s.now()
		next := now.Truncate(s.cfg.Interval).Add(s.cfg.Interval)
		s.log.WithField("next", next.Format(time.RFC3339)).Debug("waiting for cycle")

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("scheduler stopped")
			return nil
		case <-timer.C:
		}

		_, err := s.RunCycle(ctx)
		switch {
		case err == nil:
			failures = 0
		case errs.KindOf(err).Fatal():
			failures++
			s.log.WithError(err).WithField("failures", failures).Error("cycle not persisted")
			if s.cfg.MaxPersistFailures > 0 && failures >= s.cfg.MaxPersistFailures {
				return err
			}
		default:
			s.log.WithError(err).Error("cycle failed")
		}
	}
}

// RunCycle runs one complete cycle now. Cancelling ctx stops the network
// phase early; the apply and persist phases always complete.
func (s *Scheduler) RunCycle(ctx context.Context) (Result, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	now := s.now().UTC()
	res := Result{CycleID: id.At(now), Time: now}
	log := s.log.WithField("cycle", res.CycleID)
	work := context.WithoutCancel(ctx)

	snaps, failed := s.buildSnapshots(ctx)
	for _, a := range sortedKeys(failed) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", a, failed[a]))
		log.WithFields(logrus.Fields{"asset": a, "kind": errs.KindOf(failed[a])}).
			WithError(failed[a]).Warn("snapshot unavailable")
	}

	prices := snapshot.Prices(snaps)
	triggered, err := s.deps.Engine.CheckTriggers(work, now, res.CycleID, prices)
	if err != nil {
		return res, err
	}
	res.Triggered = triggered
	for _, t := range triggered {
		log.WithFields(logrus.Fields{"asset": t.Asset, "action": t.Action, "price": t.Price.String()}).Info("trigger fired")
	}

	st := s.deps.Engine.State()
	for a, snap := range snaps {
		p, _ := st.Position(a)
		snap.Attach(p)
		snaps[a] = snap
	}

	results, oracleErr := s.consult(ctx, now, res.CycleID, st, snaps)
	if oracleErr != nil {
		res.Warnings = append(res.Warnings, oracleErr.Error())
		log.WithField("kind", errs.KindOf(oracleErr)).WithError(oracleErr).Warn("oracle failed")
	}

	for _, a := range s.cfg.Assets {
		o, d, payload := s.decide(work, now, res.CycleID, a, snaps, failed, results, oracleErr)
		if o.Err != nil && o.Result != journal.OutcomeFailed && !errs.IsKind(o.Err, errs.DataUnavailable) {
			log.WithFields(logrus.Fields{"asset": a, "kind": errs.KindOf(o.Err), "outcome": o.Result}).Info(o.Err.Error())
		}
		if o.Result == journal.OutcomeFailed && o.Err != nil && errs.KindOf(o.Err).Fatal() {
			return res, o.Err
		}
		if o.Result == journal.OutcomeFailed && errs.IsKind(o.Err, errs.ParseError) {
			res.Warnings = append(res.Warnings, o.Err.Error())
			log.WithFields(logrus.Fields{"asset": a, "kind": errs.ParseError, "raw": payload}).Warn(o.Err.Error())
		}
		_ = s.outbox.RecordDecision(work, o.Record(now, res.CycleID, d, payload))
		res.Outcomes = append(res.Outcomes, o)
	}

	res.Sample = s.deps.Engine.Sample(now, res.CycleID, prices, s.benchmark(ctx, snaps))
	_ = s.outbox.RecordEquity(work, res.Sample)

	if err := s.persist(work); err != nil {
		log.WithError(err).Error("persist failed")
		return res, err
	}

	res.Summary = s.summarize(work)
	s.announce(work, res)

	log.WithFields(logrus.Fields{
		"balance":  res.Sample.Balance.String(),
		"equity":   res.Sample.Equity.String(),
		"open":     res.Sample.OpenPositions,
		"trades":   len(res.Trades()),
		"warnings": len(res.Warnings),
	}).Info("cycle complete")
	return res, nil
}

func (s *Scheduler) buildSnapshots(ctx context.Context) (map[string]snapshot.Snapshot, map[string]error) {
	var mu sync.Mutex
	snaps := make(map[string]snapshot.Snapshot, len(s.cfg.Assets))
	failed := map[string]error{}

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.Concurrency > 0 {
		g.SetLimit(s.cfg.Concurrency)
	}
	for _, a := range s.cfg.Assets {
		g.Go(func() error {
			actx, cancel := context.WithTimeout(gctx, s.cfg.SnapshotTimeout)
			defer cancel()

			snap, err := s.deps.Builder.Build(actx, a)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if !errs.IsKind(err, errs.DataUnavailable) {
					err = errs.New(errs.DataUnavailable, a, err)
				}
				failed[a] = err
				return nil
			}
			snaps[a] = snap
			return nil
		})
	}
	_ = g.Wait()
	return snaps, failed
}

// consult makes the cycle's single oracle call and logs the exchange.
func (s *Scheduler) consult(ctx context.Context, now time.Time, cycleID string, st portfolio.State, snaps map[string]snapshot.Snapshot) (map[string]decision.Result, error) {
	if len(snaps) == 0 {
		return nil, nil
	}

	req := decision.BuildRequest(now, st, snaps, s.deps.Contract)
	octx, cancel := context.WithTimeout(ctx, s.cfg.OracleTimeout)
	defer cancel()

	start := time.Now()
	raw, err := s.deps.Oracle.Decide(octx, req)
	msg := journal.MessageRecord{
		Time:     now,
		CycleID:  cycleID,
		Model:    s.deps.Oracle.Model(),
		Request:  req.System + "\n\n" + req.User,
		Response: raw,
		Latency:  time.Since(start),
	}
	if err != nil {
		if !errs.IsKind(err, errs.OracleError) {
			err = errs.New(errs.OracleError, "", err)
		}
		msg.Error = err.Error()
	}
	_ = s.outbox.RecordMessage(context.WithoutCancel(ctx), msg)
	if err != nil {
		return nil, err
	}
	return decision.Parse(raw, req.Assets), nil
}

// decide settles one asset. Every path yields an outcome, so every asset
// gets a decision-log row.
func (s *Scheduler) decide(ctx context.Context, now time.Time, cycleID, asset string, snaps map[string]snapshot.Snapshot,
	failed map[string]error, results map[string]decision.Result, oracleErr error) (sim.Outcome, decision.Decision, string) {

	if err, ok := failed[asset]; ok {
		return sim.Failed(asset, decision.Hold, err), decision.HoldFor(asset, "snapshot unavailable"), ""
	}
	if oracleErr != nil {
		return sim.Failed(asset, decision.Hold, errs.New(errs.OracleError, asset, oracleErr)), decision.HoldFor(asset, "oracle unavailable"), ""
	}

	r, ok := results[asset]
	if !ok {
		err := errs.Newf(errs.ParseError, asset, "no result for asset")
		return sim.Failed(asset, decision.Hold, err), decision.HoldFor(asset, "no result"), ""
	}
	if r.Err != nil {
		return sim.Failed(asset, decision.Hold, r.Err), r.Decision, r.Raw
	}

	o, err := s.deps.Engine.Apply(ctx, now, cycleID, r.Decision, snaps[asset])
	if err != nil {
		o.Result = journal.OutcomeFailed
		o.Err = err
	}
	return o, r.Decision, r.Raw
}

func (s *Scheduler) benchmark(ctx context.Context, snaps map[string]snapshot.Snapshot) float64 {
	b := s.deps.Metrics.Benchmark
	if b == "" {
		return 0
	}
	if snap, ok := snaps[b]; ok {
		return snap.Price.InexactFloat64()
	}
	if s.deps.Prices == nil {
		return 0
	}
	pctx, cancel := context.WithTimeout(ctx, s.cfg.SnapshotTimeout)
	defer cancel()
	px, err := s.deps.Prices.Price(pctx, b)
	if err != nil {
		s.log.WithError(err).WithField("asset", b).Warn("benchmark price unavailable")
		return 0
	}
	return px.InexactFloat64()
}

// persist flushes the journal rows, ledger first, then saves the state.
func (s *Scheduler) persist(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, s.cfg.PersistTimeout)
	defer cancel()

	if err := s.outbox.Flush(pctx, s.deps.Journal); err != nil {
		return errs.New(errs.PersistenceFailure, "", fmt.Errorf("journal (%d rows pending): %w", s.outbox.Pending(), err))
	}
	if err := s.deps.Store.Save(pctx, s.deps.Engine.State()); err != nil {
		return errs.New(errs.PersistenceFailure, "", fmt.Errorf("save portfolio: %w", err))
	}
	return nil
}

func (s *Scheduler) summarize(ctx context.Context) *metrics.Summary {
	if s.deps.Reader == nil {
		return nil
	}
	eq, err := s.deps.Reader.ListEquity(ctx, journal.Query{})
	if err != nil {
		s.log.WithError(err).Warn("summary: read equity")
		return nil
	}
	trades, err := s.deps.Reader.ListTrades(ctx, journal.Query{})
	if err != nil {
		s.log.WithError(err).Warn("summary: read trades")
		return nil
	}
	sum := metrics.Summarize(eq, trades, s.deps.Metrics)
	return &sum
}

// announce tells the notifier and the dashboard. Neither can fail the cycle.
func (s *Scheduler) announce(ctx context.Context, res Result) {
	if s.deps.Notifier != nil && (!s.deps.OnlyOnTrades || len(res.Trades()) > 0) {
		st := s.deps.Engine.State()
		rep := notify.Report{
			CycleID:   res.CycleID,
			Time:      res.Time,
			Trades:    res.Trades(),
			Warnings:  res.Warnings,
			Balance:   res.Sample.Balance,
			Equity:    res.Sample.Equity,
			ReturnPct: res.Sample.ReturnPct,
			Open:      st.Assets(),
		}
		nctx, cancel := context.WithTimeout(ctx, s.cfg.NotifyTimeout)
		if err := s.deps.Notifier.Notify(nctx, rep.Title(), rep.Body()); err != nil {
			s.log.WithError(err).WithField("notifier", s.deps.Notifier.Name()).Warn("notify failed")
		}
		cancel()
	}

	if s.deps.Publisher != nil {
		ev := dashboard.Event{
			Type:    "cycle",
			CycleID: res.CycleID,
			Time:    res.Time,
			Data: map[string]any{
				"sample":   res.Sample,
				"trades":   res.Trades(),
				"outcomes": outcomeViews(res.Outcomes),
				"warnings": res.Warnings,
				"summary":  res.Summary,
			},
		}
		if err := s.deps.Publisher.Publish(ev); err != nil {
			s.log.WithError(err).Warn("publish failed")
		}
	}
}

type outcomeView struct {
	Asset     string `json:"asset"`
	Signal    string `json:"signal"`
	Effective string `json:"effective"`
	Result    string `json:"result"`
	Kind      string `json:"kind,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func outcomeViews(os []sim.Outcome) []outcomeView {
	out := make([]outcomeView, len(os))
	for i, o := range os {
		out[i] = outcomeView{
			Asset:     o.Asset,
			Signal:    string(o.Signal),
			Effective: string(o.Effective),
			Result:    o.Result,
		}
		if o.Err != nil {
			out[i].Kind = string(errs.KindOf(o.Err))
			out[i].Reason = o.Err.Error()
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

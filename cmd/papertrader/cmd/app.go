package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rustyeddy/papertrader/config"
	"github.com/rustyeddy/papertrader/dashboard"
	"github.com/rustyeddy/papertrader/decision"
	"github.com/rustyeddy/papertrader/exchange"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/notify"
	"github.com/rustyeddy/papertrader/oracle"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/scheduler"
	"github.com/rustyeddy/papertrader/sim"
	"github.com/rustyeddy/papertrader/snapshot"
	"github.com/sirupsen/logrus"
)

// stores is the read side every command needs: the journal and the state
// store, which may share one database.
type stores struct {
	journal journal.Store
	state   portfolio.Store
	closers []func() error
}

func (s *stores) Close() error {
	var errList []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

// openStores opens the primary journal, its mirrors when withMirrors is set,
// and the state store.
func openStores(ctx context.Context, cfg *config.Config, log *logrus.Entry, withMirrors bool) (*stores, error) {
	s := &stores{}

	var primary journal.Store
	var dbState portfolio.Store
	switch cfg.Journal.Type {
	case config.StorePG:
		pg, err := journal.NewPostgres(ctx, cfg.Journal.PostgresDSN)
		if err != nil {
			return nil, err
		}
		primary, dbState = pg, pg
		s.closers = append(s.closers, pg.Close)
	default:
		if dir := filepath.Dir(cfg.Journal.DBPath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create journal dir: %w", err)
			}
		}
		lite, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return nil, err
		}
		primary, dbState = lite, lite
		s.closers = append(s.closers, lite.Close)
	}

	var mirrors []journal.Journal
	if withMirrors && cfg.Journal.CSVDir != "" {
		c, err := journal.NewCSV(cfg.Journal.CSVDir)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open csv mirror: %w", err)
		}
		mirrors = append(mirrors, c)
	}
	if withMirrors && cfg.Journal.ClickHouseDSN != "" {
		ch, err := journal.NewClickHouse(ctx, cfg.Journal.ClickHouseDSN)
		if err != nil {
			// analytics only; the loop runs without it
			log.WithError(err).Warn("clickhouse mirror disabled")
		} else {
			mirrors = append(mirrors, ch)
		}
	}

	if len(mirrors) > 0 {
		m := journal.NewMulti(primary, mirrors...)
		m.OnError = func(i int, err error) {
			log.WithError(err).WithField("mirror", i).Warn("journal mirror write failed")
		}
		// Multi closes the primary too
		s.closers = []func() error{m.Close}
		primary = m
	}
	s.journal = primary

	switch cfg.Store.Type {
	case config.StoreFile:
		s.state = portfolio.NewFileStore(cfg.Store.Path)
	default:
		s.state = dbState
	}
	return s, nil
}

// loop holds everything a trading cycle needs.
type loop struct {
	*stores
	sched  *scheduler.Scheduler
	engine *sim.Engine
	hub    *dashboard.Hub
	log    *logrus.Entry
}

func openLoop(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*loop, error) {
	st, err := openStores(ctx, cfg, log, true)
	if err != nil {
		return nil, err
	}

	rec, err := scheduler.Restore(ctx, st.state, st.journal, cfg.Account.InitialBalance, cfg.Store.Tolerance, log)
	if err != nil {
		st.Close()
		return nil, err
	}

	orc, err := oracle.FromConfig(ctx, cfg.Oracle)
	if err != nil {
		st.Close()
		return nil, err
	}

	ex := exchange.NewBinance(cfg.Exchange)
	engine := sim.NewEngine(rec.State, cfg.Engine(), nil)

	l := &loop{stores: st, engine: engine, log: log}
	deps := scheduler.Deps{
		Builder: snapshot.NewBuilder(ex, cfg.Indicators),
		Oracle:  orc,
		Engine:  engine,
		Journal: st.journal,
		Store:   st.state,
		Reader:  st.journal,
		Prices:  ex,
		Contract: decision.Contract{
			MaxRiskFraction: cfg.Risk.MaxRiskFraction,
			MaxLeverage:     cfg.Risk.MaxLeverage,
			RecentBars:      cfg.Indicators.RecentBars,
		},
		Metrics:      cfg.Metrics,
		OnlyOnTrades: cfg.Notify.OnlyOnTrades,
		Log:          log,
	}
	if n := notify.FromConfig(cfg.Notify); n.Len() > 0 {
		deps.Notifier = n
		log.WithField("channels", n.Name()).Info("notifications enabled")
	}
	if cfg.Dashboard.Enabled {
		l.hub = dashboard.NewHub(log.WithField("component", "hub"))
		deps.Publisher = l.hub
	}

	l.sched, err = scheduler.New(cfg.Schedule, deps)
	if err != nil {
		st.Close()
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"source":  rec.Source,
		"balance": rec.State.Balance.String(),
		"open":    rec.State.Assets(),
		"oracle":  orc.Model(),
		"assets":  cfg.Schedule.Assets,
	}).Info("papertrader ready")
	return l, nil
}

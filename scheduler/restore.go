package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/rustyeddy/papertrader/errs"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/sim"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Restore loads the saved portfolio and reconciles it against the ledger.
// When the ledger or the initial balance wins, the chosen state is saved
// back so the next start agrees with it.
func Restore(ctx context.Context, store portfolio.Store, ledger journal.Reader, initial, tol decimal.Decimal, log *logrus.Entry) (sim.Reconciliation, error) {
	loaded, loadErr := store.Load(ctx)
	if loadErr != nil && !errors.Is(loadErr, portfolio.ErrEmpty) {
		log.WithError(loadErr).Warn("saved portfolio unreadable")
	}

	trades, err := ledger.ListTrades(ctx, journal.Query{})
	if err != nil {
		return sim.Reconciliation{}, errs.New(errs.PersistenceFailure, "", fmt.Errorf("read ledger: %w", err))
	}

	r, err := sim.Reconcile(loaded, loadErr, trades, initial, tol)
	if err != nil {
		return r, err
	}

	entry := log.WithFields(logrus.Fields{
		"source":    r.Source,
		"balance":   r.State.Balance.String(),
		"positions": len(r.State.Positions),
		"ledger":    len(trades),
	})
	if r.Warning != nil {
		entry.WithField("kind", errs.KindOf(r.Warning)).Warn(r.Warning.Error())
	} else {
		entry.Info("portfolio restored")
	}

	if r.Source != sim.FromSnapshot {
		if err := store.Save(ctx, r.State); err != nil {
			return r, errs.New(errs.PersistenceFailure, "", fmt.Errorf("save restored portfolio: %w", err))
		}
	}
	return r, nil
}

package sim

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rustyeddy/papertrader/errs"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/shopspring/decimal"
)

// Replay rebuilds the portfolio by applying the ledger to a fresh state
// holding initial. Rows are applied in time order; rows for one asset at the
// same instant close before they open, since a trigger always settles before
// that cycle's entry. Version ends up equal to the number of rows applied,
// which matches the engine bumping it once per ledger row.
func Replay(initial decimal.Decimal, trades []journal.TradeRecord) (portfolio.State, error) {
	st := portfolio.New(initial)

	for i, t := range ledgerOrder(trades) {
		switch {
		case t.Action == journal.ActionEntry:
			if _, ok := st.Positions[t.Asset]; ok {
				return st, fmt.Errorf("replay row %d (%s): entry on open %s", i, t.ID, t.Asset)
			}
			st.Positions[t.Asset] = &portfolio.Position{
				Asset:                 t.Asset,
				Side:                  t.Side,
				Quantity:              t.Quantity,
				EntryPrice:            t.Price,
				StopLoss:              t.StopLoss,
				ProfitTarget:          t.ProfitTarget,
				Leverage:              t.Leverage,
				RiskUSD:               t.RiskUSD,
				OpenedAt:              t.Time,
				Confidence:            t.Confidence,
				TradeID:               t.ID,
				InvalidationCondition: t.Invalidation,
			}

		case t.Action.Closing():
			if _, ok := st.Positions[t.Asset]; !ok {
				return st, fmt.Errorf("replay row %d (%s): %s on flat %s", i, t.ID, t.Action, t.Asset)
			}
			st.Balance = st.Balance.Add(t.Net())
			delete(st.Positions, t.Asset)

		default:
			return st, fmt.Errorf("replay row %d (%s): unknown action %q", i, t.ID, t.Action)
		}

		st.Version++
		st.UpdatedAt = t.Time
	}
	return st, nil
}

func ledgerOrder(trades []journal.TradeRecord) []journal.TradeRecord {
	rows := append([]journal.TradeRecord(nil), trades...)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		if a.Asset != b.Asset {
			return a.Asset < b.Asset
		}
		return a.Action.Closing() && !b.Action.Closing()
	})
	return rows
}

type Source string

const (
	FromInitial  Source = "initial"
	FromSnapshot Source = "snapshot"
	FromLedger   Source = "ledger"
)

// Reconciliation is the startup state and where it came from. Warning is set,
// with kind Reconciliation, whenever the snapshot was not trusted as-is.
type Reconciliation struct {
	State   portfolio.State
	Source  Source
	Warning error
}

// Reconcile chooses the startup state from the persisted snapshot (loaded,
// or loadErr when it could not be read) and the trade ledger. The ledger is
// authoritative: the snapshot is only used when it agrees with the replayed
// ledger on balance, within tol, and on which assets are open.
func Reconcile(loaded portfolio.State, loadErr error, trades []journal.TradeRecord, initial, tol decimal.Decimal) (Reconciliation, error) {
	missing := errors.Is(loadErr, portfolio.ErrEmpty)
	if loadErr == nil {
		if err := loaded.Check(); err != nil {
			loadErr = err
		}
	}

	if missing && len(trades) == 0 {
		return Reconciliation{State: portfolio.New(initial), Source: FromInitial}, nil
	}

	replayed, replayErr := Replay(initial, trades)

	if loadErr != nil {
		if replayErr != nil {
			return Reconciliation{}, errs.New(errs.Reconciliation, "",
				fmt.Errorf("snapshot unusable (%v) and ledger inconsistent: %w", loadErr, replayErr))
		}
		if !missing && len(trades) == 0 {
			return Reconciliation{}, errs.New(errs.Reconciliation, "",
				fmt.Errorf("snapshot unusable and no ledger to rebuild from: %w", loadErr))
		}
		return Reconciliation{
			State:   replayed,
			Source:  FromLedger,
			Warning: errs.Newf(errs.Reconciliation, "", "rebuilt from %d ledger rows: %v", len(trades), loadErr),
		}, nil
	}

	if replayErr != nil {
		return Reconciliation{
			State:   loaded,
			Source:  FromSnapshot,
			Warning: errs.New(errs.Reconciliation, "", fmt.Errorf("ledger not replayable, keeping snapshot: %w", replayErr)),
		}, nil
	}

	if diff := loaded.Balance.Sub(replayed.Balance).Abs(); diff.GreaterThan(tol) {
		return Reconciliation{
			State:  replayed,
			Source: FromLedger,
			Warning: errs.Newf(errs.Reconciliation, "",
				"snapshot balance %s differs from ledger %s", loaded.Balance, replayed.Balance),
		}, nil
	}
	if !sameAssets(loaded, replayed) {
		return Reconciliation{
			State:  replayed,
			Source: FromLedger,
			Warning: errs.Newf(errs.Reconciliation, "",
				"snapshot positions %v differ from ledger %v", loaded.Assets(), replayed.Assets()),
		}, nil
	}

	return Reconciliation{State: loaded, Source: FromSnapshot}, nil
}

func sameAssets(a, b portfolio.State) bool {
	if len(a.Positions) != len(b.Positions) {
		return false
	}
	for asset := range a.Positions {
		if _, ok := b.Positions[asset]; !ok {
			return false
		}
	}
	return true
}

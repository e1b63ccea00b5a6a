package portfolio

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// State is the authoritative portfolio: free balance plus at most one open
// position per asset.
type State struct {
	Balance   decimal.Decimal      `json:"balance"`
	Positions map[string]*Position `json:"positions"`
	UpdatedAt time.Time            `json:"updated_at"`
	Version   int64                `json:"version"`
}

// New returns a flat portfolio holding balance.
func New(balance decimal.Decimal) State {
	return State{
		Balance:   balance,
		Positions: make(map[string]*Position),
	}
}

// Clone returns a deep copy; callers may mutate it freely.
func (s State) Clone() State {
	out := State{
		Balance:   s.Balance,
		Positions: make(map[string]*Position, len(s.Positions)),
		UpdatedAt: s.UpdatedAt,
		Version:   s.Version,
	}
	for k, p := range s.Positions {
		cp := *p
		out.Positions[k] = &cp
	}
	return out
}

// Position returns the open position for asset, if any.
func (s State) Position(asset string) (*Position, bool) {
	p, ok := s.Positions[asset]
	return p, ok && p != nil
}

// Assets lists the assets with an open position, sorted.
func (s State) Assets() []string {
	out := make([]string, 0, len(s.Positions))
	for k := range s.Positions {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// UsedMargin sums the margin of every open position.
func (s State) UsedMargin() decimal.Decimal {
	used := decimal.Zero
	for _, p := range s.Positions {
		used = used.Add(p.Margin())
	}
	return used
}

// FreeBalance is the balance not tied up as margin.
func (s State) FreeBalance() decimal.Decimal {
	return s.Balance.Sub(s.UsedMargin())
}

// Unrealized sums open PnL using prices[asset]. Positions without a price are
// marked at entry, contributing zero.
func (s State) Unrealized(prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for asset, p := range s.Positions {
		px, ok := prices[asset]
		if !ok {
			continue
		}
		total = total.Add(p.PnL(px))
	}
	return total
}

// Check verifies the global invariants: non-negative balance, every position
// valid and filed under its own asset.
func (s State) Check() error {
	if s.Balance.IsNegative() {
		return fmt.Errorf("portfolio: negative balance %s", s.Balance)
	}
	for k, p := range s.Positions {
		if p == nil {
			return fmt.Errorf("portfolio: nil position for %s", k)
		}
		if p.Asset != k {
			return fmt.Errorf("portfolio: position for %s filed under %s", p.Asset, k)
		}
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Equal compares two states by value. Decimals compare numerically and times
// by instant.
func (s State) Equal(o State) bool {
	if !s.Balance.Equal(o.Balance) || s.Version != o.Version || !s.UpdatedAt.Equal(o.UpdatedAt) {
		return false
	}
	if len(s.Positions) != len(o.Positions) {
		return false
	}
	for k, p := range s.Positions {
		q, ok := o.Positions[k]
		if !ok || !p.equal(*q) {
			return false
		}
	}
	return true
}

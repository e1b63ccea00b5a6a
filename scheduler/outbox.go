package scheduler

import (
	"context"
	"sync"

	"github.com/rustyeddy/papertrader/journal"
)

// outbox buffers a cycle's journal writes so they can be flushed in order,
// ledger first, once the cycle's decisions are final. Rows that fail to
// flush stay queued and go out ahead of the next cycle's rows. Every stream
// is keyed, so a row that reached the journal before a failure is harmless
// to send again.
type outbox struct {
	mu        sync.Mutex
	trades    []journal.TradeRecord
	decisions []journal.DecisionRecord
	messages  []journal.MessageRecord
	equity    []journal.EquitySample
}

var _ journal.Journal = (*outbox)(nil)

func (o *outbox) RecordTrade(_ context.Context, t journal.TradeRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.trades = append(o.trades, t)
	return nil
}

func (o *outbox) RecordDecision(_ context.Context, d journal.DecisionRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decisions = append(o.decisions, d)
	return nil
}

func (o *outbox) RecordMessage(_ context.Context, m journal.MessageRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, m)
	return nil
}

func (o *outbox) RecordEquity(_ context.Context, e journal.EquitySample) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.equity = append(o.equity, e)
	return nil
}

func (o *outbox) Close() error { return nil }

func (o *outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.trades) + len(o.decisions) + len(o.messages) + len(o.equity)
}

// Flush writes everything queued to j: trades, then decisions, messages
// and equity. It stops at the first error, keeping the unwritten rows.
func (o *outbox) Flush(ctx context.Context, j journal.Journal) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for len(o.trades) > 0 {
		if err := j.RecordTrade(ctx, o.trades[0]); err != nil {
			return err
		}
		o.trades = o.trades[1:]
	}
	for len(o.decisions) > 0 {
		if err := j.RecordDecision(ctx, o.decisions[0]); err != nil {
			return err
		}
		o.decisions = o.decisions[1:]
	}
	for len(o.messages) > 0 {
		if err := j.RecordMessage(ctx, o.messages[0]); err != nil {
			return err
		}
		o.messages = o.messages[1:]
	}
	for len(o.equity) > 0 {
		if err := j.RecordEquity(ctx, o.equity[0]); err != nil {
			return err
		}
		o.equity = o.equity[1:]
	}
	return nil
}

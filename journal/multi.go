package journal

import (
	"context"
	"errors"
)

// Multi writes to a primary store and then to any number of mirrors. Only
// the primary's errors are returned; mirror failures go to OnError. Reads are
// served by the primary.
type Multi struct {
	Primary Store
	Mirrors []Journal
	OnError func(mirror int, err error)
}

var _ Store = (*Multi)(nil)

func NewMulti(primary Store, mirrors ...Journal) *Multi {
	return &Multi{Primary: primary, Mirrors: mirrors}
}

func (m *Multi) fanout(write func(Journal) error) error {
	if err := write(m.Primary); err != nil {
		return err
	}
	for i, j := range m.Mirrors {
		if err := write(j); err != nil && m.OnError != nil {
			m.OnError(i, err)
		}
	}
	return nil
}

func (m *Multi) RecordTrade(ctx context.Context, t TradeRecord) error {
	return m.fanout(func(j Journal) error { return j.RecordTrade(ctx, t) })
}

func (m *Multi) RecordDecision(ctx context.Context, d DecisionRecord) error {
	return m.fanout(func(j Journal) error { return j.RecordDecision(ctx, d) })
}

func (m *Multi) RecordMessage(ctx context.Context, r MessageRecord) error {
	return m.fanout(func(j Journal) error { return j.RecordMessage(ctx, r) })
}

func (m *Multi) RecordEquity(ctx context.Context, e EquitySample) error {
	return m.fanout(func(j Journal) error { return j.RecordEquity(ctx, e) })
}

func (m *Multi) ListTrades(ctx context.Context, q Query) ([]TradeRecord, error) {
	return m.Primary.ListTrades(ctx, q)
}

func (m *Multi) ListDecisions(ctx context.Context, q Query) ([]DecisionRecord, error) {
	return m.Primary.ListDecisions(ctx, q)
}

func (m *Multi) ListMessages(ctx context.Context, q Query) ([]MessageRecord, error) {
	return m.Primary.ListMessages(ctx, q)
}

func (m *Multi) ListEquity(ctx context.Context, q Query) ([]EquitySample, error) {
	return m.Primary.ListEquity(ctx, q)
}

// Close closes every mirror and then the primary, returning all errors joined.
func (m *Multi) Close() error {
	var errList []error
	for _, j := range m.Mirrors {
		if err := j.Close(); err != nil {
			errList = append(errList, err)
		}
	}
	if err := m.Primary.Close(); err != nil {
		errList = append(errList, err)
	}
	return errors.Join(errList...)
}

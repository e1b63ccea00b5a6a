package journal

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Store. It applies the same de-duplication keys as
// the SQL backends.
type Memory struct {
	mu        sync.RWMutex
	trades    []TradeRecord
	tradeIDs  map[string]struct{}
	decisions []DecisionRecord
	decKeys   map[[2]string]struct{}
	messages  []MessageRecord
	msgKeys   map[string]struct{}
	equity    []EquitySample
	eqKeys    map[string]struct{}
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		tradeIDs: make(map[string]struct{}),
		decKeys:  make(map[[2]string]struct{}),
		msgKeys:  make(map[string]struct{}),
		eqKeys:   make(map[string]struct{}),
	}
}

func (m *Memory) RecordTrade(_ context.Context, t TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tradeIDs[t.ID]; ok {
		return nil
	}
	m.tradeIDs[t.ID] = struct{}{}
	m.trades = append(m.trades, t)
	sort.SliceStable(m.trades, func(i, j int) bool {
		a, b := m.trades[i], m.trades[j]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		if a.Asset != b.Asset {
			return a.Asset < b.Asset
		}
		return a.ID < b.ID
	})
	return nil
}

func (m *Memory) RecordDecision(_ context.Context, d DecisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := [2]string{d.CycleID, d.Asset}
	if _, ok := m.decKeys[k]; ok {
		return nil
	}
	m.decKeys[k] = struct{}{}
	m.decisions = append(m.decisions, d)
	sort.SliceStable(m.decisions, func(i, j int) bool {
		a, b := m.decisions[i], m.decisions[j]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		return a.Asset < b.Asset
	})
	return nil
}

func (m *Memory) RecordMessage(_ context.Context, r MessageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.msgKeys[r.CycleID]; ok {
		return nil
	}
	m.msgKeys[r.CycleID] = struct{}{}
	m.messages = append(m.messages, r)
	return nil
}

func (m *Memory) RecordEquity(_ context.Context, e EquitySample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.eqKeys[e.CycleID]; ok {
		return nil
	}
	m.eqKeys[e.CycleID] = struct{}{}
	m.equity = append(m.equity, e)
	return nil
}

func (m *Memory) ListTrades(_ context.Context, q Query) ([]TradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []TradeRecord
	for _, t := range m.trades {
		if q.match(t.Time, t.Asset, t.CycleID) {
			out = append(out, t)
		}
	}
	return tail(out, q.Limit), nil
}

func (m *Memory) ListDecisions(_ context.Context, q Query) ([]DecisionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []DecisionRecord
	for _, d := range m.decisions {
		if q.match(d.Time, d.Asset, d.CycleID) {
			out = append(out, d)
		}
	}
	return tail(out, q.Limit), nil
}

func (m *Memory) ListMessages(_ context.Context, q Query) ([]MessageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []MessageRecord
	for _, r := range m.messages {
		if q.match(r.Time, "", r.CycleID) {
			out = append(out, r)
		}
	}
	return tail(out, q.Limit), nil
}

func (m *Memory) ListEquity(_ context.Context, q Query) ([]EquitySample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []EquitySample
	for _, e := range m.equity {
		if q.match(e.Time, "", e.CycleID) {
			out = append(out, e)
		}
	}
	return tail(out, q.Limit), nil
}

func (m *Memory) Close() error { return nil }

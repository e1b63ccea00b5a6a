package journal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by single-row lookups.
var ErrNotFound = errors.New("journal: not found")

// filter turns a Query into a WHERE/ORDER BY/LIMIT tail for one stream table.
// Rows come back newest first when a Limit is set; callers reverse them.
type filter struct {
	timeCol  string
	assetCol string
	order    []string
	ph       func(n int) string
	timeArg  func(t time.Time) any
}

func (f filter) build(base string, q Query) (string, []any) {
	var where []string
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, f.ph(len(args))))
	}

	if !q.Start.IsZero() {
		add(f.timeCol+" >= %s", f.timeArg(q.Start))
	}
	if !q.End.IsZero() {
		add(f.timeCol+" < %s", f.timeArg(q.End))
	}
	if q.Asset != "" && f.assetCol != "" {
		add(f.assetCol+" = %s", q.Asset)
	}
	if q.CycleID != "" {
		add("cycle_id = %s", q.CycleID)
	}

	var b strings.Builder
	b.WriteString(base)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}

	dir := " ASC"
	if q.Limit > 0 {
		dir = " DESC"
	}
	b.WriteString(" ORDER BY ")
	for i, c := range f.order {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c + dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return b.String(), args
}

func sqlitePH(int) string { return "?" }

func postgresPH(n int) string { return fmt.Sprintf("$%d", n) }

func unixNanos(t time.Time) any { return t.UTC().UnixNano() }

func asTime(t time.Time) any { return t.UTC() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullDec(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func reverse[T any](rows []T) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}

var (
	tradeFilter    = filter{timeCol: "ts", assetCol: "asset", order: []string{"ts", "asset", "id"}}
	decisionFilter = filter{timeCol: "ts", assetCol: "asset", order: []string{"ts", "asset"}}
	messageFilter  = filter{timeCol: "ts", order: []string{"ts", "cycle_id"}}
	equityFilter   = filter{timeCol: "ts", order: []string{"ts", "cycle_id"}}
)

func (f filter) with(ph func(int) string, timeArg func(time.Time) any) filter {
	f.ph = ph
	f.timeArg = timeArg
	return f
}

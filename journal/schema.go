package journal

// Times are stored as UTC unix nanoseconds and money as decimal text so that
// rows read back compare equal to what was written.
const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	cycle_id TEXT NOT NULL,
	ts INTEGER NOT NULL,
	asset TEXT NOT NULL,
	action TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity TEXT NOT NULL,
	price TEXT NOT NULL,
	realized_pnl TEXT,
	fees TEXT,
	balance_after TEXT NOT NULL,
	stop_loss TEXT NOT NULL,
	profit_target TEXT NOT NULL,
	leverage INTEGER NOT NULL,
	risk_usd TEXT NOT NULL,
	confidence REAL NOT NULL,
	reason TEXT NOT NULL,
	invalidation TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts, asset);

CREATE TABLE IF NOT EXISTS decisions (
	cycle_id TEXT NOT NULL,
	asset TEXT NOT NULL,
	ts INTEGER NOT NULL,
	signal TEXT NOT NULL,
	effective TEXT NOT NULL,
	outcome TEXT NOT NULL,
	kind TEXT NOT NULL,
	reason TEXT NOT NULL,
	confidence REAL NOT NULL,
	justification TEXT NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (cycle_id, asset)
);

CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(ts, asset);

CREATE TABLE IF NOT EXISTS messages (
	cycle_id TEXT PRIMARY KEY,
	ts INTEGER NOT NULL,
	model TEXT NOT NULL,
	request TEXT NOT NULL,
	response TEXT NOT NULL,
	error TEXT NOT NULL,
	latency_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS equity (
	cycle_id TEXT PRIMARY KEY,
	ts INTEGER NOT NULL,
	balance TEXT NOT NULL,
	equity TEXT NOT NULL,
	unrealized_pnl TEXT NOT NULL,
	open_positions INTEGER NOT NULL,
	return_pct REAL NOT NULL,
	benchmark_price REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_ts ON equity(ts);

CREATE TABLE IF NOT EXISTS portfolio_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	doc TEXT NOT NULL
);
`

const PostgresSchema = `
CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	cycle_id TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	asset TEXT NOT NULL,
	action TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity NUMERIC NOT NULL,
	price NUMERIC NOT NULL,
	realized_pnl NUMERIC,
	fees NUMERIC,
	balance_after NUMERIC NOT NULL,
	stop_loss NUMERIC NOT NULL,
	profit_target NUMERIC NOT NULL,
	leverage INTEGER NOT NULL,
	risk_usd NUMERIC NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	reason TEXT NOT NULL,
	invalidation TEXT NOT NULL DEFAULT ''
);

ALTER TABLE trades ADD COLUMN IF NOT EXISTS invalidation TEXT NOT NULL DEFAULT '';

CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts, asset);

CREATE TABLE IF NOT EXISTS decisions (
	cycle_id TEXT NOT NULL,
	asset TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	signal TEXT NOT NULL,
	effective TEXT NOT NULL,
	outcome TEXT NOT NULL,
	kind TEXT NOT NULL,
	reason TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	justification TEXT NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (cycle_id, asset)
);

CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(ts, asset);

CREATE TABLE IF NOT EXISTS messages (
	cycle_id TEXT PRIMARY KEY,
	ts TIMESTAMPTZ NOT NULL,
	model TEXT NOT NULL,
	request TEXT NOT NULL,
	response TEXT NOT NULL,
	error TEXT NOT NULL,
	latency_ms BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS equity (
	cycle_id TEXT PRIMARY KEY,
	ts TIMESTAMPTZ NOT NULL,
	balance NUMERIC NOT NULL,
	equity NUMERIC NOT NULL,
	unrealized_pnl NUMERIC NOT NULL,
	open_positions INTEGER NOT NULL,
	return_pct DOUBLE PRECISION NOT NULL,
	benchmark_price DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_ts ON equity(ts);

CREATE TABLE IF NOT EXISTS portfolio_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	version BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	doc JSONB NOT NULL
);
`

// ClickHouseSchema is applied statement by statement; the native protocol
// does not accept several statements in one Exec.
var ClickHouseSchema = []string{
	`CREATE TABLE IF NOT EXISTS trades (
		id String,
		cycle_id String,
		ts DateTime64(3, 'UTC'),
		asset LowCardinality(String),
		action LowCardinality(String),
		side LowCardinality(String),
		quantity Float64,
		price Float64,
		realized_pnl Nullable(Float64),
		fees Nullable(Float64),
		balance_after Float64,
		leverage UInt16,
		risk_usd Float64,
		confidence Float64
	) ENGINE = ReplacingMergeTree()
	ORDER BY (ts, asset, id)`,
	`CREATE TABLE IF NOT EXISTS decisions (
		cycle_id String,
		asset LowCardinality(String),
		ts DateTime64(3, 'UTC'),
		signal LowCardinality(String),
		effective LowCardinality(String),
		outcome LowCardinality(String),
		kind LowCardinality(String),
		confidence Float64
	) ENGINE = ReplacingMergeTree()
	ORDER BY (cycle_id, asset)`,
	`CREATE TABLE IF NOT EXISTS messages (
		cycle_id String,
		ts DateTime64(3, 'UTC'),
		model String,
		error String,
		latency_ms UInt64,
		request_bytes UInt64,
		response_bytes UInt64
	) ENGINE = ReplacingMergeTree()
	ORDER BY cycle_id`,
	`CREATE TABLE IF NOT EXISTS equity (
		cycle_id String,
		ts DateTime64(3, 'UTC'),
		balance Float64,
		equity Float64,
		unrealized_pnl Float64,
		open_positions UInt16,
		return_pct Float64,
		benchmark_price Float64
	) ENGINE = ReplacingMergeTree()
	ORDER BY (ts, cycle_id)`,
}

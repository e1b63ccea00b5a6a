package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rustyeddy/papertrader/portfolio"
)

var _ portfolio.Store = (*SQLite)(nil)

// Load reads the single current-state row.
func (j *SQLite) Load(ctx context.Context) (portfolio.State, error) {
	var doc string
	err := j.db.QueryRowContext(ctx, `SELECT doc FROM portfolio_state WHERE id = 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return portfolio.State{}, portfolio.ErrEmpty
	}
	if err != nil {
		return portfolio.State{}, fmt.Errorf("load portfolio state: %w", err)
	}
	return portfolio.Unmarshal([]byte(doc))
}

// Save replaces the current-state row inside a transaction, so a crash leaves
// either the previous row or the new one.
func (j *SQLite) Save(ctx context.Context, s portfolio.State) error {
	doc, err := portfolio.Marshal(s)
	if err != nil {
		return err
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin state tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO portfolio_state (id, version, updated_at, doc)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			updated_at = excluded.updated_at,
			doc = excluded.doc`,
		s.Version, s.UpdatedAt.UTC().UnixNano(), string(doc),
	)
	if err != nil {
		return fmt.Errorf("save portfolio state: %w", err)
	}
	return tx.Commit()
}

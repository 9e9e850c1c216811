package replay

import (
	"context"
	"database/sql"
	"strings"
)

// PostgresStore is a deployment-wide nonce store. The insert-if-absent
// is a single INSERT ... ON CONFLICT DO NOTHING, so concurrent
// facilitator instances race safely on the same pair.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed nonce store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the consumed-nonces table.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS consumed_nonces (
			payer       VARCHAR(42) NOT NULL,
			nonce       VARCHAR(64) NOT NULL,
			consumed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (payer, nonce)
		);
	`)
	return err
}

// Consume implements Store. accepted=true iff this call inserted the row.
func (p *PostgresStore) Consume(ctx context.Context, payer, nonce string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO consumed_nonces (payer, nonce)
		VALUES ($1, $2)
		ON CONFLICT (payer, nonce) DO NOTHING`,
		strings.ToLower(payer), strings.ToLower(strings.TrimPrefix(nonce, "0x")),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

var _ Store = (*PostgresStore)(nil)

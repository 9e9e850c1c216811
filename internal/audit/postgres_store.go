package audit

import (
	"context"
	"database/sql"
)

// PostgresStore persists audit records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed record store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the audit_records table and indexes.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_records (
			id           VARCHAR(36) PRIMARY KEY,
			attempt_id   VARCHAR(64) NOT NULL,
			resource     VARCHAR(512) NOT NULL,
			payer        VARCHAR(42) NOT NULL,
			pay_to       VARCHAR(42) NOT NULL,
			amount       NUMERIC(30,0) NOT NULL,
			network      VARCHAR(32) NOT NULL,
			outcome      VARCHAR(20) NOT NULL CHECK (outcome IN ('settled','voided','reconcile')),
			reason       VARCHAR(64),
			tx_hash      VARCHAR(66),
			payload_hash VARCHAR(64) NOT NULL,
			signature    VARCHAR(128) NOT NULL,
			issued_at    TIMESTAMPTZ NOT NULL,
			expires_at   TIMESTAMPTZ NOT NULL,
			created_at   TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_audit_records_payer ON audit_records (payer, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_records_attempt ON audit_records (attempt_id);
		CREATE INDEX IF NOT EXISTS idx_audit_records_outcome ON audit_records (outcome, created_at DESC);
	`)
	return err
}

func (p *PostgresStore) Create(ctx context.Context, r *Record) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO audit_records (
			id, attempt_id, resource, payer, pay_to,
			amount, network, outcome, reason, tx_hash,
			payload_hash, signature, issued_at, expires_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6::NUMERIC(30,0), $7, $8, $9, $10,
			$11, $12, $13, $14, $15
		)`,
		r.ID, r.AttemptID, r.Resource, r.Payer, r.PayTo,
		r.Amount, r.Network, string(r.Outcome), nullString(r.Reason), nullString(r.TxHash),
		r.PayloadHash, r.Signature, r.IssuedAt, r.ExpiresAt, r.CreatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, attempt_id, resource, payer, pay_to,
		       amount, network, outcome, reason, tx_hash,
		       payload_hash, signature, issued_at, expires_at, created_at
		FROM audit_records WHERE id = $1`, id)

	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	return r, err
}

func (p *PostgresStore) ListByPayer(ctx context.Context, payer string, limit int) ([]*Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, attempt_id, resource, payer, pay_to,
		       amount, network, outcome, reason, tx_hash,
		       payload_hash, signature, issued_at, expires_at, created_at
		FROM audit_records
		WHERE payer = $1
		ORDER BY created_at DESC
		LIMIT $2`, payer, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

func (p *PostgresStore) ListByAttempt(ctx context.Context, attemptID string) ([]*Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, attempt_id, resource, payer, pay_to,
		       amount, network, outcome, reason, tx_hash,
		       payload_hash, signature, issued_at, expires_at, created_at
		FROM audit_records
		WHERE attempt_id = $1
		ORDER BY created_at DESC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// --- scanners ---

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(sc scanner) (*Record, error) {
	r := &Record{}
	var (
		reason  sql.NullString
		txHash  sql.NullString
		outcome string
	)

	err := sc.Scan(
		&r.ID, &r.AttemptID, &r.Resource, &r.Payer, &r.PayTo,
		&r.Amount, &r.Network, &outcome, &reason, &txHash,
		&r.PayloadHash, &r.Signature, &r.IssuedAt, &r.ExpiresAt, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Outcome = Outcome(outcome)
	r.Reason = reason.String
	r.TxHash = txHash.String
	return r, nil
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	var result []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Store = (*PostgresStore)(nil)

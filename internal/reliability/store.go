package reliability

import (
	"context"
	"database/sql"
	"sync"
)

// SnapshotStore persists provider counters across restarts.
type SnapshotStore interface {
	Save(ctx context.Context, stats []Stat) error
	Load(ctx context.Context) ([]Stat, error)
}

// MemorySnapshotStore keeps snapshots in memory (demo/development).
type MemorySnapshotStore struct {
	mu    sync.Mutex
	stats []Stat
}

// NewMemorySnapshotStore creates an in-memory snapshot store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{}
}

func (m *MemorySnapshotStore) Save(_ context.Context, stats []Stat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = append([]Stat(nil), stats...)
	return nil
}

func (m *MemorySnapshotStore) Load(_ context.Context) ([]Stat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Stat(nil), m.stats...), nil
}

// PostgresSnapshotStore persists counters in PostgreSQL via upsert, so
// counters survive restarts without ever decreasing.
type PostgresSnapshotStore struct {
	db *sql.DB
}

// NewPostgresSnapshotStore creates a PostgreSQL-backed snapshot store.
func NewPostgresSnapshotStore(db *sql.DB) *PostgresSnapshotStore {
	return &PostgresSnapshotStore{db: db}
}

// Migrate creates the provider_stats table.
func (p *PostgresSnapshotStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS provider_stats (
			provider_id      VARCHAR(255) PRIMARY KEY,
			success_count    BIGINT NOT NULL DEFAULT 0,
			failure_count    BIGINT NOT NULL DEFAULT 0,
			total_latency_ms BIGINT NOT NULL DEFAULT 0,
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (p *PostgresSnapshotStore) Save(ctx context.Context, stats []Stat) error {
	for _, s := range stats {
		_, err := p.db.ExecContext(ctx, `
			INSERT INTO provider_stats (provider_id, success_count, failure_count, total_latency_ms, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (provider_id) DO UPDATE SET
				success_count    = GREATEST(provider_stats.success_count, EXCLUDED.success_count),
				failure_count    = GREATEST(provider_stats.failure_count, EXCLUDED.failure_count),
				total_latency_ms = GREATEST(provider_stats.total_latency_ms, EXCLUDED.total_latency_ms),
				updated_at       = EXCLUDED.updated_at`,
			s.ProviderID, s.SuccessCount, s.FailureCount, s.TotalLatencyMs, s.UpdatedAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresSnapshotStore) Load(ctx context.Context) ([]Stat, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT provider_id, success_count, failure_count, total_latency_ms, updated_at
		FROM provider_stats`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Stat
	for rows.Next() {
		var s Stat
		if err := rows.Scan(&s.ProviderID, &s.SuccessCount, &s.FailureCount, &s.TotalLatencyMs, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var (
	_ SnapshotStore = (*MemorySnapshotStore)(nil)
	_ SnapshotStore = (*PostgresSnapshotStore)(nil)
)

package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the SQL DDL for the transcript table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS transcript_entries (
    id         BIGSERIAL PRIMARY KEY,
    session_id TEXT NOT NULL,
    role       TEXT NOT NULL,
    text       TEXT NOT NULL,
    ts         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_transcript_entries_session ON transcript_entries(session_id, ts);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL.
type PostgresStore struct {
	db   DB
	pool *pgxpool.Pool // non-nil only when the store owns the pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an existing connection or pool. The caller is
// responsible for calling [PostgresStore.Migrate] before issuing queries,
// and for closing the underlying connection.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ConnectPostgres opens a pool to dsn, runs [PostgresStore.Migrate], and
// returns a store that owns the pool; Close releases it.
func ConnectPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: connect postgres: %w", err)
	}
	s := &PostgresStore{db: pool, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate executes the [Schema] DDL, creating the transcript table and its
// index if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) WriteEntry(ctx context.Context, sessionID string, e Entry) error {
	const query = `
		INSERT INTO transcript_entries (session_id, role, text, ts)
		VALUES ($1, $2, $3, $4)`
	if _, err := s.db.Exec(ctx, query, sessionID, e.Role, e.Text, e.Timestamp); err != nil {
		return fmt.Errorf("history: write entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Entries(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	// Fetch newest-first so LIMIT keeps the tail, then reverse.
	query := `
		SELECT role, text, ts
		FROM transcript_entries
		WHERE session_id = $1
		ORDER BY ts DESC, id DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Role, &e.Text, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("history: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate entries: %w", err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Close releases the pool when the store owns one; stores wrapping a
// caller-provided connection leave it open.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

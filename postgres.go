package flatbank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	pgCreateSnapshotsSQL = `
		CREATE TABLE IF NOT EXISTS snapshots (
			name       TEXT PRIMARY KEY,
			body       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`

	pgSelectSnapshotSQL = `
		SELECT body
		FROM snapshots
		WHERE name = $1;
	`

	pgUpsertSnapshotSQL = `
		INSERT INTO snapshots (name, body, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at;
	`
)

// PostgresStore keeps a whole snapshot as a single JSONB row keyed by name.
// It has the same load/save semantics as FileStore.
type PostgresStore struct {
	pool *pgxpool.Pool
	name string
}

var (
	_ Store = (*PostgresStore)(nil)
)

func NewPostgresPool(connStr string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	if err = pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// NewPostgresStore makes sure the snapshots table exists.
func NewPostgresStore(pool *pgxpool.Pool, name string) (*PostgresStore, error) {
	if _, err := pool.Exec(context.Background(), pgCreateSnapshotsSQL); err != nil {
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}
	return &PostgresStore{pool: pool, name: name}, nil
}

func (pg *PostgresStore) Load(v any) error {
	ctx := context.Background()
	var body []byte
	err := pg.pool.QueryRow(ctx, pgSelectSnapshotSQL, pg.name).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return pg.Save(v)
	}
	if err != nil {
		return fmt.Errorf("read snapshot %s: %w", pg.name, err)
	}
	if err = json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", pg.name, err)
	}
	return nil
}

func (pg *PostgresStore) Save(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", pg.name, err)
	}
	if _, err = pg.pool.Exec(context.Background(), pgUpsertSnapshotSQL, pg.name, body); err != nil {
		return fmt.Errorf("write snapshot %s: %w", pg.name, err)
	}
	return nil
}

// Package postgres mirrors assembled datasets into a Postgres table.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/municipal-distances/internal/pipeline"
)

const defaultTable = "municipal_distances"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DatasetStoreConfig controls the Postgres connection pool used for dataset rows.
type DatasetStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type txPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// DatasetStore upserts dataset rows, one per municipality and reference city.
type DatasetStore struct {
	pool  txPool
	table string
}

// NewDatasetStore creates a Postgres-backed DatasetStore using the provided config.
func NewDatasetStore(ctx context.Context, cfg DatasetStoreConfig) (*DatasetStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("export.postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DatasetStore{pool: pool, table: table}, nil
}

// NewDatasetStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewDatasetStoreWithPool(pool txPool, table string) (*DatasetStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &DatasetStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *DatasetStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the dataset table when it does not exist.
func (s *DatasetStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	codigo_ibge integer NOT NULL,
	reference_city text NOT NULL,
	municipio text NOT NULL,
	idhm_2010 double precision,
	dist_km_geodesica double precision,
	dist_km_rodoviaria double precision,
	partial boolean NOT NULL DEFAULT false,
	run_id uuid NOT NULL,
	updated_at timestamptz NOT NULL,
	PRIMARY KEY (codigo_ibge, reference_city)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// SaveTable upserts every row of table in a single transaction and returns
// the number of rows written.
func (s *DatasetStore) SaveTable(ctx context.Context, runID uuid.UUID, at time.Time, table pipeline.Table) (n int, err error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("dataset store is not configured")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin dataset tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := fmt.Sprintf(`
INSERT INTO %s (
	codigo_ibge,
	reference_city,
	municipio,
	idhm_2010,
	dist_km_geodesica,
	dist_km_rodoviaria,
	partial,
	run_id,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (codigo_ibge, reference_city) DO UPDATE SET
	municipio = EXCLUDED.municipio,
	idhm_2010 = EXCLUDED.idhm_2010,
	dist_km_geodesica = EXCLUDED.dist_km_geodesica,
	dist_km_rodoviaria = EXCLUDED.dist_km_rodoviaria,
	partial = EXCLUDED.partial,
	run_id = EXCLUDED.run_id,
	updated_at = EXCLUDED.updated_at`, s.table)

	for _, row := range table.Rows {
		args := []any{
			row.ID,
			table.ReferenceCity,
			row.Name,
			row.Score,
			row.GeodesicKm,
			row.RoadKm,
			table.Partial,
			runID,
			at,
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", row.Name, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit dataset tx: %w", err)
	}
	return len(table.Rows), nil
}
